package hooks

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// Exec runs fn as query under the given hooks, in the same order bun uses:
// BeforeQuery first to last, AfterQuery last to first. It is meant for
// statements sent straight to the driver, which bun never sees.
func Exec(ctx context.Context, queryHooks []bun.QueryHook, query string, fn func(ctx context.Context) error) error {
	if len(queryHooks) == 0 {
		return fn(ctx)
	}

	event := &bun.QueryEvent{
		Query:     query,
		StartTime: time.Now(),
	}
	for _, h := range queryHooks {
		ctx = h.BeforeQuery(ctx, event)
	}

	event.Err = fn(ctx)

	for i := len(queryHooks) - 1; i >= 0; i-- {
		queryHooks[i].AfterQuery(ctx, event)
	}
	return event.Err
}
