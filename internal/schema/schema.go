// Package schema embeds the service's SQL migrations.
//
// Each file in migrations/ is one migration. The file name without the .sql
// extension is the migration ID, and IDs sort in apply order. A leading
// "-- " comment line becomes the description.
package schema

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/fernandezvara/pgtx"
)

//go:embed migrations/*.sql
var files embed.FS

// Migrations returns the embedded migrations in ID order.
func Migrations() ([]pgtx.Migration, error) {
	return load(files, "migrations")
}

func load(fsys fs.FS, dir string) ([]pgtx.Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var migrations []pgtx.Migration
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}

		content, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}

		sql := string(content)
		if strings.TrimSpace(sql) == "" {
			return nil, fmt.Errorf("migration %s is empty", entry.Name())
		}

		id := strings.TrimSuffix(entry.Name(), ".sql")
		migrations = append(migrations, pgtx.Migration{
			ID:          id,
			Description: description(sql, id),
			SQL:         sql,
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].ID < migrations[j].ID
	})

	return migrations, nil
}

// description takes the first line when it is a SQL comment, otherwise the ID.
func description(sql, id string) string {
	first, _, _ := strings.Cut(strings.TrimSpace(sql), "\n")
	if text, ok := strings.CutPrefix(strings.TrimSpace(first), "--"); ok {
		if text = strings.TrimSpace(text); text != "" {
			return text
		}
	}
	return id
}
