package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fernandezvara/pgtx"
)

// HealthChecker reports database health.
type HealthChecker interface {
	Health(ctx context.Context) pgtx.HealthStatus
}

type homeState struct {
	Service string `json:"service"`
	Version string `json:"version"`
}

// home serves the entry point document. GET /
func (s *Server) home(c *gin.Context) {
	doc := NewResource("/").
		WithLink("health", Link{Href: "/health", Name: "health"}).
		WithLink("metrics", Link{Href: "/metrics", Name: "metrics"})
	doc.State = homeState{Service: s.cfg.Telemetry.ServiceName, Version: s.version}

	c.Header("Cache-Control", "no-cache")
	respondHAL(c, http.StatusOK, doc)
}

// health reports database health. GET /health
func (s *Server) health(c *gin.Context) {
	ctx := c.Request.Context()
	if timeout := s.cfg.Server.HealthTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	status := s.db.Health(ctx)

	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}
