//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package generic serves the engine over plain HTTP/JSON.
package generic

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/manetu/portalauthz/pkg/core"
	"github.com/manetu/portalauthz/pkg/decisionpoint"
	"github.com/manetu/portalauthz/pkg/decisionpoint/generic/api"
)

// Server represents a generic decision point server that serves the REST API.
type Server struct {
	echo *echo.Echo
}

// Option configures the HTTP handler.
type Option func(e *echo.Echo)

// WithMetrics serves h on GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(e *echo.Echo) {
		e.GET("/metrics", echo.WrapHandler(h))
	}
}

// NewHandler returns the configured echo instance without starting it.
func NewHandler(engine core.Engine, opts ...Option) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	api.RegisterHandlers(e, api.NewServer(engine))
	e.GET("/healthz", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})
	for _, o := range opts {
		o(e)
	}
	return e
}

// CreateServer creates and starts a new generic decision point server.
func CreateServer(engine core.Engine, port int, opts ...Option) (decisionpoint.Server, error) {
	e := NewHandler(engine, opts...)

	// Start server in goroutine since e.Start() blocks
	go func() {
		if err := e.Start(fmt.Sprintf(":%d", port)); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal(err)
		}
	}()

	return &Server{
		echo: e,
	}, nil
}

// Stop gracefully stops the Server by shutting down the Echo HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
