// Package server assembles the HTTP server.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/driftchat/driftchat/ai/metrics"
	"github.com/driftchat/driftchat/internal/profile"
	apiv1 "github.com/driftchat/driftchat/server/router/api/v1"
	"github.com/driftchat/driftchat/store"
)

// Server is the HTTP server and its collaborators.
type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
	apiV1      *apiv1.APIV1Service
	metrics    *metrics.Exporter
}

// NewServer assembles the server: middleware, health and metrics
// routes, and the v1 API.
func NewServer(_ context.Context, prof *profile.Profile, st *store.Store) (*Server, error) {
	e := echo.New()
	e.Debug = prof.IsDev()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogError:  true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				slog.Warn("request failed", "method", v.Method, "uri", v.URI, "status", v.Status, "error", v.Error)
			} else {
				slog.Debug("request", "method", v.Method, "uri", v.URI, "status", v.Status)
			}
			return nil
		},
	}))
	e.Use(middleware.CORS())

	exporter := metrics.NewExporter(metrics.DefaultConfig())

	s := &Server{
		Profile:    prof,
		Store:      st,
		echoServer: e,
		metrics:    exporter,
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "Service ready.")
	})
	e.GET("/metrics", echo.WrapHandler(exporter.Handler()))

	s.apiV1 = apiv1.NewAPIV1Service(prof, st, exporter)
	s.apiV1.RegisterRoutes(e)

	return s, nil
}

// Start begins serving. It returns immediately; serve errors surface
// on the server's own goroutine.
func (s *Server) Start(_ context.Context) error {
	if s.Profile.UNIXSock != "" {
		// Remove a stale socket left by an unclean shutdown.
		_ = os.Remove(s.Profile.UNIXSock)
		listener, err := net.Listen("unix", s.Profile.UNIXSock)
		if err != nil {
			return errors.Wrapf(err, "failed to listen on %s", s.Profile.UNIXSock)
		}
		s.echoServer.Listener = listener
		go func() {
			if err := s.echoServer.Start(""); err != nil && err != http.ErrServerClosed {
				slog.Error("server stopped", "error", err)
			}
		}()
		return nil
	}

	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	go func() {
		if err := s.echoServer.Start(address); err != nil && err != http.ErrServerClosed {
			slog.Error("server stopped", "error", err)
		}
	}()
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close store", "error", err)
	}
	slog.Info("server shutdown complete")
}
