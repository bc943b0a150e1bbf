// Package server assembles the HTTP surface and the background job fabric
// into one process.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/mnemo/ai/llm"
	"github.com/hrygo/mnemo/ai/metrics"
	"github.com/hrygo/mnemo/internal/profile"
	"github.com/hrygo/mnemo/server/queue"
	apiv1 "github.com/hrygo/mnemo/server/router/api/v1"
	"github.com/hrygo/mnemo/store"
)

type Server struct {
	echoServer *echo.Echo
	pool       *queue.Pool

	Profile *profile.Profile
	Store   *store.Store
}

// NewServer builds the echo server, the API surface, and the worker pool.
func NewServer(ctx context.Context, profile *profile.Profile, store *store.Store) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	if profile.UNIXSock != "" {
		// echo parses the Start address per ListenerNetwork; the default
		// "tcp" would treat the socket path as a host:port pair.
		e.ListenerNetwork = "unix"
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
				slog.Error("request", attrs...)
			} else {
				slog.Debug("request", attrs...)
			}
			return nil
		},
	}))
	if len(profile.CORSOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: profile.CORSOrigins,
		}))
	}

	var llmService llm.Service
	if profile.IsLLMEnabled() {
		llmService = llm.NewService(profile)
		slog.Info("LLM gateway initialized",
			slog.String("provider", profile.LLMProvider),
			slog.String("chat_model", profile.ChatModel),
			slog.String("embedding_provider", profile.EmbeddingProvider))
	} else {
		slog.Warn("no LLM API key configured, extraction and vector recall are disabled")
	}

	apiService := apiv1.NewAPIV1Service(profile, store, llmService)
	apiService.RegisterRoutes(e)

	exporter := metrics.Default()
	e.GET("/metrics", func(c echo.Context) error {
		if depth, err := store.CountPendingJobs(c.Request().Context()); err == nil {
			exporter.SetQueueDepth(depth)
		}
		exporter.Handler().ServeHTTP(c.Response(), c.Request())
		return nil
	})
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})

	s := &Server{
		echoServer: e,
		pool:       queue.NewPool(profile, store, queue.NewDispatcher(store, llmService)),
		Profile:    profile,
		Store:      store,
	}
	return s, nil
}

// Start launches the workers and begins serving. It returns once the
// listener is up; serving continues in a goroutine.
func (s *Server) Start(ctx context.Context) error {
	s.pool.Start(ctx)

	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	go func() {
		var err error
		if s.Profile.UNIXSock != "" {
			err = s.echoServer.Start(s.Profile.UNIXSock)
		} else {
			err = s.echoServer.Start(address)
		}
		if err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start http server", slog.String("error", err.Error()))
		}
	}()
	slog.Info("server started", slog.String("address", address))
	return nil
}

// Shutdown drains in-flight jobs and stops the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	s.pool.Stop()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shut down http server", slog.String("error", err.Error()))
	}
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close store", slog.String("error", err.Error()))
	}
	slog.Info("server shut down")
}
