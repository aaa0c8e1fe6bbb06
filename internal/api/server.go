// Package api is the webhook-facing HTTP server. It receives tracker events,
// verifies their signatures and hands them to the triage pipeline.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/supportbot/internal/guardrails"
)

// EventRunner processes one inbound tracker event.
type EventRunner interface {
	Run(ctx context.Context, event guardrails.Event) error
}

// Server represents the webhook server
type Server struct {
	echo          *echo.Echo
	host          string
	port          int
	webhookSecret string
	runner        EventRunner
}

// NewServer creates a new webhook server
func NewServer(host string, port int, webhookSecret string, runner EventRunner) *Server {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	server := &Server{
		echo:          e,
		host:          host,
		port:          port,
		webhookSecret: webhookSecret,
		runner:        runner,
	}

	// Setup routes
	server.setupRoutes()

	return server
}

// setupRoutes configures all endpoints
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})

	v1 := s.echo.Group("/api/v1")
	v1.POST("/webhook/github", s.handleWebhook)
}

// Start begins the webhook server and blocks until interrupted.
func (s *Server) Start() error {
	go func() {
		addr := fmt.Sprintf("%s:%d", s.host, s.port)
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			s.echo.Logger.Fatal("shutting down the server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.echo.Shutdown(ctx)
}
