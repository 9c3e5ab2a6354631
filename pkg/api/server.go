// Package api wires the command layer and webhook ingestion handlers onto
// an Echo v5 server, following the teacher's Server/setupRoutes shape.
package api

import (
	"context"
	"errors"
	"net/http"
	"runtime/debug"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/sgunadhya/incident-agent/pkg/command"
	"github.com/sgunadhya/incident-agent/pkg/webhook"
)

// maxBodyBytes bounds request bodies at the HTTP read level, above the
// largest payload an adapter is expected to see.
const maxBodyBytes = 2 * 1024 * 1024

// appName identifies this binary in the health response's version string.
const appName = "incident-agent"

// buildVersion returns "incident-agent/<commit>", reading the short git
// commit embedded by the Go toolchain's automatic VCS stamping. "dev" stands
// in for the commit when build info is unavailable, e.g. under `go test`.
func buildVersion() string {
	commit := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				commit = s.Value
				if len(commit) > 8 {
					commit = commit[:8]
				}
				break
			}
		}
	}
	return appName + "/" + commit
}

// Server is the HTTP API server: webhook ingestion plus the read/write
// command surface described in the external interfaces section.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server
	cmds       *command.Commands
	hooks      *webhook.Handlers
}

// NewServer builds a Server with routes registered but not yet listening.
func NewServer(cmds *command.Commands, hooks *webhook.Handlers) *Server {
	e := echo.New()
	s := &Server{echo: e, cmds: cmds, hooks: hooks}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(maxBodyBytes))

	s.echo.GET("/health", s.healthHandler)

	s.hooks.Register(s.echo)

	v1 := s.echo.Group("/api/v1")
	v1.GET("/incidents", s.listIncidentsHandler)
	v1.GET("/incidents/:id/beliefs", s.getBeliefsHandler)
	v1.GET("/incidents/:id/timeline", s.getTimelineHandler)
	v1.GET("/incidents/:id/plan", s.getCurrentPlanHandler)
	v1.GET("/incidents/:id/tool-calls", s.getToolCallsHandler)
	v1.GET("/incidents/:id/suggested-facts", s.getSuggestedFactsHandler)
	v1.POST("/incidents/:id/facts", s.upsertAlertFactHandler)
	v1.DELETE("/incidents/:id/facts/:fact_id", s.retractFactHandler)
	v1.POST("/incidents/:id/reprocess", s.reprocessIncidentHandler)
	v1.POST("/incidents/:id/suggestions", s.generateFactSuggestionsHandler)
	v1.POST("/incidents/:id/suggestions/:suggestion_event_id/decide", s.decideFactSuggestionHandler)
	v1.POST("/incidents/:id/escalation/respond", s.respondToEscalationHandler)
}

func (s *Server) healthHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": buildVersion(),
	})
}

// Start begins serving on addr and blocks until the listener fails or is
// shut down.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// validationStatus maps a command ValidationError to 400, leaving every
// other error (storage, channel-closed) as a 500.
func validationStatus(err error) int {
	var ve *command.ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
