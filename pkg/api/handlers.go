package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/sgunadhya/incident-agent/pkg/incident"
)

type upsertAlertFactRequest struct {
	FactID   string   `json:"fact_id"`
	Title    string   `json:"title"`
	Severity string   `json:"severity"`
	Tags     []string `json:"tags"`
}

type decideFactSuggestionRequest struct {
	Decision string `json:"decision"`
}

type respondToEscalationRequest struct {
	Response string `json:"response"`
}

func (s *Server) listIncidentsHandler(c *echo.Context) error {
	summaries, err := s.cmds.ListIncidents(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errBody(err))
	}
	return c.JSON(http.StatusOK, summaries)
}

func (s *Server) getBeliefsHandler(c *echo.Context) error {
	beliefs, err := s.cmds.GetBeliefs(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errBody(err))
	}
	return c.JSON(http.StatusOK, beliefs)
}

func (s *Server) getTimelineHandler(c *echo.Context) error {
	timeline, err := s.cmds.GetTimeline(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errBody(err))
	}
	return c.JSON(http.StatusOK, timeline)
}

func (s *Server) getCurrentPlanHandler(c *echo.Context) error {
	plan, err := s.cmds.GetCurrentPlan(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errBody(err))
	}
	return c.JSON(http.StatusOK, plan)
}

func (s *Server) getToolCallsHandler(c *echo.Context) error {
	calls, err := s.cmds.GetToolCalls(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errBody(err))
	}
	return c.JSON(http.StatusOK, calls)
}

func (s *Server) getSuggestedFactsHandler(c *echo.Context) error {
	suggestions, err := s.cmds.GetSuggestedFacts(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errBody(err))
	}
	return c.JSON(http.StatusOK, suggestions)
}

func (s *Server) upsertAlertFactHandler(c *echo.Context) error {
	var req upsertAlertFactRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err))
	}
	err := s.cmds.UpsertAlertFact(c.Request().Context(), c.Param("id"), req.FactID, req.Title, req.Severity, req.Tags)
	if err != nil {
		return c.JSON(validationStatus(err), errBody(err))
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) retractFactHandler(c *echo.Context) error {
	err := s.cmds.RetractFact(c.Request().Context(), c.Param("id"), c.Param("fact_id"))
	if err != nil {
		return c.JSON(validationStatus(err), errBody(err))
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) reprocessIncidentHandler(c *echo.Context) error {
	err := s.cmds.ReprocessIncident(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(validationStatus(err), errBody(err))
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) generateFactSuggestionsHandler(c *echo.Context) error {
	err := s.cmds.GenerateFactSuggestions(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(validationStatus(err), errBody(err))
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) decideFactSuggestionHandler(c *echo.Context) error {
	var req decideFactSuggestionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err))
	}
	suggestionEventID, err := strconv.ParseInt(c.Param("suggestion_event_id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err))
	}
	if err := s.cmds.DecideFactSuggestion(c.Request().Context(), c.Param("id"), suggestionEventID, req.Decision); err != nil {
		return c.JSON(validationStatus(err), errBody(err))
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) respondToEscalationHandler(c *echo.Context) error {
	var req respondToEscalationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err))
	}
	response := incident.EscalationResponse(req.Response)
	if response != incident.Approve && response != incident.Reject {
		return c.JSON(http.StatusBadRequest, errBody(&badResponseError{Response: req.Response}))
	}
	if err := s.cmds.RespondToEscalation(c.Request().Context(), c.Param("id"), response); err != nil {
		return c.JSON(http.StatusServiceUnavailable, errBody(err))
	}
	return c.NoContent(http.StatusAccepted)
}

type badResponseError struct{ Response string }

func (e *badResponseError) Error() string {
	return "escalation response must be 'approve' or 'reject', got '" + e.Response + "'"
}

func errBody(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}
