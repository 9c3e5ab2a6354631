// Package webhook exposes the HTTP ingestion endpoints that turn a vendor
// alert payload into a fact.Fact and hand it to the agent's fact queue.
package webhook

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/sgunadhya/incident-agent/pkg/adapter"
	"github.com/sgunadhya/incident-agent/pkg/fact"
)

// Sink receives a parsed fact for asynchronous processing by the agent loop.
// Push returns an error once the loop has shut down and facts can no longer
// be accepted.
type Sink interface {
	Push(f fact.Fact) error
}

// Handlers wires the four ingest endpoints to a fact Sink. Datadog and
// PagerDuty reuse the generic adapter's field-guessing shape, matching
// every vendor that has not earned a dedicated adapter yet; only the
// labeled source differs.
type Handlers struct {
	Sink     Sink
	Generic  adapter.Adapter
	AlertMgr adapter.Adapter
}

// NewHandlers builds Handlers with the default Generic/Alertmanager adapters.
func NewHandlers(sink Sink) *Handlers {
	return &Handlers{
		Sink:     sink,
		Generic:  &adapter.Generic{},
		AlertMgr: &adapter.Alertmanager{},
	}
}

// Register mounts /webhook/{generic,datadog,pagerduty,alertmanager} on e.
// Alertmanager payloads are parsed through their own adapter but, like every
// vendor without a dedicated source tag, are recorded as SourceGeneric.
func (h *Handlers) Register(e *echo.Echo) {
	e.POST("/webhook/generic", h.handle(h.Generic, fact.SourceGeneric))
	e.POST("/webhook/datadog", h.handle(h.Generic, fact.SourceDatadog))
	e.POST("/webhook/pagerduty", h.handle(h.Generic, fact.SourcePagerDuty))
	e.POST("/webhook/alertmanager", h.handle(h.AlertMgr, fact.SourceGeneric))
}

func (h *Handlers) handle(a adapter.Adapter, source fact.AlertSource) echo.HandlerFunc {
	return func(c *echo.Context) error {
		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errBody(err.Error()))
		}
		payload, err := adapter.ParseJSON(body)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errBody(err.Error()))
		}
		canonical, err := a.Parse(payload)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errBody(err.Error()))
		}

		if err := h.Sink.Push(adapter.ToFact(canonical, source)); err != nil {
			return c.JSON(http.StatusServiceUnavailable, errBody("ingestion channel closed"))
		}
		return c.JSON(http.StatusAccepted, map[string]string{"incident_id": canonical.ID})
	}
}

func errBody(reason string) map[string]string {
	return map[string]string{"error": reason}
}
