package webhook

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgunadhya/incident-agent/pkg/fact"
)

type captureSink struct {
	pushed []fact.Fact
	err    error
}

func (s *captureSink) Push(f fact.Fact) error {
	if s.err != nil {
		return s.err
	}
	s.pushed = append(s.pushed, f)
	return nil
}

func post(t *testing.T, h echo.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/webhook/generic", bytes.NewBufferString(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	require.NoError(t, h(c))
	return rec
}

func TestGenericWebhookAcceptsValidPayload(t *testing.T) {
	sink := &captureSink{}
	h := NewHandlers(sink)

	rec := post(t, h.handle(h.Generic, fact.SourceGeneric), `{"id":"inc-1","title":"disk full","severity":"high","tags":["disk"]}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, sink.pushed, 1)
	require.NotNil(t, sink.pushed[0].Alert)
	assert.Equal(t, "inc-1", sink.pushed[0].Alert.ID)
	assert.Equal(t, fact.SourceGeneric, sink.pushed[0].Alert.Source)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "inc-1", body["incident_id"])
}

func TestDatadogAndPagerDutyRouteThroughGenericAdapter(t *testing.T) {
	sink := &captureSink{}
	h := NewHandlers(sink)

	rec := post(t, h.handle(h.Generic, fact.SourceDatadog), `{"id":"inc-2","title":"cpu spike","severity":"critical"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, sink.pushed, 1)
	assert.Equal(t, fact.SourceDatadog, sink.pushed[0].Alert.Source)

	rec = post(t, h.handle(h.Generic, fact.SourcePagerDuty), `{"id":"inc-3","title":"latency","severity":"low"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, sink.pushed, 2)
	assert.Equal(t, fact.SourcePagerDuty, sink.pushed[1].Alert.Source)
}

func TestAlertmanagerWebhookAcceptsValidPayload(t *testing.T) {
	sink := &captureSink{}
	h := NewHandlers(sink)

	body := `{"alerts":[{"fingerprint":"abc123","labels":{"alertname":"PodCrashLooping","severity":"high"},"annotations":{"summary":"pod crashing"}}]}`
	rec := post(t, h.handle(h.AlertMgr, fact.SourceGeneric), body)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, sink.pushed, 1)
	require.NotNil(t, sink.pushed[0].Alert)
	assert.Equal(t, "abc123", sink.pushed[0].Alert.ID)
	assert.Equal(t, "pod crashing", sink.pushed[0].Alert.Title)
	assert.Equal(t, fact.SourceGeneric, sink.pushed[0].Alert.Source)
}

func TestWebhookRejectsMalformedJSON(t *testing.T) {
	sink := &captureSink{}
	h := NewHandlers(sink)

	rec := post(t, h.handle(h.Generic, fact.SourceGeneric), `not json`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, sink.pushed)
}

func TestAlertmanagerWebhookRejectsPayloadWithoutAlerts(t *testing.T) {
	sink := &captureSink{}
	h := NewHandlers(sink)

	rec := post(t, h.handle(h.AlertMgr, fact.SourceGeneric), `{"alerts":[]}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, sink.pushed)
}

func TestWebhookReturnsServiceUnavailableWhenQueueClosed(t *testing.T) {
	sink := &captureSink{err: assert.AnError}
	h := NewHandlers(sink)

	rec := post(t, h.handle(h.Generic, fact.SourceGeneric), `{"id":"inc-1","title":"disk full","severity":"high"}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ingestion channel closed", body["error"])
}
