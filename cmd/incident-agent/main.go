// incident-agent runs the BDI control loop, the runtime dispatcher and the
// HTTP ingestion/API server as cooperating long-lived workers.
package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sgunadhya/incident-agent/pkg/agent"
	"github.com/sgunadhya/incident-agent/pkg/api"
	"github.com/sgunadhya/incident-agent/pkg/command"
	"github.com/sgunadhya/incident-agent/pkg/config"
	"github.com/sgunadhya/incident-agent/pkg/dispatcher"
	"github.com/sgunadhya/incident-agent/pkg/eventlog"
	"github.com/sgunadhya/incident-agent/pkg/llm"
	"github.com/sgunadhya/incident-agent/pkg/runbook"
	"github.com/sgunadhya/incident-agent/pkg/webhook"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	envPath := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("warning: could not load %s: %v", envPath, err)
		log.Printf("continuing with existing environment variables")
	} else {
		log.Printf("loaded environment from %s", envPath)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	eventLog, err := eventlog.Open(cfg.EventsDBPath)
	if err != nil {
		log.Fatalf("failed to open event log at %s: %v", cfg.EventsDBPath, err)
	}
	defer eventLog.Close()

	runbooks := runbook.NewRegistry()

	var llmClient *llm.Client
	if cfg.LLM.Enabled() {
		llmClient, err = llm.New(cfg.LLM, nil)
		if err != nil {
			log.Fatalf("failed to construct llm client: %v", err)
		}
		slog.Info("llm fallback enabled", "provider", cfg.LLM.Provider, "model", cfg.LLM.Model)
	} else {
		slog.Info("llm fallback disabled: no api key env configured")
	}

	queue := agent.NewFactQueue()
	escalationRequests := make(chan agent.EscalationRequest, 64)
	escalationDecisions := make(chan command.EscalationDecision, 64)

	loop := agent.New(queue, eventLog, agent.Config{
		Runbooks:          runbooks,
		LLM:               llmClient,
		MaxReplanAttempts: cfg.MaxReplanAttempts,
		FactWindowSize:    cfg.FactWindowSize,
	}, defaultToolExecutor, escalationRequests)

	go loop.Run(ctx)
	go logEscalationRequests(ctx, escalationRequests)

	cmds := &command.Commands{
		Log:         eventLog,
		Runbooks:    runbooks,
		LLM:         llmClient,
		Escalations: escalationDecisions,
	}
	go applyEscalationDecisions(ctx, eventLog, escalationDecisions)

	disp, err := dispatcher.New(ctx, eventLog, noopSink{}, cfg.DispatcherInterval)
	if err != nil {
		log.Fatalf("failed to start dispatcher: %v", err)
	}
	go disp.Run(ctx)

	hooks := webhook.NewHandlers(queue)
	server := api.NewServer(cmds, hooks)

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("error shutting down http server", "error", err)
		}
		queue.Close()
	}()

	slog.Info("incident-agent listening", "addr", cfg.HTTPAddr, "events_db", cfg.EventsDBPath)
	if err := server.Start(cfg.HTTPAddr); err != nil && err != http.ErrServerClosed {
		log.Fatalf("http server error: %v", err)
	}
}

// defaultToolExecutor is a placeholder process-level tool executor: the
// real executor (kubectl rollout, a runbook automation API, etc.) is
// outside this module's scope and is expected to be swapped in by
// deployers. It reports every step as immediately successful.
func defaultToolExecutor(step runbook.ActionSchema) (json.RawMessage, error) {
	return json.Marshal(map[string]string{"status": "ok", "tool": step.Name})
}

func logEscalationRequests(ctx context.Context, requests <-chan agent.EscalationRequest) {
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-requests:
			if !ok {
				return
			}
			slog.Warn("incident escalated", "incident_id", req.IncidentID, "reason", req.Reason, "correlation_id", req.CorrelationID)
		}
	}
}

func applyEscalationDecisions(ctx context.Context, eventLog *eventlog.Log, decisions <-chan command.EscalationDecision) {
	for {
		select {
		case <-ctx.Done():
			return
		case decision, ok := <-decisions:
			if !ok {
				return
			}
			if err := command.ApplyEscalationResponse(ctx, eventLog, nil, decision); err != nil {
				slog.Error("failed to apply escalation response", "incident_id", decision.IncidentID, "error", err)
			}
		}
	}
}

// noopSink discards dispatcher notifications; used until a UI is attached.
type noopSink struct{}

func (noopSink) EmitJSON(string, any) {}
