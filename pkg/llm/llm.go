// Package llm provides the two structured-extraction calls the agent makes
// against an opaque LLM provider: interpreting recent facts into a
// hypothesis/goal/candidate-actions triple, and validating a proposed
// action list against the whitelist of known actions. The LLM only ever
// proposes; this package enforces that the executor never receives an
// action the whitelist does not contain.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/sgunadhya/incident-agent/pkg/fact"
	"github.com/sgunadhya/incident-agent/pkg/runbook"
)

// Config describes which provider/model to call and where to find the key.
type Config struct {
	Provider    string
	Model       string
	APIKeyEnv   string
	Temperature float64
}

// DefaultConfig returns the spec's documented environment-variable defaults.
func DefaultConfig() Config {
	return Config{
		Provider:    "openai",
		Model:       "gpt-4o-mini",
		APIKeyEnv:   "OPENAI_API_KEY",
		Temperature: 0.2,
	}
}

// ConfigFromEnv reads LLM_PROVIDER, LLM_MODEL, LLM_API_KEY_ENV and
// LLM_TEMPERATURE, falling back to DefaultConfig for anything unset.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("LLM_API_KEY_ENV"); v != "" {
		cfg.APIKeyEnv = v
	}
	if v := os.Getenv("LLM_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Temperature = f
		}
	}
	return cfg
}

// Enabled reports whether the env var named by cfg.APIKeyEnv is set; the
// agent loop treats the LLM as disabled otherwise.
func (cfg Config) Enabled() bool {
	return os.Getenv(cfg.APIKeyEnv) != ""
}

// UnsupportedProviderError is returned when Config.Provider names a
// provider this implementation does not know how to call.
type UnsupportedProviderError struct{ Provider string }

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("unsupported llm provider '%s'", e.Provider)
}

// MissingEnvError is returned by New when it has to build its own chat
// client and the configured API key env var is unset.
type MissingEnvError struct{ Var string }

func (e *MissingEnvError) Error() string {
	return fmt.Sprintf("missing env var %s", e.Var)
}

// ChatClient captures the subset of the go-openai client this package
// calls, so tests can substitute a fake.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client is the structured-extraction client used by the agent loop.
type Client struct {
	chat ChatClient
	cfg  Config
}

// New builds a Client around chat after checking that the configured
// provider is "openai". When chat is nil it builds a go-openai client from
// the key in the env var named by cfg.APIKeyEnv, returning MissingEnvError
// if that var is unset; a non-nil chat is used without checking the key.
func New(cfg Config, chat ChatClient) (*Client, error) {
	if strings.ToLower(cfg.Provider) != "openai" {
		return nil, &UnsupportedProviderError{Provider: cfg.Provider}
	}
	if chat == nil {
		if os.Getenv(cfg.APIKeyEnv) == "" {
			return nil, &MissingEnvError{Var: cfg.APIKeyEnv}
		}
		chat = openai.NewClient(os.Getenv(cfg.APIKeyEnv))
	}
	return &Client{chat: chat, cfg: cfg}, nil
}

// Interpretation is the structured output of Interpret.
type Interpretation struct {
	Hypothesis       string   `json:"hypothesis"`
	Goal             string   `json:"goal"`
	CandidateActions []string `json:"candidate_actions"`
}

// Interpret asks the model for a hypothesis, goal, and candidate action
// names given the agent's recent facts. An empty hypothesis/goal from the
// model is coerced to the documented defaults.
func (c *Client) Interpret(ctx context.Context, recentFacts []fact.Fact) (Interpretation, error) {
	factsJSON, err := json.Marshal(recentFacts)
	if err != nil {
		return Interpretation{}, fmt.Errorf("marshal facts: %w", err)
	}
	prompt := fmt.Sprintf(
		"Analyze the incident context and return JSON only.\n"+
			"Schema: {\"hypothesis\":\"string\",\"goal\":\"string\",\"candidate_actions\":[\"string\"]}\n"+
			"Facts:\n%s", string(factsJSON))

	raw, err := c.runPrompt(ctx, "You are an incident interpreter.", prompt)
	if err != nil {
		return Interpretation{}, err
	}
	return parseInterpretation(raw)
}

// ProposeAndValidate asks the model to choose action names, then retains
// only the names present in allActions (intersection by exact name). If
// the intersection is empty, it falls back to every allActions entry whose
// name is in candidateActions.
func (c *Client) ProposeAndValidate(ctx context.Context, hypothesis, goal string, candidateActions []string, allActions []runbook.ActionSchema) ([]runbook.ActionSchema, error) {
	candidateJSON, err := json.Marshal(candidateActions)
	if err != nil {
		return nil, fmt.Errorf("marshal candidate actions: %w", err)
	}
	allNames := make([]string, len(allActions))
	for i, a := range allActions {
		allNames[i] = a.Name
	}
	allNamesJSON, err := json.Marshal(allNames)
	if err != nil {
		return nil, fmt.Errorf("marshal all actions: %w", err)
	}

	prompt := fmt.Sprintf(
		"Return JSON only.\nSchema: {\"actions\":[\"string\"]}\nhypothesis=%s\ngoal=%s\ncandidate_actions=%s\navailable_actions=%s",
		hypothesis, goal, string(candidateJSON), string(allNamesJSON))

	raw, err := c.runPrompt(ctx, "You are an incident planner.", prompt)
	if err != nil {
		return nil, err
	}
	names, err := parseActionList(raw)
	if err != nil {
		return nil, err
	}

	var selected []runbook.ActionSchema
	for _, name := range names {
		for _, a := range allActions {
			if a.Name == name {
				selected = append(selected, a)
				break
			}
		}
	}
	if len(selected) == 0 {
		candidateSet := make(map[string]bool, len(candidateActions))
		for _, c := range candidateActions {
			candidateSet[c] = true
		}
		for _, a := range allActions {
			if candidateSet[a.Name] {
				selected = append(selected, a)
			}
		}
	}
	return selected, nil
}

// SuggestedFact is one entry returned by SuggestFacts.
type SuggestedFact struct {
	FactID    string   `json:"fact_id"`
	Title     string   `json:"title"`
	Severity  string   `json:"severity"`
	Tags      []string `json:"tags"`
	Rationale string   `json:"rationale"`
}

// SuggestFacts asks the model to propose up to three additional facts
// worth tracking given the agent's recent facts. Missing fields in the
// model's response are defaulted.
func (c *Client) SuggestFacts(ctx context.Context, recentFacts []fact.Fact) ([]SuggestedFact, error) {
	factsJSON, err := json.Marshal(recentFacts)
	if err != nil {
		return nil, fmt.Errorf("marshal facts: %w", err)
	}
	prompt := fmt.Sprintf(
		"Return JSON only, at most 3 entries.\n"+
			"Schema: {\"suggestions\":[{\"fact_id\":\"string\",\"title\":\"string\",\"severity\":\"string\",\"tags\":[\"string\"],\"rationale\":\"string\"}]}\n"+
			"Facts:\n%s", string(factsJSON))

	raw, err := c.runPrompt(ctx, "You are an incident triage assistant.", prompt)
	if err != nil {
		return nil, err
	}
	return parseSuggestions(raw)
}

func (c *Client) runPrompt(ctx context.Context, preamble, prompt string) (string, error) {
	resp, err := c.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: preamble},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: float32(c.cfg.Temperature),
	})
	if err != nil {
		return "", fmt.Errorf("llm prompt failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm prompt failed: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

func parseInterpretation(raw string) (Interpretation, error) {
	var v struct {
		Hypothesis       string   `json:"hypothesis"`
		Goal             string   `json:"goal"`
		CandidateActions []string `json:"candidate_actions"`
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return Interpretation{}, fmt.Errorf("invalid llm interpretation json: %w", err)
	}
	if v.Hypothesis == "" {
		v.Hypothesis = "unknown"
	}
	if v.Goal == "" {
		v.Goal = "recovery_verified"
	}
	return Interpretation{Hypothesis: v.Hypothesis, Goal: v.Goal, CandidateActions: v.CandidateActions}, nil
}

func parseActionList(raw string) ([]string, error) {
	var v struct {
		Actions []string `json:"actions"`
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("invalid llm action-list json: %w", err)
	}
	return v.Actions, nil
}

func parseSuggestions(raw string) ([]SuggestedFact, error) {
	var v struct {
		Suggestions []SuggestedFact `json:"suggestions"`
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("invalid llm suggestions json: %w", err)
	}
	for i := range v.Suggestions {
		if v.Suggestions[i].FactID == "" {
			v.Suggestions[i].FactID = "suggested-fact"
		}
		if v.Suggestions[i].Title == "" {
			v.Suggestions[i].Title = "Suggested fact"
		}
		if v.Suggestions[i].Severity == "" {
			v.Suggestions[i].Severity = "high"
		}
		if v.Suggestions[i].Rationale == "" {
			v.Suggestions[i].Rationale = "llm suggestion"
		}
	}
	if len(v.Suggestions) > 3 {
		v.Suggestions = v.Suggestions[:3]
	}
	return v.Suggestions, nil
}
