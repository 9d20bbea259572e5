// Package oracle implements the Planner Oracle: a stateless goal+UI-summary
// to-plan translator, backed by a pluggable LLMClient.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"pilot/internal/actions"
	"pilot/internal/config"
	"pilot/internal/logging"
)

// Planner turns a goal and a UI summary into a validated actions.Plan. It
// retries malformed output with light JSON repairs before giving up.
type Planner struct {
	client     LLMClient
	maxRetries int
}

// New builds a Planner for the backend selected by cfg.
func New(cfg config.OracleConfig) (*Planner, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	maxRetries := cfg.Ollama.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Planner{client: client, maxRetries: maxRetries}, nil
}

// NewWithClient builds a Planner around an already-constructed client,
// primarily for tests that substitute a fake LLMClient.
func NewWithClient(client LLMClient, maxRetries int) *Planner {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Planner{client: client, maxRetries: maxRetries}
}

// GeneratePlan calls the backend, validating and light-repairing its output,
// retrying up to maxRetries times. goal must be byte-identical across every
// call for one task, including recovery calls.
func (p *Planner) GeneratePlan(ctx context.Context, goal, uiContext string, errCtx *ErrorContext) (actions.Plan, error) {
	prompt := BuildPrompt(goal, uiContext, errCtx)

	var lastErr error
	for attempt := 0; attempt < p.maxRetries; attempt++ {
		raw, err := p.client.Complete(ctx, systemPrompt, prompt)
		if err != nil {
			lastErr = fmt.Errorf("oracle: backend call failed (attempt %d): %w", attempt+1, err)
			logging.OracleWarn("%v", lastErr)
			if !sleepOrDone(ctx, 2*time.Second) {
				return nil, ctx.Err()
			}
			continue
		}

		plan, err := parsePlan(raw)
		if err != nil {
			lastErr = fmt.Errorf("oracle: parse failed (attempt %d): %w", attempt+1, err)
			logging.OracleWarn("%v", lastErr)
			prompt += "\n\nREMINDER: Return ONLY valid JSON array, no explanations or markdown."
			if !sleepOrDone(ctx, 1*time.Second) {
				return nil, ctx.Err()
			}
			continue
		}

		if err := plan.Validate(); err != nil {
			lastErr = fmt.Errorf("oracle: invalid plan (attempt %d): %w", attempt+1, err)
			logging.OracleWarn("%v", lastErr)
			if !sleepOrDone(ctx, 1*time.Second) {
				return nil, ctx.Err()
			}
			continue
		}

		logging.Oracle("generated %d step plan (attempt %d)", len(plan), attempt+1)
		for i, a := range plan {
			logging.OracleDebug("  %d. %s", i+1, a.Action)
		}
		return plan, nil
	}

	return nil, fmt.Errorf("oracle: failed to generate a valid plan after %d attempts: %w", p.maxRetries, lastErr)
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

// parsePlan extracts a JSON array from raw, applying light repairs
// (quote normalization, trailing comma removal) before giving up.
func parsePlan(raw string) (actions.Plan, error) {
	text := stripCodeFences(raw)

	start := strings.IndexByte(text, '[')
	end := strings.LastIndexByte(text, ']')
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON array found in response")
	}
	candidate := text[start : end+1]

	var plan actions.Plan
	if err := json.Unmarshal([]byte(candidate), &plan); err == nil {
		return plan, nil
	}

	repaired := strings.ReplaceAll(candidate, "'", "\"")
	repaired = trailingCommaRe.ReplaceAllString(repaired, "$1")
	if err := json.Unmarshal([]byte(repaired), &plan); err != nil {
		return nil, fmt.Errorf("could not parse JSON array even after repair: %w", err)
	}
	return plan, nil
}

var codeFenceRe = regexp.MustCompile("```(?:json)?")

func stripCodeFences(s string) string {
	return strings.TrimSpace(codeFenceRe.ReplaceAllString(s, ""))
}
