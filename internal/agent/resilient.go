package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"

	"github.com/supportbot/internal/llm"
	"github.com/supportbot/internal/logging"
	"github.com/supportbot/internal/retry"
)

// ResilientOptions tunes the retry and timeout behavior of the resilient agent.
type ResilientOptions struct {
	CallTimeout time.Duration
	RetryConfig retry.RetryConfig
}

// DefaultResilientOptions returns the standard production settings.
func DefaultResilientOptions() ResilientOptions {
	return ResilientOptions{
		CallTimeout: 120 * time.Second,
		RetryConfig: retry.AgentRetryConfig(),
	}
}

type caller interface {
	Call(ctx context.Context, input string, options ...llms.CallOption) (string, error)
}

// ResilientAgent wraps a Connector with retry, per-call timeouts and a JSON
// repair path. A response whose payload cannot be parsed even after repair is
// re-asked once with the validation error attached before the request fails.
type ResilientAgent struct {
	connector caller
	opts      ResilientOptions
}

// NewResilientAgent creates a resilient agent on top of a connector.
func NewResilientAgent(connector *Connector, opts ResilientOptions) *ResilientAgent {
	return newResilientAgent(connector, opts)
}

func newResilientAgent(connector caller, opts ResilientOptions) *ResilientAgent {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultResilientOptions().CallTimeout
	}
	return &ResilientAgent{connector: connector, opts: opts}
}

// GenerateStructured implements Agent.
func (a *ResilientAgent) GenerateStructured(ctx context.Context, req Request, target interface{}) (Usage, error) {
	start := time.Now()
	prompt := buildPrompt(req)

	usage := Usage{PromptChars: len(prompt)}

	raw, attempts, err := a.callWithRetry(ctx, req.Phase, prompt)
	usage.Attempts = attempts
	if err != nil {
		usage.Latency = time.Since(start)
		return usage, fmt.Errorf("%s generation failed: %w", req.Phase, err)
	}
	usage.ResponseChars = len(raw)

	result, parseErr := llm.ProcessAgentResponse(raw, target)
	if result.RepairStats.WasRepaired {
		usage.Repaired = true
	}
	if parseErr == nil {
		usage.Latency = time.Since(start)
		return usage, nil
	}

	// One repair re-ask: hand the model its own response and the parse error
	log.Debug().
		Str("phase", req.Phase).
		Err(parseErr).
		Msg("Structured response invalid, issuing repair re-ask")
	if logger := logging.GetCurrentLogger(); logger != nil {
		logger.Log("repair re-ask for phase %s: %v", req.Phase, parseErr)
	}

	repairPrompt := buildRepairPrompt(req, raw, parseErr)
	usage.PromptChars += len(repairPrompt)
	usage.Repaired = true

	raw, attempts, err = a.callWithRetry(ctx, req.Phase+"_repair", repairPrompt)
	usage.Attempts += attempts
	if err != nil {
		usage.Latency = time.Since(start)
		return usage, fmt.Errorf("%s repair re-ask failed: %w", req.Phase, err)
	}
	usage.ResponseChars += len(raw)

	if _, err := llm.ProcessAgentResponse(raw, target); err != nil {
		usage.Latency = time.Since(start)
		return usage, fmt.Errorf("%s response invalid after repair re-ask: %w", req.Phase, err)
	}

	usage.Latency = time.Since(start)
	return usage, nil
}

func (a *ResilientAgent) callWithRetry(ctx context.Context, phase, prompt string) (string, int, error) {
	var raw string

	result := retry.RetryWithBackoff(ctx, a.opts.RetryConfig, func() error {
		callCtx, cancel := context.WithTimeout(ctx, a.opts.CallTimeout)
		defer cancel()

		response, err := a.connector.Call(callCtx, prompt)
		if err != nil {
			log.Debug().Str("phase", phase).Err(err).Msg("Model call failed")
			return err
		}
		raw = response
		return nil
	})

	if !result.Success {
		return "", result.Attempts, result.LastError
	}
	return raw, result.Attempts, nil
}

func buildPrompt(req Request) string {
	var b strings.Builder
	if req.System != "" {
		b.WriteString(req.System)
		b.WriteString("\n\n")
	}
	b.WriteString(req.User)
	b.WriteString("\n\nRespond with JSON only, no prose.")
	if req.Schema != "" {
		b.WriteString(" The response must match this shape:\n")
		b.WriteString(req.Schema)
	}
	return b.String()
}

func buildRepairPrompt(req Request, raw string, parseErr error) string {
	var b strings.Builder
	b.WriteString(buildPrompt(req))
	b.WriteString("\n\nYour previous response could not be parsed:\n")
	b.WriteString(raw)
	b.WriteString(fmt.Sprintf("\n\nParse error: %v\nRespond again with valid JSON only.", parseErr))
	return b.String()
}
