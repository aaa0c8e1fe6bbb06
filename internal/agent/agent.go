// Package agent is the narrow request/response contract through which the
// triage core invokes its language model capability. The core hands over
// role-scoped prompt text plus the expected JSON shape and gets back a
// validated structured payload; prompt wording and model choice live behind
// this boundary.
package agent

import (
	"context"
	"time"
)

// Request is one structured generation request.
type Request struct {
	Phase  string // phase name, used for logging only
	System string // role-scoped system text
	User   string // current-turn user text; never concatenated bot history
	Schema string // description of the expected JSON payload
}

// Usage reports what one request cost.
type Usage struct {
	PromptChars   int
	ResponseChars int
	Latency       time.Duration
	Attempts      int
	Repaired      bool // JSON repair or a repair re-ask was needed
}

// Agent generates a structured response and unmarshals it into target.
// Implementations validate the response against the expected shape and apply
// a repair/retry path on validation failure; a final failure surfaces as an
// error (a phase failure), never silently.
type Agent interface {
	GenerateStructured(ctx context.Context, req Request, target interface{}) (Usage, error)
}
