// Package agentgateway is the core's only window onto the external reasoning
// Agent and, transitively, the Tool Gateway it drives. The core treats the
// Agent as the single function Agent(prompt, schema) -> typed_result that may
// fail transiently and may produce fewer results than requested; this
// package is the boundary, and nothing else in the repo talks to the model
// provider or inspects the Agent's internal tool-calling loop.
package agentgateway

import (
	"context"
	"encoding/json"
)

// Request is one Agent invocation: a system role, a task-specific prompt, and
// the typed output schema the Agent must answer with via forced tool use.
type Request struct {
	// System sets the worker-mode framing. The prompt builders put the
	// suppression list and the no-contact-fetching rule in Prompt, not here.
	System string
	// Prompt is the task-specific instruction (region, company, criteria).
	Prompt string
	// SchemaName is the structured-output tool name, e.g. "submit_companies".
	SchemaName string
	// SchemaDescription documents the tool for the model.
	SchemaDescription string
	// Schema is the JSON schema the Agent's structured answer must satisfy.
	Schema map[string]any
}

// Result is the outcome of one successful Agent call: the typed payload plus
// any Markdown artifact the Agent produced alongside it. The core never
// trusts free-form text for machine-consumed fields — Data is always the
// typed structured output: Markdown is stored only for human delivery.
type Result struct {
	// Data is the raw JSON the Agent returned for SchemaName, ready to
	// json.Unmarshal into the caller's expected struct.
	Data json.RawMessage
	// Artifact is the Agent's free-text narrative, if it returned one
	// alongside the tool call (e.g. the contact agent's Markdown report).
	Artifact string
}

// Agent is the contract the core depends on. An external LLM-driven planner
// invoked with a prompt and a typed output schema; opaque to the core beyond
// this one method. May return fewer results than requested — callers must
// tolerate partial yield, never treat it as an error on its own.
type Agent interface {
	Invoke(ctx context.Context, req Request) (*Result, error)
}
