package agent

import "errors"

var (
	// ErrIterationBudget: the engine asked for more tool dispatches than allowed.
	ErrIterationBudget = errors.New("agent: tool iteration budget exhausted")
	// ErrMalformedOutput: the final answer did not parse, even after correction.
	ErrMalformedOutput = errors.New("agent: malformed final output")
	// ErrEmptyReply: the engine returned neither tool calls nor text.
	ErrEmptyReply = errors.New("agent: engine returned empty text")
	// ErrLeadInvariant: the decision disagrees with the persistence calls made.
	ErrLeadInvariant = errors.New("agent: lead persistence invariant violated")
)
