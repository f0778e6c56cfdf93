package agents

import (
	"errors"
	"fmt"

	"github.com/ekaya-inc/ekaya-blueprint/pkg/models"
)

// Cause classifies why a stage invocation failed.
type Cause string

const (
	// CauseTimeout means the stage did not answer within the invoker timeout.
	CauseTimeout Cause = "timeout"
	// CauseUnreachable means the provider could not be called or rejected the call.
	CauseUnreachable Cause = "unreachable"
	// CauseInvalidResponse means the provider answered but no usable record was recovered.
	CauseInvalidResponse Cause = "invalid_response"
)

// AgentError is returned for every failure after the request reaches the provider boundary.
type AgentError struct {
	Stage models.Stage
	Cause Cause
	Err   error
}

func (e *AgentError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("agent %s: %s", e.Stage, e.Cause)
	}
	return fmt.Sprintf("agent %s: %s: %v", e.Stage, e.Cause, e.Err)
}

func (e *AgentError) Unwrap() error {
	return e.Err
}

// NewInvalidResponse wraps a shape failure found after parsing.
func NewInvalidResponse(stage models.Stage, err error) *AgentError {
	return &AgentError{Stage: stage, Cause: CauseInvalidResponse, Err: err}
}

// CauseOf returns the cause of the first *AgentError in err's chain.
func CauseOf(err error) (Cause, bool) {
	var ae *AgentError
	if errors.As(err, &ae) {
		return ae.Cause, true
	}
	return "", false
}

// IsAgentError returns true if err is or wraps an *AgentError.
func IsAgentError(err error) bool {
	_, ok := CauseOf(err)
	return ok
}

// String describes c for logs and error bodies.
func (c Cause) String() string {
	switch c {
	case CauseTimeout:
		return "the agent did not respond in time"
	case CauseUnreachable:
		return "the agent could not be reached"
	case CauseInvalidResponse:
		return "the agent returned an unusable response"
	default:
		return fmt.Sprintf("agent failure (%s)", string(c))
	}
}
