package orchestration

import (
	"errors"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrDetectionTimeout is recorded when the candidate stays silent for the
	// whole no-response window. The controller re-prompts.
	ErrDetectionTimeout = errors.New("no speech detected")
	// ErrPlannerFailure is recorded when the planner had to fall back to the
	// question bank. The exchange is neither scored nor counted.
	ErrPlannerFailure = errors.New("response planner failed")
	// ErrSynthesisFailure is recorded when an interviewer line could not be
	// turned into audio.
	ErrSynthesisFailure = errors.New("speech synthesis failed")
	// ErrTransportDrop ends the session as aborted.
	ErrTransportDrop = errors.New("transport dropped")
	// ErrSessionTimeout closes the session when its wall-clock limit expires.
	ErrSessionTimeout = errors.New("session time limit reached")

	ErrSessionAborted   = errors.New("session aborted")
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionEnded     = errors.New("session already ended")
	ErrTooManySessions  = errors.New("too many concurrent sessions")
	ErrManagerClosed    = errors.New("session manager closed")
	ErrPoolClosed       = errors.New("service pool closed")
	ErrMissingCandidate = errors.New("candidate name is required")
	ErrInternal         = errors.New("internal session error")
)

// Reasons recorded as a session's end reason.
const (
	EndReasonCompleted     = "completed"
	EndReasonTimeout       = "session_timeout"
	EndReasonTransportDrop = "transport_drop"
	EndReasonAborted       = "aborted"
	EndReasonShutdown      = "shutdown"
	EndReasonInternal      = "internal_error"
)

func endReason(err error) string {
	switch {
	case err == nil:
		return EndReasonCompleted
	case errors.Is(err, ErrSessionTimeout):
		return EndReasonTimeout
	case errors.Is(err, ErrTransportDrop):
		return EndReasonTransportDrop
	case errors.Is(err, ErrManagerClosed):
		return EndReasonShutdown
	case errors.Is(err, ErrInternal):
		return EndReasonInternal
	default:
		return EndReasonAborted
	}
}

func recordError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
