package pipeline

import (
	"context"
	"errors"

	"auto_xhs_publisher/generator"
	"auto_xhs_publisher/media"
	"auto_xhs_publisher/publisher"
)

// Class is the failure taxonomy driving retry decisions.
type Class int

const (
	// Transient failures are expected to resolve themselves and are
	// retried with bounded backoff.
	Transient Class = iota
	// FatalRun aborts the current run; the next trigger proceeds
	// normally.
	FatalRun
	// FatalSession aborts the run and flags that external
	// re-authentication is required.
	FatalSession
)

func (c Class) String() string {
	switch c {
	case FatalRun:
		return "fatal-run"
	case FatalSession:
		return "fatal-session"
	default:
		return "transient"
	}
}

// ErrNoTopics reports that retrieval produced nothing to write about.
var ErrNoTopics = errors.New("no topics retrieved")

// ErrRetriesExhausted wraps a transient failure that used up its
// attempt budget; at that point it terminates the run.
var ErrRetriesExhausted = errors.New("retry attempts exhausted")

// Classify maps an error onto the taxonomy. Unknown errors (network
// hiccups, rate limits, collaborator 5xx) default to transient.
func Classify(err error) Class {
	switch {
	case errors.Is(err, publisher.ErrAuthExpired):
		return FatalSession
	case errors.Is(err, generator.ErrDraftInvalid),
		errors.Is(err, generator.ErrCompressDepth),
		errors.Is(err, media.ErrInsufficientMedia),
		errors.Is(err, ErrNoTopics),
		errors.Is(err, ErrRetriesExhausted),
		errors.Is(err, context.Canceled):
		return FatalRun
	default:
		return Transient
	}
}

// Cause renders a stable machine-readable cause for the run log.
func Cause(err error) string {
	switch {
	case errors.Is(err, publisher.ErrAuthExpired):
		return "auth-expired"
	case errors.Is(err, media.ErrInsufficientMedia):
		return "insufficient-valid-media"
	case errors.Is(err, generator.ErrDraftInvalid):
		return "draft-invalid"
	case errors.Is(err, generator.ErrCompressDepth):
		return "compression-depth-exceeded"
	case errors.Is(err, ErrNoTopics):
		return "no-topics"
	case errors.Is(err, ErrRetriesExhausted):
		return "retries-exhausted"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
