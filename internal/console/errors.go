// File: internal/console/errors.go
package console

import (
	"errors"
	"fmt"
)

// Sentinel errors for benign control-flow outcomes.
var (
	// ErrReviewInFlight rejects a review decision submitted while a
	// previous decision's resume round-trip is still outstanding.
	ErrReviewInFlight = errors.New("a review decision is already in flight")

	// ErrSuperseded marks a run displaced by a newer submission. The
	// displaced caller's state was discarded; nothing is wrong.
	ErrSuperseded = errors.New("run superseded by a newer submission")
)

// TransportError is a stream or network level failure: a dropped
// connection, a malformed event payload, or a non-success HTTP status.
// The run is treated as terminated without populating the active list.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("pipeline transport failure: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// PipelineError is a business failure reported by the pipeline itself,
// either as an error event or as a terminal result with error status. The
// message is the server's own description.
type PipelineError struct {
	Message string
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline reported an error: %s", e.Message)
}

// ResumeError is a failure of the HITL resume round-trip. The review gate
// stays open with its token intact so the analyst can retry.
type ResumeError struct {
	Err error
}

func (e *ResumeError) Error() string {
	return fmt.Sprintf("review resume failed: %v", e.Err)
}

func (e *ResumeError) Unwrap() error { return e.Err }
