package schemas

import "time"

// -- Run Result Schemas --

// RunStatus is the terminal status of one analysis pipeline invocation.
type RunStatus string

const (
	RunCompleted    RunStatus = "completed"     // Pipeline finished and produced findings.
	RunHITLRequired RunStatus = "hitl_required" // Pipeline paused awaiting an analyst decision.
	RunErrored      RunStatus = "error"         // Pipeline reported a business failure.
)

// Valid reports whether s is a recognized terminal status.
func (s RunStatus) Valid() bool {
	switch s {
	case RunCompleted, RunHITLRequired, RunErrored:
		return true
	}
	return false
}

// RunResult is the terminal payload of a pipeline stream or a HITL resume
// round-trip.
type RunResult struct {
	Status RunStatus `json:"status"`

	// Findings is the full result set; meaningful unless Status is error.
	Findings []Finding `json:"findings,omitempty"`

	// Pending is the subset awaiting review; only set for hitl_required.
	Pending []Finding `json:"pending,omitempty"`

	// ThreadToken is the opaque resumption token used to continue a paused
	// run. Only set for hitl_required.
	ThreadToken string `json:"thread_token,omitempty"`

	// Message carries the server-provided failure description when Status
	// is error.
	Message string `json:"message,omitempty"`
}

// -- HITL Schemas --

// Decision is an analyst's verdict on a paused run.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Valid reports whether d is a recognized decision.
func (d Decision) Valid() bool {
	return d == DecisionApprove || d == DecisionReject
}

// ResumeRequest is the body of the HITL resume call.
type ResumeRequest struct {
	ThreadToken string   `json:"thread_token"`
	Decision    Decision `json:"decision"`
	Notes       string   `json:"notes,omitempty"`
}

// -- Report Schemas --

// TriageReport is the exportable snapshot of console triage state.
type TriageReport struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Input       string            `json:"input,omitempty"`
	Result      *RunResult        `json:"result,omitempty"`
	Active      []Finding         `json:"active"`
	Snoozed     []Finding         `json:"snoozed"`
	Ignored     []Finding         `json:"ignored"`
	Solved      []Finding         `json:"solved"`
	Counts      map[RiskLevel]int `json:"counts_by_risk,omitempty"`
}
