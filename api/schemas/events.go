package schemas

import (
	"fmt"

	json "github.com/json-iterator/go" // Use json-iterator for consistency and performance
)

// -- Analysis Event Schemas --

// Wire names for the closed set of analysis stream events.
const (
	EventAgentStart    = "agent_start"
	EventAgentComplete = "agent_complete"
	EventComplete      = "complete"
	EventHITLRequired  = "hitl_required"
	EventError         = "error"
)

// AnalysisEvent is the closed set of events one pipeline invocation can
// emit. The unexported marker keeps the set sealed so consumers dispatch
// with an exhaustive type switch instead of string comparison.
type AnalysisEvent interface {
	isAnalysisEvent()
}

// AgentStartEvent marks a named pipeline stage as running.
type AgentStartEvent struct {
	Stage string `json:"stage"`
}

// AgentCompleteEvent marks a named pipeline stage as complete and carries
// its measured cost.
type AgentCompleteEvent struct {
	Stage          string  `json:"stage"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	CostUSD        float64 `json:"cost_usd"`
}

// RunCompleteEvent is the terminal event of a run that finished on its own.
type RunCompleteEvent struct {
	Result RunResult
}

// HITLRequiredEvent is the terminal event of a run paused for review.
type HITLRequiredEvent struct {
	Result RunResult
}

// RunErrorEvent is the terminal event of a run that failed before producing
// a result payload.
type RunErrorEvent struct {
	Message string `json:"message"`
}

func (AgentStartEvent) isAnalysisEvent()    {}
func (AgentCompleteEvent) isAnalysisEvent() {}
func (RunCompleteEvent) isAnalysisEvent()   {}
func (HITLRequiredEvent) isAnalysisEvent()  {}
func (RunErrorEvent) isAnalysisEvent()      {}

// DecodeAnalysisEvent maps a wire event name and its JSON payload to the
// typed event. Unrecognized names decode to (nil, nil) and are skipped by
// consumers; a malformed payload for a recognized name is an error.
func DecodeAnalysisEvent(name string, data []byte) (AnalysisEvent, error) {
	switch name {
	case EventAgentStart:
		var ev AgentStartEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decoding %s event: %w", name, err)
		}
		return ev, nil
	case EventAgentComplete:
		var ev AgentCompleteEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decoding %s event: %w", name, err)
		}
		return ev, nil
	case EventComplete:
		var result RunResult
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, fmt.Errorf("decoding %s event: %w", name, err)
		}
		return RunCompleteEvent{Result: result}, nil
	case EventHITLRequired:
		var result RunResult
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, fmt.Errorf("decoding %s event: %w", name, err)
		}
		return HITLRequiredEvent{Result: result}, nil
	case EventError:
		var ev RunErrorEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decoding %s event: %w", name, err)
		}
		return ev, nil
	default:
		return nil, nil
	}
}

// Terminal reports whether ev ends the stream it arrived on.
func Terminal(ev AnalysisEvent) bool {
	switch ev.(type) {
	case RunCompleteEvent, HITLRequiredEvent, RunErrorEvent:
		return true
	}
	return false
}
