// File: internal/stage/stage.go

// Package stage tracks the progress of the fixed analysis pipeline stages
// for a single run.
package stage

// Status is the lifecycle state of a single pipeline stage.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
)

// pipelineStages is the fixed execution order of the remote pipeline's
// agents. Stream events reference stages by these names.
var pipelineStages = []string{
	"ingest",
	"detect",
	"validate",
	"classify",
	"report",
}

// Names returns the pipeline stage names in execution order.
func Names() []string {
	out := make([]string, len(pipelineStages))
	copy(out, pipelineStages)
	return out
}

// Stage is the tracked state of one pipeline stage.
type Stage struct {
	Name   string `json:"name"`
	Status Status `json:"status"`

	// ElapsedSeconds and CostUSD are reported by the pipeline when the
	// stage completes. Zero until then.
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	CostUSD        float64 `json:"cost_usd"`
}

// Board holds the status of every pipeline stage for the current run.
// Transitions only move forward: pending to running to complete. The board
// is not safe for concurrent use; callers serialize access.
type Board struct {
	order  []string
	byName map[string]*Stage
}

// NewBoard creates a board with every pipeline stage pending.
func NewBoard() *Board {
	b := &Board{
		order:  pipelineStages,
		byName: make(map[string]*Stage, len(pipelineStages)),
	}
	for _, name := range pipelineStages {
		b.byName[name] = &Stage{Name: name, Status: StatusPending}
	}
	return b
}

// MarkRunning transitions a pending stage to running. It reports false when
// the stage name is unknown or the stage has already advanced past pending.
func (b *Board) MarkRunning(name string) bool {
	s, ok := b.byName[name]
	if !ok || s.Status != StatusPending {
		return false
	}
	s.Status = StatusRunning
	return true
}

// MarkComplete transitions a stage to complete and records its reported
// timing and cost. A stage may complete directly from pending when its
// start event was never observed. Completing an already complete stage
// reports false and leaves the recorded values untouched.
func (b *Board) MarkComplete(name string, elapsedSeconds, costUSD float64) bool {
	s, ok := b.byName[name]
	if !ok || s.Status == StatusComplete {
		return false
	}
	s.Status = StatusComplete
	s.ElapsedSeconds = elapsedSeconds
	s.CostUSD = costUSD
	return true
}

// CompleteRemaining forces every stage that has not finished to complete.
// Used when the run reaches a terminal outcome before all per-stage events
// arrived.
func (b *Board) CompleteRemaining() {
	for _, name := range b.order {
		s := b.byName[name]
		if s.Status != StatusComplete {
			s.Status = StatusComplete
		}
	}
}

// Reset returns every stage to pending and clears recorded values.
func (b *Board) Reset() {
	for _, name := range b.order {
		s := b.byName[name]
		s.Status = StatusPending
		s.ElapsedSeconds = 0
		s.CostUSD = 0
	}
}

// Stages returns value copies of every stage in execution order.
func (b *Board) Stages() []Stage {
	out := make([]Stage, 0, len(b.order))
	for _, name := range b.order {
		out = append(out, *b.byName[name])
	}
	return out
}

// Get returns a copy of the named stage.
func (b *Board) Get(name string) (Stage, bool) {
	s, ok := b.byName[name]
	if !ok {
		return Stage{}, false
	}
	return *s, true
}

// Done reports whether every stage has completed.
func (b *Board) Done() bool {
	for _, name := range b.order {
		if b.byName[name].Status != StatusComplete {
			return false
		}
	}
	return true
}

// TotalCostUSD sums the reported cost across completed stages.
func (b *Board) TotalCostUSD() float64 {
	var total float64
	for _, name := range b.order {
		total += b.byName[name].CostUSD
	}
	return total
}
