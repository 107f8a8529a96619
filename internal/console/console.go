// File: internal/console/console.go

// Package console is the orchestration core of the Argus client: it owns
// the stage board, the triage store, the review gate, and the scan watch
// state, and it is the only writer to any of them. Views read console
// state through accessors and never touch the underlying stores.
//
// Every analysis submission is stamped with a generation. Events from a
// superseded generation are discarded, so a stale stream can never
// corrupt the state of the run that replaced it.
package console

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nullvane/argus-cli/api/schemas"
	"github.com/nullvane/argus-cli/internal/metrics"
	"github.com/nullvane/argus-cli/internal/persist"
	"github.com/nullvane/argus-cli/internal/platform"
	"github.com/nullvane/argus-cli/internal/scanwatch"
	"github.com/nullvane/argus-cli/internal/stage"
	"github.com/nullvane/argus-cli/internal/triage"
)

// Pipeline is the remote analysis service as the console consumes it.
// *platform.Client satisfies it; tests substitute fakes.
type Pipeline interface {
	StreamAnalysis(ctx context.Context, input string) (platform.AnalysisStream, error)
	Resume(ctx context.Context, decision schemas.ResumeRequest) (*schemas.RunResult, error)
	StreamScan(ctx context.Context, target string) (platform.ScanStream, error)
}

// SnapshotStore persists the durable slice of console state.
// *persist.Store satisfies it.
type SnapshotStore interface {
	Load(ctx context.Context) (*persist.Snapshot, error)
	Save(ctx context.Context, snap *persist.Snapshot) error
}

// Options carries the console's dependencies. Pipeline and Snapshots are
// required; Logger and Metrics default to no-ops.
type Options struct {
	Pipeline  Pipeline
	Snapshots SnapshotStore
	Logger    *zap.Logger
	Metrics   metrics.Collector
}

// Findings is a point-in-time copy of all four triage collections.
type Findings struct {
	Active  []schemas.Finding
	Snoozed []schemas.Finding
	Ignored []schemas.Finding
	Solved  []schemas.Finding
}

// Console coordinates one analyst session. Safe for concurrent use: all
// state lives behind one mutex, and mutations happen either on the
// goroutine consuming the current stream or in synchronous analyst calls.
type Console struct {
	pipeline  Pipeline
	snapshots SnapshotStore
	logger    *zap.Logger
	metrics   metrics.Collector

	mu       sync.Mutex
	board    *stage.Board
	findings *triage.Store

	generation uint64
	cancelRun  context.CancelFunc
	inProgress bool
	lastErr    error
	lastInput  string
	result     *schemas.RunResult

	reviewToken    string
	resumeInFlight bool

	scanGeneration uint64
	cancelScan     context.CancelFunc
	scanning       bool
	lastScan       *schemas.ScanEvent
}

// New builds a console and rehydrates the durable triage state. Only the
// side collections and the last input text are restored; an unfinished
// run from a previous session is not resumable, so the active list and
// run result always start empty.
func New(ctx context.Context, opts Options) (*Console, error) {
	if opts.Pipeline == nil {
		return nil, errors.New("console requires a pipeline client")
	}
	if opts.Snapshots == nil {
		return nil, errors.New("console requires a snapshot store")
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	collector := opts.Metrics
	if collector == nil {
		collector = &metrics.NopCollector{}
	}

	c := &Console{
		pipeline:  opts.Pipeline,
		snapshots: opts.Snapshots,
		logger:    logger.Named("console"),
		metrics:   collector,
		board:     stage.NewBoard(),
		findings:  triage.NewStore(),
	}

	snap, err := c.snapshots.Load(ctx)
	if err != nil {
		// Load already degrades corrupt payloads to an empty snapshot; an
		// error here is unexpected but still not fatal to the session.
		c.logger.Warn("Snapshot load failed; starting empty.", zap.Error(err))
		snap = &persist.Snapshot{}
	}
	c.findings.Seed(snap.Snoozed, snap.Ignored, snap.Solved)
	c.lastInput = snap.LastInput
	c.updateFindingsGaugeLocked()

	return c, nil
}

// -- Analysis pipeline --

// SubmitAnalysis submits input to the remote pipeline and consumes the
// resulting event stream until a terminal event. It blocks for the whole
// run; callers that render progress read the accessors from another
// goroutine. A newer submission supersedes this one, in which case the
// return value is ErrSuperseded and no state from this run survives.
func (c *Console) SubmitAnalysis(ctx context.Context, input string) error {
	runCtx, gen := c.beginRun(ctx, input)

	stream, err := c.pipeline.StreamAnalysis(runCtx, input)
	if err != nil {
		return c.failRun(gen, &TransportError{Err: err})
	}
	defer stream.Close()

	for {
		ev, err := stream.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = errors.New("stream ended before a terminal event")
			}
			return c.failRun(gen, &TransportError{Err: err})
		}

		done, applyErr := c.applyEvent(gen, ev)
		if done || applyErr != nil {
			return applyErr
		}
	}
}

// beginRun supersedes any in-flight run and resets all per-run state
// before the new stream's first event can be observed.
func (c *Console) beginRun(ctx context.Context, input string) (context.Context, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancelRun != nil {
		c.cancelRun()
	}
	c.generation++
	gen := c.generation

	runCtx, cancel := context.WithCancel(ctx)
	c.cancelRun = cancel

	c.board.Reset()
	c.findings.ResetAll()
	c.lastErr = nil
	c.result = nil
	c.reviewToken = ""
	c.inProgress = true
	c.lastInput = input

	c.logger.Info("Analysis submitted.",
		zap.Uint64("generation", gen), zap.Int("input_bytes", len(input)))
	c.persistLocked()
	c.updateFindingsGaugeLocked()
	return runCtx, gen
}

// failRun records a transport failure for the given generation. A stale
// generation is discarded and reported as superseded.
func (c *Console) failRun(gen uint64, terr *TransportError) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		return ErrSuperseded
	}
	c.lastErr = terr
	c.inProgress = false
	c.metrics.CounterInc(metrics.RunsTotal.Name, "status", "transport_error")
	c.logger.Warn("Analysis stream failed.", zap.Error(terr.Err))
	return terr
}

// applyEvent folds one stream event into console state. It reports
// whether the event was terminal. Events from a superseded generation are
// ignored.
func (c *Console) applyEvent(gen uint64, ev schemas.AnalysisEvent) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		return true, ErrSuperseded
	}
	c.metrics.CounterInc(metrics.StreamEventsTotal.Name, "kind", eventKind(ev))

	switch ev := ev.(type) {
	case schemas.AgentStartEvent:
		c.board.MarkRunning(ev.Stage)
		return false, nil

	case schemas.AgentCompleteEvent:
		c.board.MarkComplete(ev.Stage, ev.ElapsedSeconds, ev.CostUSD)
		return false, nil

	case schemas.RunCompleteEvent:
		return true, c.finishRunLocked(ev.Result)

	case schemas.HITLRequiredEvent:
		return true, c.finishRunLocked(ev.Result)

	case schemas.RunErrorEvent:
		perr := &PipelineError{Message: ev.Message}
		c.lastErr = perr
		c.inProgress = false
		c.metrics.CounterInc(metrics.RunsTotal.Name, "status", "error")
		c.logger.Warn("Pipeline reported an error.", zap.String("message", ev.Message))
		return true, perr
	}
	return false, nil
}

// finishRunLocked applies a terminal run result: it stores the result,
// replaces the active list, finalizes the stage board, and opens the
// review gate when the pipeline paused for a decision. Also invoked by
// the resume path, so a multi-round review reuses the same logic.
func (c *Console) finishRunLocked(result schemas.RunResult) error {
	c.result = &result
	c.metrics.CounterInc(metrics.RunsTotal.Name, "status", string(result.Status))

	if result.Status == schemas.RunErrored {
		perr := &PipelineError{Message: result.Message}
		c.lastErr = perr
		c.inProgress = false
		c.persistLocked()
		c.logger.Warn("Run finished with an error result.", zap.String("message", result.Message))
		return perr
	}

	if result.Status == schemas.RunHITLRequired {
		c.findings.SetActive(result.Pending)
		c.reviewToken = result.ThreadToken
		c.logger.Info("Run paused for review.", zap.Int("pending", len(result.Pending)))
	} else {
		c.findings.SetActive(result.Findings)
		c.logger.Info("Run completed.", zap.Int("findings", len(result.Findings)))
	}

	// The terminal event is authoritative: stage display fully resolves
	// even when intermediate completion events were dropped.
	c.board.CompleteRemaining()
	c.inProgress = false
	c.persistLocked()
	c.updateFindingsGaugeLocked()
	return nil
}

// -- Review gate --

// SubmitScanDecision submits the analyst's verdict for a run paused at
// review and applies the resulting run result, which may itself pause for
// review again. With no review pending this is a no-op. Only one resume
// round-trip may be outstanding at a time; a concurrent call returns
// ErrReviewInFlight. A transport failure keeps the gate open so the
// analyst can retry.
func (c *Console) SubmitScanDecision(ctx context.Context, decision schemas.Decision, notes string) error {
	if !decision.Valid() {
		return errors.New("decision must be approve or reject")
	}

	c.mu.Lock()
	if c.reviewToken == "" {
		c.mu.Unlock()
		return nil
	}
	if c.resumeInFlight {
		c.mu.Unlock()
		return ErrReviewInFlight
	}
	c.resumeInFlight = true
	c.inProgress = true
	token := c.reviewToken
	gen := c.generation
	c.mu.Unlock()

	result, err := c.pipeline.Resume(ctx, schemas.ResumeRequest{
		ThreadToken: token,
		Decision:    decision,
		Notes:       notes,
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	c.resumeInFlight = false

	if gen != c.generation {
		return ErrSuperseded
	}
	if err != nil {
		rerr := &ResumeError{Err: err}
		c.lastErr = rerr
		c.inProgress = false
		c.logger.Warn("Review resume failed; gate stays open.", zap.Error(err))
		return rerr
	}

	c.metrics.CounterInc(metrics.ReviewDecisionsTotal.Name, "decision", string(decision))
	c.reviewToken = ""
	return c.finishRunLocked(*result)
}

// -- Cloud scan --

// StartScan starts a cloud scan against target and consumes its milestone
// stream until a terminal milestone. Blocks like SubmitAnalysis; the scan
// graph coloring is read through ScanStatuses while it runs. Scans are
// independent of the analysis pipeline and never touch the triage store.
func (c *Console) StartScan(ctx context.Context, target string) error {
	scanCtx, gen := c.beginScan(ctx)

	stream, err := c.pipeline.StreamScan(scanCtx, target)
	if err != nil {
		return c.failScan(gen, &TransportError{Err: err})
	}
	defer stream.Close()

	for {
		ev, err := stream.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = errors.New("scan stream ended before a terminal milestone")
			}
			return c.failScan(gen, &TransportError{Err: err})
		}

		done, applyErr := c.applyScanEvent(gen, ev)
		if done || applyErr != nil {
			return applyErr
		}
	}
}

func (c *Console) beginScan(ctx context.Context) (context.Context, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancelScan != nil {
		c.cancelScan()
	}
	c.scanGeneration++
	gen := c.scanGeneration

	scanCtx, cancel := context.WithCancel(ctx)
	c.cancelScan = cancel

	c.scanning = true
	c.lastScan = nil
	return scanCtx, gen
}

func (c *Console) failScan(gen uint64, terr *TransportError) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.scanGeneration {
		return ErrSuperseded
	}
	c.lastErr = terr
	c.scanning = false
	c.logger.Warn("Scan stream failed.", zap.Error(terr.Err))
	return terr
}

func (c *Console) applyScanEvent(gen uint64, ev *schemas.ScanEvent) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.scanGeneration {
		return true, ErrSuperseded
	}

	c.lastScan = ev
	c.metrics.CounterInc(metrics.ScanMilestonesTotal.Name, "milestone", string(ev.Milestone))

	switch ev.Milestone {
	case schemas.MilestoneError:
		c.scanning = false
		perr := &PipelineError{Message: ev.Message}
		c.lastErr = perr
		c.logger.Warn("Scan failed.", zap.String("message", ev.Message))
		return true, perr
	case schemas.MilestoneComplete:
		c.scanning = false
		c.logger.Info("Scan completed.",
			zap.Int("assets", ev.Assets), zap.Int("issues", ev.Issues))
		return true, nil
	}
	return false, nil
}

// -- Triage --

// MoveFinding moves an active finding into a side collection. Reports
// whether anything changed.
func (c *Console) MoveFinding(id string, dest triage.Bucket) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.findings.MoveTo(id, dest) {
		return false
	}
	c.metrics.CounterInc(metrics.FindingsMovedTotal.Name, "destination", string(dest))
	c.persistLocked()
	c.updateFindingsGaugeLocked()
	return true
}

// RestoreFinding moves a finding from a side collection back to active.
// Reports whether anything changed.
func (c *Console) RestoreFinding(id string, from triage.Bucket) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.findings.Restore(id, from) {
		return false
	}
	c.metrics.CounterInc(metrics.FindingsRestoredTotal.Name, "from", string(from))
	c.persistLocked()
	c.updateFindingsGaugeLocked()
	return true
}

// UpdateFinding merges an analyst override into an active finding.
// Reports whether anything changed.
func (c *Console) UpdateFinding(id string, patch schemas.FindingPatch) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.findings.Update(id, patch) {
		return false
	}
	c.persistLocked()
	return true
}

// -- Accessors --

// Stages returns the stage board for the current run in execution order.
func (c *Console) Stages() []stage.Stage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.board.Stages()
}

// Findings returns copies of all four triage collections.
func (c *Console) Findings() Findings {
	c.mu.Lock()
	defer c.mu.Unlock()

	active, snoozed, ignored, solved := c.findings.Contents()
	return Findings{Active: active, Snoozed: snoozed, Ignored: ignored, Solved: solved}
}

// ScanStatuses derives the current scan graph coloring.
func (c *Console) ScanStatuses() map[schemas.ScanNode]schemas.NodeStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return scanwatch.Statuses(c.lastScan, c.scanning)
}

// ScanGraph returns the fixed scan graph topology.
func (c *Console) ScanGraph() ([]schemas.ScanNode, []schemas.ScanEdge) {
	return scanwatch.Nodes(), scanwatch.Edges()
}

// LastError returns the most recent surfaced failure, nil when the last
// operation succeeded.
func (c *Console) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// InProgress reports whether a run or resume round-trip is outstanding.
func (c *Console) InProgress() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inProgress
}

// ReviewPending reports whether the review gate is open.
func (c *Console) ReviewPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reviewToken != ""
}

// LastInput returns the most recently submitted input text, surviving
// restarts through the snapshot store.
func (c *Console) LastInput() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastInput
}

// Result returns a copy of the current run's terminal result, nil while
// no run has finished.
func (c *Console) Result() *schemas.RunResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.result == nil {
		return nil
	}
	cp := *c.result
	return &cp
}

// Report assembles an exportable snapshot of the session's triage state.
func (c *Console) Report() schemas.TriageReport {
	c.mu.Lock()
	defer c.mu.Unlock()

	active, snoozed, ignored, solved := c.findings.Contents()
	report := schemas.TriageReport{
		GeneratedAt: time.Now().UTC(),
		Input:       c.lastInput,
		Active:      active,
		Snoozed:     snoozed,
		Ignored:     ignored,
		Solved:      solved,
		Counts:      schemas.CountByRisk(active),
	}
	if c.result != nil {
		cp := *c.result
		report.Result = &cp
	}
	return report
}

// Close cancels any in-flight stream consumption.
func (c *Console) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancelRun != nil {
		c.cancelRun()
	}
	if c.cancelScan != nil {
		c.cancelScan()
	}
}

// -- Internals --

// persistLocked mirrors the durable slice of state to the snapshot store.
// Write failures degrade to a log line; the in-memory session stays
// authoritative.
func (c *Console) persistLocked() {
	snap := &persist.Snapshot{
		CurrentResult: c.result,
		LastInput:     c.lastInput,
		Snoozed:       c.findings.Bucket(triage.BucketSnoozed),
		Ignored:       c.findings.Bucket(triage.BucketIgnored),
		Solved:        c.findings.Bucket(triage.BucketSolved),
	}
	if err := c.snapshots.Save(context.Background(), snap); err != nil {
		c.logger.Warn("Snapshot write failed.", zap.Error(err))
	}
}

func (c *Console) updateFindingsGaugeLocked() {
	for bucket, count := range c.findings.Counts() {
		c.metrics.GaugeSet(metrics.FindingsGauge.Name, float64(count), "bucket", string(bucket))
	}
}

// eventKind labels a stream event for metrics.
func eventKind(ev schemas.AnalysisEvent) string {
	switch ev.(type) {
	case schemas.AgentStartEvent:
		return schemas.EventAgentStart
	case schemas.AgentCompleteEvent:
		return schemas.EventAgentComplete
	case schemas.RunCompleteEvent:
		return schemas.EventComplete
	case schemas.HITLRequiredEvent:
		return schemas.EventHITLRequired
	case schemas.RunErrorEvent:
		return schemas.EventError
	}
	return "unknown"
}
