// File: internal/console/console_test.go
package console

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/nullvane/argus-cli/api/schemas"
	"github.com/nullvane/argus-cli/internal/metrics"
	"github.com/nullvane/argus-cli/internal/persist"
	"github.com/nullvane/argus-cli/internal/platform"
	"github.com/nullvane/argus-cli/internal/stage"
	"github.com/nullvane/argus-cli/internal/triage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// -- Fakes --

// sliceStream replays a fixed event sequence and then reports EOF.
type sliceStream struct {
	events []schemas.AnalysisEvent
	i      int
}

func (s *sliceStream) Next() (schemas.AnalysisEvent, error) {
	if s.i >= len(s.events) {
		return nil, io.EOF
	}
	ev := s.events[s.i]
	s.i++
	return ev, nil
}

func (s *sliceStream) Close() error { return nil }

// chanStream blocks on a channel so tests can control event timing.
type chanStream struct {
	ch chan schemas.AnalysisEvent
}

func (s *chanStream) Next() (schemas.AnalysisEvent, error) {
	ev, ok := <-s.ch
	if !ok {
		return nil, io.EOF
	}
	return ev, nil
}

func (s *chanStream) Close() error { return nil }

type sliceScanStream struct {
	events []*schemas.ScanEvent
	i      int
}

func (s *sliceScanStream) Next() (*schemas.ScanEvent, error) {
	if s.i >= len(s.events) {
		return nil, io.EOF
	}
	ev := s.events[s.i]
	s.i++
	return ev, nil
}

func (s *sliceScanStream) Close() error { return nil }

// fakePipeline hands out scripted streams and resume results in order.
type fakePipeline struct {
	mu            sync.Mutex
	streams       []platform.AnalysisStream
	streamErr     error
	scanStreams   []platform.ScanStream
	resumeResults []*schemas.RunResult
	resumeErr     error
	resumeCalls   int
	lastResume    schemas.ResumeRequest
}

func (p *fakePipeline) StreamAnalysis(ctx context.Context, input string) (platform.AnalysisStream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.streamErr != nil {
		return nil, p.streamErr
	}
	if len(p.streams) == 0 {
		return nil, errors.New("fake pipeline: no scripted stream")
	}
	s := p.streams[0]
	p.streams = p.streams[1:]
	return s, nil
}

func (p *fakePipeline) Resume(ctx context.Context, decision schemas.ResumeRequest) (*schemas.RunResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resumeCalls++
	p.lastResume = decision
	if p.resumeErr != nil {
		return nil, p.resumeErr
	}
	r := p.resumeResults[0]
	p.resumeResults = p.resumeResults[1:]
	return r, nil
}

func (p *fakePipeline) StreamScan(ctx context.Context, target string) (platform.ScanStream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.scanStreams[0]
	p.scanStreams = p.scanStreams[1:]
	return s, nil
}

// memSnapshots is an in-memory snapshot store.
type memSnapshots struct {
	mu    sync.Mutex
	snap  persist.Snapshot
	saves int
}

func (m *memSnapshots) Load(ctx context.Context) (*persist.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := m.snap
	return &cp, nil
}

func (m *memSnapshots) Save(ctx context.Context, snap *persist.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = *snap
	m.saves++
	return nil
}

// -- Helpers --

func finding(id string, risk schemas.RiskLevel) schemas.Finding {
	return schemas.Finding{ID: id, Type: "credential_stuffing", Risk: risk}
}

func newTestConsole(t *testing.T, pipeline Pipeline, snaps SnapshotStore) *Console {
	t.Helper()
	if snaps == nil {
		snaps = &memSnapshots{}
	}
	c, err := New(context.Background(), Options{
		Pipeline:  pipeline,
		Snapshots: snaps,
		Logger:    zaptest.NewLogger(t),
		Metrics:   metrics.NewInMemoryCollector(),
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func completedStream(findings ...schemas.Finding) *sliceStream {
	return &sliceStream{events: []schemas.AnalysisEvent{
		schemas.AgentStartEvent{Stage: "ingest"},
		schemas.AgentCompleteEvent{Stage: "ingest", ElapsedSeconds: 1.5, CostUSD: 0.02},
		schemas.RunCompleteEvent{Result: schemas.RunResult{
			Status:   schemas.RunCompleted,
			Findings: findings,
		}},
	}}
}

// -- Tests --

func TestNewValidatesDependencies(t *testing.T) {
	_, err := New(context.Background(), Options{Snapshots: &memSnapshots{}})
	require.Error(t, err)

	_, err = New(context.Background(), Options{Pipeline: &fakePipeline{}})
	require.Error(t, err)
}

func TestSubmitAnalysisEndToEnd(t *testing.T) {
	pipeline := &fakePipeline{streams: []platform.AnalysisStream{
		completedStream(finding("f1", schemas.RiskHigh)),
	}}
	c := newTestConsole(t, pipeline, nil)

	require.NoError(t, c.SubmitAnalysis(context.Background(), "log A"))

	for _, s := range c.Stages() {
		assert.Equal(t, stage.StatusComplete, s.Status, "stage %s", s.Name)
	}
	findings := c.Findings()
	require.Len(t, findings.Active, 1)
	assert.Equal(t, "f1", findings.Active[0].ID)
	assert.Empty(t, findings.Snoozed)
	assert.False(t, c.InProgress())
	assert.NoError(t, c.LastError())
	assert.Equal(t, "log A", c.LastInput())

	require.NotNil(t, c.Result())
	assert.Equal(t, schemas.RunCompleted, c.Result().Status)
}

func TestTerminalEventFinalizesDroppedStages(t *testing.T) {
	// Only ingest ever reports; the terminal event must still resolve the
	// whole board.
	pipeline := &fakePipeline{streams: []platform.AnalysisStream{
		&sliceStream{events: []schemas.AnalysisEvent{
			schemas.AgentStartEvent{Stage: "ingest"},
			schemas.RunCompleteEvent{Result: schemas.RunResult{Status: schemas.RunCompleted}},
		}},
	}}
	c := newTestConsole(t, pipeline, nil)

	require.NoError(t, c.SubmitAnalysis(context.Background(), "x"))
	for _, s := range c.Stages() {
		assert.Equal(t, stage.StatusComplete, s.Status, "stage %s", s.Name)
	}
}

func TestErrorEventSurfacesWithoutPopulatingActive(t *testing.T) {
	pipeline := &fakePipeline{streams: []platform.AnalysisStream{
		&sliceStream{events: []schemas.AnalysisEvent{
			schemas.AgentStartEvent{Stage: "ingest"},
			schemas.RunErrorEvent{Message: "detector crashed"},
		}},
	}}
	c := newTestConsole(t, pipeline, nil)

	err := c.SubmitAnalysis(context.Background(), "x")
	var perr *PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "detector crashed", perr.Message)

	assert.Empty(t, c.Findings().Active)
	assert.False(t, c.InProgress())
	assert.ErrorAs(t, c.LastError(), &perr)
}

func TestStreamEndWithoutTerminalIsTransportError(t *testing.T) {
	pipeline := &fakePipeline{streams: []platform.AnalysisStream{
		&sliceStream{events: []schemas.AnalysisEvent{
			schemas.AgentStartEvent{Stage: "ingest"},
		}},
	}}
	c := newTestConsole(t, pipeline, nil)

	err := c.SubmitAnalysis(context.Background(), "x")
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Empty(t, c.Findings().Active)
}

func TestSupersededRunCannotCorruptState(t *testing.T) {
	first := &chanStream{ch: make(chan schemas.AnalysisEvent)}
	pipeline := &fakePipeline{streams: []platform.AnalysisStream{
		first,
		completedStream(finding("f2", schemas.RiskMedium)),
	}}
	c := newTestConsole(t, pipeline, nil)

	done := make(chan error, 1)
	go func() {
		done <- c.SubmitAnalysis(context.Background(), "first")
	}()

	require.Eventually(t, c.InProgress, time.Second, 5*time.Millisecond)

	// Second submission supersedes the first.
	require.NoError(t, c.SubmitAnalysis(context.Background(), "second"))

	// Late events from the displaced stream must be ignored.
	first.ch <- schemas.RunCompleteEvent{Result: schemas.RunResult{
		Status:   schemas.RunCompleted,
		Findings: []schemas.Finding{finding("stale", schemas.RiskCritical)},
	}}
	close(first.ch)

	require.ErrorIs(t, <-done, ErrSuperseded)

	findings := c.Findings()
	require.Len(t, findings.Active, 1)
	assert.Equal(t, "f2", findings.Active[0].ID)
	assert.Equal(t, "second", c.LastInput())
}

func TestNewSubmissionClearsSideCollections(t *testing.T) {
	pipeline := &fakePipeline{streams: []platform.AnalysisStream{
		completedStream(finding("f1", schemas.RiskHigh)),
		completedStream(finding("f9", schemas.RiskLow)),
	}}
	c := newTestConsole(t, pipeline, nil)

	require.NoError(t, c.SubmitAnalysis(context.Background(), "run 1"))
	require.True(t, c.MoveFinding("f1", triage.BucketSnoozed))
	require.Len(t, c.Findings().Snoozed, 1)

	require.NoError(t, c.SubmitAnalysis(context.Background(), "run 2"))

	findings := c.Findings()
	assert.Empty(t, findings.Snoozed, "stale findings must not outlive their run")
	require.Len(t, findings.Active, 1)
	assert.Equal(t, "f9", findings.Active[0].ID)
}

func TestReviewGateLifecycle(t *testing.T) {
	pending := finding("p1", schemas.RiskCritical)
	pipeline := &fakePipeline{
		streams: []platform.AnalysisStream{
			&sliceStream{events: []schemas.AnalysisEvent{
				schemas.HITLRequiredEvent{Result: schemas.RunResult{
					Status:      schemas.RunHITLRequired,
					Pending:     []schemas.Finding{pending},
					ThreadToken: "tok-1",
				}},
			}},
		},
		resumeResults: []*schemas.RunResult{{
			Status:   schemas.RunCompleted,
			Findings: []schemas.Finding{pending, finding("p2", schemas.RiskLow)},
		}},
	}
	c := newTestConsole(t, pipeline, nil)

	require.NoError(t, c.SubmitAnalysis(context.Background(), "x"))
	assert.True(t, c.ReviewPending())
	assert.False(t, c.InProgress())
	require.Len(t, c.Findings().Active, 1)

	require.NoError(t, c.SubmitScanDecision(context.Background(), schemas.DecisionApprove, "looks real"))
	assert.False(t, c.ReviewPending())
	assert.Len(t, c.Findings().Active, 2)
	assert.Equal(t, "tok-1", pipeline.lastResume.ThreadToken)
	assert.Equal(t, schemas.DecisionApprove, pipeline.lastResume.Decision)
}

func TestReviewGateMultiRound(t *testing.T) {
	pipeline := &fakePipeline{
		streams: []platform.AnalysisStream{
			&sliceStream{events: []schemas.AnalysisEvent{
				schemas.HITLRequiredEvent{Result: schemas.RunResult{
					Status:      schemas.RunHITLRequired,
					Pending:     []schemas.Finding{finding("p1", schemas.RiskHigh)},
					ThreadToken: "tok-1",
				}},
			}},
		},
		resumeResults: []*schemas.RunResult{
			{
				Status:      schemas.RunHITLRequired,
				Pending:     []schemas.Finding{finding("p2", schemas.RiskHigh)},
				ThreadToken: "tok-2",
			},
			{Status: schemas.RunCompleted, Findings: []schemas.Finding{finding("p2", schemas.RiskHigh)}},
		},
	}
	c := newTestConsole(t, pipeline, nil)

	require.NoError(t, c.SubmitAnalysis(context.Background(), "x"))

	// First decision pauses again.
	require.NoError(t, c.SubmitScanDecision(context.Background(), schemas.DecisionReject, ""))
	assert.True(t, c.ReviewPending())

	// Second decision closes the gate.
	require.NoError(t, c.SubmitScanDecision(context.Background(), schemas.DecisionApprove, ""))
	assert.False(t, c.ReviewPending())
	assert.Equal(t, "tok-2", pipeline.lastResume.ThreadToken)
}

func TestReviewDecisionWhileClosedIsNoop(t *testing.T) {
	pipeline := &fakePipeline{}
	c := newTestConsole(t, pipeline, nil)

	require.NoError(t, c.SubmitScanDecision(context.Background(), schemas.DecisionApprove, ""))
	assert.Zero(t, pipeline.resumeCalls)
}

func TestReviewResumeFailureKeepsGateOpen(t *testing.T) {
	pipeline := &fakePipeline{
		streams: []platform.AnalysisStream{
			&sliceStream{events: []schemas.AnalysisEvent{
				schemas.HITLRequiredEvent{Result: schemas.RunResult{
					Status:      schemas.RunHITLRequired,
					Pending:     []schemas.Finding{finding("p1", schemas.RiskHigh)},
					ThreadToken: "tok-1",
				}},
			}},
		},
		resumeErr: errors.New("gateway timeout"),
	}
	c := newTestConsole(t, pipeline, nil)

	require.NoError(t, c.SubmitAnalysis(context.Background(), "x"))

	err := c.SubmitScanDecision(context.Background(), schemas.DecisionApprove, "")
	var rerr *ResumeError
	require.ErrorAs(t, err, &rerr)

	// Gate and token survive so the analyst can retry.
	assert.True(t, c.ReviewPending())
	pipeline.mu.Lock()
	pipeline.resumeErr = nil
	pipeline.resumeResults = []*schemas.RunResult{{Status: schemas.RunCompleted}}
	pipeline.mu.Unlock()

	require.NoError(t, c.SubmitScanDecision(context.Background(), schemas.DecisionApprove, ""))
	assert.False(t, c.ReviewPending())
	assert.Equal(t, "tok-1", pipeline.lastResume.ThreadToken)
}

func TestInvalidDecisionRejected(t *testing.T) {
	c := newTestConsole(t, &fakePipeline{}, nil)
	require.Error(t, c.SubmitScanDecision(context.Background(), schemas.Decision("maybe"), ""))
}

func TestScanLifecycle(t *testing.T) {
	pipeline := &fakePipeline{scanStreams: []platform.ScanStream{
		&sliceScanStream{events: []*schemas.ScanEvent{
			{Milestone: schemas.MilestoneStarting},
			{Milestone: schemas.MilestoneDiscovered, Assets: 12},
			{Milestone: schemas.MilestoneRouting, Assets: 12, Issues: 3},
			{Milestone: schemas.MilestoneScanned, Assets: 12, Issues: 3},
			{Milestone: schemas.MilestoneComplete, Assets: 12, Issues: 3, Exploits: 1},
		}},
	}}
	c := newTestConsole(t, pipeline, nil)

	require.NoError(t, c.StartScan(context.Background(), "prod-vpc"))

	for node, status := range c.ScanStatuses() {
		assert.Equal(t, schemas.NodeCompleted, status, "node %s", node)
	}
}

func TestScanErrorMilestone(t *testing.T) {
	pipeline := &fakePipeline{scanStreams: []platform.ScanStream{
		&sliceScanStream{events: []*schemas.ScanEvent{
			{Milestone: schemas.MilestoneStarting},
			{Milestone: schemas.MilestoneError, Assets: 5, Message: "probe quota exceeded"},
		}},
	}}
	c := newTestConsole(t, pipeline, nil)

	err := c.StartScan(context.Background(), "prod-vpc")
	var perr *PipelineError
	require.ErrorAs(t, err, &perr)

	statuses := c.ScanStatuses()
	assert.Equal(t, schemas.NodeCompleted, statuses[schemas.NodeEngine])
	assert.Equal(t, schemas.NodeCompleted, statuses[schemas.NodeDiscovery])
	assert.Equal(t, schemas.NodePending, statuses[schemas.NodeRouting])
	for _, status := range statuses {
		assert.NotEqual(t, schemas.NodeActive, status, "nothing is active after a failed scan")
	}
}

func TestScanStreamTruncation(t *testing.T) {
	pipeline := &fakePipeline{scanStreams: []platform.ScanStream{
		&sliceScanStream{events: []*schemas.ScanEvent{
			{Milestone: schemas.MilestoneStarting},
		}},
	}}
	c := newTestConsole(t, pipeline, nil)

	err := c.StartScan(context.Background(), "prod-vpc")
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
}

func TestPersistenceMirrorsTriageState(t *testing.T) {
	snaps := &memSnapshots{}
	pipeline := &fakePipeline{streams: []platform.AnalysisStream{
		completedStream(finding("f1", schemas.RiskHigh)),
	}}
	c := newTestConsole(t, pipeline, snaps)

	require.NoError(t, c.SubmitAnalysis(context.Background(), "log A"))
	require.True(t, c.MoveFinding("f1", triage.BucketSnoozed))

	snaps.mu.Lock()
	snap := snaps.snap
	snaps.mu.Unlock()

	require.Len(t, snap.Snoozed, 1)
	assert.Equal(t, "f1", snap.Snoozed[0].ID)
	assert.Equal(t, "log A", snap.LastInput)
	require.NotNil(t, snap.CurrentResult)
}

func TestRestartRehydratesOnlySideCollections(t *testing.T) {
	snaps := &memSnapshots{}
	pipeline := &fakePipeline{streams: []platform.AnalysisStream{
		completedStream(finding("f1", schemas.RiskHigh), finding("f2", schemas.RiskLow)),
	}}
	c := newTestConsole(t, pipeline, snaps)

	require.NoError(t, c.SubmitAnalysis(context.Background(), "log A"))
	require.True(t, c.MoveFinding("f1", triage.BucketSnoozed))

	// Simulated restart: a fresh console over the same snapshot store.
	c2 := newTestConsole(t, &fakePipeline{}, snaps)

	findings := c2.Findings()
	require.Len(t, findings.Snoozed, 1)
	assert.Equal(t, "f1", findings.Snoozed[0].ID)
	assert.Empty(t, findings.Active, "an unfinished run is not resumable")
	assert.Nil(t, c2.Result())
	assert.Equal(t, "log A", c2.LastInput())
}

func TestTriageMutatorsAreTotal(t *testing.T) {
	c := newTestConsole(t, &fakePipeline{}, nil)

	assert.False(t, c.MoveFinding("missing", triage.BucketSnoozed))
	assert.False(t, c.RestoreFinding("missing", triage.BucketIgnored))
	risk := schemas.RiskLow
	assert.False(t, c.UpdateFinding("missing", schemas.FindingPatch{Risk: &risk}))
}

func TestUpdateFindingOverridesRisk(t *testing.T) {
	pipeline := &fakePipeline{streams: []platform.AnalysisStream{
		completedStream(finding("f1", schemas.RiskHigh)),
	}}
	c := newTestConsole(t, pipeline, nil)
	require.NoError(t, c.SubmitAnalysis(context.Background(), "x"))

	risk := schemas.RiskCritical
	require.True(t, c.UpdateFinding("f1", schemas.FindingPatch{Risk: &risk}))
	assert.Equal(t, schemas.RiskCritical, c.Findings().Active[0].Risk)
}

func TestScanGraphTopology(t *testing.T) {
	c := newTestConsole(t, &fakePipeline{}, nil)
	nodes, edges := c.ScanGraph()
	assert.Len(t, nodes, 6)
	assert.Len(t, edges, 5)
}
