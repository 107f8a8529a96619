// File: internal/stage/stage_test.go
package stage_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullvane/argus-cli/internal/stage"
)

func TestNewBoardStartsPending(t *testing.T) {
	t.Parallel()

	b := stage.NewBoard()
	stages := b.Stages()

	require.Equal(t, stage.Names(), namesOf(stages), "stages must keep execution order")
	for _, s := range stages {
		assert.Equal(t, stage.StatusPending, s.Status, "stage %q should start pending", s.Name)
		assert.Zero(t, s.ElapsedSeconds)
		assert.Zero(t, s.CostUSD)
	}
	assert.False(t, b.Done())
}

func TestMarkRunning(t *testing.T) {
	t.Parallel()

	b := stage.NewBoard()

	assert.True(t, b.MarkRunning("ingest"))
	got, ok := b.Get("ingest")
	require.True(t, ok)
	assert.Equal(t, stage.StatusRunning, got.Status)

	// Already running: no second transition.
	assert.False(t, b.MarkRunning("ingest"))

	// Unknown stage names are inert.
	assert.False(t, b.MarkRunning("decompile"))
	_, ok = b.Get("decompile")
	assert.False(t, ok)
}

func TestMarkComplete(t *testing.T) {
	t.Parallel()

	t.Run("From Running", func(t *testing.T) {
		b := stage.NewBoard()
		require.True(t, b.MarkRunning("detect"))
		require.True(t, b.MarkComplete("detect", 12.5, 0.034))

		got, ok := b.Get("detect")
		require.True(t, ok)
		assert.Equal(t, stage.StatusComplete, got.Status)
		assert.Equal(t, 12.5, got.ElapsedSeconds)
		assert.Equal(t, 0.034, got.CostUSD)
	})

	t.Run("Directly From Pending", func(t *testing.T) {
		// A dropped start event must not wedge the stage.
		b := stage.NewBoard()
		require.True(t, b.MarkComplete("validate", 3.0, 0.01))

		got, _ := b.Get("validate")
		assert.Equal(t, stage.StatusComplete, got.Status)
	})

	t.Run("Never Regresses", func(t *testing.T) {
		b := stage.NewBoard()
		require.True(t, b.MarkComplete("classify", 8.0, 0.02))

		// A late duplicate completion must not overwrite recorded values.
		assert.False(t, b.MarkComplete("classify", 99.0, 9.99))
		got, _ := b.Get("classify")
		assert.Equal(t, 8.0, got.ElapsedSeconds)
		assert.Equal(t, 0.02, got.CostUSD)

		// And a late start event must not pull it back to running.
		assert.False(t, b.MarkRunning("classify"))
		got, _ = b.Get("classify")
		assert.Equal(t, stage.StatusComplete, got.Status)
	})

	t.Run("Unknown Stage Inert", func(t *testing.T) {
		b := stage.NewBoard()
		assert.False(t, b.MarkComplete("decompile", 1.0, 0.0))
	})
}

func TestCompleteRemaining(t *testing.T) {
	t.Parallel()

	b := stage.NewBoard()
	require.True(t, b.MarkRunning("ingest"))
	require.True(t, b.MarkComplete("ingest", 2.0, 0.005))
	require.True(t, b.MarkRunning("detect"))

	b.CompleteRemaining()

	for _, s := range b.Stages() {
		assert.Equal(t, stage.StatusComplete, s.Status, "stage %q should be complete", s.Name)
	}
	assert.True(t, b.Done())

	// Recorded values for the stage that finished normally survive.
	got, _ := b.Get("ingest")
	assert.Equal(t, 2.0, got.ElapsedSeconds)
}

func TestReset(t *testing.T) {
	t.Parallel()

	b := stage.NewBoard()
	require.True(t, b.MarkRunning("ingest"))
	require.True(t, b.MarkComplete("ingest", 2.0, 0.005))
	b.CompleteRemaining()
	require.True(t, b.Done())

	b.Reset()

	for _, s := range b.Stages() {
		assert.Equal(t, stage.StatusPending, s.Status)
		assert.Zero(t, s.ElapsedSeconds)
		assert.Zero(t, s.CostUSD)
	}
	assert.False(t, b.Done())

	// The board is reusable after a reset.
	assert.True(t, b.MarkRunning("ingest"))
}

func TestStagesReturnsCopies(t *testing.T) {
	t.Parallel()

	b := stage.NewBoard()
	stages := b.Stages()
	stages[0].Status = stage.StatusComplete
	stages[0].CostUSD = 100

	got, _ := b.Get(stages[0].Name)
	assert.Equal(t, stage.StatusPending, got.Status, "mutating the returned slice must not affect the board")
	assert.Zero(t, got.CostUSD)
}

func TestTotalCostUSD(t *testing.T) {
	t.Parallel()

	b := stage.NewBoard()
	require.True(t, b.MarkComplete("ingest", 1.0, 0.01))
	require.True(t, b.MarkComplete("detect", 2.0, 0.02))

	assert.InDelta(t, 0.03, b.TotalCostUSD(), 1e-9)
}

func namesOf(stages []stage.Stage) []string {
	names := make([]string, 0, len(stages))
	for _, s := range stages {
		names = append(names, s.Name)
	}
	return names
}
