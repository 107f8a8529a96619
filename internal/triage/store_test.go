// File: internal/triage/store_test.go
package triage_test

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullvane/argus-cli/api/schemas"
	"github.com/nullvane/argus-cli/internal/triage"
)

func finding(id string, risk schemas.RiskLevel) schemas.Finding {
	return schemas.Finding{
		ID:          id,
		Type:        "credential_exposure",
		Risk:        risk,
		Status:      "open",
		Description: "test finding " + id,
		Source:      "10.20.0.4",
	}
}

func ids(findings []schemas.Finding) []string {
	out := make([]string, 0, len(findings))
	for _, f := range findings {
		out = append(out, f.ID)
	}
	return out
}

func TestMoveTo(t *testing.T) {
	t.Parallel()

	t.Run("Moves Active Finding To Side Bucket", func(t *testing.T) {
		s := triage.NewStore()
		s.SetActive([]schemas.Finding{finding("f1", schemas.RiskHigh), finding("f2", schemas.RiskLow)})

		assert.True(t, s.MoveTo("f1", triage.BucketSnoozed))

		active, snoozed, _, _ := s.Contents()
		assert.Equal(t, []string{"f2"}, ids(active))
		assert.Equal(t, []string{"f1"}, ids(snoozed))
	})

	t.Run("Missing Identifier Is A NoOp", func(t *testing.T) {
		s := triage.NewStore()
		s.SetActive([]schemas.Finding{finding("f1", schemas.RiskHigh)})

		assert.False(t, s.MoveTo("ghost", triage.BucketIgnored))

		active, _, ignored, _ := s.Contents()
		assert.Len(t, active, 1)
		assert.Empty(t, ignored)
	})

	t.Run("Active Is Not A Destination", func(t *testing.T) {
		s := triage.NewStore()
		s.SetActive([]schemas.Finding{finding("f1", schemas.RiskHigh)})

		assert.False(t, s.MoveTo("f1", triage.BucketActive))
		assert.False(t, s.MoveTo("f1", triage.Bucket("archive")))

		active, _, _, _ := s.Contents()
		assert.Len(t, active, 1)
	})

	t.Run("Idempotent For Same Destination", func(t *testing.T) {
		s := triage.NewStore()
		s.SetActive([]schemas.Finding{finding("f1", schemas.RiskHigh)})

		require.True(t, s.MoveTo("f1", triage.BucketSolved))
		assert.False(t, s.MoveTo("f1", triage.BucketSolved))

		_, _, _, solved := s.Contents()
		assert.Equal(t, []string{"f1"}, ids(solved), "destination must hold the finding exactly once")
	})
}

func TestRestore(t *testing.T) {
	t.Parallel()

	t.Run("Round Trip Restores Active Exactly", func(t *testing.T) {
		s := triage.NewStore()
		s.SetActive([]schemas.Finding{
			finding("f1", schemas.RiskCritical),
			finding("f2", schemas.RiskHigh),
			finding("f3", schemas.RiskMedium),
		})
		_, before, _, _ := s.Contents()
		require.Empty(t, before)
		beforeActive, _, _, _ := s.Contents()

		require.True(t, s.MoveTo("f3", triage.BucketSnoozed))
		require.True(t, s.Restore("f3", triage.BucketSnoozed))

		active, snoozed, _, _ := s.Contents()
		assert.Equal(t, ids(beforeActive), ids(active), "active should contain the same identifiers after the pair")
		assert.Empty(t, snoozed)
	})

	t.Run("Source Without Identifier Is A NoOp", func(t *testing.T) {
		s := triage.NewStore()
		s.SetActive([]schemas.Finding{finding("f1", schemas.RiskHigh)})
		require.True(t, s.MoveTo("f1", triage.BucketIgnored))

		// f1 is in ignored, not snoozed.
		assert.False(t, s.Restore("f1", triage.BucketSnoozed))

		active, _, ignored, _ := s.Contents()
		assert.Empty(t, active)
		assert.Equal(t, []string{"f1"}, ids(ignored))
	})

	t.Run("Restore From Active Is Rejected", func(t *testing.T) {
		s := triage.NewStore()
		s.SetActive([]schemas.Finding{finding("f1", schemas.RiskHigh)})

		assert.False(t, s.Restore("f1", triage.BucketActive))
	})
}

func TestUpdate(t *testing.T) {
	t.Parallel()

	risk := schemas.RiskLow
	status := "accepted"

	t.Run("Merges Fields Into Active Finding", func(t *testing.T) {
		s := triage.NewStore()
		s.SetActive([]schemas.Finding{finding("f1", schemas.RiskCritical)})

		assert.True(t, s.Update("f1", schemas.FindingPatch{Risk: &risk, Status: &status}))

		active, _, _, _ := s.Contents()
		require.Len(t, active, 1)
		assert.Equal(t, schemas.RiskLow, active[0].Risk)
		assert.Equal(t, "accepted", active[0].Status)
		// Untouched fields survive the merge.
		assert.Equal(t, "credential_exposure", active[0].Type)
	})

	t.Run("NoOp Outside Active", func(t *testing.T) {
		s := triage.NewStore()
		s.SetActive([]schemas.Finding{finding("f1", schemas.RiskCritical)})
		require.True(t, s.MoveTo("f1", triage.BucketSnoozed))

		assert.False(t, s.Update("f1", schemas.FindingPatch{Risk: &risk}))

		_, snoozed, _, _ := s.Contents()
		assert.Equal(t, schemas.RiskCritical, snoozed[0].Risk)
	})

	t.Run("Empty Patch Is A NoOp", func(t *testing.T) {
		s := triage.NewStore()
		s.SetActive([]schemas.Finding{finding("f1", schemas.RiskCritical)})

		assert.False(t, s.Update("f1", schemas.FindingPatch{}))
	})
}

func TestResetAll(t *testing.T) {
	t.Parallel()

	s := triage.NewStore()
	s.SetActive([]schemas.Finding{finding("f1", schemas.RiskHigh), finding("f2", schemas.RiskLow)})
	require.True(t, s.MoveTo("f1", triage.BucketSnoozed))

	s.ResetAll()

	active, snoozed, ignored, solved := s.Contents()
	assert.Empty(t, active)
	assert.Empty(t, snoozed)
	assert.Empty(t, ignored)
	assert.Empty(t, solved)

	// A fresh run after the reset sees no leakage from old state.
	s.SetActive([]schemas.Finding{finding("f1", schemas.RiskMedium)})
	active, _, _, _ = s.Contents()
	require.Len(t, active, 1)
	assert.Equal(t, schemas.RiskMedium, active[0].Risk)
}

func TestSetActive(t *testing.T) {
	t.Parallel()

	t.Run("Replaces Wholesale Preserving Order", func(t *testing.T) {
		s := triage.NewStore()
		s.SetActive([]schemas.Finding{finding("old", schemas.RiskLow)})

		s.SetActive([]schemas.Finding{
			finding("f3", schemas.RiskLow),
			finding("f1", schemas.RiskCritical),
			finding("f2", schemas.RiskHigh),
		})

		active, _, _, _ := s.Contents()
		assert.Equal(t, []string{"f3", "f1", "f2"}, ids(active))
	})

	t.Run("Drops Duplicate Identifiers", func(t *testing.T) {
		s := triage.NewStore()
		s.SetActive([]schemas.Finding{
			finding("f1", schemas.RiskCritical),
			finding("f1", schemas.RiskLow),
		})

		active, _, _, _ := s.Contents()
		require.Equal(t, []string{"f1"}, ids(active))
		assert.Equal(t, schemas.RiskCritical, active[0].Risk, "first occurrence wins")
	})

	t.Run("Side Buckets Keep Ownership", func(t *testing.T) {
		// A resumed run can re-report a finding the analyst already triaged.
		s := triage.NewStore()
		s.SetActive([]schemas.Finding{finding("f1", schemas.RiskHigh)})
		require.True(t, s.MoveTo("f1", triage.BucketSolved))

		s.SetActive([]schemas.Finding{finding("f1", schemas.RiskHigh), finding("f2", schemas.RiskLow)})

		active, _, _, solved := s.Contents()
		assert.Equal(t, []string{"f2"}, ids(active))
		assert.Equal(t, []string{"f1"}, ids(solved))
	})
}

func TestSeed(t *testing.T) {
	t.Parallel()

	s := triage.NewStore()
	s.Seed(
		[]schemas.Finding{finding("s1", schemas.RiskHigh), finding("dup", schemas.RiskHigh)},
		[]schemas.Finding{finding("i1", schemas.RiskLow), finding("dup", schemas.RiskLow)},
		[]schemas.Finding{finding("v1", schemas.RiskMedium), finding("s1", schemas.RiskMedium)},
	)

	active, snoozed, ignored, solved := s.Contents()
	assert.Empty(t, active, "seeding must not touch active")
	assert.Equal(t, []string{"s1", "dup"}, ids(snoozed))
	assert.Equal(t, []string{"i1"}, ids(ignored), "duplicate identifiers keep their first occurrence")
	assert.Equal(t, []string{"v1"}, ids(solved))
}

func TestLocateAndCounts(t *testing.T) {
	t.Parallel()

	s := triage.NewStore()
	s.SetActive([]schemas.Finding{finding("f1", schemas.RiskHigh), finding("f2", schemas.RiskLow)})
	require.True(t, s.MoveTo("f2", triage.BucketIgnored))

	b, ok := s.Locate("f1")
	require.True(t, ok)
	assert.Equal(t, triage.BucketActive, b)

	b, ok = s.Locate("f2")
	require.True(t, ok)
	assert.Equal(t, triage.BucketIgnored, b)

	_, ok = s.Locate("ghost")
	assert.False(t, ok)

	counts := s.Counts()
	assert.Equal(t, 1, counts[triage.BucketActive])
	assert.Equal(t, 0, counts[triage.BucketSnoozed])
	assert.Equal(t, 1, counts[triage.BucketIgnored])
	assert.Equal(t, 0, counts[triage.BucketSolved])
}

func TestBucketAccessor(t *testing.T) {
	t.Parallel()

	s := triage.NewStore()
	s.SetActive([]schemas.Finding{finding("f1", schemas.RiskHigh)})

	assert.Equal(t, []string{"f1"}, ids(s.Bucket(triage.BucketActive)))
	assert.Empty(t, s.Bucket(triage.BucketSnoozed))
	assert.Nil(t, s.Bucket(triage.Bucket("archive")))
}

// TestUniquenessUnderInterleaving drives the store through a long random
// sequence of operations and checks after each one that no identifier is
// held by more than one collection.
func TestUniquenessUnderInterleaving(t *testing.T) {
	t.Parallel()

	const (
		numFindings = 12
		numOps      = 5000
	)

	rng := rand.New(rand.NewSource(0x617267)) // deterministic
	s := triage.NewStore()

	seed := make([]schemas.Finding, 0, numFindings)
	for i := 0; i < numFindings; i++ {
		seed = append(seed, finding(fmt.Sprintf("f%02d", i), schemas.RiskMedium))
	}
	s.SetActive(seed)

	sides := triage.SideBuckets()
	checkDisjoint := func(opIdx int) {
		active, snoozed, ignored, solved := s.Contents()
		seen := make(map[string]triage.Bucket)
		for _, pair := range []struct {
			bucket   triage.Bucket
			findings []schemas.Finding
		}{
			{triage.BucketActive, active},
			{triage.BucketSnoozed, snoozed},
			{triage.BucketIgnored, ignored},
			{triage.BucketSolved, solved},
		} {
			idsSeen := make(map[string]struct{})
			for _, f := range pair.findings {
				if _, dup := idsSeen[f.ID]; dup {
					t.Fatalf("op %d: duplicate id %q inside bucket %q", opIdx, f.ID, pair.bucket)
				}
				idsSeen[f.ID] = struct{}{}
				if prev, dup := seen[f.ID]; dup {
					t.Fatalf("op %d: id %q present in both %q and %q", opIdx, f.ID, prev, pair.bucket)
				}
				seen[f.ID] = pair.bucket
			}
		}
	}

	for op := 0; op < numOps; op++ {
		id := fmt.Sprintf("f%02d", rng.Intn(numFindings))
		switch rng.Intn(4) {
		case 0:
			s.MoveTo(id, sides[rng.Intn(len(sides))])
		case 1:
			s.Restore(id, sides[rng.Intn(len(sides))])
		case 2:
			risk := schemas.RiskLevels()[rng.Intn(len(schemas.RiskLevels()))]
			s.Update(id, schemas.FindingPatch{Risk: &risk})
		case 3:
			// Occasionally re-report a batch, as a resumed run would.
			if rng.Intn(10) == 0 {
				s.SetActive(seed)
			}
		}
		checkDisjoint(op)
	}
}
