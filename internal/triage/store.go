// File: internal/triage/store.go

// Package triage owns the four finding collections (active, snoozed,
// ignored, solved) and the move, restore, and update operations between
// them. A finding identifier lives in at most one collection at any
// instant; the structure enforces that rather than relying on callers.
package triage

import (
	"sync"

	"github.com/nullvane/argus-cli/api/schemas"
)

// Bucket names one of the four finding collections.
type Bucket string

const (
	BucketActive  Bucket = "active"
	BucketSnoozed Bucket = "snoozed"
	BucketIgnored Bucket = "ignored"
	BucketSolved  Bucket = "solved"
)

// SideBuckets returns the three non-active collections in display order.
func SideBuckets() []Bucket {
	return []Bucket{BucketSnoozed, BucketIgnored, BucketSolved}
}

// ParseBucket maps a user or wire supplied name to a Bucket.
func ParseBucket(s string) (Bucket, bool) {
	switch Bucket(s) {
	case BucketActive, BucketSnoozed, BucketIgnored, BucketSolved:
		return Bucket(s), true
	}
	return "", false
}

// IsSide reports whether the bucket is one of the triage destinations
// (anything but active).
func (b Bucket) IsSide() bool {
	return b == BucketSnoozed || b == BucketIgnored || b == BucketSolved
}

// list is an insertion-ordered finding collection with an identifier index.
// The index makes the no-duplicates invariant structural instead of a
// linear scan.
type list struct {
	order []string
	byID  map[string]schemas.Finding
}

func newList() *list {
	return &list{byID: make(map[string]schemas.Finding)}
}

// add appends f unless its identifier is already present.
func (l *list) add(f schemas.Finding) bool {
	if _, dup := l.byID[f.ID]; dup {
		return false
	}
	l.order = append(l.order, f.ID)
	l.byID[f.ID] = f
	return true
}

// remove deletes the finding with id and returns it.
func (l *list) remove(id string) (schemas.Finding, bool) {
	f, ok := l.byID[id]
	if !ok {
		return schemas.Finding{}, false
	}
	delete(l.byID, id)
	for i, existing := range l.order {
		if existing == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return f, true
}

func (l *list) has(id string) bool {
	_, ok := l.byID[id]
	return ok
}

func (l *list) get(id string) (schemas.Finding, bool) {
	f, ok := l.byID[id]
	return f, ok
}

// replace swaps the stored finding for an existing identifier in place,
// preserving its position.
func (l *list) replace(f schemas.Finding) bool {
	if _, ok := l.byID[f.ID]; !ok {
		return false
	}
	l.byID[f.ID] = f
	return true
}

// items returns the findings in insertion order.
func (l *list) items() []schemas.Finding {
	out := make([]schemas.Finding, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.byID[id])
	}
	return out
}

func (l *list) clear() {
	l.order = nil
	l.byID = make(map[string]schemas.Finding)
}

func (l *list) len() int { return len(l.order) }

// Store holds the triage state for the current run. All operations are
// total: a missing identifier or unknown bucket is a no-op, never an
// error. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	active  *list
	snoozed *list
	ignored *list
	solved  *list
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		active:  newList(),
		snoozed: newList(),
		ignored: newList(),
		solved:  newList(),
	}
}

// bucketLocked resolves a bucket name to its backing list. Callers hold mu.
func (s *Store) bucketLocked(b Bucket) *list {
	switch b {
	case BucketActive:
		return s.active
	case BucketSnoozed:
		return s.snoozed
	case BucketIgnored:
		return s.ignored
	case BucketSolved:
		return s.solved
	}
	return nil
}

// MoveTo removes the finding with id from the active collection and
// appends it to the named side bucket. Absent identifiers and unknown
// buckets are no-ops. Moving an identifier the destination already holds
// keeps the destination unchanged. Reports whether the store changed.
func (s *Store) MoveTo(id string, dest Bucket) bool {
	if !dest.IsSide() {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.active.remove(id)
	if !ok {
		return false
	}
	s.bucketLocked(dest).add(f)
	return true
}

// Restore removes the finding with id from the named side bucket and
// appends it back to active. A source that does not hold id is a no-op.
// Reports whether the store changed.
func (s *Store) Restore(id string, from Bucket) bool {
	if !from.IsSide() {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.bucketLocked(from).remove(id)
	if !ok {
		return false
	}
	s.active.add(f)
	return true
}

// Update merges the patch into the active finding with id. Findings
// outside the active collection are not updatable. Reports whether a
// finding was modified.
func (s *Store) Update(id string, patch schemas.FindingPatch) bool {
	if patch.IsZero() {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.active.get(id)
	if !ok {
		return false
	}
	return s.active.replace(patch.Apply(f))
}

// ResetAll clears every collection. Called once per new pipeline
// submission before any stream event is processed.
func (s *Store) ResetAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active.clear()
	s.snoozed.clear()
	s.ignored.clear()
	s.solved.clear()
}

// SetActive replaces the active collection wholesale with the given
// findings, preserving their order and dropping duplicates. Identifiers
// already held by a side bucket are skipped so an identifier never
// appears in two collections.
func (s *Store) SetActive(findings []schemas.Finding) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active.clear()
	for _, f := range findings {
		if s.snoozed.has(f.ID) || s.ignored.has(f.ID) || s.solved.has(f.ID) {
			continue
		}
		s.active.add(f)
	}
}

// Seed loads rehydrated side collections. Active is left untouched.
// Duplicate identifiers across the inputs keep their first occurrence,
// in snoozed, ignored, solved order.
func (s *Store) Seed(snoozed, ignored, solved []schemas.Finding) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{})
	load := func(dst *list, findings []schemas.Finding) {
		for _, f := range findings {
			if _, dup := seen[f.ID]; dup {
				continue
			}
			if dst.add(f) {
				seen[f.ID] = struct{}{}
			}
		}
	}
	load(s.snoozed, snoozed)
	load(s.ignored, ignored)
	load(s.solved, solved)
}

// Contents returns ordered copies of all four collections.
func (s *Store) Contents() (active, snoozed, ignored, solved []schemas.Finding) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.active.items(), s.snoozed.items(), s.ignored.items(), s.solved.items()
}

// Bucket returns an ordered copy of a single collection.
func (s *Store) Bucket(b Bucket) []schemas.Finding {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l := s.bucketLocked(b)
	if l == nil {
		return nil
	}
	return l.items()
}

// Locate reports which collection currently holds id.
func (s *Store) Locate(id string) (Bucket, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, b := range []Bucket{BucketActive, BucketSnoozed, BucketIgnored, BucketSolved} {
		if s.bucketLocked(b).has(id) {
			return b, true
		}
	}
	return "", false
}

// Counts returns the size of every collection.
func (s *Store) Counts() map[Bucket]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[Bucket]int{
		BucketActive:  s.active.len(),
		BucketSnoozed: s.snoozed.len(),
		BucketIgnored: s.ignored.len(),
		BucketSolved:  s.solved.len(),
	}
}
