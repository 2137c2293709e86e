package plan

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"caseshare.org/internal/cases"
)

// VersionStore persists the plan version sequence of each case. The service
// layer holds the per-case lock around every mutating call, so
// implementations only need atomicity per call, not cross-call ordering.
type VersionStore interface {
	// ListVersions returns all versions of the case ordered by version ascending.
	ListVersions(ctx context.Context, caseID string) ([]cases.PlanVersion, error)
	// GetVersion returns one version or cases.ErrNotFound.
	GetVersion(ctx context.Context, caseID string, version int) (cases.PlanVersion, error)
	// InsertVersion appends a new version row.
	InsertVersion(ctx context.Context, v cases.PlanVersion) error
	// ReplaceDraft overwrites the stored draft row in place.
	ReplaceDraft(ctx context.Context, v cases.PlanVersion) error
	// ApplyApproval atomically marks (caseID, version) approved and archives
	// every other non-archived version of the case.
	ApplyApproval(ctx context.Context, caseID string, version int, approver string, at time.Time) error
}

// InMemoryVersions implements VersionStore with in-process concurrency
// safety. The durable variant lives in the pg store.
type InMemoryVersions struct {
	mu       sync.RWMutex
	versions map[string][]cases.PlanVersion // caseID -> ordered by version
}

// NewInMemoryVersions creates an empty version store.
func NewInMemoryVersions() *InMemoryVersions {
	return &InMemoryVersions{versions: make(map[string][]cases.PlanVersion)}
}

func (s *InMemoryVersions) ListVersions(ctx context.Context, caseID string) ([]cases.PlanVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.versions[caseID]
	out := make([]cases.PlanVersion, len(stored))
	copy(out, stored)
	return out, nil
}

func (s *InMemoryVersions) GetVersion(ctx context.Context, caseID string, version int) (cases.PlanVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.versions[caseID] {
		if v.Version == version {
			return v, nil
		}
	}
	return cases.PlanVersion{}, fmt.Errorf("%w: case %s version %d", cases.ErrNotFound, caseID, version)
}

func (s *InMemoryVersions) InsertVersion(ctx context.Context, v cases.PlanVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.versions[v.CaseID] {
		if existing.Version == v.Version {
			return fmt.Errorf("%w: version %d already exists", cases.ErrConflict, v.Version)
		}
	}
	s.versions[v.CaseID] = append(s.versions[v.CaseID], v)
	sort.Slice(s.versions[v.CaseID], func(i, j int) bool {
		return s.versions[v.CaseID][i].Version < s.versions[v.CaseID][j].Version
	})
	return nil
}

func (s *InMemoryVersions) ReplaceDraft(ctx context.Context, v cases.PlanVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.versions[v.CaseID]
	for i := range stored {
		if stored[i].Version == v.Version {
			stored[i] = v
			return nil
		}
	}
	return fmt.Errorf("%w: case %s version %d", cases.ErrNotFound, v.CaseID, v.Version)
}

func (s *InMemoryVersions) ApplyApproval(ctx context.Context, caseID string, version int, approver string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.versions[caseID]
	target := -1
	for i := range stored {
		if stored[i].Version == version {
			target = i
			break
		}
	}
	if target < 0 {
		return fmt.Errorf("%w: case %s version %d", cases.ErrNotFound, caseID, version)
	}
	for i := range stored {
		if i == target {
			continue
		}
		if stored[i].Status != cases.VersionArchived {
			stored[i].Status = cases.VersionArchived
			stored[i].UpdatedAt = at
		}
	}
	approvedAt := at
	stored[target].Status = cases.VersionApproved
	stored[target].ApprovedBy = approver
	stored[target].ApprovedAt = &approvedAt
	stored[target].UpdatedAt = at
	return nil
}
