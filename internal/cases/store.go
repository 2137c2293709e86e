package cases

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Filter narrows case listings. Zero values mean "no constraint".
type Filter struct {
	Status      CaseStatus
	Priority    Priority
	Query       string // matched against title and case number
	CreatedFrom time.Time
	CreatedTo   time.Time
}

// Matches reports whether c passes the filter. Scope and share filtering
// happen elsewhere; this is only the caller-supplied narrowing.
func (f Filter) Matches(c Case) bool {
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	if f.Priority != "" && c.Priority != f.Priority {
		return false
	}
	if f.Query != "" {
		q := strings.ToLower(f.Query)
		if !strings.Contains(strings.ToLower(c.Title), q) && !strings.Contains(strings.ToLower(c.Number), q) {
			return false
		}
	}
	if !f.CreatedFrom.IsZero() && c.CreatedAt.Before(f.CreatedFrom) {
		return false
	}
	if !f.CreatedTo.IsZero() && c.CreatedAt.After(f.CreatedTo) {
		return false
	}
	return true
}

// Store persists organizations, cases and share policies.
type Store interface {
	CreateOrganization(ctx context.Context, org Organization) error
	GetOrganization(ctx context.Context, id string) (Organization, error)
	ListOrganizations(ctx context.Context) ([]Organization, error)

	CreateCase(ctx context.Context, c Case) error
	GetCase(ctx context.Context, id string) (Case, error)
	UpdateCase(ctx context.Context, c Case) error
	// ListCases returns filter matches ordered by creation time descending.
	ListCases(ctx context.Context, f Filter) ([]Case, error)

	// GetPolicy returns nil when the case has no share policy.
	GetPolicy(ctx context.Context, caseID string) (*SharePolicy, error)
	SetPolicy(ctx context.Context, p SharePolicy) error
}

// InMemoryStore implements Store with in-process concurrency safety. The
// durable variant lives in the pg store.
type InMemoryStore struct {
	mu       sync.RWMutex
	orgs     map[string]Organization
	cases    map[string]Case
	policies map[string]SharePolicy
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		orgs:     make(map[string]Organization),
		cases:    make(map[string]Case),
		policies: make(map[string]SharePolicy),
	}
}

func (s *InMemoryStore) CreateOrganization(ctx context.Context, org Organization) error {
	if org.ID == "" {
		return fmt.Errorf("%w: organization id is required", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orgs[org.ID]; ok {
		return fmt.Errorf("%w: organization %s", ErrConflict, org.ID)
	}
	s.orgs[org.ID] = org
	return nil
}

func (s *InMemoryStore) GetOrganization(ctx context.Context, id string) (Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	org, ok := s.orgs[id]
	if !ok {
		return Organization{}, fmt.Errorf("%w: organization %s", ErrNotFound, id)
	}
	return org, nil
}

func (s *InMemoryStore) ListOrganizations(ctx context.Context) ([]Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Organization, 0, len(s.orgs))
	for _, org := range s.orgs {
		out = append(out, org)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemoryStore) CreateCase(ctx context.Context, c Case) error {
	if c.ID == "" || c.OwningOrg == "" {
		return fmt.Errorf("%w: case id and owning org are required", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cases[c.ID]; ok {
		return fmt.Errorf("%w: case %s", ErrConflict, c.ID)
	}
	if _, ok := s.orgs[c.OwningOrg]; !ok {
		return fmt.Errorf("%w: organization %s", ErrNotFound, c.OwningOrg)
	}
	s.cases[c.ID] = c
	return nil
}

func (s *InMemoryStore) GetCase(ctx context.Context, id string) (Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cases[id]
	if !ok {
		return Case{}, fmt.Errorf("%w: case %s", ErrNotFound, id)
	}
	return c, nil
}

func (s *InMemoryStore) UpdateCase(ctx context.Context, c Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cases[c.ID]; !ok {
		return fmt.Errorf("%w: case %s", ErrNotFound, c.ID)
	}
	s.cases[c.ID] = c
	return nil
}

func (s *InMemoryStore) ListCases(ctx context.Context, f Filter) ([]Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Case
	for _, c := range s.cases {
		if f.Matches(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) GetPolicy(ctx context.Context, caseID string) (*SharePolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[caseID]
	if !ok {
		return nil, nil
	}
	out := p
	return &out, nil
}

func (s *InMemoryStore) SetPolicy(ctx context.Context, p SharePolicy) error {
	if !p.Scope.Valid() {
		return fmt.Errorf("%w: unknown share scope %s", ErrInvalidInput, p.Scope)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cases[p.CaseID]; !ok {
		return fmt.Errorf("%w: case %s", ErrNotFound, p.CaseID)
	}
	s.policies[p.CaseID] = p
	return nil
}
