package plan

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"caseshare.org/internal/cases"
)

func testService() *Service {
	return NewService(NewInMemoryVersions(), NewCaseLocks(2*time.Second))
}

func TestCreateDraftSequence(t *testing.T) {
	s := testService()
	ctx := context.Background()

	ref, err := s.CreateDraft(ctx, "c1", "dr-a", cases.PlanContent{"tooth": "16"})
	if err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}
	if ref.Version != 1 || ref.Status != cases.VersionDraft {
		t.Fatalf("unexpected first version: %+v", ref)
	}
	if ref.Token == "" {
		t.Fatal("draft has no concurrency token")
	}
}

func TestCreateDraftConflictsWithExistingHead(t *testing.T) {
	s := testService()
	ctx := context.Background()
	if _, err := s.CreateDraft(ctx, "c1", "dr-a", cases.PlanContent{}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateDraft(ctx, "c1", "dr-b", cases.PlanContent{}); !errors.Is(err, cases.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestUpdateDraftRotatesToken(t *testing.T) {
	s := testService()
	ctx := context.Background()
	ref, _ := s.CreateDraft(ctx, "c1", "dr-a", cases.PlanContent{"tooth": "16"})

	updated, err := s.UpdateDraft(ctx, "c1", ref.Version, ref.Token, "dr-a", cases.PlanContent{"tooth": "17"})
	if err != nil {
		t.Fatalf("UpdateDraft: %v", err)
	}
	if updated.Version != ref.Version {
		t.Fatalf("update changed the version number: %d -> %d", ref.Version, updated.Version)
	}
	if updated.Token == ref.Token {
		t.Fatal("token did not rotate on update")
	}

	// The stale token must now be rejected.
	if _, err := s.UpdateDraft(ctx, "c1", ref.Version, ref.Token, "dr-b", cases.PlanContent{"tooth": "18"}); !errors.Is(err, cases.ErrStaleWrite) {
		t.Fatalf("expected ErrStaleWrite, got %v", err)
	}

	v, err := s.Version(ctx, "c1", ref.Version)
	if err != nil {
		t.Fatal(err)
	}
	if v.Content["tooth"] != "17" {
		t.Fatalf("stale write changed content: %v", v.Content)
	}
}

func TestApproveLifecycle(t *testing.T) {
	s := testService()
	ctx := context.Background()

	r1, _ := s.CreateDraft(ctx, "c1", "dr-a", cases.PlanContent{"step": 1})
	a1, err := s.Approve(ctx, "c1", r1.Version, "dr-a")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if a1.Status != cases.VersionApproved {
		t.Fatalf("approved version in status %s", a1.Status)
	}

	// A new draft supersedes the approval on its own approval.
	r2, err := s.CreateDraft(ctx, "c1", "dr-b", cases.PlanContent{"step": 2})
	if err != nil {
		t.Fatalf("CreateDraft after approval: %v", err)
	}
	if r2.Version != 2 {
		t.Fatalf("second draft is v%d, want v2", r2.Version)
	}
	if _, err := s.Approve(ctx, "c1", r2.Version, "dr-b"); err != nil {
		t.Fatal(err)
	}

	v1, _ := s.Version(ctx, "c1", 1)
	if v1.Status != cases.VersionArchived {
		t.Fatalf("superseded version in status %s, want ARCHIVED", v1.Status)
	}

	// Approving the archived version is a conflict, not a resurrection.
	if _, err := s.Approve(ctx, "c1", 1, "dr-a"); !errors.Is(err, cases.ErrAlreadyApproved) {
		t.Fatalf("expected ErrAlreadyApproved for archived version, got %v", err)
	}
}

func TestApproveIdempotentForSameApprover(t *testing.T) {
	s := testService()
	ctx := context.Background()
	ref, _ := s.CreateDraft(ctx, "c1", "dr-a", cases.PlanContent{})
	first, err := s.Approve(ctx, "c1", ref.Version, "dr-a")
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Approve(ctx, "c1", ref.Version, "dr-a")
	if err != nil {
		t.Fatalf("idempotent retry failed: %v", err)
	}
	if first != second {
		t.Fatalf("retry returned a different ref: %+v != %+v", first, second)
	}

	if _, err := s.Approve(ctx, "c1", ref.Version, "dr-x"); !errors.Is(err, cases.ErrAlreadyApproved) {
		t.Fatalf("expected ErrAlreadyApproved for other approver, got %v", err)
	}
}

func TestConcurrentDraftCreationGaplessNumbers(t *testing.T) {
	s := testService()
	ctx := context.Background()

	rounds := 20
	for i := 0; i < rounds; i++ {
		var wg sync.WaitGroup
		wins := make(chan cases.VersionRef, 8)
		for j := 0; j < 8; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if ref, err := s.CreateDraft(ctx, "c1", "dr", cases.PlanContent{}); err == nil {
					wins <- ref
				}
			}()
		}
		wg.Wait()
		close(wins)

		var won []cases.VersionRef
		for ref := range wins {
			won = append(won, ref)
		}
		if len(won) != 1 {
			t.Fatalf("round %d: %d drafts created concurrently, want exactly 1", i, len(won))
		}
		if _, err := s.Approve(ctx, "c1", won[0].Version, "dr"); err != nil {
			t.Fatal(err)
		}
	}

	versions, err := s.Versions(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(versions) != rounds {
		t.Fatalf("%d versions stored, want %d", len(versions), rounds)
	}
	for i, v := range versions {
		if v.Version != i+1 {
			t.Fatalf("version sequence has a gap: index %d holds v%d", i, v.Version)
		}
	}
}

func TestLockTimeoutSurfacesRetryable(t *testing.T) {
	locks := NewCaseLocks(50 * time.Millisecond)
	s := NewService(NewInMemoryVersions(), locks)
	ctx := context.Background()

	release, err := locks.Acquire(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	if _, err := s.CreateDraft(ctx, "c1", "dr-a", cases.PlanContent{}); !errors.Is(err, cases.ErrRetryable) {
		t.Fatalf("expected ErrRetryable while lock held, got %v", err)
	}
}

func TestUpdateNonDraftVersionConflicts(t *testing.T) {
	s := testService()
	ctx := context.Background()
	ref, _ := s.CreateDraft(ctx, "c1", "dr-a", cases.PlanContent{})
	if _, err := s.Approve(ctx, "c1", ref.Version, "dr-a"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.UpdateDraft(ctx, "c1", ref.Version, ref.Token, "dr-a", cases.PlanContent{}); !errors.Is(err, cases.ErrConflict) {
		t.Fatalf("expected ErrConflict editing approved version, got %v", err)
	}
}

func TestHead(t *testing.T) {
	s := testService()
	ctx := context.Background()

	if _, ok, _ := s.Head(ctx, "c1"); ok {
		t.Fatal("empty case reported a head")
	}
	ref, _ := s.CreateDraft(ctx, "c1", "dr-a", cases.PlanContent{})
	head, ok, err := s.Head(ctx, "c1")
	if err != nil || !ok {
		t.Fatalf("head not found: ok=%v err=%v", ok, err)
	}
	if head.Version != ref.Version {
		t.Fatalf("head is v%d, want v%d", head.Version, ref.Version)
	}
}
