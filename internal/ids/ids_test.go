package ids

import (
	"regexp"
	"sync"
	"testing"
	"time"
)

func TestNewUniqueAndSortable(t *testing.T) {
	const n = 1000
	seen := make(map[string]bool, n)
	var prev string
	for i := 0; i < n; i++ {
		id := New()
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
		if prev != "" && id <= prev {
			t.Fatalf("ids not monotonic: %s after %s", id, prev)
		}
		prev = id
	}
}

func TestNewConcurrent(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				id := New()
				mu.Lock()
				if seen[id] {
					t.Error("duplicate id under concurrency")
				}
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
}

func TestNewAtOrdersByTimestamp(t *testing.T) {
	early := NewAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	late := NewAt(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	if early >= late {
		t.Fatalf("timestamp order not reflected in ids: %s >= %s", early, late)
	}
}

func TestCaseNumber(t *testing.T) {
	now := time.Date(2026, 5, 14, 10, 0, 0, 0, time.UTC)
	pattern := regexp.MustCompile(`^[A-Z0-9]{1,3}-20260514-[A-Z0-9]{6}$`)

	tests := []struct {
		orgName    string
		wantPrefix string
	}{
		{"Branch A", "BRA"},
		{"branch-9 south", "BRA"},
		{"HQ", "HQ"},
		{"慕尼黑", "ORG"},
		{"", "ORG"},
	}
	for _, tc := range tests {
		got := CaseNumber(tc.orgName, now)
		if !pattern.MatchString(got) {
			t.Errorf("CaseNumber(%q) = %q, malformed", tc.orgName, got)
		}
		if got[:len(tc.wantPrefix)] != tc.wantPrefix {
			t.Errorf("CaseNumber(%q) = %q, want prefix %q", tc.orgName, got, tc.wantPrefix)
		}
	}

	if CaseNumber("Branch A", now) == CaseNumber("Branch A", now) {
		t.Fatal("case numbers collide for the same org and day")
	}
}
