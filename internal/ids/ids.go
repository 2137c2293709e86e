package ids

import (
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a lexicographically sortable identifier suitable for storage keys.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NewAt returns an identifier whose timestamp component is fixed to ts.
// Audit events use this so that (timestamp, id) sorts in event order.
func NewAt(ts time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(ts), entropy).String()
}

// CaseNumber builds a human-readable case number of the form
// PREFIX-YYYYMMDD-RANDOM6, where PREFIX is derived from the owning
// organization's name.
func CaseNumber(orgName string, now time.Time) string {
	prefix := strings.ToUpper(orgName)
	prefix = strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, prefix)
	if len(prefix) > 3 {
		prefix = prefix[:3]
	}
	if prefix == "" {
		prefix = "ORG"
	}
	suffix := strings.ToUpper(uuid.NewString()[:6])
	return prefix + "-" + now.Format("20060102") + "-" + suffix
}
