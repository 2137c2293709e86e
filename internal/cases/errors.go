package cases

import "errors"

// Error taxonomy shared by every subsystem. Callers branch on these with
// errors.Is; subsystems wrap them with operation detail via fmt.Errorf("%w: ...").
var (
	// ErrPermissionDenied covers scope, role and state guard failures. It is
	// deliberately uniform: callers never learn whether the target exists.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrConflict signals a duplicate draft or an edit against a version that
	// is no longer the draft head. The caller should refetch and retry.
	ErrConflict = errors.New("conflict")

	// ErrStaleWrite signals an optimistic-concurrency token mismatch. Kept
	// distinct from ErrConflict so clients can merge or re-prompt.
	ErrStaleWrite = errors.New("stale write")

	// ErrNotFound covers unknown cases, versions and organizations.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyApproved signals an approval attempt on a case that already
	// has an approved head without a supersede.
	ErrAlreadyApproved = errors.New("already approved")

	// ErrRetryable covers lock-wait timeouts and transient store failures.
	// The caller may retry with backoff.
	ErrRetryable = errors.New("retryable")

	// ErrAuditWrite signals a failed durable audit write. For denials and
	// approvals it blocks the response; otherwise it is queued for retry.
	ErrAuditWrite = errors.New("audit write failed")

	// ErrInvalidInput covers malformed caller input.
	ErrInvalidInput = errors.New("invalid input")
)
