package authdb

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrKeyNotFound is returned by Prove when a key has no committed value.
var ErrKeyNotFound = errors.New("authdb: key not found")

// MaxLevelExceeded wraps forest.ErrMaxLevelExceeded in authdb's own
// terminology: the allocator could not place a key within the configured
// maximum forest depth without finding a vacant slot. Fatal — callers
// should treat it as indicating severe adversarial key collision, not
// retry.
type MaxLevelExceeded struct {
	cause error
}

func (e *MaxLevelExceeded) Error() string { return "authdb: " + e.cause.Error() }
func (e *MaxLevelExceeded) Unwrap() error { return e.cause }

// ProofMismatch is returned only from Verify: exactly one of "AMT pairing",
// "Merkle", or "version-consistency" failed at the given level. Ported
// from spec.md §7's ProofMismatch(reason) error kind.
type ProofMismatch struct {
	Reason string
	Level  int
}

func (e *ProofMismatch) Error() string {
	return fmt.Sprintf("authdb: %s at level %d", e.Reason, e.Level)
}
