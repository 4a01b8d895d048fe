// Package trust decides which local processes may talk to the privileged
// daemon. A caller is trusted when its code-signing certificate chain is
// identical to the daemon's own.
package trust

import (
	"errors"
	"strings"
)

// ErrUnauthorized is returned when a caller's identity cannot be resolved or
// does not match.
var ErrUnauthorized = errors.New("caller is not authorized")

// Identity is an ordered certificate chain, leaf first, each entry being the
// hex SHA-256 fingerprint of one DER certificate.
type Identity struct {
	Chain []string `json:"chain"`
}

// Equal reports whether both chains have the same certificates in the same
// order. Empty chains never match.
func (i Identity) Equal(other Identity) bool {
	if len(i.Chain) == 0 || len(i.Chain) != len(other.Chain) {
		return false
	}
	for n := range i.Chain {
		if !strings.EqualFold(i.Chain[n], other.Chain[n]) {
			return false
		}
	}
	return true
}

func (i Identity) String() string {
	if len(i.Chain) == 0 {
		return "<unsigned>"
	}
	short := make([]string, len(i.Chain))
	for n, fp := range i.Chain {
		if len(fp) > 12 {
			fp = fp[:12]
		}
		short[n] = fp
	}
	return strings.Join(short, ">")
}

// Resolver looks up code-signing identities.
type Resolver interface {
	// Self returns the identity of the running executable.
	Self() (Identity, error)
	// ForPID returns the identity of the executable backing pid.
	ForPID(pid int) (Identity, error)
}
