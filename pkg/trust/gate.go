package trust

import (
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Gate compares callers against the identity of the running daemon.
type Gate struct {
	resolver Resolver

	once    sync.Once
	self    Identity
	selfErr error
}

// NewGate returns a Gate backed by r.
func NewGate(r Resolver) *Gate {
	return &Gate{resolver: r}
}

// Self returns the daemon's own identity, resolved once.
func (g *Gate) Self() (Identity, error) {
	g.once.Do(func() {
		g.self, g.selfErr = g.resolver.Self()
		if g.selfErr == nil {
			logrus.WithField("identity", g.self.String()).Info("resolved daemon code-signing identity")
		}
	})
	return g.self, g.selfErr
}

// Verify returns nil only if pid runs an executable signed with exactly the
// daemon's certificate chain.
func (g *Gate) Verify(pid int) error {
	self, err := g.Self()
	if err != nil {
		return pkgerrors.Wrapf(ErrUnauthorized, "cannot resolve own identity: %v", err)
	}

	peer, err := g.resolver.ForPID(pid)
	if err != nil {
		return pkgerrors.Wrapf(ErrUnauthorized, "cannot resolve identity of pid %d: %v", pid, err)
	}

	if !self.Equal(peer) {
		return pkgerrors.Wrapf(ErrUnauthorized, "pid %d is signed by %s", pid, peer)
	}

	return nil
}
