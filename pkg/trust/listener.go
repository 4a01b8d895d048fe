package trust

import (
	"net"

	"github.com/sirupsen/logrus"
)

// Listener accepts only connections whose peer passes the Gate. Rejected
// connections are closed before anything is read or written.
type Listener struct {
	net.Listener
	gate *Gate

	// OnReject is called for every refused connection. Optional.
	OnReject func(pid int, err error)
}

// NewListener wraps l.
func NewListener(l net.Listener, g *Gate) *Listener {
	return &Listener{Listener: l, gate: g}
}

// Accept blocks until a trusted connection arrives.
func (l *Listener) Accept() (net.Conn, error) {
	for {
		conn, err := l.Listener.Accept()
		if err != nil {
			return nil, err
		}

		pid, err := PeerPID(conn)
		if err == nil {
			err = l.gate.Verify(pid)
		}
		if err == nil {
			logrus.WithField("pid", pid).Trace("accepted trusted connection")
			return conn, nil
		}

		logrus.WithError(err).WithField("pid", pid).Warn("rejected untrusted connection")
		if l.OnReject != nil {
			l.OnReject(pid, err)
		}
		_ = conn.Close()
	}
}
