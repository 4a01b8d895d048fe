package trust

import (
	"net"
	"syscall"

	pkgerrors "github.com/pkg/errors"
)

// PeerPID returns the process id on the other end of a unix socket.
func PeerPID(conn net.Conn) (int, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return 0, pkgerrors.Errorf("%T does not expose a file descriptor", conn)
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return 0, err
	}

	var pid int
	var credErr error
	err = raw.Control(func(fd uintptr) {
		pid, credErr = peerPID(int(fd))
	})
	if err != nil {
		return 0, err
	}
	if credErr != nil {
		return 0, pkgerrors.Wrap(credErr, "failed to read peer credentials")
	}

	return pid, nil
}
