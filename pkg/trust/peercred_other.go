//go:build !linux && !darwin

package trust

import "errors"

func peerPID(int) (int, error) {
	return 0, errors.New("peer credentials are not supported on this platform")
}
