//go:build !linux && !darwin

package trust

import "errors"

func executablePath(int) (string, error) {
	return "", errors.New("resolving executables by pid is not supported on this platform")
}

// DefaultResolver returns the resolver for this platform.
func DefaultResolver() Resolver {
	return DigestResolver{}
}
