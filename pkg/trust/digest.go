package trust

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	pkgerrors "github.com/pkg/errors"
)

// DigestResolver identifies a process by the SHA-256 of its executable. It
// stands in for code signing on platforms without it, yielding a one entry
// chain.
type DigestResolver struct{}

func (DigestResolver) Self() (Identity, error) {
	path, err := os.Executable()
	if err != nil {
		return Identity{}, err
	}
	return digestIdentity(path)
}

func (DigestResolver) ForPID(pid int) (Identity, error) {
	path, err := executablePath(pid)
	if err != nil {
		return Identity{}, err
	}
	return digestIdentity(path)
}

func digestIdentity(path string) (Identity, error) {
	f, err := os.Open(path)
	if err != nil {
		return Identity{}, pkgerrors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return Identity{}, pkgerrors.Wrapf(err, "failed to hash %s", path)
	}

	return Identity{Chain: []string{hex.EncodeToString(h.Sum(nil))}}, nil
}
