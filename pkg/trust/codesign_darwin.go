package trust

/*
#include <libproc.h>
#include <stdlib.h>
*/
import "C"

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"unsafe"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// CodeSignResolver extracts certificate chains with codesign(1).
type CodeSignResolver struct {
	// Codesign is the path to the codesign tool.
	Codesign string
}

// DefaultResolver returns the resolver for this platform.
func DefaultResolver() Resolver {
	return CodeSignResolver{Codesign: "/usr/bin/codesign"}
}

func (r CodeSignResolver) Self() (Identity, error) {
	path, err := os.Executable()
	if err != nil {
		return Identity{}, err
	}
	return r.chain(path)
}

func (r CodeSignResolver) ForPID(pid int) (Identity, error) {
	path, err := executablePath(pid)
	if err != nil {
		return Identity{}, err
	}
	return r.chain(path)
}

func (r CodeSignResolver) chain(path string) (Identity, error) {
	dir, err := os.MkdirTemp("", "smcctl-codesign-")
	if err != nil {
		return Identity{}, err
	}
	defer os.RemoveAll(dir)

	prefix := filepath.Join(dir, "cert")
	out, err := exec.Command(r.Codesign, "--display", "--extract-certificates="+prefix, path).CombinedOutput()
	if err != nil {
		return Identity{}, pkgerrors.Wrapf(err, "codesign %s: %s", path, out)
	}

	var id Identity
	for n := 0; ; n++ {
		der, err := os.ReadFile(prefix + strconv.Itoa(n))
		if os.IsNotExist(err) {
			break
		}
		if err != nil {
			return Identity{}, err
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return Identity{}, pkgerrors.Wrapf(err, "certificate %d of %s", n, path)
		}
		sum := sha256.Sum256(cert.Raw)
		id.Chain = append(id.Chain, hex.EncodeToString(sum[:]))
	}

	if len(id.Chain) == 0 {
		return Identity{}, pkgerrors.Errorf("%s is not signed", path)
	}

	logrus.WithFields(logrus.Fields{
		"path":     path,
		"identity": id.String(),
	}).Debug("extracted code-signing chain")

	return id, nil
}

func executablePath(pid int) (string, error) {
	buf := (*C.char)(C.malloc(C.PROC_PIDPATHINFO_MAXSIZE))
	defer C.free(unsafe.Pointer(buf))

	n := C.proc_pidpath(C.int(pid), unsafe.Pointer(buf), C.PROC_PIDPATHINFO_MAXSIZE)
	if n <= 0 {
		return "", pkgerrors.Errorf("proc_pidpath(%d) failed", pid)
	}

	return C.GoStringN(buf, n), nil
}
