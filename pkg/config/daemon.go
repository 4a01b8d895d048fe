package config

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/cshariq/Sapphire-sub003/pkg/utils/ptr"
)

// Daemon is the configuration of the privileged process.
type Daemon interface {
	AllowNonRootAccess() bool
	EnableMetrics() bool

	SetAllowNonRootAccess(bool)
	SetEnableMetrics(bool)

	Load() error
	Save() error
	LogrusFields() logrus.Fields
}

var defaultDaemonConfig = RawDaemonConfig{
	AllowNonRootAccess: ptr.To(false),
	EnableMetrics:      ptr.To(true),
}

// RawDaemonConfig is the on-disk form. Nil fields take their defaults.
type RawDaemonConfig struct {
	// AllowNonRootAccess only widens the socket file mode. Callers still
	// have to pass the code signature check.
	AllowNonRootAccess *bool `json:"allowNonRootAccess,omitempty"`
	EnableMetrics      *bool `json:"enableMetrics,omitempty"`
}

var _ Daemon = &DaemonFile{}

// DaemonFile is a Daemon backed by a JSON file.
type DaemonFile struct {
	mu       sync.RWMutex
	c        RawDaemonConfig
	filepath string
}

// NewDaemonFile loads path. A missing file yields the defaults.
func NewDaemonFile(path string) (*DaemonFile, error) {
	f := &DaemonFile{filepath: path}
	if err := f.Load(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *DaemonFile) AllowNonRootAccess() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return ptr.Deref(f.c.AllowNonRootAccess, *defaultDaemonConfig.AllowNonRootAccess)
}

func (f *DaemonFile) EnableMetrics() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return ptr.Deref(f.c.EnableMetrics, *defaultDaemonConfig.EnableMetrics)
}

func (f *DaemonFile) SetAllowNonRootAccess(b bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.AllowNonRootAccess = &b
}

func (f *DaemonFile) SetEnableMetrics(b bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.EnableMetrics = &b
}

func (f *DaemonFile) Load() error {
	var c RawDaemonConfig
	if _, err := loadJSON(f.filepath, &c); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c = c
	return nil
}

func (f *DaemonFile) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return saveJSON(f.filepath, f.c)
}

func (f *DaemonFile) LogrusFields() logrus.Fields {
	return logrus.Fields{
		"allowNonRootAccess": f.AllowNonRootAccess(),
		"enableMetrics":      f.EnableMetrics(),
	}
}
