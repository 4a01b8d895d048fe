//go:build !darwin

package smc

import (
	"sync"

	pkgerrors "github.com/pkg/errors"
)

// mapStore is used where the gosmc package, which needs IOKit, cannot be
// built.
type mapStore struct {
	mu     sync.Mutex
	values map[string][]byte
}

func newByteStore() byteStore {
	return &mapStore{values: map[string][]byte{}}
}

func (s *mapStore) Open() error  { return nil }
func (s *mapStore) Close() error { return nil }

func (s *mapStore) Read(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return nil, pkgerrors.Errorf("no value for %s", key)
	}
	return append([]byte(nil), v...), nil
}

func (s *mapStore) Write(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = append([]byte(nil), value...)
	return nil
}
