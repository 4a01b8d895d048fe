//go:build darwin

package smc

import "github.com/charlie0129/gosmc"

// gosmcStore keeps simulated values in a gosmc mock connection.
type gosmcStore struct {
	conn gosmc.Connection
}

func newByteStore() byteStore {
	return gosmcStore{conn: gosmc.NewMockConnection()}
}

func (s gosmcStore) Open() error  { return s.conn.Open() }
func (s gosmcStore) Close() error { return s.conn.Close() }

func (s gosmcStore) Read(key string) ([]byte, error) {
	v, err := s.conn.Read(key)
	if err != nil {
		return nil, err
	}
	return v.Bytes, nil
}

func (s gosmcStore) Write(key string, value []byte) error {
	return s.conn.Write(key, value)
}
