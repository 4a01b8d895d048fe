package smc

// byteStore holds raw key payloads for the Simulator.
type byteStore interface {
	Open() error
	Close() error
	Read(key string) ([]byte, error)
	Write(key string, value []byte) error
}
