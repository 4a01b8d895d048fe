//go:build !darwin

package smc

type unavailableTransport struct{}

// NewTransport returns a transport that always fails to open: there is no
// controller service outside macOS. Use NewSimulator instead.
func NewTransport() Transport {
	return unavailableTransport{}
}

func (unavailableTransport) Open() error                    { return ErrChannelUnavailable }
func (unavailableTransport) Close() error                   { return nil }
func (unavailableTransport) Call(*KeyData) (*KeyData, error) { return nil, ErrChannelUnavailable }
