// Package types holds the JSON contracts shared by the daemon, its client
// and the agent.
package types

import (
	"errors"

	"github.com/cshariq/Sapphire-sub003/pkg/smc"
	"github.com/cshariq/Sapphire-sub003/pkg/trust"
)

// FanMode is the controller-level mode of a fan.
type FanMode string

const (
	FanModeAuto   FanMode = "auto"
	FanModeForced FanMode = "forced"
)

// FanModeRequest is the body of PUT /fans/:index/mode.
type FanModeRequest struct {
	Mode FanMode `json:"mode"`
}

// RPMRequest is the body of the fan speed endpoints.
type RPMRequest struct {
	RPM int `json:"rpm"`
}

// RPMResponse reports the speed actually written after clamping.
type RPMResponse struct {
	RPM int `json:"rpm"`
}

// LimitResponse reports the charge limit actually stored after clamping.
type LimitResponse struct {
	Limit int `json:"limit"`
}

// ValueResponse carries a single decoded reading.
type ValueResponse struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
}

// ErrorKind classifies failures so they survive the trip over the socket.
type ErrorKind string

const (
	KindKeyNotFound          ErrorKind = "KeyNotFound"
	KindWriteRejected        ErrorKind = "WriteRejected"
	KindUnsupportedOperation ErrorKind = "UnsupportedOperation"
	KindUnsupportedType      ErrorKind = "UnsupportedType"
	KindChannelUnavailable   ErrorKind = "ChannelUnavailable"
	KindUnauthorized         ErrorKind = "Unauthorized"
	KindBadRequest           ErrorKind = "BadRequest"
	KindInternal             ErrorKind = "Internal"
)

// ErrBadRequest marks invalid input.
var ErrBadRequest = errors.New("bad request")

var kindErrors = map[ErrorKind]error{
	KindKeyNotFound:          smc.ErrKeyNotFound,
	KindWriteRejected:        smc.ErrWriteRejected,
	KindUnsupportedOperation: smc.ErrUnsupportedOperation,
	KindUnsupportedType:      smc.ErrUnsupportedType,
	KindChannelUnavailable:   smc.ErrChannelUnavailable,
	KindUnauthorized:         trust.ErrUnauthorized,
	KindBadRequest:           ErrBadRequest,
}

// KindOf classifies err.
func KindOf(err error) ErrorKind {
	for kind, sentinel := range kindErrors {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindInternal
}

// Err returns the sentinel for k, or nil for KindInternal.
func (k ErrorKind) Err() error {
	return kindErrors[k]
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string    `json:"error"`
	Kind  ErrorKind `json:"kind"`
}
