package smc

import (
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Channel is the single connection to the controller. Every call is
// serialized; the underlying service is not safe for concurrent use.
type Channel struct {
	mu        sync.Mutex
	transport Transport
}

// New returns a Channel over the platform transport.
func New() *Channel {
	return NewChannel(NewTransport())
}

// NewChannel returns a Channel over t.
func NewChannel(t Transport) *Channel {
	return &Channel{transport: t}
}

// Open opens the connection.
func (c *Channel) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.transport.Open(); err != nil {
		if pkgerrors.Is(err, ErrChannelUnavailable) {
			return err
		}
		return pkgerrors.Wrap(ErrChannelUnavailable, err.Error())
	}
	return nil
}

// Close closes the connection.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.transport.Close()
}

// ReadKey performs the two-phase read: metadata first, then exactly
// DataSize bytes.
func (c *Channel) ReadKey(code string) (Key, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.readKey(code)
}

// WriteKey writes b to code in a single call.
func (c *Channel) WriteKey(code string, b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.writeKey(code, b)
}

// ReadValue reads code and decodes it.
func (c *Channel) ReadValue(code string) (float64, error) {
	k, err := c.ReadKey(code)
	if err != nil {
		return 0, err
	}
	return k.Value()
}

// ReadString reads a string-typed key.
func (c *Channel) ReadString(code string) (string, error) {
	k, err := c.ReadKey(code)
	if err != nil {
		return "", err
	}
	return DecodeString(k.Type, k.Bytes)
}

// HasKey reports whether the controller knows code.
func (c *Channel) HasKey(code string) bool {
	_, err := c.ReadKey(code)
	return err == nil
}

// EnumerateKeys lists every key code the controller reports, in index order.
func (c *Channel) EnumerateKeys() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	countKey, err := c.readKey(KeyCountKey)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to read key count")
	}
	count, err := countKey.Value()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to decode key count")
	}

	keys := make([]string, 0, int(count))
	for i := 0; i < int(count); i++ {
		out, err := c.transport.Call(&KeyData{Data8: SelectorReadIndex, Data32: uint32(i)})
		if err != nil {
			logrus.WithError(err).WithField("index", i).Debug("readIndex failed, skipping")
			continue
		}
		keys = append(keys, FourCCString(out.Key))
	}

	logrus.WithField("count", len(keys)).Debug("enumerated controller keys")

	return keys, nil
}

// SetFanForceBit sets or clears the force flag of fan index in the shared
// force mask, then writes the fan's own mode byte. A missing mask key is
// logged and tolerated; the mode byte is written regardless.
func (c *Channel) SetFanForceBit(index int, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	log := logrus.WithFields(logrus.Fields{
		"fan":    index,
		"forced": enabled,
	})

	var maskErr error
	if maskKey, err := c.readKey(FanForceMaskKey); err != nil || len(maskKey.Bytes) < 2 {
		log.Warn("fan force mask not available on this model, skipping")
	} else {
		mask := FanMaskFromBytes(maskKey.Bytes)
		updated := mask.With(index, enabled)
		if updated == mask {
			log.Tracef("force mask already 0x%04x, not writing", uint16(mask))
		} else {
			log.Debugf("updating force mask 0x%04x -> 0x%04x", uint16(mask), uint16(updated))
			maskErr = c.writeKey(FanForceMaskKey, updated.Bytes())
			if maskErr != nil {
				log.WithError(maskErr).Error("failed to write fan force mask")
			}
		}
	}

	mode := byte(0)
	if enabled {
		mode = 1
	}
	if err := c.writeKey(FanKey(index, fanModeSuffix), []byte{mode}); err != nil {
		log.WithError(err).Error("failed to write fan mode byte")
		return err
	}

	return maskErr
}

func (c *Channel) readKey(code string) (Key, error) {
	logrus.WithField("key", code).Trace("Trying to read from SMC")

	fcc, err := FourCC(code)
	if err != nil {
		return Key{}, err
	}

	info, err := c.transport.Call(&KeyData{Key: fcc, Data8: SelectorReadKeyInfo})
	if err != nil {
		return Key{}, pkgerrors.Wrapf(ErrKeyNotFound, "%s: %v", code, err)
	}

	size := info.KeyInfo.DataSize
	if size > MaxPayload {
		return Key{}, pkgerrors.Wrapf(ErrPayloadTooLarge, "%s reports %d bytes", code, size)
	}

	data, err := c.transport.Call(&KeyData{
		Key:     fcc,
		KeyInfo: KeyInfo{DataSize: size},
		Data8:   SelectorReadBytes,
	})
	if err != nil {
		return Key{}, pkgerrors.Wrapf(err, "failed to read bytes of %s", code)
	}

	k := Key{
		Code:  code,
		Type:  DataType(FourCCString(info.KeyInfo.DataType)),
		Bytes: append([]byte(nil), data.Bytes[:size]...),
	}

	logrus.WithFields(logrus.Fields{
		"key":  code,
		"type": k.Type,
		"val":  k.Bytes,
	}).Trace("Load from SMC succeed")

	return k, nil
}

func (c *Channel) writeKey(code string, b []byte) error {
	logrus.WithFields(logrus.Fields{
		"key": code,
		"val": b,
	}).Trace("Trying to write to SMC")

	if len(b) > MaxPayload {
		return pkgerrors.Wrapf(ErrPayloadTooLarge, "write %s", code)
	}
	fcc, err := FourCC(code)
	if err != nil {
		return err
	}

	in := &KeyData{
		Key:     fcc,
		KeyInfo: KeyInfo{DataSize: uint32(len(b))},
		Data8:   SelectorWriteBytes,
	}
	copy(in.Bytes[:], b)

	if _, err := c.transport.Call(in); err != nil {
		return pkgerrors.Wrapf(ErrWriteRejected, "%s: %v", code, err)
	}

	logrus.WithFields(logrus.Fields{
		"key": code,
		"val": b,
	}).Trace("Write to SMC succeed")

	return nil
}
