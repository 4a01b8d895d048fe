//go:build darwin

package smc

/*
#cgo LDFLAGS: -framework IOKit -framework CoreFoundation

#include <IOKit/IOKitLib.h>
#include <mach/mach.h>

typedef struct {
	unsigned char  major;
	unsigned char  minor;
	unsigned char  build;
	unsigned char  reserved;
	unsigned short release;
} smc_vers_t;

typedef struct {
	uint16_t version;
	uint16_t length;
	uint32_t cpuPLimit;
	uint32_t gpuPLimit;
	uint32_t memPLimit;
} smc_plimit_t;

typedef struct {
	uint32_t dataSize;
	uint32_t dataType;
	uint8_t  dataAttributes;
} smc_keyinfo_t;

typedef struct {
	uint32_t      key;
	smc_vers_t    vers;
	smc_plimit_t  pLimitData;
	smc_keyinfo_t keyInfo;
	uint8_t       result;
	uint8_t       status;
	uint8_t       data8;
	uint32_t      data32;
	uint8_t       bytes[32];
} smc_keydata_t;

static kern_return_t smc_open(io_connect_t *conn) {
	io_service_t device = IOServiceGetMatchingService(MACH_PORT_NULL, IOServiceMatching("AppleSMC"));
	if (device == 0) {
		return kIOReturnNotFound;
	}
	kern_return_t ret = IOServiceOpen(device, mach_task_self(), 0, conn);
	IOObjectRelease(device);
	return ret;
}

static kern_return_t smc_close(io_connect_t conn) {
	return IOServiceClose(conn);
}

static kern_return_t smc_call(io_connect_t conn, uint32_t selector, smc_keydata_t *in, smc_keydata_t *out) {
	size_t outSize = sizeof(smc_keydata_t);
	return IOConnectCallStructMethod(conn, selector, in, sizeof(smc_keydata_t), out, &outSize);
}
*/
import "C"

import (
	"sync"

	pkgerrors "github.com/pkg/errors"
)

type ioKitTransport struct {
	mu   sync.Mutex
	conn C.io_connect_t
	open bool
}

// NewTransport returns the IOKit transport to the AppleSMC service.
func NewTransport() Transport {
	return &ioKitTransport{}
}

func (t *ioKitTransport) Open() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.open {
		return nil
	}

	var conn C.io_connect_t
	if ret := C.smc_open(&conn); ret != C.KERN_SUCCESS {
		return pkgerrors.Wrapf(ErrChannelUnavailable, "IOServiceOpen(AppleSMC) failed: 0x%x", uint32(ret))
	}
	t.conn = conn
	t.open = true

	return nil
}

func (t *ioKitTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.open {
		return nil
	}
	t.open = false
	if ret := C.smc_close(t.conn); ret != C.KERN_SUCCESS {
		return pkgerrors.Errorf("IOServiceClose failed: 0x%x", uint32(ret))
	}

	return nil
}

func (t *ioKitTransport) Call(in *KeyData) (*KeyData, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.open {
		return nil, ErrChannelUnavailable
	}

	var cin, cout C.smc_keydata_t
	cin.key = C.uint32_t(in.Key)
	cin.keyInfo.dataSize = C.uint32_t(in.KeyInfo.DataSize)
	cin.keyInfo.dataType = C.uint32_t(in.KeyInfo.DataType)
	cin.keyInfo.dataAttributes = C.uint8_t(in.KeyInfo.DataAttributes)
	cin.data8 = C.uint8_t(in.Data8)
	cin.data32 = C.uint32_t(in.Data32)
	for i := range in.Bytes {
		cin.bytes[i] = C.uint8_t(in.Bytes[i])
	}

	if ret := C.smc_call(t.conn, C.uint32_t(SelectorKernelIndex), &cin, &cout); ret != C.KERN_SUCCESS {
		return nil, pkgerrors.Errorf("IOConnectCallStructMethod failed: 0x%x", uint32(ret))
	}

	out := &KeyData{
		Key: uint32(cout.key),
		KeyInfo: KeyInfo{
			DataSize:       uint32(cout.keyInfo.dataSize),
			DataType:       uint32(cout.keyInfo.dataType),
			DataAttributes: uint8(cout.keyInfo.dataAttributes),
		},
		Result: uint8(cout.result),
		Status: uint8(cout.status),
		Data8:  Selector(cout.data8),
		Data32: uint32(cout.data32),
	}
	for i := range out.Bytes {
		out.Bytes[i] = byte(cout.bytes[i])
	}
	if out.Result != 0 {
		return out, pkgerrors.Errorf("controller returned result 0x%x", out.Result)
	}

	return out, nil
}
