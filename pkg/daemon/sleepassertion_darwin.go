//go:build darwin

package daemon

/*
#cgo LDFLAGS:  -framework CoreFoundation -framework IOKit

#include <stdlib.h>
#include <CoreFoundation/CoreFoundation.h>
#include <IOKit/pwr_mgt/IOPMLib.h>

// Expose the macro
const CFStringRef AssertionTypePreventSystemSleep = kIOPMAssertionTypePreventSystemSleep;
const IOPMAssertionID NullAssertionID = kIOPMNullAssertionID;
*/
import "C"

import (
	"unsafe"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type pmAssertion struct {
	id C.IOPMAssertionID
}

func newSleepInhibitor() SleepInhibitor {
	return &pmAssertion{id: C.NullAssertionID}
}

func (a *pmAssertion) Prevent() error {
	if a.id != C.NullAssertionID {
		return nil
	}

	cname := C.CString("smcctl")
	cdetail := C.CString("Hardware control by smcctl is in progress")
	defer C.free(unsafe.Pointer(cname))
	defer C.free(unsafe.Pointer(cdetail))

	cfName := C.CFStringCreateWithCString(C.kCFAllocatorDefault, cname, C.kCFStringEncodingUTF8)
	cfDetails := C.CFStringCreateWithCString(C.kCFAllocatorDefault, cdetail, C.kCFStringEncodingUTF8)
	defer C.CFRelease(C.CFTypeRef(cfName))
	defer C.CFRelease(C.CFTypeRef(cfDetails))

	var id C.IOPMAssertionID
	status := C.IOPMAssertionCreateWithDescription(
		C.AssertionTypePreventSystemSleep,
		cfName,
		cfDetails,
		0,
		0,
		0,
		0,
		&id,
	)
	if status != C.kIOReturnSuccess {
		return pkgerrors.Errorf("IOPMAssertionCreateWithDescription failed: 0x%x", uint32(status))
	}

	a.id = id
	logrus.WithField("assertion", uint32(id)).Debug("system sleep assertion created")
	return nil
}

func (a *pmAssertion) Allow() error {
	if a.id == C.NullAssertionID {
		return nil
	}

	status := C.IOPMAssertionRelease(a.id)
	a.id = C.NullAssertionID
	if status != C.kIOReturnSuccess {
		return pkgerrors.Errorf("IOPMAssertionRelease failed: 0x%x", uint32(status))
	}

	logrus.Debug("system sleep assertion released")
	return nil
}
