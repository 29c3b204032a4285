package dispatch

import (
	"errors"
	"fmt"

	"lwwmerge/internal/device"
)

var (
	ErrClosed       = errors.New("dispatcher closed")
	ErrElementCount = errors.New("pair length does not match dispatcher element count")
)

// Kind classifies merge failures.
type Kind int

const (
	// KindCapability means no usable device or kernel. Raised at setup.
	KindCapability Kind = iota
	// KindResource means a device buffer could not be allocated.
	KindResource
	// KindTransfer means an upload or a host mapping failed or timed out.
	KindTransfer
	// KindDispatch means the kernel could not be encoded or faulted.
	KindDispatch
)

func (k Kind) String() string {
	switch k {
	case KindCapability:
		return "capability"
	case KindResource:
		return "resource"
	case KindTransfer:
		return "transfer"
	case KindDispatch:
		return "dispatch"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Phase names the step of a merge call that failed.
type Phase string

const (
	PhaseSetup    Phase = "setup"
	PhaseUpload   Phase = "upload"
	PhaseDispatch Phase = "dispatch"
	PhaseReadback Phase = "readback"
)

// Error is returned by Open, New and Merge. None of these failures is
// retried.
type Error struct {
	Kind  Kind
	Phase Phase
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error during %s: %v", e.Kind, e.Phase, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// newError classifies err by the device sentinel it wraps, falling back to
// the phase default.
func newError(phase Phase, err error) *Error {
	kind := KindTransfer
	switch {
	case errors.Is(err, device.ErrNoAdapter),
		errors.Is(err, device.ErrLimitExceeded),
		errors.Is(err, device.ErrInvalidKernel):
		kind = KindCapability
	case errors.Is(err, device.ErrOutOfMemory):
		kind = KindResource
	case errors.Is(err, device.ErrKernelFault):
		kind = KindDispatch
	case phase == PhaseSetup:
		kind = KindCapability
	case phase == PhaseDispatch:
		kind = KindDispatch
	}
	return &Error{Kind: kind, Phase: phase, Err: err}
}

// KindOf returns the kind of err and whether err is an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsCapability reports whether err is a capability failure.
func IsCapability(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindCapability
}

// IsResource reports whether err is a resource failure.
func IsResource(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindResource
}

// IsTransfer reports whether err is a transfer failure.
func IsTransfer(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindTransfer
}
