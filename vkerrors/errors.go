package vkerrors

import (
	"fmt"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
)

var (
	// ErrOutOfMemory matches every OutOfMemoryError regardless of which memory ran out
	ErrOutOfMemory = errors.New("out of memory")
	// ErrOutOfDeviceMemory matches an OutOfMemoryError raised for device memory
	ErrOutOfDeviceMemory = errors.New("out of device memory")
	// ErrOutOfHostMemory matches an OutOfMemoryError raised for host memory
	ErrOutOfHostMemory = errors.New("out of host memory")
	// ErrNoCompatibleMemoryType is returned when no memory type satisfies the requested resources
	// and properties. It indicates bad requirements rather than a transient condition.
	ErrNoCompatibleMemoryType = errors.New("no compatible memory type")
	// ErrNoCompatibleAdapter is returned by callers that treat an empty adapter selection as fatal
	ErrNoCompatibleAdapter = errors.New("no compatible adapter")
	// ErrDeviceLost is fatal: the only recovery is to tear everything down and start again
	ErrDeviceLost = errors.New("device lost")
	// ErrUnknown wraps any result code the translator does not recognize
	ErrUnknown = errors.New("unknown device error")
	// ErrPoolPending is returned when a command pool is reset, re-recorded or destroyed while
	// a submission from it has not been observed complete
	ErrPoolPending = errors.New("command pool has a pending submission")
	// ErrInvalidState is returned when a command sequence is driven out of order
	ErrInvalidState = errors.New("invalid command sequence state")
	// ErrTimeout is returned when a completion wait times out. The submission is still pending.
	ErrTimeout = errors.New("timed out waiting for completion")
)

type MemorySource int32

const (
	MemorySourceDevice MemorySource = iota
	MemorySourceHost
)

var memorySourceMapping = make(map[MemorySource]string)

func (s MemorySource) String() string {
	str, ok := memorySourceMapping[s]
	if !ok {
		return fmt.Sprintf("MemorySource(%d)", int32(s))
	}
	return str
}

func init() {
	memorySourceMapping[MemorySourceDevice] = "device"
	memorySourceMapping[MemorySourceHost] = "host"
}

// OutOfMemoryError reports exhaustion of either device or host memory. It is recoverable: the caller
// may retry with a smaller request or give up.
type OutOfMemoryError struct {
	Source MemorySource
	Op     string
}

func (e *OutOfMemoryError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("out of %s memory", e.Source)
	}
	return fmt.Sprintf("%s: out of %s memory", e.Op, e.Source)
}

func (e *OutOfMemoryError) Is(target error) bool {
	switch target {
	case ErrOutOfMemory:
		return true
	case ErrOutOfDeviceMemory:
		return e.Source == MemorySourceDevice
	case ErrOutOfHostMemory:
		return e.Source == MemorySourceHost
	}
	return false
}

// IsFatal reports whether err means the device can no longer be used
func IsFatal(err error) bool {
	return errors.Is(err, ErrDeviceLost)
}

// Translator maps driver results onto this package's error taxonomy
type Translator struct {
	Logger *slog.Logger
}

// Translate converts the result of a device call into an error. op names the failed call and
// is used as wrapping context. A nil driver error with a success code yields nil.
func (t Translator) Translate(res common.VkResult, err error, op string) error {
	if err == nil && res >= core1_0.VKSuccess {
		return nil
	}

	switch res {
	case core1_0.VKErrorOutOfDeviceMemory:
		return &OutOfMemoryError{Source: MemorySourceDevice, Op: op}
	case core1_0.VKErrorOutOfHostMemory:
		return &OutOfMemoryError{Source: MemorySourceHost, Op: op}
	case core1_0.VKErrorDeviceLost:
		return errors.Wrap(ErrDeviceLost, op)
	case core1_0.VKErrorInitializationFailed,
		core1_0.VKErrorMemoryMapFailed,
		core1_0.VKErrorLayerNotPresent,
		core1_0.VKErrorExtensionNotPresent,
		core1_0.VKErrorFeatureNotPresent,
		core1_0.VKErrorIncompatibleDriver,
		core1_0.VKErrorTooManyObjects,
		core1_0.VKErrorFormatNotSupported:
		if err == nil {
			err = res.ToError()
		}
		return errors.Wrap(err, op)
	}

	if err != nil && res >= core1_0.VKSuccess {
		// The driver wrapper failed without a device result, e.g. a bad argument
		return errors.Wrap(err, op)
	}

	if t.Logger != nil {
		t.Logger.Warn("unrecognized device result", slog.String("op", op), slog.String("result", res.String()))
	}

	unknown := errors.Wrap(ErrUnknown, op)
	if err == nil {
		err = res.ToError()
	}
	return errors.WithSecondaryError(unknown, err)
}
