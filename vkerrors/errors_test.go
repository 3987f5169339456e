package vkerrors

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
)

var translateTestCases = map[string]struct {
	Result common.VkResult
	Err    error

	Nil       bool
	Matches   []error
	Unmatched []error
}{
	"Success": {
		Result: core1_0.VKSuccess,
		Nil:    true,
	},
	"Timeout": {
		Result: core1_0.VKTimeout,
		Nil:    true,
	},
	"OutOfDeviceMemory": {
		Result:    core1_0.VKErrorOutOfDeviceMemory,
		Err:       core1_0.VKErrorOutOfDeviceMemory.ToError(),
		Matches:   []error{ErrOutOfMemory, ErrOutOfDeviceMemory},
		Unmatched: []error{ErrOutOfHostMemory, ErrUnknown, ErrDeviceLost},
	},
	"OutOfHostMemory": {
		Result:    core1_0.VKErrorOutOfHostMemory,
		Err:       core1_0.VKErrorOutOfHostMemory.ToError(),
		Matches:   []error{ErrOutOfMemory, ErrOutOfHostMemory},
		Unmatched: []error{ErrOutOfDeviceMemory, ErrUnknown},
	},
	"DeviceLost": {
		Result:    core1_0.VKErrorDeviceLost,
		Err:       core1_0.VKErrorDeviceLost.ToError(),
		Matches:   []error{ErrDeviceLost},
		Unmatched: []error{ErrOutOfMemory, ErrUnknown},
	},
	"KnownFailure": {
		Result:    core1_0.VKErrorFeatureNotPresent,
		Err:       core1_0.VKErrorFeatureNotPresent.ToError(),
		Unmatched: []error{ErrOutOfMemory, ErrUnknown, ErrDeviceLost},
	},
	"Unknown": {
		Result:    core1_0.VKErrorUnknown,
		Err:       core1_0.VKErrorUnknown.ToError(),
		Matches:   []error{ErrUnknown},
		Unmatched: []error{ErrOutOfMemory, ErrDeviceLost},
	},
	"Unrecognized": {
		Result:    common.VkResult(-1000999999),
		Matches:   []error{ErrUnknown},
		Unmatched: []error{ErrOutOfMemory, ErrDeviceLost},
	},
	"WrapperFailure": {
		Result:    core1_0.VKSuccess,
		Err:       errors.New("bad argument"),
		Unmatched: []error{ErrUnknown, ErrOutOfMemory},
	},
}

func TestTranslate(t *testing.T) {
	translator := Translator{Logger: slog.New(slog.NewJSONHandler(io.Discard, nil))}

	for testName, testCase := range translateTestCases {
		t.Run(testName, func(t *testing.T) {
			err := translator.Translate(testCase.Result, testCase.Err, "vkTestCall")
			if testCase.Nil {
				require.NoError(t, err)
				return
			}

			require.Error(t, err)
			require.Contains(t, err.Error(), "vkTestCall")
			for _, target := range testCase.Matches {
				require.ErrorIs(t, err, target)
			}
			for _, target := range testCase.Unmatched {
				require.NotErrorIs(t, err, target)
			}
		})
	}
}

func TestTranslateLogsUnrecognized(t *testing.T) {
	var buf bytes.Buffer
	translator := Translator{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}

	err := translator.Translate(common.VkResult(-1000999999), nil, "vkQueueSubmit")
	require.ErrorIs(t, err, ErrUnknown)
	require.Contains(t, buf.String(), "unrecognized device result")
	require.Contains(t, buf.String(), "vkQueueSubmit")
}

func TestOutOfMemoryError(t *testing.T) {
	err := errors.Wrap(&OutOfMemoryError{Source: MemorySourceHost, Op: "vkAllocateMemory"}, "allocate")

	var oom *OutOfMemoryError
	require.True(t, errors.As(err, &oom))
	require.Equal(t, MemorySourceHost, oom.Source)
	require.Equal(t, "allocate: vkAllocateMemory: out of host memory", err.Error())
	require.False(t, IsFatal(err))
	require.True(t, IsFatal(errors.Wrap(ErrDeviceLost, "vkQueueSubmit")))
}
