package memutils

import "github.com/pkg/errors"

// ErrNotPowerOfTwo is wrapped by CheckPow2 when a device granularity or alignment is not a power of
// two, which AlignUp and AlignDown cannot round to
var ErrNotPowerOfTwo = errors.New("value is not a power of two")
