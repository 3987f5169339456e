package memutils

import (
	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/exp/constraints"
)

// CheckPow2 returns an error wrapping ErrNotPowerOfTwo if number is not a power of two. Zero passes,
// since device limits report zero when a granularity does not apply.
func CheckPow2[T constraints.Integer](number T, name string) error {
	if number&(number-1) != 0 {
		return cerrors.Wrapf(ErrNotPowerOfTwo, "%s is %d", name, number)
	}
	return nil
}

// AlignUp rounds value up to the next multiple of alignment, which must be a power of two
func AlignUp[T constraints.Integer](value T, alignment T) T {
	if alignment <= 1 {
		return value
	}
	return (value + alignment - 1) & ^(alignment - 1)
}

// AlignDown rounds value down to a multiple of alignment, which must be a power of two
func AlignDown[T constraints.Integer](value T, alignment T) T {
	if alignment <= 1 {
		return value
	}
	return value & ^(alignment - 1)
}

// BlocksOnSamePage reports whether the last byte of resource A and the first byte of resource B fall
// on the same page of pageSize bytes. Resource A must come before resource B.
func BlocksOnSamePage(resourceAOffset, resourceASize, resourceBOffset, pageSize int) bool {
	if pageSize <= 1 || resourceASize <= 0 {
		return false
	}

	resourceAEnd := resourceAOffset + resourceASize - 1
	resourceAEndPage := AlignDown(resourceAEnd, pageSize)
	resourceBStartPage := AlignDown(resourceBOffset, pageSize)
	return resourceAEndPage == resourceBStartPage
}
