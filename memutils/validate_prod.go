//go:build !debug_mem_utils

package memutils

// DebugValidate calls Validate on the provided object and panics if it returns an error. It no-ops
// unless the debug_mem_utils build tag is present.
func DebugValidate(validatable Validatable) {
}
