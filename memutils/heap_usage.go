package memutils

import "github.com/cockroachdb/errors"

// HeapUsage counts the device memory objects drawn from one heap and the resources bound into them
type HeapUsage struct {
	MemoryObjects int
	MemoryBytes   int
	Resources     int
	ResourceBytes int
}

func (u *HeapUsage) AddMemory(size int) {
	u.MemoryObjects++
	u.MemoryBytes += size
}

func (u *HeapUsage) RemoveMemory(size int) {
	u.MemoryObjects--
	u.MemoryBytes -= size
}

func (u *HeapUsage) AddResource(size int) {
	u.Resources++
	u.ResourceBytes += size
}

func (u *HeapUsage) RemoveResource(size int) {
	u.Resources--
	u.ResourceBytes -= size
}

// Merge adds other's counts into u
func (u *HeapUsage) Merge(other HeapUsage) {
	u.MemoryObjects += other.MemoryObjects
	u.MemoryBytes += other.MemoryBytes
	u.Resources += other.Resources
	u.ResourceBytes += other.ResourceBytes
}

// Validate fails when a count went negative or resources claim more bytes than their memory holds
func (u HeapUsage) Validate() error {
	if u.MemoryObjects < 0 || u.MemoryBytes < 0 {
		return errors.Newf("memory accounting went negative: %d objects, %d bytes", u.MemoryObjects, u.MemoryBytes)
	}
	if u.Resources < 0 || u.ResourceBytes < 0 {
		return errors.Newf("resource accounting went negative: %d resources, %d bytes", u.Resources, u.ResourceBytes)
	}
	if u.MemoryObjects == 0 && u.Resources > 0 {
		return errors.Newf("%d resources are bound with no memory behind them", u.Resources)
	}
	if u.ResourceBytes > u.MemoryBytes {
		return errors.Newf("resources use %d bytes but only %d are allocated", u.ResourceBytes, u.MemoryBytes)
	}
	return nil
}
