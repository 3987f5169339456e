package alloc

import (
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/core/v3/loader"
)

// CreateFlags indicate specific allocator behaviors to activate or deactivate
type CreateFlags int32

var allocatorCreateFlagsMapping = common.NewFlagStringMapping[CreateFlags]()

func (f CreateFlags) Register(str string) {
	allocatorCreateFlagsMapping.Register(f, str)
}
func (f CreateFlags) String() string {
	return allocatorCreateFlagsMapping.FlagsToString(f)
}

const (
	// AllocatorCreateExternallySynchronized ensures that this allocator and all allocations created from it
	// will not be synchronized internally. The consumer must guarantee they are used from only one
	// goroutine at a time.
	AllocatorCreateExternallySynchronized CreateFlags = 1 << iota
)

func init() {
	AllocatorCreateExternallySynchronized.Register("AllocatorCreateExternallySynchronized")
}

// AllocateDeviceMemoryCallback is called after the allocator obtains a new device memory object
type AllocateDeviceMemoryCallback func(
	allocator *Allocator,
	memoryType int,
	memory core1_0.DeviceMemory,
	size int,
	userData interface{},
)

// FreeDeviceMemoryCallback is called just before the allocator frees a device memory object
type FreeDeviceMemoryCallback func(
	allocator *Allocator,
	memoryType int,
	memory core1_0.DeviceMemory,
	size int,
	userData interface{},
)

type MemoryCallbackOptions struct {
	Allocate AllocateDeviceMemoryCallback
	Free     FreeDeviceMemoryCallback
	UserData interface{}
}

// CreateOptions contains optional settings when creating an allocator. The zero value is valid.
type CreateOptions struct {
	// Flags indicates specific allocator behaviors to activate or deactivate
	Flags CreateFlags

	// VulkanCallbacks is an optional set of host allocation callbacks passed to every vkAllocateMemory
	// and vkFreeMemory call made by this allocator, and to the resources it destroys
	VulkanCallbacks *loader.AllocationCallbacks

	// MemoryCallbackOptions is an optional set of callbacks that will be executed when device memory
	// is allocated or freed by this allocator
	MemoryCallbackOptions *MemoryCallbackOptions

	// HeapSizeLimits can be left empty. If it is provided, it must have one entry per memory heap
	// of the physical device. Each entry is the maximum number of bytes the allocator may hold in
	// that heap, or -1 for no limit.
	HeapSizeLimits []int

	// MaxSingleAllocationSize is the largest combined allocation the allocator will request. Requests
	// above it fail with an out of device memory error before reaching the driver. Zero means no limit.
	MaxSingleAllocationSize int
}

type memoryCallbacks struct {
	Callbacks *MemoryCallbackOptions
	Allocator *Allocator
}

func (c *memoryCallbacks) Allocate(
	memoryType int,
	memory core1_0.DeviceMemory,
	size int,
) {
	if c.Callbacks != nil && c.Callbacks.Allocate != nil {
		c.Callbacks.Allocate(c.Allocator, memoryType, memory, size, c.Callbacks.UserData)
	}
}

func (c *memoryCallbacks) Free(
	memoryType int,
	memory core1_0.DeviceMemory,
	size int,
) {
	if c.Callbacks != nil && c.Callbacks.Free != nil {
		c.Callbacks.Free(c.Allocator, memoryType, memory, size, c.Callbacks.UserData)
	}
}
