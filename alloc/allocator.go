package alloc

import (
	"log/slog"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/arsenal/crossqueue/internal/utils"
	"github.com/vkngwrapper/arsenal/crossqueue/internal/vulkan"
	"github.com/vkngwrapper/arsenal/crossqueue/memutils"
	"github.com/vkngwrapper/arsenal/crossqueue/resource"
	"github.com/vkngwrapper/arsenal/crossqueue/vkerrors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// Allocator allocates one device memory object per request and binds every resource of the request
// into it. It is not a suballocator: each Allocation owns its memory outright.
type Allocator struct {
	logger     *slog.Logger
	driver     core1_0.DeviceDriver
	translator vkerrors.Translator

	useMutex     bool
	deviceMemory *vulkan.DeviceMemoryProperties
	callbacks    memoryCallbacks
	options      CreateOptions

	nextAllocationID atomic.Uint64
	registryMutex    utils.OptionalMutex
	allocations      *swiss.Map[uint64, *Allocation]
	destroyed        bool
}

// New creates a new Allocator
//
// driver - The device driver that memory will be allocated through
//
// memoryProperties - The memory types and heaps of the physical device that owns the device
//
// limits - The limits of the same physical device
//
// options - Optional parameters: it is valid to leave all the fields blank
func New(logger *slog.Logger, driver core1_0.DeviceDriver, memoryProperties *core1_0.PhysicalDeviceMemoryProperties, limits *core1_0.PhysicalDeviceLimits, options CreateOptions) (*Allocator, error) {
	if logger == nil {
		return nil, errors.New("attempted to create an allocator without a logger")
	}
	if driver == nil {
		return nil, errors.New("attempted to create an allocator without a device driver")
	}

	useMutex := options.Flags&AllocatorCreateExternallySynchronized == 0

	deviceMemory, err := vulkan.NewDeviceMemoryProperties(
		useMutex,
		options.VulkanCallbacks,
		driver,
		limits,
		memoryProperties,
		options.HeapSizeLimits,
		options.MaxSingleAllocationSize,
	)
	if err != nil {
		return nil, err
	}

	allocator := &Allocator{
		logger:       logger,
		driver:       driver,
		translator:   vkerrors.Translator{Logger: logger},
		useMutex:     useMutex,
		deviceMemory: deviceMemory,
		options:      options,

		registryMutex: utils.OptionalMutex{Enabled: useMutex},
		allocations:   swiss.NewMap[uint64, *Allocation](8),
	}
	allocator.callbacks = memoryCallbacks{
		Callbacks: options.MemoryCallbackOptions,
		Allocator: allocator,
	}

	return allocator, nil
}

type memoryTypePolicy struct {
	name  string
	flags core1_0.MemoryPropertyFlags
}

// memoryTypePolicies lists the property sets to try, best first
func memoryTypePolicies(required, optional core1_0.MemoryPropertyFlags) []memoryTypePolicy {
	if optional&^required == 0 {
		return []memoryTypePolicy{{name: "required", flags: required}}
	}

	return []memoryTypePolicy{
		{name: "preferred", flags: required | optional},
		{name: "required", flags: required},
	}
}

// FindMemoryTypeIndex returns the lowest memory type index allowed by memoryTypeBits whose properties
// contain required|optional, falling back to one that only contains required. If neither exists it
// fails with vkerrors.ErrNoCompatibleMemoryType.
func (a *Allocator) FindMemoryTypeIndex(
	memoryTypeBits uint32,
	required, optional core1_0.MemoryPropertyFlags,
) (int, common.VkResult, error) {
	a.logger.Debug("Allocator::FindMemoryTypeIndex")

	for _, policy := range memoryTypePolicies(required, optional) {
		memTypeIndex := a.deviceMemory.FindMemoryTypeIndex(memoryTypeBits, policy.flags)
		if memTypeIndex >= 0 {
			a.logger.Debug("memory type selected",
				slog.Int("index", memTypeIndex),
				slog.String("policy", policy.name))
			return memTypeIndex, core1_0.VKSuccess, nil
		}
	}

	return -1, core1_0.VKErrorFeatureNotPresent, errors.Wrapf(vkerrors.ErrNoCompatibleMemoryType,
		"memory type bits %#x, required properties %s", memoryTypeBits, required.String())
}

// layout places each resource after the previous one, honoring its alignment and keeping buffers and
// images off a shared bufferImageGranularity page. It returns the offsets, the total size and the
// intersection of every resource's memory type bits.
func (a *Allocator) layout(resources []resource.Unbound) (offsets []int, size int, typeBits uint32) {
	granularity := a.deviceMemory.CalculateBufferImageGranularity()
	offsets = make([]int, len(resources))
	typeBits = ^uint32(0)

	offset := 0
	for i, res := range resources {
		req := res.Requirements()
		typeBits &= req.TypeBits

		offset = memutils.AlignUp(offset, req.Alignment)
		if i > 0 && resources[i-1].Kind() != res.Kind() {
			prevSize := resources[i-1].Requirements().Size
			if memutils.BlocksOnSamePage(offsets[i-1], prevSize, offset, granularity) {
				offset = memutils.AlignUp(offset, granularity)
			}
		}

		offsets[i] = offset
		offset += req.Size
	}

	return offsets, offset, typeBits
}

// AllocateAndBind allocates a single memory object large enough for every resource and binds them
// into it, in order. The allocator takes ownership of the resources: on failure every one of them
// has been destroyed, bound resources before the memory is freed, and nothing is left live. When the
// best memory type is out of memory the next best one is tried before giving up.
func (a *Allocator) AllocateAndBind(
	resources []resource.Unbound,
	required, optional core1_0.MemoryPropertyFlags,
) (allocation *Allocation, bound []resource.Bound, res common.VkResult, err error) {
	a.logger.Debug("Allocator::AllocateAndBind")

	if len(resources) == 0 {
		return nil, nil, core1_0.VKErrorUnknown, errors.New("attempted to allocate memory for zero resources")
	}

	var memory *vulkan.SynchronizedMemory
	var bindings []resource.Bound
	memTypeIndex := -1
	defer func() {
		if err == nil {
			return
		}

		a.logger.Debug("Allocator::AllocateAndBind FAILED", slog.Int("bound", len(bindings)))
		for i := len(bindings) - 1; i >= 0; i-- {
			bindings[i].Destroy(a.driver)
		}
		for i := len(bindings); i < len(resources); i++ {
			resources[i].Destroy(a.driver)
		}
		if memory != nil {
			a.callbacks.Free(memTypeIndex, memory.VulkanDeviceMemory(), memory.Size())
			a.deviceMemory.FreeVulkanMemory(memTypeIndex, memory)
		}
	}()

	if a.isDestroyed() {
		return nil, nil, core1_0.VKErrorUnknown, errors.New("attempted to allocate from a destroyed allocator")
	}

	offsets, size, typeBits := a.layout(resources)
	if typeBits == 0 {
		return nil, nil, core1_0.VKErrorFeatureNotPresent, errors.Wrap(vkerrors.ErrNoCompatibleMemoryType,
			"the resources share no memory type")
	}

	memTypeIndex, memory, res, err = a.allocateMemory(typeBits, size, required, optional)
	if err != nil {
		return nil, nil, res, err
	}
	a.callbacks.Allocate(memTypeIndex, memory.VulkanDeviceMemory(), size)

	for i, unbound := range resources {
		var b resource.Bound
		b, res, err = unbound.Bind(a.driver, memory, offsets[i])
		if err != nil {
			return nil, nil, res, a.translator.Translate(res, err, "vkBindMemory")
		}
		bindings = append(bindings, b)
	}

	heapIndex := a.deviceMemory.MemoryTypeIndexToHeapIndex(memTypeIndex)
	for _, b := range bindings {
		a.deviceMemory.AddResource(heapIndex, b.Size())
	}

	flags := a.deviceMemory.MemoryTypeProperties(memTypeIndex).PropertyFlags
	allocation = &Allocation{
		id:              a.nextAllocationID.Add(1),
		allocator:       a,
		memory:          memory,
		memoryTypeIndex: memTypeIndex,
		heapIndex:       heapIndex,
		propertyFlags:   flags,
		size:            size,
		resources:       bindings,
		mutex:           utils.OptionalMutex{Enabled: a.useMutex},
	}
	memutils.DebugValidate(allocation)
	a.register(allocation)

	return allocation, bindings, core1_0.VKSuccess, nil
}

// allocateMemory walks the memory types allowed by memoryTypeBits, best first, until one can hold
// size bytes. A type that runs out of memory is dropped and the search goes on; any other failure
// ends it.
func (a *Allocator) allocateMemory(
	memoryTypeBits uint32,
	size int,
	required, optional core1_0.MemoryPropertyFlags,
) (int, *vulkan.SynchronizedMemory, common.VkResult, error) {
	var outOfMemory error
	var outOfMemoryRes common.VkResult

	for {
		memTypeIndex, res, err := a.FindMemoryTypeIndex(memoryTypeBits, required, optional)
		if err != nil {
			if outOfMemory != nil {
				return -1, nil, outOfMemoryRes, outOfMemory
			}
			return -1, nil, res, err
		}

		memory, res, err := a.deviceMemory.AllocateVulkanMemory(core1_0.MemoryAllocateInfo{
			AllocationSize:  size,
			MemoryTypeIndex: memTypeIndex,
		})
		if err == nil {
			return memTypeIndex, memory, res, nil
		}

		err = a.translator.Translate(res, err, "vkAllocateMemory")
		if !errors.Is(err, vkerrors.ErrOutOfMemory) {
			return -1, nil, res, err
		}

		a.logger.Debug("memory type exhausted",
			slog.Int("index", memTypeIndex),
			slog.Int("size", size))
		outOfMemory, outOfMemoryRes = err, res
		memoryTypeBits &= ^(1 << memTypeIndex)
	}
}

// AllocateImage allocates and binds memory for a single image
func (a *Allocator) AllocateImage(
	image *resource.UnboundImage,
	required, optional core1_0.MemoryPropertyFlags,
) (*Allocation, *resource.Image, common.VkResult, error) {
	allocation, bound, res, err := a.AllocateAndBind([]resource.Unbound{image}, required, optional)
	if err != nil {
		return nil, nil, res, err
	}

	return allocation, bound[0].(*resource.Image), res, nil
}

// AllocateBuffer allocates and binds memory for a single buffer
func (a *Allocator) AllocateBuffer(
	buffer *resource.UnboundBuffer,
	required, optional core1_0.MemoryPropertyFlags,
) (*Allocation, *resource.Buffer, common.VkResult, error) {
	allocation, bound, res, err := a.AllocateAndBind([]resource.Unbound{buffer}, required, optional)
	if err != nil {
		return nil, nil, res, err
	}

	return allocation, bound[0].(*resource.Buffer), res, nil
}

func (a *Allocator) register(allocation *Allocation) {
	a.registryMutex.Lock()
	defer a.registryMutex.Unlock()

	a.allocations.Put(allocation.id, allocation)
}

func (a *Allocator) unregister(allocation *Allocation) {
	a.registryMutex.Lock()
	defer a.registryMutex.Unlock()

	a.allocations.Delete(allocation.id)
}

func (a *Allocator) isDestroyed() bool {
	a.registryMutex.RLock()
	defer a.registryMutex.RUnlock()

	return a.destroyed
}

// LiveAllocations returns the number of allocations that have not been released
func (a *Allocator) LiveAllocations() int {
	a.registryMutex.RLock()
	defer a.registryMutex.RUnlock()

	return a.allocations.Count()
}

// Destroy marks the allocator unusable. It fails if any allocation has not been released, since
// freeing that memory here could pull it out from under resources the device is still using.
func (a *Allocator) Destroy() error {
	a.logger.Debug("Allocator::Destroy")

	a.registryMutex.Lock()
	defer a.registryMutex.Unlock()

	if a.allocations.Count() > 0 {
		return errors.Newf("attempted to destroy an allocator with %d live allocations", a.allocations.Count())
	}

	a.destroyed = true
	return nil
}
