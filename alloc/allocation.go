package alloc

import (
	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/arsenal/crossqueue/internal/utils"
	"github.com/vkngwrapper/arsenal/crossqueue/internal/vulkan"
	"github.com/vkngwrapper/arsenal/crossqueue/resource"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// Allocation is one device memory object and the resources bound into it. It must outlive those
// resources, and Release destroys them before freeing the memory.
type Allocation struct {
	id        uint64
	allocator *Allocator

	memory          *vulkan.SynchronizedMemory
	memoryTypeIndex int
	heapIndex       int
	propertyFlags   core1_0.MemoryPropertyFlags
	size            int
	resources       []resource.Bound

	mutex    utils.OptionalMutex
	mapped   bool
	released bool
}

func (a *Allocation) MemoryTypeIndex() int {
	return a.memoryTypeIndex
}

func (a *Allocation) Size() int {
	return a.size
}

func (a *Allocation) Memory() core1_0.DeviceMemory {
	return a.memory.VulkanDeviceMemory()
}

func (a *Allocation) PropertyFlags() core1_0.MemoryPropertyFlags {
	return a.propertyFlags
}

func (a *Allocation) IsHostVisible() bool {
	return a.propertyFlags&core1_0.MemoryPropertyHostVisible != 0
}

// IsHostCoherent reports whether host reads see device writes without an explicit invalidate
func (a *Allocation) IsHostCoherent() bool {
	return a.propertyFlags&core1_0.MemoryPropertyHostCoherent != 0
}

// Resources returns the bound resources in binding order
func (a *Allocation) Resources() []resource.Bound {
	return a.resources
}

// Map maps the whole allocation and returns it as a byte slice. The slice is only valid until Unmap
// or Release.
func (a *Allocation) Map() ([]byte, common.VkResult, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.released {
		return nil, core1_0.VKErrorMemoryMapFailed, errors.New("attempted to map a released allocation")
	}
	if !a.IsHostVisible() {
		return nil, core1_0.VKErrorMemoryMapFailed, errors.Newf("memory type %d is not host visible", a.memoryTypeIndex)
	}
	if a.mapped {
		return a.memory.Mapped(), core1_0.VKSuccess, nil
	}

	data, res, err := a.memory.Map(a.allocator.driver)
	if err != nil {
		return nil, res, a.allocator.translator.Translate(res, err, "vkMapMemory")
	}
	a.mapped = true

	return data, res, nil
}

func (a *Allocation) Unmap() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if !a.mapped {
		return nil
	}

	a.mapped = false
	return a.memory.Unmap(a.allocator.driver)
}

// Invalidate makes device writes visible to host reads of a non-coherent mapping. It covers the whole
// memory object and does nothing for coherent memory.
func (a *Allocation) Invalidate() (common.VkResult, error) {
	return a.flushOrInvalidate(vulkan.CacheOperationInvalidate)
}

// Flush makes host writes to a non-coherent mapping visible to the device
func (a *Allocation) Flush() (common.VkResult, error) {
	return a.flushOrInvalidate(vulkan.CacheOperationFlush)
}

func (a *Allocation) flushOrInvalidate(operation vulkan.CacheOperation) (common.VkResult, error) {
	if a.IsHostCoherent() {
		return core1_0.VKSuccess, nil
	}

	res, err := a.allocator.deviceMemory.FlushOrInvalidateAllocations([]core1_0.MappedMemoryRange{
		{
			Memory: a.Memory(),
			Offset: 0,
			Size:   vulkan.WholeSize,
		},
	}, operation)
	if err != nil {
		return res, a.allocator.translator.Translate(res, err, operation.String())
	}
	return res, nil
}

// Validate checks that every bound resource lies inside the memory object and that none of them
// overlap
func (a *Allocation) Validate() error {
	if len(a.resources) == 0 {
		return errors.New("allocation holds no resources")
	}

	end := 0
	for index, bound := range a.resources {
		if bound.Offset() < end {
			return errors.Newf("resource %d at offset %d overlaps the one before it, which ends at %d", index, bound.Offset(), end)
		}
		end = bound.Offset() + bound.Size()
	}
	if end > a.size {
		return errors.Newf("resources end at %d, past the %d byte memory object", end, a.size)
	}

	return nil
}

// Release destroys every bound resource, newest first, and then frees the memory. Releasing twice
// does nothing.
func (a *Allocation) Release() {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.released {
		return
	}
	a.released = true
	a.allocator.logger.Debug("Allocation::Release")

	for i := len(a.resources) - 1; i >= 0; i-- {
		a.resources[i].Destroy(a.allocator.driver)
		a.allocator.deviceMemory.RemoveResource(a.heapIndex, a.resources[i].Size())
	}

	a.mapped = false
	a.allocator.callbacks.Free(a.memoryTypeIndex, a.memory.VulkanDeviceMemory(), a.size)
	a.allocator.deviceMemory.FreeVulkanMemory(a.memoryTypeIndex, a.memory)
	a.allocator.unregister(a)
}

func (a *Allocation) printParameters(json *jwriter.ObjectState) {
	json.Name("MemoryTypeIndex").Int(a.memoryTypeIndex)
	json.Name("Size").Int(a.size)
	json.Name("HostCoherent").Bool(a.IsHostCoherent())
	json.Name("MapReferences").Int(a.memory.References())

	resources := json.Name("Resources").Array()
	defer resources.End()

	for _, res := range a.resources {
		obj := resources.Object()
		if res.Kind() == resource.KindImage {
			obj.Name("Type").String("Image")
		} else {
			obj.Name("Type").String("Buffer")
		}
		obj.Name("Offset").Int(res.Offset())
		obj.Name("Size").Int(res.Size())
		obj.End()
	}
}
