package vulkan

import (
	"unsafe"

	"github.com/pkg/errors"
	"github.com/vkngwrapper/arsenal/crossqueue/internal/utils"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/core/v3/loader"
)

// WholeSize maps or invalidates from the offset to the end of the memory object
const WholeSize = -1

// SynchronizedMemory is one device memory object. It is mapped once, on the first Map, and stays
// mapped until every Map has been matched by an Unmap. Binds take the same lock, so nothing is bound
// while another goroutine maps, unmaps or frees the memory.
type SynchronizedMemory struct {
	mutex     utils.OptionalMutex
	memory    core1_0.DeviceMemory
	size      int
	callbacks *loader.AllocationCallbacks

	mapped     []byte
	references int
	freed      bool
}

func allocateSynchronizedMemory(driver core1_0.DeviceDriver, useMutex bool, callbacks *loader.AllocationCallbacks, allocateInfo core1_0.MemoryAllocateInfo) (*SynchronizedMemory, common.VkResult, error) {
	memory, res, err := driver.AllocateMemory(callbacks, allocateInfo)
	if err != nil {
		return nil, res, err
	}

	return &SynchronizedMemory{
		mutex:     utils.OptionalMutex{Enabled: useMutex},
		memory:    memory,
		size:      allocateInfo.AllocationSize,
		callbacks: callbacks,
	}, res, nil
}

func (m *SynchronizedMemory) VulkanDeviceMemory() core1_0.DeviceMemory {
	return m.memory
}

func (m *SynchronizedMemory) Size() int {
	return m.size
}

// bind runs a bind call unless the memory was already freed
func (m *SynchronizedMemory) bind(kind string, call func() (common.VkResult, error)) (common.VkResult, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.freed {
		return core1_0.VKErrorUnknown, errors.Errorf("attempted to bind %s to freed device memory", kind)
	}
	return call()
}

func (m *SynchronizedMemory) BindVulkanBuffer(driver core1_0.DeviceDriver, offset int, buffer core1_0.Buffer) (common.VkResult, error) {
	return m.bind("a buffer", func() (common.VkResult, error) {
		return driver.BindBufferMemory(buffer, m.memory, offset)
	})
}

func (m *SynchronizedMemory) BindVulkanImage(driver core1_0.DeviceDriver, offset int, image core1_0.Image) (common.VkResult, error) {
	return m.bind("an image", func() (common.VkResult, error) {
		return driver.BindImageMemory(image, m.memory, offset)
	})
}

// References is the number of Map calls not yet matched by Unmap
func (m *SynchronizedMemory) References() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.references
}

// Mapped returns the host view of the memory, or nil while it is not mapped
func (m *SynchronizedMemory) Mapped() []byte {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.mapped
}

// Map returns the whole memory object as a byte slice, mapping it if no one else has
func (m *SynchronizedMemory) Map(driver core1_0.DeviceDriver) ([]byte, common.VkResult, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.freed {
		return nil, core1_0.VKErrorMemoryMapFailed, errors.New("attempted to map freed device memory")
	}

	if m.references == 0 {
		ptr, res, err := driver.MapMemory(m.memory, 0, WholeSize, 0)
		if err != nil {
			return nil, res, err
		}
		m.mapped = unsafe.Slice((*byte)(ptr), m.size)
	}

	m.references++
	return m.mapped, core1_0.VKSuccess, nil
}

// Unmap drops one reference taken by Map. The memory is unmapped when the last one goes.
func (m *SynchronizedMemory) Unmap(driver core1_0.DeviceDriver) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.references == 0 {
		return errors.New("attempted to unmap device memory that is not mapped")
	}

	m.references--
	if m.references == 0 {
		driver.UnmapMemory(m.memory)
		m.mapped = nil
	}

	return nil
}

// FreeMemory releases the device memory, dropping any outstanding mapping first. It reports false if
// the memory was already freed.
func (m *SynchronizedMemory) FreeMemory(driver core1_0.DeviceDriver) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.freed {
		return false
	}

	if m.references > 0 {
		driver.UnmapMemory(m.memory)
		m.references = 0
		m.mapped = nil
	}

	driver.FreeMemory(m.memory, m.callbacks)
	m.freed = true
	return true
}
