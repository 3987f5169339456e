package vulkan

import (
	"math/bits"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/arsenal/crossqueue/internal/utils"
	"github.com/vkngwrapper/arsenal/crossqueue/memutils"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/core/v3/loader"
)

// DeviceMemoryProperties answers memory type questions for one physical device and performs all
// device memory allocation for it, keeping per-heap accounting
type DeviceMemoryProperties struct {
	// Number of live device memory objects, checked against MaxMemoryAllocationCount
	memoryCount uint32

	usageMutex utils.OptionalMutex
	heapUsage  []memutils.HeapUsage

	useMutex            bool
	allocationCallbacks *loader.AllocationCallbacks
	heapLimits          []int
	maxAllocationSize   int

	driver           core1_0.DeviceDriver
	limits           *core1_0.PhysicalDeviceLimits
	memoryProperties *core1_0.PhysicalDeviceMemoryProperties
}

func NewDeviceMemoryProperties(
	useMutex bool,
	allocationCallbacks *loader.AllocationCallbacks,
	driver core1_0.DeviceDriver,
	limits *core1_0.PhysicalDeviceLimits,
	memoryProperties *core1_0.PhysicalDeviceMemoryProperties,
	heapSizeLimits []int,
	maxAllocationSize int,
) (*DeviceMemoryProperties, error) {
	if limits == nil {
		return nil, errors.New("physical device limits must be provided")
	}
	if memoryProperties == nil {
		return nil, errors.New("physical device memory properties must be provided")
	}

	err := memutils.CheckPow2(limits.BufferImageGranularity, "device bufferImageGranularity")
	if err != nil {
		return nil, err
	}
	err = memutils.CheckPow2(limits.NonCoherentAtomSize, "device nonCoherentAtomSize")
	if err != nil {
		return nil, err
	}

	heapCount := len(memoryProperties.MemoryHeaps)
	if len(heapSizeLimits) > 0 && len(heapSizeLimits) != heapCount {
		return nil, errors.Newf("HeapSizeLimits has %d entries, but the physical device has %d memory heaps", len(heapSizeLimits), heapCount)
	}

	heapLimits := make([]int, heapCount)
	copy(heapLimits, heapSizeLimits)

	deviceMemory := &DeviceMemoryProperties{
		useMutex:            useMutex,
		allocationCallbacks: allocationCallbacks,
		heapLimits:          heapLimits,
		maxAllocationSize:   maxAllocationSize,
		heapUsage:           make([]memutils.HeapUsage, heapCount),
		usageMutex:          utils.OptionalMutex{Enabled: useMutex},

		driver:           driver,
		limits:           limits,
		memoryProperties: memoryProperties,
	}

	return deviceMemory, nil
}

func (m *DeviceMemoryProperties) MemoryTypeCount() int {
	return len(m.memoryProperties.MemoryTypes)
}

func (m *DeviceMemoryProperties) MemoryHeapCount() int {
	return len(m.memoryProperties.MemoryHeaps)
}

func (m *DeviceMemoryProperties) MemoryTypeIndexToHeapIndex(memTypeIndex int) int {
	return m.memoryProperties.MemoryTypes[memTypeIndex].HeapIndex
}

func (m *DeviceMemoryProperties) MemoryTypeProperties(memoryTypeIndex int) core1_0.MemoryType {
	return m.memoryProperties.MemoryTypes[memoryTypeIndex]
}

func (m *DeviceMemoryProperties) MemoryHeapProperties(heapIndex int) core1_0.MemoryHeap {
	return m.memoryProperties.MemoryHeaps[heapIndex]
}

func (m *DeviceMemoryProperties) IsMemoryTypeHostNonCoherent(memoryTypeIndex int) bool {
	flags := m.memoryProperties.MemoryTypes[memoryTypeIndex].PropertyFlags

	return flags&(core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent) == core1_0.MemoryPropertyHostVisible
}

func (m *DeviceMemoryProperties) CalculateBufferImageGranularity() int {
	granularity := m.limits.BufferImageGranularity

	if granularity < 1 {
		return 1
	}
	return granularity
}

func (m *DeviceMemoryProperties) NonCoherentAtomSize() int {
	atomSize := m.limits.NonCoherentAtomSize
	if atomSize < 1 {
		return 1
	}
	return atomSize
}

// CalculateGlobalMemoryTypeBits returns a mask with one bit set for every memory type the device exposes
func (m *DeviceMemoryProperties) CalculateGlobalMemoryTypeBits() uint32 {
	memTypeCount := len(m.memoryProperties.MemoryTypes)
	if memTypeCount >= 32 {
		return ^uint32(0)
	}

	return uint32(1)<<memTypeCount - 1
}

// FindMemoryTypeIndex returns the lowest memory type index permitted by memoryTypeBits whose
// property flags contain requiredFlags, or -1
func (m *DeviceMemoryProperties) FindMemoryTypeIndex(memoryTypeBits uint32, requiredFlags core1_0.MemoryPropertyFlags) int {
	memoryTypeBits &= m.CalculateGlobalMemoryTypeBits()

	for memoryTypeBits != 0 {
		memTypeIndex := bits.TrailingZeros32(memoryTypeBits)
		memoryTypeBits &= memoryTypeBits - 1

		flags := m.memoryProperties.MemoryTypes[memTypeIndex].PropertyFlags
		if requiredFlags&flags == requiredFlags {
			return memTypeIndex
		}
	}

	return -1
}

func (m *DeviceMemoryProperties) MaxAllocationSize() int {
	return m.maxAllocationSize
}

func (m *DeviceMemoryProperties) AllocateVulkanMemory(
	allocateInfo core1_0.MemoryAllocateInfo,
) (mem *SynchronizedMemory, res common.VkResult, err error) {
	if m.maxAllocationSize > 0 && allocateInfo.AllocationSize > m.maxAllocationSize {
		return nil, core1_0.VKErrorOutOfDeviceMemory, errors.Wrapf(core1_0.VKErrorOutOfDeviceMemory.ToError(),
			"allocation of %d bytes exceeds the largest single allocation of %d bytes", allocateInfo.AllocationSize, m.maxAllocationSize)
	}

	newDeviceCount := atomic.AddUint32(&m.memoryCount, 1)
	defer func() {
		if err != nil {
			atomic.AddUint32(&m.memoryCount, ^uint32(0))
		}
	}()

	if m.limits.MaxMemoryAllocationCount > 0 && int(newDeviceCount) > m.limits.MaxMemoryAllocationCount {
		return nil, core1_0.VKErrorTooManyObjects, core1_0.VKErrorTooManyObjects.ToError()
	}

	heapIndex := m.MemoryTypeIndexToHeapIndex(allocateInfo.MemoryTypeIndex)
	res, err = m.reserveHeapBytes(heapIndex, allocateInfo.AllocationSize)
	if err != nil {
		return nil, res, err
	}
	defer func() {
		if err != nil {
			m.releaseHeapBytes(heapIndex, allocateInfo.AllocationSize)
		}
	}()

	return allocateSynchronizedMemory(m.driver, m.useMutex, m.allocationCallbacks, allocateInfo)
}

func (m *DeviceMemoryProperties) FreeVulkanMemory(memoryType int, memory *SynchronizedMemory) {
	if !memory.FreeMemory(m.driver) {
		return
	}

	heapIndex := m.MemoryTypeIndexToHeapIndex(memoryType)
	m.releaseHeapBytes(heapIndex, memory.Size())
	atomic.AddUint32(&m.memoryCount, ^uint32(0))
}

func (m *DeviceMemoryProperties) reserveHeapBytes(heapIndex, allocationSize int) (common.VkResult, error) {
	m.usageMutex.Lock()
	defer m.usageMutex.Unlock()

	heapLimit := m.heapLimits[heapIndex]
	if heapLimit > 0 && m.heapUsage[heapIndex].MemoryBytes+allocationSize > heapLimit {
		return core1_0.VKErrorOutOfDeviceMemory, errors.Wrapf(core1_0.VKErrorOutOfDeviceMemory.ToError(),
			"heap %d limit of %d bytes would be exceeded", heapIndex, heapLimit)
	}

	m.heapUsage[heapIndex].AddMemory(allocationSize)
	return core1_0.VKSuccess, nil
}

func (m *DeviceMemoryProperties) releaseHeapBytes(heapIndex, allocationSize int) {
	m.usageMutex.Lock()
	defer m.usageMutex.Unlock()

	m.heapUsage[heapIndex].RemoveMemory(allocationSize)
	memutils.DebugValidate(m.heapUsage[heapIndex])
}

// AddResource records a resource bound into memory from the given heap
func (m *DeviceMemoryProperties) AddResource(heapIndex int, size int) {
	m.usageMutex.Lock()
	defer m.usageMutex.Unlock()

	m.heapUsage[heapIndex].AddResource(size)
	memutils.DebugValidate(m.heapUsage[heapIndex])
}

func (m *DeviceMemoryProperties) RemoveResource(heapIndex int, size int) {
	m.usageMutex.Lock()
	defer m.usageMutex.Unlock()

	m.heapUsage[heapIndex].RemoveResource(size)
	memutils.DebugValidate(m.heapUsage[heapIndex])
}

// HeapUsage returns a snapshot of the accounting for one heap
func (m *DeviceMemoryProperties) HeapUsage(heapIndex int) memutils.HeapUsage {
	m.usageMutex.Lock()
	defer m.usageMutex.Unlock()

	return m.heapUsage[heapIndex]
}

func (m *DeviceMemoryProperties) AllocationCount() uint32 {
	return atomic.LoadUint32(&m.memoryCount)
}

type CacheOperation uint32

const (
	CacheOperationFlush CacheOperation = iota
	CacheOperationInvalidate
)

// String names the driver call an operation makes
func (o CacheOperation) String() string {
	switch o {
	case CacheOperationFlush:
		return "vkFlushMappedMemoryRanges"
	case CacheOperationInvalidate:
		return "vkInvalidateMappedMemoryRanges"
	}
	return "unknown cache operation"
}

func (m *DeviceMemoryProperties) FlushOrInvalidateAllocations(memRanges []core1_0.MappedMemoryRange, operation CacheOperation) (common.VkResult, error) {
	if len(memRanges) == 0 {
		return core1_0.VKSuccess, nil
	}

	switch operation {
	case CacheOperationFlush:
		return m.driver.FlushMappedMemoryRanges(memRanges...)
	case CacheOperationInvalidate:
		return m.driver.InvalidateMappedMemoryRanges(memRanges...)
	}

	return core1_0.VKErrorUnknown, errors.Newf("attempted to carry out invalid cache operation %s", operation.String())
}
