package vulkan

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/core/v3/mocks"
	"github.com/vkngwrapper/core/v3/mocks/mocks1_2"
	"go.uber.org/mock/gomock"
)

func readyMemoryProperties(t *testing.T, ctrl *gomock.Controller, limits core1_0.PhysicalDeviceLimits, heapLimits []int) (*mocks1_2.MockCoreDeviceDriver, *DeviceMemoryProperties) {
	driver := mocks1_2.NewMockCoreDeviceDriver(ctrl)
	device := mocks.NewDummyDevice(common.Vulkan1_2, []string{})
	driver.EXPECT().Device().Return(device).AnyTimes()

	props, err := NewDeviceMemoryProperties(true, nil, driver, &limits, &core1_0.PhysicalDeviceMemoryProperties{
		MemoryTypes: []core1_0.MemoryType{
			{PropertyFlags: core1_0.MemoryPropertyDeviceLocal, HeapIndex: 0},
			{PropertyFlags: core1_0.MemoryPropertyHostVisible, HeapIndex: 1},
			{PropertyFlags: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent, HeapIndex: 1},
		},
		MemoryHeaps: []core1_0.MemoryHeap{
			{Size: 1000000, Flags: core1_0.MemoryHeapDeviceLocal},
			{Size: 1000000},
		},
	}, heapLimits, 1000000)
	require.NoError(t, err)

	return driver, props
}

func TestNewDeviceMemoryPropertiesRejectsBadGranularity(t *testing.T) {
	ctrl := gomock.NewController(t)
	driver := mocks1_2.NewMockCoreDeviceDriver(ctrl)

	_, err := NewDeviceMemoryProperties(false, nil, driver, &core1_0.PhysicalDeviceLimits{
		BufferImageGranularity: 3,
		NonCoherentAtomSize:    1,
	}, &core1_0.PhysicalDeviceMemoryProperties{}, nil, 0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "bufferImageGranularity")
}

func TestMemoryTypeQueries(t *testing.T) {
	ctrl := gomock.NewController(t)
	_, props := readyMemoryProperties(t, ctrl, core1_0.PhysicalDeviceLimits{
		BufferImageGranularity: 0,
		NonCoherentAtomSize:    64,
	}, nil)

	require.Equal(t, 3, props.MemoryTypeCount())
	require.Equal(t, 2, props.MemoryHeapCount())
	require.Equal(t, uint32(0b111), props.CalculateGlobalMemoryTypeBits())
	require.Equal(t, 1, props.CalculateBufferImageGranularity())
	require.Equal(t, 64, props.NonCoherentAtomSize())

	require.False(t, props.IsMemoryTypeHostNonCoherent(0))
	require.True(t, props.IsMemoryTypeHostNonCoherent(1))
	require.False(t, props.IsMemoryTypeHostNonCoherent(2))

	require.Equal(t, 1, props.FindMemoryTypeIndex(0xffffffff, core1_0.MemoryPropertyHostVisible))
	require.Equal(t, 2, props.FindMemoryTypeIndex(0b100, core1_0.MemoryPropertyHostVisible))
	require.Equal(t, -1, props.FindMemoryTypeIndex(0b001, core1_0.MemoryPropertyHostVisible))
}

func TestAllocateVulkanMemoryCountLimit(t *testing.T) {
	ctrl := gomock.NewController(t)
	driver, props := readyMemoryProperties(t, ctrl, core1_0.PhysicalDeviceLimits{
		BufferImageGranularity:   1,
		NonCoherentAtomSize:      1,
		MaxMemoryAllocationCount: 1,
	}, nil)

	memory := mocks.NewDummyDeviceMemory(driver.Device(), 1000)
	driver.EXPECT().AllocateMemory(gomock.Any(), core1_0.MemoryAllocateInfo{
		MemoryTypeIndex: 0,
		AllocationSize:  1000,
	}).Return(memory, core1_0.VKSuccess, nil)

	first, _, err := props.AllocateVulkanMemory(core1_0.MemoryAllocateInfo{MemoryTypeIndex: 0, AllocationSize: 1000})
	require.NoError(t, err)

	_, res, err := props.AllocateVulkanMemory(core1_0.MemoryAllocateInfo{MemoryTypeIndex: 0, AllocationSize: 1000})
	require.Error(t, err)
	require.Equal(t, core1_0.VKErrorTooManyObjects, res)
	require.Equal(t, uint32(1), props.AllocationCount())

	driver.EXPECT().FreeMemory(memory, nil)
	props.FreeVulkanMemory(0, first)
	// Freeing twice must not reach the driver again
	props.FreeVulkanMemory(0, first)

	require.Equal(t, uint32(0), props.AllocationCount())
	stats := props.HeapUsage(0)
	require.Equal(t, 0, stats.MemoryObjects)
	require.Equal(t, 0, stats.MemoryBytes)
}

func TestAllocateVulkanMemoryHeapLimit(t *testing.T) {
	ctrl := gomock.NewController(t)
	driver, props := readyMemoryProperties(t, ctrl, core1_0.PhysicalDeviceLimits{
		BufferImageGranularity: 1,
		NonCoherentAtomSize:    1,
	}, []int{0, 1500})

	memory := mocks.NewDummyDeviceMemory(driver.Device(), 1000)
	driver.EXPECT().AllocateMemory(gomock.Any(), core1_0.MemoryAllocateInfo{
		MemoryTypeIndex: 1,
		AllocationSize:  1000,
	}).Return(memory, core1_0.VKSuccess, nil)

	_, _, err := props.AllocateVulkanMemory(core1_0.MemoryAllocateInfo{MemoryTypeIndex: 1, AllocationSize: 1000})
	require.NoError(t, err)

	_, res, err := props.AllocateVulkanMemory(core1_0.MemoryAllocateInfo{MemoryTypeIndex: 2, AllocationSize: 1000})
	require.Error(t, err)
	require.Equal(t, core1_0.VKErrorOutOfDeviceMemory, res)

	stats := props.HeapUsage(1)
	require.Equal(t, 1, stats.MemoryObjects)
	require.Equal(t, 1000, stats.MemoryBytes)
	require.Equal(t, uint32(1), props.AllocationCount())
}

func TestAllocateVulkanMemoryOversized(t *testing.T) {
	ctrl := gomock.NewController(t)
	_, props := readyMemoryProperties(t, ctrl, core1_0.PhysicalDeviceLimits{
		BufferImageGranularity: 1,
		NonCoherentAtomSize:    1,
	}, nil)

	_, res, err := props.AllocateVulkanMemory(core1_0.MemoryAllocateInfo{MemoryTypeIndex: 0, AllocationSize: 2000000})
	require.Error(t, err)
	require.Equal(t, core1_0.VKErrorOutOfDeviceMemory, res)
	require.Equal(t, uint32(0), props.AllocationCount())
}

func TestSynchronizedMemoryMapReferences(t *testing.T) {
	ctrl := gomock.NewController(t)
	driver, props := readyMemoryProperties(t, ctrl, core1_0.PhysicalDeviceLimits{
		BufferImageGranularity: 1,
		NonCoherentAtomSize:    1,
	}, nil)

	memory := mocks.NewDummyDeviceMemory(driver.Device(), 1000)
	driver.EXPECT().AllocateMemory(gomock.Any(), gomock.Any()).Return(memory, core1_0.VKSuccess, nil)

	syncMemory, _, err := props.AllocateVulkanMemory(core1_0.MemoryAllocateInfo{MemoryTypeIndex: 2, AllocationSize: 1000})
	require.NoError(t, err)

	data := make([]byte, 1000)
	dataPtr := unsafe.Pointer(&data[0])
	driver.EXPECT().MapMemory(memory, 0, WholeSize, core1_0.MemoryMapFlags(0)).Return(dataPtr, core1_0.VKSuccess, nil)

	require.Nil(t, syncMemory.Mapped())

	mapped, _, err := syncMemory.Map(driver)
	require.NoError(t, err)
	require.Len(t, mapped, 1000)
	require.Equal(t, dataPtr, unsafe.Pointer(&mapped[0]))

	// The second reference reuses the mapping
	mapped, _, err = syncMemory.Map(driver)
	require.NoError(t, err)
	require.Equal(t, dataPtr, unsafe.Pointer(&mapped[0]))
	require.Equal(t, 2, syncMemory.References())

	require.NoError(t, syncMemory.Unmap(driver))
	require.Len(t, syncMemory.Mapped(), 1000)

	// Freeing with a live mapping unmaps before freeing
	gomock.InOrder(
		driver.EXPECT().UnmapMemory(memory),
		driver.EXPECT().FreeMemory(memory, nil),
	)
	props.FreeVulkanMemory(2, syncMemory)

	require.Nil(t, syncMemory.Mapped())
	_, _, err = syncMemory.Map(driver)
	require.Error(t, err)
	require.Error(t, syncMemory.Unmap(driver))
}

func TestFlushOrInvalidateAllocations(t *testing.T) {
	ctrl := gomock.NewController(t)
	driver, props := readyMemoryProperties(t, ctrl, core1_0.PhysicalDeviceLimits{
		BufferImageGranularity: 1,
		NonCoherentAtomSize:    1,
	}, nil)

	memory := mocks.NewDummyDeviceMemory(driver.Device(), 1000)
	ranges := []core1_0.MappedMemoryRange{{Memory: memory, Offset: 0, Size: WholeSize}}

	driver.EXPECT().InvalidateMappedMemoryRanges(ranges[0]).Return(core1_0.VKSuccess, nil)
	_, err := props.FlushOrInvalidateAllocations(ranges, CacheOperationInvalidate)
	require.NoError(t, err)

	driver.EXPECT().FlushMappedMemoryRanges(ranges[0]).Return(core1_0.VKSuccess, nil)
	_, err = props.FlushOrInvalidateAllocations(ranges, CacheOperationFlush)
	require.NoError(t, err)

	res, err := props.FlushOrInvalidateAllocations(nil, CacheOperationFlush)
	require.NoError(t, err)
	require.Equal(t, core1_0.VKSuccess, res)

	_, err = props.FlushOrInvalidateAllocations(ranges, CacheOperation(7))
	require.Error(t, err)
}
