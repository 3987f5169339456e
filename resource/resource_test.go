package resource

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/core/v3/mocks"
	"github.com/vkngwrapper/core/v3/mocks/mocks1_2"
	"go.uber.org/mock/gomock"
)

type fakeBinder struct {
	driverErr error
	offsets   []int
}

func (b *fakeBinder) BindVulkanBuffer(driver core1_0.DeviceDriver, offset int, buffer core1_0.Buffer) (common.VkResult, error) {
	b.offsets = append(b.offsets, offset)
	if b.driverErr != nil {
		return core1_0.VKErrorOutOfDeviceMemory, b.driverErr
	}
	return core1_0.VKSuccess, nil
}

func (b *fakeBinder) BindVulkanImage(driver core1_0.DeviceDriver, offset int, image core1_0.Image) (common.VkResult, error) {
	b.offsets = append(b.offsets, offset)
	if b.driverErr != nil {
		return core1_0.VKErrorOutOfDeviceMemory, b.driverErr
	}
	return core1_0.VKSuccess, nil
}

func readyDriver(ctrl *gomock.Controller) *mocks1_2.MockCoreDeviceDriver {
	driver := mocks1_2.NewMockCoreDeviceDriver(ctrl)
	device := mocks.NewDummyDevice(common.Vulkan1_2, []string{})
	driver.EXPECT().Device().Return(device).AnyTimes()
	return driver
}

func TestCreateImage(t *testing.T) {
	ctrl := gomock.NewController(t)
	driver := readyDriver(ctrl)

	image := mocks.NewDummyImage(driver.Device())
	driver.EXPECT().CreateImage(gomock.Nil(), core1_0.ImageCreateInfo{
		ImageType:     core1_0.ImageType2D,
		Extent:        core1_0.Extent3D{Width: 400, Height: 800, Depth: 1},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        core1_0.FormatR8G8B8A8UnsignedInt,
		Tiling:        core1_0.ImageTilingOptimal,
		InitialLayout: core1_0.ImageLayoutUndefined,
		Usage:         core1_0.ImageUsageTransferSrc | core1_0.ImageUsageTransferDst,
		SharingMode:   core1_0.SharingModeExclusive,
		Samples:       core1_0.Samples1,
	}).Return(image, core1_0.VKSuccess, nil)
	driver.EXPECT().GetImageMemoryRequirements(image).Return(&core1_0.MemoryRequirements{
		Size:           1280000,
		Alignment:      256,
		MemoryTypeBits: 0b11,
	})

	unbound, _, err := CreateImage(driver, nil, ImageInfo{
		Width:  400,
		Height: 800,
		Format: core1_0.FormatR8G8B8A8UnsignedInt,
		Tiling: core1_0.ImageTilingOptimal,
		Usage:  core1_0.ImageUsageTransferSrc | core1_0.ImageUsageTransferDst,
	})
	require.NoError(t, err)
	require.Equal(t, KindImage, unbound.Kind())
	require.Equal(t, MemoryRequirements{Size: 1280000, Alignment: 256, TypeBits: 0b11}, unbound.Requirements())

	binder := &fakeBinder{}
	bound, _, err := unbound.BindImage(driver, binder, 512)
	require.NoError(t, err)
	require.Equal(t, image, bound.Handle())
	require.Equal(t, 512, bound.Offset())
	require.Equal(t, 1280000, bound.Size())

	driver.EXPECT().DestroyImage(image, gomock.Nil())
	bound.Destroy(driver)
	bound.Destroy(driver)
}

func TestCreateImageEmptyExtent(t *testing.T) {
	ctrl := gomock.NewController(t)
	driver := readyDriver(ctrl)

	_, _, err := CreateImage(driver, nil, ImageInfo{Width: 0, Height: 800})
	require.Error(t, err)
}

func TestBindBufferFailureLeavesBufferUnbound(t *testing.T) {
	ctrl := gomock.NewController(t)
	driver := readyDriver(ctrl)

	buffer := mocks.NewDummyBuffer(driver.Device())
	driver.EXPECT().CreateBuffer(gomock.Nil(), core1_0.BufferCreateInfo{
		Size:        1280000,
		Usage:       core1_0.BufferUsageTransferDst,
		SharingMode: core1_0.SharingModeExclusive,
	}).Return(buffer, core1_0.VKSuccess, nil)
	driver.EXPECT().GetBufferMemoryRequirements(buffer).Return(&core1_0.MemoryRequirements{
		Size:           1280000,
		Alignment:      64,
		MemoryTypeBits: 0b110,
	})

	unbound, _, err := CreateBuffer(driver, nil, BufferInfo{Size: 1280000, Usage: core1_0.BufferUsageTransferDst})
	require.NoError(t, err)

	binder := &fakeBinder{driverErr: core1_0.VKErrorOutOfDeviceMemory.ToError()}
	bound, res, err := unbound.Bind(driver, binder, 0)
	require.Error(t, err)
	require.Nil(t, bound)
	require.Equal(t, core1_0.VKErrorOutOfDeviceMemory, res)

	// The caller still owns the unbound buffer
	driver.EXPECT().DestroyBuffer(buffer, gomock.Nil())
	unbound.Destroy(driver)
}
