package resource

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/core/v3/loader"
)

type ImageInfo struct {
	Width  int
	Height int
	Format core1_0.Format
	Tiling core1_0.ImageTiling
	Usage  core1_0.ImageUsageFlags
}

// UnboundImage is a 2D single-mip, single-layer image without memory
type UnboundImage struct {
	handle       core1_0.Image
	info         ImageInfo
	requirements MemoryRequirements
	callbacks    *loader.AllocationCallbacks
}

// CreateImage creates an exclusively owned image in the UNDEFINED layout and queries its memory
// requirements
func CreateImage(driver core1_0.DeviceDriver, callbacks *loader.AllocationCallbacks, info ImageInfo) (*UnboundImage, common.VkResult, error) {
	if info.Width <= 0 || info.Height <= 0 {
		return nil, core1_0.VKErrorUnknown, errors.Newf("image extent %dx%d is empty", info.Width, info.Height)
	}

	handle, res, err := driver.CreateImage(callbacks, core1_0.ImageCreateInfo{
		ImageType: core1_0.ImageType2D,
		Extent: core1_0.Extent3D{
			Width:  info.Width,
			Height: info.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        info.Format,
		Tiling:        info.Tiling,
		InitialLayout: core1_0.ImageLayoutUndefined,
		Usage:         info.Usage,
		SharingMode:   core1_0.SharingModeExclusive,
		Samples:       core1_0.Samples1,
	})
	if err != nil {
		return nil, res, err
	}

	return &UnboundImage{
		handle:       handle,
		info:         info,
		requirements: requirementsFrom(driver.GetImageMemoryRequirements(handle)),
		callbacks:    callbacks,
	}, res, nil
}

func (i *UnboundImage) Kind() Kind { return KindImage }

func (i *UnboundImage) Requirements() MemoryRequirements {
	return i.requirements
}

func (i *UnboundImage) Info() ImageInfo {
	return i.info
}

func (i *UnboundImage) Bind(driver core1_0.DeviceDriver, memory Binder, offset int) (Bound, common.VkResult, error) {
	bound, res, err := i.BindImage(driver, memory, offset)
	if err != nil {
		return nil, res, err
	}
	return bound, res, nil
}

// BindImage binds the image and returns the bound variant. On failure the image stays unbound and
// owned by the caller.
func (i *UnboundImage) BindImage(driver core1_0.DeviceDriver, memory Binder, offset int) (*Image, common.VkResult, error) {
	res, err := memory.BindVulkanImage(driver, offset, i.handle)
	if err != nil {
		return nil, res, err
	}

	return &Image{
		handle:    i.handle,
		info:      i.info,
		offset:    offset,
		size:      i.requirements.Size,
		callbacks: i.callbacks,
	}, res, nil
}

func (i *UnboundImage) Destroy(driver core1_0.DeviceDriver) {
	driver.DestroyImage(i.handle, i.callbacks)
}

// Image is an image bound to memory and ready to be used in commands
type Image struct {
	handle    core1_0.Image
	info      ImageInfo
	offset    int
	size      int
	callbacks *loader.AllocationCallbacks
	destroyed bool
}

func (i *Image) Kind() Kind { return KindImage }

func (i *Image) Handle() core1_0.Image {
	return i.handle
}

func (i *Image) Info() ImageInfo {
	return i.info
}

func (i *Image) Offset() int {
	return i.offset
}

func (i *Image) Size() int {
	return i.size
}

// Destroy destroys the image. Calling it again does nothing.
func (i *Image) Destroy(driver core1_0.DeviceDriver) {
	if i.destroyed {
		return
	}
	driver.DestroyImage(i.handle, i.callbacks)
	i.destroyed = true
}
