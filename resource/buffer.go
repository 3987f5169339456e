package resource

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/core/v3/loader"
)

type BufferInfo struct {
	Size  int
	Usage core1_0.BufferUsageFlags
}

type UnboundBuffer struct {
	handle       core1_0.Buffer
	info         BufferInfo
	requirements MemoryRequirements
	callbacks    *loader.AllocationCallbacks
}

func CreateBuffer(driver core1_0.DeviceDriver, callbacks *loader.AllocationCallbacks, info BufferInfo) (*UnboundBuffer, common.VkResult, error) {
	if info.Size <= 0 {
		return nil, core1_0.VKErrorUnknown, errors.Newf("buffer size %d is empty", info.Size)
	}

	handle, res, err := driver.CreateBuffer(callbacks, core1_0.BufferCreateInfo{
		Size:        info.Size,
		Usage:       info.Usage,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return nil, res, err
	}

	return &UnboundBuffer{
		handle:       handle,
		info:         info,
		requirements: requirementsFrom(driver.GetBufferMemoryRequirements(handle)),
		callbacks:    callbacks,
	}, res, nil
}

func (b *UnboundBuffer) Kind() Kind { return KindBuffer }

func (b *UnboundBuffer) Requirements() MemoryRequirements {
	return b.requirements
}

func (b *UnboundBuffer) Info() BufferInfo {
	return b.info
}

func (b *UnboundBuffer) Bind(driver core1_0.DeviceDriver, memory Binder, offset int) (Bound, common.VkResult, error) {
	bound, res, err := b.BindBuffer(driver, memory, offset)
	if err != nil {
		return nil, res, err
	}
	return bound, res, nil
}

func (b *UnboundBuffer) BindBuffer(driver core1_0.DeviceDriver, memory Binder, offset int) (*Buffer, common.VkResult, error) {
	res, err := memory.BindVulkanBuffer(driver, offset, b.handle)
	if err != nil {
		return nil, res, err
	}

	return &Buffer{
		handle:    b.handle,
		info:      b.info,
		offset:    offset,
		size:      b.requirements.Size,
		callbacks: b.callbacks,
	}, res, nil
}

func (b *UnboundBuffer) Destroy(driver core1_0.DeviceDriver) {
	driver.DestroyBuffer(b.handle, b.callbacks)
}

type Buffer struct {
	handle    core1_0.Buffer
	info      BufferInfo
	offset    int
	size      int
	callbacks *loader.AllocationCallbacks
	destroyed bool
}

func (b *Buffer) Kind() Kind { return KindBuffer }

func (b *Buffer) Handle() core1_0.Buffer {
	return b.handle
}

func (b *Buffer) Info() BufferInfo {
	return b.info
}

func (b *Buffer) Offset() int {
	return b.offset
}

func (b *Buffer) Size() int {
	return b.size
}

func (b *Buffer) Destroy(driver core1_0.DeviceDriver) {
	if b.destroyed {
		return
	}
	driver.DestroyBuffer(b.handle, b.callbacks)
	b.destroyed = true
}
