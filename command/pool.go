package command

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/arsenal/crossqueue/barrier"
	"github.com/vkngwrapper/arsenal/crossqueue/internal/utils"
	"github.com/vkngwrapper/arsenal/crossqueue/resource"
	"github.com/vkngwrapper/arsenal/crossqueue/vkerrors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/core/v3/loader"
)

type Options struct {
	VulkanCallbacks *loader.AllocationCallbacks
	// ExternallySynchronized skips locking when the owner never touches the pool from more than one
	// goroutine at a time
	ExternallySynchronized bool
}

// Pool is a transient command pool on one queue family with a single primary command buffer. Only
// one sequence is ever recorded into it at a time, and it is not recorded again until the previous
// submission has been observed complete.
type Pool struct {
	logger     *slog.Logger
	driver     core1_0.DeviceDriver
	translator vkerrors.Translator
	callbacks  *loader.AllocationCallbacks

	family        int
	pool          core1_0.CommandPool
	commandBuffer core1_0.CommandBuffer

	mutex     utils.OptionalMutex
	state     State
	fence     *core1_0.Fence
	destroyed bool
}

func NewPool(logger *slog.Logger, driver core1_0.DeviceDriver, family int, options Options) (*Pool, common.VkResult, error) {
	logger = logger.With(slog.Int("queue_family", family))
	translator := vkerrors.Translator{Logger: logger}

	pool, res, err := driver.CreateCommandPool(options.VulkanCallbacks, core1_0.CommandPoolCreateInfo{
		QueueFamilyIndex: family,
		Flags:            core1_0.CommandPoolCreateTransient,
	})
	if err != nil {
		logger.Debug("Pool::NewPool FAILED")
		return nil, res, translator.Translate(res, err, "vkCreateCommandPool")
	}

	buffers, res, err := driver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        pool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		logger.Debug("Pool::NewPool FAILED")
		driver.DestroyCommandPool(pool, options.VulkanCallbacks)
		return nil, res, translator.Translate(res, err, "vkAllocateCommandBuffers")
	}

	return &Pool{
		logger:        logger,
		driver:        driver,
		translator:    translator,
		callbacks:     options.VulkanCallbacks,
		family:        family,
		pool:          pool,
		commandBuffer: buffers[0],
		mutex:         utils.OptionalMutex{Enabled: !options.ExternallySynchronized},
		state:         StateInitial,
	}, res, nil
}

func (p *Pool) Family() int {
	return p.family
}

func (p *Pool) CommandBuffer() core1_0.CommandBuffer {
	return p.commandBuffer
}

func (p *Pool) State() State {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.state
}

// pendingDone checks whether a pending submission has finished. The pool is only considered done when
// its fence is signaled.
func (p *Pool) pendingDone() (bool, common.VkResult, error) {
	if p.fence == nil {
		return false, core1_0.VKNotReady, nil
	}

	res, err := p.driver.GetFenceStatus(*p.fence)
	if err != nil {
		return false, res, p.translator.Translate(res, err, "vkGetFenceStatus")
	}
	return res == core1_0.VKSuccess, res, nil
}

// Reset returns the pool to Initial so it can be recorded again. A pending pool is only reset if
// its submission has already finished; otherwise Reset fails fast with ErrPoolPending.
func (p *Pool) Reset() (common.VkResult, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.logger.Debug("Pool::Reset")

	if p.destroyed {
		return core1_0.VKErrorUnknown, errors.Wrapf(vkerrors.ErrInvalidState, "resetting destroyed pool for queue family %d", p.family)
	}

	if p.state == StatePending {
		done, res, err := p.pendingDone()
		if err != nil {
			return res, err
		}
		if !done {
			return res, errors.Wrapf(vkerrors.ErrPoolPending, "resetting pool for queue family %d", p.family)
		}
		p.state = StateComplete
	}

	res, err := p.driver.ResetCommandPool(p.pool, 0)
	if err != nil {
		p.logger.Debug("Pool::Reset FAILED")
		return res, p.translator.Translate(res, err, "vkResetCommandPool")
	}

	p.state = StateInitial
	p.fence = nil
	return res, nil
}

func (p *Pool) begin(operation string) (common.VkResult, error) {
	if p.destroyed {
		return core1_0.VKErrorUnknown, errors.Wrapf(vkerrors.ErrInvalidState, "%s on destroyed pool", operation)
	}

	switch p.state {
	case StateInitial:
	case StatePending:
		return core1_0.VKNotReady, errors.Wrapf(vkerrors.ErrPoolPending, "%s on queue family %d", operation, p.family)
	default:
		return core1_0.VKErrorUnknown, errors.Wrapf(vkerrors.ErrInvalidState, "%s from state %s", operation, p.state)
	}

	res, err := p.driver.BeginCommandBuffer(p.commandBuffer, core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	if err != nil {
		return res, p.translator.Translate(res, err, "vkBeginCommandBuffer")
	}

	p.state = StateRecording
	return res, nil
}

func (p *Pool) end() (common.VkResult, error) {
	res, err := p.driver.EndCommandBuffer(p.commandBuffer)
	if err != nil {
		return res, p.translator.Translate(res, err, "vkEndCommandBuffer")
	}

	p.state = StateExecutable
	return res, nil
}

// RecordClearImage records the compute side of a transfer: move image into TRANSFER_DST, clear it to
// color, then close with the plan's release (or a plain layout transition when no family change
// happens). The pool must belong to the plan's compute family.
func (p *Pool) RecordClearImage(plan barrier.OwnershipTransfer, image *resource.Image, color [4]uint32) (common.VkResult, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.logger.Debug("Pool::RecordClearImage")

	if plan.ComputeFamily != p.family {
		return core1_0.VKErrorUnknown, errors.Wrapf(vkerrors.ErrInvalidState, "clear planned for queue family %d recorded on %d", plan.ComputeFamily, p.family)
	}
	if plan.Image != image.Handle() {
		return core1_0.VKErrorUnknown, errors.Wrap(vkerrors.ErrInvalidState, "clear recorded for an image the plan does not cover")
	}

	res, err := p.begin("RecordClearImage")
	if err != nil {
		return res, err
	}

	err = barrier.PrepareForClear(image.Handle()).Record(p.driver, p.commandBuffer)
	if err != nil {
		return core1_0.VKErrorUnknown, errors.Wrap(err, "recording clear preparation barrier")
	}

	p.driver.CmdClearColorImage(p.commandBuffer, image.Handle(), core1_0.ImageLayoutTransferDstOptimal,
		core1_0.ClearValueUint32(color), barrier.ColorRange)

	err = plan.ClosingBarrier().Record(p.driver, p.commandBuffer)
	if err != nil {
		return core1_0.VKErrorUnknown, errors.Wrap(err, "recording closing barrier")
	}

	return p.end()
}

// RecordCopyImageToHost records the transfer side: acquire the image if ownership moved, copy it into
// buffer, then make the copy visible to host reads. The pool must belong to the plan's transfer
// family.
func (p *Pool) RecordCopyImageToHost(plan barrier.OwnershipTransfer, image *resource.Image, buffer *resource.Buffer) (common.VkResult, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.logger.Debug("Pool::RecordCopyImageToHost")

	if plan.TransferFamily != p.family {
		return core1_0.VKErrorUnknown, errors.Wrapf(vkerrors.ErrInvalidState, "copy planned for queue family %d recorded on %d", plan.TransferFamily, p.family)
	}
	if plan.Image != image.Handle() {
		return core1_0.VKErrorUnknown, errors.Wrap(vkerrors.ErrInvalidState, "copy recorded for an image the plan does not cover")
	}

	info := image.Info()
	if buffer.Info().Size < info.Width*info.Height*4 {
		return core1_0.VKErrorUnknown, errors.Newf("buffer of %d bytes cannot hold a %dx%d image", buffer.Info().Size, info.Width, info.Height)
	}

	res, err := p.begin("RecordCopyImageToHost")
	if err != nil {
		return res, err
	}

	for _, opening := range plan.OpeningBarriers() {
		err = opening.Record(p.driver, p.commandBuffer)
		if err != nil {
			return core1_0.VKErrorUnknown, errors.Wrap(err, "recording opening barrier")
		}
	}

	err = p.driver.CmdCopyImageToBuffer(p.commandBuffer, image.Handle(), plan.NewLayout, buffer.Handle(),
		core1_0.BufferImageCopy{
			BufferOffset:      0,
			BufferRowLength:   0,
			BufferImageHeight: 0,
			ImageSubresource: core1_0.ImageSubresourceLayers{
				AspectMask:     core1_0.ImageAspectColor,
				MipLevel:       0,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			ImageOffset: core1_0.Offset3D{X: 0, Y: 0, Z: 0},
			ImageExtent: core1_0.Extent3D{Width: info.Width, Height: info.Height, Depth: 1},
		})
	if err != nil {
		return core1_0.VKErrorUnknown, errors.Wrap(err, "recording image copy")
	}

	err = barrier.HostReadback(buffer.Handle(), barrier.WholeSize).Record(p.driver, p.commandBuffer)
	if err != nil {
		return core1_0.VKErrorUnknown, errors.Wrap(err, "recording host readback barrier")
	}

	return p.end()
}

// MarkSubmitted moves an executable pool to Pending. fence signals when the submission that
// contains it finishes; it may be nil when the pool is not the last in its chain.
func (p *Pool) MarkSubmitted(fence *core1_0.Fence) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.state != StateExecutable {
		return errors.Wrapf(vkerrors.ErrInvalidState, "submitting pool in state %s", p.state)
	}

	p.state = StatePending
	p.fence = fence
	return nil
}

// MarkComplete records that the pool's submission was observed finished
func (p *Pool) MarkComplete() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.state == StatePending {
		p.state = StateComplete
	}
}

// Abandon returns a pool that was never submitted, or whose submission failed, to a resettable state
func (p *Pool) Abandon() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	switch p.state {
	case StateRecording, StateExecutable, StatePending:
		p.state = StateComplete
		p.fence = nil
	}
}

// Destroy frees the pool and its command buffer. A pool whose submission has not been observed
// complete is left alone and ErrPoolPending is returned. Destroying twice is a no-op.
func (p *Pool) Destroy() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.logger.Debug("Pool::Destroy")

	if p.destroyed {
		return nil
	}

	if p.state == StatePending {
		done, _, err := p.pendingDone()
		if err != nil {
			return err
		}
		if !done {
			return errors.Wrapf(vkerrors.ErrPoolPending, "destroying pool for queue family %d", p.family)
		}
	}

	p.driver.DestroyCommandPool(p.pool, p.callbacks)
	p.destroyed = true
	p.state = StateComplete
	p.fence = nil
	return nil
}
