package session

import (
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/vkngwrapper/arsenal/crossqueue/adapter"
	"github.com/vkngwrapper/arsenal/crossqueue/alloc"
	"github.com/vkngwrapper/arsenal/crossqueue/barrier"
	"github.com/vkngwrapper/arsenal/crossqueue/command"
	"github.com/vkngwrapper/arsenal/crossqueue/resource"
	"github.com/vkngwrapper/arsenal/crossqueue/submit"
	"github.com/vkngwrapper/arsenal/crossqueue/vkerrors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// Session owns everything one clear-and-readback workload needs on a logical device: the queues,
// the allocator, a command pool per role, the image and the readback buffer. The device itself
// belongs to the caller and must outlive the session.
type Session struct {
	id      uuid.UUID
	logger  *slog.Logger
	driver  core1_0.DeviceDriver
	info    *adapter.PhysicalDeviceInfo
	options Options

	computeQueue  core1_0.Queue
	transferQueue core1_0.Queue

	allocator    *alloc.Allocator
	computePool  *command.Pool
	transferPool *command.Pool
	tracker      *submit.Tracker

	imageAllocation  *alloc.Allocation
	image            *resource.Image
	bufferAllocation *alloc.Allocation
	buffer           *resource.Buffer

	plan barrier.OwnershipTransfer
	// pending is a submission whose wait did not finish. Its sync objects live until it is seen
	// finished or the device is lost.
	pending *submit.Completion
}

// New builds a session on a device created from info with one queue for every index in
// info.QueueFamilies.UniqueIndices. Anything built before a failure is torn down again, newest first.
func New(logger *slog.Logger, driver core1_0.DeviceDriver, info *adapter.PhysicalDeviceInfo, options Options) (session *Session, err error) {
	if options.Width <= 0 || options.Height <= 0 {
		return nil, errors.Newf("image extent %dx%d is empty", options.Width, options.Height)
	}

	id := uuid.New()
	logger = logger.With(slog.String("session", id.String()))
	logger.Debug("Session::New")

	computeFamily := info.QueueFamilies.ComputeFamily().Index
	transferFamily := info.QueueFamilies.TransferFamily().Index

	s := &Session{
		id:            id,
		logger:        logger,
		driver:        driver,
		info:          info,
		options:       options,
		computeQueue:  driver.GetQueue(computeFamily, 0),
		transferQueue: driver.GetQueue(transferFamily, 0),
		tracker:       submit.NewTracker(logger, driver, options.VulkanCallbacks),
	}

	defer func() {
		if err != nil {
			logger.Debug("Session::New FAILED")
			s.teardown()
		}
	}()

	allocatorOptions := options.AllocatorOptions
	if allocatorOptions.VulkanCallbacks == nil {
		allocatorOptions.VulkanCallbacks = options.VulkanCallbacks
	}
	if allocatorOptions.MaxSingleAllocationSize == 0 {
		allocatorOptions.MaxSingleAllocationSize = info.MaxSingleAllocationSize
	}
	s.allocator, err = alloc.New(logger, driver, info.MemoryProperties, info.Properties.Limits, allocatorOptions)
	if err != nil {
		return nil, err
	}

	err = s.createImage()
	if err != nil {
		return nil, err
	}

	err = s.createBuffer()
	if err != nil {
		return nil, err
	}

	poolOptions := command.Options{VulkanCallbacks: options.VulkanCallbacks}
	s.computePool, _, err = command.NewPool(logger, driver, computeFamily, poolOptions)
	if err != nil {
		return nil, err
	}

	s.transferPool, _, err = command.NewPool(logger, driver, transferFamily, poolOptions)
	if err != nil {
		return nil, err
	}

	s.plan = barrier.PlanTransfer(s.image.Handle(), computeFamily, transferFamily)
	logger.Info("session ready",
		slog.Int("compute_family", computeFamily),
		slog.Int("transfer_family", transferFamily),
		slog.Bool("ownership_transfer", s.plan.Crosses()),
		slog.Int("image_memory_type", s.imageAllocation.MemoryTypeIndex()),
		slog.Int("buffer_memory_type", s.bufferAllocation.MemoryTypeIndex()))

	return s, nil
}

func (s *Session) createImage() error {
	unbound, res, err := resource.CreateImage(s.driver, s.options.VulkanCallbacks, resource.ImageInfo{
		Width:  s.options.Width,
		Height: s.options.Height,
		Format: s.options.Format,
		Tiling: core1_0.ImageTilingOptimal,
		Usage:  core1_0.ImageUsageTransferSrc | core1_0.ImageUsageTransferDst,
	})
	if err != nil {
		return vkerrors.Translator{Logger: s.logger}.Translate(res, err, "vkCreateImage")
	}

	// Device local memory is preferred but any type the image accepts will do
	s.imageAllocation, s.image, _, err = s.allocator.AllocateImage(unbound, 0, core1_0.MemoryPropertyDeviceLocal)
	return err
}

func (s *Session) createBuffer() error {
	unbound, res, err := resource.CreateBuffer(s.driver, s.options.VulkanCallbacks, resource.BufferInfo{
		Size:  s.options.ImageSize(),
		Usage: core1_0.BufferUsageTransferDst,
	})
	if err != nil {
		return vkerrors.Translator{Logger: s.logger}.Translate(res, err, "vkCreateBuffer")
	}

	// Host reads are faster from cached memory
	s.bufferAllocation, s.buffer, _, err = s.allocator.AllocateBuffer(unbound, core1_0.MemoryPropertyHostVisible, core1_0.MemoryPropertyHostCached)
	return err
}

func (s *Session) ID() uuid.UUID {
	return s.id
}

// OwnershipTransfer is the plan every run records
func (s *Session) OwnershipTransfer() barrier.OwnershipTransfer {
	return s.plan
}

func (s *Session) Allocator() *alloc.Allocator {
	return s.allocator
}

// Run clears the image on the compute family, copies it to the readback buffer on the transfer
// family and returns the pixels. A session can be run again once the previous run returned.
func (s *Session) Run() ([]byte, error) {
	s.logger.Debug("Session::Run")

	err := s.collectPending(0)
	if err != nil {
		return nil, err
	}

	_, err = s.computePool.Reset()
	if err != nil {
		return nil, err
	}
	_, err = s.transferPool.Reset()
	if err != nil {
		return nil, err
	}

	_, err = s.computePool.RecordClearImage(s.plan, s.image, s.options.ClearColor)
	if err != nil {
		return nil, err
	}
	_, err = s.transferPool.RecordCopyImageToHost(s.plan, s.image, s.buffer)
	if err != nil {
		return nil, err
	}

	completion, _, err := s.tracker.Submit(
		submit.Step{Queue: s.computeQueue, Pool: s.computePool},
		submit.Step{Queue: s.transferQueue, Pool: s.transferPool, WaitStages: core1_0.PipelineStageTransfer},
	)
	if err != nil {
		return nil, err
	}

	_, err = completion.Wait(s.options.Timeout)
	if vkerrors.IsFatal(err) {
		completion.Abandon()
		return nil, err
	} else if err != nil {
		s.pending = completion
		return nil, err
	}
	s.logger.Debug("run complete", slog.Duration("latency", completion.Latency()))

	err = completion.Release()
	if err != nil {
		return nil, err
	}

	return s.readback()
}

// collectPending releases a submission left behind by a timed out run once it has finished. It fails
// with ErrPoolPending while that submission is still running.
func (s *Session) collectPending(timeout time.Duration) error {
	if s.pending == nil {
		return nil
	}

	_, err := s.pending.Wait(timeout)
	if vkerrors.IsFatal(err) {
		s.pending.Abandon()
		s.pending = nil
		return err
	} else if errors.Is(err, vkerrors.ErrTimeout) {
		return errors.Wrap(vkerrors.ErrPoolPending, "previous run has not finished")
	} else if err != nil {
		return err
	}

	err = s.pending.Release()
	if err != nil {
		return err
	}
	s.pending = nil
	return nil
}

func (s *Session) readback() (data []byte, err error) {
	mapped, _, err := s.bufferAllocation.Map()
	if err != nil {
		return nil, err
	}
	defer func() {
		unmapErr := s.bufferAllocation.Unmap()
		if unmapErr != nil && err == nil {
			err = unmapErr
		}
	}()

	_, err = s.bufferAllocation.Invalidate()
	if err != nil {
		return nil, err
	}

	size := s.options.ImageSize()
	data = make([]byte, size)
	copy(data, mapped[:size])
	return data, nil
}

// Verify checks that every pixel of data is color
func (s *Session) Verify(data []byte) error {
	return Verify(data, s.options.Width, s.options.Height, s.options.ClearColor)
}

func Verify(data []byte, width, height int, color [4]uint32) error {
	if len(data) != width*height*BytesPerPixel {
		return errors.Newf("readback holds %d bytes, expected %d", len(data), width*height*BytesPerPixel)
	}

	expected := [BytesPerPixel]byte{byte(color[0]), byte(color[1]), byte(color[2]), byte(color[3])}
	for pixel := 0; pixel < width*height; pixel++ {
		offset := pixel * BytesPerPixel
		if [BytesPerPixel]byte(data[offset:offset+BytesPerPixel]) != expected {
			return errors.Newf("pixel (%d, %d) is %v, expected %v",
				pixel%width, pixel/width, data[offset:offset+BytesPerPixel], expected)
		}
	}

	return nil
}

// Destroy waits for the device to go idle and then tears the session down. A lost device is torn
// down anyway and the loss is returned along with any teardown error.
func (s *Session) Destroy() error {
	s.logger.Debug("Session::Destroy")

	res, err := s.driver.DeviceWaitIdle()
	if err != nil {
		err = vkerrors.Translator{Logger: s.logger}.Translate(res, err, "vkDeviceWaitIdle")
		if !vkerrors.IsFatal(err) {
			return err
		}

		s.logger.Warn("device lost, tearing down without waiting")
		if s.pending != nil {
			s.pending.Abandon()
			s.pending = nil
		}
	} else {
		err = s.collectPending(0)
		if err != nil && !vkerrors.IsFatal(err) {
			return err
		}
	}

	teardownErr := s.teardown()
	if teardownErr != nil {
		err = errors.CombineErrors(err, teardownErr)
	}
	return err
}

// teardown destroys the pools, then each allocation along with its resources, then the allocator
func (s *Session) teardown() error {
	var err error

	for _, pool := range []*command.Pool{s.transferPool, s.computePool} {
		if pool == nil {
			continue
		}
		destroyErr := pool.Destroy()
		if destroyErr != nil {
			err = errors.CombineErrors(err, destroyErr)
		}
	}
	s.transferPool = nil
	s.computePool = nil

	if s.bufferAllocation != nil {
		s.bufferAllocation.Release()
		s.bufferAllocation = nil
	}
	if s.imageAllocation != nil {
		s.imageAllocation.Release()
		s.imageAllocation = nil
	}

	if s.allocator != nil {
		destroyErr := s.allocator.Destroy()
		if destroyErr != nil {
			err = errors.CombineErrors(err, destroyErr)
		}
		s.allocator = nil
	}

	return err
}
