package submit

import (
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"
	"github.com/vkngwrapper/arsenal/crossqueue/command"
	"github.com/vkngwrapper/arsenal/crossqueue/vkerrors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/core/v3/loader"
)

// Step is one recorded pool and the queue it is submitted to. WaitStages is where the step waits on
// the step before it; zero means TRANSFER.
type Step struct {
	Queue      core1_0.Queue
	Pool       *command.Pool
	WaitStages core1_0.PipelineStageFlags
}

// Tracker submits chains of recorded pools and hands back a Completion to wait on
type Tracker struct {
	logger     *slog.Logger
	driver     core1_0.DeviceDriver
	translator vkerrors.Translator
	callbacks  *loader.AllocationCallbacks
}

func NewTracker(logger *slog.Logger, driver core1_0.DeviceDriver, callbacks *loader.AllocationCallbacks) *Tracker {
	return &Tracker{
		logger:     logger,
		driver:     driver,
		translator: vkerrors.Translator{Logger: logger},
		callbacks:  callbacks,
	}
}

// syncObjects are the semaphores and fence created for one chain
type syncObjects struct {
	semaphores []core1_0.Semaphore
	fence      *core1_0.Fence
}

func (t *Tracker) destroySyncObjects(objects syncObjects) {
	for _, semaphore := range objects.semaphores {
		t.driver.DestroySemaphore(semaphore, t.callbacks)
	}
	if objects.fence != nil {
		t.driver.DestroyFence(*objects.fence, t.callbacks)
	}
}

// Submit submits steps in order. Each step signals a semaphore the next step waits on, and the last
// step signals a fence. Every pool must be Executable. If any submission fails, steps that were
// already queued are drained, their pools become resettable again, and every sync object created
// for the chain is destroyed.
func (t *Tracker) Submit(steps ...Step) (completion *Completion, res common.VkResult, err error) {
	t.logger.Debug("Tracker::Submit")

	if len(steps) == 0 {
		return nil, core1_0.VKErrorUnknown, errors.New("nothing to submit")
	}
	for index, step := range steps {
		if step.Pool.State() != command.StateExecutable {
			return nil, core1_0.VKErrorUnknown, errors.Wrapf(vkerrors.ErrInvalidState, "step %d has a pool in state %s", index, step.Pool.State())
		}
	}

	var objects syncObjects
	var queued []Step
	defer func() {
		if err == nil {
			return
		}

		t.logger.Debug("Tracker::Submit FAILED")
		for _, step := range queued {
			// The queue may still be reading the semaphores; they can't be destroyed before it is idle
			_, waitErr := t.driver.QueueWaitIdle(step.Queue)
			if waitErr != nil {
				err = errors.WithSecondaryError(err, waitErr)
			}
			step.Pool.Abandon()
		}
		t.destroySyncObjects(objects)
	}()

	for i := 0; i < len(steps)-1; i++ {
		var semaphore core1_0.Semaphore
		semaphore, res, err = t.driver.CreateSemaphore(t.callbacks, core1_0.SemaphoreCreateInfo{})
		if err != nil {
			return nil, res, t.translator.Translate(res, err, "vkCreateSemaphore")
		}
		objects.semaphores = append(objects.semaphores, semaphore)
	}

	fence, res, err := t.driver.CreateFence(t.callbacks, core1_0.FenceCreateInfo{})
	if err != nil {
		return nil, res, t.translator.Translate(res, err, "vkCreateFence")
	}
	objects.fence = &fence

	start := hrtime.Now()
	for index, step := range steps {
		info := core1_0.SubmitInfo{
			CommandBuffers: []core1_0.CommandBuffer{step.Pool.CommandBuffer()},
		}
		if index > 0 {
			waitStages := step.WaitStages
			if waitStages == 0 {
				waitStages = core1_0.PipelineStageTransfer
			}
			info.WaitSemaphores = []core1_0.Semaphore{objects.semaphores[index-1]}
			info.WaitDstStageMask = []core1_0.PipelineStageFlags{waitStages}
		}

		var signalFence *core1_0.Fence
		if index < len(steps)-1 {
			info.SignalSemaphores = []core1_0.Semaphore{objects.semaphores[index]}
		} else {
			signalFence = objects.fence
		}

		res, err = t.driver.QueueSubmit(step.Queue, signalFence, info)
		if err != nil {
			return nil, res, t.translator.Translate(res, err, "vkQueueSubmit")
		}

		queued = append(queued, step)

		// The chain's fence signals only after every step, so every pool watches it
		err = step.Pool.MarkSubmitted(objects.fence)
		if err != nil {
			return nil, core1_0.VKErrorUnknown, err
		}
	}

	pools := make([]*command.Pool, 0, len(steps))
	for _, step := range steps {
		pools = append(pools, step.Pool)
	}

	return &Completion{
		tracker:    t,
		objects:    objects,
		pools:      pools,
		submitTime: start,
	}, res, nil
}

// Completion is the pending result of one Submit. Wait for it before reading anything the chain
// wrote, then Release it.
type Completion struct {
	tracker    *Tracker
	objects    syncObjects
	pools      []*command.Pool
	submitTime time.Duration

	signaled bool
	released bool
	latency  time.Duration
}

// Wait blocks until the chain finishes or timeout passes. On timeout it returns ErrTimeout and
// every pool stays Pending.
func (c *Completion) Wait(timeout time.Duration) (common.VkResult, error) {
	if c.released {
		return core1_0.VKErrorUnknown, errors.New("waiting on a released completion")
	}
	if c.signaled {
		return core1_0.VKSuccess, nil
	}

	res, err := c.tracker.driver.WaitForFences(true, timeout, *c.objects.fence)
	if err != nil {
		return res, c.tracker.translator.Translate(res, err, "vkWaitForFences")
	}
	if res == core1_0.VKTimeout {
		return res, errors.Wrapf(vkerrors.ErrTimeout, "after %s", timeout)
	}

	c.signaled = true
	c.latency = hrtime.Since(c.submitTime)
	for _, pool := range c.pools {
		pool.MarkComplete()
	}

	c.tracker.logger.Debug("submission complete", slog.Duration("latency", c.latency), slog.Int("steps", len(c.pools)))
	return res, nil
}

// Latency is the time from submission to the fence being observed signaled
func (c *Completion) Latency() time.Duration {
	return c.latency
}

func (c *Completion) Signaled() bool {
	return c.signaled
}

// Abandon destroys the chain's semaphores and fence without waiting for them and returns every pool
// to a resettable state. Only call it once the device is lost or known idle.
func (c *Completion) Abandon() {
	if c.released {
		return
	}

	c.released = true
	for _, pool := range c.pools {
		pool.Abandon()
	}
	c.tracker.destroySyncObjects(c.objects)
	c.tracker.logger.Debug("submission abandoned", slog.Int("steps", len(c.pools)))
}

// Release destroys the chain's semaphores and fence. It refuses to while the chain may still be
// running.
func (c *Completion) Release() error {
	if c.released {
		return nil
	}
	if !c.signaled {
		return errors.Wrap(vkerrors.ErrPoolPending, "releasing an unfinished submission")
	}

	c.released = true
	c.tracker.destroySyncObjects(c.objects)
	return nil
}
