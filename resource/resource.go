// Package resource models images and buffers across their two-phase lifetime. A resource is created
// unbound, with its memory requirements already known, and only binding it to memory produces the
// bound variant that command recording accepts.
package resource

import (
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// MemoryRequirements is what a resource needs from the memory it is bound to
type MemoryRequirements struct {
	Size      int
	Alignment int
	TypeBits  uint32
}

func requirementsFrom(req *core1_0.MemoryRequirements) MemoryRequirements {
	if req == nil {
		return MemoryRequirements{}
	}
	return MemoryRequirements{
		Size:      req.Size,
		Alignment: req.Alignment,
		TypeBits:  req.MemoryTypeBits,
	}
}

// Kind separates images from buffers for buffer/image granularity checks
type Kind int32

const (
	KindBuffer Kind = iota
	KindImage
)

// Binder is the memory side of a bind call
type Binder interface {
	BindVulkanBuffer(driver core1_0.DeviceDriver, offset int, buffer core1_0.Buffer) (common.VkResult, error)
	BindVulkanImage(driver core1_0.DeviceDriver, offset int, image core1_0.Image) (common.VkResult, error)
}

// Unbound is a created resource that has no memory yet. The caller owns it and must destroy it
// unless Bind succeeds.
type Unbound interface {
	Kind() Kind
	Requirements() MemoryRequirements
	Bind(driver core1_0.DeviceDriver, memory Binder, offset int) (Bound, common.VkResult, error)
	Destroy(driver core1_0.DeviceDriver)
}

// Bound is a resource with memory behind it. It must be destroyed before that memory is freed.
type Bound interface {
	Kind() Kind
	Offset() int
	Size() int
	Destroy(driver core1_0.DeviceDriver)
}
