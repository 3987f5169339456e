package session

import (
	"time"

	"github.com/vkngwrapper/arsenal/crossqueue/alloc"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/core/v3/loader"
)

const BytesPerPixel = 4

// Options describe the workload a session runs
type Options struct {
	Width  int
	Height int
	// Format must have four 8-bit unsigned integer channels so the clear color lands byte for byte
	// in the readback
	Format     core1_0.Format
	ClearColor [4]uint32

	// Timeout bounds each wait for a submission to finish
	Timeout time.Duration

	VulkanCallbacks  *loader.AllocationCallbacks
	AllocatorOptions alloc.CreateOptions
}

func DefaultOptions() Options {
	return Options{
		Width:      400,
		Height:     800,
		Format:     core1_0.FormatR8G8B8A8UnsignedInt,
		ClearColor: [4]uint32{134, 206, 203, 255},
		Timeout:    common.NoTimeout,
	}
}

// ImageSize is the number of bytes a readback of the image holds
func (o Options) ImageSize() int {
	return o.Width * o.Height * BytesPerPixel
}
