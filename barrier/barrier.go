package barrier

import (
	"fmt"

	"github.com/vkngwrapper/core/v3/core1_0"
)

// QueueFamilyIgnored marks a barrier that performs no queue family ownership transfer
const QueueFamilyIgnored = -1

// Stage names the work a barrier waits on or blocks. The names follow the synchronization2 stage
// vocabulary and are translated to core 1.0 pipeline stages when recorded.
type Stage int32

const (
	StageNone Stage = iota
	StageClear
	StageCopy
	StageTransfer
	StageHost
)

var stageMapping = make(map[Stage]string)

func (s Stage) String() string {
	str, ok := stageMapping[s]
	if !ok {
		return fmt.Sprintf("Stage(%d)", int32(s))
	}
	return str
}

// SourceStageFlags translates the stage for the source scope of a core 1.0 barrier
func (s Stage) SourceStageFlags() core1_0.PipelineStageFlags {
	switch s {
	case StageClear, StageCopy, StageTransfer:
		return core1_0.PipelineStageTransfer
	case StageHost:
		return core1_0.PipelineStageHost
	}
	return core1_0.PipelineStageTopOfPipe
}

// DestinationStageFlags translates the stage for the destination scope of a core 1.0 barrier
func (s Stage) DestinationStageFlags() core1_0.PipelineStageFlags {
	switch s {
	case StageClear, StageCopy, StageTransfer:
		return core1_0.PipelineStageTransfer
	case StageHost:
		return core1_0.PipelineStageHost
	}
	return core1_0.PipelineStageBottomOfPipe
}

type Access int32

const (
	AccessNone Access = iota
	AccessTransferWrite
	AccessTransferRead
	AccessHostRead
)

var accessMapping = make(map[Access]string)

func (a Access) String() string {
	str, ok := accessMapping[a]
	if !ok {
		return fmt.Sprintf("Access(%d)", int32(a))
	}
	return str
}

func (a Access) Flags() core1_0.AccessFlags {
	switch a {
	case AccessTransferWrite:
		return core1_0.AccessTransferWrite
	case AccessTransferRead:
		return core1_0.AccessTransferRead
	case AccessHostRead:
		return core1_0.AccessHostRead
	}
	return 0
}

func init() {
	stageMapping[StageNone] = "None"
	stageMapping[StageClear] = "Clear"
	stageMapping[StageCopy] = "Copy"
	stageMapping[StageTransfer] = "Transfer"
	stageMapping[StageHost] = "Host"

	accessMapping[AccessNone] = "None"
	accessMapping[AccessTransferWrite] = "TransferWrite"
	accessMapping[AccessTransferRead] = "TransferRead"
	accessMapping[AccessHostRead] = "HostRead"
}

// ColorRange covers the single mip level and array layer of a color image
var ColorRange = core1_0.ImageSubresourceRange{
	AspectMask:     core1_0.ImageAspectColor,
	BaseMipLevel:   0,
	LevelCount:     1,
	BaseArrayLayer: 0,
	LayerCount:     1,
}

// ImageBarrier is an image memory barrier together with the stages it sits between
type ImageBarrier struct {
	Image core1_0.Image

	SrcStage  Stage
	DstStage  Stage
	SrcAccess Access
	DstAccess Access

	OldLayout core1_0.ImageLayout
	NewLayout core1_0.ImageLayout

	SrcQueueFamily int
	DstQueueFamily int
}

// IsOwnershipTransfer reports whether the barrier is one half of a queue family ownership transfer
func (b ImageBarrier) IsOwnershipTransfer() bool {
	return b.SrcQueueFamily != b.DstQueueFamily
}

func (b ImageBarrier) MemoryBarrier() core1_0.ImageMemoryBarrier {
	return core1_0.ImageMemoryBarrier{
		SrcAccessMask:       b.SrcAccess.Flags(),
		DstAccessMask:       b.DstAccess.Flags(),
		OldLayout:           b.OldLayout,
		NewLayout:           b.NewLayout,
		SrcQueueFamilyIndex: b.SrcQueueFamily,
		DstQueueFamilyIndex: b.DstQueueFamily,
		Image:               b.Image,
		SubresourceRange:    ColorRange,
	}
}

// Record writes the barrier into commandBuffer
func (b ImageBarrier) Record(driver core1_0.DeviceDriver, commandBuffer core1_0.CommandBuffer) error {
	return driver.CmdPipelineBarrier(commandBuffer,
		b.SrcStage.SourceStageFlags(),
		b.DstStage.DestinationStageFlags(),
		0, nil, nil,
		[]core1_0.ImageMemoryBarrier{b.MemoryBarrier()})
}

// BufferBarrier is a buffer memory barrier over a byte range of a buffer
type BufferBarrier struct {
	Buffer core1_0.Buffer
	Offset int
	Size   int

	SrcStage  Stage
	DstStage  Stage
	SrcAccess Access
	DstAccess Access

	SrcQueueFamily int
	DstQueueFamily int
}

func (b BufferBarrier) IsOwnershipTransfer() bool {
	return b.SrcQueueFamily != b.DstQueueFamily
}

func (b BufferBarrier) MemoryBarrier() core1_0.BufferMemoryBarrier {
	return core1_0.BufferMemoryBarrier{
		SrcAccessMask:       b.SrcAccess.Flags(),
		DstAccessMask:       b.DstAccess.Flags(),
		SrcQueueFamilyIndex: b.SrcQueueFamily,
		DstQueueFamilyIndex: b.DstQueueFamily,
		Buffer:              b.Buffer,
		Offset:              b.Offset,
		Size:                b.Size,
	}
}

func (b BufferBarrier) Record(driver core1_0.DeviceDriver, commandBuffer core1_0.CommandBuffer) error {
	return driver.CmdPipelineBarrier(commandBuffer,
		b.SrcStage.SourceStageFlags(),
		b.DstStage.DestinationStageFlags(),
		0, nil,
		[]core1_0.BufferMemoryBarrier{b.MemoryBarrier()},
		nil)
}

// PrepareForClear moves a freshly created image into TRANSFER_DST so it can be cleared. There is no
// earlier content to make visible.
func PrepareForClear(image core1_0.Image) ImageBarrier {
	return ImageBarrier{
		Image:          image,
		SrcStage:       StageNone,
		DstStage:       StageClear,
		SrcAccess:      AccessNone,
		DstAccess:      AccessTransferWrite,
		OldLayout:      core1_0.ImageLayoutUndefined,
		NewLayout:      core1_0.ImageLayoutTransferDstOptimal,
		SrcQueueFamily: QueueFamilyIgnored,
		DstQueueFamily: QueueFamilyIgnored,
	}
}

// HostReadback makes copy writes into buffer visible to host reads. size may be WholeSize.
func HostReadback(buffer core1_0.Buffer, size int) BufferBarrier {
	return BufferBarrier{
		Buffer:         buffer,
		Offset:         0,
		Size:           size,
		SrcStage:       StageCopy,
		DstStage:       StageHost,
		SrcAccess:      AccessTransferWrite,
		DstAccess:      AccessHostRead,
		SrcQueueFamily: QueueFamilyIgnored,
		DstQueueFamily: QueueFamilyIgnored,
	}
}

// WholeSize covers a buffer from the offset to its end
const WholeSize = -1
