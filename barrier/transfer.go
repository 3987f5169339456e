package barrier

import "github.com/vkngwrapper/core/v3/core1_0"

// OwnershipTransfer describes how one image moves from the family that clears it to the family
// that copies it out. It is built once from the resolved family indices and consumed by both
// recorders, so the release and acquire halves can never disagree.
type OwnershipTransfer struct {
	Image          core1_0.Image
	ComputeFamily  int
	TransferFamily int

	OldLayout core1_0.ImageLayout
	NewLayout core1_0.ImageLayout
}

// PlanTransfer builds the transfer of image from computeFamily to transferFamily, moving it from
// TRANSFER_DST to TRANSFER_SRC
func PlanTransfer(image core1_0.Image, computeFamily, transferFamily int) OwnershipTransfer {
	return OwnershipTransfer{
		Image:          image,
		ComputeFamily:  computeFamily,
		TransferFamily: transferFamily,
		OldLayout:      core1_0.ImageLayoutTransferDstOptimal,
		NewLayout:      core1_0.ImageLayoutTransferSrcOptimal,
	}
}

// Crosses reports whether the image changes queue family ownership
func (t OwnershipTransfer) Crosses() bool {
	return t.ComputeFamily != t.TransferFamily
}

// Release is the half recorded on the compute family. Its destination access is always None;
// visibility is established by the matching Acquire.
func (t OwnershipTransfer) Release() ImageBarrier {
	return ImageBarrier{
		Image:          t.Image,
		SrcStage:       StageClear,
		DstStage:       StageTransfer,
		SrcAccess:      AccessTransferWrite,
		DstAccess:      AccessNone,
		OldLayout:      t.OldLayout,
		NewLayout:      t.NewLayout,
		SrcQueueFamily: t.ComputeFamily,
		DstQueueFamily: t.TransferFamily,
	}
}

// Acquire is the half recorded on the transfer family. The layout transition it declares matches
// Release and executes once, here.
func (t OwnershipTransfer) Acquire() ImageBarrier {
	return ImageBarrier{
		Image:          t.Image,
		SrcStage:       StageTransfer,
		DstStage:       StageCopy,
		SrcAccess:      AccessNone,
		DstAccess:      AccessTransferRead,
		OldLayout:      t.OldLayout,
		NewLayout:      t.NewLayout,
		SrcQueueFamily: t.ComputeFamily,
		DstQueueFamily: t.TransferFamily,
	}
}

func (t OwnershipTransfer) layoutOnly() ImageBarrier {
	return ImageBarrier{
		Image:          t.Image,
		SrcStage:       StageClear,
		DstStage:       StageTransfer,
		SrcAccess:      AccessTransferWrite,
		DstAccess:      AccessTransferRead,
		OldLayout:      t.OldLayout,
		NewLayout:      t.NewLayout,
		SrcQueueFamily: QueueFamilyIgnored,
		DstQueueFamily: QueueFamilyIgnored,
	}
}

// ClosingBarrier is the one barrier that ends the clear sequence: the release when the families
// differ, a plain layout transition otherwise
func (t OwnershipTransfer) ClosingBarrier() ImageBarrier {
	if t.Crosses() {
		return t.Release()
	}
	return t.layoutOnly()
}

// OpeningBarriers are the barriers that start the copy sequence: the acquire when the families
// differ, nothing otherwise
func (t OwnershipTransfer) OpeningBarriers() []ImageBarrier {
	if t.Crosses() {
		return []ImageBarrier{t.Acquire()}
	}
	return nil
}
