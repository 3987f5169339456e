package barrier

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/core/v3/mocks"
	"github.com/vkngwrapper/core/v3/mocks/mocks1_2"
	"go.uber.org/mock/gomock"
)

func dummyImage() core1_0.Image {
	device := mocks.NewDummyDevice(common.Vulkan1_2, []string{})
	return mocks.NewDummyImage(device)
}

func TestPlanTransferSameFamily(t *testing.T) {
	image := dummyImage()

	plan := PlanTransfer(image, 2, 2)
	require.False(t, plan.Crosses())

	closing := plan.ClosingBarrier()
	require.False(t, closing.IsOwnershipTransfer())
	require.Equal(t, QueueFamilyIgnored, closing.SrcQueueFamily)
	require.Equal(t, QueueFamilyIgnored, closing.DstQueueFamily)
	require.Equal(t, AccessTransferWrite, closing.SrcAccess)
	require.Equal(t, AccessTransferRead, closing.DstAccess)
	require.Equal(t, core1_0.ImageLayoutTransferDstOptimal, closing.OldLayout)
	require.Equal(t, core1_0.ImageLayoutTransferSrcOptimal, closing.NewLayout)

	require.Empty(t, plan.OpeningBarriers())
}

func TestPlanTransferCrossFamily(t *testing.T) {
	image := dummyImage()

	plan := PlanTransfer(image, 1, 2)
	require.True(t, plan.Crosses())

	release := plan.ClosingBarrier()
	opening := plan.OpeningBarriers()
	require.Len(t, opening, 1)
	acquire := opening[0]

	require.True(t, release.IsOwnershipTransfer())
	require.True(t, acquire.IsOwnershipTransfer())

	// Both halves name the same image, family pair and layout endpoints
	require.Equal(t, release.Image, acquire.Image)
	require.Equal(t, 1, release.SrcQueueFamily)
	require.Equal(t, 2, release.DstQueueFamily)
	require.Equal(t, release.SrcQueueFamily, acquire.SrcQueueFamily)
	require.Equal(t, release.DstQueueFamily, acquire.DstQueueFamily)
	require.Equal(t, release.OldLayout, acquire.OldLayout)
	require.Equal(t, release.NewLayout, acquire.NewLayout)

	require.Equal(t, AccessTransferWrite, release.SrcAccess)
	require.Equal(t, AccessNone, release.DstAccess)
	require.Equal(t, StageClear, release.SrcStage)
	require.Equal(t, StageTransfer, release.DstStage)

	require.Equal(t, AccessNone, acquire.SrcAccess)
	require.Equal(t, AccessTransferRead, acquire.DstAccess)
	require.Equal(t, StageTransfer, acquire.SrcStage)
	require.Equal(t, StageCopy, acquire.DstStage)
}

func TestFixedBarriers(t *testing.T) {
	image := dummyImage()

	prepare := PrepareForClear(image)
	require.False(t, prepare.IsOwnershipTransfer())
	require.Equal(t, core1_0.ImageLayoutUndefined, prepare.OldLayout)
	require.Equal(t, core1_0.ImageLayoutTransferDstOptimal, prepare.NewLayout)

	memoryBarrier := prepare.MemoryBarrier()
	require.Equal(t, core1_0.AccessFlags(0), memoryBarrier.SrcAccessMask)
	require.Equal(t, core1_0.AccessTransferWrite, memoryBarrier.DstAccessMask)
	require.Equal(t, ColorRange, memoryBarrier.SubresourceRange)

	device := mocks.NewDummyDevice(common.Vulkan1_2, []string{})
	buffer := mocks.NewDummyBuffer(device)
	readback := HostReadback(buffer, WholeSize)
	require.False(t, readback.IsOwnershipTransfer())

	bufferBarrier := readback.MemoryBarrier()
	require.Equal(t, core1_0.AccessTransferWrite, bufferBarrier.SrcAccessMask)
	require.Equal(t, core1_0.AccessHostRead, bufferBarrier.DstAccessMask)
	require.Equal(t, WholeSize, bufferBarrier.Size)
}

func TestStageTranslation(t *testing.T) {
	testCases := map[string]struct {
		Stage       Stage
		Source      core1_0.PipelineStageFlags
		Destination core1_0.PipelineStageFlags
	}{
		"None":  {StageNone, core1_0.PipelineStageTopOfPipe, core1_0.PipelineStageBottomOfPipe},
		"Clear": {StageClear, core1_0.PipelineStageTransfer, core1_0.PipelineStageTransfer},
		"Copy":  {StageCopy, core1_0.PipelineStageTransfer, core1_0.PipelineStageTransfer},
		"Host":  {StageHost, core1_0.PipelineStageHost, core1_0.PipelineStageHost},
	}

	for testName, testCase := range testCases {
		t.Run(testName, func(t *testing.T) {
			require.Equal(t, testCase.Source, testCase.Stage.SourceStageFlags())
			require.Equal(t, testCase.Destination, testCase.Stage.DestinationStageFlags())
		})
	}
}

func TestRecordImageBarrier(t *testing.T) {
	ctrl := gomock.NewController(t)
	driver := mocks1_2.NewMockCoreDeviceDriver(ctrl)
	device := mocks.NewDummyDevice(common.Vulkan1_2, []string{})
	image := mocks.NewDummyImage(device)
	commandBuffer := core1_0.CommandBuffer{}

	plan := PlanTransfer(image, 0, 1)
	driver.EXPECT().CmdPipelineBarrier(commandBuffer,
		core1_0.PipelineStageTransfer,
		core1_0.PipelineStageTransfer,
		core1_0.DependencyFlags(0),
		gomock.Nil(), gomock.Nil(),
		[]core1_0.ImageMemoryBarrier{plan.Release().MemoryBarrier()},
	).Return(nil)

	require.NoError(t, plan.ClosingBarrier().Record(driver, commandBuffer))
}
