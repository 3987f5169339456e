package adapter

import (
	"log/slog"

	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/core/v3/core1_1"
)

// SpecializationShift weights queue specialization above adapter type. Type ranks stay below
// 1 << SpecializationShift, so an adapter with more distinct families always wins.
const SpecializationShift = 3

// Requirements are the minimum capabilities an adapter must have to run the workload
type Requirements struct {
	MinAPIVersion    common.APIVersion
	DeviceExtensions []string

	Format          core1_0.Format
	OptimalFeatures core1_0.FormatFeatureFlags
	LinearFeatures  core1_0.FormatFeatureFlags

	Width  int
	Height int
}

func DefaultRequirements(width, height int, format core1_0.Format) Requirements {
	return Requirements{
		MinAPIVersion:   common.Vulkan1_2,
		Format:          format,
		OptimalFeatures: core1_1.FormatFeatureTransferSrc | core1_1.FormatFeatureTransferDst,
		LinearFeatures:  core1_1.FormatFeatureTransferDst,
		Width:           width,
		Height:          height,
	}
}

// PhysicalDeviceInfo is the adapter chosen by Select. It is immutable once built.
type PhysicalDeviceInfo struct {
	Handle           core1_0.PhysicalDevice
	Properties       *core1_0.PhysicalDeviceProperties
	MemoryProperties *core1_0.PhysicalDeviceMemoryProperties
	QueueFamilies    QueueFamilies
	Extensions       map[string]struct{}

	// MaxSingleAllocationSize is the device's maxMemoryAllocationSize, or the size of the largest
	// memory heap when the device predates Vulkan 1.1
	MaxSingleAllocationSize int

	// Score is the rank Select gave the adapter, lower is better
	Score int

	// Adapter is everything the prober collected about this adapter
	Adapter *AdapterInfo
}

// Score ranks a mapped adapter. Lower is better.
func Score(families QueueFamilies, deviceType core1_0.PhysicalDeviceType) int {
	return ((3 - len(families.UniqueIndices)) << SpecializationShift) + TypeRank(deviceType)
}

// rejection explains why an adapter cannot run the workload, or is empty if it can
func (r Requirements) rejection(info *AdapterInfo) string {
	if info.Properties == nil {
		return "no device properties"
	}
	if !info.Properties.APIVersion.IsAtLeast(r.MinAPIVersion) {
		return "api version " + info.Properties.APIVersion.String() + " is below " + r.MinAPIVersion.String()
	}
	for _, extension := range r.DeviceExtensions {
		if _, ok := info.Extensions[extension]; !ok {
			return "missing device extension " + extension
		}
	}
	if info.Format != r.Format {
		return "probed for format " + info.Format.String() + " instead of " + r.Format.String()
	}
	if info.OptimalTilingFeatures&r.OptimalFeatures != r.OptimalFeatures {
		return "optimal tiling lacks " + r.OptimalFeatures.String()
	}
	if info.LinearTilingFeatures&r.LinearFeatures != r.LinearFeatures {
		return "linear tiling lacks " + r.LinearFeatures.String()
	}
	if !r.fits(info.OptimalImageLimits) {
		return "image extent exceeds the optimal tiling limit"
	}
	if !r.fits(info.LinearImageLimits) {
		return "image extent exceeds the linear tiling limit"
	}
	return ""
}

func (r Requirements) fits(limits ImageFormatLimits) bool {
	return limits.Supported &&
		limits.MaxExtent.Width >= r.Width &&
		limits.MaxExtent.Height >= r.Height
}

// Select filters adapters against req and returns the best scoring one. Ties keep the earliest
// adapter. It reports false, not an error, when nothing qualifies.
func Select(logger *slog.Logger, adapters []*AdapterInfo, req Requirements) (*PhysicalDeviceInfo, bool) {
	var best *PhysicalDeviceInfo

	for index, info := range adapters {
		if reason := req.rejection(info); reason != "" {
			logger.Debug("adapter rejected", slog.Int("adapter", index), slog.String("name", info.Name()), slog.String("reason", reason))
			continue
		}

		families, ok := MapQueueFamilies(info.QueueFamilies)
		if !ok {
			logger.Debug("adapter rejected", slog.Int("adapter", index), slog.String("name", info.Name()), slog.String("reason", "no graphics queue family"))
			continue
		}

		score := Score(families, info.Properties.DriverType)
		if best != nil && score >= best.Score {
			continue
		}

		best = &PhysicalDeviceInfo{
			Handle:                  info.Handle,
			Properties:              info.Properties,
			MemoryProperties:        info.MemoryProperties,
			QueueFamilies:           families,
			Extensions:              info.Extensions,
			MaxSingleAllocationSize: maxSingleAllocationSize(info),
			Score:                   score,
			Adapter:                 info,
		}
	}

	if best != nil {
		logger.Info("selected adapter",
			slog.String("name", best.Properties.DriverName),
			slog.String("type", best.Properties.DriverType.String()),
			slog.Int("score", best.Score),
			slog.Int("compute_family", best.QueueFamilies.ComputeFamily().Index),
			slog.Int("transfer_family", best.QueueFamilies.TransferFamily().Index))
	}

	return best, best != nil
}

func maxSingleAllocationSize(info *AdapterInfo) int {
	if info.MaxMemoryAllocationSize > 0 {
		return info.MaxMemoryAllocationSize
	}
	return largestHeap(info.MemoryProperties)
}

func largestHeap(properties *core1_0.PhysicalDeviceMemoryProperties) int {
	if properties == nil {
		return 0
	}

	var largest int
	for _, heap := range properties.MemoryHeaps {
		largest = max(largest, heap.Size)
	}
	return largest
}
