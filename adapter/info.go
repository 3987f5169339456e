package adapter

import (
	"fmt"

	"github.com/vkngwrapper/core/v3/core1_0"
)

// ImageFormatLimits is what an adapter supports for the workload's format under one tiling
type ImageFormatLimits struct {
	Supported bool
	MaxExtent core1_0.Extent3D
}

// AdapterInfo is everything the prober learned about one physical device. Nothing in it changes
// after probing.
type AdapterInfo struct {
	Handle           core1_0.PhysicalDevice
	Properties       *core1_0.PhysicalDeviceProperties
	MemoryProperties *core1_0.PhysicalDeviceMemoryProperties
	QueueFamilies    []QueueFamilyInfo
	Extensions       map[string]struct{}

	// MaxMemoryAllocationSize is the device's single allocation limit, 0 before Vulkan 1.1
	MaxMemoryAllocationSize int

	Format                core1_0.Format
	OptimalTilingFeatures core1_0.FormatFeatureFlags
	LinearTilingFeatures  core1_0.FormatFeatureFlags
	OptimalImageLimits    ImageFormatLimits
	LinearImageLimits     ImageFormatLimits
}

func (a *AdapterInfo) Name() string {
	if a.Properties == nil {
		return ""
	}
	return a.Properties.DriverName
}

type Vendor uint32

const (
	VendorAMD      Vendor = 0x1002
	VendorImgTec   Vendor = 0x1010
	VendorNVIDIA   Vendor = 0x10DE
	VendorARM      Vendor = 0x13B5
	VendorQualcomm Vendor = 0x5143
	VendorIntel    Vendor = 0x8086
)

var vendorMapping = make(map[Vendor]string)

func (v Vendor) String() string {
	str, ok := vendorMapping[v]
	if !ok {
		return fmt.Sprintf("Unknown (%d)", uint32(v))
	}
	return str
}

func init() {
	vendorMapping[VendorAMD] = "AMD"
	vendorMapping[VendorImgTec] = "ImgTec"
	vendorMapping[VendorNVIDIA] = "NVIDIA"
	vendorMapping[VendorARM] = "ARM"
	vendorMapping[VendorQualcomm] = "Qualcomm"
	vendorMapping[VendorIntel] = "INTEL"
}

// FormatDriverVersion decodes a vendor specific driver version. NVIDIA packs 10/8/8/6 bits; every
// other vendor is read as a Vulkan version.
func (v Vendor) FormatDriverVersion(version uint32) string {
	if v == VendorNVIDIA {
		return fmt.Sprintf("%d.%d.%d.%d",
			version>>22,
			(version>>14)&0xff,
			(version>>6)&0xff,
			version&0x3f)
	}

	return fmt.Sprintf("%d.%d.%d",
		(version>>22)&0x7f,
		(version>>12)&0x3ff,
		version&0xfff)
}

func (a *AdapterInfo) Vendor() Vendor {
	return Vendor(a.Properties.VendorID)
}

func (a *AdapterInfo) DriverVersionString() string {
	return a.Vendor().FormatDriverVersion(uint32(a.Properties.DriverVersion))
}

// TypeRank orders adapter types from most to least preferred
func TypeRank(deviceType core1_0.PhysicalDeviceType) int {
	switch deviceType {
	case core1_0.PhysicalDeviceTypeDiscreteGPU:
		return 0
	case core1_0.PhysicalDeviceTypeIntegratedGPU:
		return 1
	case core1_0.PhysicalDeviceTypeVirtualGPU:
		return 2
	case core1_0.PhysicalDeviceTypeCPU:
		return 3
	case core1_0.PhysicalDeviceTypeOther:
		return 4
	}
	return 5
}
