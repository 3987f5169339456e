package adapter

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/arsenal/crossqueue/vkerrors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/core/v3/core1_1"
	"golang.org/x/sync/errgroup"
)

const (
	OptimalTilingUsage = core1_0.ImageUsageTransferSrc | core1_0.ImageUsageTransferDst
	LinearTilingUsage  = core1_0.ImageUsageTransferDst
)

// Prober collects the capabilities of every physical device an instance exposes. It never changes
// device state.
type Prober struct {
	logger     *slog.Logger
	driver     core1_0.CoreInstanceDriver
	translator vkerrors.Translator
}

func NewProber(logger *slog.Logger, driver core1_0.CoreInstanceDriver) *Prober {
	return &Prober{
		logger:     logger,
		driver:     driver,
		translator: vkerrors.Translator{Logger: logger},
	}
}

// Probe queries every physical device for what the workload needs to know about it, format being the
// format of the image the workload clears. Results are in enumeration order.
func (p *Prober) Probe(format core1_0.Format) ([]*AdapterInfo, common.VkResult, error) {
	p.logger.Debug("Prober::Probe")

	physicalDevices, res, err := p.driver.EnumeratePhysicalDevices()
	if err != nil {
		return nil, res, p.translator.Translate(res, err, "vkEnumeratePhysicalDevices")
	}

	adapters := make([]*AdapterInfo, len(physicalDevices))
	results := make([]common.VkResult, len(physicalDevices))

	var group errgroup.Group
	for index, physicalDevice := range physicalDevices {
		group.Go(func() error {
			info, res, err := p.probeAdapter(physicalDevice, format)
			results[index] = res
			if err != nil {
				return errors.Wrapf(err, "probing physical device %d", index)
			}
			adapters[index] = info
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		for _, res := range results {
			if res != core1_0.VKSuccess {
				return nil, res, err
			}
		}
		return nil, core1_0.VKErrorInitializationFailed, err
	}

	return adapters, core1_0.VKSuccess, nil
}

func (p *Prober) probeAdapter(physicalDevice core1_0.PhysicalDevice, format core1_0.Format) (*AdapterInfo, common.VkResult, error) {
	properties, err := p.driver.GetPhysicalDeviceProperties(physicalDevice)
	if err != nil {
		return nil, core1_0.VKErrorInitializationFailed, err
	}

	extensionProperties, res, err := p.driver.EnumerateDeviceExtensionProperties(physicalDevice)
	if err != nil {
		return nil, res, p.translator.Translate(res, err, "vkEnumerateDeviceExtensionProperties")
	}
	extensions := make(map[string]struct{}, len(extensionProperties))
	for name := range extensionProperties {
		extensions[name] = struct{}{}
	}

	queueFamilyProperties := p.driver.GetPhysicalDeviceQueueFamilyProperties(physicalDevice)
	queueFamilies := make([]QueueFamilyInfo, 0, len(queueFamilyProperties))
	for index, family := range queueFamilyProperties {
		queueFamilies = append(queueFamilies, QueueFamilyInfo{
			Index:      index,
			Flags:      family.QueueFlags,
			QueueCount: family.QueueCount,
		})
	}

	maxAllocationSize, err := p.maxMemoryAllocationSize(physicalDevice)
	if err != nil {
		return nil, core1_0.VKErrorInitializationFailed, err
	}

	info := &AdapterInfo{
		Handle:           physicalDevice,
		Properties:       properties,
		MemoryProperties: p.driver.GetPhysicalDeviceMemoryProperties(physicalDevice),
		QueueFamilies:    queueFamilies,
		Extensions:       extensions,
		Format:           format,

		MaxMemoryAllocationSize: maxAllocationSize,
	}

	formatProperties := p.driver.GetPhysicalDeviceFormatProperties(physicalDevice, format)
	if formatProperties != nil {
		info.OptimalTilingFeatures = formatProperties.OptimalTilingFeatures
		info.LinearTilingFeatures = formatProperties.LinearTilingFeatures
	}

	info.OptimalImageLimits, res, err = p.imageLimits(physicalDevice, format, core1_0.ImageTilingOptimal, OptimalTilingUsage)
	if err != nil {
		return nil, res, err
	}

	info.LinearImageLimits, res, err = p.imageLimits(physicalDevice, format, core1_0.ImageTilingLinear, LinearTilingUsage)
	if err != nil {
		return nil, res, err
	}

	return info, core1_0.VKSuccess, nil
}

// maxMemoryAllocationSize reads maintenance3's allocation limit. It is 0 when the instance or the
// device predates Vulkan 1.1.
func (p *Prober) maxMemoryAllocationSize(physicalDevice core1_0.PhysicalDevice) (int, error) {
	driver, ok := p.driver.(core1_1.CoreInstanceDriver)
	version := physicalDevice.DeviceAPIVersion().Min(physicalDevice.InstanceAPIVersion())
	if !ok || !version.IsAtLeast(common.Vulkan1_1) {
		return 0, nil
	}

	maintenance3 := &core1_1.PhysicalDeviceMaintenance3Properties{}
	properties := &core1_1.PhysicalDeviceProperties2{
		NextOutData: common.NextOutData{Next: maintenance3},
	}
	err := driver.GetPhysicalDeviceProperties2(physicalDevice, properties)
	if err != nil {
		return 0, errors.Wrap(err, "vkGetPhysicalDeviceProperties2")
	}

	return maintenance3.MaxMemoryAllocationSize, nil
}

// imageLimits reports an unsupported combination as a limit rather than an error, any other failure
// is an error
func (p *Prober) imageLimits(physicalDevice core1_0.PhysicalDevice, format core1_0.Format, tiling core1_0.ImageTiling, usage core1_0.ImageUsageFlags) (ImageFormatLimits, common.VkResult, error) {
	properties, res, err := p.driver.GetPhysicalDeviceImageFormatProperties(physicalDevice, format, core1_0.ImageType2D, tiling, usage, 0)
	if res == core1_0.VKErrorFormatNotSupported {
		return ImageFormatLimits{}, core1_0.VKSuccess, nil
	}
	if err != nil {
		return ImageFormatLimits{}, res, p.translator.Translate(res, err, "vkGetPhysicalDeviceImageFormatProperties")
	}

	return ImageFormatLimits{
		Supported: true,
		MaxExtent: properties.MaxExtent,
	}, res, nil
}
