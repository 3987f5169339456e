package main

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/arsenal/crossqueue/adapter"
	"github.com/vkngwrapper/arsenal/crossqueue/vkerrors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/v3/khr_portability_subset"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

// vulkanContext holds the instance level objects the command creates, in creation order
type vulkanContext struct {
	logger     *slog.Logger
	translator vkerrors.Translator

	instanceDriver core1_0.CoreInstanceDriver
	debugDriver    ext_debug_utils.ExtensionDriver
	debugMessenger ext_debug_utils.DebugUtilsMessenger

	info         *adapter.PhysicalDeviceInfo
	deviceDriver core1_0.CoreDeviceDriver
}

func debugLevel(severity ext_debug_utils.DebugUtilsMessageSeverityFlags) slog.Level {
	switch {
	case severity&ext_debug_utils.SeverityError != 0:
		return slog.LevelError
	case severity&ext_debug_utils.SeverityWarning != 0:
		return slog.LevelWarn
	case severity&ext_debug_utils.SeverityInfo != 0:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

func (c *vulkanContext) debugMessengerOptions() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback: func(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
			c.logger.Log(context.Background(), debugLevel(severity), data.Message,
				slog.String("type", msgType.String()),
				slog.String("severity", severity.String()))
			return false
		},
	}
}

func (c *vulkanContext) createInstance(globalDriver core1_0.GlobalDriver, validate bool) error {
	instanceOptions := core1_0.InstanceCreateInfo{
		ApplicationName:    applicationName,
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "No Engine",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	extensions, res, err := globalDriver.AvailableExtensions()
	if err != nil {
		return c.translator.Translate(res, err, "vkEnumerateInstanceExtensionProperties")
	}

	// Portability drivers such as MoltenVK are only enumerated when asked for
	_, enumerationSupported := extensions[khr_portability_enumeration.ExtensionName]
	if enumerationSupported {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		instanceOptions.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	if validate {
		layers, res, err := globalDriver.AvailableLayers()
		if err != nil {
			return c.translator.Translate(res, err, "vkEnumerateInstanceLayerProperties")
		}

		_, hasValidation := layers[validationLayer]
		if !hasValidation {
			return errors.Newf("validation layer %s is not available", validationLayer)
		}
		_, hasDebugUtils := extensions[ext_debug_utils.ExtensionName]
		if !hasDebugUtils {
			return errors.Newf("instance extension %s is not available", ext_debug_utils.ExtensionName)
		}

		instanceOptions.EnabledLayerNames = append(instanceOptions.EnabledLayerNames, validationLayer)
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext_debug_utils.ExtensionName)
		// Chained so instance creation and destruction are covered too
		instanceOptions.Next = c.debugMessengerOptions()
	}

	instance, res, err := globalDriver.CreateInstance(nil, instanceOptions)
	if err != nil {
		return c.translator.Translate(res, err, "vkCreateInstance")
	}

	c.instanceDriver, err = globalDriver.BuildInstanceDriver(instance)
	if err != nil {
		return errors.Wrap(err, "loading instance commands")
	}

	c.logger.Debug("instance created",
		slog.Bool("portability_enumeration", enumerationSupported),
		slog.Bool("validation", validate))

	if !validate {
		return nil
	}

	c.debugDriver = ext_debug_utils.CreateExtensionDriverFromCoreDriver(c.instanceDriver)
	c.debugMessenger, res, err = c.debugDriver.CreateDebugUtilsMessenger(nil, c.debugMessengerOptions())
	if err != nil {
		return c.translator.Translate(res, err, "vkCreateDebugUtilsMessengerEXT")
	}

	return nil
}

// selectAdapter probes every adapter and keeps the best one that can run req
func (c *vulkanContext) selectAdapter(req adapter.Requirements) error {
	adapters, _, err := adapter.NewProber(c.logger, c.instanceDriver).Probe(req.Format)
	if err != nil {
		return err
	}

	info, ok := adapter.Select(c.logger, adapters, req)
	if !ok {
		return errors.Wrapf(vkerrors.ErrNoCompatibleAdapter, "none of %d adapters qualify", len(adapters))
	}

	c.info = info
	return nil
}

// createDevice opens the selected adapter with one queue from every family the session uses and
// the extensions req names
func (c *vulkanContext) createDevice(req adapter.Requirements) error {
	var extensionNames []string
	extensionNames = append(extensionNames, req.DeviceExtensions...)

	// Required on portability implementations, absent everywhere else
	_, supported := c.info.Extensions[khr_portability_subset.ExtensionName]
	if supported {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	device, res, err := c.instanceDriver.CreateDevice(c.info.Handle, nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos:      c.info.QueueFamilies.QueueCreateInfos(1.0),
		EnabledExtensionNames: extensionNames,
	})
	if err != nil {
		return c.translator.Translate(res, err, "vkCreateDevice")
	}

	c.deviceDriver, err = c.instanceDriver.BuildDeviceDriver(device)
	if err != nil {
		return errors.Wrap(err, "loading device commands")
	}

	return nil
}

// destroy tears down whatever was created, newest first
func (c *vulkanContext) destroy() {
	if c.deviceDriver != nil {
		c.deviceDriver.DestroyDevice(nil)
		c.deviceDriver = nil
	}

	if c.debugMessenger.Initialized() {
		c.debugDriver.DestroyDebugUtilsMessenger(c.debugMessenger, nil)
	}

	if c.instanceDriver != nil {
		c.instanceDriver.DestroyInstance(nil)
		c.instanceDriver = nil
	}
}
