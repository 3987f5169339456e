package main

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os"
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/arsenal/crossqueue/adapter"
	"github.com/vkngwrapper/arsenal/crossqueue/session"
	"github.com/vkngwrapper/arsenal/crossqueue/vkerrors"
	"github.com/vkngwrapper/core/v3"
)

func main() {
	runtime.LockOSThread()

	cfg, err := parseConfig(os.Args[1:], os.Stderr)
	if err != nil {
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	err = run(logger, cfg, os.Stdout)
	if err != nil {
		logger.Error("crossqueue failed", slog.Any("error", err))
		os.Exit(1)
	}
}

// run brings up Vulkan, runs one clear-and-readback on the selected adapter and tears everything down
func run(logger *slog.Logger, cfg config, stdout io.Writer) (err error) {
	globalDriver, err := core.CreateSystemDriver()
	if err != nil {
		return errors.Wrap(err, "loading the vulkan driver")
	}

	vulkan := &vulkanContext{
		logger:     logger,
		translator: vkerrors.Translator{Logger: logger},
	}
	defer vulkan.destroy()

	err = vulkan.createInstance(globalDriver, cfg.Validate)
	if err != nil {
		return err
	}

	req := adapter.DefaultRequirements(cfg.Session.Width, cfg.Session.Height, cfg.Session.Format)
	err = vulkan.selectAdapter(req)
	if err != nil {
		return err
	}

	err = vulkan.createDevice(req)
	if err != nil {
		return err
	}

	work, err := session.New(logger, vulkan.deviceDriver, vulkan.info, cfg.Session)
	if err != nil {
		return err
	}
	defer func() {
		destroyErr := work.Destroy()
		if destroyErr != nil {
			err = errors.CombineErrors(err, destroyErr)
		}
	}()

	data, err := work.Run()
	if err != nil {
		return err
	}

	err = work.Verify(data)
	if err != nil {
		return err
	}
	logger.Info("readback verified",
		slog.Int("width", cfg.Session.Width),
		slog.Int("height", cfg.Session.Height),
		slog.Bool("ownership_transfer", work.OwnershipTransfer().Crosses()))

	if cfg.Stats {
		logger.Debug("allocator statistics", slog.String("stats", work.Allocator().BuildStatsString()))
	}

	if cfg.Report {
		err = printReport(stdout, vulkan.info)
		if err != nil {
			return err
		}
	}

	if cfg.Output != "" {
		err = writePNG(cfg.Output, data, cfg.Session.Width, cfg.Session.Height)
		if err != nil {
			return err
		}
		logger.Info("wrote image", slog.String("path", cfg.Output))
	}

	return nil
}

func printReport(out io.Writer, info *adapter.PhysicalDeviceInfo) error {
	writer := jwriter.NewWriter()
	adapter.WriteReport(&writer, info.Adapter)
	if writer.Error() != nil {
		return writer.Error()
	}

	_, err := fmt.Fprintln(out, string(writer.Bytes()))
	return err
}

// writePNG stores an RGBA8 readback as a PNG file
func writePNG(path string, data []byte, width, height int) (err error) {
	if len(data) != width*height*session.BytesPerPixel {
		return errors.Newf("readback holds %d bytes, expected %d", len(data), width*height*session.BytesPerPixel)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	copy(img.Pix, data)

	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	defer func() {
		closeErr := file.Close()
		if closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return png.Encode(file, img)
}
