package main

import (
	"flag"
	"io"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/arsenal/crossqueue/session"
	"github.com/vkngwrapper/core/v3/common"
)

const applicationName = "crossqueue"

// config is everything the command line controls
type config struct {
	Session session.Options

	Validate bool
	Report   bool
	Stats    bool
	Output   string
	LogLevel slog.Level
}

// parseConfig reads args into a config built on session.DefaultOptions. A zero -timeout waits forever.
func parseConfig(args []string, output io.Writer) (config, error) {
	cfg := config{Session: session.DefaultOptions()}

	flags := flag.NewFlagSet(applicationName, flag.ContinueOnError)
	flags.SetOutput(output)

	var timeout time.Duration
	var verbose bool
	flags.IntVar(&cfg.Session.Width, "width", cfg.Session.Width, "image width in pixels")
	flags.IntVar(&cfg.Session.Height, "height", cfg.Session.Height, "image height in pixels")
	flags.DurationVar(&timeout, "timeout", 0, "longest wait for the device to finish a run")
	flags.BoolVar(&cfg.Validate, "validate", false, "enable the Khronos validation layer and log its messages")
	flags.BoolVar(&cfg.Report, "report", false, "print a JSON report of the selected adapter to stdout")
	flags.BoolVar(&cfg.Stats, "stats", false, "log allocator statistics after the run")
	flags.StringVar(&cfg.Output, "out", "", "write the readback to this PNG file")
	flags.BoolVar(&verbose, "v", false, "log at debug level")

	err := flags.Parse(args)
	if err != nil {
		return cfg, err
	}
	if flags.NArg() > 0 {
		return cfg, errors.Newf("unexpected argument %q", flags.Arg(0))
	}
	if cfg.Session.Width <= 0 || cfg.Session.Height <= 0 {
		return cfg, errors.Newf("image extent %dx%d is empty", cfg.Session.Width, cfg.Session.Height)
	}
	if timeout < 0 {
		return cfg, errors.Newf("timeout %s is negative", timeout)
	}

	cfg.Session.Timeout = common.NoTimeout
	if timeout > 0 {
		cfg.Session.Timeout = timeout
	}

	cfg.LogLevel = slog.LevelInfo
	if verbose {
		cfg.LogLevel = slog.LevelDebug
	}

	return cfg, nil
}
