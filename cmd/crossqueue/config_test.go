package main

import (
	"bytes"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/arsenal/crossqueue/session"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
)

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := parseConfig(nil, io.Discard)
	require.NoError(t, err)

	defaults := session.DefaultOptions()
	require.Equal(t, defaults.Width, cfg.Session.Width)
	require.Equal(t, defaults.Height, cfg.Session.Height)
	require.Equal(t, defaults.ClearColor, cfg.Session.ClearColor)
	require.Equal(t, common.NoTimeout, cfg.Session.Timeout)
	require.Equal(t, slog.LevelInfo, cfg.LogLevel)
	require.False(t, cfg.Validate)
	require.Empty(t, cfg.Output)
}

func TestParseConfigFlags(t *testing.T) {
	cfg, err := parseConfig([]string{
		"-width", "32", "-height", "16", "-timeout", "2s",
		"-validate", "-report", "-stats", "-out", "clear.png", "-v",
	}, io.Discard)
	require.NoError(t, err)

	require.Equal(t, 32, cfg.Session.Width)
	require.Equal(t, 16, cfg.Session.Height)
	require.Equal(t, 2*time.Second, cfg.Session.Timeout)
	require.True(t, cfg.Validate)
	require.True(t, cfg.Report)
	require.True(t, cfg.Stats)
	require.Equal(t, "clear.png", cfg.Output)
	require.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestParseConfigRejects(t *testing.T) {
	testCases := map[string][]string{
		"ZeroWidth":       {"-width", "0"},
		"NegativeHeight":  {"-height", "-4"},
		"NegativeTimeout": {"-timeout", "-1s"},
		"UnknownFlag":     {"-frobnicate"},
		"StrayArgument":   {"extra"},
	}

	for name, args := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := parseConfig(args, io.Discard)
			require.Error(t, err)
		})
	}
}

func TestDebugLevel(t *testing.T) {
	testCases := map[string]struct {
		Severity ext_debug_utils.DebugUtilsMessageSeverityFlags
		Level    slog.Level
	}{
		"Error":   {Severity: ext_debug_utils.SeverityError, Level: slog.LevelError},
		"Warning": {Severity: ext_debug_utils.SeverityWarning, Level: slog.LevelWarn},
		"Info":    {Severity: ext_debug_utils.SeverityInfo, Level: slog.LevelInfo},
		"Verbose": {Severity: ext_debug_utils.SeverityVerbose, Level: slog.LevelDebug},
		"Mixed":   {Severity: ext_debug_utils.SeverityWarning | ext_debug_utils.SeverityError, Level: slog.LevelError},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, testCase.Level, debugLevel(testCase.Severity))
		})
	}
}

func TestWritePNG(t *testing.T) {
	const width, height = 3, 2
	data := bytes.Repeat([]byte{134, 206, 203, 255}, width*height)

	path := filepath.Join(t.TempDir(), "clear.png")
	require.NoError(t, writePNG(path, data, width, height))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	img, err := png.Decode(file)
	require.NoError(t, err)
	require.Equal(t, width, img.Bounds().Dx())
	require.Equal(t, height, img.Bounds().Dy())

	r, g, b, a := img.At(2, 1).RGBA()
	require.Equal(t, [4]uint32{134, 206, 203, 255}, [4]uint32{r >> 8, g >> 8, b >> 8, a >> 8})

	require.Error(t, writePNG(path, data[:4], width, height))
}
