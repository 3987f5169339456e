package main

import (
	"io"
	"log/slog"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/arsenal/crossqueue/adapter"
	"github.com/vkngwrapper/arsenal/crossqueue/vkerrors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/core/v3/mocks/mocks1_2"
	"go.uber.org/mock/gomock"
)

func TestSelectAdapterWithoutAdapters(t *testing.T) {
	ctrl := gomock.NewController(t)
	driver := mocks1_2.NewMockCoreInstanceDriver(ctrl)
	driver.EXPECT().EnumeratePhysicalDevices().Return(nil, core1_0.VKSuccess, nil)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	vulkan := &vulkanContext{
		logger:         logger,
		translator:     vkerrors.Translator{Logger: logger},
		instanceDriver: driver,
	}

	err := vulkan.selectAdapter(adapter.DefaultRequirements(400, 800, core1_0.FormatR8G8B8A8UnsignedInt))
	require.True(t, errors.Is(err, vkerrors.ErrNoCompatibleAdapter))
	require.Nil(t, vulkan.info)
}
