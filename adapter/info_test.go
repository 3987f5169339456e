package adapter

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/core1_0"
)

func TestVendorNames(t *testing.T) {
	testCases := map[string]struct {
		Vendor Vendor
		Name   string
	}{
		"AMD":      {Vendor: 0x1002, Name: "AMD"},
		"ImgTec":   {Vendor: 0x1010, Name: "ImgTec"},
		"NVIDIA":   {Vendor: 0x10DE, Name: "NVIDIA"},
		"ARM":      {Vendor: 0x13B5, Name: "ARM"},
		"Qualcomm": {Vendor: 0x5143, Name: "Qualcomm"},
		"Intel":    {Vendor: 0x8086, Name: "INTEL"},
		"Unknown":  {Vendor: 0x1234, Name: "Unknown (4660)"},
	}

	for testName, testCase := range testCases {
		t.Run(testName, func(t *testing.T) {
			require.Equal(t, testCase.Name, testCase.Vendor.String())
		})
	}
}

func TestDriverVersionDecoding(t *testing.T) {
	nvidia := uint32(535)<<22 | uint32(104)<<14 | uint32(5)<<6 | 3
	require.Equal(t, "535.104.5.3", VendorNVIDIA.FormatDriverVersion(nvidia))

	standard := uint32(2)<<22 | uint32(3)<<12 | 7
	require.Equal(t, "2.3.7", VendorAMD.FormatDriverVersion(standard))
	require.Equal(t, "2.3.7", Vendor(0x1234).FormatDriverVersion(standard))
}

func TestWriteReport(t *testing.T) {
	info := testAdapter(core1_0.PhysicalDeviceTypeDiscreteGPU, graphicsFlags, transferFlags)
	info.Properties.DriverName = "Test Adapter"
	info.Properties.PipelineCacheUUID = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	info.MemoryProperties.MemoryTypes = []core1_0.MemoryType{
		{PropertyFlags: core1_0.MemoryPropertyDeviceLocal, HeapIndex: 0},
		{PropertyFlags: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent, HeapIndex: 1},
	}

	writer := jwriter.NewWriter()
	WriteReport(&writer, info)
	require.NoError(t, writer.Error())

	report := string(writer.Bytes())
	require.True(t, strings.HasPrefix(report, `{"Name":"Test Adapter"`))
	require.Contains(t, report, `"Vendor":"AMD"`)
	require.Contains(t, report, `"PipelineCacheUUID":"6ba7b810-9dad-11d1-80b4-00c04fd430c8"`)
	require.Contains(t, report, `"QueueFamilies":[{"Index":0`)
	require.Contains(t, report, `"Heaps":{"0":{"Size":1073741824`)
	require.Contains(t, report, `"MemoryTypes":{"1":`)
}
