package adapter

import (
	"strconv"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// WriteReport writes a JSON description of an adapter: identity, queue families and memory layout
func WriteReport(writer *jwriter.Writer, info *AdapterInfo) {
	root := writer.Object()
	defer root.End()

	root.Name("Name").String(info.Name())
	if info.Properties != nil {
		root.Name("Type").String(info.Properties.DriverType.String())
		root.Name("Vendor").String(info.Vendor().String())
		root.Name("DriverVersion").String(info.DriverVersionString())
		root.Name("APIVersion").String(info.Properties.APIVersion.String())
		root.Name("PipelineCacheUUID").String(info.Properties.PipelineCacheUUID.String())
	}

	families := root.Name("QueueFamilies").Array()
	for _, family := range info.QueueFamilies {
		obj := families.Object()
		obj.Name("Index").Int(family.Index)
		obj.Name("Flags").String(family.Flags.String())
		obj.Name("QueueCount").Int(family.QueueCount)
		obj.End()
	}
	families.End()

	if info.MemoryProperties == nil {
		return
	}

	heaps := root.Name("Heaps").Object()
	for heapIndex, heap := range info.MemoryProperties.MemoryHeaps {
		heapObj := heaps.Name(strconv.Itoa(heapIndex)).Object()
		heapObj.Name("Size").Int(heap.Size)
		heapObj.Name("Flags").String(heap.Flags.String())

		types := heapObj.Name("MemoryTypes").Object()
		for typeIndex, memoryType := range info.MemoryProperties.MemoryTypes {
			if memoryType.HeapIndex != heapIndex {
				continue
			}
			typeObj := types.Name(strconv.Itoa(typeIndex)).Object()
			typeObj.Name("Flags").String(memoryType.PropertyFlags.String())
			typeObj.End()
		}
		types.End()

		heapObj.End()
	}
	heaps.End()
}
