package alloc

import (
	"strconv"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/arsenal/crossqueue/memutils"
)

// HeapUsage returns the memory objects and bound resources the allocator currently holds in one
// heap
func (a *Allocator) HeapUsage(heapIndex int) memutils.HeapUsage {
	return a.deviceMemory.HeapUsage(heapIndex)
}

// TotalUsage sums HeapUsage across every heap
func (a *Allocator) TotalUsage() memutils.HeapUsage {
	var total memutils.HeapUsage
	for heapIndex := 0; heapIndex < a.deviceMemory.MemoryHeapCount(); heapIndex++ {
		total.Merge(a.deviceMemory.HeapUsage(heapIndex))
	}
	return total
}

func printUsage(json *jwriter.ObjectState, usage memutils.HeapUsage) {
	json.Name("MemoryObjects").Int(usage.MemoryObjects)
	json.Name("MemoryBytes").Int(usage.MemoryBytes)
	json.Name("Resources").Int(usage.Resources)
	json.Name("ResourceBytes").Int(usage.ResourceBytes)
}

// BuildStatsString dumps per-heap accounting and every live allocation as JSON
func (a *Allocator) BuildStatsString() string {
	writer := jwriter.NewWriter()

	root := writer.Object()

	total := root.Name("Total").Object()
	printUsage(&total, a.TotalUsage())
	total.End()

	heaps := root.Name("Heaps").Object()
	for heapIndex := 0; heapIndex < a.deviceMemory.MemoryHeapCount(); heapIndex++ {
		heap := a.deviceMemory.MemoryHeapProperties(heapIndex)

		heapObj := heaps.Name(strconv.Itoa(heapIndex)).Object()
		heapObj.Name("Size").Int(heap.Size)
		heapObj.Name("Flags").String(heap.Flags.String())
		printUsage(&heapObj, a.deviceMemory.HeapUsage(heapIndex))

		types := heapObj.Name("MemoryTypes").Object()
		for typeIndex := 0; typeIndex < a.deviceMemory.MemoryTypeCount(); typeIndex++ {
			memoryType := a.deviceMemory.MemoryTypeProperties(typeIndex)
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

	a.registryMutex.RLock()
	allocations := root.Name("Allocations").Array()
	a.allocations.Iter(func(id uint64, allocation *Allocation) bool {
		obj := allocations.Object()
		obj.Name("Id").Int(int(id))
		allocation.printParameters(&obj)
		obj.End()
		return false
	})
	allocations.End()
	a.registryMutex.RUnlock()

	root.End()

	return string(writer.Bytes())
}
