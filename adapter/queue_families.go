package adapter

import (
	"slices"

	"github.com/vkngwrapper/core/v3/core1_0"
)

// QueueFamily is one hardware queue group
type QueueFamily struct {
	Index      int
	QueueCount int
}

// QueueFamilyInfo is the probed capability set of one queue family
type QueueFamilyInfo struct {
	Index      int
	Flags      core1_0.QueueFlags
	QueueCount int
}

// QueueFamilies maps the roles the workload needs onto an adapter's queue families. Compute and
// Transfer are only set for dedicated families, ones that lack graphics (and, for Transfer, compute).
// Use ComputeFamily and TransferFamily to resolve a role with its fallback.
type QueueFamilies struct {
	Graphics QueueFamily
	Compute  *QueueFamily
	Transfer *QueueFamily

	// UniqueIndices is the sorted set of family indices in use
	UniqueIndices []int
}

// MapQueueFamilies assigns roles in a single pass: the first graphics family, the first family with
// compute but no graphics, and the first family with transfer but neither graphics nor compute. It
// reports false when no family supports graphics.
func MapQueueFamilies(families []QueueFamilyInfo) (QueueFamilies, bool) {
	var graphics, compute, transfer *QueueFamily

	for _, family := range families {
		current := &QueueFamily{Index: family.Index, QueueCount: family.QueueCount}

		switch {
		case family.Flags&core1_0.QueueGraphics != 0:
			if graphics == nil {
				graphics = current
			}
		case family.Flags&core1_0.QueueCompute != 0:
			if compute == nil {
				compute = current
			}
		case family.Flags&core1_0.QueueTransfer != 0:
			if transfer == nil {
				transfer = current
			}
		}
	}

	if graphics == nil {
		return QueueFamilies{}, false
	}

	unique := []int{graphics.Index}
	if compute != nil {
		unique = append(unique, compute.Index)
	}
	if transfer != nil {
		unique = append(unique, transfer.Index)
	}
	slices.Sort(unique)
	unique = slices.Compact(unique)

	return QueueFamilies{
		Graphics:      *graphics,
		Compute:       compute,
		Transfer:      transfer,
		UniqueIndices: unique,
	}, true
}

// familyPolicy yields a family for a role, or nil if the policy does not apply to this adapter
type familyPolicy func(f *QueueFamilies) *QueueFamily

func dedicatedCompute(f *QueueFamilies) *QueueFamily  { return f.Compute }
func dedicatedTransfer(f *QueueFamilies) *QueueFamily { return f.Transfer }
func graphicsFamily(f *QueueFamilies) *QueueFamily    { return &f.Graphics }

var (
	computePolicies  = []familyPolicy{dedicatedCompute, graphicsFamily}
	transferPolicies = []familyPolicy{dedicatedTransfer, graphicsFamily}
)

func (f *QueueFamilies) resolve(policies []familyPolicy) QueueFamily {
	for _, policy := range policies {
		if family := policy(f); family != nil {
			return *family
		}
	}
	return f.Graphics
}

// ComputeFamily returns the dedicated compute family, or the graphics family if there is none
func (f *QueueFamilies) ComputeFamily() QueueFamily {
	return f.resolve(computePolicies)
}

// TransferFamily returns the dedicated transfer family, or the graphics family if there is none
func (f *QueueFamilies) TransferFamily() QueueFamily {
	return f.resolve(transferPolicies)
}

// ActiveIndices returns the sorted, distinct family indices the resolved compute and transfer roles
// use. This is the set of queues a device must be created with.
func (f *QueueFamilies) ActiveIndices() []int {
	indices := []int{f.ComputeFamily().Index, f.TransferFamily().Index}
	slices.Sort(indices)
	return slices.Compact(indices)
}

// QueueCreateInfos requests one queue from every family in UniqueIndices
func (f *QueueFamilies) QueueCreateInfos(priority float32) []core1_0.DeviceQueueCreateInfo {
	infos := make([]core1_0.DeviceQueueCreateInfo, 0, len(f.UniqueIndices))
	for _, index := range f.UniqueIndices {
		infos = append(infos, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: index,
			QueuePriorities:  []float32{priority},
		})
	}
	return infos
}
