package executor

import "github.com/ricesearch/riceexec/internal/contract"

// Input is the default contract.ParallelizationInput implementation: a
// plain struct a host CLI populates from flags/env before calling Execute.
type Input struct {
	Child                bool
	SingleItem            string
	HasSingleItem         bool
	BatchSizeOverride     int
	HasBatchSizeOverride  bool
	SegmentSizeOverride   int
	HasSegmentSizeOverride bool
	ProcessesOverride     int
	HasProcessesOverride  bool
	InMainProcess         bool
}

var _ contract.ParallelizationInput = Input{}

func (i Input) IsChild() bool { return i.Child }

func (i Input) Item() (string, bool) { return i.SingleItem, i.HasSingleItem }

func (i Input) BatchSize() (int, bool) { return i.BatchSizeOverride, i.HasBatchSizeOverride }

func (i Input) SegmentSize() (int, bool) { return i.SegmentSizeOverride, i.HasSegmentSizeOverride }

func (i Input) NumberOfProcesses() (int, bool) { return i.ProcessesOverride, i.HasProcessesOverride }

func (i Input) ShouldBeProcessedInMainProcess() bool { return i.InMainProcess }
