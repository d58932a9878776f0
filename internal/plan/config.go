// Package plan implements the configuration planner (§4.2): a pure function
// deriving the realized segment size and process count from the problem
// size, honoring the invariants in §3.
package plan

import (
	"github.com/ricesearch/riceexec/internal/contract"
)

// Inputs bundles the planner's inputs.
type Inputs struct {
	ShouldSpawnChildren bool
	TotalItems          int
	// RequestedProcesses, if non-nil, overrides DefaultProcessCount before
	// clamping to [1, numberOfSegments].
	RequestedProcesses *int
	DesiredSegmentSize int
	BatchSize          int
}

// DefaultProcessCount is used when RequestedProcesses is nil.
const DefaultProcessCount = 4

// Plan derives a Configuration per the rules of §4.2:
//  1. If !ShouldSpawnChildren: degenerate single in-process segment.
//  2. segments = max(1, ceil(totalItems / desiredSegmentSize))
//  3. n = RequestedProcesses or DefaultProcessCount, clamped to [1, segments]
//  4. Return {true, n, desiredSegmentSize, segments, totalItems}
func Plan(in Inputs) contract.Configuration {
	if !in.ShouldSpawnChildren {
		segmentSize := in.TotalItems
		if segmentSize < 1 {
			segmentSize = 1
		}
		return contract.Configuration{
			ShouldSpawnChildren: false,
			NumberOfProcesses:   1,
			SegmentSize:         segmentSize,
			NumberOfSegments:    1,
			TotalItems:          in.TotalItems,
		}
	}

	segmentSize := in.DesiredSegmentSize
	if segmentSize < 1 {
		segmentSize = 1
	}
	segments := ceilDiv(in.TotalItems, segmentSize)
	if segments < 1 {
		segments = 1
	}

	n := DefaultProcessCount
	if in.RequestedProcesses != nil {
		n = *in.RequestedProcesses
	}
	n = clamp(n, 1, segments)

	return contract.Configuration{
		ShouldSpawnChildren: true,
		NumberOfProcesses:   n,
		SegmentSize:         segmentSize,
		NumberOfSegments:    segments,
		TotalItems:          in.TotalItems,
	}
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
