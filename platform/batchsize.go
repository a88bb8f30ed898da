package platform

import "runtime"

// CalculateOptimalBatchSize picks an initial row-batch size from available
// memory, then halves it on low-core-count devices. totalMemBytes and
// numCPU are parameters (rather
// than read from the OS directly) so hosts and tests can supply the actual
// device values; callers with no better information can pass
// runtime.NumCPU() for numCPU.
func CalculateOptimalBatchSize(totalMemBytes uint64, numCPU int) int {
	const gib = 1 << 30
	var size int
	switch {
	case totalMemBytes >= 6*gib:
		size = 2000
	case totalMemBytes >= 4*gib:
		size = 1500
	case totalMemBytes >= 3*gib:
		size = 1000
	case totalMemBytes >= 2*gib:
		size = 500
	default:
		size = 250
	}
	if numCPU <= 2 {
		size /= 2
	}
	if size < 1 {
		size = 1
	}
	return size
}

// DefaultBatchSizeHint returns a BatchSizeHint using runtime.NumCPU() for
// core count and a conservative 2 GiB memory assumption, for hosts that
// have not wired up real device telemetry.
func DefaultBatchSizeHint() BatchSizeHint {
	return func() int {
		return CalculateOptimalBatchSize(2*(1<<30), runtime.NumCPU())
	}
}
