package schedule

import (
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/teranos/attrmigrate/errors"
)

// SystemMetrics is the host resource snapshot attached to pass log lines
type SystemMetrics struct {
	MemoryUsedGB  float64 `json:"memory_used_gb"`
	MemoryTotalGB float64 `json:"memory_total_gb"`
	MemoryPercent float64 `json:"memory_percent"`
}

// readSystemMetrics returns current memory usage; zero values when unavailable
func readSystemMetrics() (SystemMetrics, error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return SystemMetrics{}, errors.Wrap(err, "failed to get memory stats")
	}
	if v.Total == 0 {
		return SystemMetrics{}, nil
	}

	total := float64(v.Total) / 1024 / 1024 / 1024
	used := float64(v.Total-v.Available) / 1024 / 1024 / 1024
	return SystemMetrics{
		MemoryUsedGB:  used,
		MemoryTotalGB: total,
		MemoryPercent: used / total * 100,
	}, nil
}
