// Package diskstat reports free space on the volume receiving uploads.
package diskstat

import (
	"fmt"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/sirupsen/logrus"
)

// LowSpaceThreshold is the free space below which a warning is logged.
const LowSpaceThreshold uint64 = 1 << 30

// Stats holds disk usage for a path
type Stats struct {
	Path    string
	Total   uint64
	Used    uint64
	Free    uint64
	Percent float64
}

// Usage returns disk usage for the volume holding path.
func Usage(path string) (Stats, error) {
	u, err := disk.Usage(path)
	if err != nil {
		return Stats{Path: path}, fmt.Errorf("failed to get disk usage for %s: %w", path, err)
	}
	return Stats{
		Path:    path,
		Total:   u.Total,
		Used:    u.Used,
		Free:    u.Free,
		Percent: u.UsedPercent,
	}, nil
}

// Low reports whether free space is below LowSpaceThreshold.
func (s Stats) Low() bool {
	return s.Free < LowSpaceThreshold
}

// Report logs disk usage for path and warns when space is low. Failures are
// logged and otherwise ignored.
func Report(logger *logrus.Logger, path string) {
	s, err := Usage(path)
	if err != nil {
		logger.Warnf("Failed to get disk usage: %v", err)
		return
	}

	entry := logger.WithFields(logrus.Fields{
		"path":         s.Path,
		"free_bytes":   s.Free,
		"total_bytes":  s.Total,
		"used_percent": fmt.Sprintf("%.1f", s.Percent),
	})
	if s.Low() {
		entry.Warn("Low disk space on upload volume")
		return
	}
	entry.Info("Upload volume disk usage")
}
