package metrics

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"cosmossdk.io/log"
	"github.com/prometheus/client_golang/prometheus"
)

// diskSpaceInterval is how often the store directory is measured.
const diskSpaceInterval = 15 * time.Second

// DiskSpace reports the size of the sequencer's database directory.
type DiskSpace struct {
	bytes  prometheus.Gauge
	dbPath string
	logger log.Logger
}

// NewDiskSpace registers the disk space gauge for the store at dbPath.
func NewDiskSpace(reg prometheus.Registerer, dbPath string, logger log.Logger) (*DiskSpace, error) {
	d := &DiskSpace{
		bytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "disk_space_bytes",
			Help:      "Disk space used by the sequencer database directory in bytes",
		}),
		dbPath: dbPath,
		logger: logger.With("module", "disk_space_metrics"),
	}
	if err := reg.Register(d.bytes); err != nil {
		return nil, err
	}
	return d, nil
}

// Run measures the directory immediately and then every interval until ctx
// is cancelled.
func (d *DiskSpace) Run(ctx context.Context) error {
	ticker := time.NewTicker(diskSpaceInterval)
	defer ticker.Stop()

	d.update()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.update()
		}
	}
}

func (d *DiskSpace) update() {
	size, err := calculateDirSize(d.dbPath, d.logger)
	if err != nil {
		// the directory might not exist yet
		d.logger.Debug("failed to calculate disk space", "path", d.dbPath, "error", err)
		d.bytes.Set(0)
		return
	}
	d.bytes.Set(float64(size))
}

// calculateDirSize recursively calculates the total size of a directory
func calculateDirSize(dirPath string, logger log.Logger) (int64, error) {
	var size int64

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if !os.IsNotExist(err) {
				logger.Debug("error accessing path during disk space calculation", "path", path, "error", err)
			}
			return nil
		}

		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})

	return size, err
}
