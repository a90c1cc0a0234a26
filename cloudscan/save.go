package cloudscan

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/geo/r3"

	"go.viam.com/rdk/pointcloud"
)

// ToPointCloud merges the world space vertices of snaps, colored by style.
// Points landing on the same position are kept once.
func ToPointCloud(snaps []*Snapshot) (pointcloud.PointCloud, error) {
	total := 0
	for _, s := range snaps {
		total += s.VertexCount()
	}

	pc := pointcloud.NewBasicPointCloud(total)
	for _, s := range snaps {
		c := s.Style.Color()
		for _, v := range s.WorldVertices() {
			err := pc.Set(r3.Vector{X: float64(v[0]), Y: float64(v[1]), Z: float64(v[2])}, pointcloud.NewColoredData(c))
			if err != nil {
				return nil, err
			}
		}
	}
	return pc, nil
}

// FrameFromPointCloud reads pc as a depth frame taken at timestamp.
func FrameFromPointCloud(pc pointcloud.PointCloud, timestamp float64) DepthFrame {
	f := DepthFrame{
		Timestamp: timestamp,
		Points:    make([]float32, 0, 3*pc.Size()),
	}
	pc.Iterate(0, 0, func(p r3.Vector, d pointcloud.Data) bool {
		f.Points = append(f.Points, float32(p.X), float32(p.Y), float32(p.Z))
		return true
	})
	f.PointCount = len(f.Points) / 3
	return f
}

// SaveFileName is the file Save writes at now.
func SaveFileName(now time.Time) string {
	return fmt.Sprintf("scan-%d.pcd", now.UnixMilli())
}

// SaveSnapshots writes snaps as a binary PCD file in dir and returns its path.
func SaveSnapshots(dir string, now time.Time, snaps []*Snapshot) (fn string, err error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	pc, err := ToPointCloud(snaps)
	if err != nil {
		return "", err
	}

	fn = filepath.Join(dir, SaveFileName(now))
	f, err := os.OpenFile(fn, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			fn, err = "", fmt.Errorf("cannot close (%s): %w", fn, cerr)
		}
	}()

	if err := pointcloud.ToPCD(pc, f, pointcloud.PCDBinary); err != nil {
		return "", fmt.Errorf("cannot write (%s): %w", fn, err)
	}
	return fn, nil
}
