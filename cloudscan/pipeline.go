package cloudscan

import (
	"context"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// DefaultMaxPoints is the most points a depth frame may carry unless configured otherwise.
const DefaultMaxPoints = 61440

// Config controls a Scanner.
type Config struct {
	// MaxPoints bounds DepthFrame.PointCount.
	MaxPoints int
	// Basis places snapshots; nil means ColumnBasis.
	Basis BasisFunc
	// ClearStopsScan makes the clear command also enter StateOff.
	ClearStopsScan bool
	// SaveDir is where Save writes; empty means the OS temp dir.
	SaveDir string
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		MaxPoints: DefaultMaxPoints,
		Basis:     ColumnBasis,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxPoints <= 0 {
		c.MaxPoints = DefaultMaxPoints
	}
	if c.Basis == nil {
		c.Basis = ColumnBasis
	}
	return c
}

// DepthFrame is one depth callback. Points holds x,y,z triples in sensor space;
// only the first PointCount triples are valid. It is only borrowed for the call.
type DepthFrame struct {
	Timestamp  float64
	PointCount int
	Points     []float32
}

// Stats summarizes the last processed frame.
type Stats struct {
	MeanZ           float32
	ValidPointCount int
	PointCount      int
	DeltaMillis     float32
}

// ValidateFrame checks the frame against the capacity before anything reads its points.
func ValidateFrame(f DepthFrame, maxPoints int) error {
	if f.PointCount < 0 {
		return fmt.Errorf("negative point count %d: %w", f.PointCount, ErrMalformedFrame)
	}
	if f.PointCount > maxPoints {
		return fmt.Errorf("%d points, max is %d: %w", f.PointCount, maxPoints, ErrCapacityExceeded)
	}
	if len(f.Points) < 3*f.PointCount {
		return fmt.Errorf("%d points need %d floats, got %d: %w", f.PointCount, 3*f.PointCount, len(f.Points), ErrMalformedFrame)
	}
	return nil
}

// BuildSnapshot transforms a validated frame into a snapshot placed in the world.
// Nothing is returned on error.
func BuildSnapshot(ctx context.Context, poses PoseProvider, basis BasisFunc, f DepthFrame, style Style) (*Snapshot, Stats, error) {
	if basis == nil {
		basis = ColumnBasis
	}

	ext, err := ResolveExtrinsics(ctx, poses)
	if err != nil {
		return nil, Stats{}, err
	}
	if err := ext.Validate(); err != nil {
		return nil, Stats{}, err
	}

	device, err := ResolveDevicePose(ctx, poses, f.Timestamp)
	if err != nil {
		return nil, Stats{}, err
	}

	m, err := ComposeFrameTransform(ext, device)
	if err != nil {
		return nil, Stats{}, err
	}

	vertices, meanZ := convertPoints(f.Points, f.PointCount)
	position, orientation := basis(m)

	snap := &Snapshot{
		ID:          uuid.New(),
		Timestamp:   f.Timestamp,
		Style:       style,
		Vertices:    vertices,
		Position:    position,
		Orientation: orientation,
		Transform:   m,
	}
	stats := Stats{
		MeanZ:           meanZ,
		ValidPointCount: len(vertices),
		PointCount:      f.PointCount,
	}
	return snap, stats, nil
}

// convertPoints copies the first n triples into vectors and returns the mean z.
func convertPoints(points []float32, n int) ([]mgl32.Vec3, float32) {
	vertices := make([]mgl32.Vec3, n)
	var sumZ float32
	for i := range vertices {
		vertices[i] = mgl32.Vec3{points[i*3], points[i*3+1], points[i*3+2]}
		sumZ += vertices[i][2]
	}
	if n == 0 {
		return vertices, 0
	}
	return vertices, sumZ / float32(n)
}
