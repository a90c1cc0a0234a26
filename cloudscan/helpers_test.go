package cloudscan

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/rdk/logging"
	"go.viam.com/test"
)

// fakePoses answers every pair with fixed poses and can be told to fail.
type fakePoses struct {
	imuToDevice Pose
	imuToColor  Pose
	device      Pose

	deviceUnavailable bool
	queried           []float64
}

func newFakePoses() *fakePoses {
	return &fakePoses{
		imuToDevice: IdentityPose(),
		imuToColor:  IdentityPose(),
		device:      IdentityPose(),
	}
}

func (fp *fakePoses) PoseAt(ctx context.Context, pair FramePair, timestamp float64) (Pose, error) {
	fp.queried = append(fp.queried, timestamp)
	switch pair {
	case IMUDevicePair:
		return fp.imuToDevice, nil
	case IMUColorCameraPair:
		return fp.imuToColor, nil
	case DevicePair:
		if fp.deviceUnavailable {
			return Pose{}, fmt.Errorf("not tracking: %w", ErrPoseUnavailable)
		}
		return fp.device, nil
	}
	return Pose{}, fmt.Errorf("unknown pair %v: %w", pair, ErrPoseUnavailable)
}

// countingPresenter records what the registry asks the renderer to do.
type countingPresenter struct {
	presented int
	destroyed int
	live      map[RenderHandle]bool
}

func newCountingPresenter() *countingPresenter {
	return &countingPresenter{live: map[RenderHandle]bool{}}
}

func (cp *countingPresenter) Present(s *Snapshot) RenderHandle {
	cp.presented++
	h := RenderHandle{ID: s.ID}
	cp.live[h] = true
	return h
}

func (cp *countingPresenter) Destroy(h RenderHandle) {
	cp.destroyed++
	delete(cp.live, h)
}

type countingView struct {
	switches int
}

func (cv *countingView) FirstPerson() {
	cv.switches++
}

// rotationAbout returns the unit quaternion for deg degrees about axis.
func rotationAbout(axis r3.Vector, deg float64) quat.Number {
	axis = axis.Normalize()
	half := deg * math.Pi / 360
	s := math.Sin(half)
	return quat.Number{Real: math.Cos(half), Imag: axis.X * s, Jmag: axis.Y * s, Kmag: axis.Z * s}
}

func makeFrame(timestamp float64, points ...mgl32.Vec3) DepthFrame {
	f := DepthFrame{Timestamp: timestamp, PointCount: len(points)}
	for _, p := range points {
		f.Points = append(f.Points, p[0], p[1], p[2])
	}
	return f
}

func someFrame(timestamp float64) DepthFrame {
	return makeFrame(timestamp,
		mgl32.Vec3{0.1, 0.2, 1.0},
		mgl32.Vec3{-0.3, 0.1, 2.0},
		mgl32.Vec3{0.5, -0.4, 3.0},
	)
}

func newTestScanner(t *testing.T, cfg Config) (*Scanner, *fakePoses, *countingPresenter) {
	t.Helper()
	poses := newFakePoses()
	presenter := newCountingPresenter()
	s, err := NewScanner(cfg, poses, presenter, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	return s, poses, presenter
}

func vecAlmostEqual(t *testing.T, got, want mgl32.Vec3, tolerance float32) {
	t.Helper()
	for i := 0; i < 3; i++ {
		test.That(t, got[i], test.ShouldAlmostEqual, want[i], tolerance)
	}
}
