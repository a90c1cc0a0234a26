package scancam

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/golang/geo/r3"

	"go.viam.com/rdk/components/camera"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/pointcloud"
	"go.viam.com/rdk/referenceframe"
	"go.viam.com/rdk/spatialmath"
	"go.viam.com/test"

	"github.com/erh/vscan/cloudscan"
)

type fakeSource struct {
	pc    pointcloud.PointCloud
	err   error
	calls int
}

func (fs *fakeSource) NextPointCloud(ctx context.Context, extra map[string]interface{}) (pointcloud.PointCloud, error) {
	fs.calls++
	return fs.pc, fs.err
}

// fakeFrameSystem knows the pose of each component in the world.
type fakeFrameSystem struct {
	poses map[string]spatialmath.Pose
	asked []string
}

func (ffs *fakeFrameSystem) GetPose(
	ctx context.Context,
	componentName, destinationFrame string,
	supplementalTransforms []*referenceframe.LinkInFrame,
	extra map[string]interface{},
) (*referenceframe.PoseInFrame, error) {
	ffs.asked = append(ffs.asked, componentName+"->"+destinationFrame)
	p, ok := ffs.poses[componentName]
	if !ok {
		return nil, fmt.Errorf("no frame named %s", componentName)
	}
	return referenceframe.NewPoseInFrame(destinationFrame, p), nil
}

func sourceCloud(t *testing.T, points ...r3.Vector) pointcloud.PointCloud {
	t.Helper()
	pc := pointcloud.NewBasicEmpty()
	for _, p := range points {
		test.That(t, pc.Set(p, pointcloud.NewBasicData()), test.ShouldBeNil)
	}
	return pc
}

func newTestCamera(t *testing.T, conf *Config) (*ScanCamera, *fakeSource, *fakeFrameSystem) {
	t.Helper()
	src := &fakeSource{pc: sourceCloud(t, r3.Vector{X: 1, Y: 2, Z: 3})}
	fs := &fakeFrameSystem{poses: map[string]spatialmath.Pose{
		"depth": spatialmath.NewPoseFromPoint(r3.Vector{X: 100}),
	}}

	sc, err := NewScanCamera(camera.Named("scan"), conf, src, fs, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	return sc, src, fs
}

func findPoint(pc pointcloud.PointCloud, want r3.Vector, tolerance float64) bool {
	found := false
	pc.Iterate(0, 0, func(p r3.Vector, d pointcloud.Data) bool {
		if p.Sub(want).Norm() <= tolerance {
			found = true
			return false
		}
		return true
	})
	return found
}

func TestConfigValidate(t *testing.T) {
	c := &Config{}
	_, _, err := c.Validate("")
	test.That(t, err, test.ShouldNotBeNil)

	c.Src = "depth"
	deps, _, err := c.Validate("")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, deps, test.ShouldResemble, []string{"depth"})

	c.PollMs = -1
	_, _, err = c.Validate("")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestConfigFrames(t *testing.T) {
	c := &Config{Src: "depth"}
	frames := c.frames()
	test.That(t, frames[cloudscan.FrameStartOfService], test.ShouldEqual, referenceframe.World)
	test.That(t, frames[cloudscan.FrameDevice], test.ShouldEqual, "depth")
	test.That(t, frames[cloudscan.FrameIMU], test.ShouldEqual, "depth")
	test.That(t, frames[cloudscan.FrameCameraColor], test.ShouldEqual, "depth")

	c = &Config{Src: "depth", DeviceFrame: "phone", IMUFrame: "imu", ColorCameraFrame: "rgb", WorldFrame: "room"}
	frames = c.frames()
	test.That(t, frames[cloudscan.FrameStartOfService], test.ShouldEqual, "room")
	test.That(t, frames[cloudscan.FrameDevice], test.ShouldEqual, "phone")
	test.That(t, frames[cloudscan.FrameIMU], test.ShouldEqual, "imu")
	test.That(t, frames[cloudscan.FrameCameraColor], test.ShouldEqual, "rgb")

	test.That(t, c.pollInterval(), test.ShouldEqual, 100*time.Millisecond)
	test.That(t, c.scannerConfig().MaxPoints, test.ShouldEqual, cloudscan.DefaultMaxPoints)
}

func TestFrameSystemPoses(t *testing.T) {
	ctx := context.Background()
	start := time.Now()
	now := start.Add(2 * time.Second)

	fs := &fakeFrameSystem{poses: map[string]spatialmath.Pose{
		"depth": spatialmath.NewPose(r3.Vector{X: 1, Y: 2, Z: 3}, &spatialmath.OrientationVectorDegrees{OZ: 1, Theta: 90}),
	}}
	fsp := &frameSystemPoses{
		fs:     fs,
		frames: (&Config{Src: "depth"}).frames(),
		start:  start,
		maxAge: time.Second,
		now:    func() time.Time { return now },
	}

	p, err := fsp.PoseAt(ctx, cloudscan.DevicePair, 1.5)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.Translation.X, test.ShouldAlmostEqual, 1)
	test.That(t, p.Translation.Y, test.ShouldAlmostEqual, 2)
	test.That(t, p.Translation.Z, test.ShouldAlmostEqual, 3)
	test.That(t, fs.asked, test.ShouldResemble, []string{"depth->world"})

	// imu and color camera default to the device frame
	p, err = fsp.PoseAt(ctx, cloudscan.IMUDevicePair, cloudscan.AnyTime)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p, test.ShouldResemble, cloudscan.IdentityPose())
	test.That(t, len(fs.asked), test.ShouldEqual, 1)

	_, err = fsp.PoseAt(ctx, cloudscan.DevicePair, .5)
	test.That(t, errors.Is(err, cloudscan.ErrPoseUnavailable), test.ShouldBeTrue)

	fsp.frames[cloudscan.FrameDevice] = "missing"
	_, err = fsp.PoseAt(ctx, cloudscan.DevicePair, 1.5)
	test.That(t, errors.Is(err, cloudscan.ErrPoseUnavailable), test.ShouldBeTrue)
}

func TestScanCameraScreenshot(t *testing.T) {
	ctx := context.Background()
	sc, src, _ := newTestCamera(t, &Config{Src: "depth"})

	res, err := sc.DoCommand(ctx, map[string]interface{}{"command": "status"})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res["state"], test.ShouldEqual, "off")

	test.That(t, sc.captureOnce(ctx), test.ShouldBeNil)
	pc, err := sc.NextPointCloud(ctx, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pc.Size(), test.ShouldEqual, 0)

	res, err = sc.DoCommand(ctx, map[string]interface{}{"command": "screenshot"})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res["state"], test.ShouldEqual, "screenshot")

	test.That(t, sc.captureOnce(ctx), test.ShouldBeNil)
	test.That(t, src.calls, test.ShouldEqual, 2)

	pc, err = sc.NextPointCloud(ctx, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pc.Size(), test.ShouldEqual, 1)
	// camera y flips, then the world swaps y and z
	test.That(t, findPoint(pc, r3.Vector{X: 101, Y: 3, Z: -2}, 1e-3), test.ShouldBeTrue)

	res, err = sc.DoCommand(ctx, map[string]interface{}{"command": "status"})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res["state"], test.ShouldEqual, "off")
	test.That(t, res["snapshots"], test.ShouldEqual, 1)
	test.That(t, res["points"], test.ShouldEqual, 1)
	test.That(t, res["mean_z"], test.ShouldAlmostEqual, 3)
}

func TestScanCameraScanAndClear(t *testing.T) {
	ctx := context.Background()
	sc, src, fs := newTestCamera(t, &Config{Src: "depth"})

	_, err := sc.DoCommand(ctx, map[string]interface{}{"command": "start"})
	test.That(t, err, test.ShouldBeNil)

	for i := 0; i < 3; i++ {
		fs.poses["depth"] = spatialmath.NewPoseFromPoint(r3.Vector{X: float64(100 * i)})
		test.That(t, sc.captureOnce(ctx), test.ShouldBeNil)
	}

	pc, err := sc.NextPointCloud(ctx, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pc.Size(), test.ShouldEqual, 3)

	res, err := sc.DoCommand(ctx, map[string]interface{}{"command": "clear"})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res["cleared"], test.ShouldEqual, 3)
	test.That(t, res["state"], test.ShouldEqual, "on")
	test.That(t, res["snapshots"], test.ShouldEqual, 0)

	src.err = errors.New("camera unplugged")
	test.That(t, sc.captureOnce(ctx), test.ShouldNotBeNil)
	src.err = nil

	delete(fs.poses, "depth")
	err = sc.captureOnce(ctx)
	test.That(t, errors.Is(err, cloudscan.ErrPoseUnavailable), test.ShouldBeTrue)
	res, err = sc.DoCommand(ctx, map[string]interface{}{"command": "stop"})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res["state"], test.ShouldEqual, "off")
	test.That(t, res["snapshots"], test.ShouldEqual, 0)
}

func TestScanCameraStationaryPoints(t *testing.T) {
	ctx := context.Background()
	sc, _, _ := newTestCamera(t, &Config{Src: "depth"})

	_, err := sc.DoCommand(ctx, map[string]interface{}{"command": "start"})
	test.That(t, err, test.ShouldBeNil)
	for i := 0; i < 3; i++ {
		test.That(t, sc.captureOnce(ctx), test.ShouldBeNil)
	}

	res, err := sc.DoCommand(ctx, map[string]interface{}{"command": "status"})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res["points"], test.ShouldEqual, 3)
	test.That(t, res["cloud_points"], test.ShouldEqual, 1)

	pc, err := sc.NextPointCloud(ctx, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pc.Size(), test.ShouldEqual, res["cloud_points"])
}

func TestScanCameraStream(t *testing.T) {
	ctx := context.Background()
	sc, _, fs := newTestCamera(t, &Config{Src: "depth"})

	res, err := sc.DoCommand(ctx, map[string]interface{}{"command": "stream"})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res["state"], test.ShouldEqual, "stream")
	test.That(t, res["view"], test.ShouldEqual, "first_person")

	for i := 0; i < 3; i++ {
		fs.poses["depth"] = spatialmath.NewPoseFromPoint(r3.Vector{X: float64(100 * i)})
		test.That(t, sc.captureOnce(ctx), test.ShouldBeNil)
		pc, err := sc.NextPointCloud(ctx, nil)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, pc.Size(), test.ShouldEqual, 1)
	}

	res, err = sc.DoCommand(ctx, map[string]interface{}{"command": "start"})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res["view"], test.ShouldEqual, "third_person")
}

func TestScanCameraSave(t *testing.T) {
	ctx := context.Background()
	sc, _, _ := newTestCamera(t, &Config{Src: "depth", SaveDir: t.TempDir()})

	_, err := sc.DoCommand(ctx, map[string]interface{}{"command": "screenshot"})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sc.captureOnce(ctx), test.ShouldBeNil)

	res, err := sc.DoCommand(ctx, map[string]interface{}{"command": "save"})
	test.That(t, err, test.ShouldBeNil)
	fn, ok := res["filename"].(string)
	test.That(t, ok, test.ShouldBeTrue)

	_, err = os.Stat(fn)
	test.That(t, err, test.ShouldBeNil)

	pc, err := pointcloud.NewFromFile(fn, "")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pc.Size(), test.ShouldEqual, 1)
}

func TestScanCameraBadCommand(t *testing.T) {
	ctx := context.Background()
	sc, _, _ := newTestCamera(t, &Config{Src: "depth"})

	_, err := sc.DoCommand(ctx, map[string]interface{}{})
	test.That(t, err, test.ShouldNotBeNil)

	_, err = sc.DoCommand(ctx, map[string]interface{}{"command": "dance"})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestScanCameraImages(t *testing.T) {
	ctx := context.Background()
	sc, _, _ := newTestCamera(t, &Config{Src: "depth"})

	imgs, _, err := sc.Images(ctx, nil, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(imgs), test.ShouldEqual, 1)
	test.That(t, imgs[0].SourceName, test.ShouldEqual, "scan")

	props, err := sc.Properties(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, props.SupportsPCD, test.ShouldBeTrue)

	sc.StartPolling()
	test.That(t, sc.Close(ctx), test.ShouldBeNil)
}
