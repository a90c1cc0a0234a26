// Package scancam is a camera that scans the world with a moving depth camera.
//
// It polls a source camera, places each point cloud in the world through the
// frame system, and serves the accumulated scan as its own point cloud.
package scancam

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.viam.com/rdk/components/camera"
	"go.viam.com/rdk/data"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/pointcloud"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/rimage"
	"go.viam.com/rdk/robot/framesystem"
	"go.viam.com/rdk/spatialmath"
	goutils "go.viam.com/utils"

	"github.com/erh/vscan"
	"github.com/erh/vscan/cloudscan"
)

var Model = vscan.NamespaceFamily.WithModel("depth-scan")

func init() {
	resource.RegisterComponent(
		camera.API,
		Model,
		resource.Registration[camera.Camera, *Config]{
			Constructor: newScanCamera,
		})
}

// PointCloudSource is where depth frames come from; any camera.Camera works.
type PointCloudSource interface {
	NextPointCloud(ctx context.Context, extra map[string]interface{}) (pointcloud.PointCloud, error)
}

func newScanCamera(ctx context.Context, deps resource.Dependencies, config resource.Config, logger logging.Logger) (camera.Camera, error) {
	newConf, err := resource.NativeConfig[*Config](config)
	if err != nil {
		return nil, err
	}

	src, err := camera.FromProvider(deps, newConf.Src)
	if err != nil {
		return nil, err
	}

	fsSvc, err := framesystem.FromDependencies(deps)
	if err != nil {
		return nil, err
	}

	sc, err := NewScanCamera(config.ResourceName(), newConf, src, fsSvc, logger)
	if err != nil {
		return nil, err
	}
	sc.StartPolling()
	return sc, nil
}

// NewScanCamera returns a scan camera that is not polling yet.
func NewScanCamera(name resource.Name, conf *Config, src PointCloudSource, fs FrameSystem, logger logging.Logger) (*ScanCamera, error) {
	if src == nil || fs == nil {
		return nil, fmt.Errorf("need a source and a frame system")
	}

	sc := &ScanCamera{
		name:   name,
		cfg:    conf,
		logger: logger,
		src:    src,
		start:  time.Now(),
		now:    time.Now,
	}

	poses := &frameSystemPoses{
		fs:     fs,
		frames: conf.frames(),
		start:  sc.start,
		maxAge: conf.maxPoseAge(),
		now:    func() time.Time { return sc.now() },
	}

	var err error
	sc.scanner, err = cloudscan.NewScanner(conf.scannerConfig(), poses, nil, logger.Sublogger("scanner"))
	if err != nil {
		return nil, err
	}
	sc.scanner.SetViewSwitcher(sc)

	return sc, nil
}

// ScanCamera serves a cloudscan.Scanner as a viam camera.
type ScanCamera struct {
	resource.AlwaysRebuild

	name   resource.Name
	cfg    *Config
	logger logging.Logger

	src     PointCloudSource
	scanner *cloudscan.Scanner
	start   time.Time
	now     func() time.Time

	workers *goutils.StoppableWorkers

	lock        sync.Mutex
	firstPerson bool
	lastSrcErr  error
}

func (sc *ScanCamera) Name() resource.Name {
	return sc.name
}

// StartPolling feeds the source camera to the scanner in the background until Close.
func (sc *ScanCamera) StartPolling() {
	sc.workers = goutils.NewBackgroundStoppableWorkers(sc.poll)
}

func (sc *ScanCamera) poll(ctx context.Context) {
	for {
		if !goutils.SelectContextOrWait(ctx, sc.cfg.pollInterval()) {
			return
		}

		err := sc.captureOnce(ctx)
		if errors.Is(err, cloudscan.ErrSingularExtrinsic) {
			return
		}
	}
}

// captureOnce takes one point cloud from the source and hands it to the scanner.
func (sc *ScanCamera) captureOnce(ctx context.Context) error {
	pc, err := sc.src.NextPointCloud(ctx, nil)

	sc.lock.Lock()
	changed := (err == nil) != (sc.lastSrcErr == nil)
	sc.lastSrcErr = err
	sc.lock.Unlock()

	if err != nil {
		if changed {
			sc.logger.Warnf("cannot get point cloud from %s: %v", sc.cfg.Src, err)
		}
		return err
	}
	if changed {
		sc.logger.Infof("getting point clouds from %s again", sc.cfg.Src)
	}

	return sc.scanner.OnDepthFrame(ctx, cloudscan.FrameFromPointCloud(pc, sc.now().Sub(sc.start).Seconds()))
}

// FirstPerson is called when streaming starts.
func (sc *ScanCamera) FirstPerson() {
	sc.lock.Lock()
	defer sc.lock.Unlock()
	sc.firstPerson = true
}

func (sc *ScanCamera) thirdPerson() {
	sc.lock.Lock()
	defer sc.lock.Unlock()
	sc.firstPerson = false
}

func (sc *ScanCamera) view() string {
	sc.lock.Lock()
	defer sc.lock.Unlock()
	if sc.firstPerson {
		return "first_person"
	}
	return "third_person"
}

func (sc *ScanCamera) Image(ctx context.Context, mimeType string, extra map[string]interface{}) ([]byte, camera.ImageMetadata, error) {
	pc, err := sc.NextPointCloud(ctx, extra)
	if err != nil {
		return nil, camera.ImageMetadata{}, err
	}
	if mimeType == "" {
		mimeType = "image/png"
	}

	data, err := rimage.EncodeImage(ctx, TopDown(pc), mimeType)
	if err != nil {
		return nil, camera.ImageMetadata{}, err
	}

	return data, camera.ImageMetadata{MimeType: mimeType}, nil
}

func (sc *ScanCamera) Images(ctx context.Context, filterSourceNames []string, extra map[string]interface{}) ([]camera.NamedImage, resource.ResponseMetadata, error) {
	pc, err := sc.NextPointCloud(ctx, extra)
	if err != nil {
		return nil, resource.ResponseMetadata{}, err
	}

	start := time.Now()
	img := TopDown(pc)
	if elapsed := time.Since(start); elapsed > (time.Millisecond * 100) {
		sc.logger.Infof("TopDown took %v for %d points", elapsed, pc.Size())
	}

	ni, err := camera.NamedImageFromImage(img, "scan", "image/png", data.Annotations{})
	if err != nil {
		return nil, resource.ResponseMetadata{}, err
	}
	return []camera.NamedImage{ni}, resource.ResponseMetadata{CapturedAt: time.Now()}, nil
}

// NextPointCloud returns every live snapshot merged in the world frame.
func (sc *ScanCamera) NextPointCloud(ctx context.Context, extra map[string]interface{}) (pointcloud.PointCloud, error) {
	if err := sc.scanner.Err(); err != nil {
		return nil, err
	}
	sc.scanner.Present()
	return cloudscan.ToPointCloud(sc.scanner.Registry().Snapshots())
}

func (sc *ScanCamera) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	name, ok := cmd["command"].(string)
	if !ok {
		return nil, fmt.Errorf("need a command, got %v", cmd["command"])
	}

	res := map[string]interface{}{}

	switch name {
	case "start":
		sc.thirdPerson()
		sc.scanner.StartScan()
	case "stop":
		sc.scanner.StopScan()
	case "screenshot":
		sc.thirdPerson()
		sc.scanner.Screenshot()
	case "clear":
		res["cleared"] = sc.scanner.Clear()
	case "stream":
		sc.scanner.Stream()
	case "save":
		sc.scanner.Present()
		fn, err := sc.scanner.Save(time.Now())
		if err != nil {
			return nil, err
		}
		res["filename"] = fn
	case "status":
	default:
		return nil, fmt.Errorf("unknown command [%s]", name)
	}

	sc.addStatus(res)
	return res, nil
}

func (sc *ScanCamera) addStatus(res map[string]interface{}) {
	sc.scanner.Present()
	stats := sc.scanner.Stats()

	res["state"] = sc.scanner.State().String()
	res["snapshots"] = sc.scanner.Registry().Len()
	res["points"] = sc.scanner.Registry().VertexCount()
	// repeated positions are kept once in the served and saved cloud
	if pc, err := cloudscan.ToPointCloud(sc.scanner.Registry().Snapshots()); err == nil {
		res["cloud_points"] = pc.Size()
	}
	res["frame_points"] = stats.PointCount
	res["valid_points"] = stats.ValidPointCount
	res["mean_z"] = float64(stats.MeanZ)
	res["delta_ms"] = float64(stats.DeltaMillis)
	res["view"] = sc.view()

	if err := sc.scanner.Err(); err != nil {
		res["error"] = err.Error()
	}
}

func (sc *ScanCamera) Properties(ctx context.Context) (camera.Properties, error) {
	return camera.Properties{
		SupportsPCD: true,
	}, nil
}

func (sc *ScanCamera) Geometries(ctx context.Context, _ map[string]interface{}) ([]spatialmath.Geometry, error) {
	return nil, nil
}

func (sc *ScanCamera) Close(ctx context.Context) error {
	if sc.workers != nil {
		sc.workers.Stop()
	}
	return nil
}
