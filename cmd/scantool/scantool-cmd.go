package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.viam.com/rdk/components/camera"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/pointcloud"
	"go.viam.com/rdk/rimage"
	"go.viam.com/rdk/robot/framesystem"

	"github.com/erh/vscan"
	"github.com/erh/vscan/cloudscan"
	"github.com/erh/vscan/scancam"
)

func main() {
	err := realMain()
	if err != nil {
		panic(err)
	}
}

func realMain() error {
	logger := logging.NewLogger("scantool")
	ctx := context.Background()

	host := flag.String("host", "", "hostname, empty uses the module environment")
	cmd := flag.String("cmd", "", "command: replay, live, download, size, image")
	cameraName := flag.String("camera", "", "camera to use")
	out := flag.String("out", "", "output file")
	in := flag.String("in", "", "input file")
	rigFile := flag.String("rig", "", "rig yaml for replay")
	mode := flag.String("mode", "scan", "scan, screenshot or stream")
	maxPoints := flag.Int("max-points", 0, "max points per frame, 0 for the default")
	seconds := flag.Float64("seconds", 5, "how long to scan for live")

	flag.Parse()

	if *cmd == "" {
		return fmt.Errorf("need a cmd")
	}

	switch *cmd {
	case "replay":
		if *rigFile == "" || *out == "" {
			return fmt.Errorf("need a 'rig' and an 'out'")
		}
		r, err := readRig(*rigFile)
		if err != nil {
			return err
		}

		cfg := cloudscan.DefaultConfig()
		cfg.MaxPoints = *maxPoints

		s, err := replay(ctx, r, filepath.Dir(*rigFile), *mode, cfg, logger)
		if err != nil {
			return err
		}
		logger.Infof("%d snapshots, %d points", s.Registry().Len(), s.Registry().VertexCount())

		pc, err := cloudscan.ToPointCloud(s.Registry().Snapshots())
		if err != nil {
			return err
		}
		return writePCToFile(*out, pc)

	case "live":
		if *out == "" {
			return fmt.Errorf("need an 'out'")
		}
		pc, err := live(ctx, *host, *cameraName, *mode, *maxPoints, time.Duration(*seconds*float64(time.Second)), logger)
		if err != nil {
			return err
		}
		return writePCToFile(*out, pc)

	case "download":
		if *out == "" {
			return fmt.Errorf("need an 'out'")
		}

		machine, err := vscan.Connect(ctx, *host, logger)
		if err != nil {
			return err
		}
		defer machine.Close(ctx)

		myCamera, err := camera.FromRobot(machine, *cameraName)
		if err != nil {
			return err
		}

		pc, err := myCamera.NextPointCloud(ctx, nil)
		if err != nil {
			return err
		}

		return writePCToFile(*out, pc)

	case "size":
		pc, err := pointcloud.NewFromFile(*in, "")
		if err != nil {
			return err
		}
		md := pc.MetaData()
		logger.Infof("size: %d x: [%0.2f, %0.2f] y: [%0.2f, %0.2f] z: [%0.2f, %0.2f]",
			pc.Size(), md.MinX, md.MaxX, md.MinY, md.MaxY, md.MinZ, md.MaxZ)
		return nil

	case "image":
		if *out == "" {
			return fmt.Errorf("need an out")
		}
		pc, err := pointcloud.NewFromFile(*in, "")
		if err != nil {
			return err
		}
		return rimage.WriteImageToFile(*out, scancam.TopDown(pc))
	}

	return fmt.Errorf("invalid command [%s]", *cmd)
}

// modeCommand is the camera command that puts a scanner in mode.
func modeCommand(mode string) (string, error) {
	switch mode {
	case "scan":
		return "start", nil
	case "screenshot", "stream":
		return mode, nil
	}
	return "", fmt.Errorf("invalid mode [%s]", mode)
}

// replay runs the rig frames through a scanner in mode, presenting after every frame.
func replay(ctx context.Context, r *rig, dir, mode string, cfg cloudscan.Config, logger logging.Logger) (*cloudscan.Scanner, error) {
	h, err := r.history()
	if err != nil {
		return nil, err
	}

	s, err := cloudscan.NewScanner(cfg, h, nil, logger)
	if err != nil {
		return nil, err
	}

	cmd, err := modeCommand(mode)
	if err != nil {
		return nil, err
	}
	switch cmd {
	case "start":
		s.StartScan()
	case "screenshot":
		s.Screenshot()
	case "stream":
		s.Stream()
	}

	for _, f := range r.Frames {
		fn := f.File
		if !filepath.IsAbs(fn) {
			fn = filepath.Join(dir, fn)
		}

		pc, err := pointcloud.NewFromFile(fn, "")
		if err != nil {
			return nil, err
		}

		err = s.OnDepthFrame(ctx, cloudscan.FrameFromPointCloud(pc, f.Timestamp))
		if errors.Is(err, cloudscan.ErrSingularExtrinsic) {
			return nil, err
		}
		if err != nil {
			logger.Warnf("skipping %s: %v", f.File, err)
			continue
		}

		s.Present()
		stats := s.Stats()
		logger.Debugf("%s points: %d mean z: %0.3f dt: %0.1fms", f.File, stats.ValidPointCount, stats.MeanZ, stats.DeltaMillis)
	}

	return s, nil
}

// live scans with a camera on a machine, using its frame system for poses.
func live(ctx context.Context, host, cameraName, mode string, maxPoints int, d time.Duration, logger logging.Logger) (pointcloud.PointCloud, error) {
	cmd, err := modeCommand(mode)
	if err != nil {
		return nil, err
	}

	machine, err := vscan.Connect(ctx, host, logger)
	if err != nil {
		return nil, err
	}
	defer machine.Close(ctx)

	deps, err := vscan.MachineToDependencies(machine)
	if err != nil {
		return nil, err
	}
	if _, ok := vscan.FindDep(deps, cameraName); !ok {
		return nil, fmt.Errorf("no camera named [%s] on %s", cameraName, host)
	}

	src, err := camera.FromProvider(deps, cameraName)
	if err != nil {
		return nil, err
	}
	fsSvc, err := framesystem.FromDependencies(deps)
	if err != nil {
		return nil, err
	}

	conf := &scancam.Config{Src: cameraName, MaxPoints: maxPoints}
	sc, err := scancam.NewScanCamera(camera.Named("scantool"), conf, src, fsSvc, logger)
	if err != nil {
		return nil, err
	}
	defer sc.Close(ctx)

	sc.StartPolling()
	if _, err := sc.DoCommand(ctx, map[string]interface{}{"command": cmd}); err != nil {
		return nil, err
	}

	time.Sleep(d)

	res, err := sc.DoCommand(ctx, map[string]interface{}{"command": "status"})
	if err != nil {
		return nil, err
	}
	logger.Infof("status: %v", res)

	return sc.NextPointCloud(ctx, nil)
}

func writePCToFile(fn string, pc pointcloud.PointCloud) error {
	f, err := os.OpenFile(fn, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return pointcloud.ToPCD(pc, f, pointcloud.PCDBinary)
}
