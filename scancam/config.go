package scancam

import (
	"fmt"
	"time"

	"go.viam.com/rdk/referenceframe"

	"github.com/erh/vscan/cloudscan"
)

// Config attributes for the depth-scan camera.
//
// Src is the depth camera to poll. The frame names are frame system names;
// device_frame defaults to src, imu_frame and color_camera_frame default to
// the device frame, and world_frame is where scans start from.
type Config struct {
	Src              string
	DeviceFrame      string `json:"device_frame"`
	IMUFrame         string `json:"imu_frame"`
	ColorCameraFrame string `json:"color_camera_frame"`
	WorldFrame       string `json:"world_frame"`

	MaxPoints      int    `json:"max_points"`
	PollMs         int    `json:"poll_ms"`
	MaxPoseAgeMs   int    `json:"max_pose_age_ms"`
	SaveDir        string `json:"save_dir"`
	ClearStopsScan bool   `json:"clear_stops_scan"`
}

func (c *Config) Validate(path string) ([]string, []string, error) {
	if c.Src == "" {
		return nil, nil, fmt.Errorf("need a src camera")
	}
	if c.MaxPoints < 0 {
		return nil, nil, fmt.Errorf("max_points can't be negative")
	}
	if c.PollMs < 0 {
		return nil, nil, fmt.Errorf("poll_ms can't be negative")
	}
	if c.MaxPoseAgeMs < 0 {
		return nil, nil, fmt.Errorf("max_pose_age_ms can't be negative")
	}
	return []string{c.Src}, nil, nil
}

func (c *Config) deviceFrame() string {
	if c.DeviceFrame != "" {
		return c.DeviceFrame
	}
	return c.Src
}

func (c *Config) frames() map[cloudscan.CoordinateFrame]string {
	device := c.deviceFrame()
	m := map[cloudscan.CoordinateFrame]string{
		cloudscan.FrameStartOfService: referenceframe.World,
		cloudscan.FrameDevice:         device,
		cloudscan.FrameIMU:            device,
		cloudscan.FrameCameraColor:    device,
	}
	if c.WorldFrame != "" {
		m[cloudscan.FrameStartOfService] = c.WorldFrame
	}
	if c.IMUFrame != "" {
		m[cloudscan.FrameIMU] = c.IMUFrame
	}
	if c.ColorCameraFrame != "" {
		m[cloudscan.FrameCameraColor] = c.ColorCameraFrame
	}
	return m
}

func (c *Config) pollInterval() time.Duration {
	if c.PollMs <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(c.PollMs) * time.Millisecond
}

func (c *Config) maxPoseAge() time.Duration {
	if c.MaxPoseAgeMs <= 0 {
		return time.Second
	}
	return time.Duration(c.MaxPoseAgeMs) * time.Millisecond
}

func (c *Config) scannerConfig() cloudscan.Config {
	sc := cloudscan.DefaultConfig()
	if c.MaxPoints > 0 {
		sc.MaxPoints = c.MaxPoints
	}
	sc.ClearStopsScan = c.ClearStopsScan
	sc.SaveDir = c.SaveDir
	return sc
}
