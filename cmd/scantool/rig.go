package main

import (
	"fmt"
	"os"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
	"gopkg.in/yaml.v3"

	"github.com/erh/vscan/cloudscan"
)

// rigPose is a translation and a w,x,y,z rotation. A missing rotation is identity.
type rigPose struct {
	Translation [3]float64 `yaml:"translation"`
	Rotation    [4]float64 `yaml:"rotation"`
}

func (rp rigPose) pose() cloudscan.Pose {
	p := cloudscan.Pose{
		Translation: r3.Vector{X: rp.Translation[0], Y: rp.Translation[1], Z: rp.Translation[2]},
		Rotation:    quat.Number{Real: rp.Rotation[0], Imag: rp.Rotation[1], Jmag: rp.Rotation[2], Kmag: rp.Rotation[3]},
	}
	if rp.Rotation == [4]float64{} {
		p.Rotation = quat.Number{Real: 1}
	}
	return p
}

type rigSample struct {
	Timestamp float64 `yaml:"timestamp"`
	Pose      rigPose `yaml:"pose"`
}

type rigFrame struct {
	File      string  `yaml:"file"`
	Timestamp float64 `yaml:"timestamp"`
}

// rig describes a recorded session: the calibration, the device track and the depth frames.
type rig struct {
	IMUToDevice      rigPose     `yaml:"imu_to_device"`
	IMUToColorCamera rigPose     `yaml:"imu_to_color_camera"`
	Tolerance        float64     `yaml:"tolerance"`
	MaxGap           float64     `yaml:"max_gap"`
	Track            []rigSample `yaml:"track"`
	Frames           []rigFrame  `yaml:"frames"`
}

func readRig(fn string) (*rig, error) {
	data, err := os.ReadFile(fn)
	if err != nil {
		return nil, err
	}

	r := &rig{}
	if err := yaml.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("bad rig file (%s): %w", fn, err)
	}
	if len(r.Track) == 0 {
		return nil, fmt.Errorf("rig file (%s) has no track", fn)
	}
	return r, nil
}

func (r *rig) history() (*cloudscan.PoseHistory, error) {
	h := cloudscan.NewPoseHistory(len(r.Track), r.Tolerance, r.MaxGap)
	h.SetStatic(cloudscan.IMUDevicePair, r.IMUToDevice.pose())
	h.SetStatic(cloudscan.IMUColorCameraPair, r.IMUToColorCamera.pose())

	for i, s := range r.Track {
		if err := h.Record(cloudscan.DevicePair, s.Timestamp, s.Pose.pose()); err != nil {
			return nil, fmt.Errorf("track sample %d: %w", i, err)
		}
	}
	return h, nil
}
