package cloudscan

import (
	"context"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Extrinsics holds the device calibration needed to place a depth frame.
type Extrinsics struct {
	IMUToDevice      mgl32.Mat4
	IMUToColorCamera mgl32.Mat4
}

// Validate fails with ErrSingularExtrinsic if IMUToDevice cannot be inverted.
func (e Extrinsics) Validate() error {
	det := e.IMUToDevice.Det()
	if !(math.Abs(float64(det)) >= singularDet) {
		return fmt.Errorf("imu to device has determinant %g: %w", det, ErrSingularExtrinsic)
	}
	return nil
}

// ResolveExtrinsics queries both calibration transforms.
// They are re-queried for every frame so a recalibration takes effect on the next one.
func ResolveExtrinsics(ctx context.Context, poses PoseProvider) (Extrinsics, error) {
	imuToDevice, err := poses.PoseAt(ctx, IMUDevicePair, AnyTime)
	if err != nil {
		return Extrinsics{}, fmt.Errorf("extrinsics %v: %w", IMUDevicePair, err)
	}

	imuToColor, err := poses.PoseAt(ctx, IMUColorCameraPair, AnyTime)
	if err != nil {
		return Extrinsics{}, fmt.Errorf("extrinsics %v: %w", IMUColorCameraPair, err)
	}

	return Extrinsics{
		IMUToDevice:      imuToDevice.Matrix(),
		IMUToColorCamera: imuToColor.Matrix(),
	}, nil
}

// ResolveDevicePose returns the device pose at the time the depth frame was sensed.
func ResolveDevicePose(ctx context.Context, poses PoseProvider, timestamp float64) (mgl32.Mat4, error) {
	p, err := poses.PoseAt(ctx, DevicePair, timestamp)
	if err != nil {
		return mgl32.Mat4{}, fmt.Errorf("device pose at %f: %w", timestamp, err)
	}
	return p.Matrix(), nil
}
