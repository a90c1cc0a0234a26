package cloudscan

import (
	"github.com/go-gl/mathgl/mgl32"
)

// singularDet is the smallest |det| accepted for a calibration transform.
const singularDet = 1e-6

var (
	// WorldFromStartOfService swaps Y and Z to go from the tracking
	// convention (Z up) to the display convention (Y up).
	WorldFromStartOfService = mgl32.Mat4FromCols(
		mgl32.Vec4{1, 0, 0, 0},
		mgl32.Vec4{0, 0, 1, 0},
		mgl32.Vec4{0, 1, 0, 0},
		mgl32.Vec4{0, 0, 0, 1},
	)

	// ColorCameraToDisplay flips Y to go from the color camera optical frame
	// (Y down) to the display camera frame (Y up).
	ColorCameraToDisplay = mgl32.Mat4FromCols(
		mgl32.Vec4{1, 0, 0, 0},
		mgl32.Vec4{0, -1, 0, 0},
		mgl32.Vec4{0, 0, 1, 0},
		mgl32.Vec4{0, 0, 0, 1},
	)
)

// ComposeFrameTransform builds the sensor to world matrix for one frame:
//
//	WorldFromStartOfService * device * inverse(imuToDevice) * imuToColorCamera * ColorCameraToDisplay
func ComposeFrameTransform(ext Extrinsics, device mgl32.Mat4) (mgl32.Mat4, error) {
	if err := ext.Validate(); err != nil {
		return mgl32.Mat4{}, err
	}

	return WorldFromStartOfService.
		Mul4(device).
		Mul4(ext.IMUToDevice.Inv()).
		Mul4(ext.IMUToColorCamera).
		Mul4(ColorCameraToDisplay), nil
}

// BasisFunc turns a frame transform into the position and orientation used to
// place a snapshot.
type BasisFunc func(m mgl32.Mat4) (mgl32.Vec3, mgl32.Quat)

// ColumnBasis places a snapshot at the translation column, oriented by a look
// rotation whose forward is column 2 and whose up is column 1.
//
// For a proper rigid transform this reproduces the rotation block exactly. It
// is kept separate so the renderer convention can be changed on its own.
func ColumnBasis(m mgl32.Mat4) (mgl32.Vec3, mgl32.Quat) {
	return m.Col(3).Vec3(), LookRotation(m.Col(2).Vec3(), m.Col(1).Vec3())
}

// LookRotation returns the rotation that maps +Z to forward and +Y as close to
// up as possible.
func LookRotation(forward, up mgl32.Vec3) mgl32.Quat {
	if forward.Len() < 1e-6 {
		return mgl32.QuatIdent()
	}
	f := forward.Normalize()

	right := up.Cross(f)
	if right.Len() < 1e-6 {
		// up is parallel to forward
		return mgl32.QuatBetweenVectors(mgl32.Vec3{0, 0, 1}, f)
	}
	right = right.Normalize()
	u := f.Cross(right)

	rot := mgl32.Mat4FromCols(right.Vec4(0), u.Vec4(0), f.Vec4(0), mgl32.Vec4{0, 0, 0, 1})
	return mgl32.Mat4ToQuat(rot).Normalize()
}

// Place applies a snapshot placement to a local vertex.
func Place(position mgl32.Vec3, orientation mgl32.Quat, v mgl32.Vec3) mgl32.Vec3 {
	return orientation.Rotate(v).Add(position)
}
