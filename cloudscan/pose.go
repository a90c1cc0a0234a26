package cloudscan

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// CoordinateFrame names a reference frame known to the tracking system.
type CoordinateFrame int

const (
	FrameStartOfService CoordinateFrame = iota
	FrameDevice
	FrameIMU
	FrameCameraColor
)

func (f CoordinateFrame) String() string {
	switch f {
	case FrameStartOfService:
		return "start_of_service"
	case FrameDevice:
		return "device"
	case FrameIMU:
		return "imu"
	case FrameCameraColor:
		return "camera_color"
	default:
		return fmt.Sprintf("frame(%d)", int(f))
	}
}

// FramePair asks for the pose of Target expressed in Base.
type FramePair struct {
	Base   CoordinateFrame
	Target CoordinateFrame
}

func (fp FramePair) String() string {
	return fmt.Sprintf("%v->%v", fp.Base, fp.Target)
}

var (
	// DevicePair is the tracked pose of the device since the service started.
	DevicePair = FramePair{Base: FrameStartOfService, Target: FrameDevice}
	// IMUDevicePair is the calibration between the IMU and the device body.
	IMUDevicePair = FramePair{Base: FrameIMU, Target: FrameDevice}
	// IMUColorCameraPair is the calibration between the IMU and the color camera.
	IMUColorCameraPair = FramePair{Base: FrameIMU, Target: FrameCameraColor}
)

// AnyTime asks for the current estimate. Calibration queries always use it.
// Static pairs answer it directly. A tracked pair treats it as t=0.
const AnyTime = 0.0

// Pose is a translation and unit rotation for one frame pair at one time.
type Pose struct {
	Translation r3.Vector
	Rotation    quat.Number
}

// IdentityPose has no translation and no rotation.
func IdentityPose() Pose {
	return Pose{Rotation: quat.Number{Real: 1}}
}

// Matrix returns the rigid transform translate(t) * rotate(q) with unit scale.
// The rotation is normalized first; a zero or non-finite rotation collapses the
// frame and gives a singular matrix.
func (p Pose) Matrix() mgl32.Mat4 {
	t := mgl32.Translate3D(float32(p.Translation.X), float32(p.Translation.Y), float32(p.Translation.Z))
	if !validRotation(p.Rotation) {
		return t.Mul4(mgl32.Scale3D(0, 0, 0))
	}
	return t.Mul4(toMglQuat(p.Rotation).Mat4())
}

func validRotation(q quat.Number) bool {
	n := quat.Abs(q)
	return n > 0 && !math.IsNaN(n) && !math.IsInf(n, 0)
}

// PoseProvider answers pose queries synchronously.
// It returns an error wrapping ErrPoseUnavailable when there is no estimate.
type PoseProvider interface {
	PoseAt(ctx context.Context, pair FramePair, timestamp float64) (Pose, error)
}

type stampedPose struct {
	timestamp float64
	pose      Pose
}

// PoseHistory is an in-memory PoseProvider.
// Static pairs answer any time. Tracked pairs are interpolated between samples.
type PoseHistory struct {
	mu sync.Mutex

	maxSamples int
	tolerance  float64
	maxGap     float64

	static map[FramePair]Pose
	tracks map[FramePair][]stampedPose
}

// NewPoseHistory keeps at most maxSamples per tracked pair.
// tolerance is how far (seconds) outside the recorded span a query may still
// snap to the nearest sample; maxGap, when positive, is the largest sample gap
// that may be interpolated across.
func NewPoseHistory(maxSamples int, tolerance, maxGap float64) *PoseHistory {
	if maxSamples <= 0 {
		maxSamples = 1024
	}
	return &PoseHistory{
		maxSamples: maxSamples,
		tolerance:  tolerance,
		maxGap:     maxGap,
		static:     map[FramePair]Pose{},
		tracks:     map[FramePair][]stampedPose{},
	}
}

// SetStatic records a time-invariant pose such as an extrinsic calibration.
func (h *PoseHistory) SetStatic(pair FramePair, p Pose) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.static[pair] = p
}

// Record appends a tracked sample. Timestamps must not go backwards.
func (h *PoseHistory) Record(pair FramePair, timestamp float64, p Pose) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	samples := h.tracks[pair]
	if len(samples) > 0 && timestamp < samples[len(samples)-1].timestamp {
		return fmt.Errorf("pose for %v at %f is older than last sample %f", pair, timestamp, samples[len(samples)-1].timestamp)
	}

	samples = append(samples, stampedPose{timestamp, p})
	if len(samples) > h.maxSamples {
		samples = samples[len(samples)-h.maxSamples:]
	}
	h.tracks[pair] = samples
	return nil
}

// Len returns how many samples are held for pair.
func (h *PoseHistory) Len(pair FramePair) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.tracks[pair])
}

func (h *PoseHistory) PoseAt(_ context.Context, pair FramePair, timestamp float64) (Pose, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if p, ok := h.static[pair]; ok {
		return p, nil
	}

	samples := h.tracks[pair]
	if len(samples) == 0 {
		return Pose{}, fmt.Errorf("%v has no samples: %w", pair, ErrPoseUnavailable)
	}

	idx := sort.Search(len(samples), func(i int) bool {
		return samples[i].timestamp >= timestamp
	})

	if idx == len(samples) {
		last := samples[len(samples)-1]
		if timestamp-last.timestamp <= h.tolerance {
			return last.pose, nil
		}
		return Pose{}, fmt.Errorf("%v at %f is after last sample %f: %w", pair, timestamp, last.timestamp, ErrPoseUnavailable)
	}

	after := samples[idx]
	if after.timestamp == timestamp {
		return after.pose, nil
	}

	if idx == 0 {
		if after.timestamp-timestamp <= h.tolerance {
			return after.pose, nil
		}
		return Pose{}, fmt.Errorf("%v at %f is before first sample %f: %w", pair, timestamp, after.timestamp, ErrPoseUnavailable)
	}

	before := samples[idx-1]
	gap := after.timestamp - before.timestamp
	if h.maxGap > 0 && gap > h.maxGap {
		return Pose{}, fmt.Errorf("%v has a %fs tracking gap at %f: %w", pair, gap, timestamp, ErrPoseUnavailable)
	}

	return interpolatePose(before.pose, after.pose, (timestamp-before.timestamp)/gap), nil
}

func interpolatePose(a, b Pose, alpha float64) Pose {
	t := a.Translation.Add(b.Translation.Sub(a.Translation).Mul(alpha))

	qa := toMglQuat(a.Rotation)
	qb := toMglQuat(b.Rotation)
	if qa.Dot(qb) < 0 {
		qb = qb.Scale(-1)
	}
	q := mgl32.QuatSlerp(qa, qb, float32(alpha))

	return Pose{Translation: t, Rotation: fromMglQuat(q)}
}

// toMglQuat converts a gonum quaternion to mgl32 and normalizes it.
// A zero quaternion becomes the identity.
func toMglQuat(q quat.Number) mgl32.Quat {
	if !validRotation(q) {
		return mgl32.QuatIdent()
	}
	q = quat.Scale(1/quat.Abs(q), q)
	return mgl32.Quat{W: float32(q.Real), V: mgl32.Vec3{float32(q.Imag), float32(q.Jmag), float32(q.Kmag)}}
}

func fromMglQuat(q mgl32.Quat) quat.Number {
	return quat.Number{Real: float64(q.W), Imag: float64(q.V[0]), Jmag: float64(q.V[1]), Kmag: float64(q.V[2])}
}
