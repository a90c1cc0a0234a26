package scancam

import (
	"context"
	"fmt"
	"time"

	"go.viam.com/rdk/referenceframe"
	"go.viam.com/rdk/spatialmath"

	"github.com/erh/vscan/cloudscan"
)

// FrameSystem is the part of framesystem.Service the scanner needs.
type FrameSystem interface {
	GetPose(
		ctx context.Context,
		componentName, destinationFrame string,
		supplementalTransforms []*referenceframe.LinkInFrame,
		extra map[string]interface{},
	) (*referenceframe.PoseInFrame, error)
}

// frameSystemPoses answers pose queries from the live frame system.
// Timestamps are seconds since start. The frame system only knows the current
// pose, so a frame older than maxAge has no pose.
type frameSystemPoses struct {
	fs     FrameSystem
	frames map[cloudscan.CoordinateFrame]string
	start  time.Time
	maxAge time.Duration
	now    func() time.Time
}

func (fsp *frameSystemPoses) PoseAt(ctx context.Context, pair cloudscan.FramePair, timestamp float64) (cloudscan.Pose, error) {
	if timestamp != cloudscan.AnyTime {
		taken := fsp.start.Add(time.Duration(timestamp * float64(time.Second)))
		if age := fsp.now().Sub(taken); age > fsp.maxAge {
			return cloudscan.Pose{}, fmt.Errorf("frame is %v old, pose for %v is gone: %w", age, pair, cloudscan.ErrPoseUnavailable)
		}
	}

	target, base := fsp.frames[pair.Target], fsp.frames[pair.Base]
	if target == "" || base == "" {
		return cloudscan.Pose{}, fmt.Errorf("no frame configured for %v: %w", pair, cloudscan.ErrPoseUnavailable)
	}
	if target == base {
		return cloudscan.IdentityPose(), nil
	}

	pif, err := fsp.fs.GetPose(ctx, target, base, nil, nil)
	if err != nil {
		return cloudscan.Pose{}, fmt.Errorf("cannot get pose of %s in %s (%w): %v", target, base, cloudscan.ErrPoseUnavailable, err)
	}
	return fromSpatial(pif.Pose()), nil
}

func fromSpatial(p spatialmath.Pose) cloudscan.Pose {
	return cloudscan.Pose{
		Translation: p.Point(),
		Rotation:    p.Orientation().Quaternion(),
	}
}
