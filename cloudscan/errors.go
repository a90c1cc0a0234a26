package cloudscan

import "errors"

var (
	// ErrPoseUnavailable means tracking has no estimate for the requested frame pair and time.
	// The frame is skipped and nothing else changes.
	ErrPoseUnavailable = errors.New("pose unavailable")

	// ErrSingularExtrinsic means a calibration transform cannot be inverted.
	// It is a configuration error, the scanner stops processing once it sees it.
	ErrSingularExtrinsic = errors.New("singular extrinsic")

	// ErrCapacityExceeded means a frame carries more points than the configured maximum.
	ErrCapacityExceeded = errors.New("point capacity exceeded")

	// ErrMalformedFrame means the point buffer does not hold PointCount triples.
	ErrMalformedFrame = errors.New("malformed depth frame")
)
