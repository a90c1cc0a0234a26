package cloudscan

import (
	"image/color"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// Style tells the renderer which look to use for a snapshot.
type Style int

const (
	// StyleCaptured is used for scans and screenshots.
	StyleCaptured Style = iota
	// StyleLive is used while streaming.
	StyleLive
)

func (s Style) String() string {
	if s == StyleLive {
		return "live"
	}
	return "captured"
}

// Color is the point color used when the style is drawn or saved.
func (s Style) Color() color.NRGBA {
	if s == StyleLive {
		return color.NRGBA{R: 64, G: 200, B: 96, A: 255}
	}
	return color.NRGBA{R: 230, G: 230, B: 230, A: 255}
}

// Snapshot is one materialized depth frame placed in the world.
type Snapshot struct {
	ID        uuid.UUID
	Timestamp float64
	Style     Style

	// Vertices are the frame points in the display camera frame.
	Vertices []mgl32.Vec3

	Position    mgl32.Vec3
	Orientation mgl32.Quat

	// Transform is the full sensor to world matrix the placement was taken from.
	Transform mgl32.Mat4
}

// VertexCount is the number of points in the snapshot.
func (s *Snapshot) VertexCount() int {
	return len(s.Vertices)
}

// WorldVertices returns the vertices placed with Position and Orientation.
func (s *Snapshot) WorldVertices() []mgl32.Vec3 {
	out := make([]mgl32.Vec3, len(s.Vertices))
	for i, v := range s.Vertices {
		out[i] = Place(s.Position, s.Orientation, v)
	}
	return out
}
