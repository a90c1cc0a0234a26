package scancam

import (
	"image"
	"image/color"
	"math"

	"github.com/golang/geo/r3"

	"go.viam.com/rdk/pointcloud"
)

// TopDown draws pc looking down the world up axis (Y), one pixel per unit.
// The far side (+Z) is at the top, and the highest point wins each pixel.
func TopDown(pc pointcloud.PointCloud) image.Image {
	if pc.Size() == 0 {
		return image.NewRGBA(image.Rect(0, 0, 1, 1))
	}

	md := pc.MetaData()
	minX := int(math.Floor(md.MinX))
	maxX := int(math.Floor(md.MaxX))
	minZ := int(math.Floor(md.MinZ))
	maxZ := int(math.Floor(md.MaxZ))

	r := image.Rect(0, 0, 1+maxX-minX, 1+maxZ-minZ)
	img := image.NewRGBA(r)

	bestY := make([]float64, r.Dx()*r.Dy())
	seen := make([]bool, len(bestY))

	pc.Iterate(0, 0, func(p r3.Vector, d pointcloud.Data) bool {
		x := int(math.Floor(p.X)) - minX
		y := maxZ - int(math.Floor(p.Z))

		key := (y * r.Dx()) + x
		if seen[key] && p.Y <= bestY[key] {
			return true
		}
		seen[key] = true
		bestY[key] = p.Y

		img.Set(x, y, pointColor(d))
		return true
	})

	return img
}

func pointColor(d pointcloud.Data) color.Color {
	if d == nil || !d.HasColor() {
		return color.White
	}
	return d.Color()
}
