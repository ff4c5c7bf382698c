package gowarp

import (
	"math"

	"github.com/paulmach/orb"
)

// DestinationBound returns the destination bounding box of the source
// rectangle for the classified strategy.
func DestinationBound(c Classification, src Rectangle) orb.Bound {
	switch c.Strategy {
	case StrategyCopy:
		return src.Bound()
	case StrategyIntegerTranslate:
		return src.Translate(c.ShiftX, c.ShiftY).Bound()
	case StrategyAxisScale:
		x0 := float64(src.X)*c.ScaleX + c.TransX
		y0 := float64(src.Y)*c.ScaleY + c.TransY
		w := float64(src.Width) * c.ScaleX
		h := float64(src.Height) * c.ScaleY
		return orb.Bound{Min: orb.Point{x0, y0}, Max: orb.Point{x0 + w, y0 + h}}
	default:
		return ForwardBound(c.Matrix, src)
	}
}

// DestinationBoundFor classifies m without ROI or layout constraints and returns the destination bound.
func DestinationBoundFor(m AffineMatrix, src Rectangle) orb.Bound {
	return DestinationBound(Classify(m, src, ClassifyInput{}), src)
}

// ForwardBound maps the four corners of r through m and returns their axis-aligned bounding box.
func ForwardBound(m AffineMatrix, r Rectangle) orb.Bound {
	corners := r.CornerPoints()
	pts := ForwardPoints(m, corners[:])
	return orb.MultiPoint(pts).Bound()
}

// ForwardPoints maps a point set from source to destination space.
func ForwardPoints(m AffineMatrix, pts []orb.Point) []orb.Point {
	out := make([]orb.Point, len(pts))
	for i, p := range pts {
		out[i] = m.TransformPoint(p)
	}
	return out
}

// InversePoints maps a point set from destination back to source space.
func InversePoints(m AffineMatrix, pts []orb.Point) ([]orb.Point, error) {
	inv, err := m.Inverse()
	if err != nil {
		return nil, err
	}
	return ForwardPoints(inv, pts), nil
}

// LayoutFromBound returns the destination pixel rectangle for a bound.
func LayoutFromBound(b orb.Bound) Rectangle {
	return RectangleFromBound(b)
}

// SourceExtent returns the source rectangle a destination rectangle reads,
// including the neighbourhood padding of the interpolation.
func SourceExtent(dst Rectangle, inv AffineMatrix, interp Interpolation) Rectangle {
	if dst.Empty() {
		return Rectangle{}
	}
	// pixel centres of the outermost destination pixels
	pts := []orb.Point{
		{float64(dst.X) + 0.5, float64(dst.Y) + 0.5},
		{float64(dst.MaxX()) - 0.5, float64(dst.Y) + 0.5},
		{float64(dst.MaxX()) - 0.5, float64(dst.MaxY()) - 0.5},
		{float64(dst.X) + 0.5, float64(dst.MaxY()) - 0.5},
	}
	b := orb.MultiPoint(ForwardPoints(inv, pts)).Bound()

	// one extra pixel on each side absorbs rounding of the per-pixel mapping
	left, top, right, bottom := interp.Padding()
	x0 := int(math.Floor(b.Min[0]-0.5)) - left - 1
	y0 := int(math.Floor(b.Min[1]-0.5)) - top - 1
	x1 := int(math.Floor(b.Max[0]-0.5)) + right + 2
	y1 := int(math.Floor(b.Max[1]-0.5)) + bottom + 2
	return Rectangle{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}
