package gowarp

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// ROI is a region of interest over image pixel coordinates.
// Implementations must be safe for concurrent reads.
type ROI interface {
	// Bounds returns the bounding rectangle of the region. An empty
	// rectangle means the region contains no pixels.
	Bounds() Rectangle
	// Contains reports whether pixel (x, y) is inside the region.
	Contains(x, y int) bool
	// ContainsRect reports whether every pixel of r is inside the region.
	ContainsRect(r Rectangle) bool
	// IntersectsRect reports whether at least one pixel of r is inside the region.
	IntersectsRect(r Rectangle) bool
}

// RectROI is a rectangular region.
type RectROI struct {
	Rect Rectangle
}

// NewRectROI returns a rectangular region.
func NewRectROI(r Rectangle) *RectROI {
	return &RectROI{Rect: r}
}

func (r *RectROI) Bounds() Rectangle { return r.Rect }

func (r *RectROI) Contains(x, y int) bool { return r.Rect.ContainsPoint(x, y) }

func (r *RectROI) ContainsRect(o Rectangle) bool {
	if r.Rect.Empty() {
		return o.Empty()
	}
	return r.Rect.Contains(o)
}

func (r *RectROI) IntersectsRect(o Rectangle) bool {
	return !r.Rect.Intersect(o).Empty()
}

// MaskROI is a bitmap region. Pixels outside the mask rectangle are outside the region.
type MaskROI struct {
	rect   Rectangle
	bits   []bool
	bounds Rectangle
	// per-row prefix counts make rectangle queries O(height)
	prefix []int
}

// NewMaskROI builds a mask region over rect. inside is called once per pixel.
func NewMaskROI(rect Rectangle, inside func(x, y int) bool) *MaskROI {
	m := &MaskROI{rect: rect}
	if rect.Empty() {
		return m
	}
	m.bits = make([]bool, rect.Width*rect.Height)
	m.prefix = make([]int, rect.Height*(rect.Width+1))
	for y := 0; y < rect.Height; y++ {
		row := y * (rect.Width + 1)
		for x := 0; x < rect.Width; x++ {
			in := inside(rect.X+x, rect.Y+y)
			m.bits[y*rect.Width+x] = in
			m.prefix[row+x+1] = m.prefix[row+x]
			if in {
				m.prefix[row+x+1]++
				m.bounds = m.bounds.Union(Rect(rect.X+x, rect.Y+y, 1, 1))
			}
		}
	}
	return m
}

// NewMaskROIFromRaster builds a mask from band 0 of r: non-zero samples are inside.
func NewMaskROIFromRaster(r *Raster) *MaskROI {
	return NewMaskROI(r.Rect, func(x, y int) bool {
		return r.Value(0, x, y) != 0
	})
}

// Bounds returns the bounding rectangle of the set pixels.
func (m *MaskROI) Bounds() Rectangle { return m.bounds }

func (m *MaskROI) Contains(x, y int) bool {
	if !m.rect.ContainsPoint(x, y) {
		return false
	}
	return m.bits[(y-m.rect.Y)*m.rect.Width+(x-m.rect.X)]
}

// rowCount returns the number of set pixels of row y in [x0, x1).
func (m *MaskROI) rowCount(y, x0, x1 int) int {
	row := (y - m.rect.Y) * (m.rect.Width + 1)
	return m.prefix[row+x1-m.rect.X] - m.prefix[row+x0-m.rect.X]
}

func (m *MaskROI) ContainsRect(r Rectangle) bool {
	if r.Empty() {
		return true
	}
	if !m.rect.Contains(r) {
		return false
	}
	for y := r.Y; y < r.MaxY(); y++ {
		if m.rowCount(y, r.X, r.MaxX()) != r.Width {
			return false
		}
	}
	return true
}

func (m *MaskROI) IntersectsRect(r Rectangle) bool {
	r = r.Intersect(m.bounds)
	if r.Empty() {
		return false
	}
	for y := r.Y; y < r.MaxY(); y++ {
		if m.rowCount(y, r.X, r.MaxX()) > 0 {
			return true
		}
	}
	return false
}

// PolygonROI is a shape region. A pixel is inside when its centre lies in the polygon.
type PolygonROI struct {
	*MaskROI
	Polygon orb.Polygon
}

// NewPolygonROI rasterises a polygon given in pixel coordinates.
func NewPolygonROI(poly orb.Polygon) *PolygonROI {
	rect := CoveringRectangle(poly.Bound())
	if len(poly) == 0 {
		rect = Rectangle{}
	}
	mask := NewMaskROI(rect, func(x, y int) bool {
		return planar.PolygonContains(poly, orb.Point{float64(x) + 0.5, float64(y) + 0.5})
	})
	return &PolygonROI{MaskROI: mask, Polygon: poly}
}

// TransformROI maps a region through m, returning the polygon region of the
// transformed pixel footprints. Only rectangular and polygon regions keep
// their exact outline; masks are transformed through their bounds.
func TransformROI(roi ROI, m AffineMatrix) *PolygonROI {
	var poly orb.Polygon
	switch r := roi.(type) {
	case *PolygonROI:
		poly = r.Polygon.Clone()
	default:
		poly = PolygonFromBounds(roi.Bounds().Bound())
	}
	for _, ring := range poly {
		for i, p := range ring {
			ring[i] = m.TransformPoint(p)
		}
	}
	return NewPolygonROI(poly)
}
