package gowarp

import (
	"math"

	"github.com/paulmach/orb"
)

// Rectangle represents a rectangle in pixel space
type Rectangle struct {
	X      int // X coordinate of top-left corner
	Y      int // Y coordinate of top-left corner
	Width  int // Width in pixels
	Height int // Height in pixels
}

// Rect is shorthand for Rectangle{x, y, w, h}.
func Rect(x, y, w, h int) Rectangle {
	return Rectangle{X: x, Y: y, Width: w, Height: h}
}

// Empty reports whether the rectangle contains no pixels.
func (r Rectangle) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// MaxX returns the exclusive right edge.
func (r Rectangle) MaxX() int { return r.X + r.Width }

// MaxY returns the exclusive bottom edge.
func (r Rectangle) MaxY() int { return r.Y + r.Height }

// ContainsPoint reports whether pixel (x, y) lies inside r.
func (r Rectangle) ContainsPoint(x, y int) bool {
	return x >= r.X && x < r.MaxX() && y >= r.Y && y < r.MaxY()
}

// Contains reports whether o lies entirely inside r. An empty o is contained by any r.
func (r Rectangle) Contains(o Rectangle) bool {
	if o.Empty() {
		return true
	}
	return o.X >= r.X && o.Y >= r.Y && o.MaxX() <= r.MaxX() && o.MaxY() <= r.MaxY()
}

// Intersect returns the overlap of r and o, or the zero Rectangle when they do not overlap.
func (r Rectangle) Intersect(o Rectangle) Rectangle {
	x0 := max(r.X, o.X)
	y0 := max(r.Y, o.Y)
	x1 := min(r.MaxX(), o.MaxX())
	y1 := min(r.MaxY(), o.MaxY())
	if x1 <= x0 || y1 <= y0 {
		return Rectangle{}
	}
	return Rectangle{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Union returns the smallest rectangle containing r and o.
func (r Rectangle) Union(o Rectangle) Rectangle {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	x0 := min(r.X, o.X)
	y0 := min(r.Y, o.Y)
	x1 := max(r.MaxX(), o.MaxX())
	y1 := max(r.MaxY(), o.MaxY())
	return Rectangle{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Translate returns r moved by (dx, dy).
func (r Rectangle) Translate(dx, dy int) Rectangle {
	return Rectangle{X: r.X + dx, Y: r.Y + dy, Width: r.Width, Height: r.Height}
}

// Expand grows r by left/top and right/bottom pixels.
func (r Rectangle) Expand(left, top, right, bottom int) Rectangle {
	return Rectangle{X: r.X - left, Y: r.Y - top, Width: r.Width + left + right, Height: r.Height + top + bottom}
}

// Bound returns r as an orb.Bound in pixel space.
func (r Rectangle) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{float64(r.X), float64(r.Y)},
		Max: orb.Point{float64(r.MaxX()), float64(r.MaxY())},
	}
}

// RectangleFromBound returns the pixels whose centres fall inside the bound.
func RectangleFromBound(b orb.Bound) Rectangle {
	x0 := int(math.Ceil(b.Min[0] - 0.5))
	y0 := int(math.Ceil(b.Min[1] - 0.5))
	x1 := int(math.Ceil(b.Max[0] - 0.5))
	y1 := int(math.Ceil(b.Max[1] - 0.5))
	if x1 < x0 {
		x1 = x0
	}
	if y1 < y0 {
		y1 = y0
	}
	return Rectangle{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// CoveringRectangle returns the smallest integer rectangle enclosing the bound.
func CoveringRectangle(b orb.Bound) Rectangle {
	x0 := int(math.Floor(b.Min[0]))
	y0 := int(math.Floor(b.Min[1]))
	x1 := int(math.Ceil(b.Max[0]))
	y1 := int(math.Ceil(b.Max[1]))
	return Rectangle{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// PolygonFromBounds creates a polygon from a bounding box
func PolygonFromBounds(bound orb.Bound) orb.Polygon {
	if bound.IsEmpty() {
		return orb.Polygon{}
	}

	ring := orb.Ring{
		{bound.Min[0], bound.Min[1]},
		{bound.Max[0], bound.Min[1]},
		{bound.Max[0], bound.Max[1]},
		{bound.Min[0], bound.Max[1]},
		{bound.Min[0], bound.Min[1]},
	}

	return orb.Polygon{ring}
}

// CornerPoints returns the four corners of r, clockwise from the top-left.
func (r Rectangle) CornerPoints() [4]orb.Point {
	x0, y0 := float64(r.X), float64(r.Y)
	x1, y1 := float64(r.MaxX()), float64(r.MaxY())
	return [4]orb.Point{
		{x0, y0}, // Top-left
		{x1, y0}, // Top-right
		{x1, y1}, // Bottom-right
		{x0, y1}, // Bottom-left
	}
}

// TileGrid describes a regular grid of tiles anchored at the origin of an image rectangle.
type TileGrid struct {
	Bounds     Rectangle
	TileWidth  int
	TileHeight int
}

// TilesAcross returns the number of tile columns.
func (g TileGrid) TilesAcross() int {
	if g.TileWidth <= 0 || g.Bounds.Empty() {
		return 0
	}
	return (g.Bounds.Width + g.TileWidth - 1) / g.TileWidth
}

// TilesDown returns the number of tile rows.
func (g TileGrid) TilesDown() int {
	if g.TileHeight <= 0 || g.Bounds.Empty() {
		return 0
	}
	return (g.Bounds.Height + g.TileHeight - 1) / g.TileHeight
}

// TileRect returns the rectangle of tile (tx, ty) clipped to the image bounds.
func (g TileGrid) TileRect(tx, ty int) Rectangle {
	r := Rectangle{
		X:      g.Bounds.X + tx*g.TileWidth,
		Y:      g.Bounds.Y + ty*g.TileHeight,
		Width:  g.TileWidth,
		Height: g.TileHeight,
	}
	return r.Intersect(g.Bounds)
}

// ValidTile reports whether (tx, ty) addresses a tile of the grid.
func (g TileGrid) ValidTile(tx, ty int) bool {
	return tx >= 0 && ty >= 0 && tx < g.TilesAcross() && ty < g.TilesDown()
}

// TileRange returns the inclusive tile index range overlapping r.
func (g TileGrid) TileRange(r Rectangle) (startX, startY, endX, endY int) {
	r = r.Intersect(g.Bounds)
	if r.Empty() {
		return 0, 0, -1, -1
	}
	startX = (r.X - g.Bounds.X) / g.TileWidth
	endX = (r.MaxX() - 1 - g.Bounds.X) / g.TileWidth
	startY = (r.Y - g.Bounds.Y) / g.TileHeight
	endY = (r.MaxY() - 1 - g.Bounds.Y) / g.TileHeight
	return startX, startY, endX, endY
}
