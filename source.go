package gowarp

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrTileOutOfRange is returned for tile indices outside the tile grid.
var ErrTileOutOfRange = errors.New("tile index out of range")

// TileSource supplies source pixels tile by tile. Implementations must be safe
// for concurrent use; blocking fetches belong here, not in the core.
type TileSource interface {
	// Bounds returns the image rectangle.
	Bounds() Rectangle
	// Grid returns the tile layout of the image.
	Grid() TileGrid
	// Bands returns the number of samples per pixel.
	Bands() int
	// DataType returns the sample storage type.
	DataType() DataType
	// Tile returns the pixels of tile (tx, ty), clipped to the image bounds.
	Tile(ctx context.Context, tx, ty int) (*Raster, error)
	// ReadExtended returns the pixels of rect; the parts of rect outside the
	// image are synthesised by the border extender.
	ReadExtended(ctx context.Context, rect Rectangle, ext BorderExtender) (*Raster, error)
}

// RegionReader is implemented by sources that can read an arbitrary
// in-bounds rectangle more cheaply than tile by tile.
type RegionReader interface {
	ReadRegion(ctx context.Context, rect Rectangle) (*Raster, error)
}

// BorderMode selects how pixels outside the image are synthesised.
type BorderMode uint8

const (
	// BorderCopy replicates the nearest edge pixel.
	BorderCopy BorderMode = iota
	// BorderZero fills with zero.
	BorderZero
	// BorderConstant fills with per-band constants.
	BorderConstant
	// BorderReflect mirrors the image about its edges.
	BorderReflect
	// BorderWrap tiles the image periodically.
	BorderWrap
)

func (m BorderMode) String() string {
	switch m {
	case BorderCopy:
		return "copy"
	case BorderZero:
		return "zero"
	case BorderConstant:
		return "constant"
	case BorderReflect:
		return "reflect"
	case BorderWrap:
		return "wrap"
	default:
		return fmt.Sprintf("BorderMode(%d)", uint8(m))
	}
}

// BorderExtender describes a border extension policy.
type BorderExtender struct {
	Mode   BorderMode
	Values []float64 // per-band fill for BorderConstant
}

// fills reports whether out-of-image pixels are filled rather than mapped.
func (e BorderExtender) fills() bool {
	return e.Mode == BorderZero || e.Mode == BorderConstant
}

// mapCoord maps coordinate v onto [lo, lo+n).
func (e BorderExtender) mapCoord(v, lo, n int) int {
	if v >= lo && v < lo+n {
		return v
	}
	switch e.Mode {
	case BorderReflect:
		period := 2 * n
		p := (v - lo) % period
		if p < 0 {
			p += period
		}
		if p >= n {
			p = period - 1 - p
		}
		return lo + p
	case BorderWrap:
		p := (v - lo) % n
		if p < 0 {
			p += n
		}
		return lo + p
	default:
		if v < lo {
			return lo
		}
		return lo + n - 1
	}
}

// ReadRegion reads an in-bounds rectangle from src, assembling it from tiles
// unless src implements RegionReader.
func ReadRegion(ctx context.Context, src TileSource, rect Rectangle) (*Raster, error) {
	if !src.Bounds().Contains(rect) {
		return nil, fmt.Errorf("region %+v outside image bounds %+v", rect, src.Bounds())
	}
	if rr, ok := src.(RegionReader); ok {
		return rr.ReadRegion(ctx, rect)
	}
	return assembleRegion(ctx, src, rect)
}

// assembleRegion fetches the tiles overlapping rect in parallel and copies them into one raster.
func assembleRegion(ctx context.Context, src TileSource, rect Rectangle) (*Raster, error) {
	grid := src.Grid()
	output := NewRaster(rect, src.Bands(), src.DataType())
	startTileX, startTileY, endTileX, endTileY := grid.TileRange(rect)

	type tileIndex struct{ tx, ty int }
	var tiles []tileIndex
	for ty := startTileY; ty <= endTileY; ty++ {
		for tx := startTileX; tx <= endTileX; tx++ {
			tiles = append(tiles, tileIndex{tx, ty})
		}
	}

	// If only one tile, skip the worker pool
	if len(tiles) == 1 {
		tile, err := src.Tile(ctx, tiles[0].tx, tiles[0].ty)
		if err != nil {
			return nil, fmt.Errorf("failed to read tile (%d,%d): %w", tiles[0].tx, tiles[0].ty, err)
		}
		output.CopyFrom(tile)
		return output, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	// CopyFrom into output is serialised
	var mu sync.Mutex
	for _, ti := range tiles {
		ti := ti
		g.Go(func() error {
			tile, err := src.Tile(ctx, ti.tx, ti.ty)
			if err != nil {
				return fmt.Errorf("failed to read tile (%d,%d): %w", ti.tx, ti.ty, err)
			}
			mu.Lock()
			output.CopyFrom(tile)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return output, nil
}

// ExtendRegion reads rect from src, synthesising pixels outside the image with ext.
// TileSource implementations can use it for ReadExtended.
func ExtendRegion(ctx context.Context, src TileSource, rect Rectangle, ext BorderExtender) (*Raster, error) {
	bounds := src.Bounds()
	if bounds.Contains(rect) {
		return ReadRegion(ctx, src, rect)
	}

	output := NewRaster(rect, src.Bands(), src.DataType())
	if rect.Empty() || bounds.Empty() {
		output.Fill(ext.fillValues())
		return output, nil
	}

	if ext.fills() {
		output.Fill(ext.fillValues())
		inner := rect.Intersect(bounds)
		if inner.Empty() {
			return output, nil
		}
		data, err := ReadRegion(ctx, src, inner)
		if err != nil {
			return nil, err
		}
		output.CopyFrom(data)
		return output, nil
	}

	// Map every column and row once, then read the span they cover.
	xs := make([]int, rect.Width)
	ys := make([]int, rect.Height)
	minX, maxX := bounds.MaxX(), bounds.X-1
	for i := range xs {
		xs[i] = ext.mapCoord(rect.X+i, bounds.X, bounds.Width)
		minX, maxX = min(minX, xs[i]), max(maxX, xs[i])
	}
	minY, maxY := bounds.MaxY(), bounds.Y-1
	for j := range ys {
		ys[j] = ext.mapCoord(rect.Y+j, bounds.Y, bounds.Height)
		minY, maxY = min(minY, ys[j]), max(maxY, ys[j])
	}

	data, err := ReadRegion(ctx, src, Rect(minX, minY, maxX-minX+1, maxY-minY+1))
	if err != nil {
		return nil, err
	}
	bands := output.Bands
	for j, sy := range ys {
		di := j * rect.Width * bands
		for i, sx := range xs {
			si := data.Index(0, sx, sy)
			copy(output.Data[di+i*bands:di+(i+1)*bands], data.Data[si:si+bands])
		}
	}
	return output, nil
}

func (e BorderExtender) fillValues() []float64 {
	if e.Mode == BorderConstant {
		return e.Values
	}
	return nil
}

// MemorySource serves tiles from a raster held in memory.
type MemorySource struct {
	raster *Raster
	grid   TileGrid
}

// NewMemorySource wraps r as a tile source with the given tile size.
// A non-positive tile size selects DefaultTileSize.
func NewMemorySource(r *Raster, tileWidth, tileHeight int) *MemorySource {
	if tileWidth <= 0 {
		tileWidth = DefaultTileSize
	}
	if tileHeight <= 0 {
		tileHeight = DefaultTileSize
	}
	return &MemorySource{
		raster: r,
		grid:   TileGrid{Bounds: r.Rect, TileWidth: tileWidth, TileHeight: tileHeight},
	}
}

func (m *MemorySource) Bounds() Rectangle { return m.raster.Rect }

func (m *MemorySource) Grid() TileGrid { return m.grid }

func (m *MemorySource) Bands() int { return m.raster.Bands }

func (m *MemorySource) DataType() DataType { return m.raster.DataType }

// Raster returns the backing raster.
func (m *MemorySource) Raster() *Raster { return m.raster }

func (m *MemorySource) Tile(ctx context.Context, tx, ty int) (*Raster, error) {
	if !m.grid.ValidTile(tx, ty) {
		return nil, fmt.Errorf("%w: (%d,%d)", ErrTileOutOfRange, tx, ty)
	}
	return m.ReadRegion(ctx, m.grid.TileRect(tx, ty))
}

func (m *MemorySource) ReadRegion(ctx context.Context, rect Rectangle) (*Raster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := NewRaster(rect, m.raster.Bands, m.raster.DataType)
	out.CopyFrom(m.raster)
	return out, nil
}

func (m *MemorySource) ReadExtended(ctx context.Context, rect Rectangle, ext BorderExtender) (*Raster, error) {
	return ExtendRegion(ctx, m, rect, ext)
}
