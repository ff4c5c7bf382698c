package gowarp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNilSource is returned when an operation is built without a source.
	ErrNilSource = errors.New("source is nil")
	// ErrInvalidInterpolation is returned for unknown interpolation kinds.
	ErrInvalidInterpolation = errors.New("invalid interpolation")
	// ErrInvalidSource is returned for sources without bands or with an unknown data type.
	ErrInvalidSource = errors.New("invalid source")
)

// Affine resamples a source image through an affine transform, one destination
// tile at a time. Tiles are independent; an Affine is safe for concurrent use.
type Affine struct {
	id      uuid.UUID
	src     TileSource
	cfg     Config
	matrix  AffineMatrix
	inverse AffineMatrix
	class   Classification
	kernel  Kernel
	roi     ROI
	bound   orb.Bound
	grid    TileGrid
	dstType DataType
	bg      []uint64
	accel   AcceleratedOp
	log     *slog.Logger
}

// NewAffine prepares the resample of src through m, which maps source pixel
// coordinates to destination pixel coordinates.
func NewAffine(src TileSource, m AffineMatrix, opts ...Option) (*Affine, error) {
	if src == nil {
		return nil, ErrNilSource
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.normalize()

	if !cfg.Interpolation.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInterpolation, cfg.Interpolation)
	}
	if src.Bands() <= 0 || !src.DataType().Valid() {
		return nil, fmt.Errorf("%w: %d bands of %s", ErrInvalidSource, src.Bands(), src.DataType())
	}
	dstType := src.DataType()
	if cfg.Layout.DataType != 0 {
		if !cfg.Layout.DataType.Valid() {
			return nil, fmt.Errorf("invalid output data type %s", cfg.Layout.DataType)
		}
		dstType = cfg.Layout.DataType
	}

	inv, err := m.Inverse()
	if err != nil {
		return nil, fmt.Errorf("affine resample of %s: %w", m, err)
	}

	a := &Affine{
		id:      uuid.New(),
		src:     src,
		cfg:     cfg,
		matrix:  m,
		inverse: inv,
		dstType: dstType,
	}
	a.log = cfg.Logger.With("op", a.id.String())

	srcBounds := src.Bounds()
	a.class = Classify(m, srcBounds, ClassifyInput{
		ROI:            cfg.ROI,
		LayoutOverride: cfg.Layout.Bounds != nil,
		Binary:         src.DataType().IsBinary(),
		Interpolation:  cfg.Interpolation,
	})
	if cfg.Kernel != nil && a.class.Path != PathNone {
		a.class.Path = PathGeneral
	}
	a.kernel = cfg.Kernel
	if a.kernel == nil {
		a.kernel = NewKernel(cfg.Interpolation)
	}
	if cfg.ROI != nil && !cfg.ROI.Bounds().Empty() {
		a.roi = cfg.ROI
	}

	a.bound = DestinationBound(a.class, srcBounds)
	layout := LayoutFromBound(a.bound)
	if cfg.Layout.Bounds != nil {
		layout = *cfg.Layout.Bounds
	}
	a.grid = TileGrid{Bounds: layout, TileWidth: cfg.Layout.TileWidth, TileHeight: cfg.Layout.TileHeight}

	bands := src.Bands()
	a.bg = make([]uint64, bands)
	for b := range a.bg {
		a.bg[b] = EncodeSample(dstType, bandValue(cfg.Background, b))
	}

	a.log.Debug("classified affine transform",
		"matrix", m.String(),
		"strategy", a.class.String(),
		"bounds", layout,
		"interpolation", cfg.Interpolation.String())

	if cfg.Accelerator != nil && roiAllowsPassthrough(cfg.ROI, srcBounds) {
		op, err := tryAccelerate(cfg.Accelerator, AccelRequest{
			Source:         src,
			Classification: a.class,
			Interpolation:  cfg.Interpolation,
			Bounds:         layout,
			DataType:       dstType,
			Background:     cfg.Background,
			NoData:         cfg.NoData,
			Border:         cfg.Border,
		})
		if err != nil {
			a.log.Debug("accelerator declined", "err", err)
		} else {
			a.accel = op
		}
	}
	return a, nil
}

// ID returns the operation id attached to log records.
func (a *Affine) ID() uuid.UUID { return a.id }

// Classification returns the strategy chosen for the transform.
func (a *Affine) Classification() Classification { return a.class }

// Matrix returns the forward transform.
func (a *Affine) Matrix() AffineMatrix { return a.matrix }

// DestinationBound returns the continuous destination bounding box of the source.
func (a *Affine) DestinationBound() orb.Bound { return a.bound }

// DestinationROI returns the ROI mapped into destination space, or nil without an ROI.
func (a *Affine) DestinationROI() ROI {
	if a.roi == nil {
		return nil
	}
	return TransformROI(a.roi, a.matrix)
}

// Accelerated reports whether an accelerator accepted the operation.
func (a *Affine) Accelerated() bool { return a.accel != nil }

// Bounds returns the destination rectangle.
func (a *Affine) Bounds() Rectangle { return a.grid.Bounds }

// Grid returns the destination tile grid.
func (a *Affine) Grid() TileGrid { return a.grid }

func (a *Affine) Bands() int { return a.src.Bands() }

func (a *Affine) DataType() DataType { return a.dstType }

// ReadExtended lets an Affine feed another operation.
func (a *Affine) ReadExtended(ctx context.Context, rect Rectangle, ext BorderExtender) (*Raster, error) {
	return ExtendRegion(ctx, a, rect, ext)
}

// Tile computes destination tile (tx, ty).
func (a *Affine) Tile(ctx context.Context, tx, ty int) (*Raster, error) {
	if !a.grid.ValidTile(tx, ty) {
		return nil, fmt.Errorf("%w: (%d,%d)", ErrTileOutOfRange, tx, ty)
	}
	r, err := a.computeRect(ctx, a.grid.TileRect(tx, ty))
	if err != nil {
		return nil, fmt.Errorf("affine tile (%d,%d): %w", tx, ty, err)
	}
	return r, nil
}

// ComputeAll computes every destination tile on a bounded worker pool and
// hands each to fn. fn may be called concurrently.
func (a *Affine) ComputeAll(ctx context.Context, fn func(tx, ty int, tile *Raster) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Workers)
	for ty := 0; ty < a.grid.TilesDown(); ty++ {
		for tx := 0; tx < a.grid.TilesAcross(); tx++ {
			tx, ty := tx, ty
			g.Go(func() error {
				tile, err := a.Tile(ctx, tx, ty)
				if err != nil {
					return err
				}
				return fn(tx, ty, tile)
			})
		}
	}
	return g.Wait()
}

// Render computes the whole destination image.
func (a *Affine) Render(ctx context.Context) (*Raster, error) {
	out := NewRaster(a.grid.Bounds, a.Bands(), a.dstType)
	var mu sync.Mutex
	err := a.ComputeAll(ctx, func(_, _ int, tile *Raster) error {
		mu.Lock()
		defer mu.Unlock()
		out.CopyFrom(tile)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Affine) computeRect(ctx context.Context, rect Rectangle) (*Raster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a.accel != nil {
		r, err := tryComputeRect(ctx, a.accel, rect)
		if err == nil {
			return r, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.log.Debug("accelerated tile failed, using built-in path", "rect", rect, "err", err)
	}

	switch a.class.Strategy {
	case StrategyCopy:
		return a.shiftTile(ctx, rect, 0, 0)
	case StrategyIntegerTranslate:
		return a.shiftTile(ctx, rect, a.class.ShiftX, a.class.ShiftY)
	case StrategyAxisScale:
		return a.scaleTile(ctx, rect)
	default:
		return a.affineTile(ctx, rect)
	}
}

func (a *Affine) newOutput(rect Rectangle) *Raster {
	out := NewRaster(rect, a.Bands(), a.dstType)
	bands := out.Bands
	for i := 0; i < len(out.Data); i += bands {
		copy(out.Data[i:i+bands], a.bg)
	}
	return out
}

// shiftTile fills rect with source pixels moved by (dx, dy).
func (a *Affine) shiftTile(ctx context.Context, rect Rectangle, dx, dy int) (*Raster, error) {
	out := a.newOutput(rect)
	srcRect := rect.Translate(-dx, -dy).Intersect(a.src.Bounds())
	if srcRect.Empty() {
		return out, nil
	}
	data, err := ReadRegion(ctx, a.src, srcRect)
	if err != nil {
		return nil, err
	}
	out.CopyFrom(data.Translate(dx, dy))
	return out, nil
}

// readSource reads the clipped extent ext with the configured border extender.
func (a *Affine) readSource(ctx context.Context, ext Rectangle) (*Raster, error) {
	left, top, right, bottom := a.cfg.Interpolation.Padding()
	ext = ext.Intersect(a.src.Bounds().Expand(left+1, top+1, right+1, bottom+1))
	if ext.Empty() {
		return nil, nil
	}
	return a.src.ReadExtended(ctx, ext, a.cfg.Border)
}

func (a *Affine) newSampler(data, out *Raster) *sampler {
	return &sampler{
		data:      data,
		out:       out,
		roi:       a.roi,
		noData:    a.cfg.NoData,
		kernel:    a.kernel,
		size:      a.cfg.Interpolation.Taps(),
		bands:     out.Bands,
		bg:        a.bg,
		setNoData: a.cfg.SetDestinationNoData,
	}
}

// scaleTile resamples an axis-aligned scale with per-column and per-row tap tables.
func (a *Affine) scaleTile(ctx context.Context, rect Rectangle) (*Raster, error) {
	c := a.class
	srcBounds := a.src.Bounds()
	out := a.newOutput(rect)
	if rect.Empty() {
		return out, nil
	}

	interp := a.cfg.Interpolation
	cols := getTapTable(rect.Width)
	defer putTapTable(cols)
	rows := getTapTable(rect.Height)
	defer putTapTable(rows)
	fillTapTable(cols, rect.X, c.ScaleX, c.TransX, srcBounds.X, srcBounds.Width, interp, c.Path)
	fillTapTable(rows, rect.Y, c.ScaleY, c.TransY, srcBounds.Y, srcBounds.Height, interp, c.Path)

	data, err := a.readSource(ctx, tapExtent(cols, rows, interp.Taps()))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return out, nil
	}

	smp := a.newSampler(data, out)
	bands := out.Bands
	direct := c.Path == PathNearest && smp.roi == nil && smp.noData == nil && data.DataType == out.DataType
	weighted := c.Path == PathBilinear || c.Path == PathBicubic
	for j := range rows {
		ry := &rows[j]
		if !ry.inside {
			continue
		}
		di := j * rect.Width * bands
		for i := range cols {
			cx := &cols[i]
			if !cx.inside {
				continue
			}
			o := di + i*bands
			switch {
			case direct:
				si := data.Index(0, cx.base, ry.base)
				copy(out.Data[o:o+bands], data.Data[si:si+bands])
			case weighted:
				smp.sample(o, cx.base, ry.base, cx.frac, ry.frac, &cx.w, &ry.w)
			default:
				smp.sample(o, cx.base, ry.base, cx.frac, ry.frac, nil, nil)
			}
		}
	}
	return out, nil
}

// affineTile inverse-maps every destination pixel centre.
func (a *Affine) affineTile(ctx context.Context, rect Rectangle) (*Raster, error) {
	srcBounds := a.src.Bounds()
	out := a.newOutput(rect)
	interp := a.cfg.Interpolation
	data, err := a.readSource(ctx, SourceExtent(rect, a.inverse, interp))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return out, nil
	}

	smp := a.newSampler(data, out)
	taps := interp.Taps()
	bands := out.Bands
	for j := 0; j < rect.Height; j++ {
		y := float64(rect.Y+j) + 0.5
		for i := 0; i < rect.Width; i++ {
			sx, sy := a.inverse.Transform(float64(rect.X+i)+0.5, y)
			sx -= 0.5
			sy -= 0.5
			if !srcBounds.ContainsPoint(nearestTap(sx), nearestTap(sy)) {
				continue
			}
			bx, fx := tapBase(sx, taps)
			by, fy := tapBase(sy, taps)
			smp.sample((j*rect.Width+i)*bands, bx, by, fx, fy, nil, nil)
		}
	}
	return out, nil
}

// sampler gathers neighbourhoods from an extended source read and writes
// destination samples.
type sampler struct {
	data      *Raster
	out       *Raster
	roi       ROI
	noData    *Range
	kernel    Kernel
	size      int
	bands     int
	bg        []uint64
	setNoData bool

	n     Neighborhood
	inROI [16]bool
}

// sample computes every band of the destination pixel at flat offset di.
// (bx, by) is the top-left tap. Precomputed weights bypass the kernel.
func (s *sampler) sample(di, bx, by int, fx, fy float64, wx, wy *[4]float64) {
	size := s.size
	s.n.Size = size
	for j := 0; j < size; j++ {
		for i := 0; i < size; i++ {
			x, y := bx+i, by+j
			s.inROI[j*size+i] = s.data.Rect.ContainsPoint(x, y) && (s.roi == nil || s.roi.Contains(x, y))
		}
	}

	dt := s.data.DataType
	for b := 0; b < s.bands; b++ {
		for j := 0; j < size; j++ {
			for i := 0; i < size; i++ {
				k := j*size + i
				raw := s.data.At(b, bx+i, by+j)
				s.n.Values[k] = DecodeSample(dt, raw)
				s.n.Valid[k] = s.inROI[k] && !isNoData(s.noData, dt, raw)
			}
		}

		var v float64
		var ok bool
		if wx != nil {
			v, ok = weightedSample(&s.n, size, wx, wy)
		} else {
			v, ok = s.kernel.Sample(&s.n, fx, fy)
		}
		if !ok && s.setNoData {
			s.out.Data[di+b] = s.bg[b]
			continue
		}
		s.out.Data[di+b] = EncodeSample(s.out.DataType, v)
	}
}

// axisSource maps destination index d to the source coordinate of its pixel
// centre along one axis, in the convention where pixel k is centred on k.
func axisSource(d int, scale, trans float64) float64 {
	return (float64(d)+0.5-trans)/scale - 0.5
}

func nearestTap(s float64) int {
	return int(math.Floor(s + 0.5))
}

// tapBase returns the first tap of a taps-wide neighbourhood around s and the
// fractional offset of s from the tap at floor(s).
func tapBase(s float64, taps int) (int, float64) {
	if taps == 1 {
		return nearestTap(s), 0
	}
	f := math.Floor(s)
	return int(f) - (taps/2 - 1), s - f
}

// fillTapTable fills t for destination indices start..start+len(t)-1 along an
// axis of scale and translation over source span [lo, lo+size).
func fillTapTable(t []axisTap, start int, scale, trans float64, lo, size int, interp Interpolation, path KernelPath) {
	taps := interp.Taps()
	for i := range t {
		s := axisSource(start+i, scale, trans)
		k := nearestTap(s)
		e := axisTap{inside: k >= lo && k < lo+size}
		e.base, e.frac = tapBase(s, taps)
		switch path {
		case PathBilinear:
			e.w = [4]float64{1 - e.frac, e.frac}
		case PathBicubic:
			e.w = cubicWeights(e.frac, DefaultBicubicSharpness)
		}
		t[i] = e
	}
}

// tapExtent returns the source rectangle covering the taps of every inside entry.
func tapExtent(cols, rows []axisTap, taps int) Rectangle {
	x0, x1, okX := spanOf(cols, taps)
	y0, y1, okY := spanOf(rows, taps)
	if !okX || !okY {
		return Rectangle{}
	}
	return Rectangle{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

func spanOf(t []axisTap, taps int) (lo, hi int, ok bool) {
	for _, e := range t {
		if !e.inside {
			continue
		}
		if !ok {
			lo, hi, ok = e.base, e.base+taps, true
			continue
		}
		lo = min(lo, e.base)
		hi = max(hi, e.base+taps)
	}
	return lo, hi, ok
}
