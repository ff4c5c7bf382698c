package gowarp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNoStatistics is returned when no statistic kind is requested.
	ErrNoStatistics = errors.New("statistic types not present")
	// ErrUnsupportedStatistic is returned for complex or unknown statistic kinds.
	ErrUnsupportedStatistic = errors.New("wrong statistic type")
	// ErrInvalidBand is returned for band indices outside the source.
	ErrInvalidBand = errors.New("invalid band")
	// ErrInvalidPeriod is returned for sampling periods below one.
	ErrInvalidPeriod = errors.New("invalid sampling period")
	// ErrStatisticNotComputed is returned when querying a band or kind that is not accumulated.
	ErrStatisticNotComputed = errors.New("statistic not computed")
)

type statsConfig struct {
	bands            []int
	kinds            []StatKind
	xPeriod, yPeriod int
	roi              ROI
	noData           *Range
	logger           *slog.Logger
	workers          int
}

// StatsOption configures a statistics operation.
type StatsOption func(*statsConfig)

// WithBands selects the source bands to accumulate. All bands by default.
func WithBands(bands ...int) StatsOption {
	return func(c *statsConfig) { c.bands = append([]int{}, bands...) }
}

// WithStatistics selects the statistic kinds to accumulate. Required.
func WithStatistics(kinds ...StatKind) StatsOption {
	return func(c *statsConfig) { c.kinds = kinds }
}

// WithPeriod samples every x-th column and y-th row, counted from the image origin.
func WithPeriod(x, y int) StatsOption {
	return func(c *statsConfig) {
		c.xPeriod = x
		c.yPeriod = y
	}
}

func WithStatsROI(roi ROI) StatsOption {
	return func(c *statsConfig) { c.roi = roi }
}

// WithStatsNoData excludes samples inside r.
func WithStatsNoData(r *Range) StatsOption {
	return func(c *statsConfig) { c.noData = r }
}

func WithStatsLogger(l *slog.Logger) StatsOption {
	return func(c *statsConfig) { c.logger = l }
}

// WithStatsWorkers bounds the concurrency of ComputeAll.
func WithStatsWorkers(n int) StatsOption {
	return func(c *statsConfig) { c.workers = n }
}

// Stats accumulates per-band statistics over the tiles of a source as they
// are computed. Only tiles passed through ComputeTile contribute; computing
// a tile twice without Clear counts it twice.
type Stats struct {
	id  uuid.UUID
	src TileSource
	cfg statsConfig
	log *slog.Logger

	mu     sync.Mutex
	totals [][]*Statistic // [selected band][kind]
}

// NewStats validates the configuration and returns an operation with empty totals.
func NewStats(src TileSource, opts ...StatsOption) (*Stats, error) {
	if src == nil {
		return nil, ErrNilSource
	}
	cfg := statsConfig{xPeriod: 1, yPeriod: 1}
	for _, opt := range opts {
		opt(&cfg)
	}

	if len(cfg.kinds) == 0 {
		return nil, ErrNoStatistics
	}
	for _, k := range cfg.kinds {
		if !k.Simple() {
			return nil, fmt.Errorf("%w: %s (id %d)", ErrUnsupportedStatistic, k, int(k))
		}
	}
	if cfg.bands == nil {
		cfg.bands = make([]int, src.Bands())
		for i := range cfg.bands {
			cfg.bands[i] = i
		}
	}
	if len(cfg.bands) == 0 {
		return nil, fmt.Errorf("%w: no bands selected", ErrInvalidBand)
	}
	for _, b := range cfg.bands {
		if b < 0 || b >= src.Bands() {
			return nil, fmt.Errorf("%w: %d not in [0,%d)", ErrInvalidBand, b, src.Bands())
		}
	}
	if cfg.xPeriod < 1 || cfg.yPeriod < 1 {
		return nil, fmt.Errorf("%w: (%d,%d)", ErrInvalidPeriod, cfg.xPeriod, cfg.yPeriod)
	}
	if cfg.workers <= 0 {
		cfg.workers = runtime.NumCPU()
	}
	if cfg.logger == nil {
		cfg.logger = defaultLogger()
	}

	s := &Stats{
		id:  uuid.New(),
		src: src,
		cfg: cfg,
	}
	s.log = cfg.logger.With("op", s.id.String())
	s.totals = s.newPartial()
	return s, nil
}

// ID returns the operation id attached to log records.
func (s *Stats) ID() uuid.UUID { return s.id }

// Bands returns the selected source bands.
func (s *Stats) Bands() []int { return append([]int(nil), s.cfg.bands...) }

// Kinds returns the accumulated statistic kinds.
func (s *Stats) Kinds() []StatKind { return append([]StatKind(nil), s.cfg.kinds...) }

func (s *Stats) newPartial() [][]*Statistic {
	p := make([][]*Statistic, len(s.cfg.bands))
	for i := range p {
		p[i] = make([]*Statistic, len(s.cfg.kinds))
		for j, k := range s.cfg.kinds {
			p[i][j], _ = NewStatistic(k)
		}
	}
	return p
}

// ComputeTile reads source tile (tx, ty), folds its samples into the totals
// and returns the tile unchanged.
func (s *Stats) ComputeTile(ctx context.Context, tx, ty int) (*Raster, error) {
	tile, err := s.src.Tile(ctx, tx, ty)
	if err != nil {
		return nil, fmt.Errorf("statistics tile (%d,%d): %w", tx, ty, err)
	}

	grid := s.src.Grid()
	if s.cfg.xPeriod > grid.TileWidth || s.cfg.yPeriod > grid.TileHeight {
		return tile, nil
	}

	partial := s.newPartial()
	s.accumulate(tile, partial)

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.totals {
		for j := range s.totals[i] {
			// kinds match by construction
			_ = s.totals[i][j].Merge(partial[i][j])
		}
	}
	return tile, nil
}

// ComputeAll accumulates every tile of the source on a bounded worker pool.
func (s *Stats) ComputeAll(ctx context.Context) error {
	grid := s.src.Grid()
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.workers)
	for ty := 0; ty < grid.TilesDown(); ty++ {
		for tx := 0; tx < grid.TilesAcross(); tx++ {
			tx, ty := tx, ty
			g.Go(func() error {
				_, err := s.ComputeTile(ctx, tx, ty)
				return err
			})
		}
	}
	return g.Wait()
}

// Statistics returns copies of the current totals indexed by selected band
// position and then by kind position.
func (s *Stats) Statistics() [][]Statistic {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]Statistic, len(s.totals))
	for i, row := range s.totals {
		out[i] = make([]Statistic, len(row))
		for j, st := range row {
			out[i][j] = *st
		}
	}
	return out
}

// Result returns a copy of the total for a source band and kind.
func (s *Stats) Result(band int, kind StatKind) (Statistic, error) {
	bi, ki := -1, -1
	for i, b := range s.cfg.bands {
		if b == band {
			bi = i
			break
		}
	}
	for j, k := range s.cfg.kinds {
		if k == kind {
			ki = j
			break
		}
	}
	if bi < 0 || ki < 0 {
		return Statistic{}, fmt.Errorf("%w: band %d %s", ErrStatisticNotComputed, band, kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.totals[bi][ki], nil
}

// Clear resets every total; tiles computed afterwards accumulate from zero.
func (s *Stats) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.totals {
		for _, st := range row {
			st.Clear()
		}
	}
	s.log.Debug("statistics cleared")
}

// accumulate adds the valid samples of tile to partial, dispatching on the
// storage class of the samples.
func (s *Stats) accumulate(tile *Raster, partial [][]*Statistic) {
	rect := tile.Rect
	roi := s.cfg.roi
	if roi != nil && !roi.Bounds().Empty() {
		if !roi.IntersectsRect(rect) {
			return
		}
		if roi.ContainsRect(rect) {
			roi = nil
		}
	} else {
		roi = nil
	}

	p := statsPass{
		tile:    tile,
		partial: partial,
		bands:   s.cfg.bands,
		roi:     roi,
		origin:  s.src.Bounds(),
		xPeriod: s.cfg.xPeriod,
		yPeriod: s.cfg.yPeriod,
	}
	var noData func(uint64) bool
	if nd := s.cfg.noData; nd != nil {
		dt := tile.DataType
		noData = func(raw uint64) bool { return isNoData(nd, dt, raw) }
	}

	switch tile.DataType {
	case DTBit, DTUint8, DTUint16:
		accumulateSamples(&p, func(raw uint64) uint16 { return uint16(raw) }, noData)
	case DTInt8, DTInt16:
		accumulateSamples(&p, func(raw uint64) int16 { return int16(raw) }, noData)
	case DTUint32:
		accumulateSamples(&p, func(raw uint64) int64 { return int64(uint32(raw)) }, noData)
	case DTInt32:
		accumulateSamples(&p, func(raw uint64) int64 { return int64(int32(raw)) }, noData)
	case DTFloat32:
		accumulateSamples(&p, func(raw uint64) float32 { return math.Float32frombits(uint32(raw)) }, noData)
	case DTFloat64:
		accumulateSamples(&p, math.Float64frombits, noData)
	}
}

type statsPass struct {
	tile             *Raster
	partial          [][]*Statistic
	bands            []int
	roi              ROI
	origin           Rectangle
	xPeriod, yPeriod int
}

type sampleValue interface {
	~uint16 | ~int16 | ~int64 | ~float32 | ~float64
}

// accumulateSamples is the typed inner loop. Sampled pixels sit on the period
// grid anchored at the image origin, so tiles agree on which pixels count.
func accumulateSamples[T sampleValue](p *statsPass, decode func(uint64) T, noData func(uint64) bool) {
	rect := p.tile.Rect
	x0 := alignUp(rect.X, p.origin.X, p.xPeriod)
	y0 := alignUp(rect.Y, p.origin.Y, p.yPeriod)
	bands := p.tile.Bands
	data := p.tile.Data

	for y := y0; y < rect.MaxY(); y += p.yPeriod {
		row := (y - rect.Y) * rect.Width * bands
		for x := x0; x < rect.MaxX(); x += p.xPeriod {
			if p.roi != nil && !p.roi.Contains(x, y) {
				continue
			}
			base := row + (x-rect.X)*bands
			for i, b := range p.bands {
				raw := data[base+b]
				if noData != nil && noData(raw) {
					continue
				}
				v := float64(decode(raw))
				for _, st := range p.partial[i] {
					st.Add(v)
				}
			}
		}
	}
}

// alignUp returns the first coordinate >= v on the grid origin + k*period.
func alignUp(v, origin, period int) int {
	off := (v - origin) % period
	if off < 0 {
		off += period
	}
	if off == 0 {
		return v
	}
	return v + period - off
}
