package gowarp

import (
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
)

// DefaultTileSize is the destination tile edge used when no layout is given.
const DefaultTileSize = 256

// Environment variables read when building defaults.
const (
	EnvLogLevel = "GOWARP_LOG_LEVEL"
	EnvNoAccel  = "GOWARP_NO_ACCEL"
)

// Layout constrains the destination image.
type Layout struct {
	// TileWidth and TileHeight default to DefaultTileSize.
	TileWidth, TileHeight int
	// Bounds overrides the destination rectangle derived from the transform.
	Bounds *Rectangle
	// DataType of the destination samples; zero keeps the source type.
	DataType DataType
}

// Config holds the parameters of an affine resample.
type Config struct {
	Layout        Layout
	Interpolation Interpolation
	// Kernel replaces the built-in kernel of Interpolation and forces the
	// generic per-pixel loop. Its neighbourhood size is Interpolation.Taps().
	Kernel Kernel
	Border BorderExtender
	// Background is written, per band, where no source sample applies.
	Background []float64
	// SetDestinationNoData writes Background for pixels whose taps are all invalid.
	SetDestinationNoData bool
	NoData               *Range
	ROI                  ROI
	Accelerator          Accelerator
	Logger               *slog.Logger
	Workers              int
}

// Option configures an affine resample.
type Option func(*Config)

// WithLayout sets the destination layout.
func WithLayout(l Layout) Option {
	return func(c *Config) { c.Layout = l }
}

// WithTileSize sets the destination tile size.
func WithTileSize(w, h int) Option {
	return func(c *Config) {
		c.Layout.TileWidth = w
		c.Layout.TileHeight = h
	}
}

// WithBounds overrides the destination rectangle.
func WithBounds(r Rectangle) Option {
	return func(c *Config) { c.Layout.Bounds = &r }
}

// WithOutputType sets the destination sample type.
func WithOutputType(dt DataType) Option {
	return func(c *Config) { c.Layout.DataType = dt }
}

func WithInterpolation(i Interpolation) Option {
	return func(c *Config) { c.Interpolation = i }
}

// WithKernel installs a custom kernel sampled over the taps of interp.
func WithKernel(interp Interpolation, k Kernel) Option {
	return func(c *Config) {
		c.Interpolation = interp
		c.Kernel = k
	}
}

func WithBorder(b BorderExtender) Option {
	return func(c *Config) { c.Border = b }
}

// WithBackground sets the per-band background values.
func WithBackground(values ...float64) Option {
	return func(c *Config) { c.Background = values }
}

func WithDestinationNoData(on bool) Option {
	return func(c *Config) { c.SetDestinationNoData = on }
}

// WithNoData marks source samples inside r as invalid.
func WithNoData(r *Range) Option {
	return func(c *Config) { c.NoData = r }
}

// WithROI restricts sampling to source pixels inside roi.
func WithROI(roi ROI) Option {
	return func(c *Config) { c.ROI = roi }
}

// WithAccelerator sets the accelerator tried before the built-in strategies.
// A nil accelerator disables acceleration.
func WithAccelerator(a Accelerator) Option {
	return func(c *Config) { c.Accelerator = a }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithWorkers bounds the number of tiles computed concurrently by ComputeAll.
func WithWorkers(n int) Option {
	return func(c *Config) { c.Workers = n }
}

func defaultConfig() Config {
	c := Config{
		Interpolation: InterpNearest,
		Border:        BorderExtender{Mode: BorderCopy},
		Logger:        defaultLogger(),
		Workers:       runtime.NumCPU(),
	}
	if !accelDisabled() {
		c.Accelerator = NewBuiltinAccelerator()
	}
	return c
}

func (c *Config) normalize() {
	if c.Layout.TileWidth <= 0 {
		c.Layout.TileWidth = DefaultTileSize
	}
	if c.Layout.TileHeight <= 0 {
		c.Layout.TileHeight = DefaultTileSize
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.Logger == nil {
		c.Logger = defaultLogger()
	}
}

var defaultLogger = sync.OnceValue(func() *slog.Logger {
	return newLogger(os.Getenv(EnvLogLevel))
})

// newLogger returns a text logger on stderr at the named level; unknown names select warn.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func accelDisabled() bool {
	switch strings.ToLower(os.Getenv(EnvNoAccel)) {
	case "", "0", "false":
		return false
	}
	return true
}
