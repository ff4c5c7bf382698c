package gowarp

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sys/cpu"
)

// ErrAccelUnsupported is returned by accelerators that cannot serve a request.
var ErrAccelUnsupported = errors.New("accelerator does not support this operation")

// AccelRequest describes a resample an accelerator may take over.
type AccelRequest struct {
	Source         TileSource
	Classification Classification
	Interpolation  Interpolation
	// Bounds is the destination rectangle.
	Bounds     Rectangle
	DataType   DataType
	Background []float64
	NoData     *Range
	Border     BorderExtender
}

// Accelerator offers an alternative implementation of an affine resample.
// Any error, nil result or panic makes the caller fall back to the built-in
// strategies; accelerator failures are never reported to the user.
type Accelerator interface {
	Accelerate(req AccelRequest) (AcceleratedOp, error)
}

// AcceleratedOp computes destination rectangles for an accepted request.
type AcceleratedOp interface {
	ComputeRect(ctx context.Context, rect Rectangle) (*Raster, error)
}

// tryAccelerate calls a, converting a panic into an error.
func tryAccelerate(a Accelerator, req AccelRequest) (op AcceleratedOp, err error) {
	defer func() {
		if r := recover(); r != nil {
			op, err = nil, fmt.Errorf("accelerator panic: %v", r)
		}
	}()
	op, err = a.Accelerate(req)
	if err == nil && op == nil {
		err = errors.New("accelerator returned no operation")
	}
	return op, err
}

// tryComputeRect runs op for one rectangle, converting a panic into an error.
func tryComputeRect(ctx context.Context, op AcceleratedOp, rect Rectangle) (r *Raster, err error) {
	defer func() {
		if p := recover(); p != nil {
			r, err = nil, fmt.Errorf("accelerator panic: %v", p)
		}
	}()
	r, err = op.ComputeRect(ctx, rect)
	if err == nil && (r == nil || r.Rect != rect) {
		err = errors.New("accelerator returned a mismatched raster")
	}
	return r, err
}

// BuiltinAccelerator replicates rows for nearest-neighbour axis scales.
// Consecutive destination rows that sample the same source row are copied
// instead of resampled.
type BuiltinAccelerator struct {
	available bool
}

// NewBuiltinAccelerator returns the accelerator enabled by default. It is only
// available on CPUs with wide vector copies (AVX2 or ASIMD).
func NewBuiltinAccelerator() *BuiltinAccelerator {
	return &BuiltinAccelerator{available: cpu.X86.HasAVX2 || cpu.ARM64.HasASIMD}
}

// Available reports whether the accelerator accepts any request on this CPU.
func (b *BuiltinAccelerator) Available() bool { return b.available }

func (b *BuiltinAccelerator) Accelerate(req AccelRequest) (AcceleratedOp, error) {
	c := req.Classification
	switch {
	case !b.available:
		return nil, fmt.Errorf("%w: no vector unit", ErrAccelUnsupported)
	case c.Strategy != StrategyAxisScale || c.Path != PathNearest:
		return nil, fmt.Errorf("%w: %s", ErrAccelUnsupported, c)
	case req.NoData != nil:
		return nil, fmt.Errorf("%w: no-data range", ErrAccelUnsupported)
	case req.DataType != req.Source.DataType():
		return nil, fmt.Errorf("%w: type conversion", ErrAccelUnsupported)
	}
	return &rowReplicator{req: req}, nil
}

type rowReplicator struct {
	req AccelRequest
}

func (r *rowReplicator) ComputeRect(ctx context.Context, rect Rectangle) (*Raster, error) {
	src := r.req.Source
	c := r.req.Classification
	srcBounds := src.Bounds()
	out := NewRaster(rect, src.Bands(), r.req.DataType)
	out.Fill(r.req.Background)
	if rect.Empty() {
		return out, nil
	}

	cols := getTapTable(rect.Width)
	defer putTapTable(cols)
	rows := getTapTable(rect.Height)
	defer putTapTable(rows)
	fillTapTable(cols, rect.X, c.ScaleX, c.TransX, srcBounds.X, srcBounds.Width, InterpNearest, PathNearest)
	fillTapTable(rows, rect.Y, c.ScaleY, c.TransY, srcBounds.Y, srcBounds.Height, InterpNearest, PathNearest)
	ext := tapExtent(cols, rows, 1)
	if ext.Empty() {
		return out, nil
	}
	data, err := ReadRegion(ctx, src, ext)
	if err != nil {
		return nil, err
	}

	bands := out.Bands
	rowLen := rect.Width * bands
	replicable := false
	for j := range rows {
		ry := rows[j]
		if !ry.inside {
			replicable = false
			continue
		}
		di := j * rowLen
		if replicable && ry.base == rows[j-1].base {
			copy(out.Data[di:di+rowLen], out.Data[di-rowLen:di])
			continue
		}
		for i := range cols {
			cx := cols[i]
			if !cx.inside {
				continue
			}
			si := data.Index(0, cx.base, ry.base)
			copy(out.Data[di+i*bands:di+(i+1)*bands], data.Data[si:si+bands])
		}
		replicable = true
	}
	return out, nil
}
