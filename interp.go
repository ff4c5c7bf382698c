package gowarp

import (
	"fmt"
	"math"
)

// Interpolation names the sampling kernel family.
type Interpolation uint8

const (
	InterpNearest Interpolation = iota
	InterpBilinear
	InterpBicubic
)

// DefaultBicubicSharpness is the cubic convolution coefficient used by Bicubic
// when none is configured (Keys, a = -0.5).
const DefaultBicubicSharpness = 0.5

func (i Interpolation) String() string {
	switch i {
	case InterpNearest:
		return "nearest"
	case InterpBilinear:
		return "bilinear"
	case InterpBicubic:
		return "bicubic"
	default:
		return fmt.Sprintf("Interpolation(%d)", uint8(i))
	}
}

// Valid reports whether i is a known interpolation.
func (i Interpolation) Valid() bool {
	return i <= InterpBicubic
}

// Taps returns the neighbourhood width along each axis.
func (i Interpolation) Taps() int {
	switch i {
	case InterpBilinear:
		return 2
	case InterpBicubic:
		return 4
	default:
		return 1
	}
}

// Padding returns how many source pixels beyond the mapped position the kernel reads.
func (i Interpolation) Padding() (left, top, right, bottom int) {
	switch i {
	case InterpBicubic:
		return 1, 1, 2, 2
	default:
		return 0, 0, 1, 1
	}
}

// Neighborhood holds the source taps around one sampling position, row-major,
// Size x Size of them. Valid marks taps inside the ROI and outside the no-data range.
type Neighborhood struct {
	Size   int
	Values [16]float64
	Valid  [16]bool
}

// Kernel turns a neighbourhood and the fractional offsets (fx, fy) of the
// sampling position within it into one output sample. The returned value is
// meaningful even when valid is false: it is the unmasked result.
type Kernel interface {
	Sample(n *Neighborhood, fx, fy float64) (value float64, valid bool)
}

// NewKernel returns the kernel for an interpolation with default parameters.
func NewKernel(interp Interpolation) Kernel {
	switch interp {
	case InterpBilinear:
		return Bilinear{}
	case InterpBicubic:
		return Bicubic{Sharpness: DefaultBicubicSharpness}
	default:
		return Nearest{}
	}
}

// Nearest returns the single tap.
type Nearest struct{}

func (Nearest) Sample(n *Neighborhood, _, _ float64) (float64, bool) {
	return n.Values[0], n.Valid[0]
}

// Bilinear weights a 2x2 neighbourhood by the fractional offsets.
type Bilinear struct{}

func (Bilinear) Sample(n *Neighborhood, fx, fy float64) (float64, bool) {
	wx := [4]float64{1 - fx, fx}
	wy := [4]float64{1 - fy, fy}
	return weightedSample(n, 2, &wx, &wy)
}

// Bicubic weights a 4x4 neighbourhood with a cubic convolution kernel.
type Bicubic struct {
	// Sharpness is the magnitude of the kernel's negative lobe; 0.5 reproduces
	// Catmull-Rom. Zero selects DefaultBicubicSharpness.
	Sharpness float64
}

func (k Bicubic) Sample(n *Neighborhood, fx, fy float64) (float64, bool) {
	a := k.Sharpness
	if a == 0 {
		a = DefaultBicubicSharpness
	}
	wx := cubicWeights(fx, a)
	wy := cubicWeights(fy, a)
	return weightedSample(n, 4, &wx, &wy)
}

// cubicWeights returns the weights of taps at offsets -1, 0, 1, 2.
func cubicWeights(f, a float64) [4]float64 {
	return [4]float64{
		cubic(1+f, a),
		cubic(f, a),
		cubic(1-f, a),
		cubic(2-f, a),
	}
}

func cubic(t, a float64) float64 {
	t = math.Abs(t)
	switch {
	case t <= 1:
		return (2-a)*t*t*t - (3-a)*t*t + 1
	case t < 2:
		return -a*t*t*t + 5*a*t*t - 8*a*t + 4*a
	default:
		return 0
	}
}

// minWeight is the smallest renormalisation total trusted before falling back to an unweighted mean.
const minWeight = 1e-6

// weightedSample combines size x size taps. Invalid taps are dropped and the
// remaining weights renormalised; if they carry no weight the valid taps are
// averaged; if no tap is valid the pixel is invalid.
func weightedSample(n *Neighborhood, size int, wx, wy *[4]float64) (float64, bool) {
	var all, sum, wsum, plain float64
	valid := 0
	for j := 0; j < size; j++ {
		for i := 0; i < size; i++ {
			k := j*size + i
			w := wx[i] * wy[j]
			v := n.Values[k]
			all += w * v
			if n.Valid[k] {
				sum += w * v
				wsum += w
				plain += v
				valid++
			}
		}
	}

	switch {
	case valid == size*size:
		return all, true
	case valid == 0:
		return all, false
	case math.Abs(wsum) >= minWeight:
		return sum / wsum, true
	default:
		return plain / float64(valid), true
	}
}
