package gowarp

import (
	"errors"
	"fmt"
	"math"
)

// Domain is the element domain of a Range.
type Domain uint8

const (
	DomainInteger Domain = iota
	DomainFloat
)

func (d Domain) String() string {
	if d == DomainFloat {
		return "float"
	}
	return "integer"
}

var (
	// ErrRangeNaNBound is returned when a float range mixes a NaN bound with a non-NaN bound.
	ErrRangeNaNBound = errors.New("NaN values can only be set inside a single-point range")
	// ErrRangeEmptyPoint is returned when a single-point range excludes both bounds.
	ErrRangeEmptyPoint = errors.New("cannot create a single-point range without minimum and maximum bounds included")
)

// RangeError describes a rejected Range construction.
type RangeError struct {
	Min, Max float64
	Err      error
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("invalid range [%v, %v]: %v", e.Min, e.Max, e.Err)
}

func (e *RangeError) Unwrap() error { return e.Err }

// Range is an immutable interval of sample values. It is safe for concurrent use.
//
// A Range whose bounds are equal collapses to a single point; a float point
// Range built from NaN matches values by bit pattern, so it can serve as a
// NaN no-data sentinel.
type Range struct {
	domain      Domain
	min, max    float64
	imin, imax  int64
	minIncluded bool
	maxIncluded bool
	isPoint     bool
	isNaN       bool
	nanBits     uint64
	nanIncluded bool
}

// NewRangeInt creates an integer Range. Bounds given in reverse order are swapped;
// the inclusion flags stay with the min and max positions.
func NewRangeInt(min, max int64, minIncluded, maxIncluded bool) (*Range, error) {
	r := &Range{domain: DomainInteger}
	switch {
	case min < max:
		r.imin, r.imax = min, max
		r.minIncluded, r.maxIncluded = minIncluded, maxIncluded
	case min > max:
		r.imin, r.imax = max, min
		r.minIncluded, r.maxIncluded = minIncluded, maxIncluded
	default:
		if !minIncluded && !maxIncluded {
			return nil, &RangeError{Min: float64(min), Max: float64(max), Err: ErrRangeEmptyPoint}
		}
		r.imin, r.imax = min, min
		r.isPoint = true
		r.minIncluded, r.maxIncluded = true, true
	}
	r.min, r.max = float64(r.imin), float64(r.imax)
	return r, nil
}

// NewRangeFloat creates a floating point Range.
//
// nanIncluded decides whether NaN counts as inside a non-point interval; it is
// ignored for single-point ranges. A NaN point range is built by passing NaN
// for both bounds.
func NewRangeFloat(min, max float64, minIncluded, maxIncluded, nanIncluded bool) (*Range, error) {
	minNaN, maxNaN := math.IsNaN(min), math.IsNaN(max)
	if minNaN != maxNaN {
		return nil, &RangeError{Min: min, Max: max, Err: ErrRangeNaNBound}
	}

	r := &Range{domain: DomainFloat}
	switch {
	case min < max:
		r.min, r.max = min, max
		r.minIncluded, r.maxIncluded = minIncluded, maxIncluded
		r.nanIncluded = nanIncluded
	case min > max:
		r.min, r.max = max, min
		r.minIncluded, r.maxIncluded = minIncluded, maxIncluded
		r.nanIncluded = nanIncluded
	default:
		// equal bounds, or both NaN
		if !minIncluded && !maxIncluded {
			return nil, &RangeError{Min: min, Max: max, Err: ErrRangeEmptyPoint}
		}
		r.min, r.max = min, min
		r.isPoint = true
		r.minIncluded, r.maxIncluded = true, true
		if minNaN {
			r.isNaN = true
			r.nanBits = math.Float64bits(min)
		}
	}
	return r, nil
}

// NewNaNRange returns the single-point Range matching the canonical NaN.
func NewNaNRange() *Range {
	r, _ := NewRangeFloat(math.NaN(), math.NaN(), true, true, false)
	return r
}

// Contains reports whether v lies inside the range.
//
// For non-point float ranges the NaN policy falls out of the ordered
// comparisons: with nanIncluded=false the test is "not below min and not
// above max" written as v >= min && v <= max, which NaN never satisfies, so
// NaN is outside; with nanIncluded=true the test is "neither below nor
// above" written as !(v < min) && !(v > max), which NaN always satisfies.
func (r *Range) Contains(v float64) bool {
	if r.domain == DomainInteger {
		if math.IsNaN(v) {
			return false
		}
		return r.containsOrdered(v)
	}

	if r.isPoint {
		if r.isNaN {
			return math.Float64bits(v) == r.nanBits
		}
		return r.min == v
	}

	if r.nanIncluded {
		var lower, upper bool
		if r.minIncluded {
			lower = v < r.min
		} else {
			lower = v <= r.min
		}
		if r.maxIncluded {
			upper = v > r.max
		} else {
			upper = v >= r.max
		}
		return !lower && !upper
	}

	return r.containsOrdered(v)
}

func (r *Range) containsOrdered(v float64) bool {
	if r.isPoint {
		return v == r.min
	}
	var notLower, notUpper bool
	if r.minIncluded {
		notLower = v >= r.min
	} else {
		notLower = v > r.min
	}
	if r.maxIncluded {
		notUpper = v <= r.max
	} else {
		notUpper = v < r.max
	}
	return notLower && notUpper
}

// ContainsInt reports whether the integer v lies inside the range.
func (r *Range) ContainsInt(v int64) bool {
	if r.domain == DomainFloat {
		return r.Contains(float64(v))
	}
	if r.isPoint {
		return r.imin == v
	}
	var lower, upper bool
	if r.minIncluded {
		lower = v < r.imin
	} else {
		lower = v <= r.imin
	}
	if r.maxIncluded {
		upper = v > r.imax
	} else {
		upper = v >= r.imax
	}
	return !lower && !upper
}

// Domain returns the element domain.
func (r *Range) Domain() Domain { return r.domain }

// Min returns the lower bound.
func (r *Range) Min() float64 { return r.min }

// Max returns the upper bound.
func (r *Range) Max() float64 { return r.max }

// MinIncluded reports whether the lower bound belongs to the range.
func (r *Range) MinIncluded() bool { return r.minIncluded }

// MaxIncluded reports whether the upper bound belongs to the range.
func (r *Range) MaxIncluded() bool { return r.maxIncluded }

// IsPoint reports whether the range collapsed to a single value.
func (r *Range) IsPoint() bool { return r.isPoint }

// IsNaN reports whether the range is the NaN single-point sentinel.
func (r *Range) IsNaN() bool { return r.isNaN }

// NaNIncluded reports the NaN policy of a non-point float range.
func (r *Range) NaNIncluded() bool { return r.nanIncluded }

func (r *Range) String() string {
	if r.isPoint {
		return fmt.Sprintf("[%v]", r.min)
	}
	lb, rb := "(", ")"
	if r.minIncluded {
		lb = "["
	}
	if r.maxIncluded {
		rb = "]"
	}
	return fmt.Sprintf("%s%v, %v%s", lb, r.min, r.max, rb)
}

// isNoData tests a stored sample against a no-data range using the
// comparison matching the sample type. A nil range never matches.
func isNoData(nd *Range, dt DataType, raw uint64) bool {
	if nd == nil {
		return false
	}
	if !dt.IsFloat() && nd.domain == DomainInteger {
		switch dt {
		case DTInt8:
			return nd.ContainsInt(int64(int8(raw)))
		case DTInt16:
			return nd.ContainsInt(int64(int16(raw)))
		case DTInt32:
			return nd.ContainsInt(int64(int32(raw)))
		case DTUint32:
			return nd.ContainsInt(int64(uint32(raw)))
		default:
			return nd.ContainsInt(int64(DecodeSample(dt, raw)))
		}
	}
	if dt == DTFloat32 && nd.isNaN {
		// compare in single precision, widening changes the NaN payload
		return math.Float32bits(float32(math.Float64frombits(nd.nanBits))) == uint32(raw)
	}
	return nd.Contains(DecodeSample(dt, raw))
}
