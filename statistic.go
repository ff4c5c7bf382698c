package gowarp

import (
	"fmt"
	"math"
)

// StatKind identifies a statistic. The numeric ids are stable.
type StatKind int

const (
	StatMean StatKind = iota
	StatSum
	StatMax
	StatMin
	StatExtrema
	StatVariance
	StatDevStd
	// The kinds below are complex statistics; the accumulator rejects them.
	StatHistogram
	StatMode
	StatMedian
)

var statNames = [...]string{
	StatMean:      "mean",
	StatSum:       "sum",
	StatMax:       "max",
	StatMin:       "min",
	StatExtrema:   "extrema",
	StatVariance:  "variance",
	StatDevStd:    "devstd",
	StatHistogram: "histogram",
	StatMode:      "mode",
	StatMedian:    "median",
}

func (k StatKind) String() string {
	if k >= 0 && int(k) < len(statNames) {
		return statNames[k]
	}
	return fmt.Sprintf("StatKind(%d)", int(k))
}

// Simple reports whether k can be merged from per-tile partials.
func (k StatKind) Simple() bool {
	return k >= StatMean && k <= StatDevStd
}

// Statistic accumulates one statistic kind for one band. The zero totals of
// a fresh Statistic are its initial state; Merge adds counts and sums and
// takes the minimum and maximum, so merge order does not matter.
type Statistic struct {
	kind  StatKind
	count int64
	sum   float64
	sumSq float64
	min   float64
	max   float64
}

// NewStatistic returns an empty accumulator for a simple kind.
func NewStatistic(kind StatKind) (*Statistic, error) {
	if !kind.Simple() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedStatistic, kind)
	}
	s := &Statistic{kind: kind}
	s.Clear()
	return s, nil
}

func (s *Statistic) Kind() StatKind { return s.kind }

// Count returns the number of samples accumulated.
func (s *Statistic) Count() int64 { return s.count }

func (s *Statistic) Sum() float64 { return s.sum }

// Add accumulates one sample.
func (s *Statistic) Add(v float64) {
	s.count++
	switch s.kind {
	case StatMean, StatSum:
		s.sum += v
	case StatMax:
		s.max = math.Max(s.max, v)
	case StatMin:
		s.min = math.Min(s.min, v)
	case StatExtrema:
		s.min = math.Min(s.min, v)
		s.max = math.Max(s.max, v)
	case StatVariance, StatDevStd:
		s.sum += v
		s.sumSq += v * v
	}
}

// Merge folds o into s. Both must be of the same kind.
func (s *Statistic) Merge(o *Statistic) error {
	if o.kind != s.kind {
		return fmt.Errorf("cannot merge %s into %s", o.kind, s.kind)
	}
	s.count += o.count
	s.sum += o.sum
	s.sumSq += o.sumSq
	s.min = math.Min(s.min, o.min)
	s.max = math.Max(s.max, o.max)
	return nil
}

// Result returns the value of the statistic. Mean and variance of too few
// samples are NaN; Min and Max of no samples are +Inf and -Inf. For
// StatExtrema it returns the range max-min; use Extrema for both ends.
func (s *Statistic) Result() float64 {
	switch s.kind {
	case StatMean:
		if s.count == 0 {
			return math.NaN()
		}
		return s.sum / float64(s.count)
	case StatSum:
		return s.sum
	case StatMax:
		return s.max
	case StatMin:
		return s.min
	case StatExtrema:
		return s.max - s.min
	case StatVariance:
		return s.variance()
	case StatDevStd:
		return math.Sqrt(s.variance())
	default:
		return math.NaN()
	}
}

// Extrema returns the smallest and largest samples seen.
func (s *Statistic) Extrema() (min, max float64) {
	return s.min, s.max
}

// Values returns Result as a slice, or [min, max] for StatExtrema.
func (s *Statistic) Values() []float64 {
	if s.kind == StatExtrema {
		return []float64{s.min, s.max}
	}
	return []float64{s.Result()}
}

// variance is the sample variance with n-1 in the denominator.
func (s *Statistic) variance() float64 {
	if s.count < 2 {
		return math.NaN()
	}
	n := float64(s.count)
	v := (s.sumSq - s.sum*s.sum/n) / (n - 1)
	if v < 0 {
		// cancellation on near-constant data
		return 0
	}
	return v
}

// Clear resets the statistic to its initial state.
func (s *Statistic) Clear() {
	s.count = 0
	s.sum = 0
	s.sumSq = 0
	s.min = math.Inf(1)
	s.max = math.Inf(-1)
}

func (s *Statistic) String() string {
	if s.kind == StatExtrema {
		return fmt.Sprintf("%s[%v, %v] n=%d", s.kind, s.min, s.max, s.count)
	}
	return fmt.Sprintf("%s=%v n=%d", s.kind, s.Result(), s.count)
}
