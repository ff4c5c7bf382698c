package gowarp

import (
	"errors"
	"math"
	"testing"
)

func TestRangeFloatContains(t *testing.T) {
	tests := []struct {
		name                    string
		min, max                float64
		minInc, maxInc, nanIncl bool
		value                   float64
		want                    bool
	}{
		{"closed inside", 0, 10, true, true, false, 5, true},
		{"closed at min", 0, 10, true, true, false, 0, true},
		{"closed at max", 0, 10, true, true, false, 10, true},
		{"open at min", 0, 10, false, true, false, 0, false},
		{"open at max", 0, 10, true, false, false, 10, false},
		{"below", 0, 10, true, true, false, -0.5, false},
		{"above", 0, 10, true, true, false, 10.5, false},
		{"nan policy off excludes nan", 0, 10, true, true, false, math.NaN(), false},
		{"nan policy on includes nan", 0, 10, true, true, true, math.NaN(), true},
		{"nan policy on keeps bounds", 0, 10, false, false, true, 10, false},
		{"infinite upper", 0, math.Inf(1), true, true, false, 1e300, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRangeFloat(tt.min, tt.max, tt.minInc, tt.maxInc, tt.nanIncl)
			if err != nil {
				t.Fatalf("Failed to create range: %v", err)
			}
			if got := r.Contains(tt.value); got != tt.want {
				t.Errorf("%s.Contains(%v) = %v, expected %v", r, tt.value, got, tt.want)
			}
		})
	}
}

func TestRangeSwapKeepsFlagPositions(t *testing.T) {
	r, err := NewRangeInt(10, 2, false, true)
	if err != nil {
		t.Fatalf("Failed to create range: %v", err)
	}
	if r.Min() != 2 || r.Max() != 10 {
		t.Fatalf("Expected bounds [2, 10], got [%v, %v]", r.Min(), r.Max())
	}
	if r.MinIncluded() || !r.MaxIncluded() {
		t.Errorf("Expected min excluded and max included, got %v/%v", r.MinIncluded(), r.MaxIncluded())
	}
	if r.ContainsInt(2) {
		t.Error("Expected 2 to be outside")
	}
	if !r.ContainsInt(10) {
		t.Error("Expected 10 to be inside")
	}

	f, err := NewRangeFloat(5, -5, true, false, false)
	if err != nil {
		t.Fatalf("Failed to create range: %v", err)
	}
	if !f.Contains(-5) || f.Contains(5) {
		t.Errorf("Swapped float range %s has wrong inclusion", f)
	}
}

func TestRangePoint(t *testing.T) {
	r, err := NewRangeInt(7, 7, true, false)
	if err != nil {
		t.Fatalf("Failed to create range: %v", err)
	}
	if !r.IsPoint() {
		t.Fatal("Expected a point range")
	}
	if !r.ContainsInt(7) || r.ContainsInt(8) {
		t.Errorf("Point range %s has wrong membership", r)
	}

	_, err = NewRangeInt(7, 7, false, false)
	if !errors.Is(err, ErrRangeEmptyPoint) {
		t.Errorf("Expected ErrRangeEmptyPoint, got %v", err)
	}
	_, err = NewRangeFloat(1.5, 1.5, false, false, true)
	if !errors.Is(err, ErrRangeEmptyPoint) {
		t.Errorf("Expected ErrRangeEmptyPoint, got %v", err)
	}
	var re *RangeError
	if !errors.As(err, &re) || re.Min != 1.5 {
		t.Errorf("Expected *RangeError with Min 1.5, got %#v", err)
	}
}

func TestRangeNaNBoundRejected(t *testing.T) {
	for _, bounds := range [][2]float64{{math.NaN(), 1}, {0, math.NaN()}} {
		_, err := NewRangeFloat(bounds[0], bounds[1], true, true, false)
		if !errors.Is(err, ErrRangeNaNBound) {
			t.Errorf("NewRangeFloat(%v, %v): expected ErrRangeNaNBound, got %v", bounds[0], bounds[1], err)
		}
	}
}

func TestRangeNaNPointMatchesBits(t *testing.T) {
	r := NewNaNRange()
	if !r.IsNaN() || !r.IsPoint() {
		t.Fatalf("Expected a NaN point range, got %s", r)
	}
	if !r.Contains(math.NaN()) {
		t.Error("Expected canonical NaN to match")
	}
	if r.Contains(0) || r.Contains(math.Inf(1)) {
		t.Error("Expected ordinary values to be outside")
	}

	// a NaN with a different payload is a different sentinel
	other := math.Float64frombits(math.Float64bits(math.NaN()) ^ 1)
	if r.Contains(other) {
		t.Error("Expected NaN with another payload to be outside")
	}

	// the NaN policy flag does not apply to point ranges
	p, err := NewRangeFloat(3, 3, true, true, true)
	if err != nil {
		t.Fatalf("Failed to create range: %v", err)
	}
	if p.NaNIncluded() || p.Contains(math.NaN()) {
		t.Error("Expected a non-NaN point range to reject NaN")
	}
}

func TestRangeIntegerDomain(t *testing.T) {
	r, err := NewRangeInt(-3, 3, true, false)
	if err != nil {
		t.Fatalf("Failed to create range: %v", err)
	}
	if r.Domain() != DomainInteger {
		t.Errorf("Expected integer domain, got %s", r.Domain())
	}
	if r.Contains(math.NaN()) {
		t.Error("Expected NaN outside an integer range")
	}
	if !r.Contains(-3) || !r.Contains(2.5) || r.Contains(3) {
		t.Errorf("Integer range %s has wrong float membership", r)
	}
	if !r.ContainsInt(-3) || r.ContainsInt(3) {
		t.Errorf("Integer range %s has wrong integer membership", r)
	}
}

func TestIsNoDataTyped(t *testing.T) {
	nd, err := NewRangeInt(-1, -1, true, true)
	if err != nil {
		t.Fatalf("Failed to create range: %v", err)
	}

	// -1 stored as int16 must match; 65535 stored as uint16 must not
	if !isNoData(nd, DTInt16, EncodeSample(DTInt16, -1)) {
		t.Error("Expected int16 -1 to be no-data")
	}
	if isNoData(nd, DTUint16, EncodeSample(DTUint16, 65535)) {
		t.Error("Expected uint16 65535 to be valid")
	}
	if isNoData(nil, DTUint8, 0) {
		t.Error("Expected a nil range to never match")
	}

	nan := NewNaNRange()
	if !isNoData(nan, DTFloat32, EncodeSample(DTFloat32, math.NaN())) {
		t.Error("Expected float32 NaN to match the NaN sentinel")
	}
}

func TestRangeString(t *testing.T) {
	r, _ := NewRangeFloat(0, 1, true, false, false)
	if got := r.String(); got != "[0, 1)" {
		t.Errorf("Expected [0, 1), got %s", got)
	}
}
