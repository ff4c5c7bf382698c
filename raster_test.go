package gowarp

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEncodeSample(t *testing.T) {
	tests := []struct {
		name string
		dt   DataType
		in   float64
		want float64
	}{
		{"uint8 clamps high", DTUint8, 300, 255},
		{"uint8 clamps low", DTUint8, -5, 0},
		{"uint8 rounds half up", DTUint8, 2.5, 3},
		{"int8 rounds half away", DTInt8, -2.5, -3},
		{"int16 clamps low", DTInt16, -40000, math.MinInt16},
		{"uint16 nan is zero", DTUint16, math.NaN(), 0},
		{"uint32 large", DTUint32, 4e9, 4e9},
		{"int32 negative", DTInt32, -123456.4, -123456},
		{"bit clamps", DTBit, 5, 1},
		{"bit rounds", DTBit, 0.4, 0},
		{"float32 keeps fraction", DTFloat32, 0.25, 0.25},
		{"float64 exact", DTFloat64, 1e300, 1e300},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeSample(tt.dt, EncodeSample(tt.dt, tt.in))
			if got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestRasterAccessors(t *testing.T) {
	r := NewRaster(Rect(10, 20, 3, 2), 2, DTInt16)
	r.SetValue(1, 12, 21, -7)
	if got := r.Value(1, 12, 21); got != -7 {
		t.Errorf("Expected -7, got %v", got)
	}
	if got := r.At(0, 0, 0); got != 0 {
		t.Errorf("Expected 0 outside the raster, got %v", got)
	}
	r.Set(0, 99, 99, 5) // ignored
	if got := r.GetPixel(12, 21); !cmp.Equal(got, []float64{0, -7}) {
		t.Errorf("Unexpected pixel %v", got)
	}
	if band := r.GetBand(1); band[5] != -7 || len(band) != 6 {
		t.Errorf("Unexpected band %v", band)
	}
	if r.GetBand(2) != nil {
		t.Error("Expected nil for a missing band")
	}
}

func TestNewRasterFromValuesMismatch(t *testing.T) {
	if _, err := NewRasterFromValues(Rect(0, 0, 2, 2), 1, DTUint8, []float64{1, 2, 3}); err == nil {
		t.Error("Expected an error for a short value slice")
	}
}

func TestRasterFill(t *testing.T) {
	r := NewRaster(Rect(0, 0, 2, 1), 3, DTUint8)
	r.Fill([]float64{1, 2})
	if diff := cmp.Diff([]uint64{1, 2, 2, 1, 2, 2}, r.Data); diff != "" {
		t.Errorf("Fill mismatch (-want +got):\n%s", diff)
	}
}

func TestRasterCopyFromConverts(t *testing.T) {
	src, err := NewRasterFromValues(Rect(0, 0, 3, 1), 1, DTFloat32, []float64{1.6, -4, 900})
	if err != nil {
		t.Fatalf("Failed to create raster: %v", err)
	}
	dst := NewRaster(Rect(1, 0, 4, 1), 1, DTUint8)
	dst.CopyFrom(src)
	if diff := cmp.Diff([]float64{0, 255, 0, 0}, dst.GetBand(0)); diff != "" {
		t.Errorf("CopyFrom mismatch (-want +got):\n%s", diff)
	}

	same := NewRaster(Rect(-1, 0, 3, 1), 1, DTFloat32)
	same.CopyFrom(src)
	if got := same.Value(0, 1, 0); !approxEqual(got, -4, 0) {
		t.Errorf("Expected -4, got %v", got)
	}
}

func TestRasterTranslateSharesData(t *testing.T) {
	r := NewRaster(Rect(0, 0, 2, 2), 1, DTUint8)
	moved := r.Translate(5, 5)
	moved.SetValue(0, 6, 6, 9)
	if r.Value(0, 1, 1) != 9 {
		t.Error("Expected the translated raster to share samples")
	}
	if moved.Rect != Rect(5, 5, 2, 2) {
		t.Errorf("Unexpected rect %+v", moved.Rect)
	}
}
