package gowarp

import (
	"math"
	"testing"
)

func TestClassify(t *testing.T) {
	src := Rect(0, 0, 100, 100)
	tests := []struct {
		name     string
		m        AffineMatrix
		in       ClassifyInput
		strategy Strategy
		path     KernelPath
	}{
		{"identity", Identity(), ClassifyInput{}, StrategyCopy, PathNone},
		{"integer translate", Translation(3, -2), ClassifyInput{}, StrategyIntegerTranslate, PathNone},
		{"near integer translate", Translation(3.005, 0), ClassifyInput{}, StrategyIntegerTranslate, PathNone},
		{"half pixel translate", Translation(0.5, 0), ClassifyInput{}, StrategyAxisScale, PathNearest},
		{"translate with layout", Translation(3, 0), ClassifyInput{LayoutOverride: true}, StrategyAxisScale, PathNearest},
		{"identity with layout", Identity(), ClassifyInput{LayoutOverride: true}, StrategyCopy, PathNone},
		{"partial roi", Identity(), ClassifyInput{ROI: NewRectROI(Rect(10, 10, 5, 5))}, StrategyAxisScale, PathNearest},
		{"covering roi", Identity(), ClassifyInput{ROI: NewRectROI(Rect(-1, -1, 200, 200))}, StrategyCopy, PathNone},
		{"empty roi", Translation(2, 2), ClassifyInput{ROI: NewRectROI(Rectangle{})}, StrategyIntegerTranslate, PathNone},
		{"bilinear scale", Scale(2, 2), ClassifyInput{Interpolation: InterpBilinear}, StrategyAxisScale, PathBilinear},
		{"bicubic scale", Scale(0.5, 3), ClassifyInput{Interpolation: InterpBicubic}, StrategyAxisScale, PathBicubic},
		{"binary scale", Scale(2, 2), ClassifyInput{Binary: true, Interpolation: InterpBilinear}, StrategyAxisScale, PathGeneral},
		{"mirror", Scale(-1, 1), ClassifyInput{}, StrategyGeneralAffine, PathNearest},
		{"rotation", Rotation(math.Pi / 6), ClassifyInput{Interpolation: InterpBicubic}, StrategyGeneralAffine, PathBicubic},
		{"binary rotation", Rotation(0.3), ClassifyInput{Binary: true}, StrategyGeneralAffine, PathGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(tt.m, src, tt.in)
			if c.Strategy != tt.strategy {
				t.Fatalf("Expected strategy %s, got %s", tt.strategy, c.Strategy)
			}
			if c.Path != tt.path {
				t.Errorf("Expected path %s, got %s", tt.path, c.Path)
			}
		})
	}
}

func TestClassifyParameters(t *testing.T) {
	src := Rect(0, 0, 10, 10)

	c := Classify(Translation(-4, 7), src, ClassifyInput{})
	if c.ShiftX != -4 || c.ShiftY != 7 {
		t.Errorf("Expected shift (-4, 7), got (%d, %d)", c.ShiftX, c.ShiftY)
	}

	c = Classify(NewAffineMatrix(2, 0, 0, 0.5, 1.5, -3), src, ClassifyInput{})
	if c.ScaleX != 2 || c.ScaleY != 0.5 || c.TransX != 1.5 || c.TransY != -3 {
		t.Errorf("Unexpected axis parameters %+v", c)
	}
	if got := c.String(); got != "axis-scale(2,0.5)/nearest" {
		t.Errorf("Expected axis-scale(2,0.5)/nearest, got %s", got)
	}
}
