package gowarp

import "fmt"

// Strategy is the execution strategy chosen for an affine resample.
type Strategy uint8

const (
	// StrategyCopy passes source pixels through unchanged.
	StrategyCopy Strategy = iota
	// StrategyIntegerTranslate shifts pixels by a whole number of pixels.
	StrategyIntegerTranslate
	// StrategyAxisScale scales along the axes with no shear or rotation.
	StrategyAxisScale
	// StrategyGeneralAffine inverse-maps every destination pixel.
	StrategyGeneralAffine
)

func (s Strategy) String() string {
	switch s {
	case StrategyCopy:
		return "copy"
	case StrategyIntegerTranslate:
		return "integer-translate"
	case StrategyAxisScale:
		return "axis-scale"
	case StrategyGeneralAffine:
		return "general-affine"
	default:
		return fmt.Sprintf("Strategy(%d)", uint8(s))
	}
}

// KernelPath selects the sampling loop used by the scale and affine strategies.
type KernelPath uint8

const (
	PathNone KernelPath = iota
	PathNearest
	PathBilinear
	PathBicubic
	// PathGeneral drives the kernel through the generic per-pixel loop.
	PathGeneral
)

func (p KernelPath) String() string {
	switch p {
	case PathNone:
		return "none"
	case PathNearest:
		return "nearest"
	case PathBilinear:
		return "bilinear"
	case PathBicubic:
		return "bicubic"
	case PathGeneral:
		return "general"
	default:
		return fmt.Sprintf("KernelPath(%d)", uint8(p))
	}
}

// ClassifyInput holds everything besides the matrix that the classifier inspects.
type ClassifyInput struct {
	ROI            ROI
	LayoutOverride bool
	Binary         bool
	Interpolation  Interpolation
}

// Classification is the strategy decision with its resolved geometric parameters.
type Classification struct {
	Strategy Strategy
	Path     KernelPath
	Matrix   AffineMatrix

	// ShiftX and ShiftY are set for StrategyIntegerTranslate.
	ShiftX, ShiftY int

	// ScaleX, ScaleY, TransX and TransY are set for StrategyAxisScale.
	ScaleX, ScaleY float64
	TransX, TransY float64
}

func (c Classification) String() string {
	switch c.Strategy {
	case StrategyIntegerTranslate:
		return fmt.Sprintf("%s(%d,%d)", c.Strategy, c.ShiftX, c.ShiftY)
	case StrategyAxisScale:
		return fmt.Sprintf("%s(%g,%g)/%s", c.Strategy, c.ScaleX, c.ScaleY, c.Path)
	case StrategyGeneralAffine:
		return fmt.Sprintf("%s/%s", c.Strategy, c.Path)
	default:
		return c.Strategy.String()
	}
}

// roiAllowsPassthrough reports whether skipping ROI masking is exact:
// no ROI, an empty ROI, or an ROI covering every source pixel.
func roiAllowsPassthrough(roi ROI, src Rectangle) bool {
	if roi == nil {
		return true
	}
	if roi.Bounds().Empty() {
		return true
	}
	return roi.ContainsRect(src)
}

// Classify picks the cheapest strategy that is exact for m over the source rectangle.
// The first matching rule wins: copy, integer translate, axis scale, general affine.
func Classify(m AffineMatrix, src Rectangle, in ClassifyInput) Classification {
	c := Classification{Matrix: m}
	passthrough := roiAllowsPassthrough(in.ROI, src)

	if m.IsIdentity() && passthrough {
		c.Strategy = StrategyCopy
		return c
	}

	if m.IsUnitLinear() && !in.LayoutOverride && passthrough {
		if dx, dy, ok := m.IntegerTranslation(); ok {
			c.Strategy = StrategyIntegerTranslate
			c.ShiftX, c.ShiftY = dx, dy
			return c
		}
	}

	c.Path = kernelPath(in.Interpolation, in.Binary)
	if m.IsAxisScale() {
		c.Strategy = StrategyAxisScale
		c.ScaleX, c.ScaleY = m.A, m.D
		c.TransX, c.TransY = m.E, m.F
		return c
	}

	c.Strategy = StrategyGeneralAffine
	return c
}

// kernelPath maps an interpolation to its specialised loop. Binary sources
// always take the generic loop since the specialised loops assume multi-bit samples.
func kernelPath(interp Interpolation, binary bool) KernelPath {
	if binary {
		return PathGeneral
	}
	switch interp {
	case InterpNearest:
		return PathNearest
	case InterpBilinear:
		return PathBilinear
	case InterpBicubic:
		return PathBicubic
	default:
		return PathGeneral
	}
}
