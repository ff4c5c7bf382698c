package gowarp

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"golang.org/x/image/math/f64"
)

// TranslateTolerance is how close a translation must be to an integer to be
// treated as a pixel shift.
const TranslateTolerance = 0.01

// ErrNotInvertible is returned when an affine matrix has a zero determinant.
var ErrNotInvertible = errors.New("affine matrix is not invertible")

// AffineMatrix maps source pixel coordinates to destination coordinates:
//
//	x' = A*x + C*y + E
//	y' = B*x + D*y + F
//
// Coefficients are stored column-major: A, B, C, D, E, F.
type AffineMatrix struct {
	A, B, C, D, E, F float64
}

// NewAffineMatrix returns the matrix with the given coefficients.
func NewAffineMatrix(a, b, c, d, e, f float64) AffineMatrix {
	return AffineMatrix{A: a, B: b, C: c, D: d, E: e, F: f}
}

// Identity returns the identity matrix.
func Identity() AffineMatrix {
	return AffineMatrix{A: 1, D: 1}
}

// Translation creates a translation transform from (tx, ty)
func Translation(tx, ty float64) AffineMatrix {
	return AffineMatrix{A: 1, D: 1, E: tx, F: ty}
}

// Scale creates a scale transform from (sx, sy)
func Scale(sx, sy float64) AffineMatrix {
	return AffineMatrix{A: sx, D: sy}
}

// Rotation creates a rotation by theta radians about the origin.
func Rotation(theta float64) AffineMatrix {
	sin, cos := math.Sincos(theta)
	return AffineMatrix{A: cos, B: sin, C: -sin, D: cos}
}

// FromAff3 converts a row-major golang.org/x/image affine matrix.
func FromAff3(m f64.Aff3) AffineMatrix {
	return AffineMatrix{A: m[0], C: m[1], E: m[2], B: m[3], D: m[4], F: m[5]}
}

// Aff3 returns the matrix in golang.org/x/image row-major form.
func (m AffineMatrix) Aff3() f64.Aff3 {
	return f64.Aff3{m.A, m.C, m.E, m.B, m.D, m.F}
}

// Coefficients returns the six coefficients in (A, B, C, D, E, F) order.
func (m AffineMatrix) Coefficients() [6]float64 {
	return [6]float64{m.A, m.B, m.C, m.D, m.E, m.F}
}

// Transform applies the matrix to the point (x, y)
func (m AffineMatrix) Transform(x, y float64) (float64, float64) {
	return m.A*x + m.C*y + m.E, m.B*x + m.D*y + m.F
}

// TransformPoint applies the matrix to an orb.Point.
func (m AffineMatrix) TransformPoint(p orb.Point) orb.Point {
	x, y := m.Transform(p[0], p[1])
	return orb.Point{x, y}
}

// Determinant returns A*D - B*C.
func (m AffineMatrix) Determinant() float64 {
	return m.A*m.D - m.B*m.C
}

// IsInvertible returns true if the transformation is invertible
func (m AffineMatrix) IsInvertible() bool {
	det := m.Determinant()
	return det != 0 && !math.IsNaN(det) && !math.IsInf(det, 0)
}

// Inverse returns the matrix mapping destination coordinates back to source coordinates.
func (m AffineMatrix) Inverse() (AffineMatrix, error) {
	if !m.IsInvertible() {
		return AffineMatrix{}, fmt.Errorf("%w: %v", ErrNotInvertible, m)
	}
	idet := 1 / m.Determinant()
	inv := AffineMatrix{
		A: m.D * idet,
		B: -m.B * idet,
		C: -m.C * idet,
		D: m.A * idet,
	}
	inv.E = -(inv.A*m.E + inv.C*m.F)
	inv.F = -(inv.B*m.E + inv.D*m.F)
	return inv, nil
}

// Multiply returns the matrix applying n first and then m.
func (m AffineMatrix) Multiply(n AffineMatrix) AffineMatrix {
	return AffineMatrix{
		A: m.A*n.A + m.C*n.B,
		B: m.B*n.A + m.D*n.B,
		C: m.A*n.C + m.C*n.D,
		D: m.B*n.C + m.D*n.D,
		E: m.A*n.E + m.C*n.F + m.E,
		F: m.B*n.E + m.D*n.F + m.F,
	}
}

// IsIdentity reports an exact identity.
func (m AffineMatrix) IsIdentity() bool {
	return m.A == 1 && m.D == 1 && m.B == 0 && m.C == 0 && m.E == 0 && m.F == 0
}

// IsUnitLinear reports that the linear part is exactly the identity.
func (m AffineMatrix) IsUnitLinear() bool {
	return m.A == 1 && m.D == 1 && m.B == 0 && m.C == 0
}

// IsAxisScale reports a positive scale along both axes with no shear or rotation.
func (m AffineMatrix) IsAxisScale() bool {
	return m.A > 0 && m.D > 0 && m.B == 0 && m.C == 0
}

// IntegerTranslation returns the rounded translation and whether both
// components lie within TranslateTolerance of an integer.
func (m AffineMatrix) IntegerTranslation() (dx, dy int, ok bool) {
	rx, ry := math.Round(m.E), math.Round(m.F)
	if math.Abs(m.E-rx) >= TranslateTolerance || math.Abs(m.F-ry) >= TranslateTolerance {
		return 0, 0, false
	}
	return int(rx), int(ry), true
}

func (m AffineMatrix) String() string {
	return fmt.Sprintf("[%g %g %g %g %g %g]", m.A, m.B, m.C, m.D, m.E, m.F)
}
