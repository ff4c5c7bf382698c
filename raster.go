package gowarp

import (
	"fmt"
	"math"
)

// DataType represents the storage type of raster samples
type DataType uint8

const (
	DTBit     DataType = iota + 1 // 1-bit packed ("binary") samples
	DTUint8                       // 8-bit unsigned integer
	DTInt8                        // 8-bit signed integer
	DTUint16                      // 16-bit unsigned integer
	DTInt16                       // 16-bit signed integer
	DTUint32                      // 32-bit unsigned integer
	DTInt32                       // 32-bit signed integer
	DTFloat32                     // 32-bit IEEE floating point
	DTFloat64                     // 64-bit IEEE floating point
)

// String returns a short name for the data type.
func (dt DataType) String() string {
	switch dt {
	case DTBit:
		return "bit"
	case DTUint8:
		return "uint8"
	case DTInt8:
		return "int8"
	case DTUint16:
		return "uint16"
	case DTInt16:
		return "int16"
	case DTUint32:
		return "uint32"
	case DTInt32:
		return "int32"
	case DTFloat32:
		return "float32"
	case DTFloat64:
		return "float64"
	default:
		return fmt.Sprintf("DataType(%d)", uint8(dt))
	}
}

// Valid reports whether dt is one of the known data types.
func (dt DataType) Valid() bool {
	return dt >= DTBit && dt <= DTFloat64
}

// IsFloat reports whether samples of this type are floating point.
func (dt DataType) IsFloat() bool {
	return dt == DTFloat32 || dt == DTFloat64
}

// IsBinary reports whether samples use the packed 1-bit encoding.
func (dt DataType) IsBinary() bool {
	return dt == DTBit
}

// BitsPerSample returns the encoded size of one sample in bits.
func (dt DataType) BitsPerSample() int {
	switch dt {
	case DTBit:
		return 1
	case DTUint8, DTInt8:
		return 8
	case DTUint16, DTInt16:
		return 16
	case DTUint32, DTInt32, DTFloat32:
		return 32
	case DTFloat64:
		return 64
	default:
		return 8
	}
}

// limits returns the representable range of an integer type.
func (dt DataType) limits() (lo, hi float64) {
	switch dt {
	case DTBit:
		return 0, 1
	case DTUint8:
		return 0, math.MaxUint8
	case DTInt8:
		return math.MinInt8, math.MaxInt8
	case DTUint16:
		return 0, math.MaxUint16
	case DTInt16:
		return math.MinInt16, math.MaxInt16
	case DTUint32:
		return 0, math.MaxUint32
	case DTInt32:
		return math.MinInt32, math.MaxInt32
	default:
		return -math.MaxFloat64, math.MaxFloat64
	}
}

// DecodeSample converts a stored sample to float64.
// Signed integers are stored sign-extended and floats as IEEE bits.
func DecodeSample(dt DataType, raw uint64) float64 {
	switch dt {
	case DTBit:
		return float64(raw & 1)
	case DTUint8:
		return float64(uint8(raw))
	case DTInt8:
		return float64(int8(raw))
	case DTUint16:
		return float64(uint16(raw))
	case DTInt16:
		return float64(int16(raw))
	case DTUint32:
		return float64(uint32(raw))
	case DTInt32:
		return float64(int32(raw))
	case DTFloat32:
		return float64(math.Float32frombits(uint32(raw)))
	case DTFloat64:
		return math.Float64frombits(raw)
	default:
		return float64(raw)
	}
}

// EncodeSample converts v to the storage form of dt.
// Integer types round half away from zero and clamp to the type range; NaN becomes 0.
func EncodeSample(dt DataType, v float64) uint64 {
	switch dt {
	case DTFloat32:
		return uint64(math.Float32bits(float32(v)))
	case DTFloat64:
		return math.Float64bits(v)
	}

	if math.IsNaN(v) {
		return 0
	}
	lo, hi := dt.limits()
	v = math.Round(v)
	if v < lo {
		v = lo
	} else if v > hi {
		v = hi
	}

	switch dt {
	case DTInt8, DTInt16, DTInt32:
		return uint64(int64(v))
	default:
		return uint64(v)
	}
}

// Raster holds samples for a rectangle of pixels.
// Data is stored as a flat array in band-interleaved-by-pixel (BIP) format:
// index = (y-Rect.Y) * Width * Bands + (x-Rect.X) * Bands + band
// Coordinates passed to accessors are absolute image coordinates.
type Raster struct {
	Data     []uint64
	Rect     Rectangle
	Bands    int
	DataType DataType
}

// NewRaster allocates a zero-filled raster.
func NewRaster(rect Rectangle, bands int, dt DataType) *Raster {
	n := 0
	if !rect.Empty() && bands > 0 {
		n = rect.Width * rect.Height * bands
	}
	return &Raster{
		Data:     make([]uint64, n),
		Rect:     rect,
		Bands:    bands,
		DataType: dt,
	}
}

// NewRasterFromValues builds a raster from decoded BIP values.
func NewRasterFromValues(rect Rectangle, bands int, dt DataType, values []float64) (*Raster, error) {
	if len(values) != rect.Width*rect.Height*bands {
		return nil, fmt.Errorf("value count %d does not match %dx%dx%d raster",
			len(values), rect.Width, rect.Height, bands)
	}
	r := NewRaster(rect, bands, dt)
	for i, v := range values {
		r.Data[i] = EncodeSample(dt, v)
	}
	return r, nil
}

// Width returns the raster width in pixels.
func (r *Raster) Width() int { return r.Rect.Width }

// Height returns the raster height in pixels.
func (r *Raster) Height() int { return r.Rect.Height }

// Index returns the flat array index for the given band, x, y coordinates.
func (r *Raster) Index(band, x, y int) int {
	return (y-r.Rect.Y)*r.Rect.Width*r.Bands + (x-r.Rect.X)*r.Bands + band
}

func (r *Raster) inside(band, x, y int) bool {
	return band >= 0 && band < r.Bands && r.Rect.ContainsPoint(x, y)
}

// At returns the stored sample at the specified band, x, y coordinates.
// Out of range coordinates return 0.
func (r *Raster) At(band, x, y int) uint64 {
	if !r.inside(band, x, y) {
		return 0
	}
	return r.Data[r.Index(band, x, y)]
}

// Set stores a raw sample at the specified band, x, y coordinates.
func (r *Raster) Set(band, x, y int, raw uint64) {
	if !r.inside(band, x, y) {
		return
	}
	r.Data[r.Index(band, x, y)] = raw
}

// Value returns the decoded sample at the specified band, x, y coordinates.
func (r *Raster) Value(band, x, y int) float64 {
	return DecodeSample(r.DataType, r.At(band, x, y))
}

// SetValue encodes and stores v at the specified band, x, y coordinates.
func (r *Raster) SetValue(band, x, y int, v float64) {
	if !r.inside(band, x, y) {
		return
	}
	r.Data[r.Index(band, x, y)] = EncodeSample(r.DataType, v)
}

// ValueUnchecked returns the decoded sample without bounds checking.
func (r *Raster) ValueUnchecked(band, x, y int) float64 {
	return DecodeSample(r.DataType, r.Data[r.Index(band, x, y)])
}

// GetBand returns the decoded values of a single band in row-major order.
// The returned slice is newly allocated.
func (r *Raster) GetBand(band int) []float64 {
	if band < 0 || band >= r.Bands {
		return nil
	}
	result := make([]float64, r.Rect.Width*r.Rect.Height)
	for i := range result {
		result[i] = DecodeSample(r.DataType, r.Data[i*r.Bands+band])
	}
	return result
}

// GetPixel returns the decoded values of all bands for a single pixel.
func (r *Raster) GetPixel(x, y int) []float64 {
	if !r.Rect.ContainsPoint(x, y) {
		return nil
	}
	result := make([]float64, r.Bands)
	base := r.Index(0, x, y)
	for b := range result {
		result[b] = DecodeSample(r.DataType, r.Data[base+b])
	}
	return result
}

// Fill sets every sample of every pixel to the per-band values.
// Missing bands take the last value, or 0 when values is empty.
func (r *Raster) Fill(values []float64) {
	if len(r.Data) == 0 {
		return
	}
	enc := make([]uint64, r.Bands)
	for b := range enc {
		enc[b] = EncodeSample(r.DataType, bandValue(values, b))
	}
	for i := 0; i < len(r.Data); i += r.Bands {
		copy(r.Data[i:i+r.Bands], enc)
	}
}

// CopyFrom copies the overlapping area of src into r, converting samples
// when the data types differ.
func (r *Raster) CopyFrom(src *Raster) {
	overlap := r.Rect.Intersect(src.Rect)
	if overlap.Empty() {
		return
	}
	bands := min(r.Bands, src.Bands)
	sameType := r.DataType == src.DataType
	for y := overlap.Y; y < overlap.Y+overlap.Height; y++ {
		di := r.Index(0, overlap.X, y)
		si := src.Index(0, overlap.X, y)
		if sameType && bands == r.Bands && bands == src.Bands {
			n := overlap.Width * bands
			copy(r.Data[di:di+n], src.Data[si:si+n])
			continue
		}
		for x := 0; x < overlap.Width; x++ {
			for b := 0; b < bands; b++ {
				raw := src.Data[si+x*src.Bands+b]
				if !sameType {
					raw = EncodeSample(r.DataType, DecodeSample(src.DataType, raw))
				}
				r.Data[di+x*r.Bands+b] = raw
			}
		}
	}
}

// Translate returns a raster sharing r's samples with its origin moved by (dx, dy).
func (r *Raster) Translate(dx, dy int) *Raster {
	return &Raster{
		Data:     r.Data,
		Rect:     r.Rect.Translate(dx, dy),
		Bands:    r.Bands,
		DataType: r.DataType,
	}
}

func bandValue(values []float64, band int) float64 {
	if len(values) == 0 {
		return 0
	}
	if band < len(values) {
		return values[band]
	}
	return values[len(values)-1]
}
