package gowarp

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/karlseguin/ccache/v3"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/valyala/fasthttp"
	"golang.org/x/image/tiff/lzw"
	"golang.org/x/sync/singleflight"
)

// Compression names the per-tile compression of a remote raster.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionDeflate
	CompressionLZW
	CompressionZstd
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionDeflate:
		return "deflate"
	case CompressionLZW:
		return "lzw"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("Compression(%d)", uint8(c))
	}
}

// ErrInvalidLayout is returned for remote layouts that cannot describe their tiles.
var ErrInvalidLayout = errors.New("invalid remote layout")

// RemoteLayout describes how the tiles of a raster are stored in a remote object.
// Every tile is stored at full TileWidth x TileHeight, band-interleaved by
// pixel; DTBit rows are packed MSB first and padded to a byte boundary.
type RemoteLayout struct {
	Bounds                Rectangle
	TileWidth, TileHeight int
	Bands                 int
	DataType              DataType
	ByteOrder             binary.ByteOrder
	Compression           Compression

	// TileOffsets and TileByteCounts index the tiles row-major.
	TileOffsets    []int64
	TileByteCounts []int64
	// IndexOffset locates an index of (offset, byte count) uint64 pairs in
	// ByteOrder, read when TileOffsets is nil and IndexOffset is positive.
	IndexOffset int64
	// DataOffset is where tiles start when neither index is given; tiles are
	// then uncompressed and stored back to back.
	DataOffset int64
}

func (l RemoteLayout) grid() TileGrid {
	return TileGrid{Bounds: l.Bounds, TileWidth: l.TileWidth, TileHeight: l.TileHeight}
}

// tileBytes returns the uncompressed size of one stored tile.
func (l RemoteLayout) tileBytes() int {
	if l.DataType == DTBit {
		return (l.TileWidth*l.Bands + 7) / 8 * l.TileHeight
	}
	return l.TileWidth * l.TileHeight * l.Bands * l.DataType.BitsPerSample() / 8
}

func (l RemoteLayout) validate() error {
	switch {
	case l.Bounds.Empty():
		return fmt.Errorf("%w: empty bounds", ErrInvalidLayout)
	case l.TileWidth <= 0 || l.TileHeight <= 0:
		return fmt.Errorf("%w: tile size %dx%d", ErrInvalidLayout, l.TileWidth, l.TileHeight)
	case l.Bands <= 0:
		return fmt.Errorf("%w: %d bands", ErrInvalidLayout, l.Bands)
	case !l.DataType.Valid():
		return fmt.Errorf("%w: data type %s", ErrInvalidLayout, l.DataType)
	case l.Compression > CompressionZstd:
		return fmt.Errorf("%w: compression %s", ErrInvalidLayout, l.Compression)
	case len(l.TileOffsets) != len(l.TileByteCounts):
		return fmt.Errorf("%w: %d offsets for %d byte counts", ErrInvalidLayout, len(l.TileOffsets), len(l.TileByteCounts))
	}
	n := l.grid().TilesAcross() * l.grid().TilesDown()
	if l.TileOffsets != nil && len(l.TileOffsets) != n {
		return fmt.Errorf("%w: %d tile offsets for %d tiles", ErrInvalidLayout, len(l.TileOffsets), n)
	}
	if l.TileOffsets == nil && l.IndexOffset <= 0 && l.Compression != CompressionNone {
		return fmt.Errorf("%w: compressed tiles need a tile index", ErrInvalidLayout)
	}
	return nil
}

type remoteConfig struct {
	client    *fasthttp.Client
	cacheSize int64
	ttl       time.Duration
	logger    *slog.Logger
}

// RemoteOption configures a RemoteSource.
type RemoteOption func(*remoteConfig)

func WithHTTPClient(c *fasthttp.Client) RemoteOption {
	return func(rc *remoteConfig) { rc.client = c }
}

// WithTileCache sets the number of decoded tiles kept and how long they stay valid.
func WithTileCache(tiles int64, ttl time.Duration) RemoteOption {
	return func(rc *remoteConfig) {
		rc.cacheSize = tiles
		rc.ttl = ttl
	}
}

func WithRemoteLogger(l *slog.Logger) RemoteOption {
	return func(rc *remoteConfig) { rc.logger = l }
}

// RemoteSource is a TileSource over a raw tiled raster served by HTTP range requests.
// Decoded tiles are cached, and concurrent requests for one tile share a single fetch.
type RemoteSource struct {
	layout   RemoteLayout
	grid     TileGrid
	reader   *HTTPRangeReader
	cache    *ccache.Cache[*Raster]
	ttl      time.Duration
	inflight singleflight.Group
	zstd     *zstd.Decoder
	log      *slog.Logger
}

// NewRemoteSource validates layout, loads the tile index when it is stored
// remotely and returns the source.
func NewRemoteSource(ctx context.Context, url string, layout RemoteLayout, opts ...RemoteOption) (*RemoteSource, error) {
	rc := remoteConfig{cacheSize: 256, ttl: 10 * time.Minute}
	for _, opt := range opts {
		opt(&rc)
	}
	if rc.logger == nil {
		rc.logger = defaultLogger()
	}
	if layout.ByteOrder == nil {
		layout.ByteOrder = binary.LittleEndian
	}
	if err := layout.validate(); err != nil {
		return nil, err
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	s := &RemoteSource{
		layout: layout,
		grid:   layout.grid(),
		reader: NewHTTPRangeReader(url, rc.client),
		cache:  ccache.New(ccache.Configure[*Raster]().MaxSize(rc.cacheSize)),
		ttl:    rc.ttl,
		zstd:   dec,
		log:    rc.logger.With("url", url),
	}
	if layout.TileOffsets == nil && layout.IndexOffset > 0 {
		if err := s.loadIndex(ctx); err != nil {
			s.Close()
			return nil, err
		}
	}
	s.log.Debug("opened remote source",
		"bounds", layout.Bounds,
		"tiles", len(s.layout.TileOffsets),
		"compression", layout.Compression.String())
	return s, nil
}

// loadIndex reads the (offset, byte count) pairs stored at IndexOffset.
func (s *RemoteSource) loadIndex(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n := s.grid.TilesAcross() * s.grid.TilesDown()
	pairs := make([]uint64, 2*n)
	section := io.NewSectionReader(s.reader, s.layout.IndexOffset, int64(16*n))
	if err := binary.Read(section, s.layout.ByteOrder, pairs); err != nil {
		return fmt.Errorf("failed to read tile index: %w", err)
	}
	s.layout.TileOffsets = make([]int64, n)
	s.layout.TileByteCounts = make([]int64, n)
	for i := 0; i < n; i++ {
		s.layout.TileOffsets[i] = int64(pairs[2*i])
		s.layout.TileByteCounts[i] = int64(pairs[2*i+1])
	}
	s.reader.ClearBuffer()
	return nil
}

// Close releases the decoder and the tile cache.
func (s *RemoteSource) Close() {
	s.zstd.Close()
	s.cache.Stop()
}

func (s *RemoteSource) Bounds() Rectangle { return s.layout.Bounds }

func (s *RemoteSource) Grid() TileGrid { return s.grid }

func (s *RemoteSource) Bands() int { return s.layout.Bands }

func (s *RemoteSource) DataType() DataType { return s.layout.DataType }

// Tile returns a copy of the decoded tile, fetching it on a cache miss.
func (s *RemoteSource) Tile(ctx context.Context, tx, ty int) (*Raster, error) {
	if !s.grid.ValidTile(tx, ty) {
		return nil, fmt.Errorf("%w: (%d,%d)", ErrTileOutOfRange, tx, ty)
	}
	key := fmt.Sprintf("%d/%d", tx, ty)
	if item := s.cache.Get(key); item != nil && !item.Expired() {
		return cloneRaster(item.Value()), nil
	}

	v, err, _ := s.inflight.Do(key, func() (any, error) {
		// a fetch may have finished between the lookup above and Do
		if item := s.cache.Get(key); item != nil && !item.Expired() {
			return item.Value(), nil
		}
		r, err := s.fetchTile(ctx, tx, ty)
		if err != nil {
			return nil, err
		}
		s.cache.Set(key, r, s.ttl)
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneRaster(v.(*Raster)), nil
}

func (s *RemoteSource) ReadExtended(ctx context.Context, rect Rectangle, ext BorderExtender) (*Raster, error) {
	return ExtendRegion(ctx, s, rect, ext)
}

func (s *RemoteSource) fetchTile(ctx context.Context, tx, ty int) (*Raster, error) {
	idx := ty*s.grid.TilesAcross() + tx
	size := s.layout.tileBytes()
	var off, n int64
	if s.layout.TileOffsets != nil {
		off, n = s.layout.TileOffsets[idx], s.layout.TileByteCounts[idx]
	} else {
		off, n = s.layout.DataOffset+int64(idx)*int64(size), int64(size)
	}

	raw, err := s.reader.ReadRange(ctx, off, n)
	if err != nil {
		return nil, fmt.Errorf("failed to read tile (%d,%d): %w", tx, ty, err)
	}
	data, release, err := s.decompress(raw, size)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress tile (%d,%d): %w", tx, ty, err)
	}
	defer release()

	l := s.layout
	full := &Raster{
		Data:     decodeTile(data, l.TileWidth, l.TileHeight, l.Bands, l.DataType, l.ByteOrder),
		Rect:     Rect(l.Bounds.X+tx*l.TileWidth, l.Bounds.Y+ty*l.TileHeight, l.TileWidth, l.TileHeight),
		Bands:    l.Bands,
		DataType: l.DataType,
	}
	rect := s.grid.TileRect(tx, ty)
	if rect == full.Rect {
		return full, nil
	}
	// edge tiles are stored padded
	out := NewRaster(rect, l.Bands, l.DataType)
	out.CopyFrom(full)
	return out, nil
}

// decompress returns at least size bytes of tile data and a release func for pooled buffers.
func (s *RemoteSource) decompress(raw []byte, size int) ([]byte, func(), error) {
	noop := func() {}
	switch s.layout.Compression {
	case CompressionNone:
		if len(raw) < size {
			return nil, noop, fmt.Errorf("tile has %d bytes, expected %d", len(raw), size)
		}
		return raw, noop, nil

	case CompressionZstd:
		buf := GetBuffer(size)
		out, err := s.zstd.DecodeAll(raw, buf[:0])
		if err != nil {
			PutBuffer(buf)
			return nil, noop, err
		}
		if len(out) < size {
			PutBuffer(buf)
			return nil, noop, fmt.Errorf("zstd decompression produced insufficient data: got %d bytes, expected %d", len(out), size)
		}
		// DecodeAll only reallocates when the pooled buffer was too small
		if &out[0] != &buf[:1][0] {
			PutBuffer(buf)
			return out[:size], noop, nil
		}
		return out[:size], func() { PutBuffer(buf) }, nil

	case CompressionDeflate, CompressionLZW:
		var rd io.ReadCloser
		if s.layout.Compression == CompressionDeflate {
			zr, err := zlib.NewReader(bytes.NewReader(raw))
			if err != nil {
				return nil, noop, err
			}
			rd = zr
		} else {
			rd = lzw.NewReader(bytes.NewReader(raw), lzw.MSB, 8)
		}
		defer rd.Close()

		buf := getBytesBuffer()
		buf.Grow(size)
		if _, err := buf.ReadFrom(rd); err != nil {
			putBytesBuffer(buf)
			return nil, noop, err
		}
		if buf.Len() < size {
			n := buf.Len()
			putBytesBuffer(buf)
			return nil, noop, fmt.Errorf("%s decompression produced insufficient data: got %d bytes, expected %d", s.layout.Compression, n, size)
		}
		return buf.Bytes()[:size], func() { putBytesBuffer(buf) }, nil
	}
	return nil, noop, fmt.Errorf("unsupported compression %s", s.layout.Compression)
}

// decodeTile decodes raw tile bytes into flat BIP samples.
// index = y * width * bands + x * bands + band
func decodeTile(data []byte, width, height, bands int, dt DataType, order binary.ByteOrder) []uint64 {
	result := make([]uint64, width*height*bands)

	if dt == DTBit {
		rowBytes := (width*bands + 7) / 8
		for y := 0; y < height; y++ {
			row := data[y*rowBytes : (y+1)*rowBytes]
			for i := 0; i < width*bands; i++ {
				result[y*width*bands+i] = uint64(row[i/8]>>(7-uint(i%8))) & 1
			}
		}
		return result
	}

	bytesPerSample := dt.BitsPerSample() / 8
	for i := range result {
		o := i * bytesPerSample
		sample := data[o : o+bytesPerSample]
		switch dt {
		case DTUint8:
			result[i] = uint64(sample[0])
		case DTInt8:
			result[i] = uint64(int64(int8(sample[0])))
		case DTUint16:
			result[i] = uint64(order.Uint16(sample))
		case DTInt16:
			result[i] = uint64(int64(int16(order.Uint16(sample))))
		case DTUint32, DTFloat32:
			result[i] = uint64(order.Uint32(sample))
		case DTInt32:
			result[i] = uint64(int64(int32(order.Uint32(sample))))
		case DTFloat64:
			result[i] = order.Uint64(sample)
		}
	}
	return result
}

// EncodeTile is the inverse of the remote tile decoding: it serialises a
// full tile raster in the layout's byte order, uncompressed.
func EncodeTile(r *Raster, order binary.ByteOrder) []byte {
	if r.DataType == DTBit {
		width := r.Rect.Width * r.Bands
		rowBytes := (width + 7) / 8
		out := make([]byte, rowBytes*r.Rect.Height)
		for y := 0; y < r.Rect.Height; y++ {
			for i := 0; i < width; i++ {
				if r.Data[y*width+i]&1 != 0 {
					out[y*rowBytes+i/8] |= 1 << (7 - uint(i%8))
				}
			}
		}
		return out
	}

	bytesPerSample := r.DataType.BitsPerSample() / 8
	out := make([]byte, len(r.Data)*bytesPerSample)
	for i, v := range r.Data {
		o := out[i*bytesPerSample : (i+1)*bytesPerSample]
		switch bytesPerSample {
		case 1:
			o[0] = byte(v)
		case 2:
			order.PutUint16(o, uint16(v))
		case 4:
			order.PutUint32(o, uint32(v))
		default:
			order.PutUint64(o, v)
		}
	}
	return out
}

func cloneRaster(r *Raster) *Raster {
	return &Raster{
		Data:     append([]uint64(nil), r.Data...),
		Rect:     r.Rect,
		Bands:    r.Bands,
		DataType: r.DataType,
	}
}
