package gowarp

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

const testURL = "http://tiles.test/raster.bin"

// rangeServer serves data over an in-memory listener and counts GET requests.
type rangeServer struct {
	data   []byte
	gets   atomic.Int64
	status int
	ln     *fasthttputil.InmemoryListener
}

func newRangeServer(t *testing.T, data []byte) *rangeServer {
	t.Helper()
	s := &rangeServer{data: data, ln: fasthttputil.NewInmemoryListener()}
	go func() { _ = fasthttp.Serve(s.ln, s.handle) }()
	t.Cleanup(func() { s.ln.Close() })
	return s
}

func (s *rangeServer) handle(ctx *fasthttp.RequestCtx) {
	if ctx.IsHead() {
		// the body is skipped on HEAD but sets Content-Length
		ctx.SetBody(s.data)
		return
	}
	s.gets.Add(1)
	if s.status != 0 {
		ctx.SetStatusCode(s.status)
		return
	}
	start, end, err := fasthttp.ParseByteRange(ctx.Request.Header.Peek("Range"), len(s.data))
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusRequestedRangeNotSatisfiable)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusPartialContent)
	ctx.SetBody(s.data[start : end+1])
}

func (s *rangeServer) client() *fasthttp.Client {
	return &fasthttp.Client{
		Dial: func(string) (net.Conn, error) { return s.ln.Dial() },
	}
}

// buildRemote stores every tile of img padded to the full tile size,
// compressed with c, after a 32 byte header. It returns the object and its layout.
func buildRemote(t *testing.T, img *Raster, tw, th int, c Compression, order binary.ByteOrder) ([]byte, RemoteLayout) {
	t.Helper()
	layout := RemoteLayout{
		Bounds:      img.Rect,
		TileWidth:   tw,
		TileHeight:  th,
		Bands:       img.Bands,
		DataType:    img.DataType,
		ByteOrder:   order,
		Compression: c,
	}
	grid := layout.grid()
	data := make([]byte, 32)
	for ty := 0; ty < grid.TilesDown(); ty++ {
		for tx := 0; tx < grid.TilesAcross(); tx++ {
			full := NewRaster(Rect(img.Rect.X+tx*tw, img.Rect.Y+ty*th, tw, th), img.Bands, img.DataType)
			full.CopyFrom(img)
			raw := compressTile(t, EncodeTile(full, order), c)
			layout.TileOffsets = append(layout.TileOffsets, int64(len(data)))
			layout.TileByteCounts = append(layout.TileByteCounts, int64(len(raw)))
			data = append(data, raw...)
		}
	}
	return data, layout
}

func compressTile(t *testing.T, raw []byte, c Compression) []byte {
	t.Helper()
	switch c {
	case CompressionDeflate:
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		if _, err := zw.Write(raw); err != nil {
			t.Fatalf("Failed to deflate tile: %v", err)
		}
		if err := zw.Close(); err != nil {
			t.Fatalf("Failed to close deflate writer: %v", err)
		}
		return buf.Bytes()
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			t.Fatalf("Failed to create zstd encoder: %v", err)
		}
		defer enc.Close()
		return enc.EncodeAll(raw, nil)
	default:
		return raw
	}
}

func openRemote(t *testing.T, srv *rangeServer, layout RemoteLayout, opts ...RemoteOption) *RemoteSource {
	t.Helper()
	opts = append([]RemoteOption{WithHTTPClient(srv.client()), WithRemoteLogger(testLogger())}, opts...)
	rs, err := NewRemoteSource(context.Background(), testURL, layout, opts...)
	if err != nil {
		t.Fatalf("Failed to open remote source: %v", err)
	}
	t.Cleanup(rs.Close)
	return rs
}

func assertSameTiles(t *testing.T, want, got TileSource) {
	t.Helper()
	ctx := context.Background()
	g := want.Grid()
	for ty := 0; ty < g.TilesDown(); ty++ {
		for tx := 0; tx < g.TilesAcross(); tx++ {
			w, err := want.Tile(ctx, tx, ty)
			if err != nil {
				t.Fatalf("Failed to read reference tile (%d,%d): %v", tx, ty, err)
			}
			r, err := got.Tile(ctx, tx, ty)
			if err != nil {
				t.Fatalf("Failed to read remote tile (%d,%d): %v", tx, ty, err)
			}
			if r.Rect != w.Rect {
				t.Fatalf("Tile (%d,%d): expected rect %+v, got %+v", tx, ty, w.Rect, r.Rect)
			}
			if diff := cmp.Diff(w.Data, r.Data); diff != "" {
				t.Fatalf("Tile (%d,%d) mismatch (-want +got):\n%s", tx, ty, diff)
			}
		}
	}
}

func TestRemoteSourceCompressions(t *testing.T) {
	img := gradientRaster(Rect(0, 0, 10, 7), 2, DTInt16)
	img.SetValue(1, 3, 3, -1234)
	mem := NewMemorySource(img, 4, 4)

	for _, tc := range []struct {
		c     Compression
		order binary.ByteOrder
	}{
		{CompressionNone, binary.LittleEndian},
		{CompressionNone, binary.BigEndian},
		{CompressionDeflate, binary.LittleEndian},
		{CompressionZstd, binary.BigEndian},
	} {
		t.Run(tc.c.String()+"/"+tc.order.String(), func(t *testing.T) {
			data, layout := buildRemote(t, img, 4, 4, tc.c, tc.order)
			rs := openRemote(t, newRangeServer(t, data), layout)

			if rs.Bounds() != img.Rect || rs.Bands() != 2 || rs.DataType() != DTInt16 {
				t.Fatalf("Unexpected source description %+v/%d/%s", rs.Bounds(), rs.Bands(), rs.DataType())
			}
			assertSameTiles(t, mem, rs)

			region, err := ReadRegion(context.Background(), rs, Rect(1, 1, 8, 5))
			if err != nil {
				t.Fatalf("Failed to read region: %v", err)
			}
			want, _ := mem.ReadRegion(context.Background(), Rect(1, 1, 8, 5))
			if diff := cmp.Diff(want.Data, region.Data); diff != "" {
				t.Errorf("Region mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRemoteSourceIndex(t *testing.T) {
	img := gradientRaster(Rect(0, 0, 9, 9), 1, DTFloat32)
	data, layout := buildRemote(t, img, 4, 4, CompressionZstd, binary.LittleEndian)

	index := make([]byte, 16*len(layout.TileOffsets))
	for i := range layout.TileOffsets {
		binary.LittleEndian.PutUint64(index[16*i:], uint64(layout.TileOffsets[i]))
		binary.LittleEndian.PutUint64(index[16*i+8:], uint64(layout.TileByteCounts[i]))
	}
	layout.IndexOffset = int64(len(data))
	data = append(data, index...)
	layout.TileOffsets, layout.TileByteCounts = nil, nil

	rs := openRemote(t, newRangeServer(t, data), layout)
	assertSameTiles(t, NewMemorySource(img, 4, 4), rs)
}

func TestRemoteSourceContiguous(t *testing.T) {
	img := gradientRaster(Rect(0, 0, 6, 6), 3, DTUint8)
	data, layout := buildRemote(t, img, 3, 3, CompressionNone, binary.LittleEndian)
	layout.DataOffset = 32
	layout.TileOffsets, layout.TileByteCounts = nil, nil

	rs := openRemote(t, newRangeServer(t, data), layout)
	assertSameTiles(t, NewMemorySource(img, 3, 3), rs)
}

func TestRemoteSourceBitTiles(t *testing.T) {
	img, err := NewRasterFromValues(Rect(0, 0, 10, 3), 1, DTBit, []float64{
		1, 0, 1, 1, 0, 0, 1, 0, 1, 1,
		0, 1, 0, 0, 1, 1, 0, 1, 0, 0,
		1, 1, 1, 0, 0, 0, 1, 1, 1, 0,
	})
	if err != nil {
		t.Fatalf("Failed to create raster: %v", err)
	}
	data, layout := buildRemote(t, img, 12, 3, CompressionNone, binary.LittleEndian)
	if layout.tileBytes() != 6 {
		t.Fatalf("Expected 2 bytes per padded row, got %d bytes per tile", layout.tileBytes())
	}
	rs := openRemote(t, newRangeServer(t, data), layout)
	assertSameTiles(t, NewMemorySource(img, 12, 3), rs)
}

func TestRemoteSourceCachesTiles(t *testing.T) {
	img := gradientRaster(Rect(0, 0, 8, 8), 1, DTUint16)
	data, layout := buildRemote(t, img, 4, 4, CompressionDeflate, binary.LittleEndian)
	srv := newRangeServer(t, data)
	rs := openRemote(t, srv, layout, WithTileCache(16, time.Minute))

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := rs.Tile(ctx, 1, 1); err != nil {
				t.Errorf("Failed to read tile: %v", err)
			}
		}()
	}
	wg.Wait()
	if got := srv.gets.Load(); got != 1 {
		t.Errorf("Expected one fetch for concurrent reads, got %d", got)
	}

	tile, err := rs.Tile(ctx, 1, 1)
	if err != nil {
		t.Fatalf("Failed to read tile: %v", err)
	}
	tile.Data[0] = 9999
	again, err := rs.Tile(ctx, 1, 1)
	if err != nil {
		t.Fatalf("Failed to read tile: %v", err)
	}
	if again.Data[0] == 9999 {
		t.Error("Expected callers to get copies of cached tiles")
	}
	if got := srv.gets.Load(); got != 1 {
		t.Errorf("Expected cached reads, got %d fetches", got)
	}
}

func TestRemoteSourceErrors(t *testing.T) {
	img := gradientRaster(Rect(0, 0, 4, 4), 1, DTUint8)
	data, layout := buildRemote(t, img, 4, 4, CompressionNone, binary.LittleEndian)
	srv := newRangeServer(t, data)
	srv.status = fasthttp.StatusInternalServerError
	rs := openRemote(t, srv, layout)

	if _, err := rs.Tile(context.Background(), 0, 0); err == nil {
		t.Error("Expected an error for a failing server")
	}
	if _, err := rs.Tile(context.Background(), 1, 0); !errors.Is(err, ErrTileOutOfRange) {
		t.Errorf("Expected ErrTileOutOfRange, got %v", err)
	}

	bad := layout
	bad.Compression = CompressionZstd
	bad.TileOffsets, bad.TileByteCounts = nil, nil
	if _, err := NewRemoteSource(context.Background(), testURL, bad, WithHTTPClient(srv.client())); !errors.Is(err, ErrInvalidLayout) {
		t.Errorf("Expected ErrInvalidLayout for compressed tiles without an index, got %v", err)
	}
	bad = layout
	bad.TileByteCounts = bad.TileByteCounts[:0]
	if _, err := NewRemoteSource(context.Background(), testURL, bad, WithHTTPClient(srv.client())); !errors.Is(err, ErrInvalidLayout) {
		t.Errorf("Expected ErrInvalidLayout for mismatched index lengths, got %v", err)
	}
}

func TestAffineOverRemoteSource(t *testing.T) {
	img := gradientRaster(Rect(0, 0, 12, 10), 1, DTUint16)
	data, layout := buildRemote(t, img, 5, 5, CompressionZstd, binary.LittleEndian)
	rs := openRemote(t, newRangeServer(t, data), layout)

	m := Rotation(0.2).Multiply(Scale(1.5, 1.5))
	want := render(t, newTestAffine(t, NewMemorySource(img, 5, 5), m, WithInterpolation(InterpBilinear)))
	got := render(t, newTestAffine(t, rs, m, WithInterpolation(InterpBilinear)))
	if diff := cmp.Diff(want.Data, got.Data); diff != "" {
		t.Errorf("Remote resample mismatch (-want +got):\n%s", diff)
	}
}

func TestHTTPRangeReader(t *testing.T) {
	payload := make([]byte, 1000)
	for i := range payload {
		payload[i] = byte(i * 7)
	}
	srv := newRangeServer(t, payload)
	rr := NewHTTPRangeReader(testURL, srv.client())
	if rr.Size() != int64(len(payload)) {
		t.Fatalf("Expected size %d, got %d", len(payload), rr.Size())
	}
	rr.SetReadAheadSize(256)

	buf := make([]byte, 10)
	if _, err := rr.ReadAt(buf, 100); err != nil {
		t.Fatalf("Failed to read: %v", err)
	}
	if !bytes.Equal(buf, payload[100:110]) {
		t.Errorf("Unexpected bytes %v", buf)
	}
	// served from the read-ahead buffer
	if _, err := rr.ReadAt(buf, 200); err != nil {
		t.Fatalf("Failed to read: %v", err)
	}
	if srv.gets.Load() != 1 {
		t.Errorf("Expected one fetch, got %d", srv.gets.Load())
	}

	n, err := rr.ReadAt(buf, 995)
	if n != 5 || err != io.EOF {
		t.Errorf("Expected 5 bytes and EOF at the end, got %d, %v", n, err)
	}
	if _, err := rr.ReadAt(buf, 1000); err != io.EOF {
		t.Errorf("Expected EOF past the end, got %v", err)
	}

	got, err := rr.ReadRange(context.Background(), 500, 20)
	if err != nil {
		t.Fatalf("Failed to read range: %v", err)
	}
	if !bytes.Equal(got, payload[500:520]) {
		t.Errorf("Unexpected range bytes %v", got)
	}
	if _, err := rr.ReadRange(context.Background(), 990, 20); err == nil {
		t.Error("Expected an error for a short range")
	}
}
