package gowarp

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/valyala/fasthttp"
)

// Default read-ahead buffer size (64KB) for small sequential reads
const defaultReadAheadSize = 64 * 1024

// HTTPRangeReader reads byte ranges of a remote object with HTTP range requests.
// It is safe for concurrent use. Small ReadAt calls go through a read-ahead
// buffer; ReadRange always issues its own request.
type HTTPRangeReader struct {
	url    string
	client *fasthttp.Client
	size   int64

	mu sync.Mutex
	// Read-ahead buffer for sequential access optimization
	buffer        []byte
	bufferStart   int64 // Start position of buffer in file
	readAheadSize int
}

// NewHTTPRangeReader creates a range reader and probes the object size with a HEAD request.
func NewHTTPRangeReader(url string, client *fasthttp.Client) *HTTPRangeReader {
	if client == nil {
		client = &fasthttp.Client{}
	}
	rr := &HTTPRangeReader{
		url:           url,
		client:        client,
		readAheadSize: defaultReadAheadSize,
		bufferStart:   -1,
	}
	rr.size = rr.getSize()
	return rr
}

// SetReadAheadSize sets the read-ahead buffer size used by ReadAt.
func (rr *HTTPRangeReader) SetReadAheadSize(size int) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	if size > 0 {
		rr.readAheadSize = size
	}
}

// getSize gets the file size using HEAD request
func (rr *HTTPRangeReader) getSize() int64 {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(rr.url)
	req.Header.SetMethod(fasthttp.MethodHead)

	if err := rr.client.Do(req, resp); err != nil {
		return -1
	}
	if contentLength := resp.Header.ContentLength(); contentLength > 0 {
		return int64(contentLength)
	}
	return -1
}

// Size returns the object size, or -1 if unknown.
func (rr *HTTPRangeReader) Size() int64 {
	return rr.size
}

// ReadAt implements io.ReaderAt.
func (rr *HTTPRangeReader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset: %d", off)
	}
	if rr.size >= 0 && off >= rr.size {
		return 0, io.EOF
	}

	rr.mu.Lock()
	if rr.buffer != nil && off >= rr.bufferStart && off+int64(len(p)) <= rr.bufferStart+int64(len(rr.buffer)) {
		n := copy(p, rr.buffer[off-rr.bufferStart:])
		rr.mu.Unlock()
		return n, nil
	}
	readSize := max(rr.readAheadSize, len(p))
	rr.mu.Unlock()

	data, err := rr.fetchRange(context.Background(), off, off+int64(readSize)-1)
	if err != nil {
		return 0, err
	}
	if len(data) > len(p) {
		rr.mu.Lock()
		rr.buffer = data
		rr.bufferStart = off
		rr.mu.Unlock()
	}

	n := copy(p, data)
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// ReadRange fetches n bytes starting at off.
func (rr *HTTPRangeReader) ReadRange(ctx context.Context, off, n int64) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	data, err := rr.fetchRange(ctx, off, off+n-1)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) < n {
		return nil, fmt.Errorf("short range read at %d: got %d of %d bytes", off, len(data), n)
	}
	return data[:n], nil
}

// fetchRange fetches the inclusive byte range [start, end] from the server.
func (rr *HTTPRangeReader) fetchRange(ctx context.Context, start, end int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rr.size > 0 && end >= rr.size {
		end = rr.size - 1
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(rr.url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))

	var err error
	if deadline, ok := ctx.Deadline(); ok {
		err = rr.client.DoDeadline(req, resp, deadline)
	} else {
		err = rr.client.DoTimeout(req, resp, time.Minute)
	}
	if err != nil {
		return nil, err
	}

	statusCode := resp.StatusCode()
	switch statusCode {
	case fasthttp.StatusPartialContent:
	case fasthttp.StatusOK:
		// server ignored the range header; slice the full body
		body := resp.Body()
		if start >= int64(len(body)) {
			return nil, io.EOF
		}
		body = body[start:min(end+1, int64(len(body)))]
		return append([]byte(nil), body...), nil
	default:
		return nil, fmt.Errorf("unexpected status code: %d", statusCode)
	}

	// Copy body since response will be released
	return append([]byte(nil), resp.Body()...), nil
}

// ClearBuffer clears the read-ahead buffer to free memory
func (rr *HTTPRangeReader) ClearBuffer() {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	rr.buffer = nil
	rr.bufferStart = -1
}
