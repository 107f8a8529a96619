// File: internal/platform/compression.go
package platform

import (
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

// Pools for decompression readers to reduce allocation overhead across
// repeated platform calls.
var (
	gzipReaderPool = sync.Pool{
		New: func() interface{} {
			// Allocate the struct only; Reset() runs before every use.
			return new(gzip.Reader)
		},
	}

	brotliReaderPool = sync.Pool{
		New: func() interface{} {
			// brotli.NewReader(nil) yields a reusable reader ready for Reset().
			return brotli.NewReader(nil)
		},
	}
)

// Shared empty reader used to safely park pooled readers without holding a
// reference to the previous body.
var emptyReader = strings.NewReader("")

func getGzipReader(r io.Reader) (*gzip.Reader, error) {
	zr := gzipReaderPool.Get().(*gzip.Reader)
	if err := zr.Reset(r); err != nil {
		// Reset re-initializes state, so the allocation stays reusable even
		// when the header was invalid.
		gzipReaderPool.Put(zr)
		return nil, err
	}
	return zr, nil
}

func putGzipReader(zr *gzip.Reader) {
	if zr == nil {
		return
	}
	// Reset with an empty reader rather than nil; it returns io.EOF which is
	// safe to ignore, and releases the previous body reference.
	_ = zr.Reset(emptyReader)
	gzipReaderPool.Put(zr)
}

func getBrotliReader(r io.Reader) (*brotli.Reader, error) {
	br := brotliReaderPool.Get().(*brotli.Reader)
	if err := br.Reset(r); err != nil {
		brotliReaderPool.Put(br)
		return nil, err
	}
	return br, nil
}

func putBrotliReader(br *brotli.Reader) {
	if br == nil {
		return
	}
	_ = br.Reset(emptyReader)
	brotliReaderPool.Put(br)
}

// CompressionMiddleware is an http.RoundTripper that negotiates response
// compression with the platform and transparently decompresses the body
// based on the Content-Encoding header. Supports brotli, gzip, and both
// zlib-wrapped and raw deflate.
type CompressionMiddleware struct {
	// Transport is the wrapped http.RoundTripper. If nil,
	// http.DefaultTransport is used.
	Transport http.RoundTripper
}

// NewCompressionMiddleware wraps the provided transport, defaulting to
// http.DefaultTransport when nil.
func NewCompressionMiddleware(transport http.RoundTripper) *CompressionMiddleware {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &CompressionMiddleware{Transport: transport}
}

// RoundTrip implements http.RoundTripper. It advertises supported encodings
// on the request and decompresses the response body when necessary.
func (cm *CompressionMiddleware) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		// Brotli first; it generally compresses event payloads best.
		req.Header.Set("Accept-Encoding", "br, gzip, deflate, identity")
	}

	resp, err := cm.Transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if err := decompressResponse(resp); err != nil {
		// The body stream may be partially consumed at this point; close it
		// and discard the response rather than hand corruption upward.
		_ = resp.Body.Close()
		return nil, fmt.Errorf("failed to initialize response decompression: %w", err)
	}
	return resp, nil
}

// closeWrapper closes both the decompression reader and the underlying body
// and returns pooled readers via a callback.
type closeWrapper struct {
	io.ReadCloser
	originalBody io.ReadCloser
	poolCallback func()
}

func (w *closeWrapper) Close() error {
	if w.poolCallback != nil {
		w.poolCallback()
		w.poolCallback = nil
	}
	err1 := w.ReadCloser.Close()
	err2 := w.originalBody.Close()
	return errors.Join(err1, err2)
}

// decompressResponse wraps resp.Body with the decoders named by its
// Content-Encoding header, applied in reverse order for layered encodings.
// On success the encoding headers are cleared and resp.Uncompressed is set.
// On error the body should be considered corrupt and discarded by the caller.
func decompressResponse(resp *http.Response) error {
	if resp == nil || resp.Body == nil {
		return nil
	}

	encodings := resp.Header.Values("Content-Encoding")
	if len(encodings) == 0 {
		return nil
	}

	body := resp.Body
	// Encodings are listed in application order; decode in reverse.
	for i := len(encodings) - 1; i >= 0; i-- {
		encoding := strings.ToLower(strings.TrimSpace(encodings[i]))
		switch encoding {
		case "", "identity":
			continue
		case "gzip":
			zr, err := getGzipReader(body)
			if err != nil {
				return fmt.Errorf("resetting gzip reader: %w", err)
			}
			captured := zr
			body = &closeWrapper{
				ReadCloser:   zr,
				originalBody: body,
				poolCallback: func() { putGzipReader(captured) },
			}
		case "br":
			br, err := getBrotliReader(body)
			if err != nil {
				return fmt.Errorf("resetting brotli reader: %w", err)
			}
			captured := br
			body = &closeWrapper{
				ReadCloser:   io.NopCloser(br),
				originalBody: body,
				poolCallback: func() { putBrotliReader(captured) },
			}
		case "deflate":
			// Servers disagree on whether deflate means zlib-wrapped or raw.
			// Sniff the zlib header and fall back to a raw inflate stream.
			wrapped, err := newDeflateReader(body)
			if err != nil {
				return fmt.Errorf("initializing deflate reader: %w", err)
			}
			body = &closeWrapper{ReadCloser: wrapped, originalBody: body}
		default:
			return fmt.Errorf("unsupported content encoding: %q", encoding)
		}
	}

	resp.Body = body
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

// newDeflateReader returns a reader for a deflate body, accepting both the
// RFC-correct zlib framing and the raw stream some servers emit.
func newDeflateReader(r io.Reader) (io.ReadCloser, error) {
	head := make([]byte, 2)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	prefixed := io.MultiReader(strings.NewReader(string(head[:n])), r)

	// 0x78 is the zlib CMF byte for the deflate method with a 32K window.
	if n == 2 && head[0] == 0x78 {
		return zlib.NewReader(prefixed)
	}
	return flate.NewReader(prefixed), nil
}
