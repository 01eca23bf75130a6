// Package codec decodes HTTP response bodies according to their
// Content-Encoding and gzip-compresses outbound payloads.
package codec

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/net/html/charset"
)

// advertised is sent as Accept-Encoding. Every listed scheme must have a
// decoder below.
const advertised = "gzip, deflate, br"

const chunkSize = 32 * 1024

// Encoding identifies a content coding.
type Encoding int8

const (
	EncodingIdentity Encoding = iota
	EncodingGzip
	EncodingDeflate
	EncodingBrotli
	EncodingZstd
)

// lookup maps Content-Encoding tokens to decoders. Unknown tokens pass
// through untouched.
var lookup = map[string]Encoding{
	"":         EncodingIdentity,
	"identity": EncodingIdentity,
	"gzip":     EncodingGzip,
	"x-gzip":   EncodingGzip,
	"deflate":  EncodingDeflate,
	"br":       EncodingBrotli,
	"zstd":     EncodingZstd,
}

var (
	chunkPool = sync.Pool{
		New: func() interface{} {
			b := make([]byte, chunkSize)
			return &b
		},
	}
	gzipWriterPool = sync.Pool{
		New: func() interface{} {
			return gzip.NewWriter(io.Discard)
		},
	}
)

// AdvertisedEncodings returns the Accept-Encoding value for outbound requests.
func AdvertisedEncodings() string {
	return advertised
}

// ParseEncoding resolves a single Content-Encoding token, case-insensitively.
// The second result is false for tokens with no decoder.
func ParseEncoding(token string) (Encoding, bool) {
	enc, ok := lookup[strings.ToLower(strings.TrimSpace(token))]
	return enc, ok
}

// Decode reads body to the end, undoing the codings named in the
// Content-Encoding header, and returns the text. A Content-Type charset
// other than UTF-8 is transcoded. limit caps the decoded size; zero or less
// means unbounded.
func Decode(header http.Header, body io.Reader, limit int64) (string, error) {
	r, closeFn, err := NewReader(header.Get("Content-Encoding"), body)
	if err != nil {
		return "", err
	}
	defer closeFn()

	acc := NewAccumulator(limit)
	raw, err := Drain(r, acc)
	if err != nil {
		return "", err
	}

	text, err := toUTF8(header.Get("Content-Type"), raw)
	if err != nil {
		return "", err
	}
	return string(text), nil
}

// NewReader wraps r with the decoders for a Content-Encoding header value.
// Codings listed as "gzip, br" were applied in that order, so they are
// removed last to first.
func NewReader(contentEncoding string, r io.Reader) (io.Reader, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	tokens := strings.Split(contentEncoding, ",")
	for i := len(tokens) - 1; i >= 0; i-- {
		enc, ok := ParseEncoding(tokens[i])
		if !ok {
			continue
		}
		next, closeFn, err := wrap(enc, r)
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		r = next
		if closeFn != nil {
			closers = append(closers, closeFn)
		}
	}
	return r, closeAll, nil
}

func wrap(enc Encoding, r io.Reader) (io.Reader, func(), error) {
	switch enc {
	case EncodingGzip:
		br := bufio.NewReader(r)
		if empty(br) {
			return br, nil, nil
		}
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, nil, fmt.Errorf("codec: gzip: %w", err)
		}
		return zr, func() { _ = zr.Close() }, nil
	case EncodingDeflate:
		br := bufio.NewReader(r)
		if empty(br) {
			return br, nil, nil
		}
		if hasZlibHeader(br) {
			zr, err := zlib.NewReader(br)
			if err != nil {
				return nil, nil, fmt.Errorf("codec: deflate: %w", err)
			}
			return zr, func() { _ = zr.Close() }, nil
		}
		fr := flate.NewReader(br)
		return fr, func() { _ = fr.Close() }, nil
	case EncodingBrotli:
		return brotli.NewReader(r), nil, nil
	case EncodingZstd:
		d, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("codec: zstd: %w", err)
		}
		return d, d.Close, nil
	default:
		return r, nil, nil
	}
}

func empty(br *bufio.Reader) bool {
	_, err := br.Peek(1)
	return errors.Is(err, io.EOF)
}

// hasZlibHeader reports whether the stream starts with an RFC 1950 header.
// Some servers send raw RFC 1951 data for "deflate".
func hasZlibHeader(br *bufio.Reader) bool {
	h, err := br.Peek(2)
	if err != nil {
		return false
	}
	return h[0]&0x0f == 8 && (uint16(h[0])<<8|uint16(h[1]))%31 == 0
}

// Drain pulls chunks from r into acc until EOF or the first error.
func Drain(r io.Reader, acc *Accumulator) ([]byte, error) {
	bufp := chunkPool.Get().(*[]byte)
	defer chunkPool.Put(bufp)
	chunk := *bufp

	for {
		n, err := r.Read(chunk)
		if n > 0 {
			if perr := acc.Push(chunk[:n]); perr != nil {
				return nil, acc.Fail(perr)
			}
		}
		if err == io.EOF {
			return acc.Finish()
		}
		if err != nil {
			return nil, acc.Fail(err)
		}
	}
}

func toUTF8(contentType string, b []byte) ([]byte, error) {
	if contentType == "" {
		return b, nil
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return b, nil
	}
	label := strings.ToLower(strings.TrimSpace(params["charset"]))
	switch label {
	case "", "utf-8", "utf8", "us-ascii":
		return b, nil
	}
	enc, name := charset.Lookup(label)
	if enc == nil {
		return b, nil
	}
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return nil, fmt.Errorf("codec: transcode %s: %w", name, err)
	}
	return out, nil
}

// Encode gzip-compresses b. Failures are returned so callers can fall back
// to the uncompressed payload.
func Encode(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	z := gzipWriterPool.Get().(*gzip.Writer)
	defer gzipWriterPool.Put(z)

	z.Reset(&buf)
	if _, err := z.Write(b); err != nil {
		return nil, fmt.Errorf("codec: gzip encode: %w", err)
	}
	if err := z.Close(); err != nil {
		return nil, fmt.Errorf("codec: gzip encode: %w", err)
	}
	return buf.Bytes(), nil
}
