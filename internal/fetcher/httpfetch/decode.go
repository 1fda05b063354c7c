package httpfetch

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
)

const (
	sniffBytes = 10 * 1024
	// minConfidence is the chardet confidence (0-100) needed to trust a guess.
	minConfidence = 70

	encodingUTF8   = "utf-8"
	encodingLatin1 = "iso-8859-1"
)

var gzipMagic = []byte{0x1f, 0x8b}

// Decode converts body to well-formed UTF-8 and reports the encoding it was
// read as. It never fails: an absent or ISO-8859-1 charset in contentType is
// replaced by a confident chardet guess or UTF-8, unknown encodings fall back
// to UTF-8 with replacement characters, and decoder failures fall back to
// ISO-8859-1, which accepts every byte sequence.
func Decode(body []byte, contentType string) ([]byte, string) {
	name := declaredCharset(contentType)
	if name == "" || isLatin1(name) {
		name = sniffCharset(body)
	}

	enc, canonical := lookupEncoding(name)
	if enc == nil {
		return toValidUTF8(body), encodingUTF8
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return latin1(body), encodingLatin1
	}
	return toValidUTF8(out), canonical
}

func declaredCharset(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(params["charset"]))
}

func isLatin1(name string) bool {
	switch name {
	case "iso-8859-1", "iso8859-1", "latin1", "latin-1", "l1":
		return true
	}
	return false
}

// sniffCharset guesses the encoding from the first bytes of body, returning
// UTF-8 unless the detector is confident.
func sniffCharset(body []byte) string {
	if len(body) == 0 {
		return encodingUTF8
	}
	sample := body
	if len(sample) > sniffBytes {
		sample = sample[:sniffBytes]
	}
	result, err := chardet.NewHtmlDetector().DetectBest(sample)
	if err != nil || result == nil || result.Charset == "" || result.Confidence < minConfidence {
		return encodingUTF8
	}
	return strings.ToLower(result.Charset)
}

// lookupEncoding returns nil for UTF-8 and for names it cannot resolve.
func lookupEncoding(name string) (encoding.Encoding, string) {
	if name == "" || name == encodingUTF8 || name == "utf8" {
		return nil, encodingUTF8
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, encodingUTF8
	}
	canonical, err := htmlindex.Name(enc)
	if err != nil || canonical == encodingUTF8 {
		return nil, encodingUTF8
	}
	return enc, canonical
}

func toValidUTF8(b []byte) []byte {
	if utf8.Valid(b) {
		return b
	}
	return bytes.ToValidUTF8(b, []byte(string(utf8.RuneError)))
}

func latin1(b []byte) []byte {
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		// ISO-8859-1 maps every byte; this only guards against a broken decoder.
		return toValidUTF8(b)
	}
	return out
}

// decompress undoes the Content-Encoding the server applied. Setting
// Accept-Encoding by hand disables net/http's transparent gzip handling.
func decompress(body []byte, contentEncoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "gzip", "x-gzip":
		return gunzip(body)
	case "deflate":
		return inflate(body)
	case "", "identity":
		if bytes.HasPrefix(body, gzipMagic) {
			return gunzip(body)
		}
		return body, nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", contentEncoding)
	}
}

func gunzip(body []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("open gzip: %w", err)
	}
	defer r.Close() //nolint:errcheck // reader over memory
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read gzip: %w", err)
	}
	return out, nil
}

// inflate accepts both zlib-wrapped and raw deflate streams; servers disagree
// on which one "deflate" means.
func inflate(body []byte) ([]byte, error) {
	if zr, err := zlib.NewReader(bytes.NewReader(body)); err == nil {
		defer zr.Close() //nolint:errcheck // reader over memory
		out, readErr := io.ReadAll(zr)
		if readErr == nil {
			return out, nil
		}
	}
	fr := flate.NewReader(bytes.NewReader(body))
	defer fr.Close() //nolint:errcheck // reader over memory
	out, err := io.ReadAll(fr)
	if err != nil {
		return nil, fmt.Errorf("read deflate: %w", err)
	}
	return out, nil
}
