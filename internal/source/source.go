// Package source reads the delimited input file: it decodes the declared
// encoding to UTF-8, reads the header row and yields one record per line.
package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

const utf8BOM = "\ufeff"

// aliases maps encoding names that neither the WHATWG nor the IANA index
// knows onto one they do.
var aliases = map[string]string{
	"utf-8-sig": "utf-8",
	"utf8":      "utf-8",
	"cp932":     "shift_jis",
	"ms932":     "shift_jis",
	"sjis":      "shift_jis",
	"eucjp":     "euc-jp",
}

// ErrNoHeader is returned when the file has no header row.
var ErrNoHeader = errors.New("source: file has no header row")

// Record is one physical line of the file.
type Record struct {
	// Line is the 1-based line number where the record starts.
	Line   int
	Fields []string
}

// Reader yields records after the header row.
type Reader struct {
	path   string
	f      *os.File
	r      *csv.Reader
	header []string
}

// Lookup resolves an encoding name. An empty name means UTF-8.
func Lookup(name string) (encoding.Encoding, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		n = "utf-8"
	}
	if a, ok := aliases[n]; ok {
		n = a
	}
	if enc, err := htmlindex.Get(n); err == nil {
		return enc, nil
	}
	enc, err := ianaindex.IANA.Encoding(n)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("source: unsupported encoding %q", name)
	}
	return enc, nil
}

// Decoder returns a transformer that decodes enc to UTF-8 and drops bytes
// that cannot be decoded. UTF-8 input is only validated, so a U+FFFD that
// is really written in the file is kept. Other decoders report bad bytes as
// U+FFFD and those runes are removed.
func Decoder(enc encoding.Encoding) transform.Transformer {
	if enc == unicode.UTF8 {
		return dropInvalidUTF8{}
	}
	return transform.Chain(enc.NewDecoder(), runes.Remove(runes.Predicate(func(r rune) bool {
		return r == utf8.RuneError
	})))
}

// dropInvalidUTF8 copies well-formed UTF-8 and skips every byte that does
// not start a valid sequence.
type dropInvalidUTF8 struct{ transform.NopResetter }

func (dropInvalidUTF8) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		r, size := utf8.DecodeRune(src[nSrc:])
		if r == utf8.RuneError && size == 1 {
			if !atEOF && !utf8.FullRune(src[nSrc:]) {
				return nDst, nSrc, transform.ErrShortSrc
			}
			nSrc++
			continue
		}
		if nDst+size > len(dst) {
			return nDst, nSrc, transform.ErrShortDst
		}
		nDst += copy(dst[nDst:], src[nSrc:nSrc+size])
		nSrc += size
	}
	return nDst, nSrc, nil
}

// Open opens path, decodes it from the named encoding and reads the header
// row. The first header cell has any UTF-8 byte order mark removed.
func Open(ctx context.Context, path, encodingName string) (*Reader, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	enc, err := Lookup(encodingName)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("source: open %s: %w", path, err)
	}

	cr := csv.NewReader(transform.NewReader(f, Decoder(enc)))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		_ = f.Close()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %s", ErrNoHeader, path)
		}
		return nil, fmt.Errorf("source: read header %s: %w", path, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}
	return &Reader{path: path, f: f, r: cr, header: header}, nil
}

// Path returns the path the reader was opened with.
func (r *Reader) Path() string { return r.path }

// Header returns a copy of the header row.
func (r *Reader) Header() []string { return append([]string(nil), r.header...) }

// Next returns the next record, or io.EOF after the last one. Empty lines
// are skipped.
func (r *Reader) Next() (Record, error) {
	fields, err := r.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("source: read %s: %w", r.path, err)
	}
	line, _ := r.r.FieldPos(0)
	return Record{Line: line, Fields: fields}, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error { return r.f.Close() }
