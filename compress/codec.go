// Package compress provides the stream codecs used for checkpoint snapshots
// and cache directories.
package compress

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec names a compression format.
type Codec string

const (
	None Codec = "none"
	Gzip Codec = "gzip"
	Zstd Codec = "zstd"
	LZ4  Codec = "lz4"
)

var extensions = map[Codec]string{
	None: "",
	Gzip: ".gz",
	Zstd: ".zst",
	LZ4:  ".lz4",
}

// Parse returns the codec named s. The empty string means None.
func Parse(s string) (Codec, error) {
	c := Codec(strings.ToLower(strings.TrimSpace(s)))
	if c == "" {
		return None, nil
	}
	if _, ok := extensions[c]; !ok {
		return "", fmt.Errorf("compress: unknown codec %q", s)
	}
	return c, nil
}

// Ext returns the file extension for c, including the dot.
func (c Codec) Ext() string { return extensions[c] }

// ForPath returns the codec whose extension path carries, or None.
func ForPath(path string) Codec {
	for c, ext := range extensions {
		if ext != "" && strings.HasSuffix(path, ext) {
			return c
		}
	}
	return None
}

// NewWriter wraps w. Closing the writer flushes the codec but not w.
func (c Codec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	switch c {
	case None, "":
		return nopWriteCloser{w}, nil
	case Gzip:
		return gzip.NewWriter(w), nil
	case Zstd:
		return zstd.NewWriter(w)
	case LZ4:
		return lz4.NewWriter(w), nil
	}
	return nil, fmt.Errorf("compress: unknown codec %q", string(c))
}

// NewReader wraps r.
func (c Codec) NewReader(r io.Reader) (io.ReadCloser, error) {
	switch c {
	case None, "":
		return io.NopCloser(r), nil
	case Gzip:
		return gzip.NewReader(r)
	case Zstd:
		d, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return d.IOReadCloser(), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	}
	return nil, fmt.Errorf("compress: unknown codec %q", string(c))
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
