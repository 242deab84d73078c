package compress

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// CompressFile writes path+c.Ext() and removes path. It returns the new
// path. None leaves the file alone.
func CompressFile(c Codec, path string) (string, error) {
	if c == None || c == "" {
		return path, nil
	}
	dst := path + c.Ext()
	if err := copyCompressed(c, path, dst); err != nil {
		_ = os.Remove(dst)
		return "", fmt.Errorf("compress %s: %w", path, err)
	}
	if err := os.Remove(path); err != nil {
		return "", fmt.Errorf("compress %s: %w", path, err)
	}
	return dst, nil
}

func copyCompressed(c Codec, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	w, err := c.NewWriter(out)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, in); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return out.Close()
}

// CompressDir compresses every regular file under dir that is not already
// compressed. It returns the new paths in walk order.
func CompressDir(ctx context.Context, c Codec, dir string) ([]string, error) {
	if c == None || c == "" {
		return nil, nil
	}
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && ForPath(path) == None {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("compress %s: %w", dir, err)
	}
	out := make([]string, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		p, err := CompressFile(c, f)
		if err != nil {
			return out, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Open opens path for reading, decoding it with the codec its extension
// names.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := ForPath(path).NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return readCloser{Reader: r, closers: []io.Closer{r, f}}, nil
}

type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (rc readCloser) Close() error {
	var first error
	for _, c := range rc.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
