// Package format loads the ingested source into a dataset.
package format

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kbukum/dataflow/compress"
	"github.com/kbukum/dataflow/dataset"
	"github.com/kbukum/dataflow/logger"
)

// DefaultSuffixes are the file types loaded when a recipe names none.
var DefaultSuffixes = []string{".jsonl", ".json", ".csv", ".txt"}

// Formatter loads a local file or directory.
type Formatter interface {
	Load(ctx context.Context, source string, workers int) (*dataset.Dataset, error)
}

// FileFormatter reads JSONL, JSON arrays, CSV with a header row, and plain
// text. A text file becomes one record under TextKey. Files may carry a
// compression extension on top of their type, as in data.jsonl.zst.
type FileFormatter struct {
	Suffixes []string
	TextKey  string
	Log      *logger.Logger
}

// NewFileFormatter returns a formatter for suffixes, or DefaultSuffixes.
func NewFileFormatter(suffixes []string, textKey string, log *logger.Logger) *FileFormatter {
	if len(suffixes) == 0 {
		suffixes = DefaultSuffixes
	}
	if textKey == "" {
		textKey = "text"
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &FileFormatter{Suffixes: suffixes, TextKey: textKey, Log: log.WithComponent("format")}
}

// Load implements Formatter. Files are read in parallel; the result lists
// them in lexical path order.
func (f *FileFormatter) Load(ctx context.Context, source string, workers int) (*dataset.Dataset, error) {
	files, err := f.files(source)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("format: no files matching %v under %s", f.Suffixes, source)
	}
	parts := make([][]dataset.Record, len(files))
	g, gctx := errgroup.WithContext(ctx)
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			recs, err := f.loadFile(path)
			if err != nil {
				return fmt.Errorf("format: %s: %w", path, err)
			}
			parts[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var all []dataset.Record
	for _, p := range parts {
		all = append(all, p...)
	}
	f.Log.Info("dataset loaded", logger.Fields("files", len(files), logger.FieldRecordsOut, len(all)))
	return dataset.New(all), nil
}

func (f *FileFormatter) files(source string) ([]string, error) {
	info, err := os.Stat(source)
	if err != nil {
		return nil, fmt.Errorf("format: %w", err)
	}
	if !info.IsDir() {
		if f.kind(source) == "" {
			return nil, fmt.Errorf("format: %s does not match %v", source, f.Suffixes)
		}
		return []string{source}, nil
	}
	var out []string
	err = filepath.WalkDir(source, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && f.kind(path) != "" {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("format: %w", err)
	}
	sort.Strings(out)
	return out, nil
}

// kind returns the matching suffix of path, ignoring a compression
// extension, or "" when path is not loaded.
func (f *FileFormatter) kind(path string) string {
	p := strings.ToLower(path)
	p = strings.TrimSuffix(p, compress.ForPath(p).Ext())
	for _, s := range f.Suffixes {
		if strings.HasSuffix(p, strings.ToLower(s)) {
			return strings.ToLower(s)
		}
	}
	return ""
}

func (f *FileFormatter) loadFile(path string) ([]dataset.Record, error) {
	r, err := compress.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	switch f.kind(path) {
	case ".jsonl":
		return dataset.ReadRecords(r)
	case ".json":
		return readJSON(r)
	case ".csv":
		return readCSV(r)
	case ".txt":
		b, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		return []dataset.Record{{f.TextKey: string(b)}}, nil
	}
	return nil, fmt.Errorf("unsupported file type")
}

// readJSON accepts an array of objects or a single object.
func readJSON(r io.Reader) ([]dataset.Record, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var arr []dataset.Record
	if err := json.Unmarshal(b, &arr); err == nil {
		return arr, nil
	}
	var one dataset.Record
	if err := json.Unmarshal(b, &one); err != nil {
		return nil, err
	}
	return []dataset.Record{one}, nil
}

func readCSV(r io.Reader) ([]dataset.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []dataset.Record
	for {
		row, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		rec := make(dataset.Record, len(header))
		for i, col := range header {
			if i < len(row) {
				rec[col] = row[i]
			} else {
				rec[col] = nil
			}
		}
		out = append(out, rec)
	}
}
