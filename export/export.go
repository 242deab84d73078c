// Package export writes the final dataset to its destination.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kbukum/dataflow/dataset"
	"github.com/kbukum/dataflow/logger"
)

// NoBranch is returned when the export is not versioned.
const NoBranch = "N/A"

// Exporter writes a dataset and returns the branch or location it wrote.
type Exporter interface {
	Export(ctx context.Context, ds *dataset.Dataset) (string, error)
}

// FileExporter writes JSONL. A Path ending in .jsonl is a file; anything
// else is a directory holding data.jsonl or its shards.
type FileExporter struct {
	Path string
	// ShardSize splits the output every ShardSize records; zero writes one
	// file.
	ShardSize int
	// Parallel writes shards concurrently.
	Parallel   bool
	KeepStats  bool
	KeepHashes bool
	// BranchOrigin, when set, versions the output: each export goes to a
	// new sub-directory named by NextBranch.
	BranchOrigin string
	Log          *logger.Logger
}

// Export implements Exporter.
func (e *FileExporter) Export(ctx context.Context, ds *dataset.Dataset) (string, error) {
	log := e.Log
	if log == nil {
		log = logger.NewNop()
	}
	ds = Strip(ds, e.KeepStats, e.KeepHashes)

	branch := NoBranch
	target := e.Path
	if e.BranchOrigin != "" {
		existing, err := subdirs(e.Path)
		if err != nil {
			return "", err
		}
		branch = NextBranch(e.BranchOrigin, existing)
		target = filepath.Join(e.Path, branch)
	}

	files := e.layout(target, ds.Len())
	if err := os.MkdirAll(filepath.Dir(files[0].path), 0o755); err != nil {
		return "", fmt.Errorf("export: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if e.Parallel {
		g.SetLimit(len(files))
	} else {
		g.SetLimit(1)
	}
	for _, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return writeShard(f.path, ds.Indices(f.rows()))
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	log.Info("dataset exported", logger.Fields(
		"path", target,
		"branch", branch,
		"shards", len(files),
		logger.FieldRecordsOut, ds.Len(),
	))
	return branch, nil
}

// Strip removes the stats and hash columns unless they are kept.
func Strip(ds *dataset.Dataset, keepStats, keepHashes bool) *dataset.Dataset {
	var drop []string
	if !keepStats {
		drop = append(drop, dataset.StatsColumn)
	}
	if !keepHashes {
		drop = append(drop, dataset.HashColumn)
	}
	if len(drop) == 0 {
		return ds
	}
	return ds.RemoveColumns(drop...)
}

type shard struct {
	path   string
	lo, hi int
}

func (s shard) rows() []int {
	idx := make([]int, s.hi-s.lo)
	for i := range idx {
		idx[i] = s.lo + i
	}
	return idx
}

func (e *FileExporter) layout(target string, n int) []shard {
	base := target
	if !strings.HasSuffix(target, ".jsonl") {
		base = filepath.Join(target, "data.jsonl")
	}
	if e.ShardSize <= 0 || n <= e.ShardSize {
		return []shard{{path: base, lo: 0, hi: n}}
	}
	stem := strings.TrimSuffix(base, ".jsonl")
	total := (n + e.ShardSize - 1) / e.ShardSize
	out := make([]shard, 0, total)
	for i := 0; i < total; i++ {
		lo := i * e.ShardSize
		hi := min(lo+e.ShardSize, n)
		out = append(out, shard{
			path: fmt.Sprintf("%s-%05d-of-%05d.jsonl", stem, i, total),
			lo:   lo,
			hi:   hi,
		})
	}
	return out
}

func writeShard(path string, ds *dataset.Dataset) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	defer f.Close()
	if err := dataset.WriteJSONL(f, ds); err != nil {
		return fmt.Errorf("export: %s: %w", path, err)
	}
	return f.Close()
}

func subdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

var mainBranch = regexp.MustCompile(`^v(\d+)$`)

// NextBranch returns the next version name for origin given the existing
// branch names: v1, v2, ... for main, and <origin>.1, <origin>.2, ... for
// any other origin.
func NextBranch(origin string, existing []string) string {
	pattern, format := mainBranch, "v%d"
	if origin != "main" {
		pattern = regexp.MustCompile(`^` + regexp.QuoteMeta(origin) + `\.(\d+)$`)
		format = origin + ".%d"
	}
	highest := 0
	for _, name := range existing {
		m := pattern.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > highest {
			highest = n
		}
	}
	return fmt.Sprintf(format, highest+1)
}
