// Package tracer writes the samples operators report about the records they
// changed, removed or found duplicated.
package tracer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/kbukum/dataflow/logger"
	"github.com/kbukum/dataflow/op"
)

// FileTracer appends samples to one JSONL file per operator position:
//
//	mapper-<index>-<name>.jsonl     {before, after} pairs
//	filter-<index>-<name>.jsonl     removed records
//	selector-<index>-<name>.jsonl   records left unselected
//	duplicate-<index>-<name>.jsonl  {kept, duplicate} pairs
type FileTracer struct {
	dir string
	log *logger.Logger
	mu  sync.Mutex
}

var _ op.Tracer = (*FileTracer)(nil)

// NewFileTracer returns a tracer writing under dir.
func NewFileTracer(dir string, log *logger.Logger) *FileTracer {
	if log == nil {
		log = logger.NewNop()
	}
	return &FileTracer{dir: dir, log: log.WithComponent("tracer")}
}

// Dir returns the directory trace files are written to.
func (t *FileTracer) Dir() string { return t.dir }

// Trace implements op.Tracer.
func (t *FileTracer) Trace(_ context.Context, ev op.TraceEvent) error {
	var (
		prefix string
		rows   []any
	)
	switch {
	case len(ev.Changed) > 0:
		prefix = "mapper"
		for _, c := range ev.Changed {
			rows = append(rows, c)
		}
	case len(ev.Removed) > 0:
		prefix = "filter"
		if ev.Kind == op.KindSelector {
			prefix = "selector"
		}
		for _, r := range ev.Removed {
			rows = append(rows, r)
		}
	case len(ev.Duplicates) > 0:
		prefix = "duplicate"
		for _, d := range ev.Duplicates {
			rows = append(rows, d)
		}
	default:
		return nil
	}
	path := filepath.Join(t.dir, FileName(prefix, ev.Ref))

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("tracer: %s: %w", path, err)
		}
	}
	t.log.Debug("trace written", logger.Fields(
		logger.FieldOperator, ev.Ref.Name,
		logger.FieldPipelineIndex, ev.Ref.Index,
		"samples", len(rows),
	))
	return f.Close()
}

// FileName returns the trace file name for an operator position.
func FileName(prefix string, ref op.Ref) string {
	return fmt.Sprintf("%s-%d-%s.jsonl", prefix, ref.Index, ref.Name)
}
