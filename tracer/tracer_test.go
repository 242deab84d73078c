package tracer

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/kbukum/dataflow/dataset"
	"github.com/kbukum/dataflow/op"
)

func lines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	var out []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		out = append(out, m)
	}
	return out
}

func TestFileTracer(t *testing.T) {
	dir := t.TempDir()
	tr := NewFileTracer(dir, nil)
	ctx := context.Background()

	events := []op.TraceEvent{
		{Ref: op.Ref{Name: "trim", Index: 0}, Changed: []op.Change{{Before: dataset.Record{"text": " a "}, After: dataset.Record{"text": "a"}}}},
		{Ref: op.Ref{Name: "range_filter", Index: 1}, Removed: []dataset.Record{{"text": "x"}, {"text": "y"}}},
		{Ref: op.Ref{Name: "document_deduplicator", Index: 2}, Duplicates: []op.DupPair{{Kept: dataset.Record{"text": "d"}, Duplicate: dataset.Record{"text": "d"}}}},
		{Ref: op.Ref{Name: "noop", Index: 3}},
		{Ref: op.Ref{Name: "topk", Index: 4}, Kind: op.KindSelector, Removed: []dataset.Record{{"text": "z"}}},
	}
	for _, ev := range events {
		if err := tr.Trace(ctx, ev); err != nil {
			t.Fatalf("trace: %v", err)
		}
	}

	mapper := lines(t, filepath.Join(dir, "mapper-0-trim.jsonl"))
	if len(mapper) != 1 || mapper[0]["after"].(map[string]any)["text"] != "a" {
		t.Fatalf("unexpected mapper trace %v", mapper)
	}
	if got := lines(t, filepath.Join(dir, "filter-1-range_filter.jsonl")); len(got) != 2 {
		t.Fatalf("expected 2 removed samples, got %v", got)
	}
	dup := lines(t, filepath.Join(dir, "duplicate-2-document_deduplicator.jsonl"))
	if len(dup) != 1 || dup[0]["kept"] == nil || dup[0]["duplicate"] == nil {
		t.Fatalf("unexpected duplicate trace %v", dup)
	}
	if got := lines(t, filepath.Join(dir, "selector-4-topk.jsonl")); len(got) != 1 || got[0]["text"] != "z" {
		t.Fatalf("expected 1 unselected sample, got %v", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "mapper-3-noop.jsonl")); !os.IsNotExist(err) {
		t.Fatal("expected no file for an empty event")
	}
}

func TestFileTracer_Appends(t *testing.T) {
	dir := t.TempDir()
	tr := NewFileTracer(dir, nil)
	ev := op.TraceEvent{Ref: op.Ref{Name: "f", Index: 4}, Removed: []dataset.Record{{"text": "x"}}}
	for i := 0; i < 2; i++ {
		if err := tr.Trace(context.Background(), ev); err != nil {
			t.Fatalf("trace: %v", err)
		}
	}
	if got := lines(t, filepath.Join(dir, FileName("filter", ev.Ref))); len(got) != 2 {
		t.Fatalf("expected appended samples, got %d", len(got))
	}
}

func TestFileTracer_UnwritableDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	tr := NewFileTracer(filepath.Join(file, "trace"), nil)
	err := tr.Trace(context.Background(), op.TraceEvent{Ref: op.Ref{Name: "f"}, Removed: []dataset.Record{{}}})
	if err == nil {
		t.Fatal("expected an error when the directory cannot be created")
	}
}
