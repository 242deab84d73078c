package executor

import (
	"path/filepath"
	"testing"

	"github.com/kbukum/dataflow/checkpoint"
	"github.com/kbukum/dataflow/compress"
	"github.com/kbukum/dataflow/export"
	"github.com/kbukum/dataflow/ingest"
	"github.com/kbukum/dataflow/recipe"
	"github.com/kbukum/dataflow/resilience"
	"github.com/kbukum/dataflow/tracer"
)

func parseRecipe(t *testing.T, body string) *recipe.Recipe {
	t.Helper()
	r, err := recipe.Parse([]byte(body))
	if err != nil {
		t.Fatalf("parse recipe: %v", err)
	}
	return r
}

func TestFromRecipe_FileCollaborators(t *testing.T) {
	work := t.TempDir()
	r := parseRecipe(t, `
dataset_path: https://example.com/data.jsonl
export_path: /tmp/out
branch: main
work_dir: `+work+`
use_checkpoint: true
cache_compress: zstd
export_shard_size: 100
process:
  - lowercase_mapper:
`)
	e, err := FromRecipe(r, Deps{Registry: testRegistry(t)}, BuildOptions{Retry: resilience.DefaultRetryConfig(), MaxProc: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.RunID() == "" || e.cfg.MaxProc != 2 || len(e.cfg.Plan) != 1 {
		t.Fatalf("unexpected config %+v", e.cfg)
	}
	if _, ok := e.deps.Ingester.(*ingest.HTTPIngester); !ok {
		t.Fatalf("expected HTTP ingester, got %T", e.deps.Ingester)
	}
	fe, ok := e.deps.Exporter.(*export.FileExporter)
	if !ok || fe.BranchOrigin != "main" || fe.ShardSize != 100 {
		t.Fatalf("unexpected exporter %#v", e.deps.Exporter)
	}
	cm, ok := e.deps.Checkpoints.(*checkpoint.FileManager)
	if !ok || cm.Codec != compress.Zstd || cm.Dir != filepath.Join(work, "ckpt") {
		t.Fatalf("unexpected checkpoint manager %#v", e.deps.Checkpoints)
	}
	ft, ok := e.deps.Tracer.(*tracer.FileTracer)
	if !ok || ft.Dir() != filepath.Join(work, "trace") {
		t.Fatalf("unexpected tracer %#v", e.deps.Tracer)
	}
}

func TestFromRecipe_SQLiteExport(t *testing.T) {
	r := parseRecipe(t, `
dataset_path: ./in.jsonl
export_path: sqlite:///tmp/out.db#cleaned
open_tracer: false
process:
  - lowercase_mapper:
`)
	e, err := FromRecipe(r, Deps{Registry: testRegistry(t)}, BuildOptions{Retry: resilience.DefaultRetryConfig(), RunID: "nightly"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	se, ok := e.deps.Exporter.(*export.SQLiteExporter)
	if !ok || se.DSN != "/tmp/out.db" || se.Table != "cleaned" || se.RunID != e.RunID() {
		t.Fatalf("unexpected exporter %#v", e.deps.Exporter)
	}
	if _, ok := e.deps.Ingester.(ingest.LocalIngester); !ok {
		t.Fatalf("expected local ingester, got %T", e.deps.Ingester)
	}
	if e.deps.Checkpoints != nil || e.deps.Tracer != nil {
		t.Fatal("expected no checkpoints and no tracer")
	}
	if e.RunID() != "nightly" {
		t.Fatalf("expected run id nightly, got %s", e.RunID())
	}
}
