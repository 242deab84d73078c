package export

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/kbukum/dataflow/dataset"
)

func sample(n int) *dataset.Dataset {
	recs := make([]dataset.Record, n)
	for i := range recs {
		recs[i] = dataset.Record{"text": string(rune('a' + i)), dataset.StatsColumn: map[string]any{"x": 1}, dataset.HashColumn: "h"}
	}
	return dataset.New(recs)
}

func readAll(t *testing.T, path string) *dataset.Dataset {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	ds, err := dataset.ReadJSONL(f)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return ds
}

func TestFileExporter_SingleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "result.jsonl")
	branch, err := (&FileExporter{Path: path}).Export(context.Background(), sample(3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if branch != NoBranch {
		t.Fatalf("expected %s, got %s", NoBranch, branch)
	}
	ds := readAll(t, path)
	if ds.Len() != 3 || ds.HasColumn(dataset.StatsColumn) || ds.HasColumn(dataset.HashColumn) {
		t.Fatalf("expected 3 stripped records, got %v", ds.Columns())
	}
}

func TestFileExporter_KeepsReservedColumns(t *testing.T) {
	dir := t.TempDir()
	if _, err := (&FileExporter{Path: dir, KeepStats: true, KeepHashes: true}).Export(context.Background(), sample(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ds := readAll(t, filepath.Join(dir, "data.jsonl"))
	if !ds.HasColumn(dataset.StatsColumn) || !ds.HasColumn(dataset.HashColumn) {
		t.Fatalf("expected reserved columns kept, got %v", ds.Columns())
	}
}

func TestFileExporter_ShardsInParallel(t *testing.T) {
	dir := t.TempDir()
	e := &FileExporter{Path: dir, ShardSize: 2, Parallel: true}
	if _, err := e.Export(context.Background(), sample(5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var texts []string
	for i := 0; i < 3; i++ {
		ds := readAll(t, filepath.Join(dir, "data-0000"+string(rune('0'+i))+"-of-00003.jsonl"))
		for _, r := range ds.Records() {
			texts = append(texts, r.String("text"))
		}
	}
	if len(texts) != 5 || texts[0] != "a" || texts[4] != "e" {
		t.Fatalf("expected shards in order, got %v", texts)
	}
}

func TestFileExporter_Branches(t *testing.T) {
	dir := t.TempDir()
	e := &FileExporter{Path: dir, BranchOrigin: "main"}
	for _, want := range []string{"v1", "v2"} {
		got, err := e.Export(context.Background(), sample(1))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Fatalf("expected %s, got %s", want, got)
		}
		if _, err := os.Stat(filepath.Join(dir, want, "data.jsonl")); err != nil {
			t.Fatalf("expected output under %s: %v", want, err)
		}
	}
}

func TestNextBranch(t *testing.T) {
	tests := []struct {
		origin   string
		existing []string
		want     string
	}{
		{"main", nil, "v1"},
		{"main", []string{"v1", "v3", "vx", "dev.9"}, "v4"},
		{"dev", nil, "dev.1"},
		{"dev", []string{"dev.2", "dev.10", "v7", "devx.11"}, "dev.11"},
		{"a.b", []string{"a.b.1", "axb.5"}, "a.b.2"},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			if got := NextBranch(tt.origin, tt.existing); got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestSQLiteExporter(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "out.db")
	e := &SQLiteExporter{DSN: dsn, Table: "cleaned", RunID: "r1"}
	loc, err := e.Export(context.Background(), sample(3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc != "sqlite://"+dsn+"#cleaned" {
		t.Fatalf("unexpected location %s", loc)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	rows, err := db.Query("SELECT run_id, data FROM cleaned ORDER BY id")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()
	var texts []string
	for rows.Next() {
		var runID, data string
		if err := rows.Scan(&runID, &data); err != nil {
			t.Fatal(err)
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			t.Fatal(err)
		}
		if runID != "r1" || rec[dataset.StatsColumn] != nil {
			t.Fatalf("unexpected row %s %v", runID, rec)
		}
		texts = append(texts, rec["text"].(string))
	}
	if len(texts) != 3 || texts[0] != "a" || texts[2] != "c" {
		t.Fatalf("unexpected rows %v", texts)
	}
}

func TestSQLiteExporter_RejectsBadTable(t *testing.T) {
	e := &SQLiteExporter{DSN: filepath.Join(t.TempDir(), "x.db"), Table: "x; DROP"}
	if _, err := e.Export(context.Background(), sample(1)); err == nil {
		t.Fatal("expected invalid table error")
	}
}
