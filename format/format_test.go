package format

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/kbukum/dataflow/compress"
	"github.com/kbukum/dataflow/dataset"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestFileFormatter_Directory(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "a.jsonl"), `{"text":"a1"}`+"\n"+`{"text":"a2"}`+"\n")
	write(t, filepath.Join(dir, "b.json"), `[{"text":"b1"},{"text":"b2","lang":"en"}]`)
	write(t, filepath.Join(dir, "c.csv"), "text,score\nc1,0.5\nc2\n")
	write(t, filepath.Join(dir, "sub", "d.txt"), "d1")
	write(t, filepath.Join(dir, "skip.md"), "# no")

	ds, err := NewFileFormatter(nil, "", nil).Load(context.Background(), dir, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got []string
	for _, r := range ds.Records() {
		got = append(got, r.String("text"))
	}
	want := []string{"a1", "a2", "b1", "b2", "c1", "c2", "d1"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if ds.At(4)["score"] != "0.5" || ds.At(5)["score"] != nil {
		t.Fatalf("unexpected csv values %v %v", ds.At(4), ds.At(5))
	}
}

func TestFileFormatter_SuffixFilter(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "a.jsonl"), `{"text":"a"}`)
	write(t, filepath.Join(dir, "b.txt"), "b")
	ds, err := NewFileFormatter([]string{".TXT"}, "content", nil).Load(context.Background(), dir, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ds.Len() != 1 || ds.At(0)["content"] != "b" {
		t.Fatalf("expected only the text file, got %v", ds.Records())
	}
}

func TestFileFormatter_CompressedFile(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "data.jsonl")
	f, err := os.Create(plain)
	if err != nil {
		t.Fatal(err)
	}
	if err := dataset.WriteJSONL(f, dataset.New([]dataset.Record{{"text": "z"}})); err != nil {
		t.Fatal(err)
	}
	f.Close()
	path, err := compress.CompressFile(compress.Zstd, plain)
	if err != nil {
		t.Fatal(err)
	}
	ds, err := NewFileFormatter(nil, "", nil).Load(context.Background(), path, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ds.Len() != 1 || ds.At(0)["text"] != "z" {
		t.Fatalf("unexpected records %v", ds.Records())
	}
}

func TestFileFormatter_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewFileFormatter(nil, "", nil).Load(context.Background(), dir, 1); err == nil {
		t.Fatal("expected error for a directory with no matching files")
	}
	write(t, filepath.Join(dir, "bad.jsonl"), "{oops\n")
	if _, err := NewFileFormatter(nil, "", nil).Load(context.Background(), dir, 1); err == nil {
		t.Fatal("expected parse error")
	}
}
