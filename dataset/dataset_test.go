package dataset

import (
	"bytes"
	"context"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func texts(d *Dataset) []string {
	out := make([]string, 0, d.Len())
	for _, r := range d.Records() {
		out = append(out, r.String("text"))
	}
	return out
}

func numbered(n int) *Dataset {
	recs := make([]Record, n)
	for i := range recs {
		recs[i] = Record{"text": fmt.Sprintf("r%d", i), "n": float64(i)}
	}
	return New(recs)
}

func TestNew_UnionSchema(t *testing.T) {
	d := New([]Record{{"a": 1}, {"b": 2}})
	if !reflect.DeepEqual(d.Columns(), []string{"a", "b"}) {
		t.Fatalf("expected columns [a b], got %v", d.Columns())
	}
	if v, ok := d.At(0)["b"]; !ok || v != nil {
		t.Fatalf("expected missing column to read as nil, got %v (present=%v)", v, ok)
	}
}

func TestMapBatches_PreservesOrder(t *testing.T) {
	d := numbered(2500)
	out, err := d.MapBatches(context.Background(), MapOptions{Workers: 8, BatchSize: 7}, func(b *Batch) (*Batch, error) {
		col := b.Column("text")
		up := make([]any, len(col))
		for i, v := range col {
			up[i] = strings.ToUpper(v.(string))
		}
		if err := b.SetColumn("text", up); err != nil {
			return nil, err
		}
		return b, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Len() != 2500 {
		t.Fatalf("expected 2500 records, got %d", out.Len())
	}
	for i, s := range texts(out) {
		if s != fmt.Sprintf("R%d", i) {
			t.Fatalf("record %d out of order: %q", i, s)
		}
	}
	if texts(d)[0] != "r0" {
		t.Fatal("source dataset was mutated")
	}
}

func TestMapBatches_ErrorAborts(t *testing.T) {
	d := numbered(10)
	_, err := d.MapBatches(context.Background(), MapOptions{Workers: 2, BatchSize: 3}, func(b *Batch) (*Batch, error) {
		return nil, fmt.Errorf("broken")
	})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestMapBatches_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := numbered(10).MapBatches(ctx, MapOptions{Workers: 1, BatchSize: 1}, func(b *Batch) (*Batch, error) {
		return b, nil
	})
	if err == nil {
		t.Fatal("expected context error")
	}
}

func TestMapBatches_AddsColumn(t *testing.T) {
	d := numbered(3)
	out, err := d.MapBatches(context.Background(), MapOptions{Workers: 1, BatchSize: 2}, func(b *Batch) (*Batch, error) {
		vals := make([]any, b.Len())
		for i := range vals {
			vals[i] = true
		}
		return b, b.SetColumn("flag", vals)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.HasColumn("flag") || out.At(2)["flag"] != true {
		t.Fatalf("expected flag column, got %v", out.Columns())
	}
}

func TestFilter_StableSubsequence(t *testing.T) {
	d := numbered(3001)
	out, err := d.Filter(context.Background(), 4, func(r Record) bool {
		return int(r["n"].(float64))%3 == 0
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	prev := -1.0
	for _, r := range out.Records() {
		n := r["n"].(float64)
		if n <= prev {
			t.Fatalf("order broken at %v after %v", n, prev)
		}
		prev = n
	}
	if out.Len() != 1001 {
		t.Fatalf("expected 1001 records, got %d", out.Len())
	}
}

func TestFilter_PredicateSeesCopy(t *testing.T) {
	d := New([]Record{{"text": "a"}})
	_, _ = d.Filter(context.Background(), 1, func(r Record) bool {
		r["text"] = "mutated"
		return true
	})
	if d.At(0)["text"] != "a" {
		t.Fatal("predicate mutation leaked into dataset")
	}
}

func TestWithColumnAndRemove(t *testing.T) {
	d := New([]Record{{"text": "a"}})
	withStats := d.WithColumn(StatsColumn, func() any { return map[string]any{} })
	if !withStats.HasColumn(StatsColumn) {
		t.Fatal("expected stats column")
	}
	if d.HasColumn(StatsColumn) {
		t.Fatal("source dataset gained a column")
	}
	if withStats.WithColumn(StatsColumn, nil) != withStats {
		t.Fatal("expected unchanged dataset when column exists")
	}
	stripped := withStats.RemoveColumns(StatsColumn)
	if stripped.HasColumn(StatsColumn) {
		t.Fatal("expected stats column removed")
	}
}

func TestTakeIndicesShuffle(t *testing.T) {
	d := numbered(10)
	if d.Take(3).Len() != 3 || d.Take(99).Len() != 10 {
		t.Fatal("unexpected Take length")
	}
	picked := d.Indices([]int{4, 1})
	if !reflect.DeepEqual(texts(picked), []string{"r4", "r1"}) {
		t.Fatalf("unexpected Indices result %v", texts(picked))
	}
	a, b := d.Shuffle(7), d.Shuffle(7)
	if !reflect.DeepEqual(texts(a), texts(b)) {
		t.Fatal("expected deterministic shuffle for the same seed")
	}
}

func TestConcat(t *testing.T) {
	a := New([]Record{{"text": "a"}})
	b := New([]Record{{"text": "b", "lang": "en"}})
	c := Concat(a, nil, b)
	if c.Len() != 2 {
		t.Fatalf("expected 2 records, got %d", c.Len())
	}
	if !reflect.DeepEqual(c.Columns(), []string{"text", "lang"}) {
		t.Fatalf("unexpected columns %v", c.Columns())
	}
	if _, ok := a.At(0)["lang"]; ok {
		t.Fatal("concat mutated its input")
	}
}

func TestRecordGet(t *testing.T) {
	r := Record{"meta": map[string]any{"score": 0.5}, "a.b": 1}
	if v, ok := r.Get("meta.score"); !ok || v != 0.5 {
		t.Fatalf("expected 0.5, got %v", v)
	}
	if v, ok := r.Get("a.b"); !ok || v != 1 {
		t.Fatalf("expected literal dotted key to win, got %v", v)
	}
	if _, ok := r.Get("meta.missing"); ok {
		t.Fatal("expected missing path")
	}
}

func TestBatch_RoundTrip(t *testing.T) {
	recs := []Record{{"text": "a", "n": 1}, {"text": "b"}}
	b := BatchOf([]string{"text", "n"}, recs)
	if b.Len() != 2 || !b.IsAligned() {
		t.Fatalf("expected aligned batch of 2, got len=%d", b.Len())
	}
	rows := b.Rows()
	if rows[1]["n"] != nil {
		t.Fatalf("expected nil for missing value, got %v", rows[1]["n"])
	}
	if err := b.SetColumn("n", []any{1}); err == nil {
		t.Fatal("expected length mismatch error")
	}
}

func TestJSONL_RoundTrip(t *testing.T) {
	d := New([]Record{{"text": "héllo <b>", "score": 0.7}, {"text": "x", "score": 1.0}})
	var buf bytes.Buffer
	if err := WriteJSONL(&buf, d); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.Contains(buf.String(), `<b>`) {
		t.Fatal("expected html characters to stay unescaped")
	}
	back, err := ReadJSONL(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(back.Records(), d.Records()) {
		t.Fatalf("round trip mismatch: %v vs %v", back.Records(), d.Records())
	}
}

func TestReadJSONL_BadLine(t *testing.T) {
	_, err := ReadJSONL(strings.NewReader("{\"a\":1}\n\nnot json\n"))
	if err == nil || !strings.Contains(err.Error(), "line 3") {
		t.Fatalf("expected error naming line 3, got %v", err)
	}
}
