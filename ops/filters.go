package ops

import (
	"context"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/kbukum/dataflow/dataset"
	"github.com/kbukum/dataflow/op"
)

// rangeFilter keeps records whose numeric field lies in [min, max).
type rangeFilter struct {
	field    string
	min, max float64
}

func (f rangeFilter) key() string { return "range:" + f.field }

func (f rangeFilter) StatsKeys() []string { return []string{f.key()} }

func (f rangeFilter) ComputeStats(_ context.Context, r dataset.Record) (dataset.Record, error) {
	stats := r.Stats()
	if _, ok := stats[f.key()]; ok {
		return r, nil
	}
	stats[f.key()] = nil
	if v, ok := r.Get(f.field); ok {
		if n, ok := toFloat(v); ok {
			stats[f.key()] = n
		}
	}
	return r, nil
}

func (f rangeFilter) Keep(r dataset.Record) (bool, error) {
	n, ok := toFloat(r.Stats()[f.key()])
	return ok && n >= f.min && n < f.max, nil
}

type rangeParams struct {
	Field string  `mapstructure:"field" validate:"required"`
	Min   float64 `mapstructure:"min"`
	Max   float64 `mapstructure:"max" validate:"gtfield=Min"`
}

func newRangeFilter(args map[string]any) (op.Operator, error) {
	p := rangeParams{Field: "score", Min: 0.6, Max: 2.0}
	base, err := newBase("range_filter", op.KindFilter, args, &p)
	if err != nil {
		return nil, err
	}
	return op.NewFilter(base, rangeFilter{field: p.Field, min: p.Min, max: p.Max}), nil
}

// highScoreParams names the same range under score_* keys.
type highScoreParams struct {
	ScoreField string  `mapstructure:"score_field" validate:"required"`
	MinScore   float64 `mapstructure:"min_score"`
	MaxScore   float64 `mapstructure:"max_score" validate:"gtfield=MinScore"`
}

func newHighScoreFilter(args map[string]any) (op.Operator, error) {
	p := highScoreParams{ScoreField: "score", MinScore: 0.6, MaxScore: 2.0}
	base, err := newBase("text_high_score_filter", op.KindFilter, args, &p)
	if err != nil {
		return nil, err
	}
	return op.NewFilter(base, rangeFilter{field: p.ScoreField, min: p.MinScore, max: p.MaxScore}), nil
}

// textLength keeps records whose text length in runes lies in
// [min_len, max_len].
type textLength struct {
	key            string
	minLen, maxLen int
}

func (f textLength) StatsKeys() []string { return []string{"text_len"} }

func (f textLength) ComputeStats(_ context.Context, r dataset.Record) (dataset.Record, error) {
	stats := r.Stats()
	if _, ok := stats["text_len"]; ok {
		return r, nil
	}
	s, err := textOf(r, f.key)
	if err != nil {
		return nil, err
	}
	stats["text_len"] = utf8.RuneCountInString(s)
	return r, nil
}

func (f textLength) Keep(r dataset.Record) (bool, error) {
	n, ok := toFloat(r.Stats()["text_len"])
	return ok && n >= float64(f.minLen) && n <= float64(f.maxLen), nil
}

type lengthParams struct {
	MinLen int `mapstructure:"min_len" validate:"gte=0"`
	MaxLen int `mapstructure:"max_len" validate:"gtefield=MinLen"`
}

func newTextLength(args map[string]any) (op.Operator, error) {
	p := lengthParams{MinLen: 10, MaxLen: 1 << 31}
	base, err := newBase("text_length_filter", op.KindFilter, args, &p)
	if err != nil {
		return nil, err
	}
	return op.NewFilter(base, textLength{key: base.Options().TextKey, minLen: p.MinLen, maxLen: p.MaxLen}), nil
}

// bloomFilter drops texts seen earlier in the run. It depends on record
// order, so it is stateful.
type bloomFilter struct {
	key  string
	hash hashFunc

	mu    sync.Mutex
	chain *bloomChain
}

func (f *bloomFilter) Stateful() bool { return true }

func (f *bloomFilter) StatsKeys() []string { return []string{"bloom"} }

func (f *bloomFilter) ComputeStats(_ context.Context, r dataset.Record) (dataset.Record, error) {
	stats := r.Stats()
	if _, ok := stats["bloom"]; ok {
		return r, nil
	}
	s, err := textOf(r, f.key)
	if err != nil {
		return nil, err
	}
	digest := f.hash([]byte(s))
	f.mu.Lock()
	seen := f.chain.Add(digest)
	f.mu.Unlock()
	stats["bloom"] = seen
	return r, nil
}

func (f *bloomFilter) Keep(r dataset.Record) (bool, error) {
	seen, _ := r.Stats()["bloom"].(bool)
	return !seen, nil
}

type bloomParams struct {
	HashFunc        string  `mapstructure:"hash_func" validate:"oneof=md5 sha256 xxh3 blake3"`
	ErrorRate       float64 `mapstructure:"error_rate" validate:"gt=0,lt=1"`
	InitialCapacity int     `mapstructure:"initial_capacity" validate:"gte=1"`
}

func newBloomFilter(args map[string]any) (op.Operator, error) {
	p := bloomParams{HashFunc: "md5", ErrorRate: 1e-6, InitialCapacity: 100}
	base, err := newBase("text_bloom_filter", op.KindFilter, args, &p)
	if err != nil {
		return nil, err
	}
	return op.NewFilter(base, &bloomFilter{
		key:   base.Options().TextKey,
		hash:  digests[p.HashFunc],
		chain: newBloomChain(p.InitialCapacity, p.ErrorRate),
	}), nil
}

// gatherGenerated turns generated instruction/response pairs into a
// conversation and drops empty or repeated prompts.
type gatherGenerated struct {
	mu   sync.Mutex
	seen map[string]bool
}

var generationMarkers = strings.NewReplacer("||", "", "<|im_end|>", "")

func cleanGenerated(v any) string {
	s, _ := v.(string)
	s = strings.TrimSpace(generationMarkers.Replace(s))
	if utf8.RuneCountInString(s) < 3 {
		return ""
	}
	return s
}

func (g *gatherGenerated) Stateful() bool { return true }

func (g *gatherGenerated) StatsKeys() []string { return []string{"is_drop"} }

func (g *gatherGenerated) ComputeStats(_ context.Context, r dataset.Record) (dataset.Record, error) {
	stats := r.Stats()
	if _, ok := stats["is_drop"]; ok {
		return r, nil
	}
	prompt, answer := cleanGenerated(r["instruction"]), cleanGenerated(r["response"])
	r["first_prompt"], r["first_answer"] = prompt, answer
	r["conversation"] = nil
	if prompt != "" && answer != "" {
		r["conversation"] = []any{
			map[string]any{"role": "user", "content": prompt},
			map[string]any{"role": "assistant", "content": answer},
		}
	}

	g.mu.Lock()
	dup := g.seen[prompt]
	g.seen[prompt] = true
	g.mu.Unlock()

	stats["is_drop"] = dup || r["conversation"] == nil
	return r, nil
}

func (g *gatherGenerated) Keep(r dataset.Record) (bool, error) {
	drop, _ := r.Stats()["is_drop"].(bool)
	return !drop, nil
}

func newGatherGenerated(args map[string]any) (op.Operator, error) {
	base, err := newBase("gather_generated_data", op.KindFilter, args, nil)
	if err != nil {
		return nil, err
	}
	return op.NewFilter(base, &gatherGenerated{seen: map[string]bool{}}), nil
}

func filters() []builtin {
	return []builtin{
		{
			name: "range_filter",
			info: op.Info{Kind: op.KindFilter, Description: "Keeps records whose numeric field lies in [min, max).", Params: []op.Param{
				{Name: "field", Default: "score", Doc: "dotted path of the numeric field"},
				{Name: "min", Default: 0.6, Doc: "inclusive lower bound"},
				{Name: "max", Default: 2.0, Doc: "exclusive upper bound"},
			}},
			factory: newRangeFilter,
		},
		{
			name: "text_high_score_filter",
			info: op.Info{Kind: op.KindFilter, Description: "Keeps records whose score lies in [min_score, max_score).", Params: []op.Param{
				{Name: "score_field", Default: "score", Doc: "dotted path of the score field"},
				{Name: "min_score", Default: 0.6, Doc: "inclusive lower bound"},
				{Name: "max_score", Default: 2.0, Doc: "exclusive upper bound"},
			}},
			factory: newHighScoreFilter,
		},
		{
			name: "text_length_filter",
			info: op.Info{Kind: op.KindFilter, Description: "Keeps texts whose length in characters lies in [min_len, max_len].", Params: []op.Param{
				textKeyParam,
				{Name: "min_len", Default: 10, Doc: "minimum length"},
				{Name: "max_len", Default: 1 << 31, Doc: "maximum length"},
			}},
			factory: newTextLength,
		},
		{
			name: "text_bloom_filter",
			info: op.Info{Kind: op.KindFilter, Description: "Drops texts already seen in the run, using a scalable bloom filter.", Params: []op.Param{
				textKeyParam,
				{Name: "hash_func", Default: "md5", Doc: "one of md5, sha256, xxh3, blake3"},
				{Name: "error_rate", Default: 1e-6, Doc: "target false positive rate"},
				{Name: "initial_capacity", Default: 100, Doc: "capacity of the first bit array"},
			}},
			factory: newBloomFilter,
		},
		{
			name:    "gather_generated_data",
			info:    op.Info{Kind: op.KindFilter, Description: "Builds conversations from generated instruction and response fields, dropping empty or repeated prompts."},
			factory: newGatherGenerated,
		},
	}
}
