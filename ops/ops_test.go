package ops

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/kbukum/dataflow/dataset"
	"github.com/kbukum/dataflow/errors"
	"github.com/kbukum/dataflow/llm"
	"github.com/kbukum/dataflow/logger"
	"github.com/kbukum/dataflow/op"
	"github.com/kbukum/dataflow/sizing"
)

type recordingTracer struct{ events []op.TraceEvent }

func (t *recordingTracer) Trace(_ context.Context, ev op.TraceEvent) error {
	t.events = append(t.events, ev)
	return nil
}

func registry(t *testing.T) *op.Registry {
	t.Helper()
	reg := op.NewRegistry()
	if err := RegisterBuiltins(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	return reg
}

func build(t *testing.T, name string, args map[string]any) op.Operator {
	t.Helper()
	f, err := registry(t).Lookup(name)
	if err != nil {
		t.Fatalf("lookup %s: %v", name, err)
	}
	o, err := f(args)
	if err != nil {
		t.Fatalf("build %s: %v", name, err)
	}
	o.Bind(0, "test")
	return o
}

func newRC() (*op.RunContext, *recordingTracer) {
	tr := &recordingTracer{}
	rc := op.NewRunContext("test", logger.NewNop())
	rc.Tracer = tr
	rc.Accountant = sizing.StaticAccountant{Budget: sizing.Budget{CPU: 4, MemoryGB: 16}}
	return rc, tr
}

func run(t *testing.T, name string, args map[string]any, records []dataset.Record) *dataset.Dataset {
	t.Helper()
	rc, _ := newRC()
	out, err := build(t, name, args).Run(context.Background(), rc, dataset.New(records))
	if err != nil {
		t.Fatalf("run %s: %v", name, err)
	}
	return out
}

func texts(ds *dataset.Dataset) []string {
	out := make([]string, ds.Len())
	for i, r := range ds.Records() {
		out[i] = r.String("text")
	}
	return out
}

func textRecords(ss ...string) []dataset.Record {
	out := make([]dataset.Record, len(ss))
	for i, s := range ss {
		out[i] = dataset.Record{"text": s}
	}
	return out
}

func TestRegisterBuiltins(t *testing.T) {
	reg := registry(t)
	for _, name := range []string{
		"trim_whitespace_mapper", "whitespace_normalization_mapper", "unicode_normalization_mapper",
		"remove_accents_mapper", "clean_html_mapper", "lowercase_mapper", "make_cosmopedia_mapper",
		"range_filter", "text_high_score_filter", "text_length_filter", "text_bloom_filter", "gather_generated_data",
		"document_deduplicator",
		"topk_specified_field_selector", "frequency_specified_field_selector", "random_selector",
	} {
		if _, err := reg.Lookup(name); err != nil {
			t.Fatalf("expected %s registered, got %v", name, err)
		}
	}
	if err := RegisterBuiltins(reg); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestMappers(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		in   string
		want string
	}{
		{"trim_whitespace_mapper", nil, "  hello world \n", "hello world"},
		{"whitespace_normalization_mapper", nil, " a \t b\n\nc ", "a b c"},
		{"unicode_normalization_mapper", nil, "ﬁne", "fine"},
		{"unicode_normalization_mapper", map[string]any{"normalization": "nfc"}, "é", "é"},
		{"remove_accents_mapper", nil, "café naïve", "cafe naive"},
		{"clean_html_mapper", nil, "<p>Hello <b>world</b></p><script>x()</script><p>bye</p>", "Hello\nworld\nbye"},
		{"lowercase_mapper", nil, "MiXeD", "mixed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := run(t, tt.name, tt.args, textRecords(tt.in))
			if got := texts(out); len(got) != 1 || got[0] != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestMappers_Idempotent(t *testing.T) {
	in := textRecords("  Ça   va\t<b>bien</b>  ", "ok")
	for _, name := range []string{"trim_whitespace_mapper", "whitespace_normalization_mapper", "remove_accents_mapper", "lowercase_mapper"} {
		t.Run(name, func(t *testing.T) {
			once := run(t, name, nil, in)
			twice := run(t, name, nil, once.Records())
			if !reflect.DeepEqual(texts(once), texts(twice)) {
				t.Fatalf("expected idempotent output, got %q then %q", texts(once), texts(twice))
			}
		})
	}
}

func TestMapper_NonStringTextIsDropped(t *testing.T) {
	out := run(t, "trim_whitespace_mapper", nil, []dataset.Record{{"text": 3.0}, {"text": " a "}})
	if got := texts(out); !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("expected only the string record to survive, got %q", got)
	}
}

func TestLowercaseMapper_IsBatched(t *testing.T) {
	m, ok := build(t, "lowercase_mapper", nil).(*op.Mapper)
	if !ok || !m.Batched() {
		t.Fatal("expected a batched mapper")
	}
}

func TestUnicodeNormalization_InvalidForm(t *testing.T) {
	f, _ := registry(t).Lookup("unicode_normalization_mapper")
	if _, err := f(map[string]any{"normalization": "NFX"}); !errors.HasCode(err, errors.ErrCodeInvalidConfig) {
		t.Fatalf("expected INVALID_CONFIG, got %v", err)
	}
}

func TestRangeFilter(t *testing.T) {
	records := []dataset.Record{
		{"text": "low", "score": 0.5},
		{"text": "ok", "score": 0.7},
		{"text": "top", "score": 2.0},
		{"text": "str", "score": "0.9"},
		{"text": "none"},
	}
	out := run(t, "range_filter", nil, records)
	if got := texts(out); !reflect.DeepEqual(got, []string{"ok"}) {
		t.Fatalf("expected only ok, got %q", got)
	}
	if v := out.At(0)[dataset.StatsColumn].(map[string]any)["range:score"]; v != 0.7 {
		t.Fatalf("expected stat 0.7, got %v", v)
	}
}

func TestRangeFilter_DottedFieldAndArgs(t *testing.T) {
	records := []dataset.Record{
		{"text": "a", "meta": map[string]any{"q": 3}},
		{"text": "b", "meta": map[string]any{"q": 9}},
	}
	out := run(t, "range_filter", map[string]any{"field": "meta.q", "min": "1", "max": "5"}, records)
	if got := texts(out); !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("expected a, got %q", got)
	}
}

func TestRangeFilter_BadArgs(t *testing.T) {
	f, _ := registry(t).Lookup("range_filter")
	tests := []map[string]any{
		{"min": 3, "max": 1},
		{"minimum": 1},
	}
	for i, args := range tests {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			if _, err := f(args); !errors.HasCode(err, errors.ErrCodeInvalidConfig) {
				t.Fatalf("expected INVALID_CONFIG, got %v", err)
			}
		})
	}
}

func TestTextHighScoreFilter(t *testing.T) {
	recs := []dataset.Record{
		{"text": "low", "score": 0.5, "quality": 0.95},
		{"text": "edge", "score": 0.6, "quality": 0.2},
		{"text": "mid", "score": 0.9, "quality": 0.7},
		{"text": "top", "score": 2.0, "quality": 1.5},
		{"text": "none", "score": nil},
	}
	tests := []struct {
		name string
		args map[string]any
		want []string
	}{
		{name: "defaults", args: nil, want: []string{"edge", "mid"}},
		{name: "min_score", args: map[string]any{"min_score": 0.8}, want: []string{"mid"}},
		{name: "max_score", args: map[string]any{"max_score": 3.0}, want: []string{"edge", "mid", "top"}},
		{name: "score_field", args: map[string]any{"score_field": "quality", "min_score": 0.9}, want: []string{"low", "top"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := make([]dataset.Record, len(recs))
			for i, r := range recs {
				in[i] = r.Clone()
			}
			if got := texts(run(t, "text_high_score_filter", tt.args, in)); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestTextHighScoreFilter_RejectsRangeKeys(t *testing.T) {
	reg := registry(t)
	f, _ := reg.Lookup("text_high_score_filter")
	for _, args := range []map[string]any{
		{"min": 0.8},
		{"min_score": 1.0, "max_score": 0.5},
	} {
		if _, err := f(args); !errors.HasCode(err, errors.ErrCodeInvalidConfig) {
			t.Fatalf("expected INVALID_CONFIG for %v, got %v", args, err)
		}
	}
}

func TestTextLengthFilter(t *testing.T) {
	out := run(t, "text_length_filter", map[string]any{"min_len": 2, "max_len": 4}, textRecords("a", "ab", "日本語!", "abcde"))
	if got := texts(out); !reflect.DeepEqual(got, []string{"ab", "日本語!"}) {
		t.Fatalf("unexpected survivors %q", got)
	}
}

func TestBloomFilter(t *testing.T) {
	for _, hf := range []string{"md5", "sha256", "xxh3", "blake3"} {
		t.Run(hf, func(t *testing.T) {
			o := build(t, "text_bloom_filter", map[string]any{"hash_func": hf})
			if !o.Stateful() {
				t.Fatal("expected a stateful filter")
			}
			rc, _ := newRC()
			out, err := o.Run(context.Background(), rc, dataset.New(textRecords("a", "b", "a", "c", "b")))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := texts(out); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
				t.Fatalf("expected first occurrences, got %q", got)
			}
		})
	}
}

func TestBloomFilter_KeepsAllWhenUnique(t *testing.T) {
	out := run(t, "text_bloom_filter", nil, textRecords("x", "y", "z"))
	if out.Len() != 3 {
		t.Fatalf("expected every unique text kept, got %d", out.Len())
	}
}

func TestBloomChain_Grows(t *testing.T) {
	c := newBloomChain(10, 1e-4)
	for i := 0; i < 1000; i++ {
		c.Add([]byte(fmt.Sprintf("item-%d", i)))
	}
	if len(c.layers) < 2 {
		t.Fatalf("expected the chain to grow, got %d layers", len(c.layers))
	}
	for i := 0; i < 1000; i++ {
		if !c.Add([]byte(fmt.Sprintf("item-%d", i))) {
			t.Fatalf("false negative for item-%d", i)
		}
	}
	if c.Len() > 1000 {
		t.Fatalf("expected at most 1000 entries, got %d", c.Len())
	}
}

func TestBloomChain_FalsePositivesStayRare(t *testing.T) {
	c := newBloomChain(100, 1e-3)
	for i := 0; i < 5000; i++ {
		c.Add(digests["md5"]([]byte(fmt.Sprintf("seen-%d", i))))
	}
	fp := 0
	for i := 0; i < 5000; i++ {
		if c.Add(digests["md5"]([]byte(fmt.Sprintf("fresh-%d", i)))) {
			fp++
		}
	}
	if fp > 25 {
		t.Fatalf("expected few false positives, got %d of 5000", fp)
	}
}

func TestGatherGeneratedData(t *testing.T) {
	out := run(t, "gather_generated_data", nil, []dataset.Record{
		{"instruction": "What is Go?||", "response": "A language.<|im_end|>"},
		{"instruction": "What is Go?", "response": "Again."},
		{"instruction": "hi", "response": "too short prompt"},
		{"instruction": "Why?", "response": "ok"},
		{"instruction": "Name a river", "response": "The Nile"},
	})
	if out.Len() != 2 {
		t.Fatalf("expected 2 conversations, got %d", out.Len())
	}
	first := out.At(0)
	if first["first_prompt"] != "What is Go?" || first["first_answer"] != "A language." {
		t.Fatalf("expected cleaned fields, got %v / %v", first["first_prompt"], first["first_answer"])
	}
	conv, ok := first["conversation"].([]any)
	if !ok || len(conv) != 2 {
		t.Fatalf("expected a two-turn conversation, got %v", first["conversation"])
	}
}

func TestDocumentDeduplicator(t *testing.T) {
	rc, tr := newRC()
	o := build(t, "document_deduplicator", map[string]any{"lowercase": true, "ignore_non_character": "true"})
	out, err := o.Run(context.Background(), rc, dataset.New(textRecords("Hello, World!", "unique", "hello world 42", "HELLO WORLD")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := texts(out); !reflect.DeepEqual(got, []string{"Hello, World!", "unique"}) {
		t.Fatalf("expected first occurrences, got %q", got)
	}
	if !out.HasColumn(dataset.HashColumn) {
		t.Fatal("expected hash column")
	}
	if len(tr.events) != 1 || len(tr.events[0].Duplicates) != 2 {
		t.Fatalf("expected two traced duplicate pairs, got %+v", tr.events)
	}
	if tr.events[0].Duplicates[0].Kept.String("text") != "Hello, World!" {
		t.Fatalf("expected pair to point at the first record, got %v", tr.events[0].Duplicates[0].Kept)
	}
}

func TestDocumentDeduplicator_CaseSensitiveByDefault(t *testing.T) {
	out := run(t, "document_deduplicator", map[string]any{"hash_func": "md5"}, textRecords("A", "a", "A"))
	if got := texts(out); !reflect.DeepEqual(got, []string{"A", "a"}) {
		t.Fatalf("unexpected survivors %q", got)
	}
}

func scored(vals ...any) []dataset.Record {
	out := make([]dataset.Record, len(vals))
	for i, v := range vals {
		out[i] = dataset.Record{"text": fmt.Sprint(i), "meta": map[string]any{"score": v}}
	}
	return out
}

func TestTopKSelector(t *testing.T) {
	records := scored(0.3, nil, 0.9, 0.5, 0.9)
	tests := []struct {
		name string
		args map[string]any
		want []string
	}{
		{"descending", map[string]any{"field_key": "meta.score", "topk": 3}, []string{"2", "4", "3"}},
		{"ascending", map[string]any{"field_key": "meta.score", "topk": 2, "reverse": false}, []string{"0", "3"}},
		{"ratio wins", map[string]any{"field_key": "meta.score", "topk": 4, "top_ratio": 0.2}, []string{"2"}},
		{"missing last", map[string]any{"field_key": "meta.score", "topk": 5, "reverse": false}, []string{"0", "3", "2", "4", "1"}},
		{"unset keeps all", map[string]any{"field_key": "meta.score"}, []string{"0", "1", "2", "3", "4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := texts(run(t, "topk_specified_field_selector", tt.args, records)); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestFrequencySelector(t *testing.T) {
	records := []dataset.Record{
		{"text": "0", "lang": "en"},
		{"text": "1", "lang": "fr"},
		{"text": "2", "lang": "en"},
		{"text": "3", "lang": "de"},
		{"text": "4", "lang": "fr"},
		{"text": "5", "lang": "en"},
	}
	out := run(t, "frequency_specified_field_selector", map[string]any{"field_key": "lang", "topk": 2}, records)
	if got := texts(out); !reflect.DeepEqual(got, []string{"0", "1", "2", "4", "5"}) {
		t.Fatalf("expected en and fr groups in order, got %q", got)
	}
}

func TestRandomSelector(t *testing.T) {
	records := make([]dataset.Record, 20)
	for i := range records {
		records[i] = dataset.Record{"text": fmt.Sprint(i), "n": float64(i)}
	}
	args := map[string]any{"select_ratio": 0.5, "select_num": 4, "seed": 7}
	a := run(t, "random_selector", args, records)
	b := run(t, "random_selector", args, records)
	if a.Len() != 4 {
		t.Fatalf("expected 4 records, got %d", a.Len())
	}
	if !reflect.DeepEqual(texts(a), texts(b)) {
		t.Fatal("expected the same seed to select the same records")
	}
	prev := -1.0
	for _, r := range a.Records() {
		if n := r["n"].(float64); n <= prev {
			t.Fatalf("expected original order, got %v after %v", n, prev)
		} else {
			prev = n
		}
	}
}

func TestCount(t *testing.T) {
	tests := []struct {
		total int
		ratio float64
		num   int
		want  int
		ok    bool
	}{
		{10, 0, 0, 10, false},
		{10, 0.35, 0, 3, true},
		{10, 0, 4, 4, true},
		{10, 0.5, 2, 2, true},
		{10, 0.1, 5, 1, true},
		{10, 0, 50, 10, true},
	}
	for _, tt := range tests {
		n, ok := count(tt.total, tt.ratio, tt.num)
		if n != tt.want || ok != tt.ok {
			t.Fatalf("count(%d, %v, %d): expected %d/%v, got %d/%v", tt.total, tt.ratio, tt.num, tt.want, tt.ok, n, ok)
		}
	}
}

// fakeLLM records prompts and answers from a canned function.
type fakeLLM struct {
	mu      sync.Mutex
	prompts []llm.CompletionRequest
	answer  func(user string) (string, error)
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, req)
	f.mu.Unlock()
	out, err := f.answer(req.Messages[len(req.Messages)-1].Content)
	if err != nil {
		return nil, err
	}
	return &llm.CompletionResponse{Content: out}, nil
}

func useFakeLLM(t *testing.T, f *fakeLLM) string {
	t.Helper()
	name := "fake-" + t.Name()
	llm.Register(name, func(cfg llm.Config) (llm.Provider, error) { return f, nil })
	return name
}

func TestMakeCosmopediaMapper(t *testing.T) {
	fake := &fakeLLM{answer: func(user string) (string, error) {
		if strings.Contains(user, "broken") {
			return "", fmt.Errorf("model overloaded")
		}
		return "tutorial", nil
	}}
	dialect := useFakeLLM(t, fake)
	long := strings.Repeat("字", 900)

	out := run(t, "make_cosmopedia_mapper", map[string]any{"dialect": dialect}, []dataset.Record{
		{"title": "How to Sit", "text": "Training your dog"},
		{"title": "Long", "text": long},
		{"content": "from content"},
		{"title": "x", "text": "broken"},
	})

	if out.Len() != 3 {
		t.Fatalf("expected the failing record dropped, got %d records", out.Len())
	}
	for i, r := range out.Records() {
		if r.String("data") != "tutorial" {
			t.Fatalf("record %d: expected data=tutorial, got %v", i, r["data"])
		}
	}
	if got := out.At(2).String("text"); got != "from content" {
		t.Fatalf("expected content moved to text, got %q", got)
	}

	byText := map[string]string{}
	for _, req := range fake.prompts {
		if req.SystemPrompt != cosmopediaSystem {
			t.Fatalf("expected the default system prompt, got %q", req.SystemPrompt)
		}
		user := req.Messages[0].Content
		switch {
		case strings.Contains(user, "Training your dog"):
			byText["short"] = user
		case strings.Contains(user, "字"):
			byText["long"] = user
		}
	}
	if !strings.Contains(byText["short"], "“How to Sit\nTraining your dog”") {
		t.Fatalf("expected title and text in the prompt, got %q", byText["short"])
	}
	excerpt := "Long\n" + strings.Repeat("字", 800-len("Long\n")) + truncationMark
	if !strings.Contains(byText["long"], "“"+excerpt+"”") {
		t.Fatalf("expected the excerpt cut to 800 characters, got %q", byText["long"])
	}
}

func TestMakeCosmopediaMapper_Args(t *testing.T) {
	fake := &fakeLLM{answer: func(string) (string, error) { return "ok", nil }}
	dialect := useFakeLLM(t, fake)

	out := run(t, "make_cosmopedia_mapper", map[string]any{
		"dialect":         dialect,
		"max_chars":       5,
		"target_key":      "tutorial",
		"prompt_template": "excerpt: {web_text}",
	}, []dataset.Record{{"title": "ab", "text": "cdefgh"}})
	if got := out.At(0).String("tutorial"); got != "ok" {
		t.Fatalf("expected tutorial=ok, got %q", got)
	}
	if got := fake.prompts[0].Messages[0].Content; got != "excerpt: ab\ncd......" {
		t.Fatalf("expected the custom template, got %q", got)
	}

	f, _ := registry(t).Lookup("make_cosmopedia_mapper")
	for _, args := range []map[string]any{
		{"dialect": "carrier-pigeon", "base_url": "http://x"},
		{"dialect": "openai"},
		{"dialect": dialect, "timeout": "soon"},
		{"dialect": dialect, "prompt_template": "no placeholder"},
		{"dialect": dialect, "max_chars": 0},
	} {
		if _, err := f(args); !errors.HasCode(err, errors.ErrCodeInvalidConfig) {
			t.Fatalf("expected INVALID_CONFIG for %v, got %v", args, err)
		}
	}
}
