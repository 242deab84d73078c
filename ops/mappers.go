package ops

import (
	"context"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/kbukum/dataflow/dataset"
	"github.com/kbukum/dataflow/op"
)

// textMapper applies fn to the text field of every record.
type textMapper struct {
	key string
	fn  func(string) (string, error)
}

func (m textMapper) Process(_ context.Context, r dataset.Record) (dataset.Record, error) {
	s, err := textOf(r, m.key)
	if err != nil {
		return nil, err
	}
	out, err := m.fn(s)
	if err != nil {
		return nil, err
	}
	r[m.key] = out
	return r, nil
}

func plain(fn func(string) string) func(string) (string, error) {
	return func(s string) (string, error) { return fn(s), nil }
}

// textMapperFactory builds a record mapper around a string function.
func textMapperFactory(name string, fn func(string) string) op.Factory {
	return func(args map[string]any) (op.Operator, error) {
		base, err := newBase(name, op.KindMapper, args, nil)
		if err != nil {
			return nil, err
		}
		return op.NewMapper(base, textMapper{key: base.Options().TextKey, fn: plain(fn)}), nil
	}
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

type unicodeParams struct {
	Form string `mapstructure:"normalization" validate:"oneof=NFC NFKC NFD NFKD"`
}

var forms = map[string]norm.Form{
	"NFC":  norm.NFC,
	"NFKC": norm.NFKC,
	"NFD":  norm.NFD,
	"NFKD": norm.NFKD,
}

func newUnicodeNormalization(args map[string]any) (op.Operator, error) {
	p := unicodeParams{Form: "NFKC"}
	if v, ok := args["normalization"].(string); ok {
		args = cloneArgs(args)
		args["normalization"] = strings.ToUpper(v)
	}
	base, err := newBase("unicode_normalization_mapper", op.KindMapper, args, &p)
	if err != nil {
		return nil, err
	}
	form := forms[p.Form]
	return op.NewMapper(base, textMapper{key: base.Options().TextKey, fn: plain(form.String)}), nil
}

func removeAccents(s string) (string, error) {
	// Transformers carry state; build one per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	return out, err
}

func newRemoveAccents(args map[string]any) (op.Operator, error) {
	base, err := newBase("remove_accents_mapper", op.KindMapper, args, nil)
	if err != nil {
		return nil, err
	}
	return op.NewMapper(base, textMapper{key: base.Options().TextKey, fn: removeAccents}), nil
}

// cleanHTML returns the visible text nodes of s, one per line.
func cleanHTML(s string) (string, error) {
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return "", err
	}
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Template:
				return
			}
		}
		if n.Type == html.TextNode {
			if t := normalizeWhitespace(n.Data); t != "" {
				parts = append(parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.Join(parts, "\n"), nil
}

func newCleanHTML(args map[string]any) (op.Operator, error) {
	base, err := newBase("clean_html_mapper", op.KindMapper, args, nil)
	if err != nil {
		return nil, err
	}
	return op.NewMapper(base, textMapper{key: base.Options().TextKey, fn: cleanHTML}), nil
}

// lowercase works on the text column of a whole chunk. Values that are not
// strings are left alone.
type lowercase struct{ key string }

func (l lowercase) ProcessBatch(_ context.Context, b *dataset.Batch) (*dataset.Batch, error) {
	col := b.Column(l.key)
	if col == nil {
		return b, nil
	}
	out := make([]any, len(col))
	for i, v := range col {
		if s, ok := v.(string); ok {
			out[i] = strings.ToLower(s)
		} else {
			out[i] = v
		}
	}
	if err := b.SetColumn(l.key, out); err != nil {
		return nil, err
	}
	return b, nil
}

func newLowercase(args map[string]any) (op.Operator, error) {
	base, err := newBase("lowercase_mapper", op.KindMapper, args, nil)
	if err != nil {
		return nil, err
	}
	return op.NewMapper(base, lowercase{key: base.Options().TextKey}), nil
}

func cloneArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}

var textKeyParam = op.Param{Name: "text_key", Default: "text", Doc: "field holding the text"}

func mappers() []builtin {
	return []builtin{
		{
			name:    "trim_whitespace_mapper",
			info:    op.Info{Kind: op.KindMapper, Description: "Trims leading and trailing whitespace.", Params: []op.Param{textKeyParam}},
			factory: textMapperFactory("trim_whitespace_mapper", strings.TrimSpace),
		},
		{
			name:    "whitespace_normalization_mapper",
			info:    op.Info{Kind: op.KindMapper, Description: "Collapses whitespace runs to one space and trims.", Params: []op.Param{textKeyParam}},
			factory: textMapperFactory("whitespace_normalization_mapper", normalizeWhitespace),
		},
		{
			name: "unicode_normalization_mapper",
			info: op.Info{Kind: op.KindMapper, Description: "Applies a Unicode normalization form.", Params: []op.Param{
				textKeyParam,
				{Name: "normalization", Default: "NFKC", Doc: "one of NFC, NFKC, NFD, NFKD"},
			}},
			factory: newUnicodeNormalization,
		},
		{
			name:    "remove_accents_mapper",
			info:    op.Info{Kind: op.KindMapper, Description: "Removes combining accent marks.", Params: []op.Param{textKeyParam}},
			factory: newRemoveAccents,
		},
		{
			name:    "clean_html_mapper",
			info:    op.Info{Kind: op.KindMapper, Description: "Replaces HTML with its visible text, one text node per line.", Params: []op.Param{textKeyParam}},
			factory: newCleanHTML,
		},
		{
			name:    "lowercase_mapper",
			info:    op.Info{Kind: op.KindMapper, Description: "Lowercases the text column, a chunk at a time.", Params: []op.Param{textKeyParam}},
			factory: newLowercase,
		},
	}
}
