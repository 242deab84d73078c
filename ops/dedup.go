package ops

import (
	"context"
	"encoding/hex"
	"strings"
	"unicode"

	"github.com/kbukum/dataflow/dataset"
	"github.com/kbukum/dataflow/op"
)

// documentDedup removes records whose normalized text hashes equal an
// earlier record's. The earliest record in dataset order is kept.
type documentDedup struct {
	key          string
	lowercase    bool
	ignoreNonChr bool
	hash         hashFunc
}

func (d documentDedup) normalize(s string) string {
	if d.lowercase {
		s = strings.ToLower(s)
	}
	if d.ignoreNonChr {
		s = strings.Map(func(r rune) rune {
			if unicode.IsSpace(r) || unicode.IsDigit(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
				return -1
			}
			return r
		}, s)
	}
	return s
}

func (d documentDedup) ComputeHash(_ context.Context, r dataset.Record) (dataset.Record, error) {
	if h, ok := r[dataset.HashColumn].(string); ok && h != "" {
		return r, nil
	}
	s, err := textOf(r, d.key)
	if err != nil {
		return nil, err
	}
	r[dataset.HashColumn] = hex.EncodeToString(d.hash([]byte(d.normalize(s))))
	return r, nil
}

func (d documentDedup) Dedup(ctx context.Context, ds *dataset.Dataset, traceN int) (*dataset.Dataset, []op.DupPair, error) {
	first := make(map[string]int, ds.Len())
	mask := make([]bool, ds.Len())
	var pairs []op.DupPair
	for i, r := range ds.Records() {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
		}
		h := r.String(dataset.HashColumn)
		j, dup := first[h]
		if !dup {
			first[h] = i
			mask[i] = true
			continue
		}
		if len(pairs) < traceN {
			pairs = append(pairs, op.DupPair{Kept: ds.At(j), Duplicate: r})
		}
	}
	return ds.Where(mask), pairs, nil
}

type dedupParams struct {
	Lowercase          bool   `mapstructure:"lowercase"`
	IgnoreNonCharacter bool   `mapstructure:"ignore_non_character"`
	HashFunc           string `mapstructure:"hash_func" validate:"oneof=xxh3 md5"`
}

func newDocumentDedup(args map[string]any) (op.Operator, error) {
	p := dedupParams{HashFunc: "xxh3"}
	base, err := newBase("document_deduplicator", op.KindDeduplicator, args, &p)
	if err != nil {
		return nil, err
	}
	return op.NewDeduplicator(base, documentDedup{
		key:          base.Options().TextKey,
		lowercase:    p.Lowercase,
		ignoreNonChr: p.IgnoreNonCharacter,
		hash:         digests[p.HashFunc],
	}), nil
}

func deduplicators() []builtin {
	return []builtin{{
		name: "document_deduplicator",
		info: op.Info{Kind: op.KindDeduplicator, Description: "Removes exact duplicate documents, keeping the first occurrence.", Params: []op.Param{
			textKeyParam,
			{Name: "lowercase", Default: false, Doc: "compare texts case-insensitively"},
			{Name: "ignore_non_character", Default: false, Doc: "ignore whitespace, digits, punctuation and symbols"},
			{Name: "hash_func", Default: "xxh3", Doc: "xxh3 (128-bit) or md5"},
		}},
		factory: newDocumentDedup,
	}}
}
