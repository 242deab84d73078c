package ops

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"github.com/kbukum/dataflow/dataset"
	"github.com/kbukum/dataflow/op"
)

type fieldParams struct {
	FieldKey string  `mapstructure:"field_key" validate:"required"`
	TopRatio float64 `mapstructure:"top_ratio" validate:"gte=0,lte=1"`
	TopK     int     `mapstructure:"topk" validate:"gte=0"`
	Reverse  bool    `mapstructure:"reverse"`
}

// topK orders records by a field and keeps the first n. Records missing the
// field sort last in either direction.
type topK struct {
	field   string
	ratio   float64
	k       int
	reverse bool
}

func (s topK) Select(_ context.Context, ds *dataset.Dataset) (*dataset.Dataset, error) {
	n, ok := count(ds.Len(), s.ratio, s.k)
	if !ok {
		return ds, nil
	}
	records := ds.Records()
	values := make([]any, len(records))
	present := make([]bool, len(records))
	for i, r := range records {
		values[i], present[i] = r.Get(s.field)
		if values[i] == nil {
			present[i] = false
		}
	}
	idx := make([]int, len(records))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ia, ib := idx[a], idx[b]
		if present[ia] != present[ib] {
			return present[ia]
		}
		if !present[ia] {
			return false
		}
		c := compareValues(values[ia], values[ib])
		if s.reverse {
			return c > 0
		}
		return c < 0
	})
	return ds.Indices(idx[:n]), nil
}

// compareValues orders numbers numerically and everything else by its
// printed form. Numbers sort before non-numbers.
func compareValues(a, b any) int {
	fa, oka := toFloat(a)
	fb, okb := toFloat(b)
	switch {
	case oka && okb:
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case oka:
		return -1
	case okb:
		return 1
	}
	sa, sb := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	}
	return 0
}

// frequency keeps whole groups of records sharing a field value, most
// frequent groups first unless reversed is off. The kept records stay in
// dataset order.
type frequency struct {
	field   string
	ratio   float64
	k       int
	reverse bool
}

func (s frequency) Select(_ context.Context, ds *dataset.Dataset) (*dataset.Dataset, error) {
	type group struct {
		first int
		rows  []int
	}
	groups := map[string]*group{}
	var order []*group
	for i, r := range ds.Records() {
		v, ok := r.Get(s.field)
		if !ok || v == nil {
			continue
		}
		key := fmt.Sprint(v)
		g := groups[key]
		if g == nil {
			g = &group{first: i}
			groups[key] = g
			order = append(order, g)
		}
		g.rows = append(g.rows, i)
	}
	n, ok := count(len(order), s.ratio, s.k)
	if !ok {
		return ds, nil
	}
	sort.SliceStable(order, func(a, b int) bool {
		if s.reverse {
			return len(order[a].rows) > len(order[b].rows)
		}
		return len(order[a].rows) < len(order[b].rows)
	})
	var idx []int
	for _, g := range order[:n] {
		idx = append(idx, g.rows...)
	}
	sort.Ints(idx)
	return ds.Indices(idx), nil
}

type randomParams struct {
	SelectRatio float64 `mapstructure:"select_ratio" validate:"gte=0,lte=1"`
	SelectNum   int     `mapstructure:"select_num" validate:"gte=0"`
	Seed        int64   `mapstructure:"seed"`
}

// random keeps a seeded random subset in dataset order.
type random struct {
	ratio float64
	num   int
	seed  int64
}

func (s random) Select(_ context.Context, ds *dataset.Dataset) (*dataset.Dataset, error) {
	n, ok := count(ds.Len(), s.ratio, s.num)
	if !ok || n == ds.Len() {
		return ds, nil
	}
	idx := rand.New(rand.NewSource(s.seed)).Perm(ds.Len())[:n]
	sort.Ints(idx)
	return ds.Indices(idx), nil
}

func newTopK(args map[string]any) (op.Operator, error) {
	p := fieldParams{Reverse: true}
	base, err := newBase("topk_specified_field_selector", op.KindSelector, args, &p)
	if err != nil {
		return nil, err
	}
	return op.NewSelector(base, topK{field: p.FieldKey, ratio: p.TopRatio, k: p.TopK, reverse: p.Reverse}), nil
}

func newFrequency(args map[string]any) (op.Operator, error) {
	p := fieldParams{Reverse: true}
	base, err := newBase("frequency_specified_field_selector", op.KindSelector, args, &p)
	if err != nil {
		return nil, err
	}
	return op.NewSelector(base, frequency{field: p.FieldKey, ratio: p.TopRatio, k: p.TopK, reverse: p.Reverse}), nil
}

func newRandom(args map[string]any) (op.Operator, error) {
	p := randomParams{Seed: 42}
	base, err := newBase("random_selector", op.KindSelector, args, &p)
	if err != nil {
		return nil, err
	}
	return op.NewSelector(base, random{ratio: p.SelectRatio, num: p.SelectNum, seed: p.Seed}), nil
}

func selectors() []builtin {
	fieldDoc := []op.Param{
		{Name: "field_key", Doc: "dotted path of the field"},
		{Name: "top_ratio", Doc: "fraction to keep; the smaller of top_ratio and topk wins"},
		{Name: "topk", Doc: "number to keep"},
		{Name: "reverse", Default: true, Doc: "descending order"},
	}
	return []builtin{
		{
			name:    "topk_specified_field_selector",
			info:    op.Info{Kind: op.KindSelector, Description: "Keeps the records with the highest (or lowest) field values.", Params: fieldDoc},
			factory: newTopK,
		},
		{
			name:    "frequency_specified_field_selector",
			info:    op.Info{Kind: op.KindSelector, Description: "Keeps the records whose field values are the most (or least) frequent.", Params: fieldDoc},
			factory: newFrequency,
		},
		{
			name: "random_selector",
			info: op.Info{Kind: op.KindSelector, Description: "Keeps a seeded random subset in original order.", Params: []op.Param{
				{Name: "select_ratio", Doc: "fraction to keep; the smaller of select_ratio and select_num wins"},
				{Name: "select_num", Doc: "number to keep"},
				{Name: "seed", Default: 42, Doc: "shuffle seed"},
			}},
			factory: newRandom,
		},
	}
}
