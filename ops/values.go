package ops

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/kbukum/dataflow/dataset"
)

// toFloat converts the numeric types a record can carry after JSON, CSV or
// in-memory construction. Strings are not numbers.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), !math.IsNaN(float64(n))
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func textOf(r dataset.Record, key string) (string, error) {
	v, ok := r[key]
	if !ok || v == nil {
		return "", fmt.Errorf("field %q is missing", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q is %T, not a string", key, v)
	}
	return s, nil
}

// count resolves a ratio and an absolute number to a record count. Unset
// values are ignored; when both are set the smaller wins. ok is false when
// neither is set.
func count(total int, ratio float64, num int) (n int, ok bool) {
	n = total
	if ratio > 0 {
		n = int(math.Floor(ratio * float64(total)))
		ok = true
	}
	if num > 0 {
		if !ok || num < n {
			n = num
		}
		ok = true
	}
	if n > total {
		n = total
	}
	return n, ok
}
