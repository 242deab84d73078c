package sizing

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

const bytesPerGB = 1024 * 1024 * 1024

var memSuffixes = []struct {
	suffix     string
	multiplier float64
}{
	{"tib", 1 << 40}, {"gib", 1 << 30}, {"mib", 1 << 20}, {"kib", 1 << 10},
	{"tb", 1 << 40}, {"gb", 1 << 30}, {"mb", 1 << 20}, {"kb", 1 << 10},
	{"ti", 1 << 40}, {"gi", 1 << 30}, {"mi", 1 << 20}, {"ki", 1 << 10},
	{"t", 1 << 40}, {"g", 1 << 30}, {"m", 1 << 20}, {"k", 1 << 10},
	{"b", 1},
}

// ParseMemGB normalizes a per-worker memory requirement to GB.
// Numbers are taken as GB already. Strings accept binary-unit suffixes
// ("2GB", "512Mi", "1.5g"); a bare numeric string is taken as GB.
func ParseMemGB(v any) (float64, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return nonNegative(t)
	case float32:
		return nonNegative(float64(t))
	case int:
		return nonNegative(float64(t))
	case int64:
		return nonNegative(float64(t))
	case string:
		return parseMemString(t)
	default:
		return 0, fmt.Errorf("sizing: unsupported memory value %T", v)
	}
}

func parseMemString(s string) (float64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, nil
	}
	multiplier := float64(bytesPerGB)
	for _, m := range memSuffixes {
		if strings.HasSuffix(s, m.suffix) {
			multiplier = m.multiplier
			s = strings.TrimSpace(strings.TrimSuffix(s, m.suffix))
			break
		}
	}
	val, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("sizing: parse memory %q: %w", s, err)
	}
	return nonNegative(val * multiplier / bytesPerGB)
}

func nonNegative(gb float64) (float64, error) {
	if gb < 0 {
		return 0, fmt.Errorf("sizing: memory must be non-negative: %v", gb)
	}
	return gb, nil
}

// FormatGB renders a GB amount for logs, e.g. "2.0 GiB".
func FormatGB(gb float64) string {
	if gb <= 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(gb * bytesPerGB))
}
