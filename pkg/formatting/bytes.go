// Package formatting renders and parses the human-readable values that
// appear in config files and CLI output.
package formatting

import (
	"fmt"
	"strconv"
	"strings"
)

const kibi = 1024

var sizeUnits = []string{"B", "KB", "MB", "GB", "TB", "PB", "EB"}

// FormatBytes renders n with the largest base-1024 unit that keeps the
// value at or above one. Negative precision is treated as zero.
func FormatBytes(n int64, precision int) string {
	precision = max(precision, 0)

	sign := ""
	if n < 0 {
		sign, n = "-", -n
	}

	size := float64(n)
	unit := 0
	for size >= kibi && unit < len(sizeUnits)-1 {
		size /= kibi
		unit++
	}

	return sign + strconv.FormatFloat(size, 'f', precision, 64) + " " + sizeUnits[unit]
}

// ParseBytes reads sizes such as "1MB", "512 kb" or "2048". A bare number
// is a byte count; units are base-1024 and case-insensitive.
func ParseBytes(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty byte size")
	}

	split := strings.IndexFunc(s, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.'
	})
	number, unit := s, ""
	if split >= 0 {
		number, unit = s[:split], strings.TrimSpace(s[split:])
	}
	if number == "" {
		return 0, fmt.Errorf("invalid byte size %q", s)
	}

	value, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}

	if unit == "" {
		return int64(value), nil
	}

	scale := 1.0
	for _, u := range sizeUnits {
		if strings.EqualFold(u, unit) {
			return int64(value * scale), nil
		}
		scale *= kibi
	}
	return 0, fmt.Errorf("unknown byte size unit %q", unit)
}
