// Package formatting renders and parses operator-facing values: byte sizes
// in configuration and monetary amounts in replies and CLI output.
package formatting

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

const unitStep = 1024

// byteUnits are base-1024 units in ascending order.
var byteUnits = []string{"B", "KB", "MB", "GB", "TB", "PB"}

// FormatBytes renders n with the largest unit that keeps the value >= 1.
func FormatBytes(n int64, precision int) string {
	precision = max(precision, 0)

	v := float64(n)
	unit := 0
	for v >= unitStep && unit < len(byteUnits)-1 {
		v /= unitStep
		unit++
	}

	if unit == 0 {
		return strconv.FormatInt(n, 10) + " B"
	}
	return strconv.FormatFloat(v, 'f', precision, 64) + " " + byteUnits[unit]
}

// ParseBytes parses sizes such as "1MB", "512 kb", or "2048". A bare number
// is a byte count.
func ParseBytes(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty byte size")
	}

	split := strings.IndexFunc(s, func(r rune) bool {
		return !unicode.IsDigit(r) && r != '.'
	})
	number, unit := s, ""
	if split >= 0 {
		number, unit = s[:split], strings.TrimSpace(s[split:])
	}
	if number == "" {
		return 0, fmt.Errorf("invalid byte size: %q", s)
	}

	value, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}

	multiplier := 1.0
	if unit != "" {
		found := false
		for _, u := range byteUnits {
			if strings.EqualFold(unit, u) {
				found = true
				break
			}
			multiplier *= unitStep
		}
		if !found {
			return 0, fmt.Errorf("unknown byte size unit: %q", unit)
		}
	}

	return int64(value * multiplier), nil
}
