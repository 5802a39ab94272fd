package util

import "strings"

// AbsInt coerces a raw query value to a non-negative integer. A leading run
// of digits (after an optional sign) is parsed, anything else yields 0, and
// negative values are folded to their magnitude. Overflow saturates.
func AbsInt(raw string) int64 {
	value := strings.TrimSpace(raw)
	if value == "" {
		return 0
	}
	if value[0] == '-' || value[0] == '+' {
		value = value[1:]
	}

	const limit = int64(^uint64(0) >> 1)
	var n int64
	for i := 0; i < len(value); i++ {
		c := value[i]
		if c < '0' || c > '9' {
			break
		}
		digit := int64(c - '0')
		if n > (limit-digit)/10 {
			return limit
		}
		n = n*10 + digit
	}
	return n
}
