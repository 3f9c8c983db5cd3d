// Package enum maps small integer enums to the lower-case names they carry
// in configuration files.
package enum

import (
	"fmt"
	"strings"
)

// String returns the name of v, or unknown(v).
func String[T ~int](names map[T]string, v T) string {
	if n, ok := names[v]; ok {
		return n
	}
	return fmt.Sprintf("unknown(%d)", int(v))
}

func Marshal[T ~int](names map[T]string, v T) ([]byte, error) {
	n, ok := names[v]
	if !ok {
		return nil, fmt.Errorf("unknown value %d", int(v))
	}
	return []byte(n), nil
}

// Unmarshal sets dst from its name, ignoring case and surrounding space.
// what names the enum in the error.
func Unmarshal[T ~int](names map[T]string, dst *T, b []byte, what string) error {
	s := strings.ToLower(strings.TrimSpace(string(b)))
	for v, n := range names {
		if n == s {
			*dst = v
			return nil
		}
	}
	return fmt.Errorf("unknown %s %q", what, string(b))
}
