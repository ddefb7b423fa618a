package enums

import (
	"fmt"
	"slices"
	"strings"
)

// set is the closed list of values a string enum accepts, in declaration order.
type set[T ~string] struct {
	kind   string
	values []T
	// fold makes parsing ignore case and surrounding whitespace.
	fold bool
}

func (s set[T]) has(v T) bool {
	return slices.Contains(s.values, v)
}

func (s set[T]) parse(raw string) (T, error) {
	v := raw
	if s.fold {
		v = strings.ToLower(strings.TrimSpace(raw))
	}
	if s.has(T(v)) {
		return T(v), nil
	}
	return "", fmt.Errorf("invalid %s %q", s.kind, raw)
}

func (s set[T]) all() []T {
	return slices.Clone(s.values)
}
