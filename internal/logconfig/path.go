package logconfig

import (
	"slices"
	"strconv"
	"strings"
)

// Path locates a node: string elements are mapping keys, int elements are
// sequence indices. It renders as sinks[0].target.
type Path []any

// Key returns a copy of p extended with a mapping key.
func (p Path) Key(k string) Path {
	return append(slices.Clip(p), k)
}

// Index returns a copy of p extended with a sequence index.
func (p Path) Index(i int) Path {
	return append(slices.Clip(p), i)
}

func (p Path) String() string {
	var b strings.Builder
	for _, elem := range p {
		switch v := elem.(type) {
		case int:
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(v))
			b.WriteByte(']')
		case string:
			if b.Len() > 0 {
				b.WriteByte('.')
			}
			b.WriteString(v)
		}
	}
	return b.String()
}
