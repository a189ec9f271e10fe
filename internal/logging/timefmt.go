package logging

import (
	"fmt"
	"strings"
	"time"
)

// timeLayout renders a time using loguru-style tokens (YYYY-MM-DD HH:mm:ss.SSS).
// Go layouts cannot carry arbitrary literals safely, so each token is formatted
// on its own and literals are copied through verbatim.
type timeLayout struct {
	parts []timePart
	utc   bool
}

type timePart struct {
	literal string
	layout  string
	frac    int
}

const defaultTimeSpec = "YYYY-MM-DDTHH:mm:ss.SSSSSSZ"

// ordered longest first so prefixes do not shadow longer tokens
var timeTokens = []struct {
	token  string
	layout string
	frac   int
}{
	{"SSSSSS", "", 6},
	{"SSSSS", "", 5},
	{"SSSS", "", 4},
	{"YYYY", "2006", 0},
	{"MMMM", "January", 0},
	{"DDDD", "002", 0},
	{"dddd", "Monday", 0},
	{"SSS", "", 3},
	{"MMM", "Jan", 0},
	{"ddd", "Mon", 0},
	{"YY", "06", 0},
	{"MM", "01", 0},
	{"DD", "02", 0},
	{"HH", "15", 0},
	{"hh", "03", 0},
	{"mm", "04", 0},
	{"ss", "05", 0},
	{"SS", "", 2},
	{"ZZ", "-0700", 0},
	{"zz", "MST", 0},
	{"M", "1", 0},
	{"D", "2", 0},
	{"H", "15", 0},
	{"h", "3", 0},
	{"m", "4", 0},
	{"s", "5", 0},
	{"S", "", 1},
	{"A", "PM", 0},
	{"Z", "-07:00", 0},
}

func parseTimeLayout(spec string) (*timeLayout, error) {
	tl := &timeLayout{}
	if strings.HasSuffix(spec, "!UTC") {
		tl.utc = true
		spec = strings.TrimSuffix(spec, "!UTC")
	}
	if spec == "" {
		spec = defaultTimeSpec
	}

	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			tl.parts = append(tl.parts, timePart{literal: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(spec); {
		if spec[i] == '[' {
			end := strings.IndexByte(spec[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("unterminated literal in time format %q", spec)
			}
			lit.WriteString(spec[i+1 : i+end])
			i += end + 1
			continue
		}
		matched := false
		for _, tok := range timeTokens {
			if strings.HasPrefix(spec[i:], tok.token) {
				flush()
				tl.parts = append(tl.parts, timePart{layout: tok.layout, frac: tok.frac})
				i += len(tok.token)
				matched = true
				break
			}
		}
		if !matched {
			lit.WriteByte(spec[i])
			i++
		}
	}
	flush()
	return tl, nil
}

func (tl *timeLayout) format(t time.Time) string {
	if tl.utc {
		t = t.UTC()
	}
	var b strings.Builder
	for _, p := range tl.parts {
		switch {
		case p.literal != "":
			b.WriteString(p.literal)
		case p.frac > 0:
			div := 1
			for i := p.frac; i < 9; i++ {
				div *= 10
			}
			fmt.Fprintf(&b, "%0*d", p.frac, t.Nanosecond()/div)
		default:
			b.WriteString(t.Format(p.layout))
		}
	}
	return b.String()
}
