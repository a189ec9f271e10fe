package logging

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
)

// DefaultFormat mirrors loguru's default line layout.
const DefaultFormat = "<green>{time:YYYY-MM-DD HH:mm:ss.SSS}</green> | " +
	"<level>{level: <8}</level> | " +
	"<cyan>{name}</cyan>:<cyan>{function}</cyan>:<cyan>{line}</cyan> - <level>{message}</level>"

type segKind int

const (
	segText segKind = iota
	segField
	segOpen
	segClose
)

type segment struct {
	kind  segKind
	text  string
	field string
	key   string
	align *alignSpec
	time  *timeLayout
	tag   string
}

type alignSpec struct {
	fill  rune
	align byte
	width int
}

// Template is a compiled format string.
type Template struct {
	src  string
	segs []segment
}

var knownFields = map[string]bool{
	"time": true, "level": true, "level.name": true, "level.no": true, "level.icon": true,
	"message": true, "name": true, "module": true, "function": true, "file": true,
	"file.path": true, "line": true, "elapsed": true, "process": true, "extra": true,
}

var colorAttrs = map[string][]color.Attribute{
	"black": {color.FgBlack}, "red": {color.FgRed}, "green": {color.FgGreen},
	"yellow": {color.FgYellow}, "blue": {color.FgBlue}, "magenta": {color.FgMagenta},
	"cyan": {color.FgCyan}, "white": {color.FgWhite},
	"BLACK": {color.BgBlack}, "RED": {color.BgRed}, "GREEN": {color.BgGreen},
	"YELLOW": {color.BgYellow}, "BLUE": {color.BgBlue}, "MAGENTA": {color.BgMagenta},
	"CYAN": {color.BgCyan}, "WHITE": {color.BgWhite},
	"light-black": {color.FgHiBlack}, "light-red": {color.FgHiRed}, "light-green": {color.FgHiGreen},
	"light-yellow": {color.FgHiYellow}, "light-blue": {color.FgHiBlue}, "light-magenta": {color.FgHiMagenta},
	"light-cyan": {color.FgHiCyan}, "light-white": {color.FgHiWhite},
	"bold": {color.Bold}, "b": {color.Bold}, "dim": {color.Faint}, "d": {color.Faint},
	"italic": {color.Italic}, "i": {color.Italic}, "underline": {color.Underline}, "u": {color.Underline},
	"blink": {color.BlinkSlow}, "reverse": {color.ReverseVideo}, "r": {color.ReverseVideo},
	"hide": {color.Concealed}, "strike": {color.CrossedOut}, "s": {color.CrossedOut},
	"level": nil,
}

// ParseTemplate compiles a loguru-style format string.
func ParseTemplate(src string) (*Template, error) {
	t := &Template{src: src}
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			t.segs = append(t.segs, segment{kind: segText, text: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == '\\' && i+1 < len(src) && src[i+1] == '<':
			lit.WriteByte('<')
			i += 2
		case c == '{' && i+1 < len(src) && src[i+1] == '{':
			lit.WriteByte('{')
			i += 2
		case c == '}' && i+1 < len(src) && src[i+1] == '}':
			lit.WriteByte('}')
			i += 2
		case c == '{':
			end := strings.IndexByte(src[i:], '}')
			if end < 0 {
				return nil, fmt.Errorf("unterminated field at offset %d", i)
			}
			seg, err := parseField(src[i+1 : i+end])
			if err != nil {
				return nil, err
			}
			flush()
			t.segs = append(t.segs, seg)
			i += end + 1
		case c == '}':
			return nil, fmt.Errorf("single '}' at offset %d", i)
		case c == '<':
			end := strings.IndexByte(src[i:], '>')
			if end < 0 {
				lit.WriteByte(c)
				i++
				continue
			}
			body := src[i+1 : i+end]
			closing := strings.HasPrefix(body, "/")
			name := strings.TrimPrefix(body, "/")
			if _, ok := colorAttrs[name]; !ok && !(closing && name == "") {
				lit.WriteByte(c)
				i++
				continue
			}
			flush()
			if closing {
				t.segs = append(t.segs, segment{kind: segClose, tag: name})
			} else {
				t.segs = append(t.segs, segment{kind: segOpen, tag: name})
			}
			i += end + 1
		default:
			lit.WriteByte(c)
			i++
		}
	}
	flush()
	return t, nil
}

// MustParseTemplate is ParseTemplate for known-good constants.
func MustParseTemplate(src string) *Template {
	t, err := ParseTemplate(src)
	if err != nil {
		panic(err)
	}
	return t
}

func parseField(body string) (segment, error) {
	name, spec, _ := strings.Cut(body, ":")
	seg := segment{kind: segField, field: name}

	if strings.HasPrefix(name, "extra[") && strings.HasSuffix(name, "]") {
		seg.field = "extra"
		seg.key = strings.Trim(name[len("extra["):len(name)-1], `'"`)
	} else if !knownFields[name] {
		return seg, fmt.Errorf("unknown format field %q", name)
	}

	if seg.field == "time" {
		tl, err := parseTimeLayout(spec)
		if err != nil {
			return seg, err
		}
		seg.time = tl
		return seg, nil
	}

	if spec != "" {
		a, err := parseAlign(spec)
		if err != nil {
			return seg, fmt.Errorf("field %q: %w", name, err)
		}
		seg.align = a
	}
	return seg, nil
}

func parseAlign(spec string) (*alignSpec, error) {
	a := &alignSpec{fill: ' ', align: '<'}
	rest := spec
	if r, size := utf8.DecodeRuneInString(rest); size > 0 && len(rest) > size && strings.ContainsRune("<>^", rune(rest[size])) {
		a.fill = r
		a.align = rest[size]
		rest = rest[size+1:]
	} else if len(rest) > 0 && strings.ContainsRune("<>^", rune(rest[0])) {
		a.align = rest[0]
		rest = rest[1:]
	}
	if rest != "" {
		w, err := strconv.Atoi(rest)
		if err != nil || w < 0 {
			return nil, fmt.Errorf("invalid format spec %q", spec)
		}
		a.width = w
	}
	return a, nil
}

func (a *alignSpec) apply(s string) string {
	n := utf8.RuneCountInString(s)
	if a == nil || n >= a.width {
		return s
	}
	pad := a.width - n
	fill := string(a.fill)
	switch a.align {
	case '>':
		return strings.Repeat(fill, pad) + s
	case '^':
		left := pad / 2
		return strings.Repeat(fill, left) + s + strings.Repeat(fill, pad-left)
	default:
		return s + strings.Repeat(fill, pad)
	}
}

// String returns the source template.
func (t *Template) String() string { return t.src }

// Render formats r. Color markup is applied when colorize is true and
// stripped otherwise.
func (t *Template) Render(r *Record, colorize bool) string {
	var b strings.Builder
	var stack []string

	write := func(text string) {
		if text == "" {
			return
		}
		if !colorize || len(stack) == 0 {
			b.WriteString(text)
			return
		}
		attrs := stackAttrs(stack, r.Level)
		if len(attrs) == 0 {
			b.WriteString(text)
			return
		}
		c := color.New(attrs...)
		c.EnableColor()
		b.WriteString(c.Sprint(text))
	}

	for _, seg := range t.segs {
		switch seg.kind {
		case segText:
			write(seg.text)
		case segField:
			write(seg.render(r))
		case segOpen:
			stack = append(stack, seg.tag)
		case segClose:
			for len(stack) > 0 {
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if seg.tag == "" || top == seg.tag {
					break
				}
			}
		}
	}
	return b.String()
}

func stackAttrs(stack []string, level Level) []color.Attribute {
	var attrs []color.Attribute
	for _, tag := range stack {
		if tag == "level" {
			attrs = append(attrs, levelAttrs(level)...)
			continue
		}
		attrs = append(attrs, colorAttrs[tag]...)
	}
	return attrs
}

// levelAttrs parses a level color such as "<yellow><bold>".
func levelAttrs(level Level) []color.Attribute {
	var attrs []color.Attribute
	rest := level.Color
	for {
		start := strings.IndexByte(rest, '<')
		if start < 0 {
			return attrs
		}
		end := strings.IndexByte(rest[start:], '>')
		if end < 0 {
			return attrs
		}
		attrs = append(attrs, colorAttrs[rest[start+1:start+end]]...)
		rest = rest[start+end+1:]
	}
}

func (seg segment) render(r *Record) string {
	var s string
	switch seg.field {
	case "time":
		return seg.time.format(r.Time)
	case "level", "level.name":
		s = r.Level.Name
	case "level.no":
		s = strconv.Itoa(r.Level.No)
	case "level.icon":
		s = r.Level.Icon
	case "message":
		s = r.Message
	case "name", "module":
		s = r.Name
	case "function":
		s = r.Function
		if i := strings.LastIndexByte(s, '.'); i >= 0 {
			s = s[i+1:]
		}
	case "file":
		if r.File != "" {
			s = filepath.Base(r.File)
		}
	case "file.path":
		s = r.File
	case "line":
		s = strconv.Itoa(r.Line)
	case "elapsed":
		s = r.Elapsed.String()
	case "process":
		s = strconv.Itoa(r.PID)
	case "extra":
		if seg.key != "" {
			if v, ok := r.Extra[seg.key]; ok {
				s = fmt.Sprint(v)
			}
		} else if data, err := json.Marshal(r.Extra); err == nil {
			s = string(data)
		}
	}
	return seg.align.apply(s)
}
