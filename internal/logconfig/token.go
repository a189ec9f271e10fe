package logconfig

import (
	"fmt"
	"strconv"
	"strings"
)

// TokenScheme prefixes strings that resolve through the registry.
const TokenScheme = "ext://"

type argKind int

const (
	argLiteral argKind = iota // number, bool, null
	argQuoted                 // quoted string, env interpolated at evaluation
	argEnv                    // bare ${...}, parsed as a literal after interpolation
	argToken                  // nested ext:// token
)

type tokenArg struct {
	kind   argKind
	value  any
	text   string
	nested *token
}

// token is a parsed ext://module[:attr.chain][(args)] reference.
type token struct {
	raw      string
	module   string
	attrs    []string
	hasColon bool
	call     bool
	args     []tokenArg
	// expand is set when argument text still needs ${NAME} interpolation.
	expand bool
}

func isToken(s string) bool {
	return strings.HasPrefix(s, TokenScheme)
}

// expandFunc interpolates ${NAME} references in the target of a token.
type expandFunc func(string) (string, error)

// parseToken parses s before any interpolation so that environment values
// never become token syntax. With expand set, ${NAME} in the target is
// expanded here and quoted or bare ${...} arguments are expanded once when
// the token is evaluated. With expand nil, s is taken literally.
func parseToken(s string, expand expandFunc) (*token, error) {
	if !isToken(s) {
		return nil, fmt.Errorf("%q does not start with %s", s, TokenScheme)
	}
	body := strings.TrimSpace(s[len(TokenScheme):])
	tok := &token{raw: s, expand: expand != nil}

	target := body
	if open := argListStart(body); open >= 0 {
		if !strings.HasSuffix(body, ")") {
			return nil, fmt.Errorf("unbalanced parentheses in %q", s)
		}
		target = strings.TrimSpace(body[:open])
		args, err := parseArgs(body[open+1:len(body)-1], expand)
		if err != nil {
			return nil, fmt.Errorf("arguments of %q: %w", s, err)
		}
		tok.call = true
		tok.args = args
	}
	if expand != nil {
		expanded, err := expand(target)
		if err != nil {
			return nil, err
		}
		target = strings.TrimSpace(expanded)
	}

	module, chain, hasColon := strings.Cut(target, ":")
	tok.module = strings.TrimSpace(module)
	tok.hasColon = hasColon
	if tok.module == "" {
		return nil, fmt.Errorf("missing module path in %q", s)
	}
	if !validDotted(tok.module) {
		return nil, fmt.Errorf("invalid module path %q", tok.module)
	}
	if hasColon {
		chain = strings.TrimSpace(chain)
		if chain == "" || !validDotted(chain) {
			return nil, fmt.Errorf("invalid attribute path %q", chain)
		}
		tok.attrs = strings.Split(chain, ".")
	}
	return tok, nil
}

// argListStart returns the index of the '(' opening the argument list,
// skipping ${...} references in the target, or -1.
func argListStart(body string) int {
	for i := 0; i < len(body); i++ {
		switch {
		case strings.HasPrefix(body[i:], "${"):
			end := strings.IndexByte(body[i:], '}')
			if end < 0 {
				if open := strings.IndexByte(body[i:], '('); open >= 0 {
					return i + open
				}
				return -1
			}
			i += end
		case body[i] == '(':
			return i
		}
	}
	return -1
}

func validDotted(s string) bool {
	for _, part := range strings.Split(s, ".") {
		if part == "" {
			return false
		}
		for i, c := range part {
			ok := c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (i > 0 && c >= '0' && c <= '9')
			if !ok {
				return false
			}
		}
	}
	return true
}

// splitArgs splits on top-level commas, honouring quotes, parentheses and ${}.
func splitArgs(s string) ([]string, error) {
	var parts []string
	var quote byte
	depth, braces, start := 0, 0, 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced parentheses")
			}
		case c == '{':
			braces++
		case c == '}':
			braces--
		case c == ',' && depth == 0 && braces == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated string")
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced parentheses")
	}
	return append(parts, s[start:]), nil
}

func parseArgs(s string, expand expandFunc) ([]tokenArg, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts, err := splitArgs(s)
	if err != nil {
		return nil, err
	}
	args := make([]tokenArg, 0, len(parts))
	for i, p := range parts {
		arg, err := parseArg(strings.TrimSpace(p), expand)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		args = append(args, arg)
	}
	return args, nil
}

func parseArg(s string, expand expandFunc) (tokenArg, error) {
	switch {
	case s == "":
		return tokenArg{}, fmt.Errorf("empty argument")
	case s[0] == '"' || s[0] == '\'':
		text, err := unquote(s)
		if err != nil {
			return tokenArg{}, err
		}
		return tokenArg{kind: argQuoted, text: text}, nil
	case isToken(s):
		nested, err := parseToken(s, expand)
		if err != nil {
			return tokenArg{}, err
		}
		return tokenArg{kind: argToken, nested: nested, text: s}, nil
	case strings.HasPrefix(s, "${"):
		return tokenArg{kind: argEnv, text: s}, nil
	}
	arg, ok := parseLiteral(s)
	if !ok {
		return tokenArg{}, fmt.Errorf("cannot parse %q; quote strings", s)
	}
	return arg, nil
}

// parseLiteral reads a bool, null, integer or float argument.
func parseLiteral(s string) (tokenArg, bool) {
	switch s {
	case "true", "True":
		return tokenArg{kind: argLiteral, value: true, text: s}, true
	case "false", "False":
		return tokenArg{kind: argLiteral, value: false, text: s}, true
	case "null", "None", "nil":
		return tokenArg{kind: argLiteral, value: nil, text: s}, true
	}
	if i, err := strconv.ParseInt(s, 0, 64); err == nil {
		return tokenArg{kind: argLiteral, value: i, text: s}, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return tokenArg{kind: argLiteral, value: f, text: s}, true
	}
	return tokenArg{}, false
}

func unquote(s string) (string, error) {
	q := s[0]
	if len(s) < 2 || s[len(s)-1] != q {
		return "", fmt.Errorf("unterminated string %s", s)
	}
	if q == '"' {
		return strconv.Unquote(s)
	}
	var b strings.Builder
	body := s[1 : len(s)-1]
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c != '\\' || i+1 == len(body) {
			b.WriteByte(c)
			continue
		}
		i++
		switch body[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		default:
			b.WriteByte(body[i])
		}
	}
	return b.String(), nil
}
