package logconfig

import (
	"fmt"
	"os"
	"strings"
)

// LookupEnv is the environment source used for ${NAME} interpolation.
type LookupEnv func(name string) (string, bool)

// MissingEnvError names an unset variable referenced without a default.
type MissingEnvError struct {
	Name string
}

func (e *MissingEnvError) Error() string {
	return fmt.Sprintf("environment variable %q is not set and has no default", e.Name)
}

// interpolate replaces ${NAME} and ${NAME:default} anywhere in s. $${ yields a
// literal ${. An unterminated ${ is kept as text.
func interpolate(s string, lookup LookupEnv) (string, error) {
	if !strings.Contains(s, "${") {
		return s, nil
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}

	var b strings.Builder
	for i := 0; i < len(s); {
		if strings.HasPrefix(s[i:], "$${") {
			b.WriteString("${")
			i += 3
			continue
		}
		if !strings.HasPrefix(s[i:], "${") {
			b.WriteByte(s[i])
			i++
			continue
		}
		end := strings.IndexByte(s[i+2:], '}')
		if end < 0 {
			b.WriteString(s[i:])
			break
		}
		body := s[i+2 : i+2+end]
		name, def, hasDefault := strings.Cut(body, ":")
		name = strings.TrimSpace(name)
		if name == "" {
			return "", fmt.Errorf("empty variable name in %q", s)
		}
		if val, ok := lookup(name); ok {
			b.WriteString(val)
		} else if hasDefault {
			b.WriteString(def)
		} else {
			return "", &MissingEnvError{Name: name}
		}
		i += 2 + end + 1
	}
	return b.String(), nil
}
