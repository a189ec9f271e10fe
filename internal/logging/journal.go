package logging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/coreos/go-systemd/v22/journal"
)

var errJournalUnavailable = errors.New("systemd journal is not available")

// journalWriter sends records to the systemd journal with structured fields.
type journalWriter struct {
	identifier string
}

func newJournalWriter() (*journalWriter, error) {
	if !IsJournalAvailable() {
		return nil, errJournalUnavailable
	}
	return &journalWriter{identifier: filepath.Base(os.Args[0])}, nil
}

func (w *journalWriter) write(msg Message) error {
	r := msg.Record
	fields := map[string]string{
		"SYSLOG_IDENTIFIER": w.identifier,
		"LEVEL":             r.Level.Name,
	}
	if r.Name != "" {
		fields["MODULE"] = r.Name
	}
	if r.File != "" {
		fields["CODE_FILE"] = r.File
		fields["CODE_LINE"] = strconv.Itoa(r.Line)
		fields["CODE_FUNC"] = r.Function
	}

	keys := make([]string, 0, len(r.Extra))
	for k := range r.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		key := journalKey(k)
		if key == "" {
			continue
		}
		if _, taken := fields[key]; taken {
			continue
		}
		fields[key] = fmt.Sprint(r.Extra[k])
	}

	if err := journal.Send(strings.TrimSuffix(msg.Text, "\n"), priority(r.Level.No), fields); err != nil {
		return fmt.Errorf("send to journal: %w", err)
	}
	return nil
}

func (w *journalWriter) close() error { return nil }

// priority maps a severity number to a journal priority.
func priority(no int) journal.Priority {
	switch {
	case no >= LevelCritical.No:
		return journal.PriCrit
	case no >= LevelError.No:
		return journal.PriErr
	case no >= LevelWarning.No:
		return journal.PriWarning
	case no >= LevelSuccess.No:
		return journal.PriNotice
	case no >= LevelInfo.No:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

// journalKey upper-cases a field name and drops characters journald rejects.
func journalKey(name string) string {
	var b strings.Builder
	for _, c := range strings.ToUpper(name) {
		switch {
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
			b.WriteRune(c)
		case c == '.' || c == '-':
			b.WriteByte('_')
		}
	}
	return strings.TrimLeft(b.String(), "_0123456789")
}

// IsJournalAvailable checks if systemd journal is available.
func IsJournalAvailable() bool {
	return journal.Enabled()
}
