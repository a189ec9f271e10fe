package logging

import (
	"strings"
	"testing"
	"time"
)

func testRecord() *Record {
	return &Record{
		Time:     time.Date(2024, 3, 5, 7, 8, 9, 123456789, time.UTC),
		Level:    LevelInfo,
		Message:  "hello",
		Name:     "payments.core",
		Extra:    map[string]any{"user": "ada", "n": 3},
		File:     "/src/app/main.go",
		Line:     42,
		Function: "main.run",
		PID:      7,
	}
}

func TestTemplateRender(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{"{message}", "hello"},
		{"{level: <8}|", "INFO    |"},
		{"{level:>6}", "  INFO"},
		{"{level:*^8}", "**INFO**"},
		{"{level.no} {level.name}", "20 INFO"},
		{"{name}:{function}:{line}", "payments.core:run:42"},
		{"{module} {file} {file.path}", "payments.core main.go /src/app/main.go"},
		{"{extra[user]} {extra[missing]}|", "ada |"},
		{"{extra}", `{"n":3,"user":"ada"}`},
		{"{process}", "7"},
		{"{{literal}} {message}", "{literal} hello"},
		{"{time:YYYY-MM-DD HH:mm:ss.SSS}", "2024-03-05 07:08:09.123"},
		{"{time:[at] HH[h]mm}", "at 07h08"},
		{"{time:MMM D, YYYY}", "Mar 5, 2024"},
		{"{time:SSSSSS}", "123456"},
		{"<red>{message}</red>", "hello"},
		{"<level>{level}</> <bold>x</bold>", "INFO x"},
		{`\<red> <notatag>`, "<red> <notatag>"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			tmpl, err := ParseTemplate(tt.format)
			if err != nil {
				t.Fatalf("ParseTemplate(%q) error: %v", tt.format, err)
			}
			if got := tmpl.Render(testRecord(), false); got != tt.want {
				t.Errorf("Render = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTemplateColorize(t *testing.T) {
	tmpl := MustParseTemplate("<red>{message}</red> plain")
	got := tmpl.Render(testRecord(), true)
	if !strings.Contains(got, "\x1b[31m") {
		t.Errorf("colorized output missing red escape: %q", got)
	}
	if !strings.HasSuffix(got, " plain") {
		t.Errorf("text after closing tag should be uncolored: %q", got)
	}

	lvl := MustParseTemplate("<level>{level}</level>")
	r := testRecord()
	r.Level = LevelWarning
	if got := lvl.Render(r, true); !strings.Contains(got, "\x1b[33") {
		t.Errorf("level color not applied: %q", got)
	}
}

func TestTemplateErrors(t *testing.T) {
	tests := []string{
		"{unknown}",
		"{message",
		"oops }",
		"{level:abc}",
	}
	for _, format := range tests {
		if _, err := ParseTemplate(format); err == nil {
			t.Errorf("ParseTemplate(%q) expected error", format)
		}
	}
}

func TestDefaultFormatParses(t *testing.T) {
	tmpl := MustParseTemplate(DefaultFormat)
	got := tmpl.Render(testRecord(), false)
	want := "2024-03-05 07:08:09.123 | INFO     | payments.core:run:42 - hello"
	if got != want {
		t.Errorf("default format = %q, want %q", got, want)
	}
}

func TestTimeUTCSuffix(t *testing.T) {
	loc := time.FixedZone("X", 2*60*60)
	r := testRecord()
	r.Time = time.Date(2024, 1, 1, 12, 0, 0, 0, loc)

	tmpl := MustParseTemplate("{time:HH:mm!UTC}")
	if got := tmpl.Render(r, false); got != "10:00" {
		t.Errorf("UTC conversion = %q, want 10:00", got)
	}
}
