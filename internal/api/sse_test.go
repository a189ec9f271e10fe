package api

import (
	"bufio"
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/smazurov/logwire/internal/logconfig"
)

// openStream connects to an SSE endpoint and returns its data lines.
func openStream(t *testing.T, env *testEnv, path string) <-chan string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.ts.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Fatalf("content type = %q", ct)
	}

	lines := make(chan string, 100)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if line := scanner.Text(); strings.HasPrefix(line, "data:") {
				lines <- line
			}
		}
	}()
	return lines
}

func nextLine(t *testing.T, lines <-chan string) string {
	t.Helper()
	select {
	case line := <-lines:
		return line
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for SSE message")
	}
	return ""
}

// waitFor skips lines until one contains every want.
func waitFor(t *testing.T, lines <-chan string, want ...string) string {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case line := <-lines:
			matched := true
			for _, w := range want {
				if !strings.Contains(line, w) {
					matched = false
					break
				}
			}
			if matched {
				return line
			}
		case <-deadline:
			t.Fatalf("timeout waiting for SSE message containing %q", want)
			return ""
		}
	}
}

func TestEventsStreamConfigOutcomes(t *testing.T) {
	env := newTestEnv(t, nil)
	lines := openStream(t, env, "/api/events")

	if first := nextLine(t, lines); !strings.Contains(first, `"generation":0`) {
		t.Errorf("initial message = %s", first)
	}

	if _, err := env.loader.LoadString(`{"sinks": [{"target": "memory"}]}`, logconfig.FormatJSON); err != nil {
		t.Fatal(err)
	}
	waitFor(t, lines, `"source":"<bytes>"`, `"generation":1`)

	if _, err := env.loader.LoadString(`{"sinks": [{"target": "ext://nope.missing:x"}]}`, logconfig.FormatJSON); err == nil {
		t.Fatal("expected an error")
	}
	waitFor(t, lines, `"kind":"ResolutionError"`, `"path":"sinks[0].target"`)
}

func TestEventsStreamWithQueryAuth(t *testing.T) {
	env := newTestEnv(t, func(o *Options) {
		o.AuthUsername = "test"
		o.AuthPassword = "test"
	})
	// dGVzdDp0ZXN0 is base64("test:test")
	lines := openStream(t, env, "/api/events?auth=dGVzdDp0ZXN0")
	nextLine(t, lines)
}

func TestLogStreamReplaysThenFollows(t *testing.T) {
	env := newTestEnv(t, nil)
	if _, err := env.loader.LoadString(`{"sinks": [{"target": "memory"}]}`, logconfig.FormatJSON); err != nil {
		t.Fatal(err)
	}
	logger := env.state.Logger("worker")
	logger.Info("buffered before connect")

	lines := openStream(t, env, "/api/logs/stream")
	waitFor(t, lines, "buffered before connect", `"module":"worker"`)

	logger.Warn("live after connect", "job", 7)
	line := waitFor(t, lines, "live after connect")
	if !strings.Contains(line, `"level":"WARNING"`) || !strings.Contains(line, `"job":7`) {
		t.Errorf("live message = %s", line)
	}
}
