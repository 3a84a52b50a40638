package app

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestStripANSI(t *testing.T) {
	t.Parallel()

	in := ansiBlue + "INFO" + ansiReset + " plain " + ansiRed + "ERR" + ansiReset
	got := stripANSI(in)
	want := "INFO plain ERR"
	if got != want {
		t.Fatalf("stripANSI()=%q want=%q", got, want)
	}
}

func TestPrettyHandler_RequestLine(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}, true))
	log.With("request_id", "abc").Warn("http.request",
		"method", "post",
		"path", "/api/auth/login",
		"status", 429,
		"status_class", "4xx",
		"duration_ms", int64(12),
		"remote", "10.0.0.1:1234",
	)

	got := stripANSI(buf.String())
	want := "lvl=[WARN] msg=http.request request_id=abc method=POST path=/api/auth/login status=429 class=4xx duration=12ms remote=10.0.0.1:1234\n"
	if !strings.HasSuffix(got, want) {
		t.Fatalf("pretty line=%q\nwant suffix %q", got, want)
	}
	if !strings.Contains(buf.String(), ansiYellow+"429"+ansiReset) {
		t.Fatalf("expected 4xx status in yellow: %q", buf.String())
	}
}

func TestPrettyHandler_GroupsAndQuoting(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, nil, false)).WithGroup("session")
	log.Info("session.janitor.sweep", "removed", 3, "err", "two words")
	log.Debug("hidden")

	got := buf.String()
	if !strings.Contains(got, "session.removed=3") || !strings.Contains(got, `session.err="two words"`) {
		t.Fatalf("unexpected output: %q", got)
	}
	if strings.Contains(got, "hidden") {
		t.Fatalf("debug records must be filtered at info level")
	}
}

func TestColorizeResult(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"success":      ansiGreen,
		"client_error": ansiYellow,
		"server_error": ansiRed,
		"redirect":     ansiCyan,
	}
	for in, color := range cases {
		if got := colorizeResult(in, true); got != color+in+ansiReset {
			t.Fatalf("colorizeResult(%q)=%q", in, got)
		}
		if got := colorizeResult(in, false); got != in {
			t.Fatalf("colorizeResult(%q, false)=%q", in, got)
		}
	}
}

func TestPrettyHandler_StylesOnlyTopLevelFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	h := newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug, AddSource: true}, false)
	log := slog.New(h).With("session_id", "s 1")
	log.Debug("session.refresh",
		slog.Group("upstream", slog.Int("status", 503), slog.String("status_class", "5xx")),
		"status_class", "2xx",
		"empty", "",
	)

	got := buf.String()
	for _, want := range []string{
		"lvl=[DEBUG] msg=session.refresh src=pretty_handler_test.go:",
		`session_id="s 1"`,
		"upstream.status=503 upstream.status_class=5xx class=2xx",
		`empty=""`,
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("pretty line=%q\nmissing %q", got, want)
		}
	}
}

func TestLevelTag(t *testing.T) {
	t.Parallel()

	cases := map[slog.Level]string{
		slog.LevelDebug:     "[DEBUG]",
		slog.LevelInfo:      "[INFO]",
		slog.LevelWarn + 1:  "[WARN]",
		slog.LevelError + 4: "[ERROR]",
	}
	for level, want := range cases {
		if got := levelTag(level, false); got != want {
			t.Fatalf("levelTag(%v)=%q want=%q", level, got, want)
		}
	}
	if got := levelTag(slog.LevelError, true); got != ansiRed+"[ERROR]"+ansiReset {
		t.Fatalf("colored error tag=%q", got)
	}
}
