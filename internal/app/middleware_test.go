package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

type logLine struct {
	Level  string `json:"level"`
	Msg    string `json:"msg"`
	Status int    `json:"status"`
	Bytes  int64  `json:"bytes"`
	Path   string `json:"path"`
}

func captureLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, nil)), &buf
}

func lastLogLine(t *testing.T, buf *bytes.Buffer) logLine {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) == 0 || len(lines[0]) == 0 {
		t.Fatal("no log lines written")
	}
	var l logLine
	if err := json.Unmarshal(lines[len(lines)-1], &l); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	return l
}

func TestRequestLoggingRecordsStatusAndBytes(t *testing.T) {
	log, buf := captureLogger()

	h := WithRequestLogging(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}), log)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chats", nil))

	line := lastLogLine(t, buf)
	if line.Msg != "http.request" {
		t.Fatalf("msg = %q, want http.request", line.Msg)
	}
	if line.Status != http.StatusTeapot {
		t.Fatalf("status = %d, want 418", line.Status)
	}
	if line.Bytes != int64(len("short and stout")) {
		t.Fatalf("bytes = %d, want %d", line.Bytes, len("short and stout"))
	}
	// 4xx responses log at warn.
	if line.Level != "WARN" {
		t.Fatalf("level = %q, want WARN", line.Level)
	}
}

func TestRequestLoggingEscalatesServerErrors(t *testing.T) {
	log, buf := captureLogger()

	h := WithRequestLogging(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}), log)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chats", nil))

	if line := lastLogLine(t, buf); line.Level != "ERROR" {
		t.Fatalf("level = %q, want ERROR", line.Level)
	}
}

func TestRequestLoggingSkipsHealthEndpoints(t *testing.T) {
	log, buf := captureLogger()

	h := WithRequestLogging(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), log)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	if buf.Len() != 0 {
		t.Fatalf("health check requests were logged: %s", buf.String())
	}
}

func TestStatusRecorderPreservesOptionalInterfaces(t *testing.T) {
	base := httptest.NewRecorder()
	rec := &statusRecorder{ResponseWriter: base, status: http.StatusOK}

	if rec.Unwrap() != base {
		t.Fatal("Unwrap did not return the underlying writer")
	}

	// httptest.ResponseRecorder is not a Hijacker; the wrapper must report
	// that instead of panicking, or the /ws upgrade misbehaves behind it.
	if _, _, err := rec.Hijack(); err == nil {
		t.Fatal("Hijack on a non-hijacker succeeded")
	}
	rec.Flush()
	if err := rec.Push("/", nil); err != http.ErrNotSupported {
		t.Fatalf("Push err = %v, want ErrNotSupported", err)
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"nonsense", slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := parseLogLevel(tc.in); got != tc.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
