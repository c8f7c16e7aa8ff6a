package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/five82/jpdict/internal/config"
	"github.com/five82/jpdict/internal/protocol"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "warn", "json")
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info record written at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) {
		t.Fatalf("expected json warn record, got %s", out)
	}

	if _, err := newLogger(io.Discard, "loud", "text"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	if _, err := newLogger(io.Discard, "info", "xml"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func testCommand(t *testing.T, handler http.HandlerFunc) (*cliState, *cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.HTTPBind = strings.TrimPrefix(srv.URL, "http://")
	st := &cliState{cfg: cfg}

	var stdout, stderr bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetContext(context.Background())
	return st, cmd, &stdout, &stderr
}

func TestRuntimeRequestPrintsResult(t *testing.T) {
	var got protocol.RuntimeRequest
	st, cmd, stdout, _ := testCommand(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/runtime" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"type":"words"}`))
	})

	err := runtimeRequest(cmd, st, protocol.RuntimeRequest{Type: protocol.TypeSearch, Text: "日本", DictOption: protocol.DictNext})
	if err != nil {
		t.Fatalf("runtimeRequest: %v", err)
	}
	if got.Type != protocol.TypeSearch || got.Text != "日本" || got.DictOption != protocol.DictNext {
		t.Fatalf("server received %+v", got)
	}
	if stdout.String() != `{"type":"words"}` {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestRuntimeRequestNoResults(t *testing.T) {
	st, cmd, stdout, stderr := testCommand(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("null\n"))
	})

	if err := runtimeRequest(cmd, st, protocol.RuntimeRequest{Type: protocol.TypeSearch, Text: "x"}); err != nil {
		t.Fatalf("runtimeRequest: %v", err)
	}
	if stdout.Len() != 0 || !strings.Contains(stderr.String(), "no results") {
		t.Fatalf("stdout=%q stderr=%q", stdout.String(), stderr.String())
	}
}

func TestRuntimeRequestError(t *testing.T) {
	st, cmd, _, _ := testCommand(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"dictionary not loaded"}`))
	})

	err := runtimeRequest(cmd, st, protocol.RuntimeRequest{Type: protocol.TypeTranslate, Title: "x"})
	if err == nil || !strings.Contains(err.Error(), "503") || !strings.Contains(err.Error(), "dictionary not loaded") {
		t.Fatalf("err = %v, want 503 with server message", err)
	}
}

func TestToggleCommand(t *testing.T) {
	var calls int
	st, _, _, _ := testCommand(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/toggle" {
			calls++
		}
		w.WriteHeader(http.StatusNoContent)
	})

	cmd := newToggleCmd(st)
	cmd.SetContext(context.Background())
	if err := cmd.RunE(cmd, nil); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if calls != 1 {
		t.Fatalf("toggle calls = %d, want 1", calls)
	}
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "watch", "search", "translate", "toggle"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("subcommand %q not registered: %v", name, err)
		}
	}
}
