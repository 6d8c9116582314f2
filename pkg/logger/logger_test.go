package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestGetBeforeInit(t *testing.T) {
	prev := global
	global = nil
	defer func() { global = prev }()

	l := Get()
	if l == nil {
		t.Fatal("expected a discarding logger before Init")
	}
	l.Info(context.Background(), "dropped")
}

func TestInitJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithOutput(&buf), WithFormat("json")); err != nil {
		t.Fatalf("init: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	Named("game").With(String("session_id", "s1")).Info(context.Background(), "match resolved",
		Int("match", 3), Error(errors.New("boom")))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("record is not json: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "match resolved" {
		t.Errorf("unexpected msg %v", rec["msg"])
	}
	if rec["logger"] != "game" || rec["session_id"] != "s1" {
		t.Errorf("missing context fields: %v", rec)
	}
	if rec["error"] != "boom" {
		t.Errorf("expected error text, got %v", rec["error"])
	}
	if src, _ := rec["source"].(string); !strings.Contains(src, "logger_test.go") {
		t.Errorf("expected caller source, got %v", rec["source"])
	}
}

func TestInitUnknownFormat(t *testing.T) {
	if err := Init(WithFormat("xml")); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestSetLevelString(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithOutput(&buf)); err != nil {
		t.Fatalf("init: %v", err)
	}
	cases := []string{"debug", "info", "warn", "warning", "error", "", " INFO "}
	for _, lvl := range cases {
		if err := SetLevelString(lvl); err != nil {
			t.Errorf("level %q: %v", lvl, err)
		}
	}
	if err := SetLevelString("loud"); err == nil {
		t.Error("expected error for unknown level")
	}

	if err := SetLevelString("error"); err != nil {
		t.Fatal(err)
	}
	Get().Info(context.Background(), "hidden")
	if buf.Len() != 0 {
		t.Errorf("info record written at error level: %q", buf.String())
	}
	Get().Error(context.Background(), "shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("error record missing: %q", buf.String())
	}
}

func TestNop(t *testing.T) {
	l := Nop().Named("x").With(Bool("ok", true))
	l.Debug(context.Background(), "nothing")
	l.Warn(context.Background(), "nothing")
}
