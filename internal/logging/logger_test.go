package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
)

func testLogger(buf *bytes.Buffer, jsonOut bool) *Logger {
	return &Logger{mu: &sync.Mutex{}, output: buf, level: DEBUG, jsonOut: jsonOut}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want Level
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{"warn", WARN},
		{"WARNING", WARN},
		{"Error", ERROR},
		{"fatal", FATAL},
		{"garbage", INFO},
		{"", INFO},
	}
	for _, tc := range cases {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := testLogger(&buf, false)
	logger.level = WARN

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("records below the threshold leaked: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("WARN record missing: %q", out)
	}
}

func TestJSONRecordShape(t *testing.T) {
	var buf bytes.Buffer
	logger := testLogger(&buf, true).WithComponent("coordinator")

	logger.Info("order placed", "symbol", "BTCUSDT", "qty", 1.5)

	var rec map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if rec["level"] != "INFO" || rec["msg"] != "order placed" {
		t.Errorf("fixed keys wrong: %v", rec)
	}
	if rec["component"] != "coordinator" {
		t.Errorf("component = %v, want coordinator", rec["component"])
	}
	if rec["symbol"] != "BTCUSDT" || rec["qty"] != 1.5 {
		t.Errorf("fields not inlined: %v", rec)
	}
	if _, ok := rec["ts"]; !ok {
		t.Error("record has no ts key")
	}
}

func TestErrorValuesRenderAsStrings(t *testing.T) {
	var buf bytes.Buffer
	logger := testLogger(&buf, true)

	logger.Error("request failed", "error", errors.New("boom"))

	var rec map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if rec["error"] != "boom" {
		t.Errorf("error field = %v, want boom", rec["error"])
	}
}

func TestOddTrailingArgIsDropped(t *testing.T) {
	var buf bytes.Buffer
	logger := testLogger(&buf, true)

	logger.Info("msg", "a", 1, "dangling")

	var rec map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, ok := rec["dangling"]; ok {
		t.Errorf("dangling key should be dropped: %v", rec)
	}
	if rec["a"] != float64(1) {
		t.Errorf("paired field lost: %v", rec)
	}
}

func TestWithFieldsSortedAndIsolated(t *testing.T) {
	var buf bytes.Buffer
	base := testLogger(&buf, true)

	derived := base.WithFields(map[string]interface{}{"b": 2, "a": 1})
	derived.Info("derived")

	out := buf.String()
	if strings.Index(out, `"a":`) > strings.Index(out, `"b":`) {
		t.Errorf("map fields should bind in key order: %q", out)
	}

	buf.Reset()
	base.Info("base")
	if strings.Contains(buf.String(), `"a":`) {
		t.Errorf("derived fields leaked into the parent: %q", buf.String())
	}
}

func TestWithErrorNilReturnsSameLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := testLogger(&buf, true)
	if logger.WithError(nil) != logger {
		t.Error("nil error should not derive a new logger")
	}
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := testLogger(&buf, false).WithComponent("feed").WithField("symbol", "ETHUSDT")

	logger.Warn("stale decision", "age", "5s")

	out := buf.String()
	if !strings.Contains(out, "[WARN ]") || !strings.Contains(out, "[feed]") {
		t.Errorf("header missing: %q", out)
	}
	if !strings.Contains(out, "stale decision | symbol=ETHUSDT, age=5s") {
		t.Errorf("fields not rendered: %q", out)
	}
}
