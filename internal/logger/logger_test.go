package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "WARN", "text", false)

	Debug("debug message")
	Info("info message")
	Warn("warn message")
	Error("error message")

	out := buf.String()
	if strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
		t.Errorf("suppressed levels leaked into output:\n%s", out)
	}
	if !strings.Contains(out, "warn message") || !strings.Contains(out, "error message") {
		t.Errorf("enabled levels missing from output:\n%s", out)
	}
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "ERROR", "text", false)

	Info("hidden")
	SetLevel("DEBUG")
	Info("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("message below level was logged:\n%s", out)
	}
	if !strings.Contains(out, "visible") {
		t.Errorf("message after SetLevel missing:\n%s", out)
	}

	// Invalid levels are ignored, not applied.
	SetLevel("SHOUTING")
	buf.Reset()
	Info("still visible")
	if !strings.Contains(buf.String(), "still visible") {
		t.Error("invalid SetLevel changed the effective level")
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "json", false)

	Info("structured message", "session", "Client01", "count", 3)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if record["msg"] != "structured message" {
		t.Errorf("msg = %v", record["msg"])
	}
	if record["session"] != "Client01" {
		t.Errorf("session = %v", record["session"])
	}
	if record["count"] != float64(3) {
		t.Errorf("count = %v", record["count"])
	}
}

func TestTextFormatAttributes(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text", false)

	Info("session started", "name", "Client02")

	out := buf.String()
	if !strings.Contains(out, "session started") || !strings.Contains(out, "name=Client02") {
		t.Errorf("text output missing fields:\n%s", out)
	}
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "json", false)

	l := With("component", "server")
	l.Info("scoped")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if record["component"] != "server" {
		t.Errorf("component = %v", record["component"])
	}
}

func TestConcurrentLogging(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "json", false)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				Info("concurrent", "goroutine", n, "iteration", j)
			}
		}(i)
	}
	wg.Wait()
}
