package output

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// mockFlusher implements io.Writer with Flush support
type mockFlusher struct {
	bytes.Buffer
	flushed bool
}

func (m *mockFlusher) Flush() error {
	m.flushed = true
	return nil
}

// mockCloser implements io.Writer with Close support
type mockCloser struct {
	bytes.Buffer
	closed int
}

func (m *mockCloser) Close() error {
	m.closed++
	return nil
}

// mockWriteError simulates write errors
type mockWriteError struct {
	err error
}

func (m *mockWriteError) Write(p []byte) (n int, err error) {
	return 0, m.err
}

type record struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// =============================================================================
// JSONWriter Tests
// =============================================================================

func TestJSONWriter_WriteResult(t *testing.T) {
	pages := []record{
		{Title: "Home", URL: "https://example.com/"},
		{Title: "About", URL: "https://example.com/about"},
	}

	tests := []struct {
		name   string
		pretty bool
	}{
		{"compact output", false},
		{"pretty output", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			jw := NewJSONWriter(&buf, tt.pretty, false)

			if err := jw.WriteResult(pages); err != nil {
				t.Fatalf("WriteResult() error = %v", err)
			}

			var parsed []record
			if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
				t.Fatalf("output is not valid JSON: %v", err)
			}
			if len(parsed) != 2 || parsed[1].Title != "About" {
				t.Errorf("parsed = %+v", parsed)
			}

			if tt.pretty != strings.Contains(buf.String(), "\n  ") {
				t.Errorf("indentation present = %v, want %v", !tt.pretty, tt.pretty)
			}
			if !strings.HasSuffix(buf.String(), "\n") {
				t.Error("output should end with a newline")
			}
		})
	}
}

func TestJSONWriter_WriteResult_Closed(t *testing.T) {
	var buf bytes.Buffer
	jw := NewJSONWriter(&buf, false, false)
	jw.Close()

	if err := jw.WriteResult([]record{{Title: "x"}}); err != nil {
		t.Errorf("WriteResult on closed writer should return nil, got %v", err)
	}
	if buf.Len() != 0 {
		t.Error("closed writer should not write anything")
	}
}

func TestJSONWriter_WriteResult_WriteError(t *testing.T) {
	jw := NewJSONWriter(&mockWriteError{err: io.ErrShortWrite}, false, false)

	if err := jw.WriteResult(record{Title: "x"}); err == nil {
		t.Error("expected error on write failure")
	}
}

func TestJSONWriter_WriteRecord_StreamMode(t *testing.T) {
	var buf bytes.Buffer
	jw := NewJSONWriter(&buf, true, true)

	for _, r := range []record{{Title: "A", URL: "u1"}, {Title: "B", URL: "u2"}} {
		if err := jw.WriteRecord(r); err != nil {
			t.Fatalf("WriteRecord() error = %v", err)
		}
	}

	scanner := bufio.NewScanner(&buf)
	var lines []record
	for scanner.Scan() {
		var r record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			t.Fatalf("line %q is not JSON: %v", scanner.Text(), err)
		}
		lines = append(lines, r)
	}
	if len(lines) != 2 || lines[0].Title != "A" || lines[1].URL != "u2" {
		t.Errorf("lines = %+v", lines)
	}
}

func TestJSONWriter_WriteRecord_NonStreamMode(t *testing.T) {
	var buf bytes.Buffer
	jw := NewJSONWriter(&buf, false, false)

	if err := jw.WriteRecord(record{Title: "A"}); err != nil {
		t.Fatalf("WriteRecord() error = %v", err)
	}
	if buf.Len() != 0 {
		t.Error("non-stream writer should not emit records")
	}
}

func TestJSONWriter_Flush(t *testing.T) {
	t.Run("with flushable writer", func(t *testing.T) {
		flusher := &mockFlusher{}
		jw := NewJSONWriter(flusher, false, false)

		if err := jw.Flush(); err != nil {
			t.Fatalf("Flush() error = %v", err)
		}
		if !flusher.flushed {
			t.Error("Flush() should call underlying writer's Flush")
		}
	})

	t.Run("with non-flushable writer", func(t *testing.T) {
		var buf bytes.Buffer
		jw := NewJSONWriter(&buf, false, false)

		if err := jw.Flush(); err != nil {
			t.Fatalf("Flush() on non-flushable writer should return nil, got %v", err)
		}
	})
}

func TestJSONWriter_CloseOnce(t *testing.T) {
	closer := &mockCloser{}
	jw := NewJSONWriter(closer, false, false)

	if err := jw.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	jw.Close()

	if closer.closed != 1 {
		t.Errorf("underlying Close called %d times, want 1", closer.closed)
	}
}

func TestJSONWriter_Concurrent(t *testing.T) {
	var buf bytes.Buffer
	jw := NewJSONWriter(&buf, false, true)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				jw.WriteRecord(record{Title: "t", URL: "https://example.com/"})
			}
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 500 {
		t.Fatalf("got %d lines, want 500", len(lines))
	}
	for _, line := range lines {
		if !json.Valid([]byte(line)) {
			t.Fatalf("interleaved line %q", line)
		}
	}
}

// =============================================================================
// NewWriter / Open Tests
// =============================================================================

func TestNewWriter(t *testing.T) {
	tests := []struct {
		name       string
		config     Config
		wantPretty bool
		wantStream bool
	}{
		{"json pretty", Config{Format: FormatJSON, Pretty: true}, true, false},
		{"default format", Config{}, false, false},
		{"jsonl is never pretty", Config{Format: FormatJSONL, Pretty: true}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jw, ok := NewWriter(&bytes.Buffer{}, tt.config).(*JSONWriter)
			if !ok {
				t.Fatal("NewWriter should return a JSONWriter")
			}
			if jw.pretty != tt.wantPretty {
				t.Errorf("pretty = %v, want %v", jw.pretty, tt.wantPretty)
			}
			if jw.stream != tt.wantStream {
				t.Errorf("stream = %v, want %v", jw.stream, tt.wantStream)
			}
		})
	}
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pages.json")

	w, err := Open(Config{Format: FormatJSON, FilePath: path})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := w.WriteResult([]record{{Title: "Home"}}); err != nil {
		t.Fatalf("WriteResult() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), `"title":"Home"`) {
		t.Errorf("file content = %s", data)
	}
}

func TestOpen_StdoutIsNotClosed(t *testing.T) {
	w, err := Open(Config{FilePath: "-"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := os.Stdout.Stat(); err != nil {
		t.Errorf("stdout should stay open: %v", err)
	}
}

func TestOpen_BadPath(t *testing.T) {
	_, err := Open(Config{FilePath: filepath.Join(t.TempDir(), "missing", "out.json")})
	if err == nil {
		t.Error("Open() should fail for a missing directory")
	}
}
