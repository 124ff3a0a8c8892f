package output

import (
	"encoding/json"
	"io"
	"sync"
)

// JSONWriter writes output in JSON format. In stream mode every record is
// written as a compact line (JSON Lines).
type JSONWriter struct {
	mu     sync.Mutex
	writer io.Writer
	pretty bool
	stream bool
	closed bool
}

// NewJSONWriter creates a new JSON writer.
func NewJSONWriter(w io.Writer, pretty, stream bool) *JSONWriter {
	return &JSONWriter{
		writer: w,
		pretty: pretty,
		stream: stream,
	}
}

// WriteResult writes v as one document followed by a newline.
func (j *JSONWriter) WriteResult(v any) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}

	var data []byte
	var err error

	if j.pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}

	return j.writeLine(data)
}

// WriteRecord writes v as one line in stream mode and is a no-op otherwise.
func (j *JSONWriter) WriteRecord(v any) error {
	if !j.stream {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return j.writeLine(data)
}

func (j *JSONWriter) writeLine(data []byte) error {
	if _, err := j.writer.Write(data); err != nil {
		return err
	}
	_, err := j.writer.Write([]byte("\n"))
	return err
}

// Flush flushes the writer.
func (j *JSONWriter) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if flusher, ok := j.writer.(interface{ Flush() error }); ok {
		return flusher.Flush()
	}
	return nil
}

// Close closes the writer. Further writes are dropped.
func (j *JSONWriter) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true

	if closer, ok := j.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
