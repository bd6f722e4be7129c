package sse

import (
	"bytes"
	"io"
)

// Writer frames payloads as SSE "data:" events onto an io.Writer.
//
// Each call to WriteData produces exactly one event, terminated by a blank
// line. Payloads containing newlines are split across several "data:" lines
// so that a Reader on the other side joins them back into the original value.
type Writer struct {
	dest io.Writer
	buf  bytes.Buffer
}

// NewWriter returns a Writer that frames events onto dest. The dest writer
// typically backs an io.Pipe connected to the downstream HTTP response.
func NewWriter(dest io.Writer) *Writer {
	return &Writer{dest: dest}
}

// WriteData writes data as a single SSE event. The whole event is handed to
// the destination in one Write call, so a blocking destination either accepts
// the complete event or none of it.
func (w *Writer) WriteData(data []byte) error {
	w.buf.Reset()

	for {
		line, rest, found := bytes.Cut(data, []byte("\n"))
		w.buf.WriteString("data: ")
		w.buf.Write(bytes.TrimSuffix(line, []byte("\r")))
		w.buf.WriteByte('\n')
		if !found {
			break
		}
		data = rest
	}
	w.buf.WriteByte('\n')

	_, err := w.dest.Write(w.buf.Bytes())
	return err
}

// WriteString is a convenience wrapper around WriteData.
func (w *Writer) WriteString(data string) error {
	return w.WriteData([]byte(data))
}

// WriteComment writes a comment-only block (":\n\n"). Readers skip it
// without yielding an event, which makes it usable as a keep-alive.
func (w *Writer) WriteComment() error {
	_, err := io.WriteString(w.dest, ":\n\n")
	return err
}
