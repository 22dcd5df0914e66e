package llmclient

import (
	"bufio"
	"bytes"
	"io"
)

const maxLineSize = 1 << 20

var (
	dataPrefix = []byte("data:")
	doneMarker = []byte("[DONE]")
)

// SSEReader reads the data payloads of a server-sent event stream.
type SSEReader struct {
	scanner  *bufio.Scanner
	done     bool
	finished bool
}

// NewSSEReader wraps r.
func NewSSEReader(r io.Reader) *SSEReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &SSEReader{scanner: scanner}
}

// Next returns the payload of the next data line. Comments, event names and
// blank lines are skipped. It returns io.EOF at "data: [DONE]" or at the end of
// the stream.
func (r *SSEReader) Next() ([]byte, error) {
	if r.done {
		return nil, io.EOF
	}
	for r.scanner.Scan() {
		line := r.scanner.Bytes()
		if !bytes.HasPrefix(line, dataPrefix) {
			continue
		}
		data := bytes.TrimSpace(line[len(dataPrefix):])
		if bytes.Equal(data, doneMarker) {
			r.done = true
			r.finished = true
			return nil, io.EOF
		}
		if len(data) == 0 {
			continue
		}
		return append([]byte(nil), data...), nil
	}
	r.done = true
	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// Done reports whether the stream was terminated by "data: [DONE]".
func (r *SSEReader) Done() bool {
	return r.finished
}

// LineReader reads newline-delimited JSON objects.
type LineReader struct {
	scanner *bufio.Scanner
}

// NewLineReader wraps r.
func NewLineReader(r io.Reader) *LineReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &LineReader{scanner: scanner}
}

// Next returns the next non-blank line, or io.EOF.
func (r *LineReader) Next() ([]byte, error) {
	for r.scanner.Scan() {
		line := bytes.TrimSpace(r.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		return append([]byte(nil), line...), nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}
