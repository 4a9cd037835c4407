package frame

import (
	"bufio"
	"io"
)

// DefaultMaxLineSize bounds a single frame on the wire. Oversized frames are
// a protocol violation, not a reason to allocate without limit.
const DefaultMaxLineSize = 1024 * 1024

// Decoder reads newline-delimited frames from a byte stream. Partial lines
// are buffered across reads by the underlying scanner; bytes are passed
// through verbatim, including embedded NULs.
type Decoder struct {
	scanner *bufio.Scanner
}

// NewDecoder wraps r with a line decoder. maxLineSize <= 0 selects
// DefaultMaxLineSize.
func NewDecoder(r io.Reader, maxLineSize int) *Decoder {
	if maxLineSize <= 0 {
		maxLineSize = DefaultMaxLineSize
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	return &Decoder{scanner: scanner}
}

// Next returns the next decoded frame.
//
// A malformed line yields (nil, *DecodeError) and the decoder remains usable
// for subsequent lines. End of stream yields (nil, io.EOF); any other scanner
// failure is returned as-is and is terminal.
func (d *Decoder) Next() (*Envelope, error) {
	for d.scanner.Scan() {
		line := d.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		return Decode(line)
	}

	if err := d.scanner.Err(); err != nil {
		return nil, err
	}

	return nil, io.EOF
}

// LineReader yields raw lines without JSON decoding. Used for side channels
// such as process stderr where the bytes are diagnostic text, not frames.
type LineReader struct {
	scanner *bufio.Scanner
}

// NewLineReader wraps r with a plain line reader using the default line cap.
func NewLineReader(r io.Reader) *LineReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4*1024), DefaultMaxLineSize)

	return &LineReader{scanner: scanner}
}

// Next returns the next line, or io.EOF when the stream ends.
func (l *LineReader) Next() (string, error) {
	if l.scanner.Scan() {
		return l.scanner.Text(), nil
	}

	if err := l.scanner.Err(); err != nil {
		return "", err
	}

	return "", io.EOF
}
