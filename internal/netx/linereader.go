// Package netx provides small, allocation-conscious helpers for scanning
// bytes that arrive in arbitrary chunk boundaries off a non-blocking
// socket, without ever assuming a full line (or a full message) is present
// in any single read.
package netx

import (
	"bytes"
	"errors"
)

// ErrLineTooLong is returned by LineReader.Next when a line exceeds the
// caller-supplied maximum before a terminator is found.
var ErrLineTooLong = errors.New("netx: line too long")

// LineReader extracts one CRLF- or bare-LF-terminated line at a time from a
// sequence of Next calls, carrying over any unterminated tail between
// calls. Unlike a scanner that eagerly splits an entire buffer into lines,
// LineReader stops at the first line boundary and hands back whatever
// input it didn't need, untouched — callers that only want to
// line-scan a header section, then switch to raw byte counting for a
// message body, rely on this to avoid misinterpreting body bytes that
// happen to contain '\n' as additional lines.
type LineReader struct {
	carry []byte
}

// NewLineReader returns an empty LineReader.
func NewLineReader() *LineReader {
	return &LineReader{}
}

// Next looks for a line terminator across any carried-over partial line
// plus data. If one is found, it returns the line (CRLF/LF stripped) and
// the remainder of data following the terminator — a subslice of data
// itself, not a copy — and ok is true. If no terminator is present, Next
// retains data (bounded by maxLine) for the next call and returns ok=false;
// rest is always nil in that case, since every byte of data was consumed
// into the carry.
func (r *LineReader) Next(data []byte, maxLine int) (line []byte, rest []byte, ok bool, err error) {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		var full []byte
		if len(r.carry) > 0 {
			full = append(r.carry, data[:i]...)
			r.carry = nil
		} else {
			full = data[:i]
		}
		if n := len(full); n > 0 && full[n-1] == '\r' {
			full = full[:n-1]
		}
		return full, data[i+1:], true, nil
	}
	if len(r.carry)+len(data) > maxLine {
		r.carry = nil
		return nil, nil, false, ErrLineTooLong
	}
	r.carry = append(r.carry, data...)
	return nil, nil, false, nil
}

// Pending reports how many bytes of an as-yet-unterminated line are
// currently being carried.
func (r *LineReader) Pending() int { return len(r.carry) }

// Reset discards any carried partial line.
func (r *LineReader) Reset() { r.carry = r.carry[:0] }
