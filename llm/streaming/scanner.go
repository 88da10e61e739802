package streaming

import "bytes"

// FrameScanner splits a growing byte buffer into newline-terminated lines.
// Bytes after the last '\n' stay pending until a later Feed completes them.
// A FrameScanner is owned by one run and is not safe for concurrent use.
type FrameScanner struct {
	buf []byte
	off int // start of the unread region of buf
}

// NewFrameScanner creates an empty scanner.
func NewFrameScanner() *FrameScanner {
	return &FrameScanner{buf: make([]byte, 0, 4096)}
}

// Feed appends chunk to the pending buffer. The chunk is copied and not retained.
func (s *FrameScanner) Feed(chunk []byte) {
	if s.off > 0 {
		n := copy(s.buf, s.buf[s.off:])
		s.buf = s.buf[:n]
		s.off = 0
	}
	s.buf = append(s.buf, chunk...)
}

// Next removes and returns the next complete line without its terminator.
// One trailing '\r' is stripped. It returns false once no '\n' is pending.
func (s *FrameScanner) Next() (string, bool) {
	pending := s.buf[s.off:]
	i := bytes.IndexByte(pending, '\n')
	if i < 0 {
		return "", false
	}
	line := string(trimCR(pending[:i]))
	s.off += i + 1
	return line, true
}

// Pushback puts line, followed by '\n', back in front of the pending bytes.
func (s *FrameScanner) Pushback(line string) {
	pending := s.buf[s.off:]
	next := make([]byte, 0, len(line)+1+len(pending)+512)
	next = append(next, line...)
	next = append(next, '\n')
	next = append(next, pending...)
	s.buf = next
	s.off = 0
}

// Residual drains the pending bytes and returns them as one line.
// Only meaningful at end of stream, when no terminator will follow.
func (s *FrameScanner) Residual() string {
	line := string(trimCR(s.buf[s.off:]))
	s.buf = s.buf[:0]
	s.off = 0
	return line
}

// Len returns the number of pending bytes.
func (s *FrameScanner) Len() int {
	return len(s.buf) - s.off
}

func trimCR(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\r' {
		return b[:n-1]
	}
	return b
}
