// Package strutil provides string and buffer primitives for the launcher.
//
// The launcher renders kernel-facing control lines and human-readable
// diagnostics from caller-influenced input. Rendering into a FixedBuffer
// fails loudly on overflow instead of truncating, and Quote makes arbitrary
// bytes safe to embed in a single-line error message.
package strutil

import (
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

// ErrBufferFull is returned when an append would exceed a FixedBuffer's capacity.
var ErrBufferFull = fmt.Errorf("buffer overflow")

// FixedBuffer is an append-only byte buffer with a hard capacity.
// Appends that do not fit fail with ErrBufferFull; nothing is ever
// silently truncated.
type FixedBuffer struct {
	buf []byte
	cap int
}

// NewFixedBuffer returns a buffer that holds at most capacity bytes.
func NewFixedBuffer(capacity int) *FixedBuffer {
	return &FixedBuffer{
		buf: make([]byte, 0, capacity),
		cap: capacity,
	}
}

// WriteString appends s to the buffer.
func (b *FixedBuffer) WriteString(s string) error {
	if len(b.buf)+len(s) > b.cap {
		return fmt.Errorf("%w: cannot append %d bytes to buffer of %d/%d", ErrBufferFull, len(s), len(b.buf), b.cap)
	}
	b.buf = append(b.buf, s...)
	return nil
}

// WriteByte appends a single byte to the buffer.
func (b *FixedBuffer) WriteByte(c byte) error {
	if len(b.buf)+1 > b.cap {
		return fmt.Errorf("%w: cannot append 1 byte to buffer of %d/%d", ErrBufferFull, len(b.buf), b.cap)
	}
	b.buf = append(b.buf, c)
	return nil
}

// Writef appends a formatted string to the buffer.
func (b *FixedBuffer) Writef(format string, args ...any) error {
	return b.WriteString(fmt.Sprintf(format, args...))
}

// Len returns the number of bytes currently in the buffer.
func (b *FixedBuffer) Len() int {
	return len(b.buf)
}

// String returns the accumulated contents.
func (b *FixedBuffer) String() string {
	return string(b.buf)
}

// Bytes returns the accumulated contents as a byte slice.
func (b *FixedBuffer) Bytes() []byte {
	return b.buf
}

// Quote renders s as a double-quoted string safe for single-line
// diagnostics. Printable ASCII passes through, the common control
// characters use their named escapes, and everything else becomes
// \xHH with lower-case hex digits.
func Quote(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 2)
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			sb.WriteString(`\"`)
		case c == '\\':
			sb.WriteString(`\\`)
		case c == '\t':
			sb.WriteString(`\t`)
		case c == '\n':
			sb.WriteString(`\n`)
		case c == '\r':
			sb.WriteString(`\r`)
		case c == '\v':
			sb.WriteString(`\v`)
		case c >= 0x20 && c <= 0x7e:
			sb.WriteByte(c)
		default:
			fmt.Fprintf(&sb, `\x%02x`, c)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

// CloseFd closes *fd if it is not -1 and resets it to -1, so that a
// handle teardown path may run more than once without double-closing.
// Close errors on teardown are ignored.
func CloseFd(fd *int) {
	if fd == nil || *fd == -1 {
		return
	}
	unix.Close(*fd)
	*fd = -1
}
