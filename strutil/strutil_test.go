package strutil

import (
	"errors"
	"strings"
	"testing"
)

func TestQuote(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected string
	}{
		{"empty", "", `""`},
		{"plain", "hello", `"hello"`},
		{"path", "/snap/foo/current", `"/snap/foo/current"`},
		{"space", "a b", `"a b"`},
		{"double quote", `say "hi"`, `"say \"hi\""`},
		{"backslash", `a\b`, `"a\\b"`},
		{"tab", "a\tb", `"a\tb"`},
		{"newline", "a\nb", `"a\nb"`},
		{"carriage return", "a\rb", `"a\rb"`},
		{"vertical tab", "a\vb", `"a\vb"`},
		{"nul byte", "a\x00b", `"a\x00b"`},
		{"bell", "\a", `"\x07"`},
		{"high byte", "\xff", `"\xff"`},
		{"mixed", "ok\x01\x7f", `"ok\x01\x7f"`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Quote(tc.in)
			if got != tc.expected {
				t.Errorf("Quote(%q) = %s, expected %s", tc.in, got, tc.expected)
			}
		})
	}
}

func TestQuoteHexIsLowerCase(t *testing.T) {
	got := Quote("\xab\xcd")
	if got != `"\xab\xcd"` {
		t.Errorf("Quote hex escapes must use lower-case digits, got %s", got)
	}
}

func TestFixedBufferAppend(t *testing.T) {
	b := NewFixedBuffer(8)

	if err := b.WriteString("abc"); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	if err := b.WriteByte('d'); err != nil {
		t.Fatalf("WriteByte: %v", err)
	}
	if err := b.Writef("%d", 42); err != nil {
		t.Fatalf("Writef: %v", err)
	}
	if b.String() != "abcd42" {
		t.Errorf("unexpected contents %q", b.String())
	}
	if b.Len() != 6 {
		t.Errorf("unexpected length %d", b.Len())
	}
}

func TestFixedBufferOverflow(t *testing.T) {
	b := NewFixedBuffer(4)

	if err := b.WriteString("abcd"); err != nil {
		t.Fatalf("WriteString at capacity: %v", err)
	}

	// The buffer is full; every further append must fail and leave
	// the contents untouched.
	if err := b.WriteString("e"); !errors.Is(err, ErrBufferFull) {
		t.Errorf("WriteString overflow error = %v, expected ErrBufferFull", err)
	}
	if err := b.WriteByte('e'); !errors.Is(err, ErrBufferFull) {
		t.Errorf("WriteByte overflow error = %v, expected ErrBufferFull", err)
	}
	if b.String() != "abcd" {
		t.Errorf("overflowing append modified the buffer: %q", b.String())
	}
}

func TestFixedBufferNeverTruncates(t *testing.T) {
	b := NewFixedBuffer(10)
	if err := b.WriteString("12345"); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	// 6 more bytes do not fit in the 5 remaining; the append must be
	// rejected as a whole, not applied partially.
	if err := b.WriteString("abcdef"); !errors.Is(err, ErrBufferFull) {
		t.Fatalf("expected ErrBufferFull, got %v", err)
	}
	if strings.Contains(b.String(), "a") {
		t.Errorf("partial append leaked into buffer: %q", b.String())
	}
}

func TestCloseFdIdempotent(t *testing.T) {
	fd := -1
	// Closing a sentinel fd is a no-op, repeatedly.
	CloseFd(&fd)
	CloseFd(&fd)
	if fd != -1 {
		t.Errorf("sentinel fd changed to %d", fd)
	}
	CloseFd(nil)
}
