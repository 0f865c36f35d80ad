package irc

import (
	"bytes"
	"errors"
	"fmt"
	"iter"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// DefaultMaxLineBytes bounds the partial line a codec will hold while
// waiting for a terminator.
const DefaultMaxLineBytes = 16 * 1024

var ErrLineTooLong = errors.New("irc: line exceeds maximum buffered size")

// LineCodec reassembles protocol lines from arbitrarily split reads.
// It is not safe for concurrent use; each connection owns one.
type LineCodec struct {
	buf      []byte
	maxLine  int
	fallback encoding.Encoding
}

type CodecOption func(*LineCodec)

// WithMaxLineBytes caps the unterminated tail. Zero disables the cap.
func WithMaxLineBytes(n int) CodecOption {
	return func(c *LineCodec) {
		if n >= 0 {
			c.maxLine = n
		}
	}
}

// WithFallbackEncoding decodes lines that are not valid UTF-8 with enc.
func WithFallbackEncoding(enc encoding.Encoding) CodecOption {
	return func(c *LineCodec) {
		c.fallback = enc
	}
}

func NewLineCodec(opts ...CodecOption) *LineCodec {
	c := &LineCodec{maxLine: DefaultMaxLineBytes}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LookupEncoding resolves a WHATWG encoding label such as "latin1" or
// "windows-1252". An empty name returns nil without error.
func LookupEncoding(name string) (encoding.Encoding, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", name, err)
	}
	return enc, nil
}

// Feed appends a chunk read from the transport.
func (c *LineCodec) Feed(chunk []byte) error {
	c.buf = append(c.buf, chunk...)
	if c.maxLine <= 0 {
		return nil
	}
	tail := c.buf
	if i := bytes.LastIndexByte(c.buf, '\n'); i >= 0 {
		tail = c.buf[i+1:]
	}
	if len(tail) > c.maxLine {
		n := len(tail)
		c.buf = nil
		return fmt.Errorf("%w: %d bytes without terminator", ErrLineTooLong, n)
	}
	return nil
}

// Lines yields complete lines without their terminators. Each yielded line
// is consumed from the buffer; lines not yet pulled stay buffered.
func (c *LineCodec) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		for {
			i := bytes.IndexByte(c.buf, '\n')
			if i < 0 {
				return
			}
			raw := bytes.TrimSuffix(c.buf[:i], []byte{'\r'})
			c.buf = c.buf[i+1:]
			if len(c.buf) == 0 {
				c.buf = nil
			}
			if len(raw) == 0 {
				continue
			}
			if !yield(c.decode(raw)) {
				return
			}
		}
	}
}

// Buffered reports how many bytes are held for an unterminated line.
func (c *LineCodec) Buffered() int {
	return len(c.buf)
}

func (c *LineCodec) Reset() {
	c.buf = nil
}

func (c *LineCodec) decode(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	if c.fallback != nil {
		if s, err := c.fallback.NewDecoder().Bytes(raw); err == nil {
			return string(s)
		}
	}
	s, err := unicode.UTF8.NewDecoder().Bytes(raw)
	if err != nil {
		return strings.ToValidUTF8(string(raw), "\uFFFD")
	}
	return string(s)
}
