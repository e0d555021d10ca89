package http

import (
	"github.com/valyala/bytebufferpool"
)

const upperHex = "0123456789ABCDEF"

// URLDecode reverses percent-encoding and the '+' for space substitution used
// by query strings and form bodies. Malformed escapes are kept literally.
func URLDecode(b []byte) string {
	// Nothing to decode
	i := 0
	for ; i < len(b); i++ {
		if b[i] == '%' || b[i] == '+' {
			break
		}
	}
	if i == len(b) {
		return string(b)
	}

	out := make([]byte, 0, len(b))
	out = append(out, b[:i]...)
	for ; i < len(b); i++ {
		switch c := b[i]; c {
		case '+':
			out = append(out, ' ')
		case '%':
			// Truncated escape
			if i+2 >= len(b) {
				out = append(out, c)
				continue
			}
			hi, lo := hexToByte(b[i+1]), hexToByte(b[i+2])
			if hi == 255 || lo == 255 {
				out = append(out, c)
				continue
			}
			out = append(out, hi<<4|lo)
			i += 2
		default:
			out = append(out, c)
		}
	}
	return string(out)
}

// URLEncode percent-encodes every byte outside the unreserved set and
// writes spaces as '+'.
func URLEncode(s string) []byte {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case isUnreserved(c):
			buf.B = append(buf.B, c)
		case c == ' ':
			buf.B = append(buf.B, '+')
		default:
			buf.B = append(buf.B, '%', upperHex[c>>4], upperHex[c&0x0F])
		}
	}

	return append([]byte(nil), buf.B...)
}

func isUnreserved(c byte) bool {
	return ('a' <= c && c <= 'z') ||
		('A' <= c && c <= 'Z') ||
		('0' <= c && c <= '9') ||
		c == '-' || c == '_' || c == '.' || c == '~'
}
