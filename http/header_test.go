package http

import (
	"errors"
	"testing"

	"github.com/freekieb7/ingress/test"
)

func TestParseRequestHeader(t *testing.T) {
	raw := []byte("GET /test?a=1 HTTP/1.1\r\nAccept: text/css\r\nConnection: keep-alive\r\nContent-Length: 0\r\nX-Multi: one\r\nx-multi: two")

	header, err := ParseRequestHeader(raw)
	test.AssertNoError(t, err)

	test.AssertEqual(t, "GET", header.Method())
	test.AssertEqual(t, "/test?a=1", header.Target())
	test.AssertEqual(t, "/test", header.Path())
	test.AssertEqual(t, "a=1", string(header.Query()))
	test.AssertEqual(t, "HTTP/1.1", header.Protocol())
	test.AssertEqual(t, 0, header.ContentLength())

	h, found := header.Value("CONNECTION")
	if !found {
		t.Error("connection header not found")
	}
	test.AssertEqual(t, "keep-alive", string(h))

	v, _ := header.Value("X-Multi")
	test.AssertEqual(t, "two", string(v))
	test.AssertEqual(t, 2, len(header.Values("x-multi")))

	// Raw bytes keep their original case
	test.AssertEqual(t, string(raw), string(header.Raw()))
}

func TestParseRequestHeader_Malformed(t *testing.T) {
	header, err := ParseRequestHeader([]byte("garbage\r\nContent-Length: 4"))
	if !errors.Is(err, ErrMalformedRequestLine) {
		t.Fatalf("expected ErrMalformedRequestLine, got %v", err)
	}

	// Fields are still available
	test.AssertEqual(t, 4, header.ContentLength())
}

func TestRequestHeader_ContentLength(t *testing.T) {
	testCases := []struct {
		raw      string
		expected int
	}{
		{"GET / HTTP/1.1", -1},
		{"GET / HTTP/1.1\r\nContent-Length: 12", 12},
		{"GET / HTTP/1.1\r\nContent-Length: abc", -1},
		{"GET / HTTP/1.1\r\nContent-Length: -5", -1},
		{"GET / HTTP/1.1\r\ncontent-length:  7 ", 7},
		{"GET / HTTP/1.1\r\nContent-Length: 9223372036854775808", -1},
		{"GET / HTTP/1.1\r\nContent-Length: 18446744073709551626", -1},
	}

	for _, tc := range testCases {
		header, _ := ParseRequestHeader([]byte(tc.raw))
		if got := header.ContentLength(); got != tc.expected {
			t.Errorf("ContentLength of %q = %d, want %d", tc.raw, got, tc.expected)
		}
	}
}

func TestRequestHeader_KeepAlive(t *testing.T) {
	testCases := []struct {
		raw      string
		expected bool
	}{
		{"GET / HTTP/1.1", true},
		{"GET / HTTP/1.1\r\nConnection: close", false},
		{"GET / HTTP/1.0", false},
		{"GET / HTTP/1.0\r\nConnection: Keep-Alive", true},
	}

	for _, tc := range testCases {
		header, _ := ParseRequestHeader([]byte(tc.raw))
		if got := header.KeepAlive(); got != tc.expected {
			t.Errorf("KeepAlive of %q = %v, want %v", tc.raw, got, tc.expected)
		}
	}
}

func BenchmarkParseRequestHeader(b *testing.B) {
	raw := []byte("GET /test HTTP/1.1\r\nAccept: text/css\r\nConnection: keep-alive\r\nContent-Length: 0")

	for b.Loop() {
		if _, err := ParseRequestHeader(raw); err != nil {
			b.Error(err)
		}
	}
}
