package http

import (
	"bytes"
	"errors"
	"fmt"
)

var (
	ErrMalformedRequestLine = errors.New("http: malformed request line")
	ErrMalformedHeaderField = errors.New("http: malformed header field")
)

type headerField struct {
	name  []byte // lower-cased
	value []byte
}

// RequestHeader is a parsed view over the header block of one message.
type RequestHeader struct {
	raw      []byte
	method   []byte
	target   []byte
	protocol []byte
	fields   []headerField
}

// ParseRequestHeader parses a header block (request line and fields, without
// the terminating empty line). When the request line is malformed the header
// fields are still scanned, so framing can honor content-length, and the
// returned error reports the problem.
func ParseRequestHeader(b []byte) (RequestHeader, error) {
	var header RequestHeader
	header.raw = bytes.Clone(b)

	requestLine, rest, _ := bytes.Cut(header.raw, crlf)

	var err error
	parts := bytes.Fields(requestLine)
	if len(parts) != 3 {
		err = fmt.Errorf("%w: %q", ErrMalformedRequestLine, requestLine)
	} else {
		header.method, header.target, header.protocol = parts[0], parts[1], parts[2]
		if !bytes.HasPrefix(header.protocol, []byte("HTTP/")) {
			err = fmt.Errorf("%w: %q", ErrMalformedRequestLine, requestLine)
		}
	}

	for len(rest) > 0 {
		var line []byte
		line, rest, _ = bytes.Cut(rest, crlf)
		if len(line) == 0 {
			break // end of headers
		}

		i := bytes.IndexByte(line, ':')
		if i <= 0 {
			if err == nil {
				err = fmt.Errorf("%w: %q", ErrMalformedHeaderField, line)
			}
			continue
		}

		name := bytes.Clone(bytes.TrimSpace(line[:i]))
		toLowerScalar(name)
		header.fields = append(header.fields, headerField{
			name:  name,
			value: bytes.TrimSpace(line[i+1:]),
		})
	}

	return header, err
}

func (header RequestHeader) Raw() []byte {
	return header.raw
}

func (header RequestHeader) Method() string {
	return string(header.method)
}

// Target returns the request target including any query suffix.
func (header RequestHeader) Target() string {
	return string(header.target)
}

// Path returns the request target without the query suffix.
func (header RequestHeader) Path() string {
	path, _, _ := bytes.Cut(header.target, []byte("?"))
	return string(path)
}

// Query returns the bytes after the first '?' of the target.
func (header RequestHeader) Query() []byte {
	_, query, _ := bytes.Cut(header.target, []byte("?"))
	return query
}

func (header RequestHeader) Protocol() string {
	return string(header.protocol)
}

// Value returns the last value of the named field.
func (header RequestHeader) Value(name string) ([]byte, bool) {
	key := []byte(name)
	toLowerScalar(key)

	for i := len(header.fields) - 1; i >= 0; i-- {
		if bytes.Equal(header.fields[i].name, key) {
			return header.fields[i].value, true
		}
	}
	return nil, false
}

// Values returns every value of the named field in order of appearance.
func (header RequestHeader) Values(name string) [][]byte {
	key := []byte(name)
	toLowerScalar(key)

	var values [][]byte
	for _, field := range header.fields {
		if bytes.Equal(field.name, key) {
			values = append(values, field.value)
		}
	}
	return values
}

// ContentLength returns the declared body length, or -1 when the field is
// absent or not a valid number.
func (header RequestHeader) ContentLength() int {
	v, found := header.Value(string(headerContentLength))
	if !found {
		return -1
	}

	n, err := atoi(v)
	if err != nil {
		return -1
	}
	return n
}

func (header RequestHeader) ContentType() []byte {
	v, _ := header.Value(string(headerContentType))
	return v
}

// KeepAlive reports whether the client expects the connection to stay open.
func (header RequestHeader) KeepAlive() bool {
	v, found := header.Value(string(headerConnection))
	if found {
		if bytes.EqualFold(v, headerClose) {
			return false
		}
		if bytes.EqualFold(v, headerKeepAlive) {
			return true
		}
	}

	return bytes.Equal(header.protocol, protocolHttp11)
}
