package http

import (
	"bytes"
	"net"
)

// RawMessage is the header block and body of one message, as sub-slices of
// the buffer they were split from.
type RawMessage struct {
	Header []byte
	Body   []byte
}

// SplitMessages splits buf into the complete messages it contains. A message
// is complete once its header block and content-length body bytes are all
// present. Bytes of a trailing incomplete message are returned in rest,
// starting at its header, so the caller can append more input and retry.
func SplitMessages(buf []byte) (msgs []RawMessage, rest []byte) {
	from := 0
	for {
		// Empty lines ahead of a request line are ignored
		for bytes.HasPrefix(buf[from:], crlf) {
			from += len(crlf)
		}

		i := bytes.Index(buf[from:], headerSeparator)
		if i < 0 {
			return msgs, buf[from:]
		}

		headerEnd := from + i
		bodyStart := headerEnd + len(headerSeparator)

		contentLength := scanContentLength(buf[from:headerEnd])
		if contentLength > len(buf)-bodyStart {
			return msgs, buf[from:]
		}

		msgs = append(msgs, RawMessage{
			Header: buf[from:headerEnd],
			Body:   buf[bodyStart : bodyStart+contentLength],
		})

		from = bodyStart + contentLength
	}
}

// Generate decodes every complete message of buf in order. See SplitMessages
// for rest.
func (decoder *Decoder) Generate(buf []byte, addr net.Addr) (reqs []*Request, rest []byte) {
	msgs, rest := SplitMessages(buf)
	if len(msgs) == 0 {
		return nil, rest
	}

	reqs = make([]*Request, 0, len(msgs))
	for _, msg := range msgs {
		reqs = append(reqs, decoder.DecodeMessage(msg, addr))
	}
	return reqs, rest
}

// scanContentLength finds the content-length field of a header block without
// building a RequestHeader. Absent, invalid and non-positive lengths are 0.
func scanContentLength(header []byte) int {
	n := 0
	for len(header) > 0 {
		var line []byte
		line, header, _ = bytes.Cut(header, crlf)

		name, value, found := bytes.Cut(line, []byte(":"))
		if !found || !bytes.EqualFold(bytes.TrimSpace(name), headerContentLength) {
			continue
		}

		// The last occurrence wins, as in RequestHeader.Value
		v, err := atoi(bytes.TrimSpace(value))
		if err != nil {
			n = 0
			continue
		}
		n = v
	}
	return n
}
