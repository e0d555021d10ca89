package http

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/goccy/go-json"
)

const methodOverrideKey = "_method"

// Decoder turns header and body bytes into Requests. It holds no mutable
// state and may be used from many goroutines at once.
type Decoder struct {
	Methods   MethodTable
	Multipart MultipartDecoder
	Logger    *slog.Logger
}

func NewDecoder(methods MethodTable, logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}

	return &Decoder{
		Methods:   methods,
		Multipart: NewMultipartDecoder(logger),
		Logger:    logger,
	}
}

// Decode builds the Request for one message. The body is copied, so the
// caller may reuse its buffer afterwards.
func (decoder *Decoder) Decode(header RequestHeader, body []byte, addr net.Addr) *Request {
	req := &Request{
		header:     header,
		body:       bytes.Clone(body),
		clientAddr: addr,
	}

	// The query string must be parsed before the method is resolved, the
	// _method override reads it.
	req.queryItems = decoder.parseQuery(header.Query())

	wire := decoder.Methods.Lookup(header.Method())
	req.method = decoder.resolveMethod(wire, req.queryItems)

	if wire.HasBody() || req.method.HasBody() {
		decoder.parseBody(req)
	}

	return req
}

// DecodeMessage parses the header block of msg and decodes it. A header
// that does not parse yields a Request with MethodInvalid.
func (decoder *Decoder) DecodeMessage(msg RawMessage, addr net.Addr) *Request {
	header, err := ParseRequestHeader(msg.Header)
	if err != nil {
		decoder.Logger.Debug("invalid request header", "error", err, "client", addrString(addr))
		return &Request{
			method:     MethodInvalid,
			header:     header,
			clientAddr: addr,
		}
	}

	return decoder.Decode(header, msg.Body, addr)
}

// DecodeFile decodes a request whose multipart body was spooled to path by
// the reader.
func (decoder *Decoder) DecodeFile(header RequestHeader, path string, addr net.Addr) (*Request, error) {
	req := &Request{
		header:     header,
		clientAddr: addr,
	}
	req.queryItems = decoder.parseQuery(header.Query())
	req.method = decoder.resolveMethod(decoder.Methods.Lookup(header.Method()), req.queryItems)

	multipart, err := decoder.Multipart.DecodeFile(path, Boundary(header.ContentType()))
	if err != nil {
		return nil, fmt.Errorf("http: decode spooled body: %w", err)
	}
	req.multipart = multipart
	req.formItems = append(Values(nil), multipart.Values()...)

	return req, nil
}

func (decoder *Decoder) resolveMethod(wire Method, queryItems Values) Method {
	if wire != MethodPost {
		return wire
	}

	// HTML forms can only POST, a _method query item selects the real verb.
	override, found := queryItems.Get(methodOverrideKey)
	if !found {
		return wire
	}
	if method := decoder.Methods.Lookup(override); method != MethodInvalid {
		return method
	}
	return wire
}

func (decoder *Decoder) parseQuery(query []byte) Values {
	if len(query) == 0 {
		return nil
	}
	return parsePairs(nil, query, decoder.debugPair("GET item"))
}

func (decoder *Decoder) parseBody(req *Request) {
	contentType := bytes.TrimSpace(req.header.ContentType())

	switch {
	case hasPrefixFold(contentType, mimeMultipartFormData):
		boundary := Boundary(contentType)
		if len(boundary) == 0 {
			decoder.Logger.Warn("unsupported content-type", "content_type", string(contentType))
			return
		}
		req.multipart = decoder.Multipart.Decode(req.body, boundary)
		req.formItems = append(Values(nil), req.multipart.Values()...)

	case hasPrefixFold(contentType, mimeJson):
		var document any
		if err := json.Unmarshal(req.body, &document); err != nil {
			decoder.Logger.Debug("malformed json body", "error", err)
			return
		}
		req.json = document
		req.hasJson = true

	default:
		// application/x-www-form-urlencoded
		req.formItems = parsePairs(nil, req.body, decoder.debugPair("POST item"))
	}
}

func (decoder *Decoder) debugPair(msg string) func(key, value string) {
	if !decoder.Logger.Enabled(context.Background(), slog.LevelDebug) {
		return nil
	}
	return func(key, value string) {
		decoder.Logger.Debug(msg, "key", key, "value", value)
	}
}

// Boundary returns the multipart boundary marker ("--" + token) advertised by
// a multipart/form-data content type, or nil for any other content type.
func Boundary(contentType []byte) []byte {
	contentType = bytes.TrimSpace(contentType)
	if !hasPrefixFold(contentType, mimeMultipartFormData) {
		return nil
	}

	for _, segment := range bytes.Split(contentType, []byte(";")) {
		segment = bytes.TrimSpace(segment)
		if !hasPrefixFold(segment, []byte("boundary=")) {
			continue
		}

		token := segment[len("boundary="):]
		if len(token) > 1 && token[0] == '"' && token[len(token)-1] == '"' {
			token = token[1 : len(token)-1]
		}
		if len(token) == 0 {
			return nil
		}
		return append([]byte("--"), token...)
	}
	return nil
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}
