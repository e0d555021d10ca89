package http

import (
	"net"
	"regexp"
	"strings"

	"github.com/goccy/go-json"
)

// Request is a decoded HTTP request. It is built once by a Decoder and never
// modified afterwards, so it can be shared between goroutines by pointer.
type Request struct {
	method     Method
	header     RequestHeader
	body       []byte
	queryItems Values
	formItems  Values
	json       any
	hasJson    bool
	multipart  *MultipartForm
	clientAddr net.Addr
}

// Method returns the effective method, after the _method override.
func (req *Request) Method() Method {
	return req.method
}

func (req *Request) Header() RequestHeader {
	return req.header
}

func (req *Request) Body() []byte {
	return req.body
}

func (req *Request) ClientAddr() net.Addr {
	return req.clientAddr
}

func (req *Request) HasQuery() bool {
	return len(req.queryItems) > 0
}

func (req *Request) HasQueryItem(name string) bool {
	return req.queryItems.Has(name)
}

// QueryItemValue returns the first query value named name.
func (req *Request) QueryItemValue(name string) string {
	v, _ := req.queryItems.Get(name)
	return v
}

func (req *Request) QueryItemValueOr(name, fallback string) string {
	return req.queryItems.GetOr(name, fallback)
}

func (req *Request) AllQueryItemValues(name string) []string {
	return req.queryItems.AllValues(name)
}

func (req *Request) QueryItems() Values {
	return req.queryItems
}

func (req *Request) HasForm() bool {
	return len(req.formItems) > 0
}

func (req *Request) HasFormItem(name string) bool {
	return req.formItems.Has(name)
}

// FormItemValue returns the first form value named name.
func (req *Request) FormItemValue(name string) string {
	v, _ := req.formItems.Get(name)
	return v
}

func (req *Request) FormItemValueOr(name, fallback string) string {
	return req.formItems.GetOr(name, fallback)
}

func (req *Request) AllFormItemValues(name string) []string {
	return req.formItems.AllValues(name)
}

// FormItemList returns the values of an array style key, so "tags" and
// "tags[]" both return every "tags[]" value.
func (req *Request) FormItemList(key string) []string {
	if !strings.HasSuffix(key, "[]") {
		key += "[]"
	}
	return req.formItems.AllValues(key)
}

// FormItemMap collects keys of the form "key[sub]" into a map of sub to the
// first value.
func (req *Request) FormItemMap(key string) map[string]string {
	rx := regexp.MustCompile("^" + regexp.QuoteMeta(key) + `\[([^\[\]]+)\]$`)

	result := make(map[string]string)
	for _, pair := range req.formItems {
		m := rx.FindStringSubmatch(pair.Key)
		if m == nil {
			continue
		}
		if _, found := result[m[1]]; !found {
			result[m[1]] = pair.Value
		}
	}
	return result
}

func (req *Request) FormItems() Values {
	return req.formItems
}

// Parameter returns the named value from the form data, falling back to the
// query string.
func (req *Request) Parameter(name string) string {
	if v, found := req.formItems.Get(name); found {
		return v
	}
	v, _ := req.queryItems.Get(name)
	return v
}

// AllParameters returns the query items overlaid by the form items.
func (req *Request) AllParameters() Values {
	return req.queryItems.Overlay(req.formItems)
}

func (req *Request) Cookies() []Cookie {
	return parseCookieHeader(req.header.Values(string(headerCookie)))
}

func (req *Request) Cookie(name string) (Cookie, error) {
	for _, cookie := range req.Cookies() {
		if cookie.Name == name {
			return cookie, nil
		}
	}
	return Cookie{}, ErrNoCookie
}

func (req *Request) HasJSON() bool {
	return req.hasJson
}

// JSON returns the parsed JSON document of an application/json body.
func (req *Request) JSON() any {
	return req.json
}

// BindJSON decodes the JSON body into v.
func (req *Request) BindJSON(v any) error {
	return json.Unmarshal(req.body, v)
}

func (req *Request) Multipart() *MultipartForm {
	return req.multipart
}

// Close releases temp storage held by spooled multipart parts.
func (req *Request) Close() error {
	return req.multipart.RemoveAll()
}
