package http

import "strings"

type Method uint8

const (
	MethodInvalid Method = iota
	MethodGet
	MethodHead
	MethodPost
	MethodOptions
	MethodPut
	MethodDelete
	MethodTrace
	MethodPatch
)

func (method Method) String() string {
	switch method {
	case MethodGet:
		return "GET"
	case MethodHead:
		return "HEAD"
	case MethodPost:
		return "POST"
	case MethodOptions:
		return "OPTIONS"
	case MethodPut:
		return "PUT"
	case MethodDelete:
		return "DELETE"
	case MethodTrace:
		return "TRACE"
	case MethodPatch:
		return "PATCH"
	default:
		return "INVALID"
	}
}

// HasBody reports whether requests with this method carry a form or JSON body.
func (method Method) HasBody() bool {
	return method == MethodPost || method == MethodPut || method == MethodPatch
}

// MethodTable maps lower-case method tokens to methods. It is built once and
// only read afterwards, so one table can be shared by every decoder.
type MethodTable struct {
	methods map[string]Method
}

func NewMethodTable() MethodTable {
	return MethodTable{
		methods: map[string]Method{
			"get":     MethodGet,
			"head":    MethodHead,
			"post":    MethodPost,
			"options": MethodOptions,
			"put":     MethodPut,
			"delete":  MethodDelete,
			"trace":   MethodTrace,
			"patch":   MethodPatch,
		},
	}
}

// Lookup resolves a method token case-insensitively. Unknown tokens resolve
// to MethodInvalid.
func (table MethodTable) Lookup(token string) Method {
	method, found := table.methods[strings.ToLower(token)]
	if !found {
		return MethodInvalid
	}
	return method
}
