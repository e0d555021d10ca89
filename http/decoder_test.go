package http

import (
	"net"
	"testing"

	"github.com/freekieb7/ingress/test"
)

var testAddr = &net.TCPAddr{IP: net.IPv4(192, 0, 2, 10), Port: 51234}

func decodeString(t *testing.T, msg string) *Request {
	t.Helper()

	decoder := NewDecoder(NewMethodTable(), nil)
	reqs, rest := decoder.Generate([]byte(msg), testAddr)
	if len(rest) != 0 {
		t.Fatalf("unexpected rest %q", rest)
	}
	if len(reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(reqs))
	}
	return reqs[0]
}

func TestDecode_QueryItems(t *testing.T) {
	req := decodeString(t, "GET /x?a=1&a=2&&b=hello+world&c&=skip HTTP/1.1\r\nHost: localhost\r\n\r\n")

	test.AssertEqual(t, MethodGet, req.Method())
	test.AssertEqual(t, "1", req.QueryItemValue("a"))
	test.AssertEqual(t, []string{"1", "2"}, req.AllQueryItemValues("a"))
	test.AssertEqual(t, "hello world", req.QueryItemValue("b"))
	test.AssertTrue(t, req.HasQueryItem("c"), "c should be present")
	test.AssertEqual(t, "", req.QueryItemValue("c"))
	test.AssertEqual(t, "fallback", req.QueryItemValueOr("missing", "fallback"))
	test.AssertEqual(t, 4, len(req.QueryItems()))
	test.AssertEqual(t, testAddr.String(), req.ClientAddr().String())
}

func TestDecode_ValueWithEquals(t *testing.T) {
	req := decodeString(t, "GET /?token=abc==&x=%3D HTTP/1.1\r\n\r\n")

	test.AssertEqual(t, "abc==", req.QueryItemValue("token"))
	test.AssertEqual(t, "=", req.QueryItemValue("x"))
}

func TestDecode_UrlEncodedForm(t *testing.T) {
	req := decodeString(t, "POST /save HTTP/1.1\r\n"+
		"Content-Type: application/x-www-form-urlencoded\r\n"+
		"Content-Length: 15\r\n\r\n"+
		"a=1&b=2&a=3%21x")

	test.AssertEqual(t, MethodPost, req.Method())
	test.AssertEqual(t, "1", req.FormItemValue("a"))
	test.AssertEqual(t, "2", req.FormItemValue("b"))
	test.AssertEqual(t, []string{"1", "3!x"}, req.AllFormItemValues("a"))
	test.AssertTrue(t, req.HasForm(), "form expected")
}

func TestDecode_FormWithoutContentType(t *testing.T) {
	req := decodeString(t, "POST / HTTP/1.1\r\nContent-Length: 3\r\n\r\nk=v")

	test.AssertEqual(t, "v", req.FormItemValue("k"))
}

func TestDecode_GetIgnoresBody(t *testing.T) {
	req := decodeString(t, "GET / HTTP/1.1\r\nContent-Length: 3\r\n\r\nk=v")

	test.AssertTrue(t, !req.HasForm(), "GET body should not be parsed as form")
	test.AssertEqual(t, "k=v", string(req.Body()))
}

func TestDecode_MethodOverride(t *testing.T) {
	req := decodeString(t, "POST /items/1?_method=delete HTTP/1.1\r\nContent-Length: 0\r\n\r\n")
	test.AssertEqual(t, MethodDelete, req.Method())

	// Known methods only
	req = decodeString(t, "POST /items/1?_method=explode HTTP/1.1\r\n\r\n")
	test.AssertEqual(t, MethodPost, req.Method())

	// Only POST can be overridden
	req = decodeString(t, "GET /items/1?_method=delete HTTP/1.1\r\n\r\n")
	test.AssertEqual(t, MethodGet, req.Method())
}

func TestDecode_MethodOverrideIgnoresFormBody(t *testing.T) {
	req := decodeString(t, "POST /items HTTP/1.1\r\n"+
		"Content-Type: application/x-www-form-urlencoded\r\n"+
		"Content-Length: 14\r\n\r\n"+
		"_method=delete")

	test.AssertEqual(t, MethodPost, req.Method())
	test.AssertEqual(t, "delete", req.FormItemValue("_method"))
}

func TestDecode_MethodOverrideKeepsBody(t *testing.T) {
	req := decodeString(t, "POST /items/1?_method=put HTTP/1.1\r\n"+
		"Content-Type: application/x-www-form-urlencoded\r\n"+
		"Content-Length: 8\r\n\r\n"+
		"name=foo")

	test.AssertEqual(t, MethodPut, req.Method())
	test.AssertEqual(t, "foo", req.FormItemValue("name"))
	test.AssertEqual(t, "put", req.QueryItemValue("_method"))
}

func TestDecode_Methods(t *testing.T) {
	testCases := []struct {
		token    string
		expected Method
	}{
		{"GET", MethodGet},
		{"head", MethodHead},
		{"Post", MethodPost},
		{"OPTIONS", MethodOptions},
		{"PUT", MethodPut},
		{"DELETE", MethodDelete},
		{"TRACE", MethodTrace},
		{"PATCH", MethodPatch},
		{"CONNECT", MethodInvalid},
		{"BREW", MethodInvalid},
	}

	for _, tc := range testCases {
		req := decodeString(t, tc.token+" / HTTP/1.1\r\n\r\n")
		if req.Method() != tc.expected {
			t.Errorf("method %q resolved to %v, want %v", tc.token, req.Method(), tc.expected)
		}
	}
}

func TestDecode_Json(t *testing.T) {
	body := `{"name":"foo","tags":["a","b"]}`
	req := decodeString(t, "POST /api HTTP/1.1\r\nContent-Type: application/json; charset=utf-8\r\nContent-Length: 31\r\n\r\n"+body)

	test.AssertTrue(t, req.HasJSON(), "json expected")
	document, ok := req.JSON().(map[string]any)
	if !ok {
		t.Fatalf("expected object, got %T", req.JSON())
	}
	test.AssertEqual(t, "foo", document["name"])

	var payload struct {
		Name string   `json:"name"`
		Tags []string `json:"tags"`
	}
	test.AssertNoError(t, req.BindJSON(&payload))
	test.AssertEqual(t, []string{"a", "b"}, payload.Tags)
	test.AssertTrue(t, !req.HasForm(), "json body must not become form items")
}

func TestDecode_MalformedJson(t *testing.T) {
	req := decodeString(t, "POST /api HTTP/1.1\r\nContent-Type: application/json\r\nContent-Length: 8\r\n\r\n{\"a\": 1,")

	test.AssertTrue(t, !req.HasJSON(), "malformed json must not be attached")
	test.AssertEqual(t, nil, req.JSON())
	test.AssertEqual(t, MethodPost, req.Method())
}

func TestDecode_MultipartWithoutBoundary(t *testing.T) {
	req := decodeString(t, "POST / HTTP/1.1\r\nContent-Type: multipart/form-data\r\nContent-Length: 3\r\n\r\na=b")

	test.AssertTrue(t, !req.HasForm(), "unsupported content type yields no form items")
	test.AssertEqual(t, "a=b", string(req.Body()))
}

func TestBoundary(t *testing.T) {
	testCases := []struct {
		contentType string
		expected    string
	}{
		{"multipart/form-data; boundary=abc123", "--abc123"},
		{"Multipart/Form-Data; charset=utf-8; BOUNDARY=xyz", "--xyz"},
		{`multipart/form-data; boundary="quoted token"`, "--quoted token"},
		{"multipart/form-data", ""},
		{"application/json; boundary=abc", ""},
		{"", ""},
	}

	for _, tc := range testCases {
		if got := string(Boundary([]byte(tc.contentType))); got != tc.expected {
			t.Errorf("Boundary(%q) = %q, want %q", tc.contentType, got, tc.expected)
		}
	}
}

func TestDecode_Parameters(t *testing.T) {
	req := decodeString(t, "POST /?a=query&q=only HTTP/1.1\r\nContent-Length: 11\r\n\r\na=form&f=ff")

	test.AssertEqual(t, "form", req.Parameter("a"))
	test.AssertEqual(t, "only", req.Parameter("q"))
	test.AssertEqual(t, "ff", req.Parameter("f"))

	params := req.AllParameters()
	test.AssertEqual(t, []string{"form"}, params.AllValues("a"))
	test.AssertEqual(t, "only", params.GetOr("q", ""))
	test.AssertEqual(t, 3, len(params))

	// Source items are unchanged
	test.AssertEqual(t, "query", req.QueryItemValue("a"))
}

func TestDecode_BracketedKeys(t *testing.T) {
	body := "tags%5B%5D=a&tags[]=b&user[name]=foo&user[age]=42&user[name]=bar&user[a][b]=x"
	req := decodeString(t, "POST / HTTP/1.1\r\nContent-Length: 77\r\n\r\n"+body)

	test.AssertEqual(t, []string{"a", "b"}, req.FormItemList("tags"))
	test.AssertEqual(t, []string{"a", "b"}, req.FormItemList("tags[]"))
	test.AssertEqual(t, map[string]string{"name": "foo", "age": "42"}, req.FormItemMap("user"))
}

func TestDecode_Cookies(t *testing.T) {
	req := decodeString(t, "GET / HTTP/1.1\r\nCookie: test=value; other=data;;  spaced = yes \r\nCookie: late=1\r\n\r\n")

	cookie, err := req.Cookie("test")
	test.AssertNoError(t, err)
	test.AssertEqual(t, "value", cookie.Value)

	cookie, err = req.Cookie("spaced")
	test.AssertNoError(t, err)
	test.AssertEqual(t, "yes", cookie.Value)

	test.AssertEqual(t, 4, len(req.Cookies()))

	_, err = req.Cookie("nonexistent")
	test.AssertErrorIs(t, err, ErrNoCookie)
}

func TestDecode_CopiesBody(t *testing.T) {
	buf := []byte("POST / HTTP/1.1\r\nContent-Length: 3\r\n\r\nk=v")

	decoder := NewDecoder(NewMethodTable(), nil)
	reqs, _ := decoder.Generate(buf, testAddr)

	for i := range buf {
		buf[i] = 'x'
	}

	test.AssertEqual(t, "k=v", string(reqs[0].Body()))
	test.AssertEqual(t, "POST", reqs[0].Header().Method())
}
