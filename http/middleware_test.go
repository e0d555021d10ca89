package http

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/freekieb7/ingress/test"
)

func newTestLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func serveString(t *testing.T, handler Handler, msg string) *RequestCtx {
	t.Helper()

	ctx := &RequestCtx{
		Context: t.Context(),
		Request: decodeString(t, msg),
	}
	handler(ctx)
	return ctx
}

func TestChain(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(ctx *RequestCtx) {
				order = append(order, name)
				next(ctx)
			}
		}
	}

	handler := Chain(func(ctx *RequestCtx) {
		order = append(order, "handler")
	}, tag("outer"), tag("inner"))

	serveString(t, handler, "GET / HTTP/1.1\r\n\r\n")

	test.AssertEqual(t, []string{"outer", "inner", "handler"}, order)
}

func TestRecoverMiddleware(t *testing.T) {
	var logs bytes.Buffer

	handler := RecoverMiddleware(newTestLogger(&logs))(func(ctx *RequestCtx) {
		panic("boom")
	})

	ctx := serveString(t, handler, "GET /panic HTTP/1.1\r\n\r\n")

	test.AssertTrue(t, ctx.closeConn, "connection should be closed after a panic")
	test.AssertTrue(t, strings.Contains(logs.String(), "handler panicked"), "panic should be logged")
	test.AssertTrue(t, strings.Contains(logs.String(), "path=/panic"), "path should be logged")
}

func TestLogMiddleware(t *testing.T) {
	var logs bytes.Buffer
	called := false

	handler := LogMiddleware(newTestLogger(&logs))(func(ctx *RequestCtx) {
		called = true
	})

	serveString(t, handler, "POST /things?_method=patch HTTP/1.1\r\n\r\n")

	test.AssertTrue(t, called, "handler should run")
	line := logs.String()
	test.AssertTrue(t, strings.Contains(line, "method=PATCH"), "effective method should be logged")
	test.AssertTrue(t, strings.Contains(line, "path=/things"), "path should be logged")
}
