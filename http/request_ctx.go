package http

import (
	"bufio"
	"context"
	"net"
)

type Handler func(ctx *RequestCtx)

// RequestCtx is what a Handler receives for one decoded request. Writing the
// response to Writer is up to the handler; the serving loop flushes it.
type RequestCtx struct {
	context.Context

	Conn    net.Conn
	Writer  *bufio.Writer
	Request *Request

	closeConn bool
}

// CloseConn asks the serving loop to close the connection after this request.
func (reqCtx *RequestCtx) CloseConn() {
	reqCtx.closeConn = true
}
