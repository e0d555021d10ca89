package http

import (
	"log/slog"
	"time"
)

type Middleware func(next Handler) Handler

// Chain wraps handler so that the first middleware runs outermost.
func Chain(handler Handler, middleware ...Middleware) Handler {
	for i := len(middleware) - 1; i >= 0; i-- {
		handler = middleware[i](handler)
	}
	return handler
}

// RecoverMiddleware logs a panicking handler and closes its connection, the
// response it was writing is incomplete.
func RecoverMiddleware(logger *slog.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx *RequestCtx) {
			defer func() {
				if recovered := recover(); recovered != nil {
					logger.ErrorContext(ctx, "handler panicked", "panic", recovered, "path", ctx.Request.Header().Path())
					ctx.CloseConn()
				}
			}()

			next(ctx)
		}
	}
}

// LogMiddleware logs every request after the handler has run.
func LogMiddleware(logger *slog.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx *RequestCtx) {
			start := time.Now()

			next(ctx)

			logger.InfoContext(ctx, "request",
				"method", ctx.Request.Method().String(),
				"path", ctx.Request.Header().Path(),
				"client", addrString(ctx.Request.ClientAddr()),
				"duration", time.Since(start),
			)
		}
	}
}
