package http

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/bytebufferpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultWriteBufferSize = 4096 // 4kB
	DefaultIdleTimeout     = 5 * time.Second

	instrumentationName = "github.com/freekieb7/ingress/http"
)

var ErrServerClosed = errors.New("http: server closed")

type Server struct {
	Name        string
	Decoder     *Decoder
	Handler     Handler
	Logger      *slog.Logger
	IdleTimeout time.Duration

	tracer          trace.Tracer
	requests        metric.Int64Counter
	invalidRequests metric.Int64Counter

	mu           sync.Mutex
	listener     net.Listener
	conns        map[net.Conn]struct{}
	connsWg      sync.WaitGroup
	shuttingDown atomic.Bool
}

func NewServer(name string, decoder *Decoder, handler Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if decoder == nil {
		decoder = NewDecoder(NewMethodTable(), logger)
	}

	meter := otel.Meter(instrumentationName)

	return &Server{
		Name:        name,
		Decoder:     decoder,
		Handler:     handler,
		Logger:      logger,
		IdleTimeout: DefaultIdleTimeout,

		tracer:          otel.Tracer(instrumentationName),
		requests:        int64Counter(meter, "http.server.requests", "Number of decoded requests"),
		invalidRequests: int64Counter(meter, "http.server.invalid_requests", "Number of requests with an invalid header"),

		conns: make(map[net.Conn]struct{}),
	}
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listener)
}

// Serve accepts connections until ctx ends or Shutdown is called, and then
// returns ErrServerClosed.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		<-ctx.Done()
		s.shuttingDown.Store(true)
		listener.Close()
		return nil
	})

	group.Go(func() error {
		for {
			conn, err := listener.Accept()
			if err != nil {
				if s.shuttingDown.Load() {
					return ErrServerClosed
				}

				var netErr net.Error
				if errors.As(err, &netErr) && netErr.Timeout() {
					s.Logger.Warn("accept timeout", "error", err)
					continue
				}
				return err
			}

			s.trackConn(conn, true)
			s.connsWg.Add(1)
			go func() {
				defer s.connsWg.Done()
				defer s.trackConn(conn, false)

				s.ServeConn(ctx, conn)
			}()
		}
	})

	err := group.Wait()
	if errors.Is(err, net.ErrClosed) {
		return ErrServerClosed
	}
	return err
}

// ServeConn reads conn until it closes, decoding every pipelined request and
// passing it to the handler in order.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	pending := bytebufferpool.Get()
	defer bytebufferpool.Put(pending)

	chunk := make([]byte, DefaultReadBufferSize)
	bw := bufio.NewWriterSize(conn, DefaultWriteBufferSize)
	addr := conn.RemoteAddr()

	for {
		if s.IdleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.IdleTimeout))
		}

		n, readErr := conn.Read(chunk)
		if n > 0 {
			pending.Write(chunk[:n])

			reqs, rest := s.Decoder.Generate(pending.B, addr)

			keepAlive := true
			for _, req := range reqs {
				keepAlive = s.dispatch(ctx, conn, bw, req)
				if !keepAlive {
					break
				}
			}

			if err := bw.Flush(); err != nil {
				s.Logger.Debug("write failed", "client", addrString(addr), "error", err)
				return
			}
			if !keepAlive {
				return
			}

			pending.B = append(pending.B[:0], rest...)

			if len(pending.B) > MaxRequestSize ||
				(len(pending.B) > MaxHeaderSize && !bytes.Contains(pending.B, headerSeparator)) {
				s.Logger.Warn("request too large, closing connection", "client", addrString(addr), "size", len(pending.B))
				return
			}
		}

		if readErr != nil {
			if len(pending.B) > 0 {
				s.Logger.Debug("connection closed with incomplete request", "client", addrString(addr), "pending", len(pending.B))
			}
			if !errors.Is(readErr, io.EOF) && !errors.Is(readErr, net.ErrClosed) {
				s.Logger.Debug("read failed", "client", addrString(addr), "error", readErr)
			}
			return
		}

		if ctx.Err() != nil {
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, conn net.Conn, bw *bufio.Writer, req *Request) bool {
	defer func() {
		if err := req.Close(); err != nil {
			s.Logger.Warn("release request failed", "error", err)
		}
	}()

	methodAttr := attribute.String("http.request.method", req.Method().String())
	s.requests.Add(ctx, 1, metric.WithAttributes(methodAttr))
	if req.Method() == MethodInvalid {
		s.invalidRequests.Add(ctx, 1)
	}

	spanCtx, span := s.tracer.Start(ctx, "http.request", trace.WithAttributes(
		methodAttr,
		attribute.String("url.path", req.Header().Path()),
	))
	defer span.End()

	reqCtx := RequestCtx{
		Context: spanCtx,
		Conn:    conn,
		Writer:  bw,
		Request: req,
	}
	s.Handler(&reqCtx)

	return !reqCtx.closeConn && req.Header().KeepAlive()
}

func (s *Server) trackConn(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

// Shutdown stops accepting connections and waits for open ones to finish.
// When ctx ends first the remaining connections are closed.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shuttingDown.Store(true)

	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.connsWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()
		<-done
		return ctx.Err()
	}
}

func int64Counter(meter metric.Meter, name, description string) metric.Int64Counter {
	counter, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		otel.Handle(err)
		return noop.Int64Counter{}
	}
	return counter
}
