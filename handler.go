package main

import (
	"errors"
	"fmt"
	"log/slog"
	nethttp "net/http"
	"strconv"

	"github.com/freekieb7/ingress/database"
	"github.com/freekieb7/ingress/http"
	"github.com/goccy/go-json"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// summary describes a decoded request.
type summary struct {
	Method     string   `json:"method"`
	Path       string   `json:"path"`
	Connection string   `json:"connection"`
	Parameters []string `json:"parameters"`
	Cookies    int      `json:"cookies"`
	JSON       bool     `json:"json"`
	Files      []file   `json:"files,omitempty"`
}

type file struct {
	Name     string `json:"name"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// ingestHandler checks out a connection to the database selected by the db
// parameter for the duration of each request.
func ingestHandler(pool *database.Pool, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(ctx *http.RequestCtx) {
		req := ctx.Request
		if req.Method() == http.MethodInvalid {
			writeJSON(ctx, nethttp.StatusBadRequest, map[string]string{"error": "invalid request"})
			return
		}

		databaseID, err := strconv.Atoi(req.Parameter("db"))
		if err != nil {
			databaseID = 0
		}

		conn, err := pool.Pop(ctx, databaseID)
		if err != nil {
			status := nethttp.StatusInternalServerError
			switch {
			case errors.Is(err, database.ErrInvalidDatabaseID):
				status = nethttp.StatusBadRequest
			case errors.Is(err, database.ErrPoolExhausted), errors.Is(err, database.ErrPoolClosed):
				status = nethttp.StatusServiceUnavailable
			}
			logger.WarnContext(ctx, "pop connection failed", "database", databaseID, "error", err)
			writeJSON(ctx, status, map[string]string{"error": err.Error()})
			return
		}
		defer pool.Push(conn)

		writeJSON(ctx, nethttp.StatusOK, summarize(req, conn))
	}
}

func summarize(req *http.Request, conn *database.Connection) summary {
	s := summary{
		Method:     req.Method().String(),
		Path:       req.Header().Path(),
		Connection: conn.Name(),
		Parameters: req.AllParameters().Keys(),
		Cookies:    len(req.Cookies()),
		JSON:       req.HasJSON(),
	}
	if form := req.Multipart(); form != nil {
		for _, part := range form.Parts() {
			s.Files = append(s.Files, file{Name: part.Name, Filename: part.Filename, Size: part.Size()})
		}
	}
	return s
}

// writeJSON writes a complete HTTP/1.1 response. Error responses close the
// connection.
func writeJSON(ctx *http.RequestCtx, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		status = nethttp.StatusInternalServerError
		body = []byte(`{"error":"encode response"}`)
	}

	fmt.Fprintf(ctx.Writer, "HTTP/1.1 %d %s\r\nContent-Type: application/json\r\nContent-Length: %d\r\n", status, nethttp.StatusText(status), len(body))
	if status >= nethttp.StatusBadRequest {
		ctx.Writer.WriteString("Connection: close\r\n")
		ctx.CloseConn()
	}
	ctx.Writer.WriteString("\r\n")
	ctx.Writer.Write(body)
}

// adminHandler serves the pool statistics of every database id.
func adminHandler(pool *database.Pool) nethttp.Handler {
	mux := nethttp.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		stats := make([]database.Stats, pool.Databases())
		for id := range stats {
			s, err := pool.Stats(id)
			if err != nil {
				nethttp.Error(w, err.Error(), nethttp.StatusInternalServerError)
				return
			}
			stats[id] = s
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{
			"environment": pool.Environment,
			"databases":   stats,
		}); err != nil {
			nethttp.Error(w, err.Error(), nethttp.StatusInternalServerError)
		}
	})

	return otelhttp.NewHandler(mux, "admin")
}
