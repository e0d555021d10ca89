package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/freekieb7/ingress/database"
	"github.com/freekieb7/ingress/http"
	"github.com/freekieb7/ingress/telemetry"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"golang.org/x/sync/errgroup"
)

const (
	name            = "github.com/freekieb7/ingress"
	shutdownTimeout = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		log.Fatalln(err)
	}
}

func run() (err error) {
	configPath := flag.String("config", "database.yml", "path of the database configuration")
	env := flag.String("env", "development", "environment of the database configuration")
	addr := flag.String("addr", "0.0.0.0:8080", "listen address of the request server")
	adminAddr := flag.String("admin", "127.0.0.1:8081", "listen address of the admin endpoint, empty to disable")
	flag.Parse()

	// Handle SIGINT (CTRL+C) and SIGTERM gracefully.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := telemetry.Setup(ctx, "ingress")
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, otelShutdown(context.Background()))
	}()

	logger := newLogger()

	cfg, err := database.Load(*configPath)
	if err != nil {
		return err
	}

	opener := database.NewSQLOpener(cfg, *env, logger)
	defer func() {
		err = errors.Join(err, opener.Close())
	}()

	pool, err := database.NewPool(cfg, *env, opener, logger)
	if err != nil {
		return err
	}

	handler := http.Chain(
		ingestHandler(pool, logger),
		http.RecoverMiddleware(logger),
		http.LogMiddleware(logger),
	)
	server := http.NewServer("ingress", nil, handler, logger)

	var admin *nethttp.Server
	if *adminAddr != "" {
		admin = &nethttp.Server{
			Addr:              *adminAddr,
			Handler:           adminHandler(pool),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := pool.Run(ctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		logger.Info("listening", "addr", *addr, "environment", *env, "databases", pool.Databases())
		if err := server.ListenAndServe(ctx, *addr); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if admin != nil {
		group.Go(func() error {
			if err := admin.ListenAndServe(); !errors.Is(err, nethttp.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	group.Go(func() error {
		<-ctx.Done()
		// Stop receiving signal notifications as soon as possible.
		stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		errs := []error{server.Shutdown(shutdownCtx)}
		if admin != nil {
			errs = append(errs, admin.Shutdown(shutdownCtx))
		}
		errs = append(errs, pool.Close())
		return errors.Join(errs...)
	})

	return group.Wait()
}

func newLogger() *slog.Logger {
	if telemetry.Disabled() {
		return slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return otelslog.NewLogger(name)
}
