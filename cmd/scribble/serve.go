package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/zephyrtronium/scribble/internal/server"
	"github.com/zephyrtronium/scribble/internal/session"
	"github.com/zephyrtronium/scribble/internal/solve"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		addr  string
		trace bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the websocket and REST API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			if trace {
				a.cfg.Trace.Stdout = true
			}
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().BoolVar(&trace, "trace", false, "write trace spans to stderr")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.Trace.Stdout {
		shutdown, err := installTracing()
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				a.log.Error("failed to flush traces", slog.Any("err", err))
			}
		}()
	}

	store, err := session.Open(ctx, cfg.Session.Store, cfg.Session.Path, cfg.Session.DSN, a.log)
	if err != nil {
		return err
	}
	sessions := session.NewManager(store, cfg.Eval.Precision, a.log)
	defer func() {
		if err := sessions.Close(); err != nil {
			a.log.Error("failed to close session store", slog.Any("err", err))
		}
	}()

	c, release, err := a.classifier(ctx)
	if err != nil {
		return err
	}
	defer release()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	srv := server.New(server.Options{
		Solver:        solve.New(cfg, c, a.log),
		Sessions:      sessions,
		Log:           a.log,
		Registry:      reg,
		Workers:       cfg.Server.Workers,
		MaxImageBytes: cfg.Server.MaxImageBytes,
		Queue:         cfg.Server.Queue,
	})
	a.log.Info("starting server",
		slog.String("classifier", cfg.Classifier.Kind),
		slog.String("store", cfg.Session.Store),
		slog.Int("workers", cfg.Server.Workers),
	)
	err = srv.ListenAndServe(ctx, cfg.Server.Addr)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// installTracing sends spans to stderr.
func installTracing() (func(context.Context) error, error) {
	exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint(), stdouttrace.WithWriter(os.Stderr))
	if err != nil {
		return nil, err
	}
	res := resource.NewWithAttributes("", attribute.String("service.name", "scribble"))
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
