// Package server serves submissions over a websocket and evaluates label
// sequences over REST.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/semaphore"

	"github.com/zephyrtronium/scribble"
	"github.com/zephyrtronium/scribble/internal/logging"
	"github.com/zephyrtronium/scribble/internal/session"
	"github.com/zephyrtronium/scribble/internal/solve"
)

// Options configures a Server.
type Options struct {
	Solver   *solve.Solver
	Sessions *session.Manager
	Log      *slog.Logger
	// Registry receives the server's metrics and backs /metrics. If it is
	// nil, the server uses a registry of its own.
	Registry *prometheus.Registry
	// Workers is the number of submissions processed at once across all
	// connections.
	Workers int
	// MaxImageBytes bounds the decoded size of a submitted image.
	MaxImageBytes int
	// Queue is the number of actions a connection may have pending.
	Queue int
}

// Server is the HTTP server.
type Server struct {
	solver   *solve.Solver
	sessions *session.Manager
	log      *slog.Logger
	metrics  *Metrics
	reg      *prometheus.Registry
	workers  *semaphore.Weighted
	maxBytes int
	queue    int
	upgrader websocket.Upgrader
}

// New creates a server. The solver's classifier is wrapped to count calls;
// the solver itself is not modified.
func New(o Options) *Server {
	reg := o.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := NewMetrics(reg)
	sol := *o.Solver
	p := *sol.Predictor
	p.Classifier = m.Classifier(p.Classifier)
	sol.Predictor = &p
	s := &Server{
		solver:   &sol,
		sessions: o.Sessions,
		log:      logging.Or(o.Log),
		metrics:  m,
		reg:      reg,
		workers:  semaphore.NewWeighted(int64(max(o.Workers, 1))),
		maxBytes: o.MaxImageBytes,
		queue:    max(o.Queue, 1),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  64 << 10,
			WriteBufferSize: 64 << 10,
		},
	}
	return s
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), otelgin.Middleware("scribble"), s.logRequests)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{})))
	r.GET("/ws", s.serveWS)
	v1 := r.Group("/v1")
	v1.POST("/evaluate", s.evaluate)
	v1.GET("/sessions/:id/vars", s.vars)
	v1.DELETE("/sessions/:id/vars", s.reset)
	return r
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.log.InfoContext(c.Request.Context(), "request",
		slog.String("method", c.Request.Method),
		slog.String("path", c.FullPath()),
		slog.Int("status", c.Writer.Status()),
		slog.Duration("took", time.Since(start)),
	)
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info("listening", slog.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type evaluateRequest struct {
	// Session is the session to evaluate against. If it is empty, a new
	// session is created.
	Session string   `json:"session"`
	Labels  []string `json:"labels" binding:"required,min=1,dive,required"`
}

type evaluateResponse struct {
	Session string `json:"session"`
	// Value is the value of the expression, absent for assignments.
	Value    string            `json:"value,omitempty"`
	Assigned map[string]string `json:"assigned,omitempty"`
}

func (s *Server) evaluate(c *gin.Context) {
	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if req.Session == "" {
		req.Session = session.NewID()
	}
	resp := evaluateResponse{Session: req.Session}
	var evalErr error
	sess, release := s.sessions.Acquire(req.Session)
	defer release()
	err := sess.Do(c.Request.Context(), func(env *scribble.Env) error {
		e, err := scribble.ParseLabels(scribble.Query(req.Labels), s.solver.Predictor.Options...)
		if err != nil {
			evalErr = err
			return nil
		}
		v, err := e.Eval(env)
		if err != nil {
			evalErr = err
			return nil
		}
		if v != nil {
			resp.Value = s.format(v)
			return nil
		}
		resp.Assigned = make(map[string]string)
		for _, name := range e.Targets() {
			resp.Assigned[name] = s.format(env.Lookup(name))
		}
		return nil
	})
	if err != nil {
		s.log.ErrorContext(c.Request.Context(), "evaluate", slog.String("session", req.Session), slog.Any("err", err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	if evalErr != nil {
		k := scribble.KindOf(evalErr)
		s.metrics.Evaluations.WithLabelValues(string(k)).Inc()
		c.JSON(http.StatusUnprocessableEntity, errorResponse{Error: evalErr.Error(), Kind: string(k)})
		return
	}
	s.metrics.Evaluations.WithLabelValues("ok").Inc()
	c.JSON(http.StatusOK, resp)
}

type varsResponse struct {
	Session   string            `json:"session"`
	Variables map[string]string `json:"variables"`
}

func (s *Server) vars(c *gin.Context) {
	id := c.Param("id")
	sess, release := s.sessions.Acquire(id)
	defer release()
	vars, err := sess.Vars(c.Request.Context())
	switch {
	case errors.Is(err, session.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, varsResponse{Session: id, Variables: s.formatAll(vars)})
}

func (s *Server) reset(c *gin.Context) {
	id := c.Param("id")
	sess, release := s.sessions.Acquire(id)
	defer release()
	if err := sess.Reset(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) format(v *big.Float) string {
	return scribble.Format(v, s.solver.Predictor.Policy.Decimals)
}

func (s *Server) formatAll(vars map[string]*big.Float) map[string]string {
	r := make(map[string]string, len(vars))
	for k, v := range vars {
		r[k] = s.format(v)
	}
	return r
}
