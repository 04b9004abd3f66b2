package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zephyrtronium/scribble"
	"github.com/zephyrtronium/scribble/internal/session"
	"github.com/zephyrtronium/scribble/internal/vision"
	"github.com/zephyrtronium/scribble/predict"
)

// request is a message from a websocket client.
type request struct {
	// Action is one of submit_image, reset, or vars.
	Action string `json:"action"`
	// Image is the base64 image of a submission, possibly as a data URL.
	Image string `json:"image,omitempty"`
}

// message is a message to a websocket client.
type message struct {
	Type string `json:"type"`
	// Status is -1 for errors and 0 otherwise.
	Status    int                `json:"status"`
	Message   string             `json:"message,omitempty"`
	Session   string             `json:"session,omitempty"`
	TaskID    string             `json:"task_id,omitempty"`
	Row       string             `json:"row,omitempty"`
	Kind      string             `json:"kind,omitempty"`
	Value     string             `json:"value,omitempty"`
	Position  *predict.Placement `json:"position,omitempty"`
	Results   []result           `json:"results,omitempty"`
	Variables map[string]string  `json:"variables,omitempty"`
	Aborted   bool               `json:"aborted,omitempty"`
}

type result struct {
	Labels []string `json:"labels"`
	Value  string   `json:"value,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// conn is one websocket connection. Writes may come from the reader and the
// processor at once.
type conn struct {
	ws  *websocket.Conn
	log *slog.Logger
	mu  sync.Mutex
}

func (c *conn) send(m message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := c.ws.WriteJSON(m); err != nil {
		c.log.Warn("failed to write websocket message", slog.String("type", m.Type), slog.Any("err", err))
		return err
	}
	return nil
}

type job struct {
	req request
	id  string
}

// serveWS runs the submission protocol. Clients may resume a session by
// passing its id in the session query parameter. Actions from one
// connection are handled in the order they arrive.
func (s *Server) serveWS(g *gin.Context) {
	ws, err := s.upgrader.Upgrade(g.Writer, g.Request, nil)
	if err != nil {
		s.log.Error("failed to upgrade websocket", slog.Any("err", err))
		return
	}
	defer ws.Close()
	if s.maxBytes > 0 {
		// Base64 expands by 4/3, plus room for the envelope.
		ws.SetReadLimit(int64(s.maxBytes)*4/3 + 4096)
	}
	s.metrics.Connections.Inc()
	defer s.metrics.Connections.Dec()

	id := g.Query("session")
	if id == "" {
		id = session.NewID()
	}
	sess, release := s.sessions.Acquire(id)
	defer release()
	c := &conn{ws: ws, log: s.log.With(slog.String("session", id))}
	c.log.Info("websocket connected")
	if err := c.send(message{Type: "welcome", Message: "Welcome! Send an image to solve.", Session: id}); err != nil {
		return
	}

	ctx, cancel := context.WithCancel(g.Request.Context())
	defer cancel()
	jobs := make(chan job, s.queue)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := range jobs {
			if err := s.handle(ctx, c, sess, j); err != nil {
				c.log.Warn("action failed", slog.String("action", j.req.Action), slog.Any("err", err))
				if ctx.Err() != nil {
					return
				}
			}
		}
	}()
	defer wg.Wait()
	defer close(jobs)

	for {
		var req request
		if err := ws.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Info("websocket closed", slog.Any("err", err))
			}
			cancel()
			return
		}
		j := job{req: req}
		switch req.Action {
		case "submit_image":
			j.id = uuid.NewString()
			if c.send(message{Type: "task_added", TaskID: j.id, Message: "submission queued"}) != nil {
				cancel()
				return
			}
		case "reset", "vars":
		default:
			if c.send(message{Type: "error", Status: -1, Message: fmt.Sprintf("unknown action %q", req.Action)}) != nil {
				cancel()
				return
			}
			continue
		}
		select {
		case jobs <- j:
		default:
			if c.send(message{Type: "error", Status: -1, TaskID: j.id, Message: "too many pending actions"}) != nil {
				cancel()
				return
			}
		}
	}
}

// handle performs one action.
func (s *Server) handle(ctx context.Context, c *conn, sess *session.Session, j job) error {
	switch j.req.Action {
	case "reset":
		if err := sess.Reset(ctx); err != nil {
			c.send(message{Type: "error", Status: -1, Message: err.Error()})
			return err
		}
		return c.send(message{Type: "reset", Message: "variables cleared"})
	case "vars":
		vars, err := sess.Vars(ctx)
		if errors.Is(err, session.ErrNotFound) {
			vars, err = nil, nil
		}
		if err != nil {
			c.send(message{Type: "error", Status: -1, Message: err.Error()})
			return err
		}
		return c.send(message{Type: "vars", Variables: s.formatAll(vars)})
	}
	return s.submit(ctx, c, sess, j)
}

// submit solves one image, sending its events as they happen.
func (s *Server) submit(ctx context.Context, c *conn, sess *session.Session, j job) error {
	log := c.log.With(slog.String("task", j.id))
	finished := false
	err := sess.Do(ctx, func(env *scribble.Env) error {
		queued := time.Now()
		if err := s.workers.Acquire(ctx, 1); err != nil {
			return err
		}
		defer s.workers.Release(1)
		start := time.Now()
		s.metrics.Wait.Observe(start.Sub(queued).Seconds())
		defer func() { s.metrics.Duration.Observe(time.Since(start).Seconds()) }()
		for e := range s.events(ctx, j.req.Image, env) {
			s.metrics.Events.WithLabelValues(e.Kind.String()).Inc()
			if e.Kind == predict.Done {
				outcome := "ok"
				if e.Aborted {
					outcome = "aborted"
				}
				s.metrics.Submissions.WithLabelValues(outcome).Inc()
				finished = true
				log.Info("submission done", slog.Int("rows", len(e.Results)), slog.Bool("aborted", e.Aborted))
			}
			if err := c.send(s.wire(j.id, e)); err != nil {
				return err
			}
		}
		return nil
	})
	if !finished {
		s.metrics.Submissions.WithLabelValues("canceled").Inc()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		c.send(message{Type: "error", Status: -1, TaskID: j.id, Message: err.Error()})
	}
	return err
}

// events decodes a submission and solves it.
func (s *Server) events(ctx context.Context, img string, env *scribble.Env) iter.Seq[predict.Event] {
	b, err := vision.Base64(img)
	if err == nil && s.maxBytes > 0 && len(b) > s.maxBytes {
		err = fmt.Errorf("image is %d bytes, limit is %d", len(b), s.maxBytes)
	}
	if err != nil {
		return func(yield func(predict.Event) bool) {
			if !yield(predict.Event{Kind: predict.Failure, Err: err, Message: err.Error()}) {
				return
			}
			yield(predict.Event{Kind: predict.Done, Message: "submission abandoned", Aborted: true})
		}
	}
	return s.solver.Decode(ctx, bytes.NewReader(b), env)
}

// wire converts a prediction event to its wire form.
func (s *Server) wire(task string, e predict.Event) message {
	m := message{TaskID: task, Message: e.Message}
	if e.Row != nil {
		m.Row = e.Row.String()
	}
	switch e.Kind {
	case predict.Progress:
		m.Type = "message"
	case predict.Failure:
		m.Type = "error"
		m.Status = -1
		m.Kind = string(scribble.KindOf(e.Err))
	case predict.Calculation:
		m.Type = "solution"
		m.Value = e.Text
		m.Position = e.Position
	case predict.Done:
		m.Type = "done"
		m.Aborted = e.Aborted
		m.Variables = s.formatAll(e.Vars)
		for _, r := range e.Results {
			x := result{Labels: r.Labels}
			if r.Value != nil {
				x.Value = s.format(r.Value)
			}
			if r.Err != nil {
				x.Error = r.Err.Error()
			}
			m.Results = append(m.Results, x)
		}
	}
	return m
}
