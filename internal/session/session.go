// Package session keeps the variable environments of client sessions.
//
// Every submission for one session runs through Session.Do, which serializes
// them in the order they acquire the session and saves the environment to a
// Store afterward. Sessions stay in memory only while some caller holds them
// through Manager.Acquire.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/zephyrtronium/scribble"
	"github.com/zephyrtronium/scribble/internal/logging"
)

// ErrNotFound is returned by stores for sessions they do not hold.
var ErrNotFound = errors.New("session not found")

// Store persists environments as maps from variable names to decimal text.
type Store interface {
	// Load returns the variables of a session, or ErrNotFound.
	Load(ctx context.Context, id string) (map[string]string, error)
	// Save replaces the variables of a session.
	Save(ctx context.Context, id string, vars map[string]string) error
	// Delete forgets a session. Deleting a missing session is not an error.
	Delete(ctx context.Context, id string) error
	Close() error
}

// Encode converts an environment to its stored form.
func Encode(env *scribble.Env) map[string]string {
	m := make(map[string]string, env.Len())
	for k, v := range env.All() {
		m[k] = v.Text('g', -1)
	}
	return m
}

// Decode converts a stored environment back to values.
func Decode(vars map[string]string, prec uint) (*scribble.Env, error) {
	env := scribble.NewEnv(scribble.Prec(prec))
	for k, s := range vars {
		v, _, err := new(big.Float).SetPrec(prec).Parse(s, 10)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", k, err)
		}
		env.Set(k, v)
	}
	return env, nil
}

// Manager holds the live sessions.
type Manager struct {
	store Store
	prec  uint
	log   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a manager over a store. Environments compute with the
// given precision in bits.
func NewManager(store Store, prec uint, log *slog.Logger) *Manager {
	return &Manager{
		store:    store,
		prec:     prec,
		log:      logging.Or(log),
		sessions: make(map[string]*Session),
	}
}

// Session is one client's environment.
type Session struct {
	ID string

	m   *Manager
	sem *semaphore.Weighted
	// refs counts holders; it is guarded by m.mu.
	refs int
	// env is loaded on first use.
	env *scribble.Env
	// stored is whether the store holds the session.
	stored bool
}

// NewID returns a fresh session id.
func NewID() string {
	return uuid.NewString()
}

// Acquire returns the session with the given id, creating it if needed. The
// session stays in memory until every holder has called release; after that
// it is loaded from the store again on next use. Holders of the same id share
// one Session, so their calls to Do are serialized.
func (m *Manager) Acquire(id string) (s *Session, release func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s = m.sessions[id]
	if s == nil {
		s = &Session{ID: id, m: m, sem: semaphore.NewWeighted(1)}
		m.sessions[id] = s
	}
	s.refs++
	var once sync.Once
	return s, func() { once.Do(func() { m.release(s) }) }
}

func (m *Manager) release(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.refs--
	if s.refs == 0 && m.sessions[s.ID] == s {
		delete(m.sessions, s.ID)
	}
}

// Len returns the number of sessions held in memory.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close closes the store.
func (m *Manager) Close() error {
	return m.store.Close()
}

// Do runs f with exclusive use of the session's environment, then saves the
// environment. Calls wait for each other in the order they arrive. The
// environment is saved even if f fails, since a failing submission may
// still have assigned variables in earlier rows.
func (s *Session) Do(ctx context.Context, f func(env *scribble.Env) error) error {
	return s.lock(ctx, func(env *scribble.Env) error {
		ferr := f(env)
		if err := s.m.store.Save(ctx, s.ID, Encode(env)); err != nil {
			s.m.log.ErrorContext(ctx, "saving session", "session", s.ID, "err", err)
			return errors.Join(ferr, fmt.Errorf("saving session %s: %w", s.ID, err))
		}
		s.stored = true
		return ferr
	})
}

// lock runs f with exclusive use of the loaded environment.
func (s *Session) lock(ctx context.Context, f func(env *scribble.Env) error) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.sem.Release(1)
	if s.env == nil {
		if err := s.load(ctx); err != nil {
			return err
		}
	}
	return f(s.env)
}

func (s *Session) load(ctx context.Context) error {
	vars, err := s.m.store.Load(ctx, s.ID)
	switch {
	case errors.Is(err, ErrNotFound):
		s.env = scribble.NewEnv(scribble.Prec(s.m.prec))
		return nil
	case err != nil:
		return fmt.Errorf("loading session %s: %w", s.ID, err)
	}
	env, err := Decode(vars, s.m.prec)
	if err != nil {
		return fmt.Errorf("loading session %s: %w", s.ID, err)
	}
	s.m.log.DebugContext(ctx, "restored session", "session", s.ID, "vars", env.Len())
	s.env, s.stored = env, true
	return nil
}

// Vars returns a copy of the session's variables. It returns ErrNotFound if
// the session has never been saved and holds no variables. Vars does not
// save the session.
func (s *Session) Vars(ctx context.Context) (map[string]*big.Float, error) {
	r := make(map[string]*big.Float)
	err := s.lock(ctx, func(env *scribble.Env) error {
		if !s.stored && env.Len() == 0 {
			return ErrNotFound
		}
		for k, v := range env.All() {
			r[k] = new(big.Float).Copy(v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Reset clears the session's variables and deletes it from the store.
func (s *Session) Reset(ctx context.Context) error {
	return s.lock(ctx, func(env *scribble.Env) error {
		env.Reset()
		if err := s.m.store.Delete(ctx, s.ID); err != nil {
			return fmt.Errorf("deleting session %s: %w", s.ID, err)
		}
		s.stored = false
		return nil
	})
}
