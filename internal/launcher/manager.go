// Package launcher starts automation sessions for the configured backend and
// keeps track of them until they are closed.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wikiprobe/internal/config"
	"github.com/xkilldash9x/wikiprobe/internal/driver"
)

// Kind tells web sessions from mobile ones.
type Kind string

const (
	KindWeb    Kind = "web"
	KindMobile Kind = "mobile"
)

const shutdownGracePeriod = 15 * time.Second

// Session is a driver session registered with a Manager.
type Session struct {
	id      string
	kind    Kind
	backend string
	drv     driver.Session

	closeOnce sync.Once
	closeErr  error
	onClose   func()
}

// ID returns the launcher-assigned session id.
func (s *Session) ID() string { return s.id }

func (s *Session) Kind() Kind { return s.kind }

// Backend names the driver behind the session, e.g. "cdp/chrome".
func (s *Session) Backend() string { return s.backend }

// Driver returns the underlying session. Screens must receive this value, not
// s, so their capability checks see the concrete backend.
func (s *Session) Driver() driver.Session { return s.drv }

// Close ends the driver session once and unregisters it.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.closeErr = s.drv.Close(ctx)
		if s.onClose != nil {
			s.onClose()
		}
	})
	return s.closeErr
}

// opener starts a driver session. Tests replace the table entries.
type opener func(ctx context.Context, m *Manager) (driver.Session, string, error)

// Manager owns every session it starts and closes the leftovers on Shutdown.
type Manager struct {
	cfg    *config.Config
	logger *zap.Logger

	web    map[string]opener
	mobile map[string]opener

	sessions map[string]*Session
	mu       sync.RWMutex
	wg       sync.WaitGroup
	closed   bool
}

// NewManager returns a Manager for cfg.
func NewManager(cfg *config.Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:      cfg,
		logger:   logger.Named("launcher"),
		web:      webOpeners(),
		mobile:   mobileOpeners(),
		sessions: make(map[string]*Session),
	}
}

// Config returns the configuration the manager launches with.
func (m *Manager) Config() *config.Config { return m.cfg }

// NewWebSession starts a browser session for web.browser.
func (m *Manager) NewWebSession(ctx context.Context) (*Session, error) {
	return m.open(ctx, KindWeb, m.cfg.Web.Browser, m.web)
}

// NewMobileSession starts an app session for mobile.backend.
func (m *Manager) NewMobileSession(ctx context.Context) (*Session, error) {
	if err := m.cfg.ValidateMobile(); err != nil {
		return nil, err
	}
	return m.open(ctx, KindMobile, m.cfg.Mobile.Backend, m.mobile)
}

func (m *Manager) open(ctx context.Context, kind Kind, name string, table map[string]opener) (*Session, error) {
	start, ok := table[name]
	if !ok {
		return nil, fmt.Errorf("launcher: unsupported %s backend %q", kind, name)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, errors.New("launcher: manager is shut down")
	}
	m.wg.Add(1)
	m.mu.Unlock()

	drv, backend, err := start(ctx, m)
	if err != nil {
		m.wg.Done()
		return nil, fmt.Errorf("start %s session (%s): %w", kind, name, err)
	}

	s := &Session{id: uuid.NewString(), kind: kind, backend: backend, drv: drv}
	s.onClose = func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.sessions, s.id)
		m.wg.Done()
		m.logger.Debug("Session removed from manager.", zap.String("session_id", s.id))
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		// Shutdown began while the backend was starting.
		_ = drv.Close(context.WithoutCancel(ctx))
		m.wg.Done()
		return nil, errors.New("launcher: manager is shut down")
	}
	m.sessions[s.id] = s
	m.mu.Unlock()

	m.logger.Info("New session created.",
		zap.String("session_id", s.id),
		zap.String("kind", string(kind)),
		zap.String("backend", backend),
	)
	return s, nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown closes all live sessions and waits for them, bounded by ctx and a
// grace period. New sessions are refused afterwards.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down session manager.")

	m.mu.Lock()
	m.closed = true
	toClose := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		toClose = append(toClose, s)
	}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, shutdownGracePeriod)
	defer cancel()

	for _, s := range toClose {
		go func(s *Session) {
			if err := s.Close(ctx); err != nil {
				m.logger.Warn("Error during session close in shutdown.", zap.String("session_id", s.id), zap.Error(err))
			}
		}(s)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("All sessions closed gracefully.")
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for sessions to close.", zap.Error(ctx.Err()))
		return fmt.Errorf("launcher shutdown: %w", ctx.Err())
	}

	// closeErr is set before the WaitGroup is released.
	var errs []error
	for _, s := range toClose {
		if s.closeErr != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", s.id, s.closeErr))
		}
	}
	return errors.Join(errs...)
}
