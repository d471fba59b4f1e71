package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dmitrijs2005/gophsky/internal/credstore"
	"github.com/dmitrijs2005/gophsky/internal/logging"
	"github.com/dmitrijs2005/gophsky/internal/metrics"
	"github.com/dmitrijs2005/gophsky/internal/xrpc"
)

const (
	nsidCreateSession  = "com.atproto.server.createSession"
	nsidRefreshSession = "com.atproto.server.refreshSession"
	nsidGetSession     = "com.atproto.server.getSession"
	nsidDeleteSession  = "com.atproto.server.deleteSession"
)

const (
	flightRefresh      = "refresh"
	flightForceRefresh = "refresh:force"
	flightRestore      = "restore"
	flightLoad         = "load"
)

// TokenSource hands out a valid access token for the current account.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	Current() (Session, bool)
}

// Manager serializes session mutations and coalesces concurrent refreshes.
//
// Readers only ever observe the session as left by the last completed
// mutation. Refresh and restore run as shared flights detached from any
// single caller's cancellation; a cancelled caller returns early while the
// flight completes for the others.
type Manager struct {
	pds   *xrpc.Client
	store credstore.Store
	log   logging.Logger
	now   func() time.Time

	opMu    sync.Mutex
	mu      sync.RWMutex
	current *Session

	flights singleflight.Group
}

type Option func(*Manager)

func WithLogger(l logging.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func NewManager(pds *xrpc.Client, store credstore.Store, opts ...Option) *Manager {
	m := &Manager{
		pds:   pds,
		store: store,
		log:   logging.Nop(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Current returns the current session, if any.
func (m *Manager) Current() (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return Session{}, false
	}
	return *m.current, true
}

// Login creates a session with createSession, persists both tokens and
// adopts the session. Rejected credentials yield ErrAuthenticationFailed.
func (m *Manager) Login(ctx context.Context, identifier, password string) (Session, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	in := map[string]string{"identifier": identifier, "password": password}
	var out sessionWire
	if err := m.pds.Procedure(ctx, nsidCreateSession, "", in, &out); err != nil {
		if errors.Is(err, xrpc.ErrUnauthorized) || xrpc.StatusCode(err) == 400 {
			m.log.Info(ctx, "login rejected", "identifier", identifier, "error", xrpc.ErrorName(err))
			return Session{}, fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
		}
		return Session{}, fmt.Errorf("login: %w", err)
	}

	s, err := newSession(out)
	if err != nil {
		return Session{}, fmt.Errorf("login: %w", err)
	}

	if err := credstore.SaveTokens(ctx, m.store, s.AccessToken, s.RefreshToken); err != nil {
		return Session{}, fmt.Errorf("persist session: %w", err)
	}
	m.setCurrent(&s)

	m.log.Info(ctx, "logged in", "did", s.DID, "handle", s.Handle)
	return s, nil
}

// Refresh exchanges the refresh token for a new token pair regardless of
// the access token's expiry. A rejected refresh clears the session.
func (m *Manager) Refresh(ctx context.Context) (Session, error) {
	return m.coalesce(ctx, flightForceRefresh, func(ctx context.Context) (Session, error) {
		m.opMu.Lock()
		defer m.opMu.Unlock()

		cur, ok := m.Current()
		if !ok {
			return Session{}, ErrNoActiveSession
		}
		return m.exchangeLocked(ctx, cur.RefreshToken, &cur)
	})
}

// Restore rebuilds the session from the credential store. An expired access
// token is refreshed; otherwise getSession confirms the token and supplies
// the account details.
func (m *Manager) Restore(ctx context.Context) error {
	_, err := m.coalesce(ctx, flightRestore, m.restore)
	return err
}

func (m *Manager) restore(ctx context.Context) (Session, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.restoreLocked(ctx)
}

// ensureLoaded restores the session only when none is loaded. A session
// adopted by an earlier flight is returned as is, so its tokens are not
// checked or exchanged a second time.
func (m *Manager) ensureLoaded(ctx context.Context) (Session, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	if cur, ok := m.Current(); ok {
		return cur, nil
	}
	return m.restoreLocked(ctx)
}

// restoreLocked must be called with opMu held.
func (m *Manager) restoreLocked(ctx context.Context) (Session, error) {
	access, refresh, err := credstore.LoadTokens(ctx, m.store)
	if errors.Is(err, credstore.ErrItemNotFound) {
		m.setCurrent(nil)
		return Session{}, ErrNoActiveSession
	}
	if err != nil {
		return Session{}, fmt.Errorf("restore session: %w", err)
	}

	if IsExpired(access, m.now()) {
		m.log.Debug(ctx, "stored access token expired, refreshing")
		s, err := m.exchangeLocked(ctx, refresh, nil)
		if errors.Is(err, ErrRefreshFailed) {
			return Session{}, fmt.Errorf("%w: %w", ErrSessionExpired, err)
		}
		return s, err
	}

	var who sessionWire
	if err := m.pds.Query(ctx, nsidGetSession, access, nil, &who); err != nil {
		if errors.Is(err, xrpc.ErrUnauthorized) {
			m.clearLocked(ctx)
			return Session{}, fmt.Errorf("%w: %w", ErrSessionExpired, err)
		}
		return Session{}, fmt.Errorf("restore session: %w", err)
	}

	who.AccessJwt, who.RefreshJwt = access, refresh
	s, err := newSession(who)
	if err != nil {
		return Session{}, fmt.Errorf("restore session: %w", err)
	}
	m.setCurrent(&s)

	m.log.Info(ctx, "session restored", "did", s.DID, "handle", s.Handle)
	return s, nil
}

// AccessToken returns a valid access token, restoring the session when none
// is loaded and refreshing it when the token is within ExpirySkew of expiry.
// Concurrent callers share a single refresh.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	cur, ok := m.Current()
	if !ok {
		var err error
		if cur, err = m.coalesce(ctx, flightLoad, m.ensureLoaded); err != nil {
			return "", err
		}
	}
	if !cur.Expired(m.now()) {
		return cur.AccessToken, nil
	}

	s, err := m.coalesce(ctx, flightRefresh, func(ctx context.Context) (Session, error) {
		m.opMu.Lock()
		defer m.opMu.Unlock()

		cur, ok := m.Current()
		if !ok {
			return Session{}, ErrNoActiveSession
		}
		// A refresh that finished while this flight waited for opMu already
		// produced a fresh token.
		if !cur.Expired(m.now()) {
			return cur, nil
		}
		return m.exchangeLocked(ctx, cur.RefreshToken, &cur)
	})
	if err != nil {
		return "", err
	}
	return s.AccessToken, nil
}

// Logout revokes the session on the server when possible and forgets it
// locally. Server and store failures are logged, not returned.
func (m *Manager) Logout(ctx context.Context) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if cur, ok := m.Current(); ok {
		if err := m.pds.Procedure(ctx, nsidDeleteSession, cur.RefreshToken, nil, nil); err != nil {
			m.log.Debug(ctx, "deleteSession failed", "error", err)
		}
	}
	m.clearLocked(ctx)
	m.log.Info(ctx, "logged out")
}

// exchangeLocked calls refreshSession with refreshToken. Transient failures
// leave everything untouched; any other rejection clears the session.
// Must be called with opMu held.
func (m *Manager) exchangeLocked(ctx context.Context, refreshToken string, prev *Session) (Session, error) {
	var out sessionWire
	err := m.pds.Procedure(ctx, nsidRefreshSession, refreshToken, nil, &out)
	switch {
	case err == nil:
	case xrpc.IsTransient(err):
		metrics.ObserveRefresh("transient")
		return Session{}, fmt.Errorf("refresh session: %w", err)
	case errors.Is(err, xrpc.ErrInvalidResponse):
		metrics.ObserveRefresh("invalid")
		return Session{}, fmt.Errorf("refresh session: %w", err)
	default:
		metrics.ObserveRefresh("rejected")
		m.log.Warn(ctx, "refresh rejected", "error", err)
		m.clearLocked(ctx)
		return Session{}, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	s, err := newSession(out)
	if err != nil {
		metrics.ObserveRefresh("invalid")
		return Session{}, fmt.Errorf("refresh session: %w", err)
	}
	if s.Email == nil && prev != nil {
		s.Email = prev.Email
	}

	if err := credstore.SaveTokens(ctx, m.store, s.AccessToken, s.RefreshToken); err != nil {
		// The server has rotated the pair; keep it in memory regardless.
		m.log.Warn(ctx, "persist refreshed session failed", "error", err)
	}
	m.setCurrent(&s)
	metrics.ObserveRefresh("ok")

	m.log.Debug(ctx, "session refreshed", "did", s.DID, "access", logging.Redact(s.AccessToken))
	return s, nil
}

// clearLocked drops the in-memory session and deletes the stored tokens.
// Must be called with opMu held.
func (m *Manager) clearLocked(ctx context.Context) {
	m.setCurrent(nil)
	if err := credstore.DeleteTokens(ctx, m.store); err != nil {
		m.log.Warn(ctx, "delete stored session failed", "error", err)
	}
}

func (m *Manager) setCurrent(s *Session) {
	m.mu.Lock()
	m.current = s
	m.mu.Unlock()
}

// coalesce runs fn once per key for all concurrent callers. fn gets a
// context that is not cancelled when ctx is.
func (m *Manager) coalesce(ctx context.Context, key string, fn func(context.Context) (Session, error)) (Session, error) {
	flightCtx := context.WithoutCancel(ctx)
	ch := m.flights.DoChan(key, func() (any, error) {
		return fn(flightCtx)
	})

	select {
	case <-ctx.Done():
		return Session{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Session{}, res.Err
		}
		return res.Val.(Session), nil
	}
}
