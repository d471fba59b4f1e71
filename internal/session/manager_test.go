package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/gophsky/internal/credstore"
	"github.com/dmitrijs2005/gophsky/internal/xrpc"
)

// fakePDS serves the com.atproto.server session methods.
type fakePDS struct {
	t   *testing.T
	now time.Time

	createStatus  atomic.Int32
	refreshStatus atomic.Int32
	whoamiStatus  atomic.Int32
	refreshDelay  atomic.Int64

	creates   atomic.Int32
	refreshes atomic.Int32
	whoamis   atomic.Int32
	deletes   atomic.Int32

	mu          sync.Mutex
	lastRefresh string
	lastWhoami  string
}

func newFakePDS(t *testing.T, now time.Time) (*fakePDS, *xrpc.Client) {
	f := &fakePDS{t: t, now: now}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, xrpc.NewClient(srv.URL)
}

func (f *fakePDS) last(field *string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *field
}

func (f *fakePDS) bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func (f *fakePDS) tokens() map[string]any {
	return map[string]any{
		"accessJwt":  makeToken(f.t, f.now.Add(2*time.Hour)),
		"refreshJwt": "refresh-" + f.now.String(),
		"handle":     "alice.test",
		"did":        "did:plc:alice",
	}
}

func (f *fakePDS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON := func(status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}

	switch r.URL.Path {
	case "/xrpc/com.atproto.server.createSession":
		f.creates.Add(1)
		if status := int(f.createStatus.Load()); status != 0 {
			writeJSON(status, map[string]string{"error": "AuthenticationRequired", "message": "Invalid identifier or password"})
			return
		}
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		out := f.tokens()
		out["email"] = "alice@example.com"
		if in["password"] == "short-lived" {
			out["accessJwt"] = makeToken(f.t, f.now.Add(time.Minute))
		}
		writeJSON(http.StatusOK, out)

	case "/xrpc/com.atproto.server.refreshSession":
		f.refreshes.Add(1)
		f.mu.Lock()
		f.lastRefresh = f.bearer(r)
		f.mu.Unlock()
		time.Sleep(time.Duration(f.refreshDelay.Load()))
		if status := int(f.refreshStatus.Load()); status != 0 {
			writeJSON(status, map[string]string{"error": "ExpiredToken", "message": "Token has expired"})
			return
		}
		writeJSON(http.StatusOK, f.tokens())

	case "/xrpc/com.atproto.server.getSession":
		f.whoamis.Add(1)
		f.mu.Lock()
		f.lastWhoami = f.bearer(r)
		f.mu.Unlock()
		if status := int(f.whoamiStatus.Load()); status != 0 {
			writeJSON(status, map[string]string{"error": "InternalServerError"})
			return
		}
		writeJSON(http.StatusOK, map[string]any{"handle": "alice.test", "did": "did:plc:alice", "email": "alice@example.com"})

	case "/xrpc/com.atproto.server.deleteSession":
		f.deletes.Add(1)
		w.WriteHeader(http.StatusOK)

	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"MethodNotImplemented"}`)
	}
}

func newTestManager(t *testing.T, now time.Time) (*Manager, *fakePDS, *credstore.MemoryStore) {
	t.Helper()
	pds, client := newFakePDS(t, now)
	store := credstore.NewMemoryStore()
	m := NewManager(client, store, WithClock(func() time.Time { return now }))
	return m, pds, store
}

func TestLogin_PersistsAndAdopts(t *testing.T) {
	ctx := context.Background()
	m, pds, store := newTestManager(t, time.Now())

	s, err := m.Login(ctx, "alice.test", "pw")
	require.NoError(t, err)
	assert.Equal(t, "did:plc:alice", s.DID)
	require.NotNil(t, s.Email)
	assert.Equal(t, int32(1), pds.creates.Load())

	cur, ok := m.Current()
	require.True(t, ok)
	assert.Equal(t, s, cur)

	access, refresh, err := credstore.LoadTokens(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, s.AccessToken, access)
	assert.Equal(t, s.RefreshToken, refresh)
}

func TestLogin_Rejected(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusBadRequest} {
		m, pds, store := newTestManager(t, time.Now())
		pds.createStatus.Store(int32(status))

		_, err := m.Login(context.Background(), "alice.test", "wrong")
		require.ErrorIs(t, err, ErrAuthenticationFailed)
		_, ok := m.Current()
		assert.False(t, ok)
		assert.Equal(t, 0, store.Len())
	}
}

func TestLogin_ServerErrorIsNotAuthFailure(t *testing.T) {
	m, pds, _ := newTestManager(t, time.Now())
	pds.createStatus.Store(int32(http.StatusBadGateway))

	_, err := m.Login(context.Background(), "alice.test", "pw")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAuthenticationFailed)
	assert.ErrorIs(t, err, xrpc.ErrNetwork)
}

func TestAccessToken_FreshTokenNoNetwork(t *testing.T) {
	ctx := context.Background()
	m, pds, _ := newTestManager(t, time.Now())
	s, err := m.Login(ctx, "alice.test", "pw")
	require.NoError(t, err)

	tok, err := m.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, s.AccessToken, tok)
	assert.Equal(t, int32(0), pds.refreshes.Load())
	assert.Equal(t, int32(0), pds.whoamis.Load())
}

func TestAccessToken_ConcurrentCallersShareOneRefresh(t *testing.T) {
	ctx := context.Background()
	m, pds, _ := newTestManager(t, time.Now())
	pds.refreshDelay.Store(int64(50 * time.Millisecond))

	old, err := m.Login(ctx, "alice.test", "short-lived")
	require.NoError(t, err)
	require.True(t, old.Expired(time.Now()))

	const callers = 20
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = m.AccessToken(ctx)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), pds.refreshes.Load())
	cur, ok := m.Current()
	require.True(t, ok)
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, cur.AccessToken, tokens[i])
	}
	assert.Equal(t, old.RefreshToken, pds.last(&pds.lastRefresh))
	require.NotNil(t, cur.Email, "email survives refresh")
	assert.Equal(t, "alice@example.com", *cur.Email)
}

func TestAccessToken_CancelledCallerDoesNotAbortRefresh(t *testing.T) {
	m, pds, _ := newTestManager(t, time.Now())
	pds.refreshDelay.Store(int64(100 * time.Millisecond))

	_, err := m.Login(context.Background(), "alice.test", "short-lived")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = m.AccessToken(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	tok, err := m.AccessToken(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, tok)
	assert.Equal(t, int32(1), pds.refreshes.Load())
}

func TestRefresh_NoSession(t *testing.T) {
	m, _, _ := newTestManager(t, time.Now())
	_, err := m.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestRefresh_RejectedClearsSession(t *testing.T) {
	ctx := context.Background()
	m, pds, store := newTestManager(t, time.Now())
	_, err := m.Login(ctx, "alice.test", "pw")
	require.NoError(t, err)

	pds.refreshStatus.Store(int32(http.StatusBadRequest))
	_, err = m.Refresh(ctx)
	require.ErrorIs(t, err, ErrRefreshFailed)

	_, ok := m.Current()
	assert.False(t, ok)
	assert.Equal(t, 0, store.Len())
}

func TestRefresh_TransientKeepsSession(t *testing.T) {
	ctx := context.Background()
	m, pds, store := newTestManager(t, time.Now())
	s, err := m.Login(ctx, "alice.test", "pw")
	require.NoError(t, err)

	pds.refreshStatus.Store(int32(http.StatusServiceUnavailable))
	_, err = m.Refresh(ctx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRefreshFailed)
	assert.True(t, xrpc.IsTransient(err))

	cur, ok := m.Current()
	require.True(t, ok)
	assert.Equal(t, s, cur)
	assert.Equal(t, 2, store.Len())
}

func TestRestore_NoStoredSession(t *testing.T) {
	m, pds, _ := newTestManager(t, time.Now())

	err := m.Restore(context.Background())
	require.ErrorIs(t, err, ErrNoActiveSession)
	assert.Equal(t, int32(0), pds.refreshes.Load()+pds.whoamis.Load())

	_, err = m.AccessToken(context.Background())
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestRestore_ExpiredTokenRefreshesOnce(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	m, pds, store := newTestManager(t, now)
	require.NoError(t, credstore.SaveTokens(ctx, store, makeToken(t, now.Add(-time.Hour)), "stored-refresh"))

	require.NoError(t, m.Restore(ctx))
	assert.Equal(t, int32(1), pds.refreshes.Load())
	assert.Equal(t, int32(0), pds.whoamis.Load())
	assert.Equal(t, "stored-refresh", pds.last(&pds.lastRefresh))

	cur, ok := m.Current()
	require.True(t, ok)
	assert.False(t, cur.Expired(now))

	access, _, err := credstore.LoadTokens(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, cur.AccessToken, access)
}

func TestRestore_ExpiredAndRefreshRejected(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	m, pds, store := newTestManager(t, now)
	require.NoError(t, credstore.SaveTokens(ctx, store, makeToken(t, now.Add(-time.Hour)), "dead"))
	pds.refreshStatus.Store(int32(http.StatusUnauthorized))

	err := m.Restore(ctx)
	require.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, 0, store.Len())
}

func TestRestore_ValidTokenCallsWhoamiOnce(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	m, pds, store := newTestManager(t, now)
	access := makeToken(t, now.Add(time.Hour))
	require.NoError(t, credstore.SaveTokens(ctx, store, access, "stored-refresh"))

	require.NoError(t, m.Restore(ctx))
	assert.Equal(t, int32(1), pds.whoamis.Load())
	assert.Equal(t, int32(0), pds.refreshes.Load())
	assert.Equal(t, access, pds.last(&pds.lastWhoami))

	cur, ok := m.Current()
	require.True(t, ok)
	assert.Equal(t, Session{
		AccessToken:  access,
		RefreshToken: "stored-refresh",
		Handle:       "alice.test",
		DID:          "did:plc:alice",
		Email:        cur.Email,
	}, cur)
	require.NotNil(t, cur.Email)
}

func TestRestore_WhoamiFailures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		want      error
		keepStore bool
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, want: ErrSessionExpired, keepStore: false},
		{name: "server error", status: http.StatusInternalServerError, want: xrpc.ErrNetwork, keepStore: true},
		{name: "rate limited", status: http.StatusTooManyRequests, want: xrpc.ErrRateLimited, keepStore: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now()
			m, pds, store := newTestManager(t, now)
			require.NoError(t, credstore.SaveTokens(ctx, store, makeToken(t, now.Add(time.Hour)), "r"))
			pds.whoamiStatus.Store(int32(tt.status))

			err := m.Restore(ctx)
			require.ErrorIs(t, err, tt.want)
			if tt.keepStore {
				assert.Equal(t, 2, store.Len())
			} else {
				assert.Equal(t, 0, store.Len())
			}
			_, ok := m.Current()
			assert.False(t, ok)
		})
	}
}

func TestAccessToken_RestoresWhenEmpty(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	m, pds, store := newTestManager(t, now)
	access := makeToken(t, now.Add(time.Hour))
	require.NoError(t, credstore.SaveTokens(ctx, store, access, "r"))

	tok, err := m.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, access, tok)
	assert.Equal(t, int32(1), pds.whoamis.Load())
}

func TestAccessToken_LoadedSessionIsNotRestoredAgain(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	m, pds, store := newTestManager(t, now)
	access := makeToken(t, now.Add(time.Hour))
	require.NoError(t, credstore.SaveTokens(ctx, store, access, "stored-refresh"))

	require.NoError(t, m.Restore(ctx))
	require.Equal(t, int32(1), pds.whoamis.Load())

	// A caller that saw no session before the restore above finished.
	s, err := m.ensureLoaded(ctx)
	require.NoError(t, err)
	assert.Equal(t, access, s.AccessToken)
	assert.Equal(t, int32(1), pds.whoamis.Load())
	assert.Equal(t, int32(0), pds.refreshes.Load())
}

func TestAccessToken_LoadAfterRefreshKeepsRotatedPair(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	pds, client := newFakePDS(t, now)
	store := failingSaveStore{credstore.NewMemoryStore()}
	m := NewManager(client, store, WithClock(func() time.Time { return now }))
	require.NoError(t, credstore.SaveTokens(ctx, store.MemoryStore, makeToken(t, now.Add(time.Minute)), "stored-refresh"))

	require.NoError(t, m.Restore(ctx))
	require.Equal(t, int32(1), pds.refreshes.Load())
	rotated, ok := m.Current()
	require.True(t, ok)

	s, err := m.ensureLoaded(ctx)
	require.NoError(t, err)
	assert.Equal(t, rotated, s)
	assert.Equal(t, int32(1), pds.refreshes.Load(), "the consumed stored refresh token must not be sent again")
}

type failingSaveStore struct{ *credstore.MemoryStore }

func (failingSaveStore) Save(context.Context, string, string) error {
	return errors.New("disk full")
}

func (failingSaveStore) SaveAll(context.Context, map[string]string) error {
	return errors.New("disk full")
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	m, pds, store := newTestManager(t, time.Now())
	_, err := m.Login(ctx, "alice.test", "pw")
	require.NoError(t, err)

	m.Logout(ctx)

	_, ok := m.Current()
	assert.False(t, ok)
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, int32(1), pds.deletes.Load())

	m.Logout(ctx)
	assert.Equal(t, int32(1), pds.deletes.Load(), "no server call without a session")
}

type failingStore struct{ *credstore.MemoryStore }

func (failingStore) Delete(context.Context, string) error {
	return errors.Join(credstore.ErrStore, errors.New("locked"))
}

func TestLogout_SwallowsStoreErrors(t *testing.T) {
	ctx := context.Background()
	pds, client := newFakePDS(t, time.Now())
	m := NewManager(client, failingStore{credstore.NewMemoryStore()})
	_, err := m.Login(ctx, "alice.test", "pw")
	require.NoError(t, err)

	m.Logout(ctx)

	_, ok := m.Current()
	assert.False(t, ok)
	assert.Equal(t, int32(1), pds.deletes.Load())
}
