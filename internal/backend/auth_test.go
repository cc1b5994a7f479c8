package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/model"
)

type memStorage struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
}

func newMemStorage() *memStorage {
	return &memStorage{sessions: map[string]*model.Session{}}
}

func (m *memStorage) Load(ctx context.Context, key string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[key], nil
}

func (m *memStorage) Save(ctx context.Context, key string, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[key] = s
	return nil
}

func (m *memStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, key)
	return nil
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) listen(event Event, _ *model.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) got() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	c, err := NewClient(Config{URL: ts.URL, AnonKey: "anon"})
	require.NoError(t, err)
	return c
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode: %v", err)
	}
}

func tokenResponse(access, refresh string, expiresAt int64) map[string]any {
	return map[string]any{
		"access_token":  access,
		"refresh_token": refresh,
		"token_type":    "bearer",
		"expires_in":    3600,
		"expires_at":    expiresAt,
		"user": map[string]any{
			"id":            "user-1",
			"email":         "guide@explorekigali.rw",
			"user_metadata": map[string]any{"full_name": "Aline Uwase"},
		},
	}
}

func TestNewClientRequiresConfig(t *testing.T) {
	_, err := NewClient(Config{URL: "", AnonKey: "anon"})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewClient(Config{URL: "http://localhost", AnonKey: ""})
	assert.ErrorIs(t, err, ErrNotConfigured)

	c, err := NewClient(Config{URL: "localhost:54321/", AnonKey: "anon"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:54321", c.BaseURL())
}

func TestSignInWithPassword(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/token" || r.URL.Query().Get("grant_type") != "password" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL)
		}
		if r.Header.Get("apikey") != "anon" {
			t.Errorf("apikey = %q, want anon", r.Header.Get("apikey"))
		}

		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "secret1" {
			writeJSON(t, w, http.StatusBadRequest, map[string]any{
				"code":       400,
				"error_code": "invalid_credentials",
				"msg":        "Invalid login credentials",
			})
			return
		}
		writeJSON(t, w, http.StatusOK, tokenResponse("access-1", "refresh-1", 0))
	}))

	storage := newMemStorage()
	auth := c.NewAuth(storage, "browser-1")
	rec := &recorder{}
	auth.OnAuthStateChange(rec.listen)

	_, err := auth.SignInWithPassword(context.Background(), "guide@explorekigali.rw", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Contains(t, err.Error(), "Invalid login credentials")
	assert.Empty(t, rec.got())

	s, err := auth.SignInWithPassword(context.Background(), "guide@explorekigali.rw", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "access-1", s.AccessToken)
	assert.Equal(t, "Aline Uwase", s.User.FullName())
	assert.NotZero(t, s.ExpiresAt)
	assert.Equal(t, []Event{EventSignedIn}, rec.got())

	persisted, _ := storage.Load(context.Background(), "browser-1")
	require.NotNil(t, persisted)
	assert.Equal(t, "refresh-1", persisted.RefreshToken)
}

func TestSignUp(t *testing.T) {
	var confirmed bool
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Email string         `json:"email"`
			Data  map[string]any `json:"data"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Data["full_name"] != "Jean Claude" {
			t.Errorf("metadata = %v", body.Data)
		}
		if !confirmed {
			writeJSON(t, w, http.StatusOK, map[string]any{
				"id":            "user-2",
				"email":         body.Email,
				"user_metadata": body.Data,
			})
			return
		}
		writeJSON(t, w, http.StatusOK, tokenResponse("access-2", "refresh-2", 0))
	}))

	auth := c.NewAuth(nil, "browser-2")
	rec := &recorder{}
	auth.OnAuthStateChange(rec.listen)

	user, err := auth.SignUp(context.Background(), "jc@explorekigali.rw", "secret1", map[string]any{"full_name": "Jean Claude"})
	require.NoError(t, err)
	assert.Equal(t, "user-2", user.ID)
	assert.Nil(t, auth.Current())
	assert.Empty(t, rec.got())

	confirmed = true
	_, err = auth.SignUp(context.Background(), "jc@explorekigali.rw", "secret1", map[string]any{"full_name": "Jean Claude"})
	require.NoError(t, err)
	assert.NotNil(t, auth.Current())
	assert.Equal(t, []Event{EventSignedIn}, rec.got())
}

func TestSignOutClearsLocallyOnError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/v1/token":
			writeJSON(t, w, http.StatusOK, tokenResponse("access-1", "refresh-1", 0))
		case "/auth/v1/logout":
			if r.Header.Get("Authorization") != "Bearer access-1" {
				t.Errorf("authorization = %q", r.Header.Get("Authorization"))
			}
			writeJSON(t, w, http.StatusServiceUnavailable, map[string]any{"msg": "down"})
		}
	}))

	storage := newMemStorage()
	auth := c.NewAuth(storage, "browser-1")
	_, err := auth.SignInWithPassword(context.Background(), "a@b.rw", "secret1")
	require.NoError(t, err)

	rec := &recorder{}
	auth.OnAuthStateChange(rec.listen)

	err = auth.SignOut(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.Retryable())

	assert.Nil(t, auth.Current())
	assert.Equal(t, []Event{EventSignedOut}, rec.got())
	persisted, _ := storage.Load(context.Background(), "browser-1")
	assert.Nil(t, persisted)
}

func TestGetSessionRestoresAndRefreshes(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var refreshes int

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("grant_type") != "refresh_token" {
			t.Errorf("unexpected grant %q", r.URL.Query().Get("grant_type"))
		}
		refreshes++
		writeJSON(t, w, http.StatusOK, tokenResponse("access-new", "refresh-new", now.Add(time.Hour).Unix()))
	}))

	storage := newMemStorage()
	_ = storage.Save(context.Background(), "browser-1", &model.Session{
		AccessToken:  "access-old",
		RefreshToken: "refresh-old",
		ExpiresAt:    now.Add(5 * time.Second).Unix(),
		User:         model.AuthenticatedUser{ID: "user-1"},
	})

	auth := c.NewAuth(storage, "browser-1")
	auth.now = func() time.Time { return now }
	rec := &recorder{}
	auth.OnAuthStateChange(rec.listen)

	s, err := auth.GetSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-new", s.AccessToken)
	assert.Equal(t, []Event{EventTokenRefreshed}, rec.got())

	s, err = auth.GetSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-new", s.AccessToken)
	assert.Equal(t, 1, refreshes)
}

func TestGetSessionWithoutSession(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL)
	}))

	auth := c.NewAuth(newMemStorage(), "browser-1")
	s, err := auth.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, s)

	_, err = auth.RefreshSession(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestRefreshWithRevokedTokenSignsOut(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusBadRequest, map[string]any{
			"error":             "invalid_grant",
			"error_description": "Invalid Refresh Token",
		})
	}))

	storage := newMemStorage()
	_ = storage.Save(context.Background(), "browser-1", &model.Session{AccessToken: "a", RefreshToken: "r"})

	auth := c.NewAuth(storage, "browser-1")
	rec := &recorder{}
	auth.OnAuthStateChange(rec.listen)

	_, err := auth.RefreshSession(context.Background())
	require.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Nil(t, auth.Current())
	assert.Equal(t, []Event{EventSignedOut}, rec.got())
}

func TestUpdateUserEmitsUserUpdated(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/auth/v1/user" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL)
		}
		writeJSON(t, w, http.StatusOK, map[string]any{
			"id":            "user-1",
			"email":         "a@b.rw",
			"user_metadata": map[string]any{"full_name": "New Name"},
		})
	}))

	auth := c.NewAuth(nil, "browser-1")
	auth.setSession(context.Background(), &model.Session{AccessToken: "a", RefreshToken: "r"})
	rec := &recorder{}
	auth.OnAuthStateChange(rec.listen)

	user, err := auth.UpdateUser(context.Background(), map[string]any{"full_name": "New Name"})
	require.NoError(t, err)
	assert.Equal(t, "New Name", user.FullName())
	assert.Equal(t, "New Name", auth.Current().User.FullName())
	assert.Equal(t, []Event{EventUserUpdated}, rec.got())
}

func TestListenersOrderAndUnsubscribe(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler())
	auth := c.NewAuth(nil, "k")

	var order []string
	unsubA := auth.OnAuthStateChange(func(Event, *model.Session) { order = append(order, "a") })
	auth.OnAuthStateChange(func(Event, *model.Session) { order = append(order, "b") })

	auth.emit(EventSignedIn, nil)
	unsubA()
	unsubA()
	auth.emit(EventSignedOut, nil)

	assert.Equal(t, []string{"a", "b", "b"}, order)
}

func TestAutoRefreshRefreshesExpiringSession(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, tokenResponse("access-new", "refresh-new", now.Add(time.Hour).Unix()))
	}))

	auth := c.NewAuth(nil, "k")
	auth.now = func() time.Time { return now }
	auth.setSession(context.Background(), &model.Session{
		AccessToken:  "access-old",
		RefreshToken: "refresh-old",
		ExpiresAt:    now.Add(time.Minute).Unix(),
	})
	rec := &recorder{}
	auth.OnAuthStateChange(rec.listen)

	auth.autoRefresh(context.Background())
	assert.Equal(t, "access-new", auth.Current().AccessToken)

	auth.autoRefresh(context.Background())
	assert.Equal(t, []Event{EventTokenRefreshed}, rec.got())
}
