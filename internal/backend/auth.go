package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/model"
)

// Event описывает вид уведомления об изменении состояния аутентификации.
type Event string

const (
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
	EventUserUpdated    Event = "USER_UPDATED"
)

// Listener получает уведомления об изменении состояния аутентификации.
// При выходе session равна nil.
type Listener func(event Event, session *model.Session)

// SessionStorage сохраняет сессию между перезапусками процесса.
// Load возвращает nil без ошибки, если сессии нет.
type SessionStorage interface {
	Load(ctx context.Context, key string) (*model.Session, error)
	Save(ctx context.Context, key string, session *model.Session) error
	Delete(ctx context.Context, key string) error
}

const (
	// expiryMargin: сессия, истекающая раньше, обновляется при GetSession.
	expiryMargin = 10 * time.Second

	autoRefreshTick      = 30 * time.Second
	autoRefreshThreshold = 3 * autoRefreshTick
)

// Auth хранит сессию одного пользователя и рассылает уведомления о её изменениях.
type Auth struct {
	client  *Client
	storage SessionStorage
	key     string
	logger  *zap.Logger
	now     func() time.Time

	mu        sync.Mutex
	session   *model.Session
	loaded    bool
	listeners []listenerEntry
	nextID    int

	refreshMu sync.Mutex
}

type listenerEntry struct {
	id int
	fn Listener
}

// NewAuth создаёт клиент аутентификации. Сессия сохраняется в storage
// под ключом key; при storage == nil сессия живёт только в памяти.
func (c *Client) NewAuth(storage SessionStorage, key string) *Auth {
	return &Auth{
		client:  c,
		storage: storage,
		key:     key,
		logger:  c.logger.With(zap.String("component", "auth")),
		now:     time.Now,
	}
}

// OnAuthStateChange регистрирует слушателя и возвращает функцию отписки.
// Слушатели вызываются синхронно в порядке регистрации.
func (a *Auth) OnAuthStateChange(fn Listener) (unsubscribe func()) {
	a.mu.Lock()
	a.nextID++
	id := a.nextID
	a.listeners = append(a.listeners, listenerEntry{id: id, fn: fn})
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			defer a.mu.Unlock()
			for i, l := range a.listeners {
				if l.id == id {
					a.listeners = append(a.listeners[:i:i], a.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

func (a *Auth) emit(event Event, session *model.Session) {
	a.mu.Lock()
	listeners := make([]listenerEntry, len(a.listeners))
	copy(listeners, a.listeners)
	a.mu.Unlock()

	for _, l := range listeners {
		l.fn(event, session)
	}
}

// Current возвращает сессию из памяти без обращения к бэкенду.
func (a *Auth) Current() *model.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

func (a *Auth) setSession(ctx context.Context, s *model.Session) {
	if s != nil && s.ExpiresAt == 0 && s.ExpiresIn > 0 {
		s.ExpiresAt = a.now().Unix() + s.ExpiresIn
	}

	a.mu.Lock()
	a.session = s
	a.loaded = true
	a.mu.Unlock()

	if a.storage == nil {
		return
	}

	var err error
	if s == nil {
		err = a.storage.Delete(ctx, a.key)
	} else {
		err = a.storage.Save(ctx, a.key, s)
	}
	if err != nil {
		a.logger.Warn("failed to persist session", zap.Error(err))
	}
}

// SignInWithPassword проверяет учётные данные и открывает сессию.
func (a *Auth) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	raw, err := a.client.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"password"}},
		body:   map[string]string{"email": email, "password": password},
	})
	if err != nil {
		return nil, credentialsError(err)
	}

	var s model.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if s.AccessToken == "" {
		return nil, errors.New("backend returned no access token")
	}

	a.setSession(ctx, &s)
	a.emit(EventSignedIn, &s)
	return &s, nil
}

// SignUp регистрирует пользователя с метаданными. Если бэкенд сразу
// открывает сессию, слушатели получают SIGNED_IN.
func (a *Auth) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*model.AuthenticatedUser, error) {
	raw, err := a.client.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/signup",
		body: map[string]any{
			"email":    email,
			"password": password,
			"data":     metadata,
		},
	})
	if err != nil {
		return nil, err
	}

	// При подтверждении почты бэкенд возвращает пользователя, иначе сессию.
	var res struct {
		model.Session
		ID       string         `json:"id"`
		Email    string         `json:"email"`
		Metadata map[string]any `json:"user_metadata"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode signup: %w", err)
	}

	if res.AccessToken == "" {
		return &model.AuthenticatedUser{ID: res.ID, Email: res.Email, Metadata: res.Metadata}, nil
	}

	s := res.Session
	a.setSession(ctx, &s)
	a.emit(EventSignedIn, &s)
	return &s.User, nil
}

// SignOut отзывает сессию на бэкенде. Локальная сессия удаляется
// и слушатели получают SIGNED_OUT даже при ошибке отзыва.
func (a *Auth) SignOut(ctx context.Context) error {
	cur := a.Current()

	var err error
	if cur != nil {
		_, err = a.client.do(ctx, request{
			method: http.MethodPost,
			path:   "/auth/v1/logout",
			token:  cur.AccessToken,
		})
	}

	a.setSession(ctx, nil)
	a.emit(EventSignedOut, nil)

	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// GetSession возвращает текущую сессию, загружая её из хранилища при первом
// обращении. Истекающая сессия обновляется. Без сессии возвращает nil.
func (a *Auth) GetSession(ctx context.Context) (*model.Session, error) {
	cur, err := a.load(ctx)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, nil
	}
	if !cur.Expired(a.now(), expiryMargin) {
		return cur, nil
	}
	return a.refreshIf(ctx, func(s *model.Session) bool {
		return s.Expired(a.now(), expiryMargin)
	})
}

func (a *Auth) load(ctx context.Context) (*model.Session, error) {
	a.mu.Lock()
	if a.loaded || a.storage == nil {
		s := a.session
		a.mu.Unlock()
		return s, nil
	}
	a.mu.Unlock()

	s, err := a.storage.Load(ctx, a.key)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.loaded {
		a.session = s
		a.loaded = true
	}
	return a.session, nil
}

// RefreshSession обменивает refresh-токен на новую сессию.
func (a *Auth) RefreshSession(ctx context.Context) (*model.Session, error) {
	if _, err := a.load(ctx); err != nil {
		return nil, err
	}
	return a.refreshIf(ctx, func(*model.Session) bool { return true })
}

// refreshIf обновляет сессию, если need для неё истинно. Параллельные вызовы
// выполняются по очереди: повторная проверка отсекает лишние обновления.
func (a *Auth) refreshIf(ctx context.Context, need func(*model.Session) bool) (*model.Session, error) {
	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()

	cur := a.Current()
	if cur == nil || cur.RefreshToken == "" {
		return nil, ErrNoSession
	}
	if !need(cur) {
		return cur, nil
	}

	raw, err := a.client.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"refresh_token"}},
		body:   map[string]string{"refresh_token": cur.RefreshToken},
	})
	if err != nil {
		err = credentialsError(err)
		if errors.Is(err, ErrInvalidCredentials) {
			a.setSession(ctx, nil)
			a.emit(EventSignedOut, nil)
		}
		return nil, fmt.Errorf("refresh session: %w", err)
	}

	var s model.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}

	a.setSession(ctx, &s)
	a.emit(EventTokenRefreshed, &s)
	return &s, nil
}

// UpdateUser изменяет метаданные пользователя и рассылает USER_UPDATED.
func (a *Auth) UpdateUser(ctx context.Context, metadata map[string]any) (*model.AuthenticatedUser, error) {
	cur, err := a.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, ErrNoSession
	}

	raw, err := a.client.do(ctx, request{
		method: http.MethodPut,
		path:   "/auth/v1/user",
		token:  cur.AccessToken,
		body:   map[string]any{"data": metadata},
	})
	if err != nil {
		return nil, err
	}

	var user model.AuthenticatedUser
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}

	s := *cur
	s.User = user
	a.setSession(ctx, &s)
	a.emit(EventUserUpdated, &s)
	return &user, nil
}

// StartAutoRefresh запускает фоновое обновление сессии до её истечения.
// Обновление прекращается с отменой ctx.
func (a *Auth) StartAutoRefresh(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(autoRefreshTick)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.autoRefresh(ctx)
			}
		}
	}()
}

func (a *Auth) autoRefresh(ctx context.Context) {
	cur := a.Current()
	if cur == nil || !cur.Expired(a.now(), autoRefreshThreshold) {
		return
	}

	_, err := a.refreshIf(ctx, func(s *model.Session) bool {
		return s.Expired(a.now(), autoRefreshThreshold)
	})
	if err != nil && ctx.Err() == nil {
		a.logger.Warn("auto refresh failed", zap.Error(err))
	}
}

func credentialsError(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && (apiErr.Status == http.StatusBadRequest || apiErr.Status == http.StatusUnauthorized) {
		return fmt.Errorf("%w: %s", ErrInvalidCredentials, apiErr.Message)
	}
	return err
}
