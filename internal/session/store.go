// Package session определяет, кто вошёл в систему и с какой ролью,
// для каждой сессии браузера.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/backend"
	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/model"
	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/repository"
)

// DefaultTimeout ограничивает ожидание первого определения роли.
const DefaultTimeout = 10 * time.Second

// ErrClosed возвращается операциями закрытого хранилища.
var ErrClosed = errors.New("session store closed")

// State описывает стадию аутентификации сессии.
type State string

const (
	StateAnonymous     State = "anonymous"
	StateResolving     State = "resolving"
	StateAuthenticated State = "authenticated"
)

// Authenticator описывает клиент аутентификации бэкенда одной сессии.
type Authenticator interface {
	OnAuthStateChange(fn backend.Listener) (unsubscribe func())
	GetSession(ctx context.Context) (*model.Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error)
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*model.AuthenticatedUser, error)
	SignOut(ctx context.Context) error
	UpdateUser(ctx context.Context, metadata map[string]any) (*model.AuthenticatedUser, error)
	StartAutoRefresh(ctx context.Context)
}

// Resolver создаёт профиль пользователя и определяет его роль.
type Resolver interface {
	EnsureProfile(ctx context.Context, user model.AuthenticatedUser) error
	ResolveRole(ctx context.Context, userID string) (model.Role, error)
	UpdateFullName(ctx context.Context, userID, fullName string) error
}

// Options задаёт параметры хранилища сессии.
type Options struct {
	// Timeout ограничивает первое определение роли и каждый запрос роли.
	Timeout time.Duration
	Logger  *zap.Logger
}

// Snapshot описывает согласованное состояние сессии в один момент времени.
type Snapshot struct {
	User    *model.AuthenticatedUser `json:"user"`
	Session *model.Session           `json:"-"`
	Role    *model.Role              `json:"role"`
	Loading bool                     `json:"loading"`
	State   State                    `json:"state"`
}

// HasRole сообщает, аутентифицирован ли пользователь с одной из ролей.
func (s Snapshot) HasRole(roles ...model.Role) bool {
	if s.State != StateAuthenticated || s.Role == nil {
		return false
	}
	for _, r := range roles {
		if *s.Role == r {
			return true
		}
	}
	return false
}

// Store хранит пользователя, сессию и роль одной сессии браузера.
// Состояние изменяет только сам Store в ответ на уведомления бэкенда.
type Store struct {
	auth    Authenticator
	dir     Resolver
	timeout time.Duration
	logger  *zap.Logger

	mu          sync.Mutex
	user        *model.AuthenticatedUser
	session     *model.Session
	role        *model.Role
	loading     bool
	state       State
	gen         uint64
	started     bool
	closed      bool
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	timer       *time.Timer
	ready       chan struct{}
	readyDone   bool
	changed     chan struct{}
}

// NewStore создаёт хранилище сессии. До вызова Start оно находится в состоянии загрузки.
func NewStore(auth Authenticator, dir Resolver, opts Options) *Store {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Store{
		auth:    auth,
		dir:     dir,
		timeout: opts.Timeout,
		logger:  opts.Logger,
		loading: true,
		state:   StateAnonymous,
		ready:   make(chan struct{}),
		changed: make(chan struct{}),
	}
}

// Start подписывается на уведомления бэкенда и восстанавливает сохранённую сессию.
// Подписка выполняется до запроса сессии, чтобы не пропустить уведомления.
func (s *Store) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.closed {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	runCtx := s.ctx
	s.mu.Unlock()

	unsubscribe := s.auth.OnAuthStateChange(s.onAuthEvent)
	timer := time.AfterFunc(s.timeout, s.onTimeout)

	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.timer = timer
	s.mu.Unlock()

	s.auth.StartAutoRefresh(runCtx)
	go s.restore(runCtx)
}

// Close отменяет выполняющиеся запросы, отписывается от уведомлений и останавливает таймеры.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancel, unsubscribe, timer := s.cancel, s.unsubscribe, s.timer
	s.loading = false
	s.closeReadyLocked()
	s.notifyLocked()
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if unsubscribe != nil {
		unsubscribe()
	}
	if timer != nil {
		timer.Stop()
	}
}

// Snapshot возвращает текущее состояние.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{Loading: s.loading, State: s.state}
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	if s.session != nil {
		c := *s.session
		snap.Session = &c
	}
	if s.role != nil {
		r := *s.role
		snap.Role = &r
	}
	return snap
}

// Ready закрывается, когда завершается первая загрузка.
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// WaitSettled ждёт окончания загрузки и определения роли.
func (s *Store) WaitSettled(ctx context.Context) (Snapshot, error) {
	for {
		s.mu.Lock()
		if s.closed || (!s.loading && s.state != StateResolving) {
			snap := s.snapshotLocked()
			s.mu.Unlock()
			return snap, nil
		}
		ch := s.changed
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return s.Snapshot(), ctx.Err()
		case <-ch:
		}
	}
}

// SignIn передаёт учётные данные бэкенду. Состояние изменится по уведомлению SIGNED_IN.
func (s *Store) SignIn(ctx context.Context, email, password string) error {
	if s.isClosed() {
		return ErrClosed
	}
	_, err := s.auth.SignInWithPassword(ctx, email, password)
	return err
}

// SignUp регистрирует пользователя, сохраняя полное имя в метаданных.
func (s *Store) SignUp(ctx context.Context, email, password, fullName string) error {
	if s.isClosed() {
		return ErrClosed
	}
	_, err := s.auth.SignUp(ctx, email, password, map[string]any{"full_name": fullName})
	return err
}

// SignOut отзывает сессию. Роль сбрасывается сразу, ошибки только журналируются.
func (s *Store) SignOut(ctx context.Context) {
	s.mu.Lock()
	s.role = nil
	s.notifyLocked()
	s.mu.Unlock()

	if err := s.auth.SignOut(ctx); err != nil {
		s.logger.Warn("sign out failed", zap.Error(err))
	}
}

// UpdateFullName изменяет имя пользователя в метаданных и профиле.
func (s *Store) UpdateFullName(ctx context.Context, fullName string) error {
	user, err := s.auth.UpdateUser(ctx, map[string]any{"full_name": fullName})
	if err != nil {
		return err
	}
	if err := s.dir.UpdateFullName(s.withToken(ctx), user.ID, fullName); err != nil {
		s.logger.Warn("failed to update profile", zap.String("user_id", user.ID), zap.Error(err))
	}
	return nil
}

// AccessToken возвращает действующий токен доступа, обновляя истекающий.
func (s *Store) AccessToken(ctx context.Context) (string, error) {
	sess, err := s.auth.GetSession(ctx)
	if err != nil {
		return "", err
	}
	if sess == nil {
		return "", backend.ErrNoSession
	}
	return sess.AccessToken, nil
}

func (s *Store) withToken(ctx context.Context) context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return ctx
	}
	return repository.WithAccessToken(ctx, s.session.AccessToken)
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// restore восстанавливает сохранённую сессию. Загрузка завершается при любом исходе.
func (s *Store) restore(ctx context.Context) {
	defer s.finishLoading()

	sess, err := s.auth.GetSession(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("failed to restore session", zap.Error(err))
		}
		return
	}
	if sess == nil {
		return
	}

	gen, user, ok := s.begin(sess)
	if !ok {
		return
	}
	s.resolve(ctx, sess.AccessToken, user, gen)
}

func (s *Store) onAuthEvent(event backend.Event, sess *model.Session) {
	switch event {
	case backend.EventSignedIn:
		if sess == nil {
			return
		}
		gen, user, ok := s.begin(sess)
		if !ok {
			return
		}
		ctx := s.runContext()
		go func() {
			s.resolve(ctx, sess.AccessToken, user, gen)
			s.finishLoading()
		}()

	case backend.EventSignedOut:
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return
		}
		s.gen++
		s.user, s.session, s.role = nil, nil, nil
		s.state = StateAnonymous
		s.loading = false
		s.closeReadyLocked()
		s.notifyLocked()

	case backend.EventTokenRefreshed, backend.EventUserUpdated:
		if sess == nil {
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed || s.user == nil || s.user.ID != sess.User.ID {
			return
		}
		c := *sess
		u := c.User
		s.session, s.user = &c, &u
		s.notifyLocked()
	}
}

// begin фиксирует нового пользователя и переводит сессию в состояние определения роли.
func (s *Store) begin(sess *model.Session) (uint64, model.AuthenticatedUser, bool) {
	c := *sess
	if c.User.ID == "" {
		if claims, err := backend.ParseAccessToken(c.AccessToken); err == nil {
			c.User.ID = claims.Subject
			if c.User.Email == "" {
				c.User.Email = claims.Email
			}
		}
	}
	u := c.User

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, u, false
	}
	if s.user == nil || s.user.ID != u.ID {
		s.role = nil
	}
	s.gen++
	s.user, s.session = &u, &c
	s.state = StateResolving
	s.notifyLocked()
	return s.gen, u, true
}

// resolve создаёт профиль и определяет роль. Ошибка профиля не мешает входу,
// ошибка определения роли даёт роль client. Результат для пользователя,
// который уже не текущий, отбрасывается.
func (s *Store) resolve(ctx context.Context, token string, user model.AuthenticatedUser, gen uint64) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ctx = repository.WithAccessToken(ctx, token)

	if err := s.dir.EnsureProfile(ctx, user); err != nil {
		s.logger.Warn("failed to ensure profile", zap.String("user_id", user.ID), zap.Error(err))
	}

	role, err := s.dir.ResolveRole(ctx, user.ID)
	if err != nil || !role.Valid() {
		s.logger.Warn("role resolution failed, falling back to client", zap.String("user_id", user.ID), zap.Error(err))
		role = model.DefaultRole
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.gen != gen {
		s.logger.Debug("discarding late role result", zap.String("user_id", user.ID))
		return
	}
	s.role = &role
	s.state = StateAuthenticated
	s.notifyLocked()
}

func (s *Store) finishLoading() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.loading {
		return
	}
	s.loading = false
	s.closeReadyLocked()
	s.notifyLocked()
}

// onTimeout снимает загрузку, если ни восстановление, ни уведомление не успели.
// Пользователь без роли получает client, без пользователя сессия анонимна.
func (s *Store) onTimeout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || (!s.loading && s.state != StateResolving) {
		return
	}

	s.logger.Warn("session resolution timed out", zap.Duration("timeout", s.timeout))
	s.loading = false
	if s.state == StateResolving {
		if s.user == nil {
			s.state = StateAnonymous
		} else {
			if s.role == nil {
				role := model.DefaultRole
				s.role = &role
			}
			s.state = StateAuthenticated
		}
	}
	s.closeReadyLocked()
	s.notifyLocked()
}

func (s *Store) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

func (s *Store) closeReadyLocked() {
	if !s.readyDone {
		s.readyDone = true
		close(s.ready)
	}
}

func (s *Store) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}
