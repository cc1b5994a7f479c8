// Package middleware содержит HTTP middleware сервиса kigalihub.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/catalog"
	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/model"
	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/repository"
	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/session"
)

type contextKey string

const (
	sessionIDKey contextKey = "sessionID"
	storeKey     contextKey = "sessionStore"
)

const (
	// SessionCookieName содержит подписанный идентификатор сессии браузера.
	SessionCookieName = "kigalihub_session"
	sessionCookieTTL  = 30 * 24 * time.Hour
)

// Sessions описывает хранилища сессий браузеров.
type Sessions interface {
	Get(id string) *session.Store
	Lookup(id string) (*session.Store, bool)
	Drop(id string)
}

// AuthMiddleware связывает запрос с сессией браузера по подписанному cookie.
type AuthMiddleware struct {
	secretKey []byte
	sessions  Sessions
	logger    *zap.Logger
}

// NewAuthMiddleware создаёт AuthMiddleware. Пустой секрет заменяется случайным,
// и cookie, выданные до перезапуска, перестают приниматься.
func NewAuthMiddleware(secret string, sessions Sessions, logger *zap.Logger) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AuthMiddleware{
		secretKey: key,
		sessions:  sessions,
		logger:    logger,
	}
}

// Middleware находит сессию браузера по cookie и помещает её в контекст запроса.
// Запрос без cookie обрабатывается анонимно. Для аутентифицированной сессии
// в контекст добавляются токен доступа и идентификатор пользователя.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		id, ok := a.parseCookie(cookie.Value)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		st := a.sessions.Get(id)
		select {
		case <-st.Ready():
		case <-r.Context().Done():
			return
		}

		next.ServeHTTP(w, r.WithContext(a.bind(r.Context(), id, st)))
	})
}

func (a *AuthMiddleware) bind(ctx context.Context, id string, st *session.Store) context.Context {
	ctx = context.WithValue(ctx, sessionIDKey, id)
	ctx = context.WithValue(ctx, storeKey, st)

	snap := st.Snapshot()
	if snap.User == nil {
		return ctx
	}
	ctx = catalog.WithActor(ctx, snap.User.ID)

	token, err := st.AccessToken(ctx)
	if err != nil {
		a.logger.Warn("session token unavailable", zap.String("session_id", id), zap.Error(err))
		return ctx
	}
	return repository.WithAccessToken(ctx, token)
}

// Issue возвращает сессию текущего запроса. Если её нет, создаёт новую
// и устанавливает cookie; created сообщает, что сессия только что создана.
func (a *AuthMiddleware) Issue(w http.ResponseWriter, r *http.Request) (id string, st *session.Store, created bool) {
	if current, ok := StoreFromContext(r.Context()); ok {
		id, _ = SessionIDFromContext(r.Context())
		return id, current, false
	}

	id = uuid.NewString()
	a.SetSessionCookie(w, id)
	return id, a.sessions.Get(id), true
}

// Forget закрывает сессию браузера и удаляет cookie.
func (a *AuthMiddleware) Forget(w http.ResponseWriter, id string) {
	a.sessions.Drop(id)
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// SetSessionCookie устанавливает cookie для указанного идентификатора сессии.
func (a *AuthMiddleware) SetSessionCookie(w http.ResponseWriter, id string) {
	cookie := &http.Cookie{
		Name:     SessionCookieName,
		Value:    a.sign(id),
		Path:     "/",
		Expires:  time.Now().Add(sessionCookieTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	http.SetCookie(w, cookie)
}

func (a *AuthMiddleware) sign(id string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(id))
	return id + "." + hex.EncodeToString(mac.Sum(nil))
}

func (a *AuthMiddleware) parseCookie(value string) (string, bool) {
	id, signature, ok := strings.Cut(value, ".")
	if !ok {
		return "", false
	}

	_, expected, _ := strings.Cut(a.sign(id), ".")
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return "", false
	}

	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

// StoreFromContext извлекает сессию браузера из контекста запроса.
func StoreFromContext(ctx context.Context) (*session.Store, bool) {
	st, ok := ctx.Value(storeKey).(*session.Store)
	return st, ok && st != nil
}

// SessionIDFromContext извлекает идентификатор сессии браузера из контекста запроса.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionIDKey).(string)
	return id, ok
}

// RequireAuth пропускает только запросы аутентифицированной сессии.
func RequireAuth(next http.Handler) http.Handler {
	return RequireRole()(next)
}

// RequireRole пропускает запросы пользователей с одной из ролей. Без ролей
// достаточно аутентификации. Пока роль определяется, запрос ждёт результата.
func RequireRole(roles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			st, ok := StoreFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", "sign in required")
				return
			}

			snap, err := st.WaitSettled(r.Context())
			if err != nil {
				return
			}
			if snap.State != session.StateAuthenticated {
				writeError(w, http.StatusUnauthorized, "unauthorized", "sign in required")
				return
			}
			if len(roles) > 0 && !snap.HasRole(roles...) {
				writeError(w, http.StatusForbidden, "forbidden", "insufficient role")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: errorDetail{
		Code:      code,
		Message:   message,
		Retryable: status == http.StatusTooManyRequests,
	}})
}
