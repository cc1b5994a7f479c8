// Package handler содержит HTTP-обработчики API сервиса kigalihub.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/backend"
	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/catalog"
	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/finance"
	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/media"
	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/middleware"
	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/repository"
	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/session"
	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/validation"
)

// maxJSONBody ограничивает тело JSON-запроса.
const maxJSONBody = 1 << 20

// Aggregator строит финансовую сводку за период.
type Aggregator interface {
	Refresh(ctx context.Context, r finance.Range) (finance.Report, error)
}

// Uploader проверяет и загружает файлы в бакеты хранилища.
type Uploader interface {
	UploadAll(ctx context.Context, bucket media.Bucket, files []media.File) ([]string, error)
}

// Handler реализует HTTP-обработчики API сервиса kigalihub.
type Handler struct {
	catalog        *catalog.Catalog
	finance        Aggregator
	media          Uploader
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	authLimiter    *middleware.RateLimiter
	submitLimiter  *middleware.RateLimiter
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(c *catalog.Catalog, agg Aggregator, up Uploader, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		catalog:        c,
		finance:        agg,
		media:          up,
		logger:         logger,
		authMiddleware: auth,
		authLimiter:    middleware.NewRateLimiter(10, 5),
		submitLimiter:  middleware.NewRateLimiter(5, 3),
	}
}

type dataBody struct {
	Data  any          `json:"data"`
	Error *errorDetail `json:"error,omitempty"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Retryable bool              `json:"retryable,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, dataBody{Data: data})
}

func writeError(w http.ResponseWriter, status int, detail errorDetail) {
	writeJSON(w, status, errorBody{Error: detail})
}

func badRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, errorDetail{Code: "bad_request", Message: message})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxJSONBody))
	return dec.Decode(v)
}

// fail сообщает клиенту об ошибке операции op. Внутренние подробности
// журналируются и в ответ не попадают.
func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	status, detail := h.classify(op, err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", zap.Error(err))
	} else {
		h.logger.Debug(op+" rejected", zap.Error(err))
	}
	writeError(w, status, detail)
}

func (h *Handler) classify(op string, err error) (int, errorDetail) {
	var verr *validation.Error
	var apiErr *backend.APIError

	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity, errorDetail{Code: "validation_failed", Message: verr.Error(), Fields: verr.Fields}
	case errors.Is(err, catalog.ErrValidation),
		errors.Is(err, media.ErrUnsupportedType),
		errors.Is(err, media.ErrTooLarge),
		errors.Is(err, media.ErrEmpty):
		return http.StatusUnprocessableEntity, errorDetail{Code: "validation_failed", Message: err.Error()}
	case errors.Is(err, finance.ErrUnknownRange), errors.Is(err, media.ErrUnknownBucket):
		return http.StatusBadRequest, errorDetail{Code: "bad_request", Message: err.Error()}
	case errors.Is(err, backend.ErrInvalidCredentials):
		return http.StatusUnauthorized, errorDetail{Code: "invalid_credentials", Message: "invalid email or password"}
	case errors.Is(err, backend.ErrNoSession):
		return http.StatusUnauthorized, errorDetail{Code: "unauthorized", Message: "sign in required"}
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, errorDetail{Code: "not_found", Message: "record not found"}
	case errors.Is(err, repository.ErrDuplicate):
		return http.StatusConflict, errorDetail{Code: "conflict", Message: op + ": record already exists"}
	case errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable, errorDetail{Code: "session_closed", Message: "session expired, try again", Retryable: true}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, errorDetail{Code: "timeout", Message: op + ": backend timed out", Retryable: true}
	case errors.As(err, &apiErr) && !apiErr.Retryable():
		status := http.StatusBadRequest
		switch apiErr.Status {
		case http.StatusUnauthorized, http.StatusForbidden:
			status = http.StatusForbidden
		case http.StatusConflict:
			status = http.StatusConflict
		}
		return status, errorDetail{Code: "rejected", Message: op + ": " + apiErr.Message}
	}
	return http.StatusBadGateway, errorDetail{Code: "backend_unavailable", Message: op + " failed, please retry", Retryable: true}
}
