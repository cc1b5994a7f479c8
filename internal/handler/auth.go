package handler

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/middleware"
	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/session"
	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/validation"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName,omitempty"`
}

type signUpResponse struct {
	session.Snapshot
	ConfirmationRequired bool `json:"confirmationRequired"`
}

func (req *credentialsRequest) validate(requireName bool) error {
	req.Email = strings.TrimSpace(req.Email)
	if err := validation.ValidateEmail(req.Email); err != nil {
		return err
	}
	if err := validation.ValidatePassword(req.Password); err != nil {
		return err
	}
	if requireName {
		return validation.RequireString(req.FullName, "full name")
	}
	return nil
}

// SignUp регистрирует пользователя. Если бэкенд требует подтверждения почты,
// сессия остаётся анонимной.
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if err := req.validate(true); err != nil {
		badRequest(w, err.Error())
		return
	}

	id, st, created := h.authMiddleware.Issue(w, r)
	if err := st.SignUp(r.Context(), req.Email, req.Password, strings.TrimSpace(req.FullName)); err != nil {
		if created {
			h.authMiddleware.Forget(w, id)
		}
		h.fail(w, "sign up", err)
		return
	}

	snap, err := st.WaitSettled(r.Context())
	if err != nil {
		h.fail(w, "sign up", err)
		return
	}
	writeData(w, http.StatusOK, signUpResponse{
		Snapshot:             snap,
		ConfirmationRequired: snap.State != session.StateAuthenticated,
	})
}

// SignIn выполняет вход и возвращает состояние сессии после определения роли.
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if err := req.validate(false); err != nil {
		badRequest(w, err.Error())
		return
	}

	id, st, created := h.authMiddleware.Issue(w, r)
	if err := st.SignIn(r.Context(), req.Email, req.Password); err != nil {
		if created {
			h.authMiddleware.Forget(w, id)
		}
		h.fail(w, "sign in", err)
		return
	}

	snap, err := st.WaitSettled(r.Context())
	if err != nil {
		h.fail(w, "sign in", err)
		return
	}
	writeData(w, http.StatusOK, snap)
}

// SignOut завершает сессию. Ошибки отзыва только журналируются.
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	st, ok := middleware.StoreFromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	st.SignOut(context.WithoutCancel(r.Context()))
	if id, ok := middleware.SessionIDFromContext(r.Context()); ok {
		h.authMiddleware.Forget(w, id)
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me возвращает состояние сессии текущего браузера.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	st, ok := middleware.StoreFromContext(r.Context())
	if !ok {
		writeData(w, http.StatusOK, session.Snapshot{State: session.StateAnonymous})
		return
	}
	writeData(w, http.StatusOK, st.Snapshot())
}

type updateMeRequest struct {
	FullName string `json:"fullName"`
}

// UpdateMe изменяет полное имя текущего пользователя.
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	st, ok := middleware.StoreFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, errorDetail{Code: "unauthorized", Message: "sign in required"})
		return
	}

	var req updateMeRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	name := strings.TrimSpace(req.FullName)
	if err := validation.RequireString(name, "full name"); err != nil {
		badRequest(w, err.Error())
		return
	}

	if err := st.UpdateFullName(r.Context(), name); err != nil {
		h.fail(w, "update profile", err)
		return
	}
	h.logger.Info("profile updated", zap.String("user_id", userID(st)))
	writeData(w, http.StatusOK, st.Snapshot())
}

func userID(st *session.Store) string {
	if u := st.Snapshot().User; u != nil {
		return u.ID
	}
	return ""
}
