package user

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-account-go/internal/auth"
)

const maxBodyBytes = 1 << 20

// Handler exposes HTTP endpoints for auth and profile operations.
type Handler struct {
	svc    *UserService
	logger *zap.SugaredLogger
}

func NewHandler(svc *UserService, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Signup handles POST /auth/signup.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupInput
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.Signup(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, res)
}

// Login handles POST /auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginInput
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.Login(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// Get handles GET /users/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Profile(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// Me handles GET /users/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := h.subject(w, r)
	if !ok {
		return
	}
	p, err := h.svc.Profile(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"user": p})
}

// UpdateMe handles PATCH /users/me.
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	id, ok := h.subject(w, r)
	if !ok {
		return
	}
	var req UpdateInput
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.svc.UpdateProfile(r.Context(), id, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"message": "Profile updated successfully", "user": p})
}

// DeleteMe handles DELETE /users/me.
func (h *Handler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	id, ok := h.subject(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteAccount(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "Account deleted successfully"})
}

// subject reads the id attached by auth.Authenticate.
func (h *Handler) subject(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := auth.SubjectFromContext(r.Context())
	if !ok {
		h.logger.Errorw("protected route reached without subject", "path", r.URL.Path)
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	return id, ok
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	// unknown keys are ignored; only the input struct's fields reach the service
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		h.logger.Debugw("invalid payload", "path", r.URL.Path, "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return false
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return false
	}
	return true
}

// writeError maps workflow errors to responses. Internal details stay in logs.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		h.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Validation failed", "fields": verr.Fields})
	case errors.Is(err, ErrDuplicateEmail):
		h.writeJSON(w, http.StatusConflict, map[string]string{"error": "Email already in use"})
	case errors.Is(err, ErrInvalidCredentials):
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
	case errors.Is(err, ErrUserNotFound):
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "User not found"})
	default:
		h.logger.Errorw("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
