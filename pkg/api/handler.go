package api

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/attendance-idm/pkg/auth"
	"github.com/tendant/attendance-idm/pkg/client"
	"github.com/tendant/attendance-idm/pkg/directory"
	apperrors "github.com/tendant/attendance-idm/pkg/errors"
	"github.com/tendant/attendance-idm/pkg/identity"
)

// Handler serves the auth and user endpoints
type Handler struct {
	authService      *auth.Service
	directoryService *directory.Service
	secureCookie     bool
}

// HandlerOption configures Handler
type HandlerOption func(*Handler)

// WithSecureCookie marks the logout cookie Secure
func WithSecureCookie(secure bool) HandlerOption {
	return func(h *Handler) {
		h.secureCookie = secure
	}
}

// NewHandler creates a Handler
func NewHandler(authService *auth.Service, directoryService *directory.Service, opts ...HandlerOption) *Handler {
	h := &Handler{
		authService:      authService,
		directoryService: directoryService,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type validatable interface {
	Validate() error
}

// decode reads a JSON body into v and validates it
func decode(r *http.Request, v validatable) error {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		return apperrors.InvalidInput("body", "malformed JSON")
	}
	return v.Validate()
}

func respond(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

// Register handles POST /auth/register. An authenticated admin may assign
// any role.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decode(r, &req); err != nil {
		RenderError(w, r, err)
		return
	}

	result, err := h.authService.Register(r.Context(), client.CallerFrom(r.Context()), req.toService())
	if err != nil {
		RenderError(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, result)
}

// Login handles POST /auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decode(r, &req); err != nil {
		RenderError(w, r, err)
		return
	}

	result, err := h.authService.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		RenderError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, result)
}

// Refresh handles POST /auth/refresh
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := decode(r, &req); err != nil {
		RenderError(w, r, err)
		return
	}

	result, err := h.authService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		RenderError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, result)
}

// Logout handles POST /auth/logout. Tokens are stateless, so this only
// clears the access token cookie.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     client.ACCESS_TOKEN_NAME,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	respond(w, r, http.StatusOK, MessageResponse{Message: "logged out"})
}

// Me handles GET /users/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	view, err := h.directoryService.GetSelf(r.Context(), client.CallerFrom(r.Context()))
	if err != nil {
		RenderError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, view)
}

// UpdateMe handles PUT /users/me
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var req UpdateUserRequest
	if err := decode(r, &req); err != nil {
		RenderError(w, r, err)
		return
	}

	view, err := h.directoryService.UpdateSelf(r.Context(), client.CallerFrom(r.Context()), req.toService())
	if err != nil {
		RenderError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, view)
}

// ListUsers handles GET /users?role=&status=&q=&page=&size=
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := directory.ListQuery{NameContains: strings.TrimSpace(query.Get("q"))}
	if v := query.Get("role"); v != "" {
		role, err := identity.ParseRole(v)
		if err != nil {
			RenderError(w, r, apperrors.InvalidInput("role", v))
			return
		}
		q.Role = &role
	}
	if v := query.Get("status"); v != "" {
		status, err := identity.ParseStatus(v)
		if err != nil {
			RenderError(w, r, apperrors.InvalidInput("status", v))
			return
		}
		q.Status = &status
	}
	for _, f := range []struct {
		name string
		dst  **time.Time
	}{
		{"not_logged_in_since", &q.NotLoggedInSince},
		{"created_from", &q.CreatedFrom},
		{"created_to", &q.CreatedTo},
	} {
		v := query.Get(f.name)
		if v == "" {
			continue
		}
		t, err := parseDate(v)
		if err != nil {
			RenderError(w, r, apperrors.InvalidInput(f.name, v))
			return
		}
		*f.dst = &t
	}
	h.list(w, r, q)
}

// ListByRole handles GET /users/role/{role}
func (h *Handler) ListByRole(w http.ResponseWriter, r *http.Request) {
	v := chi.URLParam(r, "role")
	role, err := identity.ParseRole(v)
	if err != nil {
		RenderError(w, r, apperrors.InvalidInput("role", v))
		return
	}
	h.list(w, r, directory.ListQuery{Role: &role})
}

// ListByStatus handles GET /users/status/{status}
func (h *Handler) ListByStatus(w http.ResponseWriter, r *http.Request) {
	v := chi.URLParam(r, "status")
	status, err := identity.ParseStatus(v)
	if err != nil {
		RenderError(w, r, apperrors.InvalidInput("status", v))
		return
	}
	h.list(w, r, directory.ListQuery{Status: &status})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, q directory.ListQuery) {
	page, err := parsePage(r)
	if err != nil {
		RenderError(w, r, err)
		return
	}

	result, err := h.directoryService.List(r.Context(), client.CallerFrom(r.Context()), q, page)
	if err != nil {
		RenderError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, result)
}

// parsePage reads zero-based page and size query parameters
func parsePage(r *http.Request) (identity.Page, error) {
	var page identity.Page
	query := r.URL.Query()
	if v := query.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return page, apperrors.InvalidInput("page", "must be a non-negative integer")
		}
		page.Number = n
	}
	if v := query.Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return page, apperrors.InvalidInput("size", "must be a positive integer")
		}
		page.Size = n
	}
	return page.Normalize(), nil
}

// Stats handles GET /users/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.directoryService.Stats(r.Context(), client.CallerFrom(r.Context()))
	if err != nil {
		RenderError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, stats)
}

// GetUser handles GET /users/{id}
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	view, err := h.directoryService.GetByID(r.Context(), client.CallerFrom(r.Context()), id)
	if err != nil {
		RenderError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, view)
}

// GetUserByCode handles GET /users/code/{code}
func (h *Handler) GetUserByCode(w http.ResponseWriter, r *http.Request) {
	code, ok := pathParam(w, r, "code")
	if !ok {
		return
	}
	view, err := h.directoryService.GetByCode(r.Context(), client.CallerFrom(r.Context()), code)
	if err != nil {
		RenderError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, view)
}

// GetUserByEmail handles GET /users/email/{email}
func (h *Handler) GetUserByEmail(w http.ResponseWriter, r *http.Request) {
	email, ok := pathParam(w, r, "email")
	if !ok {
		return
	}
	view, err := h.directoryService.GetByEmail(r.Context(), client.CallerFrom(r.Context()), email)
	if err != nil {
		RenderError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, view)
}

// UpdateUser handles PUT /users/{id}
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	var req UpdateUserRequest
	if err := decode(r, &req); err != nil {
		RenderError(w, r, err)
		return
	}

	view, err := h.directoryService.Update(r.Context(), client.CallerFrom(r.Context()), id, req.toService())
	if err != nil {
		RenderError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, view)
}

// DeactivateUser handles DELETE /users/{id}
func (h *Handler) DeactivateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	view, err := h.directoryService.Deactivate(r.Context(), client.CallerFrom(r.Context()), id)
	if err != nil {
		RenderError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, view)
}

// ActivateUser handles POST /users/{id}/activate
func (h *Handler) ActivateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	view, err := h.directoryService.Reactivate(r.Context(), client.CallerFrom(r.Context()), id)
	if err != nil {
		RenderError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, view)
}

// DeleteUser handles DELETE /users/{id}/permanent
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	if err := h.directoryService.Delete(r.Context(), client.CallerFrom(r.Context()), id); err != nil {
		RenderError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EmailExists handles GET /users/exists/email/{email}
func (h *Handler) EmailExists(w http.ResponseWriter, r *http.Request) {
	email, ok := pathParam(w, r, "email")
	if !ok {
		return
	}
	exists, err := h.directoryService.ExistsByEmail(r.Context(), email)
	if err != nil {
		RenderError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, ExistsResponse{Exists: exists})
}

// CodeExists handles GET /users/exists/code/{code}
func (h *Handler) CodeExists(w http.ResponseWriter, r *http.Request) {
	code, ok := pathParam(w, r, "code")
	if !ok {
		return
	}
	exists, err := h.directoryService.ExistsByCode(r.Context(), code)
	if err != nil {
		RenderError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, ExistsResponse{Exists: exists})
}

// pathParam returns the decoded URL parameter. chi hands back the raw
// segment when the request path carries escapes such as %40.
func pathParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	raw := chi.URLParam(r, name)
	v, err := url.PathUnescape(raw)
	if err != nil {
		RenderError(w, r, apperrors.InvalidInput(name, "malformed escape"))
		return "", false
	}
	return v, true
}

func userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		RenderError(w, r, apperrors.InvalidInput("id", "not a valid UUID"))
		return uuid.Nil, false
	}
	return id, true
}
