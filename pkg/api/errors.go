package api

import (
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-chi/render"
	apperrors "github.com/tendant/attendance-idm/pkg/errors"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Timestamp        time.Time              `json:"timestamp"`
	Status           int                    `json:"status"`
	Error            string                 `json:"error"`
	Message          string                 `json:"message"`
	Path             string                 `json:"path"`
	ValidationErrors map[string]string      `json:"validationErrors,omitempty"`
	Details          map[string]interface{} `json:"details,omitempty"`
}

// RenderError writes err as an ErrorResponse. Errors without a code are
// logged and rendered as a bare 500.
func RenderError(w http.ResponseWriter, r *http.Request, err error) {
	resp := ErrorResponse{
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
		Path:      r.URL.Path,
	}

	var verrs validation.Errors
	switch {
	case errors.As(err, &verrs):
		resp.Error = string(apperrors.ErrCodeValidationFailed)
		resp.Message = "validation failed"
		resp.ValidationErrors = flattenValidation(verrs)
	default:
		appErr, ok := apperrors.As(err)
		if !ok || appErr.Code == apperrors.ErrCodeInternal {
			slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "err", err)
			resp.Error = string(apperrors.ErrCodeInternal)
			resp.Message = "internal server error"
			break
		}
		resp.Error = string(appErr.Code)
		resp.Message = appErr.Message
		if appErr.Code == apperrors.ErrCodeValidationFailed {
			resp.ValidationErrors = stringify(appErr.Details)
		} else if len(appErr.Details) > 0 {
			resp.Details = appErr.Details
		}
	}

	resp.Status = apperrors.MapErrorCodeToHTTPStatus(apperrors.ErrorCode(resp.Error))
	if resp.Status == http.StatusTooManyRequests {
		if v, ok := resp.Details["retry_after"].(string); ok && w.Header().Get("Retry-After") == "" {
			w.Header().Set("Retry-After", v)
		}
	}
	render.Status(r, resp.Status)
	render.JSON(w, r, resp)
}

// flattenValidation keeps the first message per field. Nested errors from
// embedded structs are merged into the top level.
func flattenValidation(verrs validation.Errors) map[string]string {
	out := make(map[string]string, len(verrs))
	keys := make([]string, 0, len(verrs))
	for k := range verrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		var nested validation.Errors
		if errors.As(verrs[k], &nested) {
			for nk, nv := range flattenValidation(nested) {
				out[nk] = nv
			}
			continue
		}
		out[k] = verrs[k].Error()
	}
	return out
}

func stringify(details map[string]interface{}) map[string]string {
	if len(details) == 0 {
		return nil
	}
	out := make(map[string]string, len(details))
	for k, v := range details {
		if s, ok := v.(string); ok {
			out[k] = s
			continue
		}
		if e, ok := v.(error); ok {
			out[k] = e.Error()
		}
	}
	return out
}

func renderUnauthorized(w http.ResponseWriter, r *http.Request) {
	RenderError(w, r, apperrors.Unauthorized("authentication required"))
}

func renderNotFound(w http.ResponseWriter, r *http.Request) {
	RenderError(w, r, apperrors.New(apperrors.ErrCodeNotFound, "no route for "+r.Method+" "+r.URL.Path))
}

func renderMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusMethodNotAllowed)
	render.JSON(w, r, ErrorResponse{
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
		Status:    http.StatusMethodNotAllowed,
		Error:     "METHOD_NOT_ALLOWED",
		Message:   "method not allowed",
		Path:      r.URL.Path,
	})
}
