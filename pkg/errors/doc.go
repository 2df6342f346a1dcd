// Package errors provides structured error handling with error codes for attendance-idm.
//
// Every service returns either a plain error (unexpected failure) or an *Error
// carrying one of a small set of codes. The HTTP layer maps the code to a
// status and renders Message and Details; anything without a code is treated
// as internal and rendered without detail.
//
// # Error Codes
//
//   - ErrCodeNotFound: referenced identity is absent
//   - ErrCodeAlreadyExists: email or code collision, Details["field"] names which
//   - ErrCodeUnauthorized: bad credentials, deliberately without detail
//   - ErrCodeValidationFailed: malformed input, Details maps field to message
//   - ErrCodeForbidden: denied by the access policy
//   - ErrCodeInternal: everything unanticipated
//
// ErrCodeInvalidInput, ErrCodeTokenInvalid and ErrCodeRateLimitExceeded are
// used by the transport layer only.
//
// # Basic Usage
//
//	import apperrors "github.com/tendant/attendance-idm/pkg/errors"
//
//	err := apperrors.NotFound("user", id.String())
//	err := apperrors.AlreadyExists("user", "email", email)
//	err := apperrors.ValidationFailed(map[string]interface{}{
//		"semester": "must be a positive integer",
//	})
//
//	if apperrors.IsCode(err, apperrors.ErrCodeNotFound) {
//		// ...
//	}
//
//	status := apperrors.MapErrorCodeToHTTPStatus(apperrors.GetCode(err))
package errors
