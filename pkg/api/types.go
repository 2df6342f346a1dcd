package api

import (
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/tendant/attendance-idm/pkg/auth"
	"github.com/tendant/attendance-idm/pkg/directory"
	"github.com/tendant/attendance-idm/pkg/identity"
)

const dateLayout = "2006-01-02"

// ProfileRequest carries optional profile fields. birth_date accepts a
// calendar date or an RFC 3339 timestamp.
type ProfileRequest struct {
	Phone                 *string `json:"phone,omitempty"`
	Address               *string `json:"address,omitempty"`
	BirthDate             *string `json:"birth_date,omitempty"`
	ProfilePictureURL     *string `json:"profile_picture_url,omitempty"`
	EmergencyContactName  *string `json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone *string `json:"emergency_contact_phone,omitempty"`
	AcademicProgram       *string `json:"academic_program,omitempty"`
	Semester              *int    `json:"semester,omitempty"`
}

func (p ProfileRequest) rules(target *ProfileRequest) []*validation.FieldRules {
	return []*validation.FieldRules{
		validation.Field(&target.BirthDate, validation.By(func(v interface{}) error {
			s, _ := v.(*string)
			if s == nil {
				return nil
			}
			_, err := parseDate(*s)
			return err
		})),
		validation.Field(&target.ProfilePictureURL, validation.NilOrNotEmpty, is.URL),
	}
}

// ToFields converts the request. Call after validation.
func (p ProfileRequest) ToFields() identity.ProfileFields {
	fields := identity.ProfileFields{
		Phone:                 p.Phone,
		Address:               p.Address,
		ProfilePictureURL:     p.ProfilePictureURL,
		EmergencyContactName:  p.EmergencyContactName,
		EmergencyContactPhone: p.EmergencyContactPhone,
		AcademicProgram:       p.AcademicProgram,
		Semester:              p.Semester,
	}
	if p.BirthDate != nil {
		if t, err := parseDate(*p.BirthDate); err == nil {
			fields.BirthDate = &t
		}
	}
	return fields
}

// parseDate accepts YYYY-MM-DD or an RFC 3339 timestamp
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, errors.New("must be a date (YYYY-MM-DD)")
	}
	return t.UTC(), nil
}

// RegisterRequest is the body of POST /auth/register. Only presence and
// parseability are checked here; the auth service owns the field rules.
type RegisterRequest struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
	ProfileRequest
}

// Validate runs validation rules
func (r RegisterRequest) Validate() error {
	rules := []*validation.FieldRules{
		validation.Field(&r.Code, validation.Required),
		validation.Field(&r.Name, validation.Required),
		validation.Field(&r.Email, validation.Required),
		validation.Field(&r.Password, validation.Required),
	}
	return validation.ValidateStruct(&r, append(rules, r.ProfileRequest.rules(&r.ProfileRequest)...)...)
}

func (r RegisterRequest) toService() auth.RegisterRequest {
	return auth.RegisterRequest{
		Code:     r.Code,
		Name:     r.Name,
		Email:    r.Email,
		Password: r.Password,
		Role:     r.Role,
		Profile:  r.ProfileRequest.ToFields(),
	}
}

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate runs validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

// RefreshRequest is the body of POST /auth/refresh
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Validate runs validation rules
func (r RefreshRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Required),
	)
}

// UpdateUserRequest is the body of PUT /users/{id} and PUT /users/me.
// Omitted fields are left unchanged.
type UpdateUserRequest struct {
	Name     *string `json:"name,omitempty"`
	Password *string `json:"password,omitempty"`
	Role     *string `json:"role,omitempty"`
	ProfileRequest
}

// Validate runs validation rules
func (r UpdateUserRequest) Validate() error {
	rules := []*validation.FieldRules{
		validation.Field(&r.Name, validation.NilOrNotEmpty),
		validation.Field(&r.Password, validation.NilOrNotEmpty),
		validation.Field(&r.Role, validation.NilOrNotEmpty),
	}
	return validation.ValidateStruct(&r, append(rules, r.ProfileRequest.rules(&r.ProfileRequest)...)...)
}

func (r UpdateUserRequest) toService() directory.UpdateRequest {
	return directory.UpdateRequest{
		Name:     r.Name,
		Password: r.Password,
		Role:     r.Role,
		Profile:  r.ProfileRequest.ToFields(),
	}
}

// MessageResponse is a plain acknowledgement
type MessageResponse struct {
	Message string `json:"message"`
}

// ExistsResponse answers the public existence checks
type ExistsResponse struct {
	Exists bool `json:"exists"`
}
