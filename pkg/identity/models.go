package identity

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is the access category of a user
type Role string

const (
	RoleStudent   Role = "STUDENT"
	RoleProfessor Role = "PROFESSOR"
	RoleAdmin     Role = "ADMIN"
)

// DefaultRole is assigned at registration when no role is requested
const DefaultRole = RoleStudent

// Roles lists every valid role
var Roles = []Role{RoleStudent, RoleProfessor, RoleAdmin}

// IsValid reports whether r is one of the enumerated roles
func (r Role) IsValid() bool {
	switch r {
	case RoleStudent, RoleProfessor, RoleAdmin:
		return true
	}
	return false
}

// ParseRole parses a role name case-insensitively
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", fmt.Errorf("invalid role: %q", s)
	}
	return r, nil
}

// Status is the lifecycle state of a user
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

// Statuses lists every valid status
var Statuses = []Status{StatusActive, StatusInactive}

// IsValid reports whether s is one of the enumerated statuses
func (s Status) IsValid() bool {
	return s == StatusActive || s == StatusInactive
}

// ParseStatus parses a status name case-insensitively
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("invalid status: %q", s)
	}
	return st, nil
}

// User represents an identity record. PasswordHash is persisted but never
// serialized to JSON or included in a View.
type User struct {
	ID           uuid.UUID  `json:"id"`
	Code         string     `json:"code"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         Role       `json:"role"`
	Status       Status     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	Profile      *Profile   `json:"profile,omitempty"`
}

// IsActive reports whether the user may use the platform
func (u User) IsActive() bool {
	return u.Status == StatusActive
}

// Clone returns a deep copy so callers cannot mutate repository state
func (u User) Clone() User {
	c := u
	if u.LastLogin != nil {
		t := *u.LastLogin
		c.LastLogin = &t
	}
	if u.Profile != nil {
		p := u.Profile.clone()
		c.Profile = &p
	}
	return c
}

// Profile is the optional extension of a User
type Profile struct {
	ID                    uuid.UUID  `json:"id"`
	Phone                 *string    `json:"phone,omitempty"`
	Address               *string    `json:"address,omitempty"`
	BirthDate             *time.Time `json:"birth_date,omitempty"`
	ProfilePictureURL     *string    `json:"profile_picture_url,omitempty"`
	EmergencyContactName  *string    `json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone *string    `json:"emergency_contact_phone,omitempty"`
	AcademicProgram       *string    `json:"academic_program,omitempty"`
	Semester              *int       `json:"semester,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

func (p Profile) clone() Profile {
	c := p
	c.Phone = cloneString(p.Phone)
	c.Address = cloneString(p.Address)
	c.ProfilePictureURL = cloneString(p.ProfilePictureURL)
	c.EmergencyContactName = cloneString(p.EmergencyContactName)
	c.EmergencyContactPhone = cloneString(p.EmergencyContactPhone)
	c.AcademicProgram = cloneString(p.AcademicProgram)
	if p.BirthDate != nil {
		t := *p.BirthDate
		c.BirthDate = &t
	}
	if p.Semester != nil {
		s := *p.Semester
		c.Semester = &s
	}
	return c
}

// ProfileFields is a partial profile. Nil fields are left unchanged.
type ProfileFields struct {
	Phone                 *string    `json:"phone,omitempty"`
	Address               *string    `json:"address,omitempty"`
	BirthDate             *time.Time `json:"birth_date,omitempty"`
	ProfilePictureURL     *string    `json:"profile_picture_url,omitempty"`
	EmergencyContactName  *string    `json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone *string    `json:"emergency_contact_phone,omitempty"`
	AcademicProgram       *string    `json:"academic_program,omitempty"`
	Semester              *int       `json:"semester,omitempty"`
}

// IsEmpty reports whether no profile field is supplied
func (f ProfileFields) IsEmpty() bool {
	return f.Phone == nil && f.Address == nil && f.BirthDate == nil &&
		f.ProfilePictureURL == nil && f.EmergencyContactName == nil &&
		f.EmergencyContactPhone == nil && f.AcademicProgram == nil && f.Semester == nil
}

// Validate checks field constraints and returns messages keyed by field name
func (f ProfileFields) Validate() map[string]string {
	problems := map[string]string{}
	checkLen := func(field string, v *string, max int) {
		if v != nil && len(*v) > max {
			problems[field] = fmt.Sprintf("must be at most %d characters", max)
		}
	}
	checkLen("phone", f.Phone, 20)
	checkLen("profile_picture_url", f.ProfilePictureURL, 500)
	checkLen("emergency_contact_name", f.EmergencyContactName, 100)
	checkLen("emergency_contact_phone", f.EmergencyContactPhone, 20)
	checkLen("academic_program", f.AcademicProgram, 100)
	if f.Semester != nil && *f.Semester <= 0 {
		problems["semester"] = "must be a positive integer"
	}
	return problems
}

// ApplyProfile merges fields into the user's profile, creating it when absent.
// It is a no-op when fields is empty.
func (u *User) ApplyProfile(fields ProfileFields, now time.Time) {
	if fields.IsEmpty() {
		return
	}
	if u.Profile == nil {
		u.Profile = &Profile{ID: uuid.New(), CreatedAt: now}
	}
	p := u.Profile
	if fields.Phone != nil {
		p.Phone = cloneString(fields.Phone)
	}
	if fields.Address != nil {
		p.Address = cloneString(fields.Address)
	}
	if fields.BirthDate != nil {
		t := *fields.BirthDate
		p.BirthDate = &t
	}
	if fields.ProfilePictureURL != nil {
		p.ProfilePictureURL = cloneString(fields.ProfilePictureURL)
	}
	if fields.EmergencyContactName != nil {
		p.EmergencyContactName = cloneString(fields.EmergencyContactName)
	}
	if fields.EmergencyContactPhone != nil {
		p.EmergencyContactPhone = cloneString(fields.EmergencyContactPhone)
	}
	if fields.AcademicProgram != nil {
		p.AcademicProgram = cloneString(fields.AcademicProgram)
	}
	if fields.Semester != nil {
		s := *fields.Semester
		p.Semester = &s
	}
	p.UpdatedAt = now
}

// NormalizeEmail trims and lower-cases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeCode trims an institutional code
func NormalizeCode(code string) string {
	return strings.TrimSpace(code)
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	Role         *Role
	Status       *Status
	NameContains string
	// LastLoginBefore matches users whose last login is earlier than the
	// given instant, including users who never logged in.
	LastLoginBefore *time.Time
	// CreatedFrom and CreatedTo bound created_at inclusively.
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// Matches reports whether u satisfies the filter
func (f ListFilter) Matches(u User) bool {
	if f.Role != nil && u.Role != *f.Role {
		return false
	}
	if f.Status != nil && u.Status != *f.Status {
		return false
	}
	if f.NameContains != "" && !strings.Contains(strings.ToLower(u.Name), strings.ToLower(f.NameContains)) {
		return false
	}
	if f.LastLoginBefore != nil && u.LastLogin != nil && !u.LastLogin.Before(*f.LastLoginBefore) {
		return false
	}
	if f.CreatedFrom != nil && u.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && u.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	return true
}

// Page selects a zero-based page of results
type Page struct {
	Number int
	Size   int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalize clamps the page to sane bounds
func (p Page) Normalize() Page {
	if p.Number < 0 {
		p.Number = 0
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

// Offset returns the number of rows to skip
func (p Page) Offset() int {
	return p.Number * p.Size
}
