package identity

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
)

// View is the externally visible shape of a User. It has no password field.
type View struct {
	ID        uuid.UUID    `json:"id"`
	Code      string       `json:"code"`
	Name      string       `json:"name"`
	Email     string       `json:"email"`
	Role      Role         `json:"role"`
	Status    Status       `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	LastLogin *time.Time   `json:"last_login,omitempty"`
	Profile   *ProfileView `json:"profile,omitempty"`
}

// ProfileView is the externally visible shape of a Profile
type ProfileView struct {
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

// ToView maps a User to its View
func ToView(u User) View {
	var v View
	if err := copier.CopyWithOption(&v, &u, copier.Option{IgnoreEmpty: true, DeepCopy: true}); err != nil {
		slog.Error("Failed to map user view", "user_id", u.ID, "err", err)
	}
	return v
}

// ToViews maps a slice of users
func ToViews(users []User) []View {
	views := make([]View, 0, len(users))
	for _, u := range users {
		views = append(views, ToView(u))
	}
	return views
}
