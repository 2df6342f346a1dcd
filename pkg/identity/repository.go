package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository errors. Implementations return these, possibly wrapped.
var (
	ErrUserNotFound   = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already registered")
	ErrDuplicateCode  = errors.New("code already registered")
)

// Repository is the Identity Store contract. Every implementation enforces
// email and code uniqueness itself, so a racing insert that passed an
// application pre-check still fails with ErrDuplicateEmail or ErrDuplicateCode.
type Repository interface {
	// Create persists the user and its profile, if any, as one unit of work.
	// A zero ID is replaced by a new one.
	Create(ctx context.Context, user User) (User, error)

	GetByID(ctx context.Context, id uuid.UUID) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByCode(ctx context.Context, code string) (User, error)

	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByCode(ctx context.Context, code string) (bool, error)

	// Update writes name, password hash, role and the profile (inserted when
	// new) as one unit of work. Status changes only through UpdateStatus, so
	// a stale copy cannot undo a concurrent deactivation. ID, code, email,
	// createdAt and lastLogin are never changed. The returned user carries
	// the stored status and lastLogin.
	Update(ctx context.Context, user User) (User, error)

	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error

	// Delete erases the user and its profile
	Delete(ctx context.Context, id uuid.UUID) error

	// List returns one page of matching users ordered by creation time,
	// together with the total number of matches.
	List(ctx context.Context, filter ListFilter, page Page) ([]User, int, error)

	CountByRole(ctx context.Context) (map[Role]int, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
}
