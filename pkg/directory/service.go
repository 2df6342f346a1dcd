package directory

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"
	"github.com/tendant/attendance-idm/pkg/access"
	apperrors "github.com/tendant/attendance-idm/pkg/errors"
	"github.com/tendant/attendance-idm/pkg/identity"
	"github.com/tendant/attendance-idm/pkg/password"
	"golang.org/x/sync/errgroup"
)

// Service reads and maintains identity records on behalf of a caller
type Service struct {
	repo      identity.Repository
	hasher    password.PasswordHasher
	policy    *access.Policy
	passwords *password.PolicyChecker
	now       func() time.Time
}

// Option is a functional option for configuring Service
type Option func(*Service)

// NewService creates a directory service
func NewService(repo identity.Repository, hasher password.PasswordHasher, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		hasher: hasher,
		policy: access.DefaultPolicy(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithAccessPolicy replaces the default access policy
func WithAccessPolicy(policy *access.Policy) Option {
	return func(s *Service) {
		s.policy = policy
	}
}

// WithPasswordPolicy enforces a complexity policy on password changes
func WithPasswordPolicy(checker *password.PolicyChecker) Option {
	return func(s *Service) {
		s.passwords = checker
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// UpdateRequest is a partial update. Nil fields are left unchanged.
type UpdateRequest struct {
	Name     *string
	Password *string
	Role     *string
	Profile  identity.ProfileFields
}

// ListQuery narrows List
type ListQuery struct {
	Role             *identity.Role
	Status           *identity.Status
	NameContains     string
	NotLoggedInSince *time.Time
	CreatedFrom      *time.Time
	CreatedTo        *time.Time
}

// PageResult is one page of views
type PageResult struct {
	Items      []identity.View `json:"content"`
	Total      int             `json:"total_elements"`
	Page       int             `json:"page"`
	Size       int             `json:"size"`
	TotalPages int             `json:"total_pages"`
}

// Stats summarizes the directory
type Stats struct {
	Total    int                     `json:"total"`
	ByRole   map[identity.Role]int   `json:"by_role"`
	ByStatus map[identity.Status]int `json:"by_status"`
}

// GetSelf returns the caller's own record
func (s *Service) GetSelf(ctx context.Context, caller access.Caller) (identity.View, error) {
	if err := s.policy.Authorize(caller, access.OpReadSelf, access.Target{ID: caller.ID}); err != nil {
		return identity.View{}, err
	}
	user, err := s.load(ctx, caller.ID)
	if err != nil {
		return identity.View{}, err
	}
	return identity.ToView(user), nil
}

// GetByID returns the user with id
func (s *Service) GetByID(ctx context.Context, caller access.Caller, id uuid.UUID) (identity.View, error) {
	if err := s.policy.Authorize(caller, access.OpReadByID, access.Target{ID: id}); err != nil {
		return identity.View{}, err
	}
	user, err := s.load(ctx, id)
	if err != nil {
		return identity.View{}, err
	}
	return identity.ToView(user), nil
}

// GetByEmail returns the user with email
func (s *Service) GetByEmail(ctx context.Context, caller access.Caller, email string) (identity.View, error) {
	email = identity.NormalizeEmail(email)
	if err := s.policy.Authorize(caller, access.OpReadByEmail, access.Target{Email: email}); err != nil {
		return identity.View{}, err
	}
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return identity.View{}, s.lookupError(err, email)
	}
	return identity.ToView(user), nil
}

// GetByCode returns the user with code. A caller not entitled to the record
// gets Forbidden whether or not the code exists.
func (s *Service) GetByCode(ctx context.Context, caller access.Caller, code string) (identity.View, error) {
	code = identity.NormalizeCode(code)
	user, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		if !errors.Is(err, identity.ErrUserNotFound) {
			return identity.View{}, apperrors.InternalWrap(err, "failed to load user")
		}
		if authErr := s.policy.Authorize(caller, access.OpReadByCode, access.Target{}); authErr != nil {
			return identity.View{}, authErr
		}
		return identity.View{}, apperrors.NotFound("user", code)
	}
	if err := s.policy.Authorize(caller, access.OpReadByCode, access.TargetOf(user)); err != nil {
		return identity.View{}, err
	}
	return identity.ToView(user), nil
}

// List returns one page of users. A role-only filter needs list_by_role, a
// status-only filter list_by_status and anything else list.
func (s *Service) List(ctx context.Context, caller access.Caller, query ListQuery, page identity.Page) (PageResult, error) {
	op := access.OpList
	switch {
	case query.Role != nil && query.Status == nil:
		op = access.OpListByRole
	case query.Status != nil && query.Role == nil:
		op = access.OpListByStatus
	}
	if err := s.policy.Authorize(caller, op, access.Target{}); err != nil {
		return PageResult{}, err
	}

	if query.CreatedFrom != nil && query.CreatedTo != nil && query.CreatedTo.Before(*query.CreatedFrom) {
		return PageResult{}, apperrors.InvalidInput("created_to", "earlier than created_from")
	}

	page = page.Normalize()
	users, total, err := s.repo.List(ctx, identity.ListFilter{
		Role:            query.Role,
		Status:          query.Status,
		NameContains:    strings.TrimSpace(query.NameContains),
		LastLoginBefore: query.NotLoggedInSince,
		CreatedFrom:     query.CreatedFrom,
		CreatedTo:       query.CreatedTo,
	}, page)
	if err != nil {
		return PageResult{}, apperrors.InternalWrap(err, "failed to list users")
	}

	return PageResult{
		Items:      identity.ToViews(users),
		Total:      total,
		Page:       page.Number,
		Size:       page.Size,
		TotalPages: (total + page.Size - 1) / page.Size,
	}, nil
}

// Update applies a partial update to the user with id
func (s *Service) Update(ctx context.Context, caller access.Caller, id uuid.UUID, req UpdateRequest) (identity.View, error) {
	if err := s.policy.Authorize(caller, access.OpUpdate, access.Target{ID: id}); err != nil {
		return identity.View{}, err
	}
	return s.update(ctx, caller, id, req)
}

// UpdateSelf applies a partial update to the caller's own record. Changing
// the role still needs change_role.
func (s *Service) UpdateSelf(ctx context.Context, caller access.Caller, req UpdateRequest) (identity.View, error) {
	if err := s.policy.Authorize(caller, access.OpUpdateSelf, access.Target{ID: caller.ID}); err != nil {
		return identity.View{}, err
	}
	return s.update(ctx, caller, caller.ID, req)
}

func (s *Service) update(ctx context.Context, caller access.Caller, id uuid.UUID, req UpdateRequest) (identity.View, error) {
	role, err := s.validateUpdate(req)
	if err != nil {
		return identity.View{}, err
	}

	user, err := s.load(ctx, id)
	if err != nil {
		return identity.View{}, err
	}

	if role != "" && role != user.Role {
		if err := s.policy.Authorize(caller, access.OpChangeRole, access.TargetOf(user)); err != nil {
			return identity.View{}, err
		}
		user.Role = role
	}
	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
	}
	if req.Password != nil {
		hash, err := s.hasher.Hash(*req.Password)
		if err != nil {
			return identity.View{}, apperrors.InternalWrap(err, "failed to hash password")
		}
		user.PasswordHash = hash
	}
	user.ApplyProfile(req.Profile, s.now().UTC().Truncate(time.Millisecond))

	updated, err := s.repo.Update(ctx, user)
	if err != nil {
		return identity.View{}, s.lookupError(err, id.String())
	}
	slog.Info("User updated", "user_id", id, "by", caller.ID)
	return identity.ToView(updated), nil
}

// Deactivate marks the user INACTIVE. Deactivating an inactive user is a no-op.
func (s *Service) Deactivate(ctx context.Context, caller access.Caller, id uuid.UUID) (identity.View, error) {
	return s.setStatus(ctx, caller, access.OpDeactivate, id, identity.StatusInactive)
}

// Reactivate marks the user ACTIVE. Reactivating an active user is a no-op.
func (s *Service) Reactivate(ctx context.Context, caller access.Caller, id uuid.UUID) (identity.View, error) {
	return s.setStatus(ctx, caller, access.OpReactivate, id, identity.StatusActive)
}

func (s *Service) setStatus(ctx context.Context, caller access.Caller, op access.Operation, id uuid.UUID, status identity.Status) (identity.View, error) {
	if err := s.policy.Authorize(caller, op, access.Target{ID: id}); err != nil {
		return identity.View{}, err
	}
	user, err := s.load(ctx, id)
	if err != nil {
		return identity.View{}, err
	}
	if user.Status == status {
		return identity.ToView(user), nil
	}

	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return identity.View{}, s.lookupError(err, id.String())
	}
	user.Status = status
	slog.Info("User status changed", "user_id", id, "status", status, "by", caller.ID)
	return identity.ToView(user), nil
}

// Delete erases the user and its profile
func (s *Service) Delete(ctx context.Context, caller access.Caller, id uuid.UUID) error {
	if err := s.policy.Authorize(caller, access.OpDelete, access.Target{ID: id}); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return s.lookupError(err, id.String())
	}
	slog.Info("User deleted", "user_id", id, "by", caller.ID)
	return nil
}

// ExistsByEmail reports whether email is registered. No caller is required.
func (s *Service) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	ok, err := s.repo.ExistsByEmail(ctx, identity.NormalizeEmail(email))
	if err != nil {
		return false, apperrors.InternalWrap(err, "failed to check email")
	}
	return ok, nil
}

// ExistsByCode reports whether code is registered. No caller is required.
func (s *Service) ExistsByCode(ctx context.Context, code string) (bool, error) {
	ok, err := s.repo.ExistsByCode(ctx, identity.NormalizeCode(code))
	if err != nil {
		return false, apperrors.InternalWrap(err, "failed to check code")
	}
	return ok, nil
}

// Stats counts users by role and by status. Every enumerated value is
// present, zero when unused.
func (s *Service) Stats(ctx context.Context, caller access.Caller) (Stats, error) {
	if err := s.policy.Authorize(caller, access.OpStats, access.Target{}); err != nil {
		return Stats{}, err
	}

	var byRole map[identity.Role]int
	var byStatus map[identity.Status]int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		byRole, err = s.repo.CountByRole(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		byStatus, err = s.repo.CountByStatus(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Stats{}, apperrors.InternalWrap(err, "failed to count users")
	}

	stats := Stats{
		ByRole:   make(map[identity.Role]int, len(identity.Roles)),
		ByStatus: make(map[identity.Status]int, len(identity.Statuses)),
	}
	for _, r := range identity.Roles {
		stats.ByRole[r] = byRole[r]
		stats.Total += byRole[r]
	}
	for _, st := range identity.Statuses {
		stats.ByStatus[st] = byStatus[st]
	}
	return stats, nil
}

func (s *Service) validateUpdate(req UpdateRequest) (identity.Role, error) {
	problems := map[string]interface{}{}

	if req.Name != nil {
		if err := validation.Validate(strings.TrimSpace(*req.Name), validation.Required, validation.Length(1, 100)); err != nil {
			problems["name"] = err.Error()
		}
	}
	if req.Password != nil {
		if *req.Password == "" {
			problems["password"] = "cannot be blank"
		} else if s.passwords != nil {
			if err := s.passwords.Check(*req.Password); err != nil {
				problems["password"] = err.Error()
			}
		}
	}

	var role identity.Role
	if req.Role != nil {
		parsed, err := identity.ParseRole(*req.Role)
		if err != nil {
			problems["role"] = "must be one of STUDENT, PROFESSOR, ADMIN"
		}
		role = parsed
	}

	for field, msg := range req.Profile.Validate() {
		problems[field] = msg
	}

	if len(problems) > 0 {
		return "", apperrors.ValidationFailed(problems)
	}
	return role, nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (identity.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return identity.User{}, s.lookupError(err, id.String())
	}
	return user, nil
}

func (s *Service) lookupError(err error, key string) error {
	if errors.Is(err, identity.ErrUserNotFound) {
		return apperrors.NotFound("user", key)
	}
	return apperrors.InternalWrap(err, "identity store failure")
}
