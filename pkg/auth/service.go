package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"
	"github.com/tendant/attendance-idm/pkg/access"
	apperrors "github.com/tendant/attendance-idm/pkg/errors"
	"github.com/tendant/attendance-idm/pkg/identity"
	"github.com/tendant/attendance-idm/pkg/metrics"
	"github.com/tendant/attendance-idm/pkg/password"
	"github.com/tendant/attendance-idm/pkg/tokengenerator"
)

const (
	msgInvalidCredentials = "invalid email or password"
	msgInvalidRefresh     = "invalid refresh token"

	// dummyPassword is hashed once and verified against when the email is
	// unknown, so a miss costs the same as a wrong password.
	dummyPassword = "attendance-idm-timing-equalizer"
)

// Recorder receives authentication outcomes. *metrics.Metrics implements it.
type Recorder interface {
	LoginAttempt(outcome string)
	Registration(outcome string)
	TokenRefresh(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) LoginAttempt(string) {}
func (nopRecorder) Registration(string) {}
func (nopRecorder) TokenRefresh(string) {}

// Service registers users, verifies credentials and issues token pairs
type Service struct {
	repo          identity.Repository
	hasher        password.PasswordHasher
	issuer        tokengenerator.Issuer
	policy        *access.Policy
	passwords     *password.PolicyChecker
	defaultRole   identity.Role
	allowInactive bool
	now           func() time.Time
	recorder      Recorder

	dummyOnce sync.Once
	dummyHash string
}

// Option is a functional option for configuring Service
type Option func(*Service)

// NewService creates an authentication coordinator
func NewService(repo identity.Repository, hasher password.PasswordHasher, issuer tokengenerator.Issuer, opts ...Option) *Service {
	s := &Service{
		repo:        repo,
		hasher:      hasher,
		issuer:      issuer,
		policy:      access.DefaultPolicy(),
		defaultRole: identity.DefaultRole,
		now:         time.Now,
		recorder:    nopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithDefaultRole sets the role given to self-registered users
func WithDefaultRole(role identity.Role) Option {
	return func(s *Service) {
		if role.IsValid() {
			s.defaultRole = role
		}
	}
}

// WithPasswordPolicy enforces a complexity policy at registration. Without
// it any non-empty password is accepted.
func WithPasswordPolicy(checker *password.PolicyChecker) Option {
	return func(s *Service) {
		s.passwords = checker
	}
}

// WithInactiveLogin lets INACTIVE users authenticate
func WithInactiveLogin(allow bool) Option {
	return func(s *Service) {
		s.allowInactive = allow
	}
}

// WithAccessPolicy replaces the default access policy
func WithAccessPolicy(policy *access.Policy) Option {
	return func(s *Service) {
		s.policy = policy
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithRecorder reports outcomes to r
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// RegisterRequest carries a self-registration. Role is optional.
type RegisterRequest struct {
	Code     string
	Name     string
	Email    string
	Password string
	Role     string
	Profile  identity.ProfileFields
}

// AuthResult is returned by every successful Register, Authenticate and Refresh
type AuthResult struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	TokenType    string        `json:"token_type"`
	ExpiresIn    int64         `json:"expires_in"`
	User         identity.View `json:"user"`
}

// Register creates an ACTIVE user and signs them in. caller is the zero
// Caller for anonymous sign-up; only an ADMIN caller may request a role
// other than the default.
func (s *Service) Register(ctx context.Context, caller access.Caller, req RegisterRequest) (AuthResult, error) {
	req.Email = identity.NormalizeEmail(req.Email)
	req.Code = identity.NormalizeCode(req.Code)
	req.Name = strings.TrimSpace(req.Name)

	role, err := s.validateRegistration(req)
	if err != nil {
		s.recorder.Registration(metrics.OutcomeInvalid)
		return AuthResult{}, err
	}

	if role != s.defaultRole {
		if err := s.policy.Authorize(caller, access.OpAssignRole, access.Target{}); err != nil {
			s.recorder.Registration(metrics.OutcomeInvalid)
			return AuthResult{}, err
		}
	}

	if err := s.checkAvailable(ctx, req.Email, req.Code); err != nil {
		return AuthResult{}, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		s.recorder.Registration(metrics.OutcomeError)
		return AuthResult{}, apperrors.InternalWrap(err, "failed to hash password")
	}

	now := s.timestamp()
	user := identity.User{
		Code:         req.Code,
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         role,
		Status:       identity.StatusActive,
		CreatedAt:    now,
	}
	user.ApplyProfile(req.Profile, now)

	created, err := s.repo.Create(ctx, user)
	if err != nil {
		if mapped := duplicateError(err, req.Email, req.Code); mapped != nil {
			s.recorder.Registration(metrics.OutcomeConflict)
			return AuthResult{}, mapped
		}
		s.recorder.Registration(metrics.OutcomeError)
		return AuthResult{}, apperrors.InternalWrap(err, "failed to create user")
	}

	slog.Info("User registered", "user_id", created.ID, "role", created.Role)
	s.recorder.Registration(metrics.OutcomeSuccess)
	return s.issuePair(created)
}

// Authenticate verifies email and password. Every credential failure yields
// the same Unauthorized error.
func (s *Service) Authenticate(ctx context.Context, email, plaintext string) (AuthResult, error) {
	email = identity.NormalizeEmail(email)
	if email == "" || plaintext == "" {
		return s.loginFailed("missing credentials")
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, identity.ErrUserNotFound) {
			s.recorder.LoginAttempt(metrics.OutcomeError)
			return AuthResult{}, apperrors.InternalWrap(err, "failed to load user")
		}
		s.verifyDummy(plaintext)
		return s.loginFailed("unknown email")
	}

	ok, err := s.hasher.Verify(plaintext, user.PasswordHash)
	if err != nil {
		slog.Warn("Stored password digest could not be verified", "user_id", user.ID, "err", err)
		return s.loginFailed("unverifiable digest")
	}
	if !ok {
		return s.loginFailed("wrong password")
	}
	if !user.IsActive() && !s.allowInactive {
		return s.loginFailed("inactive account")
	}

	now := s.timestamp()
	if err := s.repo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.recorder.LoginAttempt(metrics.OutcomeError)
		return AuthResult{}, apperrors.InternalWrap(err, "failed to record login")
	}
	if now.Before(user.CreatedAt) {
		now = user.CreatedAt
	}
	user.LastLogin = &now

	s.recorder.LoginAttempt(metrics.OutcomeSuccess)
	return s.issuePair(user)
}

// Refresh exchanges a valid refresh token for a new pair
func (s *Service) Refresh(ctx context.Context, refreshToken string) (AuthResult, error) {
	claims, err := s.issuer.ValidateKind(refreshToken, tokengenerator.RefreshToken)
	if err != nil {
		return s.refreshFailed(err.Error())
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return s.refreshFailed("subject is not a user id")
	}

	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, identity.ErrUserNotFound) {
			s.recorder.TokenRefresh(metrics.OutcomeError)
			return AuthResult{}, apperrors.InternalWrap(err, "failed to load user")
		}
		return s.refreshFailed("user no longer exists")
	}
	if !user.IsActive() && !s.allowInactive {
		return s.refreshFailed("inactive account")
	}

	s.recorder.TokenRefresh(metrics.OutcomeSuccess)
	return s.issuePair(user)
}

func (s *Service) validateRegistration(req RegisterRequest) (identity.Role, error) {
	problems := map[string]interface{}{}

	fields := validation.Errors{
		"code":  validation.Validate(req.Code, validation.Required, validation.Length(1, 20)),
		"name":  validation.Validate(req.Name, validation.Required, validation.Length(1, 100)),
		"email": validation.Validate(req.Email, validation.Required, validation.Length(1, 255), is.Email),
	}
	for field, err := range fields {
		if err != nil {
			problems[field] = err.Error()
		}
	}

	if req.Password == "" {
		problems["password"] = "cannot be blank"
	} else if s.passwords != nil {
		if err := s.passwords.Check(req.Password); err != nil {
			problems["password"] = err.Error()
		}
	}

	role := s.defaultRole
	if req.Role != "" {
		parsed, err := identity.ParseRole(req.Role)
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

func (s *Service) checkAvailable(ctx context.Context, email, code string) error {
	taken, err := s.repo.ExistsByEmail(ctx, email)
	if err != nil {
		return apperrors.InternalWrap(err, "failed to check email")
	}
	if taken {
		s.recorder.Registration(metrics.OutcomeConflict)
		return apperrors.AlreadyExists("user", "email", email)
	}

	taken, err = s.repo.ExistsByCode(ctx, code)
	if err != nil {
		return apperrors.InternalWrap(err, "failed to check code")
	}
	if taken {
		s.recorder.Registration(metrics.OutcomeConflict)
		return apperrors.AlreadyExists("user", "code", code)
	}
	return nil
}

func (s *Service) issuePair(user identity.User) (AuthResult, error) {
	subject := tokengenerator.Subject{
		UserID: user.ID.String(),
		Email:  user.Email,
		Role:   string(user.Role),
	}

	accessToken, err := s.issuer.Issue(subject, tokengenerator.AccessToken)
	if err != nil {
		return AuthResult{}, apperrors.InternalWrap(err, "failed to issue access token")
	}
	refreshToken, err := s.issuer.Issue(subject, tokengenerator.RefreshToken)
	if err != nil {
		return AuthResult{}, apperrors.InternalWrap(err, "failed to issue refresh token")
	}

	return AuthResult{
		AccessToken:  accessToken.Value,
		RefreshToken: refreshToken.Value,
		TokenType:    tokengenerator.TokenTypeBearer,
		ExpiresIn:    int64(s.issuer.TTL(tokengenerator.AccessToken).Seconds()),
		User:         identity.ToView(user),
	}, nil
}

func (s *Service) loginFailed(reason string) (AuthResult, error) {
	slog.Debug("Login rejected", "reason", reason)
	s.recorder.LoginAttempt(metrics.OutcomeFailure)
	return AuthResult{}, apperrors.Unauthorized(msgInvalidCredentials)
}

func (s *Service) refreshFailed(reason string) (AuthResult, error) {
	slog.Debug("Refresh rejected", "reason", reason)
	s.recorder.TokenRefresh(metrics.OutcomeFailure)
	return AuthResult{}, apperrors.Unauthorized(msgInvalidRefresh)
}

func (s *Service) verifyDummy(plaintext string) {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(dummyPassword)
		if err != nil {
			slog.Warn("Failed to prepare dummy password hash", "err", err)
			return
		}
		s.dummyHash = hash
	})
	if s.dummyHash != "" {
		_, _ = s.hasher.Verify(plaintext, s.dummyHash)
	}
}

// timestamp truncates to milliseconds, the coarsest precision any store keeps
func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// duplicateError maps store uniqueness failures to AlreadyExists
func duplicateError(err error, email, code string) error {
	switch {
	case errors.Is(err, identity.ErrDuplicateEmail):
		return apperrors.AlreadyExists("user", "email", email)
	case errors.Is(err, identity.ErrDuplicateCode):
		return apperrors.AlreadyExists("user", "code", code)
	}
	return nil
}
