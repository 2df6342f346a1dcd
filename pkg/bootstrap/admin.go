package bootstrap

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/attendance-idm/pkg/identity"
	"github.com/tendant/attendance-idm/pkg/password"
)

// DefaultAdminCode is the institutional code given to the bootstrap admin
const DefaultAdminCode = "ADMIN001"

// AdminConfig describes the first administrator
type AdminConfig struct {
	Code     string
	Name     string
	Email    string
	Password string // generated when empty
}

// AdminResult reports what EnsureAdmin did
type AdminResult struct {
	Created bool // false when an ADMIN already existed

	UserID   uuid.UUID
	Code     string
	Email    string
	Password string // only populated if generated

	PasswordFromEnv bool
}

// EnsureAdmin creates an ADMIN user when the directory has none. It is
// safe to call on every start.
func EnsureAdmin(ctx context.Context, repo identity.Repository, hasher password.PasswordHasher, cfg AdminConfig) (*AdminResult, error) {
	if cfg.Code == "" {
		cfg.Code = DefaultAdminCode
	}
	cfg.Email = identity.NormalizeEmail(cfg.Email)
	if cfg.Email == "" {
		return nil, errors.New("admin email is required")
	}
	if cfg.Name == "" {
		cfg.Name = "Administrator"
	}

	counts, err := repo.CountByRole(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count admins: %w", err)
	}
	if counts[identity.RoleAdmin] > 0 {
		slog.Info("Admin already exists - skipping bootstrap", "admins", counts[identity.RoleAdmin])
		return &AdminResult{Created: false}, nil
	}

	plaintext := cfg.Password
	if plaintext == "" {
		plaintext, err = GeneratePassword(20)
		if err != nil {
			return nil, fmt.Errorf("failed to generate admin password: %w", err)
		}
	}
	hash, err := hasher.Hash(plaintext)
	if err != nil {
		return nil, fmt.Errorf("failed to hash admin password: %w", err)
	}

	user, err := repo.Create(ctx, identity.User{
		Code:         cfg.Code,
		Name:         cfg.Name,
		Email:        cfg.Email,
		PasswordHash: hash,
		Role:         identity.RoleAdmin,
		Status:       identity.StatusActive,
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
	})
	switch {
	case errors.Is(err, identity.ErrDuplicateEmail):
		return nil, fmt.Errorf("admin email %s is already registered to a non-admin user", cfg.Email)
	case errors.Is(err, identity.ErrDuplicateCode):
		return nil, fmt.Errorf("admin code %s is already registered to a non-admin user", cfg.Code)
	case err != nil:
		return nil, fmt.Errorf("failed to create admin: %w", err)
	}

	slog.Info("Admin user created", "user_id", user.ID, "code", user.Code, "email", user.Email)

	result := &AdminResult{
		Created:         true,
		UserID:          user.ID,
		Code:            user.Code,
		Email:           user.Email,
		PasswordFromEnv: cfg.Password != "",
	}
	if !result.PasswordFromEnv {
		result.Password = plaintext
	}
	return result, nil
}

const (
	lowerChars   = "abcdefghijkmnopqrstuvwxyz"
	upperChars   = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	digitChars   = "23456789"
	specialChars = "!@#$%^&*-_=+"
)

// GeneratePassword returns a random password of length n (minimum 8) with
// at least one lowercase, uppercase, digit and special character
func GeneratePassword(n int) (string, error) {
	if n < 8 {
		n = 8
	}
	all := lowerChars + upperChars + digitChars + specialChars

	out := make([]byte, 0, n)
	for _, set := range []string{lowerChars, upperChars, digitChars, specialChars} {
		c, err := pick(set)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	for len(out) < n {
		c, err := pick(all)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}

	// Fisher-Yates so the guaranteed characters are not always first
	for i := len(out) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", err
		}
		out[i], out[j.Int64()] = out[j.Int64()], out[i]
	}
	return string(out), nil
}

func pick(set string) (byte, error) {
	i, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, err
	}
	return set[i.Int64()], nil
}

// maskEmail keeps the first character of the local part
func maskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" {
		return email
	}
	return local[:1] + "***@" + domain
}
