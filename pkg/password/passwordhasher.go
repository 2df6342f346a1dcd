package password

import (
	"errors"
	"strings"
)

// ErrEmptyPassword is returned when hashing or verifying an empty password
var ErrEmptyPassword = errors.New("password cannot be empty")

// ErrUnknownHashFormat is returned when a stored digest matches no registered hasher
var ErrUnknownHashFormat = errors.New("unknown password hash format")

// PasswordHasher defines the interface for password hashing implementations
type PasswordHasher interface {
	// Hash hashes a password
	Hash(password string) (string, error)

	// Verify checks if the provided password matches the stored hash.
	// A mismatch is (false, nil); an error means the digest could not be checked.
	Verify(password, hashedPassword string) (bool, error)
}

// MultiHasher hashes new passwords with Argon2id and verifies digests produced
// by any of the supported algorithms, selected by digest prefix.
type MultiHasher struct {
	current *Argon2Hasher
	bcrypt  *BcryptHasher
}

// NewMultiHasher creates a MultiHasher around the given Argon2 hasher.
// A nil hasher falls back to the default Argon2 parameters.
func NewMultiHasher(current *Argon2Hasher) *MultiHasher {
	if current == nil {
		current = NewArgon2Hasher()
	}
	return &MultiHasher{
		current: current,
		bcrypt:  NewBcryptHasher(),
	}
}

// Hash implements PasswordHasher.Hash
func (h *MultiHasher) Hash(password string) (string, error) {
	return h.current.Hash(password)
}

// Verify implements PasswordHasher.Verify
func (h *MultiHasher) Verify(password, hashedPassword string) (bool, error) {
	switch {
	case strings.HasPrefix(hashedPassword, argon2Prefix):
		return h.current.Verify(password, hashedPassword)
	case isBcryptHash(hashedPassword):
		return h.bcrypt.Verify(password, hashedPassword)
	default:
		return false, ErrUnknownHashFormat
	}
}
