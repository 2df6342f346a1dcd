package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastArgon2() *Argon2Hasher {
	return NewArgon2HasherWithParams(Argon2Params{
		Memory:      1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
}

func TestArgon2Hasher(t *testing.T) {
	hasher := fastArgon2()

	t.Run("ValidPassword", func(t *testing.T) {
		hashed, err := hasher.Hash("p1")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(hashed, "$argon2id$v=19$m=1024,t=1,p=1$"))

		match, err := hasher.Verify("p1", hashed)
		assert.NoError(t, err)
		assert.True(t, match)
	})

	t.Run("SaltedDigestsDiffer", func(t *testing.T) {
		first, err := hasher.Hash("same-secret")
		require.NoError(t, err)
		second, err := hasher.Hash("same-secret")
		require.NoError(t, err)
		assert.NotEqual(t, first, second)
	})

	t.Run("IncorrectPassword", func(t *testing.T) {
		hashed, err := hasher.Hash("correct")
		require.NoError(t, err)

		match, err := hasher.Verify("wrong", hashed)
		assert.NoError(t, err)
		assert.False(t, match)
	})

	t.Run("EmptyPassword", func(t *testing.T) {
		_, err := hasher.Hash("")
		assert.ErrorIs(t, err, ErrEmptyPassword)

		match, err := hasher.Verify("", "$argon2id$v=19$m=1,t=1,p=1$AA$AA")
		assert.Error(t, err)
		assert.False(t, match)
	})

	t.Run("CorruptedHash", func(t *testing.T) {
		for _, digest := range []string{
			"invalidHash",
			"$argon2i$v=19$m=1024,t=1,p=1$c2FsdA$aGFzaA",
			"$argon2id$v=18$m=1024,t=1,p=1$c2FsdA$aGFzaA",
			"$argon2id$v=19$garbage$c2FsdA$aGFzaA",
			"$argon2id$v=19$m=1024,t=1,p=1$!!!$aGFzaA",
		} {
			match, err := hasher.Verify("secret", digest)
			assert.Error(t, err, digest)
			assert.False(t, match, digest)
		}
	})

	t.Run("VerifiesDigestFromOtherParameters", func(t *testing.T) {
		other := NewArgon2HasherWithParams(Argon2Params{Memory: 2048, Iterations: 2, Parallelism: 1, SaltLength: 8, KeyLength: 16})
		hashed, err := other.Hash("secret")
		require.NoError(t, err)

		match, err := hasher.Verify("secret", hashed)
		assert.NoError(t, err)
		assert.True(t, match)
	})
}

func TestBcryptHasher(t *testing.T) {
	hasher := &BcryptHasher{cost: 4}

	hashed, err := hasher.Hash("Password123!")
	require.NoError(t, err)
	assert.True(t, isBcryptHash(hashed))

	match, err := hasher.Verify("Password123!", hashed)
	assert.NoError(t, err)
	assert.True(t, match)

	match, err = hasher.Verify("password123!", hashed)
	assert.NoError(t, err)
	assert.False(t, match)

	_, err = hasher.Verify("x", "not-a-bcrypt-hash")
	assert.Error(t, err)
}

func TestMultiHasher(t *testing.T) {
	hasher := NewMultiHasher(fastArgon2())

	t.Run("HashesWithArgon2", func(t *testing.T) {
		hashed, err := hasher.Hash("secret")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(hashed, argon2Prefix))

		match, err := hasher.Verify("secret", hashed)
		assert.NoError(t, err)
		assert.True(t, match)
	})

	t.Run("VerifiesSeededBcrypt", func(t *testing.T) {
		seeded, err := (&BcryptHasher{cost: 4}).Hash("Password123!")
		require.NoError(t, err)

		match, err := hasher.Verify("Password123!", seeded)
		assert.NoError(t, err)
		assert.True(t, match)
	})

	t.Run("UnknownFormat", func(t *testing.T) {
		match, err := hasher.Verify("secret", "plaintext-secret")
		assert.ErrorIs(t, err, ErrUnknownHashFormat)
		assert.False(t, match)
	})
}

func TestPolicyChecker(t *testing.T) {
	t.Run("DefaultPolicy", func(t *testing.T) {
		checker := NewPolicyChecker(nil)

		assert.NoError(t, checker.Check("Password123!"))
		assert.ErrorContains(t, checker.Check("Pa1!"), "at least 8")
		assert.ErrorContains(t, checker.Check("Password123"), "special character")
	})

	t.Run("StrictPolicy", func(t *testing.T) {
		checker := NewPolicyChecker(&PasswordPolicy{
			MinLength:        4,
			MaxLength:        10,
			RequireUppercase: true,
			RequireLowercase: true,
			RequireDigit:     true,
		})

		assert.NoError(t, checker.Check("Abcd1"))
		assert.ErrorContains(t, checker.Check("abcd1"), "uppercase")
		assert.ErrorContains(t, checker.Check("ABCD1"), "lowercase")
		assert.ErrorContains(t, checker.Check("Abcde"), "digit")
		assert.ErrorContains(t, checker.Check("Abcdefghij1"), "at most 10")
	})

	t.Run("EmptyPolicyAcceptsAnything", func(t *testing.T) {
		checker := NewPolicyChecker(&PasswordPolicy{})
		assert.NoError(t, checker.Check("p1"))
		assert.Equal(t, PasswordPolicy{}, checker.Policy())
	})
}
