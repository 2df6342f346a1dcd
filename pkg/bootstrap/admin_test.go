package bootstrap

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/attendance-idm/pkg/identity"
	"github.com/tendant/attendance-idm/pkg/password"
)

func fastHasher() password.PasswordHasher {
	return password.NewMultiHasher(password.NewArgon2HasherWithParams(password.Argon2Params{
		Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
	}))
}

func TestEnsureAdmin_GeneratesPassword(t *testing.T) {
	ctx := context.Background()
	repo := identity.NewInMemoryRepository()
	hasher := fastHasher()

	result, err := EnsureAdmin(ctx, repo, hasher, AdminConfig{Email: " Admin@Uni.edu "})
	require.NoError(t, err)
	require.True(t, result.Created)
	assert.Equal(t, DefaultAdminCode, result.Code)
	assert.Equal(t, "admin@uni.edu", result.Email)
	assert.False(t, result.PasswordFromEnv)
	require.NotEmpty(t, result.Password)

	stored, err := repo.GetByCode(ctx, DefaultAdminCode)
	require.NoError(t, err)
	assert.Equal(t, identity.RoleAdmin, stored.Role)
	assert.Equal(t, identity.StatusActive, stored.Status)
	assert.NotEqual(t, result.Password, stored.PasswordHash)

	ok, err := hasher.Verify(result.Password, stored.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.NoError(t, password.NewPolicyChecker(nil).Check(result.Password))
}

func TestEnsureAdmin_Idempotent(t *testing.T) {
	ctx := context.Background()
	repo := identity.NewInMemoryRepository()

	first, err := EnsureAdmin(ctx, repo, fastHasher(), AdminConfig{Email: "admin@uni.edu", Password: "Secret!123"})
	require.NoError(t, err)
	require.True(t, first.Created)
	assert.True(t, first.PasswordFromEnv)
	assert.Empty(t, first.Password)

	second, err := EnsureAdmin(ctx, repo, fastHasher(), AdminConfig{Email: "other@uni.edu"})
	require.NoError(t, err)
	assert.False(t, second.Created)

	counts, err := repo.CountByRole(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[identity.RoleAdmin])
}

func TestEnsureAdmin_Conflicts(t *testing.T) {
	ctx := context.Background()
	repo := identity.NewInMemoryRepository()
	_, err := repo.Create(ctx, identity.User{
		Code: DefaultAdminCode, Name: "Squatter", Email: "student@uni.edu",
		PasswordHash: "x", Role: identity.RoleStudent, Status: identity.StatusActive,
	})
	require.NoError(t, err)

	_, err = EnsureAdmin(ctx, repo, fastHasher(), AdminConfig{Email: "admin@uni.edu"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "admin code")

	_, err = EnsureAdmin(ctx, repo, fastHasher(), AdminConfig{Code: "ADMIN002", Email: "student@uni.edu"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "admin email")

	_, err = EnsureAdmin(ctx, repo, fastHasher(), AdminConfig{})
	assert.Error(t, err)
}

func TestGeneratePassword(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		p, err := GeneratePassword(12)
		require.NoError(t, err)
		assert.Len(t, p, 12)
		assert.True(t, strings.ContainsAny(p, lowerChars))
		assert.True(t, strings.ContainsAny(p, upperChars))
		assert.True(t, strings.ContainsAny(p, digitChars))
		assert.True(t, strings.ContainsAny(p, specialChars))
		seen[p] = true
	}
	assert.Len(t, seen, 20)

	p, err := GeneratePassword(3)
	require.NoError(t, err)
	assert.Len(t, p, 8)
}

func TestPrintAdminResult(t *testing.T) {
	var buf bytes.Buffer
	PrintAdminResult(&buf, &AdminResult{Created: true, Code: "ADMIN001", Email: "admin@uni.edu", Password: "Gen3rated!"})
	assert.Contains(t, buf.String(), "Gen3rated!")
	assert.Contains(t, buf.String(), "WILL NOT BE DISPLAYED AGAIN")

	buf.Reset()
	PrintAdminResult(&buf, &AdminResult{Created: true, PasswordFromEnv: true})
	assert.Contains(t, buf.String(), "BOOTSTRAP_ADMIN_PASSWORD")

	buf.Reset()
	PrintAdminResult(&buf, &AdminResult{Created: false})
	assert.Empty(t, buf.String())
}

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "a***@uni.edu", maskEmail("admin@uni.edu"))
	assert.Equal(t, "nonsense", maskEmail("nonsense"))
}

func TestBootstrapRSAKey(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), "keys", "jwt.pem")

	generated, err := BootstrapRSAKey(RSAKeyConfig{KeyFile: keyFile, KeyIDPrefix: "attendance"})
	require.NoError(t, err)
	assert.True(t, generated.Generated)
	assert.Equal(t, 2048, generated.KeySize)
	assert.True(t, strings.HasPrefix(generated.KeyID, "attendance-"))
	assert.Len(t, generated.KeyID, len("attendance-")+12)

	loaded, err := BootstrapRSAKey(RSAKeyConfig{KeyFile: keyFile, KeyIDPrefix: "attendance"})
	require.NoError(t, err)
	assert.False(t, loaded.Generated)
	assert.Equal(t, generated.KeyID, loaded.KeyID)
	assert.True(t, generated.PrivateKey.Equal(loaded.PrivateKey))

	pub := filepath.Join(t.TempDir(), "jwt.pub")
	require.NoError(t, ExportPublicKey(loaded, pub))

	var buf bytes.Buffer
	PrintRSAKeyResult(&buf, loaded)
	assert.Contains(t, buf.String(), loaded.KeyID)

	_, err = BootstrapRSAKey(RSAKeyConfig{KeyFile: keyFile, KeySize: 1024})
	assert.Error(t, err)
}

func TestFormatFingerprint(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	fp := calculateFingerprint(&key.PublicKey)
	assert.Len(t, fp, 64)

	formatted := formatFingerprint(fp)
	assert.Equal(t, 15, strings.Count(formatted, ":"))
	assert.True(t, strings.HasSuffix(formatted, "..."))
	assert.Equal(t, "abc", formatFingerprint("abc"))
}
