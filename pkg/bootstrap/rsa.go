package bootstrap

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tendant/attendance-idm/pkg/tokengenerator"
)

// RSAKeyConfig contains configuration for RSA key bootstrap
type RSAKeyConfig struct {
	KeyFile     string
	KeySize     int    // 2048, 3072 or 4096; default 2048
	KeyIDPrefix string // default "idm"
}

// RSAKeyResult contains the result of RSA key bootstrap
type RSAKeyResult struct {
	PrivateKey  *rsa.PrivateKey
	KeyID       string // prefix plus the first 12 hex chars of the fingerprint
	KeyPath     string
	Generated   bool
	KeySize     int
	Fingerprint string // SHA-256 of the DER public key
}

// BootstrapRSAKey loads the RS256 signing key, generating and saving one
// when the file does not exist
func BootstrapRSAKey(cfg RSAKeyConfig) (*RSAKeyResult, error) {
	if err := validateRSAConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid RSA key configuration: %w", err)
	}

	keyPath, err := filepath.Abs(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve key path: %w", err)
	}

	if _, err := os.Stat(keyPath); os.IsNotExist(err) {
		return generateNewKey(keyPath, cfg)
	}
	return loadExistingKey(keyPath, cfg)
}

func validateRSAConfig(cfg *RSAKeyConfig) error {
	if cfg.KeyFile == "" {
		return fmt.Errorf("KeyFile is required")
	}
	if cfg.KeySize == 0 {
		cfg.KeySize = 2048
	}
	if cfg.KeySize != 2048 && cfg.KeySize != 3072 && cfg.KeySize != 4096 {
		return fmt.Errorf("invalid key size %d (must be 2048, 3072, or 4096)", cfg.KeySize)
	}
	if cfg.KeyIDPrefix == "" {
		cfg.KeyIDPrefix = "idm"
	}
	return nil
}

func generateNewKey(keyPath string, cfg RSAKeyConfig) (*RSAKeyResult, error) {
	slog.Info("RSA key not found - generating new key pair", "path", keyPath, "key_size", cfg.KeySize)

	privateKey, err := rsa.GenerateKey(rand.Reader, cfg.KeySize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(keyPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privateKey)}
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(block), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write key file: %w", err)
	}

	return newRSAKeyResult(privateKey, keyPath, cfg.KeyIDPrefix, true), nil
}

func loadExistingKey(keyPath string, cfg RSAKeyConfig) (*RSAKeyResult, error) {
	privateKey, err := tokengenerator.LoadRSAPrivateKey(keyPath)
	if err != nil {
		return nil, err
	}
	return newRSAKeyResult(privateKey, keyPath, cfg.KeyIDPrefix, false), nil
}

func newRSAKeyResult(key *rsa.PrivateKey, keyPath, prefix string, generated bool) *RSAKeyResult {
	fingerprint := calculateFingerprint(&key.PublicKey)
	result := &RSAKeyResult{
		PrivateKey:  key,
		KeyID:       fmt.Sprintf("%s-%s", prefix, fingerprint[:12]),
		KeyPath:     keyPath,
		Generated:   generated,
		KeySize:     key.N.BitLen(),
		Fingerprint: fingerprint,
	}
	slog.Info("RSA signing key ready",
		"path", keyPath,
		"key_id", result.KeyID,
		"key_size", result.KeySize,
		"generated", generated)
	return result
}

func calculateFingerprint(publicKey *rsa.PublicKey) string {
	der, err := x509.MarshalPKIXPublicKey(publicKey)
	if err != nil {
		slog.Warn("Failed to marshal public key for fingerprint", "error", err)
		return strings.Repeat("0", sha256.Size*2)
	}
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:])
}

// ExportPublicKey writes the public half of the key in PKIX PEM form
func ExportPublicKey(result *RSAKeyResult, outputPath string) error {
	if result == nil || result.PrivateKey == nil {
		return fmt.Errorf("invalid RSA key result")
	}
	der, err := x509.MarshalPKIXPublicKey(&result.PrivateKey.PublicKey)
	if err != nil {
		return fmt.Errorf("failed to marshal public key: %w", err)
	}
	block := &pem.Block{Type: "PUBLIC KEY", Bytes: der}
	if err := os.WriteFile(outputPath, pem.EncodeToMemory(block), 0o644); err != nil {
		return fmt.Errorf("failed to write public key file: %w", err)
	}
	slog.Info("Public key exported", "path", outputPath)
	return nil
}
