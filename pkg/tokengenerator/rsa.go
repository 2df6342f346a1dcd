package tokengenerator

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// NewRSAIssuer creates an RS256 issuer. keyID is written to the kid header.
func NewRSAIssuer(privateKey *rsa.PrivateKey, keyID string, opts ...Option) (*JwtIssuer, error) {
	if privateKey == nil {
		return nil, errors.New("rsa private key is required")
	}
	return newJwtIssuer(jwt.SigningMethodRS256, privateKey, &privateKey.PublicKey, keyID, opts...)
}

// LoadRSAPrivateKey reads a PEM encoded PKCS#1 or PKCS#8 RSA private key
func LoadRSAPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rsa private key: %w", err)
	}
	return key, nil
}
