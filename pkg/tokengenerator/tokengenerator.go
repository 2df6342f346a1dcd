package tokengenerator

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenKind distinguishes access tokens from refresh tokens
type TokenKind string

const (
	AccessToken  TokenKind = "access"
	RefreshToken TokenKind = "refresh"
)

// TokenTypeBearer is the token type reported to clients
const TokenTypeBearer = "Bearer"

// Default token expiry durations
const (
	DefaultAccessTokenExpiry  = 15 * time.Minute
	DefaultRefreshTokenExpiry = 24 * time.Hour
)

// ErrInvalidToken is returned, possibly wrapped, for every token that fails validation
var ErrInvalidToken = errors.New("invalid token")

// Subject is the identity a token is issued for
type Subject struct {
	UserID string
	Email  string
	Role   string
}

// Claims struct for JWT claims
type Claims struct {
	Email string    `json:"email,omitempty"`
	Role  string    `json:"role,omitempty"`
	Kind  TokenKind `json:"token_type"`
	jwt.RegisteredClaims
}

// Token is a signed token together with the facts callers need about it
type Token struct {
	Value     string
	Kind      TokenKind
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Issuer creates and validates tokens
type Issuer interface {
	// Issue signs a new token of the given kind for subject
	Issue(subject Subject, kind TokenKind) (Token, error)

	// Validate checks signature, algorithm, issuer, audience and expiry.
	// Any failure yields an error wrapping ErrInvalidToken.
	Validate(tokenStr string) (*Claims, error)

	// ValidateKind is Validate plus a check on the token kind
	ValidateKind(tokenStr string, kind TokenKind) (*Claims, error)

	// TTL returns the configured lifetime for kind
	TTL(kind TokenKind) time.Duration
}

// JwtIssuer implements Issuer with golang-jwt. It is immutable after
// construction and safe for concurrent use.
type JwtIssuer struct {
	method     jwt.SigningMethod
	signKey    interface{}
	verifyKey  interface{}
	keyID      string
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewHMACIssuer creates an HS256 issuer from a shared secret
func NewHMACIssuer(secret string, opts ...Option) (*JwtIssuer, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	key := []byte(secret)
	return newJwtIssuer(jwt.SigningMethodHS256, key, key, "", opts...)
}

func newJwtIssuer(method jwt.SigningMethod, signKey, verifyKey interface{}, keyID string, opts ...Option) (*JwtIssuer, error) {
	i := &JwtIssuer{
		method:     method,
		signKey:    signKey,
		verifyKey:  verifyKey,
		keyID:      keyID,
		issuer:     DefaultIssuer,
		audience:   DefaultAudience,
		accessTTL:  DefaultAccessTokenExpiry,
		refreshTTL: DefaultRefreshTokenExpiry,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}

	if i.accessTTL <= 0 {
		return nil, fmt.Errorf("access token expiry must be positive, got %s", i.accessTTL)
	}
	if i.refreshTTL <= i.accessTTL {
		return nil, fmt.Errorf("refresh token expiry (%s) must be longer than access token expiry (%s)", i.refreshTTL, i.accessTTL)
	}
	return i, nil
}

// Issue implements Issuer.Issue
func (i *JwtIssuer) Issue(subject Subject, kind TokenKind) (Token, error) {
	if subject.UserID == "" {
		return Token{}, errors.New("token subject is required")
	}
	if kind != AccessToken && kind != RefreshToken {
		return Token{}, fmt.Errorf("unsupported token kind: %q", kind)
	}

	issuedAt := i.now().UTC()
	expiresAt := issuedAt.Add(i.TTL(kind))
	claims := Claims{
		Email: subject.Email,
		Role:  subject.Role,
		Kind:  kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			Issuer:    i.issuer,
			Subject:   subject.UserID,
			ID:        uuid.New().String(),
			Audience:  jwt.ClaimStrings{i.audience},
		},
	}

	token := jwt.NewWithClaims(i.method, claims)
	if i.keyID != "" {
		token.Header["kid"] = i.keyID
	}

	signed, err := token.SignedString(i.signKey)
	if err != nil {
		slog.Error("Failed to sign token", "kind", kind, "err", err)
		return Token{}, err
	}

	return Token{
		Value:     signed,
		Kind:      kind,
		ID:        claims.ID,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Validate implements Issuer.Validate
func (i *JwtIssuer) Validate(tokenStr string) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims,
		func(*jwt.Token) (interface{}, error) {
			return i.verifyKey, nil
		},
		jwt.WithValidMethods([]string{i.method.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	if claims.Kind != AccessToken && claims.Kind != RefreshToken {
		return nil, fmt.Errorf("%w: unknown token type %q", ErrInvalidToken, claims.Kind)
	}
	return claims, nil
}

// ValidateKind implements Issuer.ValidateKind
func (i *JwtIssuer) ValidateKind(tokenStr string, kind TokenKind) (*Claims, error) {
	claims, err := i.Validate(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.Kind != kind {
		return nil, fmt.Errorf("%w: expected %s token, got %s", ErrInvalidToken, kind, claims.Kind)
	}
	return claims, nil
}

// TTL implements Issuer.TTL
func (i *JwtIssuer) TTL(kind TokenKind) time.Duration {
	if kind == RefreshToken {
		return i.refreshTTL
	}
	return i.accessTTL
}
