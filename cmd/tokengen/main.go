// Command tokengen signs a token with the service's HS256 settings, for
// exercising the API by hand.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/attendance-idm/pkg/identity"
	"github.com/tendant/attendance-idm/pkg/tokengenerator"
)

func main() {
	secret := flag.String("secret", os.Getenv("JWT_SECRET"), "HS256 secret (defaults to $JWT_SECRET)")
	issuer := flag.String("issuer", tokengenerator.DefaultIssuer, "Issuer of the token")
	audience := flag.String("audience", tokengenerator.DefaultAudience, "Audience of the token")
	subject := flag.String("subject", uuid.NewString(), "User ID the token is issued for")
	email := flag.String("email", "admin@example.edu", "Email claim")
	role := flag.String("role", string(identity.RoleAdmin), "Role claim: STUDENT, PROFESSOR or ADMIN")
	kind := flag.String("kind", string(tokengenerator.AccessToken), "Token kind: access or refresh")
	expiry := flag.Duration("expiry", 30*time.Minute, "Token lifetime (e.g. 30m, 1h)")
	outputFormat := flag.String("format", "compact", "Output format: compact, full, or debug")
	flag.Parse()

	fail := func(msg string, err error) {
		slog.Error(msg, "err", err)
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
		os.Exit(1)
	}

	if _, err := uuid.Parse(*subject); err != nil {
		fail("Subject must be a UUID", err)
	}
	parsedRole, err := identity.ParseRole(*role)
	if err != nil {
		fail("Invalid role", err)
	}
	tokenKind := tokengenerator.TokenKind(*kind)
	if tokenKind != tokengenerator.AccessToken && tokenKind != tokengenerator.RefreshToken {
		fail("Invalid token kind", fmt.Errorf("%q", *kind))
	}

	// the issuer requires refresh to outlive access
	gen, err := tokengenerator.NewHMACIssuer(*secret,
		tokengenerator.WithIssuer(*issuer),
		tokengenerator.WithAudience(*audience),
		tokengenerator.WithAccessTokenExpiry(*expiry),
		tokengenerator.WithRefreshTokenExpiry(*expiry+time.Second),
	)
	if err != nil {
		fail("Failed to create token issuer", err)
	}

	token, err := gen.Issue(tokengenerator.Subject{
		UserID: *subject,
		Email:  *email,
		Role:   string(parsedRole),
	}, tokenKind)
	if err != nil {
		fail("Failed to generate token", err)
	}

	switch *outputFormat {
	case "compact":
		fmt.Println(token.Value)
	case "full":
		fmt.Printf("Token: %s\nKind: %s\nExpires: %s\n", token.Value, token.Kind, token.ExpiresAt.Format(time.RFC3339))
	case "debug":
		claims, err := gen.Validate(token.Value)
		if err != nil {
			fail("Failed to parse generated token", err)
		}
		fmt.Printf("=== Token Information ===\n")
		fmt.Printf("Token: %s\n\n", token.Value)
		fmt.Printf("=== Token Claims ===\n")
		claimsJSON, _ := json.MarshalIndent(claims, "", "  ")
		fmt.Printf("%s\n\n", claimsJSON)
		fmt.Printf("Expires: %s\n", token.ExpiresAt.Format(time.RFC3339))
	default:
		fmt.Fprintf(os.Stderr, "Error: Unknown output format: %s\n", *outputFormat)
		os.Exit(1)
	}
}
