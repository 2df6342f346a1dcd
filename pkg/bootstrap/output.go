package bootstrap

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// PrintAdminResult writes the bootstrap outcome for the operator. A
// generated password is shown here and nowhere else.
func PrintAdminResult(w io.Writer, result *AdminResult) {
	if result == nil || !result.Created {
		return
	}

	border := strings.Repeat("=", 72)
	fmt.Fprintf(w, "\n%s\n", border)
	fmt.Fprintln(w, "ADMIN BOOTSTRAP COMPLETED")
	fmt.Fprintln(w, border)
	fmt.Fprintf(w, "  User ID:   %s\n", result.UserID)
	fmt.Fprintf(w, "  Code:      %s\n", result.Code)
	fmt.Fprintf(w, "  Email:     %s\n", result.Email)
	if result.PasswordFromEnv {
		fmt.Fprintln(w, "  Password:  (from BOOTSTRAP_ADMIN_PASSWORD)")
	} else {
		fmt.Fprintf(w, "  Password:  %s\n", result.Password)
		fmt.Fprintln(w, "\n  THIS PASSWORD WILL NOT BE DISPLAYED AGAIN. Store it now and change it after first login.")
	}
	fmt.Fprintf(w, "%s\n\n", border)
}

// LogAdminSummary logs the outcome without the password
func LogAdminSummary(result *AdminResult) {
	if result == nil || !result.Created {
		return
	}
	slog.Info("Admin bootstrap summary",
		"user_id", result.UserID,
		"code", result.Code,
		"email", maskEmail(result.Email),
		"password_from_env", result.PasswordFromEnv,
	)
}

// PrintRSAKeyResult writes a one-line description of the signing key
func PrintRSAKeyResult(w io.Writer, result *RSAKeyResult) {
	if result == nil {
		return
	}
	status := "Loaded"
	if result.Generated {
		status = "Generated new"
	}
	fmt.Fprintf(w, "%s RSA key: %s (Key ID: %s, %d bits, fingerprint %s)\n",
		status, result.KeyPath, result.KeyID, result.KeySize, formatFingerprint(result.Fingerprint))
}

// formatFingerprint shows the first 16 bytes as colon separated hex
func formatFingerprint(fingerprint string) string {
	if len(fingerprint) < 32 {
		return fingerprint
	}
	var b strings.Builder
	for i := 0; i < 32; i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(fingerprint[i : i+2])
	}
	if len(fingerprint) > 32 {
		b.WriteString("...")
	}
	return b.String()
}
