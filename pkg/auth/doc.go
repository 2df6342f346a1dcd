// Package auth is the authentication coordinator: it registers users,
// verifies credentials and hands out access and refresh token pairs.
//
// Service composes an identity.Repository, a password.PasswordHasher and a
// tokengenerator.Issuer:
//
//	svc := auth.NewService(repo, password.NewMultiHasher(nil), issuer,
//		auth.WithPasswordPolicy(password.NewPolicyChecker(nil)),
//		auth.WithRecorder(m),
//	)
//
//	result, err := svc.Authenticate(ctx, "ana@uni.edu", "s3cret!")
//
// Unknown emails, wrong passwords and inactive accounts all fail with the
// same UNAUTHORIZED error. Email and code collisions fail with
// ALREADY_EXISTS whether they are caught by the pre-check or by the store.
package auth
