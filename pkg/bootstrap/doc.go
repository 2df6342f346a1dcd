// Package bootstrap prepares a fresh deployment: it creates the first
// ADMIN user on an empty directory and provisions the RS256 signing key.
//
//	result, err := bootstrap.EnsureAdmin(ctx, repo, hasher, bootstrap.AdminConfig{
//		Email: cfg.Bootstrap.Email,
//		Name:  cfg.Bootstrap.Name,
//	})
//	bootstrap.PrintAdminResult(os.Stdout, result)
package bootstrap
