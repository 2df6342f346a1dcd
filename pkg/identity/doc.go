// Package identity holds the user and profile model and the Identity Store.
//
// A User is created once and looked up by id, email or code. Email and code
// are unique across all users, and every Repository implementation enforces
// that itself so concurrent registrations cannot both succeed.
//
// Four storage backends are provided:
//
//   - PostgresRepository, on a pgx pool
//   - SQLiteRepository, on an embedded modernc.org/sqlite database
//   - FileRepository, a JSON document rewritten atomically on every change
//   - InMemoryRepository, for tests and throwaway instances
//
// NewRepository picks one by name. View is the shape handed to API
// consumers; it never carries the password hash.
package identity
