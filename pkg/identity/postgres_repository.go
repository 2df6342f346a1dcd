package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Unique constraint names from the users migration
const (
	constraintUsersEmail = "users_email_key"
	constraintUsersCode  = "users_code_key"
)

// DBTX is satisfied by *pgxpool.Pool and by pgxmock pools
type DBTX interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db DBTX
}

// NewPostgresRepository creates a new PostgreSQL identity repository
func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectUser = `SELECT u.id, u.code, u.name, u.email, u.password_hash, u.role, u.status, u.created_at, u.last_login,
	p.id, p.phone, p.address, p.birth_date, p.profile_picture_url, p.emergency_contact_name,
	p.emergency_contact_phone, p.academic_program, p.semester, p.created_at, p.updated_at
FROM users u LEFT JOIN user_profiles p ON p.user_id = u.id`

const insertUser = `INSERT INTO users (id, code, name, email, password_hash, role, status, created_at, last_login)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

const upsertProfile = `INSERT INTO user_profiles (id, user_id, phone, address, birth_date, profile_picture_url,
	emergency_contact_name, emergency_contact_phone, academic_program, semester, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (user_id) DO UPDATE SET
	phone = EXCLUDED.phone,
	address = EXCLUDED.address,
	birth_date = EXCLUDED.birth_date,
	profile_picture_url = EXCLUDED.profile_picture_url,
	emergency_contact_name = EXCLUDED.emergency_contact_name,
	emergency_contact_phone = EXCLUDED.emergency_contact_phone,
	academic_program = EXCLUDED.academic_program,
	semester = EXCLUDED.semester,
	updated_at = EXCLUDED.updated_at`

// Create implements Repository.Create
func (r *PostgresRepository) Create(ctx context.Context, user User) (User, error) {
	stored := user.Clone()
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, insertUser,
			stored.ID, stored.Code, stored.Name, stored.Email, stored.PasswordHash,
			string(stored.Role), string(stored.Status), stored.CreatedAt, stored.LastLogin)
		if err != nil {
			return mapWriteError(err)
		}
		if stored.Profile != nil {
			return writeProfile(ctx, tx, stored.ID, stored.Profile)
		}
		return nil
	})
	if err != nil {
		return User{}, err
	}
	return stored, nil
}

// GetByID implements Repository.GetByID
func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (User, error) {
	return r.getOne(ctx, selectUser+" WHERE u.id = $1", id)
}

// GetByEmail implements Repository.GetByEmail
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (User, error) {
	return r.getOne(ctx, selectUser+" WHERE u.email = $1", email)
}

// GetByCode implements Repository.GetByCode
func (r *PostgresRepository) GetByCode(ctx context.Context, code string) (User, error) {
	return r.getOne(ctx, selectUser+" WHERE u.code = $1", code)
}

// ExistsByEmail implements Repository.ExistsByEmail
func (r *PostgresRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)", email)
}

// ExistsByCode implements Repository.ExistsByCode
func (r *PostgresRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	return r.exists(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE code = $1)", code)
}

// Update implements Repository.Update
func (r *PostgresRepository) Update(ctx context.Context, user User) (User, error) {
	updated := user.Clone()

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var status string
		err := tx.QueryRow(ctx,
			`UPDATE users SET name = $2, password_hash = $3, role = $4 WHERE id = $1
RETURNING code, email, status, created_at, last_login`,
			updated.ID, updated.Name, updated.PasswordHash, string(updated.Role),
		).Scan(&updated.Code, &updated.Email, &status, &updated.CreatedAt, &updated.LastLogin)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to update user: %w", err)
		}
		updated.Status = Status(status)
		if updated.Profile != nil {
			return writeProfile(ctx, tx, updated.ID, updated.Profile)
		}
		return nil
	})
	if err != nil {
		return User{}, err
	}
	return updated, nil
}

// UpdateLastLogin implements Repository.UpdateLastLogin. The stored value is
// never earlier than created_at.
func (r *PostgresRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.db.Exec(ctx, "UPDATE users SET last_login = GREATEST($2, created_at) WHERE id = $1", id, at)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdateStatus implements Repository.UpdateStatus
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := r.db.Exec(ctx, "UPDATE users SET status = $2 WHERE id = $1", id, string(status))
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Delete implements Repository.Delete. The profile row goes with the user
// through ON DELETE CASCADE.
func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// List implements Repository.List
func (r *PostgresRepository) List(ctx context.Context, filter ListFilter, page Page) ([]User, int, error) {
	where, args := buildWhere(filter, postgresDialect)
	page = page.Normalize()

	var total int
	if err := r.db.QueryRow(ctx, "SELECT count(*) FROM users u"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	query := fmt.Sprintf("%s%s ORDER BY u.created_at, u.id LIMIT $%d OFFSET $%d",
		selectUser, where, len(args)+1, len(args)+2)
	rows, err := r.db.Query(ctx, query, append(args, page.Size, page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, total, nil
}

// CountByRole implements Repository.CountByRole
func (r *PostgresRepository) CountByRole(ctx context.Context) (map[Role]int, error) {
	counts := make(map[Role]int)
	err := r.groupCount(ctx, "SELECT role, count(*) FROM users GROUP BY role", func(key string, n int) {
		counts[Role(key)] = n
	})
	return counts, err
}

// CountByStatus implements Repository.CountByStatus
func (r *PostgresRepository) CountByStatus(ctx context.Context) (map[Status]int, error) {
	counts := make(map[Status]int)
	err := r.groupCount(ctx, "SELECT status, count(*) FROM users GROUP BY status", func(key string, n int) {
		counts[Status(key)] = n
	})
	return counts, err
}

func (r *PostgresRepository) groupCount(ctx context.Context, query string, fn func(key string, n int)) error {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to count users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("failed to scan count: %w", err)
		}
		fn(key, n)
	}
	return rows.Err()
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg interface{}) (User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	return u, err
}

func (r *PostgresRepository) exists(ctx context.Context, query string, arg interface{}) (bool, error) {
	var found bool
	if err := r.db.QueryRow(ctx, query, arg).Scan(&found); err != nil {
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	return found, nil
}

// inTx runs fn in a transaction, rolling back when fn fails
func (r *PostgresRepository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			slog.Warn("Failed to rollback transaction", "err", rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func writeProfile(ctx context.Context, tx pgx.Tx, userID uuid.UUID, p *Profile) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := tx.Exec(ctx, upsertProfile,
		p.ID, userID, p.Phone, p.Address, p.BirthDate, p.ProfilePictureURL,
		p.EmergencyContactName, p.EmergencyContactPhone, p.AcademicProgram, p.Semester,
		p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}
	return nil
}

// rowScanner is implemented by pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (User, error) {
	var (
		u                User
		role, status     string
		profileID        *uuid.UUID
		profileCreatedAt *time.Time
		profileUpdatedAt *time.Time
		p                Profile
	)
	err := row.Scan(
		&u.ID, &u.Code, &u.Name, &u.Email, &u.PasswordHash, &role, &status, &u.CreatedAt, &u.LastLogin,
		&profileID, &p.Phone, &p.Address, &p.BirthDate, &p.ProfilePictureURL, &p.EmergencyContactName,
		&p.EmergencyContactPhone, &p.AcademicProgram, &p.Semester, &profileCreatedAt, &profileUpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, err
		}
		return User{}, fmt.Errorf("failed to scan user: %w", err)
	}
	u.Role = Role(role)
	u.Status = Status(status)
	if profileID != nil {
		p.ID = *profileID
		if profileCreatedAt != nil {
			p.CreatedAt = *profileCreatedAt
		}
		if profileUpdatedAt != nil {
			p.UpdatedAt = *profileUpdatedAt
		}
		u.Profile = &p
	}
	return u, nil
}

// mapWriteError translates unique violations into the duplicate sentinels
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case constraintUsersEmail:
			return ErrDuplicateEmail
		case constraintUsersCode:
			return ErrDuplicateCode
		}
	}
	return fmt.Errorf("failed to insert user: %w", err)
}

// whereDialect carries the per-driver pieces of a List WHERE clause
type whereDialect struct {
	placeholder func(n int) string
	like        string
	timeArg     func(t time.Time) interface{}
}

var postgresDialect = whereDialect{
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	like:        "ILIKE",
	timeArg:     func(t time.Time) interface{} { return t },
}

// buildWhere renders the List filter as a WHERE clause. Arguments are
// numbered from 1.
func buildWhere(filter ListFilter, d whereDialect) (string, []interface{}) {
	var conds []string
	var args []interface{}
	bind := func(v interface{}) string {
		args = append(args, v)
		return d.placeholder(len(args))
	}
	if filter.Role != nil {
		conds = append(conds, "u.role = "+bind(string(*filter.Role)))
	}
	if filter.Status != nil {
		conds = append(conds, "u.status = "+bind(string(*filter.Status)))
	}
	if filter.NameContains != "" {
		p := bind("%" + escapeLike(filter.NameContains) + "%")
		conds = append(conds, fmt.Sprintf("u.name %s %s ESCAPE '\\'", d.like, p))
	}
	if filter.LastLoginBefore != nil {
		conds = append(conds, "(u.last_login IS NULL OR u.last_login < "+bind(d.timeArg(*filter.LastLoginBefore))+")")
	}
	if filter.CreatedFrom != nil {
		conds = append(conds, "u.created_at >= "+bind(d.timeArg(*filter.CreatedFrom)))
	}
	if filter.CreatedTo != nil {
		conds = append(conds, "u.created_at <= "+bind(d.timeArg(*filter.CreatedTo)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
