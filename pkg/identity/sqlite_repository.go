package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SQLiteRepository implements Repository on an embedded SQLite database.
// Timestamps are stored as unix milliseconds.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite identity repository. The schema
// must already be applied, see database.OpenSQLite.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const sqliteSelectUser = `SELECT u.id, u.code, u.name, u.email, u.password_hash, u.role, u.status, u.created_at, u.last_login,
	p.id, p.phone, p.address, p.birth_date, p.profile_picture_url, p.emergency_contact_name,
	p.emergency_contact_phone, p.academic_program, p.semester, p.created_at, p.updated_at
FROM users u LEFT JOIN user_profiles p ON p.user_id = u.id`

const sqliteUpsertProfile = `INSERT INTO user_profiles (id, user_id, phone, address, birth_date, profile_picture_url,
	emergency_contact_name, emergency_contact_phone, academic_program, semester, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id) DO UPDATE SET
	phone = excluded.phone,
	address = excluded.address,
	birth_date = excluded.birth_date,
	profile_picture_url = excluded.profile_picture_url,
	emergency_contact_name = excluded.emergency_contact_name,
	emergency_contact_phone = excluded.emergency_contact_phone,
	academic_program = excluded.academic_program,
	semester = excluded.semester,
	updated_at = excluded.updated_at`

// Create implements Repository.Create
func (r *SQLiteRepository) Create(ctx context.Context, user User) (User, error) {
	stored := user.Clone()
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	err := r.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO users (id, code, name, email, password_hash, role, status, created_at, last_login)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			stored.ID.String(), stored.Code, stored.Name, stored.Email, stored.PasswordHash,
			string(stored.Role), string(stored.Status), toMillis(stored.CreatedAt), toNullMillis(stored.LastLogin))
		if err != nil {
			return mapSQLiteWriteError(err)
		}
		if stored.Profile != nil {
			return r.writeProfile(ctx, tx, stored.ID, stored.Profile)
		}
		return nil
	})
	if err != nil {
		return User{}, err
	}
	return stored, nil
}

// GetByID implements Repository.GetByID
func (r *SQLiteRepository) GetByID(ctx context.Context, id uuid.UUID) (User, error) {
	return r.getOne(ctx, sqliteSelectUser+" WHERE u.id = ?", id.String())
}

// GetByEmail implements Repository.GetByEmail
func (r *SQLiteRepository) GetByEmail(ctx context.Context, email string) (User, error) {
	return r.getOne(ctx, sqliteSelectUser+" WHERE u.email = ?", email)
}

// GetByCode implements Repository.GetByCode
func (r *SQLiteRepository) GetByCode(ctx context.Context, code string) (User, error) {
	return r.getOne(ctx, sqliteSelectUser+" WHERE u.code = ?", code)
}

// ExistsByEmail implements Repository.ExistsByEmail
func (r *SQLiteRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)", email)
}

// ExistsByCode implements Repository.ExistsByCode
func (r *SQLiteRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	return r.exists(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE code = ?)", code)
}

// Update implements Repository.Update
func (r *SQLiteRepository) Update(ctx context.Context, user User) (User, error) {
	updated := user.Clone()

	err := r.inTx(ctx, func(tx *sql.Tx) error {
		var (
			status    string
			createdAt int64
			lastLogin sql.NullInt64
		)
		err := tx.QueryRowContext(ctx, "SELECT code, email, status, created_at, last_login FROM users WHERE id = ?", updated.ID.String()).
			Scan(&updated.Code, &updated.Email, &status, &createdAt, &lastLogin)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load user: %w", err)
		}
		updated.Status = Status(status)
		updated.CreatedAt = fromMillis(createdAt)
		updated.LastLogin = fromNullMillis(lastLogin)

		_, err = tx.ExecContext(ctx, "UPDATE users SET name = ?, password_hash = ?, role = ? WHERE id = ?",
			updated.Name, updated.PasswordHash, string(updated.Role), updated.ID.String())
		if err != nil {
			return fmt.Errorf("failed to update user: %w", err)
		}
		if updated.Profile != nil {
			return r.writeProfile(ctx, tx, updated.ID, updated.Profile)
		}
		return nil
	})
	if err != nil {
		return User{}, err
	}
	return updated, nil
}

// UpdateLastLogin implements Repository.UpdateLastLogin
func (r *SQLiteRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.execOne(ctx, "UPDATE users SET last_login = MAX(?, created_at) WHERE id = ?", toMillis(at), id.String())
}

// UpdateStatus implements Repository.UpdateStatus
func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	return r.execOne(ctx, "UPDATE users SET status = ? WHERE id = ?", string(status), id.String())
}

// Delete implements Repository.Delete
func (r *SQLiteRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.execOne(ctx, "DELETE FROM users WHERE id = ?", id.String())
}

// List implements Repository.List
func (r *SQLiteRepository) List(ctx context.Context, filter ListFilter, page Page) ([]User, int, error) {
	where, args := buildWhere(filter, sqliteDialect)
	page = page.Normalize()

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT count(*) FROM users u"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, sqliteSelectUser+where+" ORDER BY u.created_at, u.id LIMIT ? OFFSET ?",
		append(args, page.Size, page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanSQLiteUser(rows)
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
func (r *SQLiteRepository) CountByRole(ctx context.Context) (map[Role]int, error) {
	counts := make(map[Role]int)
	err := r.groupCount(ctx, "SELECT role, count(*) FROM users GROUP BY role", func(key string, n int) {
		counts[Role(key)] = n
	})
	return counts, err
}

// CountByStatus implements Repository.CountByStatus
func (r *SQLiteRepository) CountByStatus(ctx context.Context) (map[Status]int, error) {
	counts := make(map[Status]int)
	err := r.groupCount(ctx, "SELECT status, count(*) FROM users GROUP BY status", func(key string, n int) {
		counts[Status(key)] = n
	})
	return counts, err
}

func (r *SQLiteRepository) groupCount(ctx context.Context, query string, fn func(key string, n int)) error {
	rows, err := r.db.QueryContext(ctx, query)
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

func (r *SQLiteRepository) getOne(ctx context.Context, query string, arg interface{}) (User, error) {
	u, err := scanSQLiteUser(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	return u, err
}

func (r *SQLiteRepository) exists(ctx context.Context, query string, arg interface{}) (bool, error) {
	var found bool
	if err := r.db.QueryRowContext(ctx, query, arg).Scan(&found); err != nil {
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	return found, nil
}

func (r *SQLiteRepository) execOne(ctx context.Context, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *SQLiteRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Warn("Failed to rollback transaction", "err", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) writeProfile(ctx context.Context, tx *sql.Tx, userID uuid.UUID, p *Profile) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	var semester interface{}
	if p.Semester != nil {
		semester = *p.Semester
	}
	_, err := tx.ExecContext(ctx, sqliteUpsertProfile,
		p.ID.String(), userID.String(), p.Phone, p.Address, toNullMillis(p.BirthDate), p.ProfilePictureURL,
		p.EmergencyContactName, p.EmergencyContactPhone, p.AcademicProgram, semester,
		toMillis(p.CreatedAt), toMillis(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}
	return nil
}

func scanSQLiteUser(row rowScanner) (User, error) {
	var (
		u                                  User
		id, role, status                   string
		createdAt                          int64
		lastLogin                          sql.NullInt64
		profileID                          sql.NullString
		phone, address, pictureURL         sql.NullString
		contactName, contactPhone, program sql.NullString
		birthDate, semester                sql.NullInt64
		profileCreatedAt, profileUpdatedAt sql.NullInt64
	)
	err := row.Scan(
		&id, &u.Code, &u.Name, &u.Email, &u.PasswordHash, &role, &status, &createdAt, &lastLogin,
		&profileID, &phone, &address, &birthDate, &pictureURL, &contactName,
		&contactPhone, &program, &semester, &profileCreatedAt, &profileUpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, err
		}
		return User{}, fmt.Errorf("failed to scan user: %w", err)
	}

	if u.ID, err = uuid.Parse(id); err != nil {
		return User{}, fmt.Errorf("failed to parse user id: %w", err)
	}
	u.Role = Role(role)
	u.Status = Status(status)
	u.CreatedAt = fromMillis(createdAt)
	u.LastLogin = fromNullMillis(lastLogin)

	if profileID.Valid {
		pid, err := uuid.Parse(profileID.String)
		if err != nil {
			return User{}, fmt.Errorf("failed to parse profile id: %w", err)
		}
		p := &Profile{
			ID:                    pid,
			Phone:                 fromNullString(phone),
			Address:               fromNullString(address),
			BirthDate:             fromNullMillis(birthDate),
			ProfilePictureURL:     fromNullString(pictureURL),
			EmergencyContactName:  fromNullString(contactName),
			EmergencyContactPhone: fromNullString(contactPhone),
			AcademicProgram:       fromNullString(program),
			CreatedAt:             fromMillis(profileCreatedAt.Int64),
			UpdatedAt:             fromMillis(profileUpdatedAt.Int64),
		}
		if semester.Valid {
			s := int(semester.Int64)
			p.Semester = &s
		}
		u.Profile = p
	}
	return u, nil
}

// mapSQLiteWriteError translates UNIQUE failures into the duplicate
// sentinels. The driver reports them only in the message text.
func mapSQLiteWriteError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed: users.email"):
		return ErrDuplicateEmail
	case strings.Contains(msg, "UNIQUE constraint failed: users.code"):
		return ErrDuplicateCode
	}
	return fmt.Errorf("failed to insert user: %w", err)
}

var sqliteDialect = whereDialect{
	placeholder: func(int) string { return "?" },
	like:        "LIKE",
	timeArg:     func(t time.Time) interface{} { return toMillis(t) },
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func toNullMillis(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func fromNullMillis(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMillis(n.Int64)
	return &t
}

func fromNullString(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	s := n.String
	return &s
}
