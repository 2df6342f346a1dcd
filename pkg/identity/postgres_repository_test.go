package identity

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/attendance-idm/pkg/database"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func anyArgs(n int) []interface{} {
	args := make([]interface{}, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func newMockRepo(t *testing.T) (*PostgresRepository, pgxmock.PgxPoolIface) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresRepository(mock), mock
}

func TestPostgresRepository_CreateMapsUniqueViolations(t *testing.T) {
	tests := []struct {
		constraint string
		want       error
	}{
		{constraintUsersEmail, ErrDuplicateEmail},
		{constraintUsersCode, ErrDuplicateCode},
	}

	for _, tt := range tests {
		t.Run(tt.constraint, func(t *testing.T) {
			repo, mock := newMockRepo(t)
			mock.ExpectBegin()
			mock.ExpectExec("INSERT INTO users").
				WithArgs(anyArgs(9)...).
				WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: tt.constraint})
			mock.ExpectRollback()

			_, err := repo.Create(context.Background(), newTestUser("S001", "alice@uni.edu", RoleStudent, baseTime))
			assert.ErrorIs(t, err, tt.want)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresRepository_CreateWritesProfileInSameTransaction(t *testing.T) {
	repo, mock := newMockRepo(t)
	u := newTestUser("S001", "alice@uni.edu", RoleStudent, baseTime)
	u.Profile = &Profile{Phone: strPtr("555"), CreatedAt: baseTime, UpdatedAt: baseTime}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users").
		WithArgs(anyArgs(9)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO user_profiles").
		WithArgs(anyArgs(12)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	created, err := repo.Create(context.Background(), u)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	require.NotNil(t, created.Profile)
	assert.NotEqual(t, uuid.Nil, created.Profile.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ProfileFailureRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)
	u := newTestUser("S001", "alice@uni.edu", RoleStudent, baseTime)
	u.Profile = &Profile{Phone: strPtr("555"), CreatedAt: baseTime, UpdatedAt: baseTime}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users").
		WithArgs(anyArgs(9)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO user_profiles").
		WithArgs(anyArgs(12)...).
		WillReturnError(errors.New("check violation"))
	mock.ExpectRollback()

	_, err := repo.Create(context.Background(), u)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_BeginFailure(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBegin().WillReturnError(errors.New("pool closed"))

	_, err := repo.Create(context.Background(), newTestUser("S001", "alice@uni.edu", RoleStudent, baseTime))
	assert.ErrorContains(t, err, "begin transaction")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_UpdateUnknownUser(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE users SET name").
		WithArgs(anyArgs(4)...).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.Update(context.Background(), User{ID: uuid.New(), Role: RoleStudent, Status: StatusActive})
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_UpdateReturnsStoredStatus(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()
	lastLogin := baseTime.Add(time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE users SET name").
		WithArgs(id, "Alice B", "hash", string(RoleStudent)).
		WillReturnRows(pgxmock.NewRows([]string{"code", "email", "status", "created_at", "last_login"}).
			AddRow("S001", "alice@uni.edu", string(StatusInactive), baseTime, &lastLogin))
	mock.ExpectCommit()

	updated, err := repo.Update(context.Background(), User{
		ID: id, Name: "Alice B", PasswordHash: "hash", Role: RoleStudent, Status: StatusActive,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusInactive, updated.Status)
	assert.Equal(t, "S001", updated.Code)
	require.NotNil(t, updated.LastLogin)
	assert.True(t, lastLogin.Equal(*updated.LastLogin))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_RowsAffected(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()

	t.Run("StatusNotFound", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec("UPDATE users SET status").
			WithArgs(id, string(StatusInactive)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		assert.ErrorIs(t, repo.UpdateStatus(ctx, id, StatusInactive), ErrUserNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("LastLogin", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		at := time.Now()
		mock.ExpectExec("UPDATE users SET last_login").
			WithArgs(id, at).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		assert.NoError(t, repo.UpdateLastLogin(ctx, id, at))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Delete", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec("DELETE FROM users").
			WithArgs(id).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))

		assert.NoError(t, repo.Delete(ctx, id))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresRepository_ExistsAndCounts(t *testing.T) {
	ctx := context.Background()
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("alice@uni.edu").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT role").
		WillReturnRows(pgxmock.NewRows([]string{"role", "count"}).
			AddRow("STUDENT", 4).
			AddRow("ADMIN", 1))

	ok, err := repo.ExistsByEmail(ctx, "alice@uni.edu")
	require.NoError(t, err)
	assert.True(t, ok)

	counts, err := repo.CountByRole(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[Role]int{RoleStudent: 4, RoleAdmin: 1}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildWhere(t *testing.T) {
	role := RoleProfessor
	where, args := buildWhere(ListFilter{Role: &role, NameContains: "50%_off"}, sqliteDialect)

	assert.Equal(t, ` WHERE u.role = ? AND u.name LIKE ? ESCAPE '\'`, where)
	assert.Equal(t, []interface{}{"PROFESSOR", `%50\%\_off%`}, args)

	where, args = buildWhere(ListFilter{}, sqliteDialect)
	assert.Empty(t, where)
	assert.Nil(t, args)
}

func TestBuildWhere_TimeBounds(t *testing.T) {
	since := baseTime.Add(time.Hour)
	to := baseTime.Add(2 * time.Hour)
	filter := ListFilter{LastLoginBefore: &since, CreatedFrom: &baseTime, CreatedTo: &to}

	where, args := buildWhere(filter, postgresDialect)
	assert.Equal(t, ` WHERE (u.last_login IS NULL OR u.last_login < $1) AND u.created_at >= $2 AND u.created_at <= $3`, where)
	assert.Equal(t, []interface{}{since, baseTime, to}, args)

	_, args = buildWhere(filter, sqliteDialect)
	assert.Equal(t, []interface{}{since.UnixMilli(), baseTime.UnixMilli(), to.UnixMilli()}, args)
}

func TestPostgresRepository_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("idm_db"),
		postgres.WithUsername("idm"),
		postgres.WithPassword("pwd"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connString, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(connString, slog.Default()))

	pool, err := database.NewPool(ctx, connString, database.PoolConfig{}, slog.Default())
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, database.WaitForDB(ctx, pool, slog.Default()))

	runRepositoryContract(t, func(t *testing.T) Repository {
		_, err := pool.Exec(ctx, "TRUNCATE users CASCADE")
		require.NoError(t, err)
		return NewPostgresRepository(pool)
	})
}
