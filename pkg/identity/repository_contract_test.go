package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// baseTime is truncated to milliseconds so every backend round-trips it exactly
var baseTime = time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func newTestUser(code, email string, role Role, createdAt time.Time) User {
	return User{
		Code:         code,
		Name:         "User " + code,
		Email:        email,
		PasswordHash: "$argon2id$v=19$m=16,t=1,p=1$c2FsdA$aGFzaA",
		Role:         role,
		Status:       StatusActive,
		CreatedAt:    createdAt,
	}
}

// runRepositoryContract exercises the behavior every Repository must share
func runRepositoryContract(t *testing.T, newRepo func(t *testing.T) Repository) {
	ctx := context.Background()

	t.Run("CreateAndGet", func(t *testing.T) {
		repo := newRepo(t)
		semester := 3
		u := newTestUser("S001", "alice@uni.edu", RoleStudent, baseTime)
		u.Profile = &Profile{
			Phone:           strPtr("555-0100"),
			AcademicProgram: strPtr("Computer Science"),
			Semester:        &semester,
			CreatedAt:       baseTime,
			UpdatedAt:       baseTime,
		}

		created, err := repo.Create(ctx, u)
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, created.ID)

		for name, get := range map[string]func() (User, error){
			"ByID":    func() (User, error) { return repo.GetByID(ctx, created.ID) },
			"ByEmail": func() (User, error) { return repo.GetByEmail(ctx, "alice@uni.edu") },
			"ByCode":  func() (User, error) { return repo.GetByCode(ctx, "S001") },
		} {
			got, err := get()
			require.NoError(t, err, name)
			assert.Equal(t, created.ID, got.ID, name)
			assert.Equal(t, "S001", got.Code, name)
			assert.Equal(t, RoleStudent, got.Role, name)
			assert.Equal(t, StatusActive, got.Status, name)
			assert.True(t, baseTime.Equal(got.CreatedAt), name)
			assert.Nil(t, got.LastLogin, name)
			require.NotNil(t, got.Profile, name)
			assert.Equal(t, "Computer Science", *got.Profile.AcademicProgram, name)
			assert.Equal(t, 3, *got.Profile.Semester, name)
			assert.Nil(t, got.Profile.Address, name)
		}
	})

	t.Run("CreateWithoutProfile", func(t *testing.T) {
		repo := newRepo(t)
		created, err := repo.Create(ctx, newTestUser("P001", "prof@uni.edu", RoleProfessor, baseTime))
		require.NoError(t, err)

		got, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Nil(t, got.Profile)
	})

	t.Run("Uniqueness", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Create(ctx, newTestUser("S001", "alice@uni.edu", RoleStudent, baseTime))
		require.NoError(t, err)

		_, err = repo.Create(ctx, newTestUser("S002", "alice@uni.edu", RoleStudent, baseTime))
		assert.True(t, errors.Is(err, ErrDuplicateEmail), "got %v", err)

		_, err = repo.Create(ctx, newTestUser("S001", "other@uni.edu", RoleStudent, baseTime))
		assert.True(t, errors.Is(err, ErrDuplicateCode), "got %v", err)

		_, total, err := repo.List(ctx, ListFilter{}, Page{})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
	})

	t.Run("NotFound", func(t *testing.T) {
		repo := newRepo(t)
		missing := uuid.New()

		_, err := repo.GetByID(ctx, missing)
		assert.ErrorIs(t, err, ErrUserNotFound)
		_, err = repo.GetByEmail(ctx, "nobody@uni.edu")
		assert.ErrorIs(t, err, ErrUserNotFound)
		_, err = repo.GetByCode(ctx, "NOPE")
		assert.ErrorIs(t, err, ErrUserNotFound)

		_, err = repo.Update(ctx, User{ID: missing, Name: "x", Role: RoleStudent, Status: StatusActive})
		assert.ErrorIs(t, err, ErrUserNotFound)
		assert.ErrorIs(t, repo.UpdateStatus(ctx, missing, StatusInactive), ErrUserNotFound)
		assert.ErrorIs(t, repo.UpdateLastLogin(ctx, missing, baseTime), ErrUserNotFound)
		assert.ErrorIs(t, repo.Delete(ctx, missing), ErrUserNotFound)
	})

	t.Run("Exists", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Create(ctx, newTestUser("S001", "alice@uni.edu", RoleStudent, baseTime))
		require.NoError(t, err)

		ok, err := repo.ExistsByEmail(ctx, "alice@uni.edu")
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = repo.ExistsByEmail(ctx, "bob@uni.edu")
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = repo.ExistsByCode(ctx, "S001")
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = repo.ExistsByCode(ctx, "S999")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("UpdateKeepsImmutableFields", func(t *testing.T) {
		repo := newRepo(t)
		created, err := repo.Create(ctx, newTestUser("S001", "alice@uni.edu", RoleStudent, baseTime))
		require.NoError(t, err)

		changed := created
		changed.Name = "Alice Renamed"
		changed.Role = RoleProfessor
		changed.Code = "HACKED"
		changed.Email = "hacked@uni.edu"
		changed.CreatedAt = baseTime.Add(time.Hour)
		changed.ApplyProfile(ProfileFields{Address: strPtr("1 Main St")}, baseTime.Add(time.Minute))

		updated, err := repo.Update(ctx, changed)
		require.NoError(t, err)
		assert.Equal(t, "Alice Renamed", updated.Name)
		assert.Equal(t, RoleProfessor, updated.Role)
		assert.Equal(t, "S001", updated.Code)
		assert.Equal(t, "alice@uni.edu", updated.Email)
		assert.True(t, baseTime.Equal(updated.CreatedAt))

		got, err := repo.GetByCode(ctx, "S001")
		require.NoError(t, err)
		assert.Equal(t, "Alice Renamed", got.Name)
		require.NotNil(t, got.Profile)
		assert.Equal(t, "1 Main St", *got.Profile.Address)

		// a second profile write updates the same row
		got.ApplyProfile(ProfileFields{Phone: strPtr("555-0199")}, baseTime.Add(2*time.Minute))
		_, err = repo.Update(ctx, got)
		require.NoError(t, err)

		again, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		require.NotNil(t, again.Profile)
		assert.Equal(t, got.Profile.ID, again.Profile.ID)
		assert.Equal(t, "555-0199", *again.Profile.Phone)
		assert.Equal(t, "1 Main St", *again.Profile.Address)
	})

	t.Run("UpdateKeepsStoredStatus", func(t *testing.T) {
		repo := newRepo(t)
		stale, err := repo.Create(ctx, newTestUser("S001", "alice@uni.edu", RoleStudent, baseTime))
		require.NoError(t, err)

		require.NoError(t, repo.UpdateStatus(ctx, stale.ID, StatusInactive))
		login := baseTime.Add(time.Hour)
		require.NoError(t, repo.UpdateLastLogin(ctx, stale.ID, login))

		stale.Name = "Alice Renamed"
		updated, err := repo.Update(ctx, stale)
		require.NoError(t, err)
		assert.Equal(t, "Alice Renamed", updated.Name)
		assert.Equal(t, StatusInactive, updated.Status)
		require.NotNil(t, updated.LastLogin)
		assert.True(t, login.Equal(*updated.LastLogin))

		got, err := repo.GetByID(ctx, stale.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusInactive, got.Status)
		assert.Equal(t, "Alice Renamed", got.Name)
	})

	t.Run("StatusAndLastLogin", func(t *testing.T) {
		repo := newRepo(t)
		created, err := repo.Create(ctx, newTestUser("S001", "alice@uni.edu", RoleStudent, baseTime))
		require.NoError(t, err)

		require.NoError(t, repo.UpdateStatus(ctx, created.ID, StatusInactive))
		login := baseTime.Add(90 * time.Minute)
		require.NoError(t, repo.UpdateLastLogin(ctx, created.ID, login))

		got, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusInactive, got.Status)
		require.NotNil(t, got.LastLogin)
		assert.True(t, login.Equal(*got.LastLogin))

		require.NoError(t, repo.UpdateLastLogin(ctx, created.ID, baseTime.Add(-time.Hour)))
		got, err = repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		require.NotNil(t, got.LastLogin)
		assert.False(t, got.LastLogin.Before(got.CreatedAt))
	})

	t.Run("DeleteFreesEmailAndCode", func(t *testing.T) {
		repo := newRepo(t)
		u := newTestUser("S001", "alice@uni.edu", RoleStudent, baseTime)
		u.Profile = &Profile{Phone: strPtr("555"), CreatedAt: baseTime, UpdatedAt: baseTime}
		created, err := repo.Create(ctx, u)
		require.NoError(t, err)

		require.NoError(t, repo.Delete(ctx, created.ID))
		_, err = repo.GetByID(ctx, created.ID)
		assert.ErrorIs(t, err, ErrUserNotFound)

		_, err = repo.Create(ctx, newTestUser("S001", "alice@uni.edu", RoleStudent, baseTime))
		assert.NoError(t, err)
	})

	t.Run("ListFiltersAndPages", func(t *testing.T) {
		repo := newRepo(t)
		seed := []struct {
			code string
			name string
			role Role
		}{
			{"S001", "Ana Lopez", RoleStudent},
			{"S002", "Bruno Diaz", RoleStudent},
			{"P001", "Carla Ruiz", RoleProfessor},
			{"S003", "Daniel Lopez", RoleStudent},
			{"A001", "Admin", RoleAdmin},
		}
		for i, s := range seed {
			u := newTestUser(s.code, fmt.Sprintf("u%d@uni.edu", i), s.role, baseTime.Add(time.Duration(i)*time.Minute))
			u.Name = s.name
			_, err := repo.Create(ctx, u)
			require.NoError(t, err)
		}

		all, total, err := repo.List(ctx, ListFilter{}, Page{Number: 0, Size: 2})
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		require.Len(t, all, 2)
		assert.Equal(t, "S001", all[0].Code)
		assert.Equal(t, "S002", all[1].Code)

		last, total, err := repo.List(ctx, ListFilter{}, Page{Number: 2, Size: 2})
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		require.Len(t, last, 1)
		assert.Equal(t, "A001", last[0].Code)

		beyond, total, err := repo.List(ctx, ListFilter{}, Page{Number: 10, Size: 2})
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		assert.Empty(t, beyond)

		student := RoleStudent
		students, total, err := repo.List(ctx, ListFilter{Role: &student}, Page{})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Len(t, students, 3)

		lopez, total, err := repo.List(ctx, ListFilter{Role: &student, NameContains: "lopez"}, Page{})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, lopez, 2)
		assert.Equal(t, "S001", lopez[0].Code)
		assert.Equal(t, "S003", lopez[1].Code)

		_, total, err = repo.List(ctx, ListFilter{NameContains: "100%"}, Page{})
		require.NoError(t, err)
		assert.Equal(t, 0, total)

		inactive := StatusInactive
		_, total, err = repo.List(ctx, ListFilter{Status: &inactive}, Page{})
		require.NoError(t, err)
		assert.Equal(t, 0, total)
	})

	t.Run("ListByLoginAndCreationTime", func(t *testing.T) {
		repo := newRepo(t)
		var ids []uuid.UUID
		for i := 0; i < 3; i++ {
			created, err := repo.Create(ctx, newTestUser(fmt.Sprintf("S00%d", i), fmt.Sprintf("t%d@uni.edu", i), RoleStudent,
				baseTime.Add(time.Duration(i)*24*time.Hour)))
			require.NoError(t, err)
			ids = append(ids, created.ID)
		}
		// S000 logged in recently, S001 a while ago, S002 never
		require.NoError(t, repo.UpdateLastLogin(ctx, ids[0], baseTime.Add(10*24*time.Hour)))
		require.NoError(t, repo.UpdateLastLogin(ctx, ids[1], baseTime.Add(2*24*time.Hour)))

		cutoff := baseTime.Add(5 * 24 * time.Hour)
		stale, total, err := repo.List(ctx, ListFilter{LastLoginBefore: &cutoff}, Page{})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, stale, 2)
		assert.Equal(t, "S001", stale[0].Code)
		assert.Equal(t, "S002", stale[1].Code)

		from := baseTime.Add(24 * time.Hour)
		to := baseTime.Add(2 * 24 * time.Hour)
		between, total, err := repo.List(ctx, ListFilter{CreatedFrom: &from, CreatedTo: &to}, Page{})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, between, 2)
		assert.Equal(t, "S001", between[0].Code)
		assert.Equal(t, "S002", between[1].Code)

		_, total, err = repo.List(ctx, ListFilter{CreatedTo: &baseTime}, Page{})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
	})

	t.Run("Counts", func(t *testing.T) {
		repo := newRepo(t)
		for i, role := range []Role{RoleStudent, RoleStudent, RoleProfessor, RoleAdmin} {
			created, err := repo.Create(ctx, newTestUser(fmt.Sprintf("C%03d", i), fmt.Sprintf("c%d@uni.edu", i), role, baseTime))
			require.NoError(t, err)
			if i == 1 {
				require.NoError(t, repo.UpdateStatus(ctx, created.ID, StatusInactive))
			}
		}

		byRole, err := repo.CountByRole(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[Role]int{RoleStudent: 2, RoleProfessor: 1, RoleAdmin: 1}, byRole)

		byStatus, err := repo.CountByStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[Status]int{StatusActive: 3, StatusInactive: 1}, byStatus)
	})

	t.Run("ConcurrentDuplicateEmail", func(t *testing.T) {
		repo := newRepo(t)
		const workers = 8

		var wg sync.WaitGroup
		var mu sync.Mutex
		succeeded, duplicates := 0, 0
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := repo.Create(ctx, newTestUser(fmt.Sprintf("R%03d", i), "race@uni.edu", RoleStudent, baseTime))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					succeeded++
				case errors.Is(err, ErrDuplicateEmail):
					duplicates++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 1, succeeded)
		assert.Equal(t, workers-1, duplicates)
	})
}
