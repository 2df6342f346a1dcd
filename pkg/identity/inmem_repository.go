package identity

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRepository implements Repository using in-memory storage.
// Uniqueness is checked under the write lock.
type InMemoryRepository struct {
	mu      sync.RWMutex
	users   map[uuid.UUID]User
	byEmail map[string]uuid.UUID
	byCode  map[string]uuid.UUID

	// persist, when set, is called under the write lock after every
	// mutation. A failure rolls the mutation back.
	persist func(users []User) error
}

// NewInMemoryRepository creates a new in-memory identity repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		users:   make(map[uuid.UUID]User),
		byEmail: make(map[string]uuid.UUID),
		byCode:  make(map[string]uuid.UUID),
	}
}

// Create implements Repository.Create
func (r *InMemoryRepository) Create(ctx context.Context, user User) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byEmail[user.Email]; ok {
		return User{}, ErrDuplicateEmail
	}
	if _, ok := r.byCode[user.Code]; ok {
		return User{}, ErrDuplicateCode
	}

	stored := user.Clone()
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	if _, ok := r.users[stored.ID]; ok {
		return User{}, fmt.Errorf("user id already in use: %s", stored.ID)
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	r.put(stored)
	if err := r.flush(); err != nil {
		r.remove(stored.ID)
		return User{}, err
	}
	return stored.Clone(), nil
}

// GetByID implements Repository.GetByID
func (r *InMemoryRepository) GetByID(ctx context.Context, id uuid.UUID) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user.Clone(), nil
}

// GetByEmail implements Repository.GetByEmail
func (r *InMemoryRepository) GetByEmail(ctx context.Context, email string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return r.users[id].Clone(), nil
}

// GetByCode implements Repository.GetByCode
func (r *InMemoryRepository) GetByCode(ctx context.Context, code string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byCode[code]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return r.users[id].Clone(), nil
}

// ExistsByEmail implements Repository.ExistsByEmail
func (r *InMemoryRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byEmail[email]
	return ok, nil
}

// ExistsByCode implements Repository.ExistsByCode
func (r *InMemoryRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byCode[code]
	return ok, nil
}

// Update implements Repository.Update
func (r *InMemoryRepository) Update(ctx context.Context, user User) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.users[user.ID]
	if !ok {
		return User{}, ErrUserNotFound
	}

	updated := existing.Clone()
	updated.Name = user.Name
	updated.PasswordHash = user.PasswordHash
	updated.Role = user.Role
	if user.Profile != nil {
		p := user.Profile.clone()
		updated.Profile = &p
	}

	r.put(updated)
	if err := r.flush(); err != nil {
		r.put(existing)
		return User{}, err
	}
	return updated.Clone(), nil
}

// UpdateLastLogin implements Repository.UpdateLastLogin. The stored value is
// never earlier than CreatedAt.
func (r *InMemoryRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.mutate(id, func(u *User) {
		t := at
		if t.Before(u.CreatedAt) {
			t = u.CreatedAt
		}
		u.LastLogin = &t
	})
}

// UpdateStatus implements Repository.UpdateStatus
func (r *InMemoryRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	return r.mutate(id, func(u *User) {
		u.Status = status
	})
}

// Delete implements Repository.Delete
func (r *InMemoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}

	r.remove(id)
	if err := r.flush(); err != nil {
		r.put(existing)
		return err
	}
	return nil
}

// List implements Repository.List
func (r *InMemoryRepository) List(ctx context.Context, filter ListFilter, page Page) ([]User, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []User
	for _, u := range r.users {
		if filter.Matches(u) {
			matches = append(matches, u)
		}
	}
	sortUsers(matches)

	page = page.Normalize()
	total := len(matches)
	start := page.Offset()
	if start >= total {
		return []User{}, total, nil
	}
	end := start + page.Size
	if end > total {
		end = total
	}

	result := make([]User, 0, end-start)
	for _, u := range matches[start:end] {
		result = append(result, u.Clone())
	}
	return result, total, nil
}

// CountByRole implements Repository.CountByRole
func (r *InMemoryRepository) CountByRole(ctx context.Context) (map[Role]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[Role]int)
	for _, u := range r.users {
		counts[u.Role]++
	}
	return counts, nil
}

// CountByStatus implements Repository.CountByStatus
func (r *InMemoryRepository) CountByStatus(ctx context.Context) (map[Status]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[Status]int)
	for _, u := range r.users {
		counts[u.Status]++
	}
	return counts, nil
}

func (r *InMemoryRepository) mutate(id uuid.UUID, fn func(u *User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}

	updated := existing.Clone()
	fn(&updated)
	r.put(updated)
	if err := r.flush(); err != nil {
		r.put(existing)
		return err
	}
	return nil
}

// load replaces the repository contents. Callers must not hold the lock.
func (r *InMemoryRepository) load(users []User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.users = make(map[uuid.UUID]User, len(users))
	r.byEmail = make(map[string]uuid.UUID, len(users))
	r.byCode = make(map[string]uuid.UUID, len(users))
	for _, u := range users {
		if _, ok := r.byEmail[u.Email]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateEmail, u.Email)
		}
		if _, ok := r.byCode[u.Code]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateCode, u.Code)
		}
		r.put(u.Clone())
	}
	return nil
}

func (r *InMemoryRepository) put(u User) {
	if old, ok := r.users[u.ID]; ok {
		delete(r.byEmail, old.Email)
		delete(r.byCode, old.Code)
	}
	r.users[u.ID] = u
	r.byEmail[u.Email] = u.ID
	r.byCode[u.Code] = u.ID
}

func (r *InMemoryRepository) remove(id uuid.UUID) {
	if old, ok := r.users[id]; ok {
		delete(r.byEmail, old.Email)
		delete(r.byCode, old.Code)
		delete(r.users, id)
	}
}

func (r *InMemoryRepository) flush() error {
	if r.persist == nil {
		return nil
	}
	users := make([]User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, u.Clone())
	}
	sortUsers(users)
	return r.persist(users)
}

func sortUsers(users []User) {
	sort.Slice(users, func(i, j int) bool {
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.Before(users[j].CreatedAt)
		}
		return users[i].ID.String() < users[j].ID.String()
	})
}
