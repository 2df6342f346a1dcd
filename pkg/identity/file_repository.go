package identity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const usersFileName = "users.json"

// fileIdentityData is the on-disk document
type fileIdentityData struct {
	Users []fileUser `json:"users"`
}

// fileUser is the stored form of a User. It carries the password hash,
// which User itself never serializes.
type fileUser struct {
	User
	PasswordHash string `json:"password_hash"`
}

// FileRepository implements Repository on top of InMemoryRepository and
// rewrites a JSON document after every mutation.
type FileRepository struct {
	*InMemoryRepository
	dataDir string
}

// NewFileRepository creates a new file-based identity repository
func NewFileRepository(dataDir string) (*FileRepository, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	repo := &FileRepository{
		InMemoryRepository: NewInMemoryRepository(),
		dataDir:            dataDir,
	}

	if err := repo.loadFile(); err != nil {
		return nil, fmt.Errorf("failed to load data: %w", err)
	}
	repo.persist = repo.save

	return repo, nil
}

func (r *FileRepository) path() string {
	return filepath.Join(r.dataDir, usersFileName)
}

func (r *FileRepository) loadFile() error {
	data, err := os.ReadFile(r.path())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var doc fileIdentityData
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}
	users := make([]User, len(doc.Users))
	for i, fu := range doc.Users {
		users[i] = fu.User
		users[i].PasswordHash = fu.PasswordHash
	}
	return r.load(users)
}

// save writes users to file atomically
func (r *FileRepository) save(users []User) error {
	doc := fileIdentityData{Users: make([]fileUser, len(users))}
	for i, u := range users {
		doc.Users[i] = fileUser{User: u, PasswordHash: u.PasswordHash}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	tempFile := r.path() + ".tmp"
	if err := os.WriteFile(tempFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tempFile, r.path()); err != nil {
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}
