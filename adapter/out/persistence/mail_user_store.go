// Package persistence stores user and message state in local JSON files
// under DATA_DIR. User records are written atomically; message state is a
// full rewrite under the owning user's lock.
package persistence

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"mailagent/core/domain"
	"mailagent/core/port/out"
	"mailagent/pkg/apperr"
)

const (
	usersFile   = "user_data.json"
	mappingFile = "username_mapping.json"

	// DefaultAdminUsername seeds a fresh installation.
	DefaultAdminUsername = "admin"
	defaultAdminPassword = "admin123"
)

// UserStore implements out.UserStorePort.
type UserStore struct {
	dir string // <data>/users
	mu  sync.Mutex
	log zerolog.Logger
}

// NewUserStore creates the store under dataDir.
func NewUserStore(dataDir string, log zerolog.Logger) (*UserStore, error) {
	dir := filepath.Join(dataDir, "users")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperr.PersistenceError("create data directory", err)
	}
	return &UserStore{
		dir: dir,
		log: log.With().Str("component", "user_store").Logger(),
	}, nil
}

// LoadUsers reads user_data.json. A missing or corrupt file yields a seeded
// default with one admin user; malformed records are repaired in place and
// persisted.
func (s *UserStore) LoadUsers() (map[string]*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, usersFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s.seedDefault()
		}
		return nil, apperr.PersistenceError("read user data", err)
	}

	var users map[string]*domain.User
	if err := json.Unmarshal(data, &users); err != nil {
		s.log.Error().Err(err).Msg("corrupt user data, reseeding")
		return s.seedDefault()
	}

	repaired := false
	for name, u := range users {
		if u == nil {
			users[name] = newUser(name, defaultAdminPassword)
			repaired = true
			continue
		}
		u.Username = name
		if u.UserID == "" {
			u.UserID = uuid.NewString()
			repaired = true
		}
		if u.Password == "" {
			u.Password = hashPassword(defaultAdminPassword)
			repaired = true
		}
	}
	if repaired {
		if err := s.saveLocked(users); err != nil {
			return nil, err
		}
		s.log.Warn().Msg("repaired malformed user records")
	}
	return users, nil
}

// SaveUsers writes the whole user map atomically (temp file then rename).
func (s *UserStore) SaveUsers(users map[string]*domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(users)
}

func (s *UserStore) saveLocked(users map[string]*domain.User) error {
	data, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return apperr.PersistenceError("encode user data", err)
	}
	path := filepath.Join(s.dir, usersFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return apperr.PersistenceError("write user data", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return apperr.PersistenceError("replace user data", err)
	}
	return nil
}

func (s *UserStore) seedDefault() (map[string]*domain.User, error) {
	users := map[string]*domain.User{
		DefaultAdminUsername: newUser(DefaultAdminUsername, defaultAdminPassword),
	}
	if err := s.saveLocked(users); err != nil {
		return nil, err
	}
	s.log.Info().Str("username", DefaultAdminUsername).Msg("seeded default admin user")
	return users, nil
}

func newUser(username, password string) *domain.User {
	return &domain.User{
		UserID:       uuid.NewString(),
		Username:     username,
		Password:     hashPassword(password),
		RegisterTime: time.Now().Format("2006-01-02 15:04:05"),
		Settings: domain.AISettings{
			CheckInterval:     5,
			BatchSize:         4,
			SingleConcurrency: 2,
		},
	}
}

func hashPassword(password string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return ""
	}
	return string(hash)
}

// HashPassword exposes the credential hash for the auth handlers.
func HashPassword(password string) string { return hashPassword(password) }

// CheckPassword verifies a password against its stored hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// --- username mapping -------------------------------------------------------

func (s *UserStore) loadMapping() map[string]string {
	data, err := os.ReadFile(filepath.Join(s.dir, mappingFile))
	if err != nil {
		return map[string]string{}
	}
	var mapping map[string]string
	if err := json.Unmarshal(data, &mapping); err != nil {
		s.log.Error().Err(err).Msg("corrupt username mapping, ignoring")
		return map[string]string{}
	}
	return mapping
}

func (s *UserStore) saveMapping(mapping map[string]string) error {
	data, err := json.MarshalIndent(mapping, "", "  ")
	if err != nil {
		return apperr.PersistenceError("encode username mapping", err)
	}
	path := filepath.Join(s.dir, mappingFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return apperr.PersistenceError("write username mapping", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return apperr.PersistenceError("replace username mapping", err)
	}
	return nil
}

// ResolveUsername follows the rename chain until a username with no further
// mapping is found. A visited set guarantees termination on any input.
func (s *UserStore) ResolveUsername(username string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	mapping := s.loadMapping()
	visited := map[string]struct{}{username: {}}
	current := username
	for {
		next, ok := mapping[current]
		if !ok {
			return current
		}
		if _, seen := visited[next]; seen {
			s.log.Error().Str("username", username).Msg("cycle in username mapping")
			return current
		}
		visited[next] = struct{}{}
		current = next
	}
}

// MappedTo returns the direct successor of username, if any.
func (s *UserStore) MappedTo(username string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, ok := s.loadMapping()[username]
	return next, ok
}

// RecordRename appends old -> new to the mapping file. Inserting an entry
// that would close a cycle is rejected.
func (s *UserStore) RecordRename(oldName, newName string) error {
	if oldName == newName {
		return apperr.InvalidInput("username", "old and new names are equal")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	mapping := s.loadMapping()

	// walking from newName must not reach oldName
	visited := map[string]struct{}{}
	current := newName
	for {
		if current == oldName {
			return apperr.InvalidInput("username", "rename would create a mapping cycle")
		}
		if _, seen := visited[current]; seen {
			break
		}
		visited[current] = struct{}{}
		next, ok := mapping[current]
		if !ok {
			break
		}
		current = next
	}

	mapping[oldName] = newName
	return s.saveMapping(mapping)
}

var _ out.UserStorePort = (*UserStore)(nil)
