package out

import "mailagent/core/domain"

// UserStorePort persists user records and the username mapping.
type UserStorePort interface {
	// LoadUsers returns all users keyed by username. A missing or corrupt
	// file yields a seeded default containing one admin user.
	LoadUsers() (map[string]*domain.User, error)

	// SaveUsers writes the whole user map atomically.
	SaveUsers(users map[string]*domain.User) error

	// ResolveUsername follows the rename chain to the current username.
	// Returns the input when no mapping applies.
	ResolveUsername(username string) string

	// RecordRename appends old -> new to the mapping file.
	RecordRename(oldName, newName string) error

	// MappedTo returns the direct successor of username, if any.
	MappedTo(username string) (string, bool)
}

// EmailStorePort persists per-user message state, keyed by user_id.
type EmailStorePort interface {
	// LoadEmailData loads the state file, migrating legacy username-keyed
	// files when found. A missing file yields empty state.
	LoadEmailData(userID, legacyUsername string) (*domain.EmailData, error)

	// SaveEmailData rewrites the whole state file. Callers hold the user lock.
	SaveEmailData(userID string, data *domain.EmailData) error
}
