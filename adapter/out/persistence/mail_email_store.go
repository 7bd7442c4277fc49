package persistence

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"mailagent/core/domain"
	"mailagent/core/port/out"
	"mailagent/pkg/apperr"
)

// EmailStore persists per-user message state. Files are keyed by user_id so
// a username rename never moves data on disk.
type EmailStore struct {
	dir string // <data>/users
	log zerolog.Logger
}

// NewEmailStore creates the store under dataDir.
func NewEmailStore(dataDir string, log zerolog.Logger) (*EmailStore, error) {
	dir := filepath.Join(dataDir, "users")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperr.PersistenceError("create data directory", err)
	}
	return &EmailStore{
		dir: dir,
		log: log.With().Str("component", "email_store").Logger(),
	}, nil
}

func (s *EmailStore) path(key string) string {
	return filepath.Join(s.dir, fmt.Sprintf("user_email_data_%s.json", key))
}

// LoadEmailData loads the user's state file. When only a legacy
// username-keyed file exists it is migrated to the user_id path and the old
// file removed. A missing file yields empty state.
func (s *EmailStore) LoadEmailData(userID, legacyUsername string) (*domain.EmailData, error) {
	path := s.path(userID)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) && legacyUsername != "" {
		legacyPath := s.path(legacyUsername)
		if legacyData, legacyErr := os.ReadFile(legacyPath); legacyErr == nil {
			if writeErr := os.WriteFile(path, legacyData, 0o600); writeErr != nil {
				return nil, apperr.PersistenceError("migrate email data", writeErr)
			}
			if rmErr := os.Remove(legacyPath); rmErr != nil {
				s.log.Warn().Err(rmErr).Str("path", legacyPath).Msg("legacy file left behind")
			}
			s.log.Info().Str("user_id", userID).Str("legacy", legacyUsername).Msg("migrated legacy email data file")
			data, err = legacyData, nil
		}
	}
	if err != nil {
		if os.IsNotExist(err) {
			return domain.NewEmailData(), nil
		}
		return nil, apperr.PersistenceError("read email data", err)
	}

	var state domain.EmailData
	if err := json.Unmarshal(data, &state); err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("corrupt email data, starting empty")
		return domain.NewEmailData(), nil
	}
	if state.EmailsCache == nil {
		state.EmailsCache = []*domain.Email{}
	}
	if state.History == nil {
		state.History = []*domain.HistoryRecord{}
	}
	if state.Activities == nil {
		state.Activities = []domain.Activity{}
	}
	return &state, nil
}

// SaveEmailData rewrites the whole state file. The caller holds the user
// lock; last writer wins.
func (s *EmailStore) SaveEmailData(userID string, data *domain.EmailData) error {
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return apperr.PersistenceError("encode email data", err)
	}
	if err := os.WriteFile(s.path(userID), encoded, 0o600); err != nil {
		return apperr.PersistenceError("write email data", err)
	}
	return nil
}

var _ out.EmailStorePort = (*EmailStore)(nil)
