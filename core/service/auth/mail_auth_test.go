package auth

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"mailagent/core/domain"
	"mailagent/pkg/apperr"
)

type memoryStore struct {
	users   map[string]*domain.User
	mapping map[string]string
	saves   int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{users: map[string]*domain.User{}, mapping: map[string]string{}}
}

func (m *memoryStore) LoadUsers() (map[string]*domain.User, error) { return m.users, nil }

func (m *memoryStore) SaveUsers(users map[string]*domain.User) error {
	m.users = users
	m.saves++
	return nil
}

func (m *memoryStore) ResolveUsername(username string) string {
	visited := map[string]bool{}
	current := username
	for {
		if visited[current] {
			return current
		}
		visited[current] = true
		next, ok := m.mapping[current]
		if !ok {
			return current
		}
		current = next
	}
}

func (m *memoryStore) RecordRename(oldName, newName string) error {
	m.mapping[oldName] = newName
	return nil
}

func (m *memoryStore) MappedTo(username string) (string, bool) {
	next, ok := m.mapping[username]
	return next, ok
}

func newTestService(t *testing.T) (*Service, *memoryStore) {
	t.Helper()
	store := newMemoryStore()
	svc, err := NewService(store, "test-secret", zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	return svc, store
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _ := newTestService(t)

	u, err := svc.Register("alice", "secret123", "alice@example.com", "authcode")
	if err != nil {
		t.Fatal(err)
	}
	if u.UserID == "" {
		t.Error("no user id assigned")
	}
	if u.Password == "secret123" {
		t.Error("password stored in the clear")
	}

	token, got, err := svc.Login("alice", "secret123", "dev1", "laptop", "ua", "127.0.0.1")
	if err != nil {
		t.Fatal(err)
	}
	if got.UserID != u.UserID {
		t.Error("login returned different user")
	}
	if len(got.Devices) != 1 || !got.Devices[0].Current {
		t.Errorf("devices = %+v", got.Devices)
	}

	userID, username, err := svc.ParseToken(token)
	if err != nil {
		t.Fatal(err)
	}
	if userID != u.UserID || username != "alice" {
		t.Errorf("claims = %s / %s", userID, username)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Register("alice", "secret123", "", ""); err != nil {
		t.Fatal(err)
	}
	if _, _, err := svc.Login("alice", "wrong", "", "", "", ""); err == nil {
		t.Fatal("expected error")
	}
}

func TestRegisterDuplicateAndReservedNames(t *testing.T) {
	svc, store := newTestService(t)
	if _, err := svc.Register("alice", "secret123", "", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Register("alice", "secret123", "", ""); err == nil {
		t.Fatal("duplicate registration allowed")
	}

	// a renamed-away username stays reserved forever
	store.mapping["oldname"] = "somewhere"
	if _, err := svc.Register("oldname", "secret123", "", ""); err == nil {
		t.Fatal("reserved username registration allowed")
	}
}

func TestRenamePreservesIdentity(t *testing.T) {
	svc, store := newTestService(t)
	u, err := svc.Register("u1", "secret123", "", "")
	if err != nil {
		t.Fatal(err)
	}

	renamed, err := svc.Rename("u1", "u2")
	if err != nil {
		t.Fatal(err)
	}
	if renamed.UserID != u.UserID {
		t.Error("rename changed user id")
	}
	if got := store.mapping["u1"]; got != "u2" {
		t.Errorf("mapping = %q, want u2", got)
	}

	// login under the old name points at the new one
	_, _, err = svc.Login("u1", "secret123", "", "", "", "")
	if err == nil {
		t.Fatal("old username login succeeded")
	}
	if !strings.Contains(err.Error(), "'u2'") {
		t.Errorf("error does not name the new username: %v", err)
	}

	// new name still works
	if _, _, err := svc.Login("u2", "secret123", "", "", "", ""); err != nil {
		t.Fatal(err)
	}
}

func TestChangePassword(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Register("alice", "secret123", "", ""); err != nil {
		t.Fatal(err)
	}

	if err := svc.ChangePassword("alice", "wrong", "newsecret"); err == nil {
		t.Fatal("change with wrong old password allowed")
	}
	if err := svc.ChangePassword("alice", "secret123", "newsecret"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := svc.Login("alice", "newsecret", "", "", "", ""); err != nil {
		t.Fatal(err)
	}
}

func TestResetPasswordRequiresEmail(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Register("alice", "secret123", "alice@example.com", ""); err != nil {
		t.Fatal(err)
	}

	if err := svc.ResetPassword("alice", "other@example.com", "newsecret"); err == nil {
		t.Fatal("reset with wrong email allowed")
	}
	if err := svc.ResetPassword("alice", "Alice@Example.com", "newsecret"); err != nil {
		t.Fatal(err)
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	svc, _ := newTestService(t)
	if _, _, err := svc.ParseToken("not-a-token"); err == nil {
		t.Fatal("garbage token accepted")
	}
	app := apperr.AsAppError(func() error { _, _, err := svc.ParseToken("x"); return err }())
	if app.Code != apperr.CodeInvalidToken {
		t.Errorf("code = %s", app.Code)
	}
}
