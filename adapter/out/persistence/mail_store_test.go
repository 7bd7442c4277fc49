package persistence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"mailagent/core/domain"
)

func newTestUserStore(t *testing.T) *UserStore {
	t.Helper()
	s, err := NewUserStore(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestLoadUsersSeedsAdmin(t *testing.T) {
	s := newTestUserStore(t)

	users, err := s.LoadUsers()
	if err != nil {
		t.Fatal(err)
	}
	admin, ok := users[DefaultAdminUsername]
	if !ok {
		t.Fatal("no admin user seeded")
	}
	if admin.UserID == "" {
		t.Error("admin has no user_id")
	}
	if !CheckPassword(admin.Password, "admin123") {
		t.Error("admin password hash does not verify")
	}
}

func TestLoadUsersRepairsCorruptFile(t *testing.T) {
	s := newTestUserStore(t)
	if err := os.WriteFile(filepath.Join(s.dir, usersFile), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	users, err := s.LoadUsers()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := users[DefaultAdminUsername]; !ok {
		t.Error("corrupt file should reseed the admin user")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestUserStore(t)

	users, _ := s.LoadUsers()
	users["alice"] = &domain.User{
		UserID:   "id-alice",
		Username: "alice",
		Password: HashPassword("secret"),
		Email:    "alice@example.com",
		Settings: domain.AISettings{AutoProcess: true, BatchSize: 8},
	}
	if err := s.SaveUsers(users); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.LoadUsers()
	if err != nil {
		t.Fatal(err)
	}
	alice, ok := loaded["alice"]
	if !ok {
		t.Fatal("alice not persisted")
	}
	if alice.UserID != "id-alice" || alice.Email != "alice@example.com" {
		t.Errorf("round trip lost fields: %+v", alice)
	}
	if !alice.Settings.AutoProcess || alice.Settings.BatchSize != 8 {
		t.Errorf("settings lost: %+v", alice.Settings)
	}
}

func TestResolveUsernameChain(t *testing.T) {
	s := newTestUserStore(t)

	if err := s.RecordRename("u1", "u2"); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordRename("u2", "u3"); err != nil {
		t.Fatal(err)
	}

	if got := s.ResolveUsername("u1"); got != "u3" {
		t.Errorf("ResolveUsername(u1) = %q, want u3", got)
	}
	if got := s.ResolveUsername("u2"); got != "u3" {
		t.Errorf("ResolveUsername(u2) = %q, want u3", got)
	}
	if got := s.ResolveUsername("unmapped"); got != "unmapped" {
		t.Errorf("ResolveUsername(unmapped) = %q", got)
	}
}

func TestRecordRenameRejectsCycle(t *testing.T) {
	s := newTestUserStore(t)

	if err := s.RecordRename("a", "b"); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordRename("b", "a"); err == nil {
		t.Error("expected cycle rejection")
	}
	if err := s.RecordRename("a", "a"); err == nil {
		t.Error("expected self-rename rejection")
	}
}

func TestMappedTo(t *testing.T) {
	s := newTestUserStore(t)

	if _, ok := s.MappedTo("u1"); ok {
		t.Error("unexpected mapping")
	}
	s.RecordRename("u1", "u2")
	next, ok := s.MappedTo("u1")
	if !ok || next != "u2" {
		t.Errorf("MappedTo(u1) = (%q, %v)", next, ok)
	}
}

func newTestEmailStore(t *testing.T) *EmailStore {
	t.Helper()
	s, err := NewEmailStore(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestLoadEmailDataMissingFile(t *testing.T) {
	s := newTestEmailStore(t)

	state, err := s.LoadEmailData("nobody", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(state.EmailsCache) != 0 || len(state.History) != 0 {
		t.Error("missing file should yield empty state")
	}
}

func TestEmailDataRoundTrip(t *testing.T) {
	s := newTestEmailStore(t)

	state := domain.NewEmailData()
	state.EmailsCache = append(state.EmailsCache, &domain.Email{
		ID:      "m1",
		Sender:  "c@example.com",
		Subject: "咨询",
		Body:    "请问价格",
		Status:  domain.StatusPending,
	})
	state.AddActivity("info", "📧", "收到新邮件")
	state.Stats.Processed = 2

	if err := s.SaveEmailData("uid-1", state); err != nil {
		t.Fatal(err)
	}
	loaded, err := s.LoadEmailData("uid-1", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.EmailsCache) != 1 || loaded.EmailsCache[0].ID != "m1" {
		t.Errorf("cache lost: %+v", loaded.EmailsCache)
	}
	if len(loaded.Activities) != 1 {
		t.Errorf("activities lost: %+v", loaded.Activities)
	}
	if loaded.Stats.Processed != 2 {
		t.Errorf("stats lost: %+v", loaded.Stats)
	}
}

func TestLegacyFileMigration(t *testing.T) {
	s := newTestEmailStore(t)

	state := domain.NewEmailData()
	state.EmailsCache = append(state.EmailsCache, &domain.Email{ID: "legacy-1", Status: domain.StatusPending})
	if err := s.SaveEmailData("oldname", state); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.LoadEmailData("uid-9", "oldname")
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.EmailsCache) != 1 || loaded.EmailsCache[0].ID != "legacy-1" {
		t.Fatalf("migration lost data: %+v", loaded.EmailsCache)
	}

	// new path exists, legacy path removed
	if _, err := os.Stat(s.path("uid-9")); err != nil {
		t.Error("migrated file missing")
	}
	if _, err := os.Stat(s.path("oldname")); !os.IsNotExist(err) {
		t.Error("legacy file not removed")
	}
}
