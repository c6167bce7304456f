package settings_test

import (
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/go-cmp/cmp"

	"github.com/molniya/usher/settings"
)

func testDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatalf("couldn't open in-memory badger: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenSeedsDefaults(t *testing.T) {
	db := testDB(t)
	def := settings.Settings{
		Nickname: "Usher",
		Channel:  "/lobby",
		Admins:   []string{"molniya"},
	}
	s, err := settings.Open(db, def)
	if err != nil {
		t.Fatal(err)
	}
	got := s.Current()
	if diff := cmp.Diff(&def, got); diff != "" {
		t.Errorf("wrong seeded settings (+got/-want):\n%s", diff)
	}
}

func TestUpdatePersists(t *testing.T) {
	db := testDB(t)
	def := settings.Settings{Nickname: "Usher", Admins: []string{"molniya"}}
	s, err := settings.Open(db, def)
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.Update(func(v *settings.Settings) {
		v.Nickname = "Porter"
		v.Blocked = append(v.Blocked, "news")
	})
	if err != nil {
		t.Fatalf("couldn't update: %v", err)
	}
	if got.Nickname != "Porter" || !got.Blocklisted("news") {
		t.Errorf("update not applied: %+v", got)
	}
	if got.Version != 1 {
		t.Errorf("version should increment: got %d", got.Version)
	}
	// A fresh store over the same db sees the persisted value, not the
	// default.
	s2, err := settings.Open(db, def)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(got, s2.Current()); diff != "" {
		t.Errorf("reloaded settings differ (+got/-want):\n%s", diff)
	}
}

func TestUpdateDoesNotAliasSnapshots(t *testing.T) {
	db := testDB(t)
	s, err := settings.Open(db, settings.Settings{Admins: []string{"molniya"}})
	if err != nil {
		t.Fatal(err)
	}
	before := s.Current()
	if _, err := s.Update(func(v *settings.Settings) { v.Admins[0] = "ostrov" }); err != nil {
		t.Fatal(err)
	}
	if before.Admins[0] != "molniya" {
		t.Error("update mutated an old snapshot")
	}
	if s.Current().Admins[0] != "ostrov" {
		t.Error("update lost")
	}
}

func TestIsAdmin(t *testing.T) {
	s := settings.Settings{Admins: []string{"Molniya", "ostrov"}}
	cases := []struct {
		user string
		want bool
	}{
		{"molniya", true},
		{"MOLNIYA", true},
		{"ostrov", true},
		{"molniya2", false},
		{"", false},
	}
	for _, c := range cases {
		if got := s.IsAdmin(c.user); got != c.want {
			t.Errorf("IsAdmin(%q): want %v, got %v", c.user, c.want, got)
		}
	}
}
