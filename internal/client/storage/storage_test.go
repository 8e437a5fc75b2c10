package storage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/atinyakov/cortexvault/internal/models"
)

// xorSealer is a reversible fake that makes plaintext unreadable on disk.
type xorSealer struct{ fail bool }

func (x xorSealer) Seal(p []byte) ([]byte, error) {
	if x.fail {
		return nil, errors.New("locked")
	}
	out := make([]byte, len(p))
	for i, b := range p {
		out[i] = b ^ 0x5A
	}
	return out, nil
}

func (x xorSealer) Open(b []byte) ([]byte, error) { return x.Seal(b) }

var fixed = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newTestStorage(t *testing.T, sealer Sealer) *LocalStorage {
	t.Helper()
	ls := New(filepath.Join(t.TempDir(), "data", FileName), sealer)
	ls.now = func() time.Time { return fixed }
	return ls
}

func TestLoad_FileNotExist(t *testing.T) {
	ls := newTestStorage(t, nil)
	if err := ls.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if ls.Entries == nil || len(ls.Entries) != 0 {
		t.Errorf("expected empty entries, got %v", ls.Entries)
	}
}

func TestSaveLoad_Sealed(t *testing.T) {
	ls := newTestStorage(t, xorSealer{})
	ls.Add(models.Entry{ID: "1", Title: "secret title", Content: "body"})
	if err := ls.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	raw, err := os.ReadFile(ls.Path())
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(raw, []byte("secret title")) {
		t.Error("entry stored in plaintext")
	}
	info, err := os.Stat(ls.Path())
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v; want 0600", info.Mode().Perm())
	}

	reloaded := New(ls.Path(), xorSealer{})
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(reloaded.Entries) != 1 || reloaded.Entries[0].Title != "secret title" {
		t.Errorf("unexpected entries: %+v", reloaded.Entries)
	}
	if !reloaded.Entries[0].CreatedAt.Equal(fixed) {
		t.Errorf("CreatedAt = %v; want %v", reloaded.Entries[0].CreatedAt, fixed)
	}
}

func TestLoad_Errors(t *testing.T) {
	ls := newTestStorage(t, nil)
	if err := os.MkdirAll(filepath.Dir(ls.Path()), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(ls.Path(), []byte("{broken"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := ls.Load(); err == nil {
		t.Error("expected decode error")
	}

	sealed := New(ls.Path(), xorSealer{fail: true})
	if err := sealed.Load(); err == nil {
		t.Error("expected open error")
	}
	if err := sealed.Save(); err == nil {
		t.Error("expected seal error")
	}
}

func TestList_SkipsDeletedNewestFirst(t *testing.T) {
	ls := newTestStorage(t, nil)
	ls.Add(models.Entry{ID: "old", UpdatedAt: fixed.Add(-time.Hour), CreatedAt: fixed.Add(-time.Hour)})
	ls.Add(models.Entry{ID: "new"})
	ls.Add(models.Entry{ID: "gone", Deleted: true})

	list := ls.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(list))
	}
	if list[0].ID != "new" || list[1].ID != "old" {
		t.Errorf("unexpected order: %s, %s", list[0].ID, list[1].ID)
	}
}

func TestGetDeleteEdit(t *testing.T) {
	ls := newTestStorage(t, nil)
	ls.Add(models.Entry{ID: "1", Title: "t", Tags: []string{"a"}, CreatedAt: fixed.Add(-time.Hour)})

	if ls.Get("1") == nil {
		t.Fatal("expected entry")
	}
	if ls.Get("2") != nil {
		t.Error("unexpected entry")
	}

	if !ls.Edit("1", "new title", "new body", nil) {
		t.Fatal("Edit returned false")
	}
	e := ls.Get("1")
	if e.Title != "new title" || e.Content != "new body" || len(e.Tags) != 1 {
		t.Errorf("unexpected entry after edit: %+v", e)
	}
	if !e.UpdatedAt.Equal(fixed) {
		t.Errorf("UpdatedAt not bumped: %v", e.UpdatedAt)
	}
	if !ls.Edit("1", "t", "b", []string{"x", "y"}) || len(ls.Get("1").Tags) != 2 {
		t.Error("tags not replaced")
	}

	if !ls.Delete("1") {
		t.Fatal("Delete returned false")
	}
	if ls.Delete("1") {
		t.Error("second Delete should return false")
	}
	if ls.Get("1") != nil {
		t.Error("deleted entry still visible")
	}
	if ls.Edit("1", "x", "y", nil) {
		t.Error("Edit of deleted entry should fail")
	}

	entries, _ := ls.Snapshot()
	if len(entries) != 1 || !entries[0].Deleted {
		t.Errorf("snapshot should keep the tombstone: %+v", entries)
	}
}

func TestClear(t *testing.T) {
	ls := newTestStorage(t, nil)
	ls.Add(models.Entry{ID: "1"})
	if err := ls.Save(); err != nil {
		t.Fatal(err)
	}
	if err := ls.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, err := os.Stat(ls.Path()); !os.IsNotExist(err) {
		t.Error("file not removed")
	}
	if err := ls.Clear(); err != nil {
		t.Errorf("second Clear failed: %v", err)
	}
	if len(ls.List()) != 0 {
		t.Error("entries not cleared")
	}
}
