// Package storage keeps the client's journal entries in a local file
// sealed with the vault master key.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/atinyakov/cortexvault/internal/models"
)

// FileName is the default entry file name inside the data directory.
const FileName = "entries.vault"

// Sealer encrypts the file contents at rest.
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(blob []byte) ([]byte, error)
}

// LocalStorage is the client's entry store.
type LocalStorage struct {
	Entries  []models.Entry   `json:"entries"`
	Insights []models.Insight `json:"insights,omitempty"`

	path   string
	sealer Sealer
	now    func() time.Time
	mu     sync.Mutex
}

// New returns a store persisted at path. A nil sealer writes plain JSON.
func New(path string, sealer Sealer) *LocalStorage {
	return &LocalStorage{path: path, sealer: sealer, now: time.Now}
}

// Path returns the backing file.
func (ls *LocalStorage) Path() string {
	return ls.path
}

// Load reads the file. A missing file yields an empty store.
func (ls *LocalStorage) Load() error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	raw, err := os.ReadFile(ls.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			ls.Entries = []models.Entry{}
			ls.Insights = nil
			return nil
		}
		return err
	}

	if ls.sealer != nil {
		raw, err = ls.sealer.Open(raw)
		if err != nil {
			return fmt.Errorf("open local entries: %w", err)
		}
	}

	var data struct {
		Entries  []models.Entry   `json:"entries"`
		Insights []models.Insight `json:"insights,omitempty"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("decode local entries: %w", err)
	}
	ls.Entries = data.Entries
	ls.Insights = data.Insights
	if ls.Entries == nil {
		ls.Entries = []models.Entry{}
	}
	return nil
}

// Save writes the store atomically with 0600 permissions.
func (ls *LocalStorage) Save() error {
	ls.mu.Lock()
	raw, err := json.Marshal(ls)
	ls.mu.Unlock()
	if err != nil {
		return err
	}

	if ls.sealer != nil {
		raw, err = ls.sealer.Seal(raw)
		if err != nil {
			return fmt.Errorf("seal local entries: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(ls.path), 0o700); err != nil {
		return err
	}
	tmp := ls.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, ls.path)
}

// Add appends e, stamping CreatedAt and UpdatedAt when unset.
func (ls *LocalStorage) Add(e models.Entry) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	now := ls.now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = e.CreatedAt
	}
	ls.Entries = append(ls.Entries, e)
}

// List returns the live entries, newest first.
func (ls *LocalStorage) List() []models.Entry {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	out := make([]models.Entry, 0, len(ls.Entries))
	for _, e := range ls.Entries {
		if !e.Deleted {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// Get returns a live entry by id or nil.
func (ls *LocalStorage) Get(id string) *models.Entry {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	for _, e := range ls.Entries {
		if e.ID == id && !e.Deleted {
			return &e
		}
	}
	return nil
}

// Delete tombstones an entry so the deletion wins later merges.
func (ls *LocalStorage) Delete(id string) bool {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	for i, e := range ls.Entries {
		if e.ID == id && !e.Deleted {
			ls.Entries[i].Deleted = true
			ls.Entries[i].UpdatedAt = ls.now().UTC()
			return true
		}
	}
	return false
}

// Edit updates a live entry. Nil tags keep the existing ones.
func (ls *LocalStorage) Edit(id, title, content string, tags []string) bool {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	for i, e := range ls.Entries {
		if e.ID != id || e.Deleted {
			continue
		}
		ls.Entries[i].Title = title
		ls.Entries[i].Content = content
		if tags != nil {
			ls.Entries[i].Tags = tags
		}
		ls.Entries[i].UpdatedAt = ls.now().UTC()
		return true
	}
	return false
}

// Snapshot copies entries, tombstones included, and insights for backup.
func (ls *LocalStorage) Snapshot() ([]models.Entry, []models.Insight) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	entries := append([]models.Entry(nil), ls.Entries...)
	insights := append([]models.Insight(nil), ls.Insights...)
	return entries, insights
}

// Clear drops every entry and removes the file.
func (ls *LocalStorage) Clear() error {
	ls.mu.Lock()
	ls.Entries = []models.Entry{}
	ls.Insights = nil
	ls.mu.Unlock()

	if err := os.Remove(ls.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
