package session

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Location is the shareable session link. Reading it never mutates it and
// writing it never triggers a reload.
type Location interface {
	URL() (*url.URL, error)
	Replace(u *url.URL) error
}

// FromLocation returns the session id carried by the link, if any.
func FromLocation(loc Location) (ID, bool) {
	u, err := loc.URL()
	if err != nil || u == nil {
		return "", false
	}
	id := ID(u.Query().Get(QueryParam))
	if !id.Valid() {
		return "", false
	}
	return id, true
}

// Persist writes id into the link, keeping every other part of it.
func Persist(loc Location, id ID) error {
	u, err := loc.URL()
	if err != nil {
		return fmt.Errorf("failed to read session link: %w", err)
	}
	next := *u
	q := next.Query()
	q.Set(QueryParam, id.String())
	next.RawQuery = q.Encode()
	if err := loc.Replace(&next); err != nil {
		return fmt.Errorf("failed to persist session link: %w", err)
	}
	return nil
}

// Resolve returns the id already in the link, or generates and persists a
// fresh one.
func Resolve(loc Location) (ID, error) {
	if id, ok := FromLocation(loc); ok {
		return id, nil
	}
	id, err := Generate()
	if err != nil {
		return "", err
	}
	if err := Persist(loc, id); err != nil {
		return "", err
	}
	return id, nil
}

// MemoryLocation keeps the link in memory.
type MemoryLocation struct {
	mu  sync.Mutex
	url url.URL
}

// NewMemoryLocation parses raw as the initial link.
func NewMemoryLocation(raw string) (*MemoryLocation, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid session link %q: %w", raw, err)
	}
	return &MemoryLocation{url: *u}, nil
}

func (m *MemoryLocation) URL() (*url.URL, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.url
	return &u, nil
}

func (m *MemoryLocation) Replace(u *url.URL) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.url = *u
	return nil
}

// FileLocation stores the link in a small state file so a restarted client
// resumes the same conversation. A missing file reads as Base.
type FileLocation struct {
	Path string
	Base string

	mu sync.Mutex
}

func (f *FileLocation) URL() (*url.URL, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw := f.Base
	data, err := os.ReadFile(f.Path)
	switch {
	case err == nil:
		if s := strings.TrimSpace(string(data)); s != "" {
			raw = s
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read %s: %w", f.Path, err)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid session link %q: %w", raw, err)
	}
	return u, nil
}

func (f *FileLocation) Replace(u *url.URL) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.Path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, []byte(u.String()+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, f.Path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", f.Path, err)
	}
	return nil
}
