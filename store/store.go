// Package store persists the Matrix session cookie and user status.
package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"codeberg.org/kvo/std/errors"

	"github.com/RunningKuma/matrix-on-vscode/site"
)

// Store is a key/value store for the session. An empty cookie with a nil
// error means no session is stored.
type Store interface {
	Cookie(ctx context.Context) (string, error)
	SetCookie(ctx context.Context, cookie string) error
	UserStatus(ctx context.Context) (site.UserStatus, error)
	SetUserStatus(ctx context.Context, status site.UserStatus) error
	Clear(ctx context.Context) error
}

type session struct {
	Cookie string          `json:"matrix_cookie,omitempty"`
	Status site.UserStatus `json:"matrix_user_status"`
}

// Memory is a Store that lives only as long as the process.
type Memory struct {
	mu sync.RWMutex
	s  session
}

// NewMemory returns an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Cookie(context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.Cookie, nil
}

func (m *Memory) SetCookie(_ context.Context, cookie string) error {
	m.mu.Lock()
	m.s.Cookie = cookie
	m.mu.Unlock()
	return nil
}

func (m *Memory) UserStatus(context.Context) (site.UserStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.Status, nil
}

func (m *Memory) SetUserStatus(_ context.Context, status site.UserStatus) error {
	m.mu.Lock()
	m.s.Status = status
	m.mu.Unlock()
	return nil
}

func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	m.s = session{}
	m.mu.Unlock()
	return nil
}

// File is a Store backed by a JSON file. Every write rewrites the file; the
// in-memory copy is authoritative for reads once loaded.
type File struct {
	mu     sync.Mutex
	path   string
	loaded bool
	s      session
}

// NewFile returns a Store persisting to path. The file is created on the
// first write.
func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) load() error {
	if f.loaded {
		return nil
	}
	b, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		f.loaded = true
		return nil
	}
	if err != nil {
		return errors.New("cannot read session file", errors.New(err.Error(), nil))
	}
	if len(b) > 0 {
		if err := json.Unmarshal(b, &f.s); err != nil {
			return errors.New("cannot parse session file", errors.New(err.Error(), nil))
		}
	}
	f.loaded = true
	return nil
}

func (f *File) save() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return errors.New("cannot create session directory", errors.New(err.Error(), nil))
	}
	b, err := json.MarshalIndent(f.s, "", "\t")
	if err != nil {
		return errors.New("cannot encode session", errors.New(err.Error(), nil))
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0600); err != nil {
		return errors.New("cannot write session file", errors.New(err.Error(), nil))
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return errors.New("cannot replace session file", errors.New(err.Error(), nil))
	}
	return nil
}

func (f *File) Cookie(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.load(); err != nil {
		return "", err
	}
	return f.s.Cookie, nil
}

func (f *File) SetCookie(_ context.Context, cookie string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.load(); err != nil {
		return err
	}
	f.s.Cookie = cookie
	return f.save()
}

func (f *File) UserStatus(context.Context) (site.UserStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.load(); err != nil {
		return site.UserStatus{}, err
	}
	return f.s.Status, nil
}

func (f *File) SetUserStatus(_ context.Context, status site.UserStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.load(); err != nil {
		return err
	}
	f.s.Status = status
	return f.save()
}

func (f *File) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.s = session{}
	f.loaded = true
	return f.save()
}
