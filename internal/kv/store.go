// Package kv stores small per-user settings for the web app on the local
// disk.
package kv

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"sync"

	"github.com/quasilyte/gdata/v2"
)

// MaxValueSize caps a stored value in bytes.
const MaxValueSize = 4 << 10

// KV errors.
var (
	ErrBadKey        = errors.New("key must be 1-32 characters of a-z, 0-9 or _")
	ErrValueTooLarge = errors.New("value too large")
	ErrNotFound      = errors.New("key not found")
)

var keyPattern = regexp.MustCompile(`^[a-z0-9_]{1,32}$`)

// Store keeps one object per user with one property per key.
type Store struct {
	mu sync.Mutex
	m  *gdata.Manager
}

// Open opens the store under the application's data directory.
func Open(appName string) (*Store, error) {
	m, err := gdata.Open(gdata.Config{AppName: appName})
	if err != nil {
		return nil, fmt.Errorf("failed to open settings storage: %w", err)
	}
	return &Store{m: m}, nil
}

func object(userID int64) string {
	return "user_" + strconv.FormatInt(userID, 10)
}

// Get returns the stored value or ErrNotFound.
func (s *Store) Get(userID int64, key string) ([]byte, error) {
	if !keyPattern.MatchString(key) {
		return nil, ErrBadKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	obj := object(userID)
	if !s.m.ObjectPropExists(obj, key) {
		return nil, ErrNotFound
	}
	data, err := s.m.LoadObjectProp(obj, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", key, err)
	}
	return data, nil
}

// Set stores value under key.
func (s *Store) Set(userID int64, key string, value []byte) error {
	if !keyPattern.MatchString(key) {
		return ErrBadKey
	}
	if len(value) > MaxValueSize {
		return ErrValueTooLarge
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.m.SaveObjectProp(object(userID), key, value); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}
