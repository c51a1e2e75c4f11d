package authflow

import (
	"context"
	"sync"
)

// Storage keys. Persisted client storage holds exactly two categories: the
// safe allow-list below, and legacy sensitive keys from a prior design that
// the cleanup utility actively removes. The core never writes anything
// outside the safe list.
const (
	// KeyThemePreference is a UI preference, safe to persist.
	KeyThemePreference = "pref_theme"
	// KeySessionTypeMarker records how the next identity-assertion event
	// should be classified. It is never proof of authentication.
	KeySessionTypeMarker = "session_type"
	// KeyMFAVerifiedUntil is a unix-seconds timestamp bounding the MFA
	// re-prompt suppression window. A timestamp only, never a token.
	KeyMFAVerifiedUntil = "mfa_verified_until"
)

// safeKeys is the allow-list the cleanup utility leaves untouched.
var safeKeys = []string{
	KeyThemePreference,
	KeySessionTypeMarker,
	KeyMFAVerifiedUntil,
}

// sensitiveKeys are legacy values from a prior design that persisted raw
// tokens and profiles client-side. They are scrubbed on startup and must
// never be written again.
var sensitiveKeys = []string{
	"auth_token",
	"id_token",
	"refresh_token",
	"user_profile",
	"mfa_session_token",
	"mfa_token",
}

// Storage is the persisted client key/value capability. Values survive a
// reload but not a "clear site data". Implementations must be safe for
// concurrent use.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// MemoryStorage is an in-process [Storage], used in tests and in embeddings
// that keep preferences in memory only.
type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

// Get describes the get operation and its observable behavior.
//
// Get may return an error when input validation, dependency calls, or security checks fail.
// Get does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *MemoryStorage) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.values[key]
	return value, ok, nil
}

// Set describes the set operation and its observable behavior.
//
// Set may return an error when input validation, dependency calls, or security checks fail.
// Set does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *MemoryStorage) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	return nil
}

// Delete describes the delete operation and its observable behavior.
//
// Delete may return an error when input validation, dependency calls, or security checks fail.
// Delete does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *MemoryStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
	return nil
}

// Keys describes the keys operation and its observable behavior.
//
// Keys may return an error when input validation, dependency calls, or security checks fail.
// Keys does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *MemoryStorage) Keys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	return keys, nil
}
