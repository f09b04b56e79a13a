package auth

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// UserProfile is the minimal identity marker persisted after sign-in. It
// exists for session persistence across restarts, not for authorization.
type UserProfile struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture,omitempty"`
}

// IdentityStore persists the user identity marker across process restarts.
// Load returns (nil, nil) when no marker exists.
type IdentityStore interface {
	Save(profile UserProfile) error
	Load() (*UserProfile, error)
	Clear() error
}

// FileIdentityStore keeps the identity marker as a small JSON file in the
// app's data directory.
type FileIdentityStore struct {
	path string
}

// NewFileIdentityStore creates a store backed by the given file path.
func NewFileIdentityStore(path string) *FileIdentityStore {
	return &FileIdentityStore{path: path}
}

// Save writes the marker, creating parent directories as needed.
func (s *FileIdentityStore) Save(profile UserProfile) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("save identity: %w", err)
	}
	raw, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return fmt.Errorf("save identity: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("save identity: %w", err)
	}
	return nil
}

// Load reads the marker; a missing or unreadable file means signed out.
func (s *FileIdentityStore) Load() (*UserProfile, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}
	var profile UserProfile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}
	return &profile, nil
}

// Clear removes the marker. Removing an absent marker is not an error.
func (s *FileIdentityStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear identity: %w", err)
	}
	return nil
}

func decodeProfile(r io.Reader) (*UserProfile, error) {
	var claims struct {
		Sub     string `json:"sub"`
		Name    string `json:"name"`
		Email   string `json:"email"`
		Picture string `json:"picture"`
	}
	if err := json.NewDecoder(r).Decode(&claims); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}

	name := claims.Name
	if name == "" {
		name = claims.Email
	}
	return &UserProfile{
		ID:      claims.Sub,
		Name:    name,
		Email:   claims.Email,
		Picture: claims.Picture,
	}, nil
}
