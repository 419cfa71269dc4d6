package credentials

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	cacheDirMode  = 0o700
	cacheFileMode = 0o600
)

// FileCache persists credentials with an expiry so a restarted server does
// not have to re-run the authentication tool. Each context maps to one file
// named after the SHA-256 of its name.
type FileCache struct {
	dir string
}

type cacheEntry struct {
	Context               string    `json:"context"`
	Token                 string    `json:"token,omitempty"`
	ClientCertificateData []byte    `json:"clientCertificateData,omitempty"`
	ClientKeyData         []byte    `json:"clientKeyData,omitempty"`
	ExpiresAt             time.Time `json:"expiresAt"`
}

// NewFileCache creates dir if needed and returns a cache rooted there.
func NewFileCache(dir string) (*FileCache, error) {
	if dir == "" {
		return nil, errors.New("credential cache directory is empty")
	}
	if err := os.MkdirAll(dir, cacheDirMode); err != nil {
		return nil, fmt.Errorf("failed to create credential cache directory: %w", err)
	}
	return &FileCache{dir: dir}, nil
}

func (c *FileCache) path(contextName string) string {
	sum := sha256.Sum256([]byte(contextName))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:])+".json")
}

// Load returns the cached credential for contextName, or nil if there is none.
func (c *FileCache) Load(contextName string) (*Credential, error) {
	data, err := os.ReadFile(c.path(contextName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credential cache: %w", err)
	}

	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode credential cache: %w", err)
	}
	if entry.Context != contextName {
		return nil, nil
	}

	return &Credential{
		Token:                 entry.Token,
		ClientCertificateData: entry.ClientCertificateData,
		ClientKeyData:         entry.ClientKeyData,
		ExpiresAt:             entry.ExpiresAt,
		Source:                SourceCache,
	}, nil
}

// Store writes cred for contextName. The file is replaced atomically.
func (c *FileCache) Store(contextName string, cred *Credential) error {
	data, err := json.Marshal(cacheEntry{
		Context:               contextName,
		Token:                 cred.Token,
		ClientCertificateData: cred.ClientCertificateData,
		ClientKeyData:         cred.ClientKeyData,
		ExpiresAt:             cred.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode credential cache: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, ".credential-*")
	if err != nil {
		return fmt.Errorf("failed to write credential cache: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := tmp.Chmod(cacheFileMode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write credential cache: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write credential cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write credential cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path(contextName)); err != nil {
		return fmt.Errorf("failed to write credential cache: %w", err)
	}
	return nil
}

// Remove deletes the cached credential for contextName, if any.
func (c *FileCache) Remove(contextName string) error {
	err := os.Remove(c.path(contextName))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove credential cache: %w", err)
	}
	return nil
}
