package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LLMCache stores model responses keyed by a prompt digest and model name.
// A nil *LLMCache is valid and never hits.
type LLMCache struct {
	Dir string
	// StrictPerms enforces 0700 on the cache directory and 0600 on entries.
	StrictPerms bool
	// MaxAge expires entries older than this on read. Zero keeps entries forever.
	MaxAge time.Duration
}

// Entry is the on-disk form of one cached response.
type Entry struct {
	Model   string    `json:"model"`
	Content string    `json:"content"`
	SavedAt time.Time `json:"savedAt"`
}

func (c *LLMCache) ensureDir() error {
	if c == nil || c.Dir == "" {
		return errors.New("cache dir not configured")
	}
	perm := os.FileMode(0o755)
	if c.StrictPerms {
		perm = 0o700
	}
	if err := os.MkdirAll(c.Dir, perm); err != nil {
		return err
	}
	if c.StrictPerms {
		if info, err := os.Stat(c.Dir); err == nil && info.Mode()&0o777 != 0o700 {
			_ = os.Chmod(c.Dir, 0o700)
		}
	}
	return nil
}

// KeyFrom builds a cache key from model and prompt digest.
func KeyFrom(model string, prompt string) string {
	h := sha256.Sum256([]byte(model + "\n\n" + prompt))
	return hex.EncodeToString(h[:])
}

func (c *LLMCache) pathFor(key string) string {
	return filepath.Join(c.Dir, key+".json")
}

// Get returns the cached entry for key. Missing, unreadable and expired
// entries are reported as a miss.
func (c *LLMCache) Get(_ context.Context, key string) (Entry, bool, error) {
	if c == nil {
		return Entry{}, false, nil
	}
	if err := c.ensureDir(); err != nil {
		return Entry{}, false, err
	}
	p := c.pathFor(key)
	b, err := os.ReadFile(p)
	if err != nil {
		return Entry{}, false, nil
	}
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil || strings.TrimSpace(e.Content) == "" {
		return Entry{}, false, nil
	}
	if c.MaxAge > 0 && time.Since(e.SavedAt) > c.MaxAge {
		_ = os.Remove(p)
		return Entry{}, false, nil
	}
	return e, true, nil
}

// Save writes an entry for key, stamping SavedAt when unset.
func (c *LLMCache) Save(_ context.Context, key string, e Entry) error {
	if c == nil {
		return nil
	}
	if err := c.ensureDir(); err != nil {
		return err
	}
	if e.SavedAt.IsZero() {
		e.SavedAt = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	mode := os.FileMode(0o644)
	if c.StrictPerms {
		mode = 0o600
	}
	return os.WriteFile(c.pathFor(key), data, mode)
}

// ClearDir removes the directory and all contents, then recreates it empty.
func ClearDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return errors.New("empty dir")
	}
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

// PurgeByAge removes cache entries whose file modification time is older
// than maxAge and returns how many were removed.
func PurgeByAge(dir string, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	now := time.Now()
	removed := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if now.Sub(info.ModTime()) <= maxAge {
			return nil
		}
		if os.Remove(path) == nil {
			removed++
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return removed, nil
	}
	return removed, err
}
