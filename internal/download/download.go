package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Item is one file to save.
type Item struct {
	Data     []byte
	Filename string
}

// Downloader writes an item somewhere the user can find it and returns the
// final location.
type Downloader interface {
	Download(ctx context.Context, item Item) (string, error)
}

// Dir saves items into a directory. Name collisions get a numeric suffix
// instead of overwriting an earlier download.
type Dir struct {
	Path string
	// StrictPerms writes 0600 files inside a 0700 directory.
	StrictPerms bool
}

func (d *Dir) Download(ctx context.Context, item Item) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := filepath.Base(strings.TrimSpace(item.Filename))
	if name == "." || name == string(filepath.Separator) || name == "" {
		return "", errors.New("download: empty file name")
	}
	dirPerm, filePerm := os.FileMode(0o755), os.FileMode(0o644)
	if d.StrictPerms {
		dirPerm, filePerm = 0o700, 0o600
	}
	root := d.Path
	if root == "" {
		root = "."
	}
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}
	f, p, err := createUnique(root, name, filePerm)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(item.Data); err != nil {
		_ = f.Close()
		_ = os.Remove(p)
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close file: %w", err)
	}
	log.Info().Str("path", p).Int("bytes", len(item.Data)).Msg("saved download")
	return p, nil
}

// createUnique creates name inside root, or stem-N.ext for the first free N.
// Existing files are never opened.
func createUnique(root, name string, perm os.FileMode) (*os.File, string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 0; i < 1000; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s-%d%s", stem, i, ext)
		}
		p := filepath.Join(root, candidate)
		f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("create file: %w", err)
		}
		return f, p, nil
	}
	return nil, "", fmt.Errorf("download: too many files named %s", name)
}
