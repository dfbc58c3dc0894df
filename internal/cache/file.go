package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

const (
	cacheDirPerm  = 0o750
	cacheFilePerm = 0o600
)

// formatVersion is bumped whenever Entry changes shape; files written with
// another version read as misses.
const formatVersion = 1

// FileCache stores one JSON file per entry under a directory, fanned out by
// the first two bytes of the key.
type FileCache struct {
	baseDir string
}

type fileEntry struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Entry     Entry     `json:"entry"`
}

// NewFileCache creates baseDir if needed.
func NewFileCache(baseDir string) (*FileCache, error) {
	if err := os.MkdirAll(baseDir, cacheDirPerm); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	return &FileCache{baseDir: baseDir}, nil
}

// Dir returns the cache directory.
func (f *FileCache) Dir() string { return f.baseDir }

// Get returns the entry stored under key. Unreadable or foreign files are
// misses.
func (f *FileCache) Get(_ context.Context, key string) (Entry, bool) {
	path, err := f.keyToPath(key)
	if err != nil {
		return Entry{}, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, false
	}
	var fe fileEntry
	if err := json.Unmarshal(data, &fe); err != nil || fe.Version != formatVersion {
		return Entry{}, false
	}
	return fe.Entry, true
}

// Put writes entry under key through a temporary file and rename.
func (f *FileCache) Put(_ context.Context, key string, entry Entry) error {
	path, err := f.keyToPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), cacheDirPerm); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	data, err := json.Marshal(fileEntry{Version: formatVersion, CreatedAt: time.Now().UTC(), Entry: entry})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write cache entry: %w", err)
	}
	if err := os.Chmod(tmp.Name(), cacheFilePerm); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write cache entry: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

// Delete removes key. A missing entry is not an error.
func (f *FileCache) Delete(_ context.Context, key string) error {
	path, err := f.keyToPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

// Clear removes the directory contents and recreates it.
func (f *FileCache) Clear(_ context.Context) error {
	if err := os.RemoveAll(f.baseDir); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	if err := os.MkdirAll(f.baseDir, cacheDirPerm); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

// Prune removes entries written before cutoff and returns how many were
// removed.
func (f *FileCache) Prune(cutoff time.Time) (int, error) {
	removed := 0
	err := filepath.WalkDir(f.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var fe fileEntry
		if json.Unmarshal(data, &fe) == nil && fe.Version == formatVersion && !fe.CreatedAt.Before(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			return err
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("prune cache: %w", err)
	}
	return removed, nil
}

// keyToPath maps a hex key to baseDir/ab/abcdef....json.
func (f *FileCache) keyToPath(key string) (string, error) {
	if len(key) < 4 || !isHex(key) {
		return "", fmt.Errorf("cache: invalid key %q", key)
	}
	return filepath.Join(f.baseDir, key[:2], key+".json"), nil
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
			return false
		}
	}
	return true
}

var _ Cache = (*FileCache)(nil)
