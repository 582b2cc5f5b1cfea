// Package cache keeps JSON snapshots of remote lookups on disk.
package cache

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Entry[T any] struct {
	Data      T         `json:"data"`
	CreatedAt time.Time `json:"created_at"`
	Checksum  string    `json:"checksum"`
}

type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T) error
}

// FileCache stores one file per key. Entries older than ttl, or whose
// checksum does not match their data, are treated as missing. A zero ttl
// never expires.
type FileCache[T any] struct {
	dir string
	ttl time.Duration
	now func() time.Time
}

func NewFileCache[T any](dir string, ttl time.Duration) *FileCache[T] {
	return &FileCache[T]{dir: dir, ttl: ttl, now: time.Now}
}

// Key hashes the query parameters into a file-safe name.
func Key(params ...any) string {
	parts := make([]string, 0, len(params))
	for _, p := range params {
		if t, ok := p.(time.Time); ok {
			p = t.UTC().Format(time.RFC3339)
		}
		parts = append(parts, fmt.Sprintf("%v", p))
	}
	h := sha1.New()
	h.Write([]byte(strings.Join(parts, "_")))
	return hex.EncodeToString(h.Sum(nil))
}

func (fc *FileCache[T]) path(key string) string {
	return filepath.Join(fc.dir, key+".json")
}

func (fc *FileCache[T]) Get(key string) (T, bool) {
	var zero T

	data, err := os.ReadFile(fc.path(key))
	if err != nil {
		return zero, false
	}

	var entry Entry[T]
	if err := json.Unmarshal(data, &entry); err != nil {
		return zero, false
	}
	if entry.Checksum != checksum(entry.Data) {
		return zero, false
	}
	if fc.ttl > 0 && fc.now().Sub(entry.CreatedAt) > fc.ttl {
		return zero, false
	}
	return entry.Data, true
}

func (fc *FileCache[T]) Set(key string, data T) error {
	if err := os.MkdirAll(fc.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	payload, err := json.Marshal(Entry[T]{
		Data:      data,
		CreatedAt: fc.now(),
		Checksum:  checksum(data),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	file := fc.path(key)
	tmp := file + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return fmt.Errorf("failed to write temp cache file: %w", err)
	}
	if err := os.Rename(tmp, file); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename temp cache file: %w", err)
	}
	return nil
}

// Delete drops an entry. A missing entry is not an error.
func (fc *FileCache[T]) Delete(key string) error {
	err := os.Remove(fc.path(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func checksum(data any) string {
	payload, _ := json.Marshal(data)
	sum := md5.Sum(payload)
	return hex.EncodeToString(sum[:])
}
