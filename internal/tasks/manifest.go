package tasks

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
)

// WriteManifest writes tasks as CSV with a header row.
func WriteManifest(w io.Writer, tasks []Task) error {
	if tasks == nil {
		tasks = []Task{}
	}
	if err := gocsv.Marshal(&tasks, w); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// SaveManifest writes the manifest to path, creating its directory.
func SaveManifest(path string, tasks []Task) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create manifest: %w", err)
	}
	defer f.Close()
	return WriteManifest(f, tasks)
}

// ReadManifest parses a manifest written by WriteManifest.
func ReadManifest(r io.Reader) ([]Task, error) {
	var tasks []Task
	if err := gocsv.Unmarshal(r, &tasks); err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return tasks, nil
}
