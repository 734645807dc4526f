package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileStore owns the per-job filesystem surface: uploads/<jobID>/ holds the
// caller's input images, processed/<jobID>/ receives the deterministic
// img_NNN outputs.
type FileStore struct {
	uploadRoot    string
	processedRoot string
}

// NewFileStore initializes both roots, creating them if needed.
func NewFileStore(uploadRoot, processedRoot string) (*FileStore, error) {
	uploadRoot = strings.TrimSpace(uploadRoot)
	processedRoot = strings.TrimSpace(processedRoot)
	if uploadRoot == "" || processedRoot == "" {
		return nil, errors.New("storage: upload and processed roots are required")
	}
	for _, dir := range []string{uploadRoot, processedRoot} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("storage: ensure %s: %w", dir, err)
		}
	}
	return &FileStore{uploadRoot: uploadRoot, processedRoot: processedRoot}, nil
}

// InputDir returns the upload directory for a job.
func (s *FileStore) InputDir(jobID string) string {
	return filepath.Join(s.uploadRoot, sanitizeID(jobID))
}

// OutputDir returns the processed directory for a job, creating it on demand.
func (s *FileStore) OutputDir(jobID string) (string, error) {
	dir := filepath.Join(s.processedRoot, sanitizeID(jobID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure output dir: %w", err)
	}
	return dir, nil
}

// SaveUpload writes one uploaded input image for a job. Filenames are
// flattened to their base name so callers cannot traverse outside the job
// directory, and a name already taken in the job gets a numeric suffix so a
// batch with duplicate basenames keeps every file.
func (s *FileStore) SaveUpload(jobID, filename string, data []byte) (string, error) {
	dir := s.InputDir(jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure input dir: %w", err)
	}
	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == ".." || name == "" {
		return "", errors.New("storage: invalid filename")
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	path := filepath.Join(dir, name)
	for i := 1; ; i++ {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			break
		}
		path = filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, i, ext))
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write upload: %w", err)
	}
	return path, nil
}

// ListInputs returns the job's input files in stable name order, filtered by
// the accept predicate.
func (s *FileStore) ListInputs(jobID string, accept func(name string) bool) ([]string, error) {
	dir := s.InputDir(jobID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("storage: read input dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if accept != nil && !accept(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// ListOutputs returns the processed files of a job in name order.
func (s *FileStore) ListOutputs(jobID string) ([]string, error) {
	dir := filepath.Join(s.processedRoot, sanitizeID(jobID))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("storage: read output dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// RemoveJob deletes both trees of a job. Used after cancellation cleanup.
func (s *FileStore) RemoveJob(jobID string) error {
	id := sanitizeID(jobID)
	if err := os.RemoveAll(filepath.Join(s.uploadRoot, id)); err != nil {
		return err
	}
	return os.RemoveAll(filepath.Join(s.processedRoot, id))
}

// sanitizeID strips path separators so a job id can never escape its root.
func sanitizeID(id string) string {
	id = strings.ReplaceAll(id, "\\", "/")
	return filepath.Base(filepath.Clean("/" + id))
}
