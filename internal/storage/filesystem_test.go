package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	dir := t.TempDir()
	store, err := NewFileStore(filepath.Join(dir, "uploads"), filepath.Join(dir, "processed"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestSaveUploadFlattensTraversal(t *testing.T) {
	store := newTestStore(t)

	cases := []struct {
		filename string
		wantBase string
	}{
		{"photo.jpg", "photo.jpg"},
		{"../../etc/passwd.png", "passwd.png"},
		{"..\\..\\evil.png", "evil.png"},
		{"nested/dir/image.png", "image.png"},
	}
	for _, tc := range cases {
		path, err := store.SaveUpload("job-1", tc.filename, []byte("data"))
		if err != nil {
			t.Fatalf("save %q: %v", tc.filename, err)
		}
		if filepath.Base(path) != tc.wantBase {
			t.Fatalf("saved as %q, want base %q", path, tc.wantBase)
		}
		if !strings.HasPrefix(path, store.InputDir("job-1")) {
			t.Fatalf("path %q escaped the job directory", path)
		}
	}

	if _, err := store.SaveUpload("job-1", "..", []byte("data")); err == nil {
		t.Fatalf("expected error for dot-dot filename")
	}
}

func TestSaveUploadKeepsDuplicateBasenames(t *testing.T) {
	store := newTestStore(t)

	var paths []string
	for _, content := range []string{"first", "second", "third"} {
		path, err := store.SaveUpload("job-dup", "a.png", []byte(content))
		if err != nil {
			t.Fatalf("save: %v", err)
		}
		paths = append(paths, path)
	}
	if paths[0] == paths[1] || paths[1] == paths[2] || paths[0] == paths[2] {
		t.Fatalf("duplicate basenames collapsed: %v", paths)
	}
	for i, want := range []string{"a.png", "a_1.png", "a_2.png"} {
		if filepath.Base(paths[i]) != want {
			t.Fatalf("path %d = %q, want base %q", i, paths[i], want)
		}
	}

	files, err := store.ListInputs("job-dup", nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("inputs on disk = %d, want 3", len(files))
	}
	data, err := os.ReadFile(paths[0])
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "first" {
		t.Fatalf("original file was overwritten: %q", data)
	}
}

func TestListInputsFiltersAndSorts(t *testing.T) {
	store := newTestStore(t)
	for _, name := range []string{"b.png", "a.jpg", "notes.txt", "c.webp"} {
		if _, err := store.SaveUpload("job-2", name, []byte("x")); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	accept := func(name string) bool { return !strings.HasSuffix(name, ".txt") }
	files, err := store.ListInputs("job-2", accept)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("files = %d, want 3", len(files))
	}
	for i := 1; i < len(files); i++ {
		if files[i-1] >= files[i] {
			t.Fatalf("files not sorted: %v", files)
		}
	}
}

func TestListInputsMissingJob(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.ListInputs("ghost", nil); err == nil {
		t.Fatalf("expected error for missing job directory")
	}
}

func TestSanitizeIDCannotEscapeRoot(t *testing.T) {
	store := newTestStore(t)

	for _, id := range []string{"../../outside", "..", "a/b/../../c", "job\\..\\x"} {
		dir := store.InputDir(id)
		rel, err := filepath.Rel(store.uploadRoot, dir)
		if err != nil {
			t.Fatalf("rel: %v", err)
		}
		if strings.HasPrefix(rel, "..") {
			t.Fatalf("id %q escaped upload root: %q", id, dir)
		}
	}
}

func TestRemoveJob(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.SaveUpload("job-3", "a.png", []byte("x")); err != nil {
		t.Fatalf("save: %v", err)
	}
	outDir, err := store.OutputDir("job-3")
	if err != nil {
		t.Fatalf("output dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, "img_001.jpg"), []byte("y"), 0o644); err != nil {
		t.Fatalf("write output: %v", err)
	}

	if err := store.RemoveJob("job-3"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := os.Stat(store.InputDir("job-3")); !os.IsNotExist(err) {
		t.Fatalf("upload dir should be gone")
	}
	if _, err := os.Stat(outDir); !os.IsNotExist(err) {
		t.Fatalf("processed dir should be gone")
	}
}
