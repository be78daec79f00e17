package fsutil

import (
	"errors"
	"io/fs"
	"path/filepath"
	"reflect"
	"testing"
)

func TestOSFileSystem_Exists(t *testing.T) {
	fs := OSFileSystem{}

	if !fs.Exists("filesystem.go") {
		t.Error("expected filesystem.go to exist")
	}

	if fs.Exists("nonexistent_file_xyz.go") {
		t.Error("expected nonexistent file to not exist")
	}
}

func TestOSFileSystem_WriteRenameRead(t *testing.T) {
	osfs := OSFileSystem{}
	dir := t.TempDir()

	tmp := filepath.Join(dir, "blob.tmp")
	final := filepath.Join(dir, "blob")
	if err := osfs.WriteFile(tmp, []byte("first"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := osfs.WriteFile(final, []byte("old"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := osfs.Rename(tmp, final); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}

	data, err := osfs.ReadFile(final)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "first" {
		t.Errorf("expected renamed content, got %q", data)
	}
	if osfs.Exists(tmp) {
		t.Error("temp file should be gone after rename")
	}
}

func TestOSFileSystem_ReadDir(t *testing.T) {
	osfs := OSFileSystem{}
	dir := t.TempDir()

	for _, d := range []string{"v0.2", "v0.1"} {
		if err := osfs.MkdirAll(filepath.Join(dir, d), 0755); err != nil {
			t.Fatalf("MkdirAll failed: %v", err)
		}
	}
	if err := osfs.WriteFile(filepath.Join(dir, "README"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	got, err := osfs.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if want := []string{"v0.1", "v0.2"}; !reflect.DeepEqual(got, want) {
		t.Errorf("ReadDir = %v, want %v", got, want)
	}
}

func TestMemoryFileSystem_WriteAndRead(t *testing.T) {
	mfs := NewMemoryFileSystem()

	testData := []byte("hello, world")
	if err := mfs.WriteFile("/test.txt", testData, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	data, err := mfs.ReadFile("/test.txt")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != string(testData) {
		t.Errorf("expected %q, got %q", testData, data)
	}

	// Mutating the returned slice must not affect the stored file.
	data[0] = 'X'
	again, _ := mfs.ReadFile("/test.txt")
	if string(again) != string(testData) {
		t.Errorf("stored data was mutated: %q", again)
	}
}

func TestMemoryFileSystem_WriteNeedsParent(t *testing.T) {
	mfs := NewMemoryFileSystem()

	err := mfs.WriteFile("/models/v0.1/model.bin", []byte("x"), 0644)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected ErrNotExist without parent dir, got %v", err)
	}

	if err := mfs.MkdirAll("/models/v0.1", 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := mfs.WriteFile("/models/v0.1/model.bin", []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
}

func TestMemoryFileSystem_Rename(t *testing.T) {
	mfs := NewMemoryFileSystem()
	_ = mfs.MkdirAll("/d", 0755)
	_ = mfs.WriteFile("/d/a", []byte("new"), 0644)
	_ = mfs.WriteFile("/d/b", []byte("old"), 0644)

	if err := mfs.Rename("/d/a", "/d/b"); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	if mfs.Exists("/d/a") {
		t.Error("source should not exist after rename")
	}
	data, _ := mfs.ReadFile("/d/b")
	if string(data) != "new" {
		t.Errorf("expected 'new', got %q", data)
	}

	if err := mfs.Rename("/d/missing", "/d/c"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestMemoryFileSystem_ReadDir(t *testing.T) {
	mfs := NewMemoryFileSystem()
	_ = mfs.MkdirAll("/models/v0.3", 0755)
	_ = mfs.MkdirAll("/models/v0.1/nested", 0755)
	_ = mfs.WriteFile("/models/notes.txt", []byte("x"), 0644)

	got, err := mfs.ReadDir("/models")
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if want := []string{"v0.1", "v0.3"}; !reflect.DeepEqual(got, want) {
		t.Errorf("ReadDir = %v, want %v", got, want)
	}

	if _, err := mfs.ReadDir("/absent"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestMemoryFileSystem_StatAndRemove(t *testing.T) {
	mfs := NewMemoryFileSystem()
	_ = mfs.MkdirAll("/dir", 0755)
	_ = mfs.WriteFile("/dir/file", []byte("12345"), 0600)

	info, err := mfs.Stat("/dir/file")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size() != 5 || info.IsDir() || info.Name() != "file" || info.Mode() != 0600 {
		t.Errorf("unexpected file info: size=%d dir=%v name=%q mode=%v", info.Size(), info.IsDir(), info.Name(), info.Mode())
	}

	dirInfo, err := mfs.Stat("/dir")
	if err != nil || !dirInfo.IsDir() {
		t.Errorf("expected /dir to be a directory, err=%v", err)
	}

	if err := mfs.Remove("/dir/file"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := mfs.Stat("/dir/file"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected ErrNotExist after remove, got %v", err)
	}
	if err := mfs.Remove("/dir/file"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected ErrNotExist removing twice, got %v", err)
	}
}

func TestFileSystem_InterfaceCompliance(t *testing.T) {
	var _ FileSystem = OSFileSystem{}
	var _ FileSystem = NewMemoryFileSystem()
}
