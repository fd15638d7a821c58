package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDiskUsageBytes(t *testing.T) {
	dir := t.TempDir()

	db := filepath.Join(dir, "db.sqlite")
	if err := os.WriteFile(db, []byte("12345"), 0644); err != nil {
		t.Fatal(err)
	}
	index := filepath.Join(dir, "keyword.bleve")
	if err := os.Mkdir(index, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(index, "seg0"), []byte("ab"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(index, "seg1"), []byte("c"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := DiskUsageBytes(db)
	if err != nil {
		t.Fatal(err)
	}
	if got != 5 {
		t.Errorf("file: got %d bytes, want 5", got)
	}

	got, err = DiskUsageBytes(db, index)
	if err != nil {
		t.Fatal(err)
	}
	if got != 8 {
		t.Errorf("file+dir: got %d bytes, want 8", got)
	}

	got, err = DiskUsageBytes(db, "", filepath.Join(dir, "missing"))
	if err != nil {
		t.Fatal(err)
	}
	if got != 5 {
		t.Errorf("empty and missing paths should be skipped: got %d", got)
	}
}
