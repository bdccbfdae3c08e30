package config

import (
	"os"
	"path/filepath"
	"testing"
)

func write(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "syncd.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := write(t, `
[local]
root = "tank"

[bucket]
name = "backups"
region = "us-east-1"
prefix = "zfs"
`)
	conf, err := Load(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if conf.Local.Root != "tank" {
		t.Errorf("Expected root 'tank', got '%s'", conf.Local.Root)
	}
	if conf.Local.ReplicateProperty != "syncd:replicate" {
		t.Errorf("Expected default replicate property, got '%s'", conf.Local.ReplicateProperty)
	}
	if conf.Local.BackupProperty != "syncd:backup" {
		t.Errorf("Expected default backup property, got '%s'", conf.Local.BackupProperty)
	}
	if conf.Bucket.PartSize != 64*1024*1024 {
		t.Errorf("Expected default part size, got %d", conf.Bucket.PartSize)
	}
	if conf.Run.HistoryDB != "/var/lib/syncd/history.db" {
		t.Errorf("Expected default history db, got '%s'", conf.Run.HistoryDB)
	}
}

func TestLoadRequiresRoot(t *testing.T) {
	path := write(t, `
[bucket]
name = "backups"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("Expected an error for a config without local.root")
	}
}

func TestLoadRejectsTinyPartSize(t *testing.T) {
	path := write(t, `
[local]
root = "tank"

[bucket]
part_size = 1024
`)
	if _, err := Load(path); err == nil {
		t.Fatal("Expected an error for a part size below the S3 minimum")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("Expected an error for a missing config file")
	}
}
