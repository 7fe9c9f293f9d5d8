package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"photoshare/pkg/config"
)

// exercise runs the TokenStore contract against s
func exercise(t *testing.T, s TokenStore) {
	t.Helper()
	ctx := context.Background()

	if token, ok, err := s.Get(ctx, "c1"); err != nil || ok || token != "" {
		t.Fatalf("Get(missing) = %q, %v, %v; want empty, false, nil", token, ok, err)
	}

	if err := s.Set(ctx, "c1", "tok-1"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := s.Set(ctx, "c2", "tok-2"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := s.Set(ctx, "c1", "tok-1b"); err != nil {
		t.Fatalf("Set(overwrite) error = %v", err)
	}

	if token, ok, err := s.Get(ctx, "c1"); err != nil || !ok || token != "tok-1b" {
		t.Fatalf("Get(c1) = %q, %v, %v", token, ok, err)
	}

	if err := s.Delete(ctx, "c1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Delete(ctx, "c1"); err != nil {
		t.Fatalf("Delete(twice) error = %v", err)
	}
	if _, ok, _ := s.Get(ctx, "c1"); ok {
		t.Fatalf("Get(c1) after Delete still found")
	}
	if token, ok, _ := s.Get(ctx, "c2"); !ok || token != "tok-2" {
		t.Fatalf("Get(c2) = %q, %v; unrelated client affected", token, ok)
	}
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	exercise(t, s)

	// reopening sees what was persisted
	reopened, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if token, ok, _ := reopened.Get(context.Background(), "c2"); !ok || token != "tok-2" {
		t.Fatalf("reopened Get(c2) = %q, %v", token, ok)
	}
	if _, ok, _ := reopened.Get(context.Background(), "c1"); ok {
		t.Fatalf("deleted token came back after reopen")
	}
}

func TestFileStoreCorruptFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "tokens.json"), []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileStore(dir); err == nil {
		t.Fatal("NewFileStore() accepted a corrupt tokens.json")
	}
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db", "tokens.db")
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	exercise(t, s)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	if token, ok, _ := reopened.Get(context.Background(), "c2"); !ok || token != "tok-2" {
		t.Fatalf("reopened Get(c2) = %q, %v", token, ok)
	}
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("PHOTOSHARE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PHOTOSHARE_TEST_REDIS_ADDR not set")
	}
	s, err := NewRedisStore(context.Background(), &config.StorageConfig{RedisAddr: addr, RedisDB: 15})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	_ = s.Delete(context.Background(), "c1")
	_ = s.Delete(context.Background(), "c2")
	exercise(t, s)
}

func TestNewSelectsDriver(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()

	s, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*FileStore); !ok {
		t.Errorf("New(file) = %T", s)
	}

	cfg.Storage.Driver = "sqlite"
	cfg.Storage.SQLitePath = filepath.Join(cfg.DataDir, "t.db")
	s, err = New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, ok := s.(*SQLiteStore); !ok {
		t.Errorf("New(sqlite) = %T", s)
	}

	cfg.Storage.Driver = "etcd"
	if _, err := New(cfg); err == nil {
		t.Error("New(etcd) should fail")
	}
}
