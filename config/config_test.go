package config

import (
	"os"
	"testing"

	"github.com/pkg/errors"
	"github.com/relloyd/openetl/connection"
	"github.com/relloyd/openetl/constants"
)

func TestFileGetSetDelete(t *testing.T) {
	dir := t.TempDir()
	f := NewConfigFileWithDir(dir, "test.yaml")
	// Test 1 - missing file behaves as an empty store.
	keys, err := f.GetAllKeys()
	if err != nil || len(keys) != 0 {
		t.Fatalf("test 1 expected no keys and no error; got %v, %v", keys, err)
	}
	var s string
	if err := f.Get("missing", &s); !errors.As(err, &KeyNotFoundError{}) {
		t.Fatalf("test 1 expected KeyNotFoundError; got %v", err)
	}
	// Test 2 - save a connection and read it back through a new File instance.
	d := connection.Details{Type: constants.ConnectionTypeAPI, LogicalName: "shop", Data: map[string]string{"base_url": "https://x"}}
	if err := f.SaveConnection(d); err != nil {
		t.Fatal(err)
	}
	if err := f.Set("log-level", "debug"); err != nil {
		t.Fatal(err)
	}
	f2 := NewConfigFileWithDir(dir, "test.yaml")
	got, err := f2.LoadConnection("shop")
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != d.Type || got.Data["base_url"] != "https://x" {
		t.Fatalf("test 2 unexpected connection: %+v", got)
	}
	if err := f2.Get("log-level", &s); err != nil || s != "debug" {
		t.Fatalf("test 2 expected debug; got %q, %v", s, err)
	}
	// Test 3 - the file on disk is not plain text.
	b, err := os.ReadFile(f.FullPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(b) == 0 || string(b) == "shop" {
		t.Fatal("test 3 expected encrypted file contents")
	}
	// Test 4 - delete.
	if err := f2.Delete("shop"); err != nil {
		t.Fatal(err)
	}
	if _, err := f2.LoadConnection("shop"); err == nil {
		t.Fatal("test 4 expected error loading deleted connection")
	}
	if err := f2.Delete("shop"); err == nil {
		t.Fatal("test 4 expected error deleting a missing key")
	}
}

func TestEncryptDecrypt(t *testing.T) {
	in := []byte("hello")
	sealed, err := Encrypt(in, fileEncrKey)
	if err != nil {
		t.Fatal(err)
	}
	out, err := Decrypt(sealed, fileEncrKey)
	if err != nil || string(out) != "hello" {
		t.Fatalf("unexpected decrypt output %q, %v", out, err)
	}
	if _, err := Decrypt([]byte("x"), fileEncrKey); err == nil {
		t.Fatal("expected error for short input")
	}
}

func TestLoadSettings(t *testing.T) {
	dir := t.TempDir()
	// Test 1 - defaults.
	s, err := LoadSettings(dir)
	if err != nil {
		t.Fatal(err)
	}
	if s.RedisAddr != "localhost:6379" || s.QueueName != constants.TaskQueueDefault || s.RetryTries != constants.TaskRetryTriesDefault {
		t.Fatalf("test 1 unexpected defaults: %+v", s)
	}
	// Test 2 - .env file then environment override.
	if err := os.WriteFile(dir+"/.env", []byte("REDIS_ADDR=redis:6379\nWORKER_CONCURRENCY=4\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OETL_WORKER_CONCURRENCY", "2")
	s, err = LoadSettings(dir)
	if err != nil {
		t.Fatal(err)
	}
	if s.RedisAddr != "redis:6379" || s.WorkerConcurrency != 2 {
		t.Fatalf("test 2 unexpected settings: %+v", s)
	}
	// Test 3 - invalid values are rejected.
	t.Setenv("OETL_RETRY_TRIES", "0")
	if _, err := LoadSettings(dir); err == nil {
		t.Fatal("test 3 expected an error for zero retry tries")
	}
}
