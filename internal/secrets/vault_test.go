package secrets_test

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/devusermeta/nubankx-sub000/internal/secrets"
)

func TestNewVault_InitialLoad(t *testing.T) {
	v, err := secrets.NewVault(func() (map[string]string, error) {
		return map[string]string{secrets.APIKeyHash: "h1", secrets.MCPAPIKey: "k1"}, nil
	})
	if err != nil {
		t.Fatalf("NewVault failed: %v", err)
	}
	if got := v.Get(secrets.APIKeyHash); got != "h1" {
		t.Fatalf("expected 'h1', got %q", got)
	}
	if got := v.Get("missing"); got != "" {
		t.Fatalf("expected empty string for missing key, got %q", got)
	}
}

func TestNewVault_LoaderError(t *testing.T) {
	_, err := secrets.NewVault(func() (map[string]string, error) {
		return nil, errors.New("permission denied")
	})
	if err == nil {
		t.Fatal("expected error from failing loader")
	}
}

func TestVault_ReloadAndGetter(t *testing.T) {
	callCount := 0
	v, _ := secrets.NewVault(func() (map[string]string, error) {
		callCount++
		if callCount == 1 {
			return map[string]string{"TOKEN": "old"}, nil
		}
		return map[string]string{"TOKEN": "new"}, nil
	})
	get := v.Getter("TOKEN")

	if got := get(); got != "old" {
		t.Fatalf("expected 'old', got %q", got)
	}
	if err := v.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if got := get(); got != "new" {
		t.Fatalf("getter should see reloaded value, got %q", got)
	}
	if v.Reloads() != 1 {
		t.Fatalf("expected 1 reload, got %d", v.Reloads())
	}
}

func TestVault_ReloadErrorPreservesValues(t *testing.T) {
	callCount := 0
	v, _ := secrets.NewVault(func() (map[string]string, error) {
		callCount++
		if callCount == 1 {
			return map[string]string{"KEY": "original"}, nil
		}
		return nil, errors.New("mount unavailable")
	})

	if err := v.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if got := v.Get("KEY"); got != "original" {
		t.Fatalf("expected 'original' after failed reload, got %q", got)
	}
	if v.Reloads() != 0 {
		t.Fatalf("failed reload must not count, got %d", v.Reloads())
	}
}

func TestVault_ConcurrentAccess(t *testing.T) {
	v, _ := secrets.NewVault(func() (map[string]string, error) {
		return map[string]string{"K": "V"}, nil
	})

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = v.Get("K")
		}()
		go func() {
			defer wg.Done()
			_ = v.Reload()
		}()
	}
	wg.Wait()
}

func TestFileLoader(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, secrets.APIKeyHash), []byte("  $2a$hash\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	vals, err := secrets.FileLoader(dir, secrets.APIKeyHash, secrets.MCPAPIKey)()
	if err != nil {
		t.Fatalf("FileLoader failed: %v", err)
	}
	if vals[secrets.APIKeyHash] != "$2a$hash" {
		t.Fatalf("expected trimmed hash, got %q", vals[secrets.APIKeyHash])
	}
	if _, ok := vals[secrets.MCPAPIKey]; ok {
		t.Fatal("missing file should be omitted")
	}

	vals, err = secrets.FileLoader("", secrets.APIKeyHash)()
	if err != nil || len(vals) != 0 {
		t.Fatalf("empty dir should load nothing, got %v, %v", vals, err)
	}
}

func TestLayeredOverrides(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, secrets.MCPAPIKey), []byte("from-file"), 0o600); err != nil {
		t.Fatal(err)
	}
	loader := secrets.Layered(
		secrets.Static(map[string]string{secrets.MCPAPIKey: "from-config", secrets.APIKeyHash: "cfg-hash", "empty": ""}),
		secrets.FileLoader(dir, secrets.MCPAPIKey, secrets.APIKeyHash),
	)
	vals, err := loader()
	if err != nil {
		t.Fatal(err)
	}
	if vals[secrets.MCPAPIKey] != "from-file" || vals[secrets.APIKeyHash] != "cfg-hash" {
		t.Fatalf("unexpected merge %v", vals)
	}
	if _, ok := vals["empty"]; ok {
		t.Fatal("empty static values should be omitted")
	}
}
