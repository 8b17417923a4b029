package ssh

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDialRequiresUserAndHost(t *testing.T) {
	if _, err := Dial(context.Background(), Config{Host: "example"}); err == nil {
		t.Fatalf("expected error without user")
	}
}

func TestAuthMethodsExplicitKeyMissing(t *testing.T) {
	if _, err := authMethods(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatalf("expected error for missing key")
	}
}

func TestAuthMethodsExplicitKeyGarbage(t *testing.T) {
	p := filepath.Join(t.TempDir(), "id_rsa")
	if err := os.WriteFile(p, []byte("not a key"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := authMethods(p); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLimitedBuffer(t *testing.T) {
	b := &limitedBuffer{N: 4}
	if _, err := b.Write([]byte("abcd")); err != nil {
		t.Fatalf("write within limit: %v", err)
	}
	if _, err := b.Write([]byte("e")); !errors.Is(err, ErrOutputTooLarge) {
		t.Fatalf("expected ErrOutputTooLarge, got %v", err)
	}
	if string(b.Bytes()) != "abcd" {
		t.Fatalf("unexpected content %q", b.Bytes())
	}
}

func TestHostKeyCallbackNeedsKnownHosts(t *testing.T) {
	old := KnownHostsPath
	KnownHostsPath = func() string { return filepath.Join(t.TempDir(), "missing") }
	t.Cleanup(func() { KnownHostsPath = old })

	if _, err := hostKeyCallback(false); err == nil {
		t.Fatalf("missing known_hosts must fail when checking host keys")
	}
	if cb, err := hostKeyCallback(true); err != nil || cb == nil {
		t.Fatalf("insecure mode: cb=%v err=%v", cb, err)
	}
}
