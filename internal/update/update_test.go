package update

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

func newTestUpdater(t *testing.T, password string) (*Updater, string) {
	t.Helper()
	target := filepath.Join(t.TempDir(), "growlight")
	if err := os.WriteFile(target, []byte("old binary"), 0o755); err != nil {
		t.Fatalf("write target: %v", err)
	}
	hash := ""
	if password != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		hash = string(h)
	}
	return New(target, hash, zerolog.Nop()), target
}

func image(body string) []byte {
	return append([]byte{0x7f, 'E', 'L', 'F'}, body...)
}

func digest(b []byte) string {
	s := sha256.Sum256(b)
	return hex.EncodeToString(s[:])
}

func assertTarget(t *testing.T, target string, want []byte) {
	t.Helper()
	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read target: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("target = %q, want %q", got, want)
	}
}

func assertNoTempFiles(t *testing.T, target string) {
	t.Helper()
	entries, _ := os.ReadDir(filepath.Dir(target))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".growlight-update-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestAuthorize(t *testing.T) {
	u, _ := newTestUpdater(t, "sesame")

	if err := u.Authorize("sesame"); err != nil {
		t.Errorf("correct password rejected: %v", err)
	}
	if err := u.Authorize("wrong"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestAuthorizeDisabled(t *testing.T) {
	u, _ := newTestUpdater(t, "")
	if u.Enabled() {
		t.Fatal("expected disabled without hash")
	}
	if err := u.Authorize(""); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestApplyReplacesTarget(t *testing.T) {
	u, target := newTestUpdater(t, "sesame")
	img := image("new binary")

	if err := u.Apply(context.Background(), bytes.NewReader(img), strings.ToUpper(digest(img))); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	assertTarget(t, target, img)
	assertNoTempFiles(t, target)

	info, err := os.Stat(target)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o755 {
		t.Errorf("mode = %v, want 0755", info.Mode().Perm())
	}

	select {
	case <-u.Applied():
	default:
		t.Error("expected Applied closed")
	}

	// A second update must not panic on the already closed channel.
	if err := u.Apply(context.Background(), bytes.NewReader(img), ""); err != nil {
		t.Fatalf("second Apply: %v", err)
	}
}

func TestApplyRejects(t *testing.T) {
	tests := []struct {
		name    string
		body    []byte
		sum     string
		wantErr error
	}{
		{"not elf", []byte("#!/bin/sh\necho hi\n"), "", ErrNotExecutable},
		{"short", []byte{0x7f, 'E'}, "", ErrNotExecutable},
		{"empty", nil, "", ErrNotExecutable},
		{"checksum", image("payload"), digest([]byte("something else")), ErrChecksum},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, target := newTestUpdater(t, "sesame")
			err := u.Apply(context.Background(), bytes.NewReader(tt.body), tt.sum)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			assertTarget(t, target, []byte("old binary"))
			assertNoTempFiles(t, target)

			select {
			case <-u.Applied():
				t.Error("Applied closed after failed update")
			default:
			}
		})
	}
}

func TestApplyCancelled(t *testing.T) {
	u, target := newTestUpdater(t, "sesame")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := u.Apply(ctx, bytes.NewReader(image(strings.Repeat("x", 1024))), "")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	assertTarget(t, target, []byte("old binary"))
}

func TestApplyBusy(t *testing.T) {
	u, _ := newTestUpdater(t, "sesame")
	u.mu.Lock()
	defer u.mu.Unlock()

	if err := u.Apply(context.Background(), bytes.NewReader(image("x")), ""); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
}

func TestHashPassword(t *testing.T) {
	h, err := HashPassword("sesame")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	u := New("unused", h, zerolog.Nop())
	if err := u.Authorize("sesame"); err != nil {
		t.Errorf("hash does not verify: %v", err)
	}
	if _, err := HashPassword(""); err == nil {
		t.Error("expected error for empty password")
	}
}
