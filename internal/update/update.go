// Package update replaces the running daemon binary with an uploaded image.
//
// The new image is written next to the target, checked and renamed over it,
// so a failed upload never leaves a partial binary behind. The daemon then
// exits and its supervisor starts the new image.
package update

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrUnauthorized is returned for a wrong password or when updates are disabled.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrBusy is returned while another update is in progress.
	ErrBusy = errors.New("update already in progress")
	// ErrChecksum is returned when the image does not match the expected digest.
	ErrChecksum = errors.New("checksum mismatch")
	// ErrNotExecutable is returned when the image is not an ELF binary.
	ErrNotExecutable = errors.New("image is not an ELF executable")
)

var elfMagic = []byte{0x7f, 'E', 'L', 'F'}

// Updater applies images to target.
type Updater struct {
	target string
	hash   []byte
	logger zerolog.Logger

	mu      sync.Mutex
	applied chan struct{}
	once    sync.Once
}

// New returns an Updater that replaces target and accepts the password
// matching the bcrypt hash. An empty hash disables updates.
func New(target, passwordHash string, logger zerolog.Logger) *Updater {
	return &Updater{
		target:  target,
		hash:    []byte(passwordHash),
		logger:  logger.With().Str("component", "update").Logger(),
		applied: make(chan struct{}),
	}
}

// Enabled reports whether a password is configured.
func (u *Updater) Enabled() bool { return len(u.hash) > 0 }

// Authorize checks password against the configured hash.
func (u *Updater) Authorize(password string) error {
	if !u.Enabled() {
		return ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword(u.hash, []byte(password)); err != nil {
		return ErrUnauthorized
	}
	return nil
}

// Applied is closed once an image has been installed.
func (u *Updater) Applied() <-chan struct{} { return u.applied }

// Apply streams r to a temporary file, verifies it and atomically replaces
// the target. sum is an optional hex SHA-256 of the image.
func (u *Updater) Apply(ctx context.Context, r io.Reader, sum string) error {
	if !u.mu.TryLock() {
		return ErrBusy
	}
	defer u.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(u.target), ".growlight-update-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after rename

	n, digest, err := u.write(ctx, tmp, r)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close temp file: %w", cerr)
	}
	if err != nil {
		return err
	}

	if sum != "" && !strings.EqualFold(sum, digest) {
		return fmt.Errorf("%w: got %s, want %s", ErrChecksum, digest, strings.ToLower(sum))
	}
	if err := os.Chmod(tmp.Name(), 0o755); err != nil {
		return fmt.Errorf("chmod image: %w", err)
	}
	if err := os.Rename(tmp.Name(), u.target); err != nil {
		return fmt.Errorf("install image: %w", err)
	}

	u.logger.Info().Int64("bytes", n).Str("sha256", digest).Str("target", u.target).Msg("image installed")
	u.once.Do(func() { close(u.applied) })
	return nil
}

func (u *Updater) write(ctx context.Context, f *os.File, r io.Reader) (int64, string, error) {
	h := sha256.New()
	head := make([]byte, len(elfMagic))
	got, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return 0, "", fmt.Errorf("read image: %w", err)
	}
	if !bytes.Equal(head[:got], elfMagic) {
		return 0, "", ErrNotExecutable
	}

	w := io.MultiWriter(f, h)
	if _, err := w.Write(head); err != nil {
		return 0, "", fmt.Errorf("write image: %w", err)
	}
	n, err := io.Copy(w, &ctxReader{ctx: ctx, r: r})
	if err != nil {
		return 0, "", fmt.Errorf("write image: %w", err)
	}
	if err := f.Sync(); err != nil {
		return 0, "", fmt.Errorf("sync image: %w", err)
	}
	return n + int64(got), hex.EncodeToString(h.Sum(nil)), nil
}

// ctxReader stops a copy when ctx is cancelled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// HashPassword returns the bcrypt hash for password, for the config file.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("empty password")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}
