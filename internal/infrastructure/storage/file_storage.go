package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/sygfp/internal/application/port"
)

// ErrInvalidSignature is returned when a download link was tampered with or expired
var ErrInvalidSignature = errors.New("invalid or expired download signature")

// LocalStorage implements port.BlobStorage on the local filesystem.
// Download links point at the HTTP server and carry an HMAC signature.
type LocalStorage struct {
	baseDir string
	baseURL string
	secret  []byte
	logger  *zap.Logger
	now     func() time.Time
}

// NewLocalStorage creates a LocalStorage rooted at baseDir
func NewLocalStorage(baseDir, baseURL, secret string, logger *zap.Logger) *LocalStorage {
	return &LocalStorage{
		baseDir: baseDir,
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  []byte(secret),
		logger:  logger,
		now:     time.Now,
	}
}

// Put writes content under key
func (s *LocalStorage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	fullPath, err := s.resolve(key)
	if err != nil {
		return err
	}

	parentDir := filepath.Dir(fullPath)
	if err := os.MkdirAll(parentDir, 0755); err != nil {
		s.logger.Error("Failed to create parent directories",
			zap.String("path", parentDir),
			zap.Error(err))
		return fmt.Errorf("failed to create directories: %w", err)
	}

	// write then rename so readers never see a partial file
	tmp, err := os.CreateTemp(parentDir, ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	written, err := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && size >= 0 && written != size {
		err = fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		s.logger.Error("Failed to write file", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to move file into place: %w", err)
	}

	s.logger.Debug("File saved successfully",
		zap.String("key", key),
		zap.Int64("size", written))
	return nil
}

// Get opens the content stored under key
func (s *LocalStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	fullPath, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fullPath)
	if err != nil {
		s.logger.Error("Failed to open file", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, nil
}

// Delete removes the content stored under key. Missing files are not an error.
func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	fullPath, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		s.logger.Error("Failed to delete file", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// URL returns a signed link valid for expiry
func (s *LocalStorage) URL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if _, err := s.resolve(key); err != nil {
		return "", err
	}
	expires := s.now().Add(expiry).Unix()
	q := url.Values{}
	q.Set("key", key)
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("sig", s.sign(key, expires))
	return s.baseURL + "/api/v1/files?" + q.Encode(), nil
}

// Verify checks a signed link produced by URL
func (s *LocalStorage) Verify(key, expires, sig string) error {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	if s.now().Unix() > exp {
		return ErrInvalidSignature
	}
	if !hmac.Equal([]byte(sig), []byte(s.sign(key, exp))) {
		return ErrInvalidSignature
	}
	return nil
}

func (s *LocalStorage) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(key))
	mac.Write([]byte{'\n'})
	mac.Write([]byte(strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// resolve converts a key to a path and checks that it stays within baseDir
func (s *LocalStorage) resolve(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("empty storage key")
	}
	fullPath := filepath.Join(s.baseDir, filepath.FromSlash(key))

	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}
	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes base directory: %s", key)
	}
	return absPath, nil
}

// Verify interface compliance
var _ port.BlobStorage = (*LocalStorage)(nil)
