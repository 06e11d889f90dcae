package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Local keeps uploaded files on the local filesystem below a root directory.
type Local struct {
	root   string
	logger zerolog.Logger
}

// NewLocal prepares the root directory and returns a storage rooted there.
func NewLocal(root string, logger zerolog.Logger) (*Local, error) {
	root = filepath.Clean(strings.TrimSpace(root))
	if root == "" || root == "." {
		root = "uploads"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to prepare storage directory: %w", err)
	}

	return &Local{
		root:   root,
		logger: logger.With().Str("component", "local_storage").Logger(),
	}, nil
}

// Store writes the reader to <root>/<name> and returns that path.
func (s *Local) Store(ctx context.Context, name string, reader io.Reader) (string, error) {
	target, err := s.resolve(filepath.Join(s.root, filepath.FromSlash(name)))
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}

	written, err := io.Copy(file, reader)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(target)
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	s.logger.Debug().Str("path", target).Int64("bytes", written).Msg("file stored")

	return filepath.ToSlash(target), nil
}

// Retrieve opens a previously stored file. Missing files report fs.ErrNotExist.
func (s *Local) Retrieve(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	target, err := s.resolve(filepath.FromSlash(path))
	if err != nil {
		return nil, err
	}

	file, err := os.Open(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fs.ErrNotExist
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

func (s *Local) resolve(path string) (string, error) {
	cleaned := filepath.Clean(path)
	rel, err := filepath.Rel(s.root, cleaned)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path %q escapes storage root", path)
	}
	return cleaned, nil
}
