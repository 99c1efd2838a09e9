// Package storage keeps uploaded image files outside the database.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/savannah-faces/data-service/internal/config"
)

var (
	ErrInvalidName = errors.New("invalid object name")
	ErrExists      = errors.New("object already exists")
)

// Store saves and removes assets by their generated name.
type Store interface {
	// Save writes r under name and returns where it was stored.
	Save(ctx context.Context, name, contentType string, r io.Reader) (string, error)
	// Delete removes name. A missing object is not an error.
	Delete(ctx context.Context, name string) error
	// URL is the address clients fetch the asset from.
	URL(name string) string
}

// New builds the backend selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig, publicPrefix string) (Store, error) {
	switch cfg.Backend {
	case config.StorageLocal:
		return NewLocalStore(cfg.DataDir, publicPrefix)
	case config.StorageS3:
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}

// checkName accepts only a bare file name, never a path.
func checkName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
