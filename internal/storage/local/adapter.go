// Package local provides a local file system implementation of the storage
// adapter interface, used for development runs and package tests.
package local

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	storageAdapter "github.com/tigerroll/weatherlake/internal/storage"
	storageConfig "github.com/tigerroll/weatherlake/internal/storage/config"
	"github.com/tigerroll/weatherlake/internal/support/util/logger"
)

const (
	// ProviderType defines the type identifier for this local storage adapter.
	ProviderType = "local"
	// uriScheme is the scheme used in fully-qualified object references.
	uriScheme = "file"
)

// localAdapter implements the storage.Connection interface for local file
// system operations. A bucket maps to a directory directly below BaseDir and
// object keys map to slash-separated relative paths.
type localAdapter struct {
	cfg  storageConfig.StorageConfig
	name string
}

// Verify that localAdapter implements the storage.Connection interface.
var _ storageAdapter.Connection = (*localAdapter)(nil)

// NewLocalAdapter creates a new localAdapter instance.
// It validates the BaseDir configuration and attempts to create it if it doesn't exist.
func NewLocalAdapter(cfg storageConfig.StorageConfig, name string) (storageAdapter.Connection, error) {
	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("local storage adapter '%s': BaseDir must be specified in configuration", name)
	}
	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(cfg.BaseDir, 0755); err != nil {
				return nil, fmt.Errorf("local storage adapter '%s': failed to create BaseDir '%s': %w", name, cfg.BaseDir, err)
			}
		} else {
			return nil, fmt.Errorf("local storage adapter '%s': failed to stat BaseDir '%s': %w", name, cfg.BaseDir, err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("local storage adapter '%s': BaseDir '%s' is not a directory", name, cfg.BaseDir)
	}

	return &localAdapter{
		cfg:  cfg,
		name: name,
	}, nil
}

// Close does nothing for the local file system adapter as it holds no special resources.
func (a *localAdapter) Close() error {
	logger.Debugf("Local storage adapter '%s' closed.", a.name)
	return nil
}

// Type returns the type of the adapter, which is "local".
func (a *localAdapter) Type() string {
	return ProviderType
}

// Name returns the name of this connection.
func (a *localAdapter) Name() string {
	return a.name
}

// Scheme returns "file", the URI scheme for local object references.
func (a *localAdapter) Scheme() string {
	return uriScheme
}

// Upload writes data to the file backing the given bucket and object name,
// creating intermediate directories as needed. The contentType is ignored on
// the local file system.
func (a *localAdapter) Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	fullPath, err := a.resolvePath(bucket, objectName)
	if err != nil {
		return fmt.Errorf("failed to resolve path for upload: %w", err)
	}

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory '%s': %w", dir, err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("failed to create file '%s': %w", fullPath, err)
	}
	defer file.Close()

	if _, err := io.Copy(file, data); err != nil {
		return fmt.Errorf("failed to write data to file '%s': %w", fullPath, err)
	}
	logger.Debugf("Uploaded data to '%s' (local adapter '%s').", fullPath, a.name)
	return nil
}

// Download opens the file backing the given bucket and object name.
// The returned io.ReadCloser must be closed by the caller.
func (a *localAdapter) Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error) {
	fullPath, err := a.resolvePath(bucket, objectName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path for download: %w", err)
	}

	file, err := os.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file '%s': %w", fullPath, err)
	}
	return file, nil
}

// ListObjects walks the bucket directory and calls `fn` for every file whose
// slash-separated key starts with the given prefix.
func (a *localAdapter) ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error {
	basePath, err := a.resolvePath(bucket, "")
	if err != nil {
		return fmt.Errorf("failed to resolve base path for listing: %w", err)
	}

	keys, err := a.collectKeys(basePath, prefix)
	if err != nil {
		return fmt.Errorf("failed to list objects in '%s' with prefix '%s': %w", basePath, prefix, err)
	}

	for _, key := range keys {
		if err := fn(key); err != nil {
			return err
		}
	}
	return nil
}

// ListCommonPrefixes simulates delimiter-based listing over the directory
// tree: for every key under the prefix, the portion up to and including the
// first delimiter after the prefix is reported once, in sorted order.
func (a *localAdapter) ListCommonPrefixes(ctx context.Context, bucket, prefix, delimiter string, fn func(commonPrefix string) error) error {
	basePath, err := a.resolvePath(bucket, "")
	if err != nil {
		return fmt.Errorf("failed to resolve base path for listing: %w", err)
	}

	keys, err := a.collectKeys(basePath, prefix)
	if err != nil {
		return fmt.Errorf("failed to list common prefixes in '%s' with prefix '%s': %w", basePath, prefix, err)
	}

	seen := make(map[string]struct{})
	var prefixes []string
	for _, key := range keys {
		rest := strings.TrimPrefix(key, prefix)
		idx := strings.Index(rest, delimiter)
		if idx < 0 {
			continue
		}
		commonPrefix := prefix + rest[:idx+len(delimiter)]
		if _, ok := seen[commonPrefix]; ok {
			continue
		}
		seen[commonPrefix] = struct{}{}
		prefixes = append(prefixes, commonPrefix)
	}
	sort.Strings(prefixes)

	for _, p := range prefixes {
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}

// Exists reports whether at least one file exists under the given prefix.
func (a *localAdapter) Exists(ctx context.Context, bucket, prefix string) (bool, error) {
	basePath, err := a.resolvePath(bucket, "")
	if err != nil {
		return false, fmt.Errorf("failed to resolve base path for probe: %w", err)
	}
	if _, err := os.Stat(basePath); os.IsNotExist(err) {
		return false, nil
	}

	keys, err := a.collectKeys(basePath, prefix)
	if err != nil {
		return false, fmt.Errorf("failed to probe prefix '%s' in '%s': %w", prefix, basePath, err)
	}
	return len(keys) > 0, nil
}

// collectKeys walks basePath and returns the sorted slash-separated keys of
// all files whose key starts with prefix.
func (a *localAdapter) collectKeys(basePath, prefix string) ([]string, error) {
	if _, err := os.Stat(basePath); os.IsNotExist(err) {
		return nil, nil
	}

	var keys []string
	err := filepath.WalkDir(basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		objectName, err := filepath.Rel(basePath, path)
		if err != nil {
			return fmt.Errorf("failed to get relative path for '%s' from '%s': %w", path, basePath, err)
		}
		objectName = strings.ReplaceAll(objectName, "\\", "/")
		if !strings.HasPrefix(objectName, prefix) {
			return nil
		}
		keys = append(keys, objectName)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// resolvePath resolves the full path of a file relative to the BaseDir.
// It also performs a security check to ensure the resolved path does not escape the BaseDir.
func (a *localAdapter) resolvePath(bucket, objectName string) (string, error) {
	baseDir := a.cfg.BaseDir
	if baseDir == "" {
		return "", fmt.Errorf("BaseDir is not configured for local adapter '%s'", a.name)
	}
	if bucket == "" {
		return "", fmt.Errorf("bucket must be specified for local adapter '%s'", a.name)
	}

	fullPath := filepath.Join(baseDir, bucket, filepath.FromSlash(objectName))

	absBaseDir, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for BaseDir '%s': %w", baseDir, err)
	}
	absFullPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for '%s': %w", fullPath, err)
	}
	if !strings.HasPrefix(absFullPath, absBaseDir) {
		return "", fmt.Errorf("resolved path '%s' is outside of BaseDir '%s'", fullPath, baseDir)
	}

	return fullPath, nil
}
