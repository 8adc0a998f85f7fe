// Package gcs provides the Google Cloud Storage implementation of the storage
// adapter interface.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"

	gstorage "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	storageAdapter "github.com/tigerroll/weatherlake/internal/storage"
	storageConfig "github.com/tigerroll/weatherlake/internal/storage/config"
	"github.com/tigerroll/weatherlake/internal/support/util/logger"
)

const (
	// ProviderType defines the type identifier for this GCS storage adapter.
	ProviderType = "gcs"
	// uriScheme is the scheme used in fully-qualified object references.
	uriScheme = "gs"
)

// gcsAdapter implements the storage.Connection interface on top of the
// cloud.google.com/go/storage client.
type gcsAdapter struct {
	client *gstorage.Client
	cfg    storageConfig.StorageConfig
	name   string
}

// Verify that gcsAdapter implements the storage.Connection interface.
var _ storageAdapter.Connection = (*gcsAdapter)(nil)

// NewGCSAdapter creates a new GCS-backed storage connection.
// When CredentialsFile is set it is passed to the client; otherwise application
// default credentials are used.
func NewGCSAdapter(ctx context.Context, cfg storageConfig.StorageConfig, name string) (storageAdapter.Connection, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := gstorage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs storage adapter '%s': failed to create client: %w", name, err)
	}

	return &gcsAdapter{
		client: client,
		cfg:    cfg,
		name:   name,
	}, nil
}

// Close closes the underlying GCS client.
func (a *gcsAdapter) Close() error {
	logger.Debugf("GCS storage adapter '%s' closed.", a.name)
	return a.client.Close()
}

// Type returns the type of the adapter, which is "gcs".
func (a *gcsAdapter) Type() string {
	return ProviderType
}

// Name returns the name of this connection.
func (a *gcsAdapter) Name() string {
	return a.name
}

// Scheme returns "gs", the URI scheme for GCS object references.
func (a *gcsAdapter) Scheme() string {
	return uriScheme
}

// Upload writes data to the specified bucket and object name, overwriting any
// existing object under the same key.
func (a *gcsAdapter) Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	w := a.client.Bucket(bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, data); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write object 'gs://%s/%s': %w", bucket, objectName, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize object 'gs://%s/%s': %w", bucket, objectName, err)
	}
	logger.Debugf("Uploaded object 'gs://%s/%s' (adapter '%s').", bucket, objectName, a.name)
	return nil
}

// Download opens a reader for the specified object.
// The returned io.ReadCloser must be closed by the caller.
func (a *gcsAdapter) Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error) {
	r, err := a.client.Bucket(bucket).Object(objectName).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open object 'gs://%s/%s': %w", bucket, objectName, err)
	}
	return r, nil
}

// ListObjects iterates all object keys under the given prefix.
// Pagination is handled by the GCS iterator; the callback is invoked once per key.
func (a *gcsAdapter) ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error {
	it := a.client.Bucket(bucket).Objects(ctx, &gstorage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to list objects under 'gs://%s/%s': %w", bucket, prefix, err)
		}
		if err := fn(attrs.Name); err != nil {
			return err
		}
	}
}

// ListCommonPrefixes performs a delimiter-based listing, invoking the callback
// once per common prefix directly below the given prefix. GCS reports common
// prefixes as attrs entries with an empty Name and a populated Prefix field.
func (a *gcsAdapter) ListCommonPrefixes(ctx context.Context, bucket, prefix, delimiter string, fn func(commonPrefix string) error) error {
	it := a.client.Bucket(bucket).Objects(ctx, &gstorage.Query{Prefix: prefix, Delimiter: delimiter})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to list common prefixes under 'gs://%s/%s': %w", bucket, prefix, err)
		}
		if attrs.Prefix == "" {
			continue
		}
		if err := fn(attrs.Prefix); err != nil {
			return err
		}
	}
}

// Exists probes whether at least one object exists under the given prefix.
// It lists at most one entry; iterator errors are surfaced to the caller
// rather than reported as absence.
func (a *gcsAdapter) Exists(ctx context.Context, bucket, prefix string) (bool, error) {
	it := a.client.Bucket(bucket).Objects(ctx, &gstorage.Query{Prefix: prefix})
	_, err := it.Next()
	if errors.Is(err, iterator.Done) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to probe prefix 'gs://%s/%s': %w", bucket, prefix, err)
	}
	return true, nil
}
