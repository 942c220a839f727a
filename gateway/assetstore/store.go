// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package assetstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Supported providers.
const (
	ProviderS3    = "s3"
	ProviderAzure = "azure"
	ProviderGCS   = "gcs"
	ProviderLocal = "local"
)

// ErrObjectNotFound is returned by Get for a key with no stored object.
var ErrObjectNotFound = errors.New("object not found")

// Object describes one archived asset.
type Object struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	Location     string    `json:"location"`
}

// Store archives asset payloads. Keys are slash-separated paths;
// listings are lexicographic by key.
type Store interface {
	// Put stores data under key and returns its location URI.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)

	// Get returns the payload stored under key.
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns the objects whose keys start with prefix.
	List(ctx context.Context, prefix string) ([]Object, error)

	// Delete removes the object under key. Deleting a missing key is
	// not an error.
	Delete(ctx context.Context, key string) error
}

// Config selects and parameterizes a backend. Bucket names the S3
// bucket, GCS bucket, or Azure container depending on the provider.
type Config struct {
	Provider string `yaml:"provider"`
	Bucket   string `yaml:"bucket"`

	// S3 options. Credentials fall back to the default AWS chain when
	// the static fields are empty.
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	ForcePathStyle  bool   `yaml:"force_path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`

	// Azure options. Without an account key or connection string the
	// default Azure credential chain is used.
	AccountName      string `yaml:"account_name"`
	AccountKey       string `yaml:"account_key"`
	ConnectionString string `yaml:"connection_string"`

	// GCS options. Without a credentials file, application default
	// credentials apply.
	CredentialsFile string `yaml:"credentials_file"`

	// Local options.
	Directory string `yaml:"directory"`
}

// New builds the configured backend.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Provider {
	case ProviderS3:
		return NewS3Store(ctx, cfg)
	case ProviderAzure:
		return NewAzureStore(cfg)
	case ProviderGCS:
		return NewGCSStore(ctx, cfg)
	case ProviderLocal:
		return NewLocalStore(cfg.Directory)
	default:
		return nil, fmt.Errorf("unknown asset store provider: %q", cfg.Provider)
	}
}
