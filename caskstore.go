// Package caskstore is a content-addressed object storage client for S3 and
// S3-compatible services (MinIO, GCS, DigitalOcean Spaces, Wasabi, Backblaze
// B2, LocalStack).
//
// A Store gives byte-level access to one bucket/prefix pair with request
// signing, bounded retries, and a per-store concurrency limit. A
// ContentStore layers content-hash addressing on top: payloads are stored
// under keys derived from their SHA-256 digest, so identical content always
// resolves to the identical address.
//
//	cfg := caskstore.NewConfig()
//	cfg.Bucket = "ledger-data"
//	cfg.Endpoint = "https://s3.us-west-2.amazonaws.com"
//
//	store, err := caskstore.Open(ctx, cfg, nil)
//	if err != nil {
//		return err
//	}
//	cas := caskstore.NewContentStore(store, nil)
//	ref, err := cas.Write(ctx, "ledger-1/commit", payload)
package caskstore

import (
	"context"
	"log/slog"

	"github.com/caskstore/caskstore/internal/cas"
	"github.com/caskstore/caskstore/internal/config"
	"github.com/caskstore/caskstore/internal/storage/s3"
	"github.com/caskstore/caskstore/pkg/types"
)

// Config is the per-store configuration. Construct with NewConfig, then
// override fields or apply LoadFromFile/LoadFromEnv before Open.
type Config = config.Config

// Options carries optional collaborators for Open: credentials, transport,
// and logger.
type Options = s3.Options

// Store is the byte-level object store client.
type Store = s3.Store

// ContentStore layers content-hash addressing over a Store.
type ContentStore = cas.Store

// Public interface and value types.
type (
	ObjectStore = types.ObjectStore
	KeyIterator = types.KeyIterator
	ContentRef  = types.ContentRef
	ObjectInfo  = types.ObjectInfo
)

// NewConfig returns a configuration with default timeouts, retry policy, and
// concurrency bound. Bucket and Endpoint must be supplied.
func NewConfig() *Config {
	return config.NewDefault()
}

// Open validates cfg and returns a store bound to its bucket and prefix. No
// network call is made; configuration and credential-chain errors surface
// here.
func Open(ctx context.Context, cfg *Config, opts *Options) (*Store, error) {
	return s3.Open(ctx, cfg, opts)
}

// NewContentStore creates a content-addressed store over backend.
func NewContentStore(backend types.ObjectStore, logger *slog.Logger) *ContentStore {
	return cas.New(backend, logger)
}
