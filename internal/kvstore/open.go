package kvstore

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
)

// Backend names a Store implementation.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendFile   Backend = "file"
	BackendSQLite Backend = "sqlite"
	BackendGCS    Backend = "gcs"
)

// IsValid reports whether b is a known backend.
func (b Backend) IsValid() bool {
	switch b {
	case BackendMemory, BackendFile, BackendSQLite, BackendGCS:
		return true
	}
	return false
}

// Options selects and configures a backend.
type Options struct {
	Backend         Backend
	Dir             string // file
	SQLitePath      string // sqlite
	Bucket          string // gcs
	Prefix          string // gcs
	CredentialsFile string // gcs, optional
}

// Open builds the Store named by opts.Backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendMemory:
		return NewMemory(), nil
	case BackendFile:
		return NewFile(opts.Dir)
	case BackendSQLite:
		return NewSQLite(opts.SQLitePath)
	case BackendGCS:
		var clientOpts []option.ClientOption
		if opts.CredentialsFile != "" {
			clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
		}
		return NewGCS(ctx, opts.Bucket, opts.Prefix, clientOpts...)
	default:
		return nil, fmt.Errorf("kvstore: unsupported backend %q", opts.Backend)
	}
}
