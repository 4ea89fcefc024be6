package kvstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCS stores each key as the object <prefix><key>.json in one bucket.
// It assumes Application Default Credentials unless a credentials file is
// passed in opts.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCS creates a Cloud Storage client bound to bucket.
func NewGCS(ctx context.Context, bucket, prefix string, opts ...option.ClientOption) (*GCS, error) {
	if bucket == "" {
		return nil, fmt.Errorf("NewGCS: bucket is required")
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewGCS: create storage client: %w", err)
	}

	return &GCS{client: client, bucket: bucket, prefix: prefix}, nil
}

// objectName maps a key to its object path, e.g. "ledger/" + "transactions"
// → "ledger/transactions.json".
func objectName(prefix, key string) string {
	if prefix == "" {
		return key + ".json"
	}
	return path.Join(prefix, key+".json")
}

// URI returns the gs:// URI a key is stored at.
func (g *GCS) URI(key string) string {
	return fmt.Sprintf("gs://%s/%s", g.bucket, objectName(g.prefix, key))
}

// Get implements Store.
func (g *GCS) Get(ctx context.Context, key string) ([]byte, error) {
	obj := g.client.Bucket(g.bucket).Object(objectName(g.prefix, key))

	r, err := obj.NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GCS.Get: open object reader %s: %w", g.URI(key), err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("GCS.Get: read object %s: %w", g.URI(key), err)
	}
	return data, nil
}

// Put implements Store. The object is replaced atomically by GCS once the
// writer is closed.
func (g *GCS) Put(ctx context.Context, key string, value []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(objectName(g.prefix, key)).NewWriter(ctx)
	w.ContentType = "application/json"

	if _, err := w.Write(value); err != nil {
		_ = w.Close()
		return fmt.Errorf("GCS.Put: write %s: %w", g.URI(key), err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("GCS.Put: finalize upload %s: %w", g.URI(key), err)
	}
	return nil
}

// Close implements Store.
func (g *GCS) Close() error {
	return g.client.Close()
}

var _ Store = (*GCS)(nil)
