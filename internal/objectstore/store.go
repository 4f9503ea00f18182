// Package objectstore copies directory trees to and from an object store.
package objectstore

import (
	"context"
	"io"
)

// Store is the minimal object-store surface transfers need.
type Store interface {
	Upload(ctx context.Context, bucket, key string, r io.Reader) error
	Download(ctx context.Context, bucket, key string, w io.Writer) (int64, error)
	List(ctx context.Context, bucket, prefix string) ([]string, error)
}
