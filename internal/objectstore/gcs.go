package objectstore

import (
	"context"
	"errors"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	dserrors "github.com/systmms/dfops/internal/errors"
)

// GCS is a Store backed by Google Cloud Storage.
type GCS struct {
	client *storage.Client
}

// NewGCS creates a client using Application Default Credentials.
func NewGCS(ctx context.Context, opts ...option.ClientOption) (*GCS, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, dserrors.AuthError{System: "gcs", Op: "connect", Err: err}
	}
	return &GCS{client: client}, nil
}

// Close releases the client.
func (g *GCS) Close() error {
	return g.client.Close()
}

// Upload writes r to gs://bucket/key.
func (g *GCS) Upload(ctx context.Context, bucket, key string, r io.Reader) error {
	w := g.client.Bucket(bucket).Object(key).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return classifyGCS("upload", bucket, key, err)
	}
	if err := w.Close(); err != nil {
		return classifyGCS("upload", bucket, key, err)
	}
	return nil
}

// Download copies gs://bucket/key into w.
func (g *GCS) Download(ctx context.Context, bucket, key string, w io.Writer) (int64, error) {
	rc, err := g.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return 0, classifyGCS("download", bucket, key, err)
	}
	defer rc.Close()

	n, err := io.Copy(w, rc)
	if err != nil {
		return n, classifyGCS("download", bucket, key, err)
	}
	return n, nil
}

// List returns every object key under prefix, folder placeholders included.
func (g *GCS) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	it := g.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var keys []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, classifyGCS("list", bucket, prefix, err)
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}

func classifyGCS(op, bucket, key string, err error) error {
	name := "gs://" + bucket + "/" + key
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return dserrors.NotFoundError{System: "gcs", Name: name, Err: err}
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized, apiErr.Code == http.StatusForbidden:
			return dserrors.AuthError{System: "gcs", Op: op + " " + name, Message: apiErr.Message, Err: err}
		case apiErr.Code == http.StatusNotFound:
			return dserrors.NotFoundError{System: "gcs", Name: name, Err: err}
		case apiErr.Code == http.StatusTooManyRequests, apiErr.Code >= 500:
			return dserrors.TransientError{Op: "gcs " + op + " " + name, Err: err}
		}
	}

	if dserrors.IsRetryable(err) {
		return dserrors.TransientError{Op: "gcs " + op + " " + name, Err: err}
	}
	return dserrors.FromGRPC("gcs", op, name, err)
}
