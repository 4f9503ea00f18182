package objectstore

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	dserrors "github.com/systmms/dfops/internal/errors"
	"github.com/systmms/dfops/internal/logging"
	"github.com/systmms/dfops/internal/metrics"
	"github.com/systmms/dfops/internal/retry"
)

// ErrEmptyPrefix is returned by DownloadPrefix when no object lies under
// the requested prefix.
var ErrEmptyPrefix = errors.New("no objects under prefix")

// Result summarises a transfer.
type Result struct {
	Objects int
	Bytes   int64
	Keys    []string
}

// Transfer copies trees between local disk and a Store. Each object is
// retried on transient failures.
type Transfer struct {
	Store  Store
	Retry  retry.Policy
	Logger *logging.Logger
	// Skip lists file and directory names never uploaded. Nil means
	// DefaultSkip.
	Skip []string
}

// DefaultSkip keeps VCS metadata and warehouse credentials out of the
// object store.
var DefaultSkip = []string{".git", ".df-credentials.json"}

func (t *Transfer) logger() *logging.Logger {
	if t.Logger == nil {
		return logging.Discard()
	}
	return t.Logger
}

func (t *Transfer) skip(name string) bool {
	names := t.Skip
	if names == nil {
		names = DefaultSkip
	}
	for _, d := range names {
		if d == name {
			return true
		}
	}
	return false
}

// UploadDir uploads every regular file under localDir to dest, keyed by
// its slash-separated path relative to localDir. Empty directories produce
// no objects.
func (t *Transfer) UploadDir(ctx context.Context, localDir string, dest Location) (Result, error) {
	var res Result

	info, err := os.Stat(localDir)
	if err != nil || !info.IsDir() {
		return res, dserrors.LocalStateError{Path: localDir, Message: "upload source is not a directory", Err: err}
	}

	err = filepath.WalkDir(localDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return dserrors.LocalStateError{Path: p, Message: "cannot walk directory", Err: err}
		}
		if d.IsDir() {
			if p != localDir && t.skip(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || t.skip(d.Name()) {
			return nil
		}

		rel, err := filepath.Rel(localDir, p)
		if err != nil {
			return dserrors.LocalStateError{Path: p, Message: "cannot relativise path", Err: err}
		}
		key := dest.Key(filepath.ToSlash(rel))

		var size int64
		err = retry.Do(ctx, t.Retry, t.logger(), "upload "+key, func(ctx context.Context) error {
			f, err := os.Open(p)
			if err != nil {
				return dserrors.LocalStateError{Path: p, Message: "cannot open file", Err: err}
			}
			defer f.Close()
			if st, err := f.Stat(); err == nil {
				size = st.Size()
			}
			return t.Store.Upload(ctx, dest.Bucket, key, f)
		})
		if err != nil {
			return err
		}

		t.logger().Debug("Uploaded %s to gs://%s/%s", p, dest.Bucket, key)
		metrics.RecordTransfer(metrics.DirectionUpload, size)
		res.Objects++
		res.Bytes += size
		res.Keys = append(res.Keys, key)
		return nil
	})
	if err != nil {
		return res, err
	}

	t.logger().Info("Uploaded %d files (%d bytes) to %s", res.Objects, res.Bytes, dest)
	return res, nil
}

// DownloadPrefix replaces destRoot with the objects under src. destRoot is
// removed and recreated first, so files absent from the store do not
// survive. Keys ending in "/" are folder placeholders and are skipped. When
// nothing lies under src, destRoot is left empty and ErrEmptyPrefix is
// returned.
func (t *Transfer) DownloadPrefix(ctx context.Context, src Location, destRoot string) (Result, error) {
	var res Result

	if err := os.RemoveAll(destRoot); err != nil {
		return res, dserrors.LocalStateError{Path: destRoot, Message: "cannot clear download directory", Err: err}
	}
	if err := os.MkdirAll(destRoot, 0o755); err != nil {
		return res, dserrors.LocalStateError{Path: destRoot, Message: "cannot create download directory", Err: err}
	}
	root, err := filepath.Abs(destRoot)
	if err != nil {
		return res, dserrors.LocalStateError{Path: destRoot, Message: "cannot resolve download directory", Err: err}
	}

	listPrefix := src.listPrefix()
	var keys []string
	err = retry.Do(ctx, t.Retry, t.logger(), "list "+src.String(), func(ctx context.Context) error {
		var err error
		keys, err = t.Store.List(ctx, src.Bucket, listPrefix)
		return err
	})
	if err != nil {
		return res, err
	}

	for _, key := range keys {
		if strings.HasSuffix(key, "/") {
			continue
		}
		rel := strings.TrimPrefix(key, listPrefix)
		target, err := localPath(root, rel)
		if err != nil {
			return res, err
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return res, dserrors.LocalStateError{Path: filepath.Dir(target), Message: "cannot create directory", Err: err}
		}

		var n int64
		err = retry.Do(ctx, t.Retry, t.logger(), "download "+key, func(ctx context.Context) error {
			f, err := os.Create(target)
			if err != nil {
				return dserrors.LocalStateError{Path: target, Message: "cannot create file", Err: err}
			}
			n, err = t.Store.Download(ctx, src.Bucket, key, f)
			if closeErr := f.Close(); err == nil && closeErr != nil {
				return dserrors.LocalStateError{Path: target, Message: "cannot write file", Err: closeErr}
			}
			return err
		})
		if err != nil {
			return res, err
		}

		t.logger().Debug("Downloaded gs://%s/%s to %s", src.Bucket, key, target)
		metrics.RecordTransfer(metrics.DirectionDownload, n)
		res.Objects++
		res.Bytes += n
		res.Keys = append(res.Keys, key)
	}

	if res.Objects == 0 {
		return res, ErrEmptyPrefix
	}
	t.logger().Info("Downloaded %d files (%d bytes) from %s to %s", res.Objects, res.Bytes, src, destRoot)
	return res, nil
}

// localPath maps a slash-separated key remainder under root. Redundant
// separators and "." segments are normalised; keys that would land outside
// root are rejected.
func localPath(root, rel string) (string, error) {
	escapes := rel == "" || strings.HasPrefix(rel, "/") || strings.Contains(rel, "\\")
	for _, seg := range strings.Split(rel, "/") {
		if seg == ".." {
			escapes = true
		}
	}
	clean := path.Clean(rel)
	if escapes || clean == "." {
		return "", dserrors.LocalStateError{Path: rel, Message: "object key does not map to a path under the download directory"}
	}
	return filepath.Join(root, filepath.FromSlash(clean)), nil
}
