package objectstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Requires DFOPS_TEST_GCP=1, application default credentials and a
// writable bucket named by DFOPS_TEST_BUCKET.
func TestGCS_Integration(t *testing.T) {
	if os.Getenv("DFOPS_TEST_GCP") == "" {
		t.Skip("DFOPS_TEST_GCP not set")
	}
	bucket := os.Getenv("DFOPS_TEST_BUCKET")
	if bucket == "" {
		t.Skip("DFOPS_TEST_BUCKET not set")
	}

	ctx := context.Background()
	store, err := NewGCS(ctx)
	require.NoError(t, err)
	defer store.Close()

	src := t.TempDir()
	writeTree(t, src, map[string]string{"dataform.json": `{"vars":{}}`})
	loc := NewLocation(bucket, "dfops-it/"+time.Now().Format("20060102150405"))
	tr := &Transfer{Store: store}

	_, err = tr.UploadDir(ctx, src, loc)
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "out")
	res, err := tr.DownloadPrefix(ctx, loc, dest)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Objects)
}
