package secrets

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// Requires DFOPS_TEST_GCP=1, application default credentials and a
// GOOGLE_CLOUD_PROJECT holding a secret named by DFOPS_TEST_SECRET.
func TestGCPAccessor_Integration(t *testing.T) {
	if os.Getenv("DFOPS_TEST_GCP") == "" {
		t.Skip("DFOPS_TEST_GCP not set")
	}
	name := os.Getenv("DFOPS_TEST_SECRET")
	if name == "" {
		t.Skip("DFOPS_TEST_SECRET not set")
	}

	ctx := context.Background()
	a, err := NewAccessor(ctx, Options{Type: "gcp", ProjectID: os.Getenv("GOOGLE_CLOUD_PROJECT")})
	require.NoError(t, err)

	v, err := a.Get(ctx, name)
	require.NoError(t, err)
	require.NotEmpty(t, v)
}
