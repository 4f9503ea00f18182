package secrets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	dserrors "github.com/systmms/dfops/internal/errors"
)

// CredentialsFileName is the file the Dataform CLI reads warehouse
// credentials from.
const CredentialsFileName = ".df-credentials.json"

// WriteCredentialsFile fetches secretName, checks it is JSON and writes it
// to dir/.df-credentials.json indented with four spaces. It returns the
// path written.
func WriteCredentialsFile(ctx context.Context, a Accessor, secretName, dir string) (string, error) {
	path := filepath.Join(dir, CredentialsFileName)

	payload, err := a.Get(ctx, secretName)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(payload), "", "    "); err != nil {
		return "", dserrors.LocalStateError{
			Path:    path,
			Message: fmt.Sprintf("secret %q is not valid JSON", secretName),
			Err:     err,
		}
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return "", dserrors.LocalStateError{Path: path, Message: "cannot write credentials file", Err: err}
	}
	return path, nil
}
