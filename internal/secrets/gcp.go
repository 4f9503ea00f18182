package secrets

import (
	"context"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"

	dserrors "github.com/systmms/dfops/internal/errors"
	"github.com/systmms/dfops/internal/logging"
)

// SecretManagerClient is the subset of the Secret Manager client used here.
type SecretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error)
}

type gcpClient struct {
	c *secretmanager.Client
}

func (g gcpClient) AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	return g.c.AccessSecretVersion(ctx, req)
}

// GCPAccessor reads secrets from Google Cloud Secret Manager.
type GCPAccessor struct {
	client    SecretManagerClient
	projectID string
	logger    *logging.Logger
}

// NewGCPAccessor wraps an existing client. Used directly by tests.
func NewGCPAccessor(client SecretManagerClient, projectID string, logger *logging.Logger) *GCPAccessor {
	if logger == nil {
		logger = logging.Discard()
	}
	return &GCPAccessor{client: client, projectID: projectID, logger: logger}
}

func newGCPAccessor(ctx context.Context, opts Options) (Accessor, error) {
	projectID := opts.ProjectID
	if p := stringSetting(opts.Settings, "project_id"); p != "" {
		projectID = p
	}
	if projectID == "" {
		return nil, dserrors.ConfigError{
			Field:      "project_id",
			Message:    "project_id is required for GCP Secret Manager",
			Suggestion: "Set project_id in dfops.yaml or GOOGLE_CLOUD_PROJECT",
		}
	}

	var clientOpts []option.ClientOption
	if keyPath := stringSetting(opts.Settings, "credentials_file"); keyPath != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(keyPath))
	}
	client, err := secretmanager.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, dserrors.FromGRPC("secretmanager", "connect", projectID, fmt.Errorf("failed to create Secret Manager client: %w", err))
	}
	return NewGCPAccessor(gcpClient{c: client}, projectID, opts.Logger), nil
}

// ResourceName returns the resource path of the latest version of name.
func (a *GCPAccessor) ResourceName(name string) string {
	if strings.HasPrefix(name, "projects/") {
		if strings.Contains(name, "/versions/") {
			return name
		}
		return name + "/versions/latest"
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", a.projectID, name)
}

// Get returns the latest payload of name as text.
func (a *GCPAccessor) Get(ctx context.Context, name string) (string, error) {
	resource := a.ResourceName(name)
	a.logger.Debug("Accessing secret %s", resource)

	resp, err := a.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: resource})
	if err != nil {
		return "", dserrors.FromGRPC("secretmanager", "access", name, err)
	}
	if resp.GetPayload() == nil {
		return "", dserrors.NotFoundError{System: "secretmanager", Name: name}
	}
	return string(resp.GetPayload().GetData()), nil
}
