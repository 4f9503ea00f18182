package fakes

import (
	"context"
	"fmt"
	"sync"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// SecretManager is an in-memory Secret Manager. Only "latest" versions are
// stored, keyed by projects/X/secrets/Y/versions/latest.
type SecretManager struct {
	mu       sync.Mutex
	versions map[string][]byte
	errors   map[string]error
	Requests []string
}

// NewSecretManager returns an empty fake.
func NewSecretManager() *SecretManager {
	return &SecretManager{
		versions: make(map[string][]byte),
		errors:   make(map[string]error),
	}
}

func latest(projectID, name string) string {
	return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", projectID, name)
}

// Put stores value as the latest version of name, replacing any previous one.
func (f *SecretManager) Put(projectID, name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.versions[latest(projectID, name)] = []byte(value)
}

// FailWith makes every access of name return err.
func (f *SecretManager) FailWith(projectID, name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors[latest(projectID, name)] = err
}

// AccessSecretVersion implements the Secret Manager call.
func (f *SecretManager) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Requests = append(f.Requests, req.GetName())

	if err, ok := f.errors[req.GetName()]; ok {
		return nil, err
	}
	data, ok := f.versions[req.GetName()]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "Secret [%s] not found or has no versions", req.GetName())
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Name:    req.GetName(),
		Payload: &secretmanagerpb.SecretPayload{Data: data},
	}, nil
}

// PermissionDenied returns the error Secret Manager gives a caller without
// secretAccessor.
func PermissionDenied(resource string) error {
	return status.Errorf(codes.PermissionDenied, "Permission 'secretmanager.versions.access' denied for resource '%s'", resource)
}

// Unavailable returns a retryable gRPC error.
func Unavailable() error {
	return status.Error(codes.Unavailable, "connection reset by peer")
}
