// Package secrets reads the latest version of a named secret from the
// configured secret store. Values are returned as text; nothing is cached
// and no default is ever substituted for a missing secret.
package secrets

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	dserrors "github.com/systmms/dfops/internal/errors"
	"github.com/systmms/dfops/internal/logging"
	"github.com/systmms/dfops/internal/secure"
)

// Accessor returns the latest payload of a secret.
type Accessor interface {
	Get(ctx context.Context, name string) (string, error)
}

// AccessorFunc adapts a function to Accessor.
type AccessorFunc func(ctx context.Context, name string) (string, error)

// Get calls f.
func (f AccessorFunc) Get(ctx context.Context, name string) (string, error) {
	return f(ctx, name)
}

// Options selects and configures a backend.
type Options struct {
	Type      string // gcp (default), aws, azure, keyring
	ProjectID string // gcp project owning the secrets
	Settings  map[string]interface{}
	Logger    *logging.Logger
}

// Factory builds an Accessor for one backend type.
type Factory func(ctx context.Context, opts Options) (Accessor, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{
		"gcp":     newGCPAccessor,
		"aws":     newAWSAccessor,
		"azure":   newAzureAccessor,
		"keyring": newKeyringAccessor,
	}
)

// Register adds or replaces a backend factory.
func Register(storeType string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[storeType] = f
}

// Types lists the registered backend types.
func Types() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// NewAccessor builds the accessor for opts.Type.
func NewAccessor(ctx context.Context, opts Options) (Accessor, error) {
	storeType := strings.ToLower(strings.TrimSpace(opts.Type))
	if storeType == "" {
		storeType = "gcp"
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	registryMu.RLock()
	factory, ok := registry[storeType]
	registryMu.RUnlock()
	if !ok {
		return nil, dserrors.ConfigError{
			Field:      "secret_store.type",
			Value:      opts.Type,
			Message:    "unknown secret store type",
			Suggestion: fmt.Sprintf("Use one of: %s", strings.Join(Types(), ", ")),
		}
	}
	return factory(ctx, opts)
}

// GetSecure fetches a secret and seals it in memory. An empty name yields an
// empty value without contacting the store.
func GetSecure(ctx context.Context, a Accessor, name string) (*secure.Value, error) {
	if name == "" {
		return secure.NewValue(nil), nil
	}
	v, err := a.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return secure.FromString(v), nil
}

func stringSetting(settings map[string]interface{}, key string) string {
	if v, ok := settings[key].(string); ok {
		return v
	}
	return ""
}
