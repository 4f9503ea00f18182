package secrets

import (
	"context"
	"errors"

	"github.com/zalando/go-keyring"

	dserrors "github.com/systmms/dfops/internal/errors"
	"github.com/systmms/dfops/internal/logging"
)

// DefaultKeyringService is the keyring service secrets are stored under.
const DefaultKeyringService = "dfops"

// KeyringAccessor reads secrets from the OS keyring. Meant for local
// development where no cloud secret store is reachable.
type KeyringAccessor struct {
	service string
	logger  *logging.Logger
}

// NewKeyringAccessor returns an accessor for service.
func NewKeyringAccessor(service string, logger *logging.Logger) *KeyringAccessor {
	if service == "" {
		service = DefaultKeyringService
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &KeyringAccessor{service: service, logger: logger}
}

func newKeyringAccessor(_ context.Context, opts Options) (Accessor, error) {
	return NewKeyringAccessor(stringSetting(opts.Settings, "service"), opts.Logger), nil
}

// Get reads service/name from the keyring.
func (a *KeyringAccessor) Get(_ context.Context, name string) (string, error) {
	v, err := keyring.Get(a.service, name)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", dserrors.NotFoundError{System: "keyring", Name: name, Err: err}
		}
		return "", dserrors.AuthError{System: "keyring", Op: "get " + name, Err: err}
	}
	return v, nil
}
