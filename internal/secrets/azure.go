package secrets

import (
	"context"
	"errors"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"

	dserrors "github.com/systmms/dfops/internal/errors"
	"github.com/systmms/dfops/internal/logging"
)

// KeyVaultAPI is the subset of the Key Vault secrets client used here.
type KeyVaultAPI interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
}

// AzureAccessor reads secrets from Azure Key Vault.
type AzureAccessor struct {
	client KeyVaultAPI
	logger *logging.Logger
}

// NewAzureAccessor wraps an existing client.
func NewAzureAccessor(client KeyVaultAPI, logger *logging.Logger) *AzureAccessor {
	if logger == nil {
		logger = logging.Discard()
	}
	return &AzureAccessor{client: client, logger: logger}
}

func newAzureAccessor(_ context.Context, opts Options) (Accessor, error) {
	vaultURL := stringSetting(opts.Settings, "vault_url")
	if vaultURL == "" {
		return nil, dserrors.ConfigError{
			Field:      "secret_store.vault_url",
			Message:    "vault_url is required for Azure Key Vault",
			Suggestion: "Provide the Key Vault URL (e.g., https://my-vault.vault.azure.net/)",
		}
	}
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, dserrors.AuthError{System: "keyvault", Op: "credential", Err: err}
	}
	client, err := azsecrets.NewClient(vaultURL, cred, nil)
	if err != nil {
		return nil, dserrors.ConfigError{Field: "secret_store.vault_url", Value: vaultURL, Message: err.Error()}
	}
	return NewAzureAccessor(client, opts.Logger), nil
}

// Get returns the latest version of name.
func (a *AzureAccessor) Get(ctx context.Context, name string) (string, error) {
	a.logger.Debug("Accessing Key Vault secret %s", name)

	resp, err := a.client.GetSecret(ctx, name, "", nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) {
			switch {
			case respErr.StatusCode == http.StatusNotFound:
				return "", dserrors.NotFoundError{System: "keyvault", Name: name, Err: err}
			case respErr.StatusCode == http.StatusUnauthorized, respErr.StatusCode == http.StatusForbidden:
				return "", dserrors.AuthError{System: "keyvault", Op: "get " + name, Err: err}
			case respErr.StatusCode == http.StatusTooManyRequests, respErr.StatusCode >= 500:
				return "", dserrors.TransientError{Op: "keyvault get " + name, Err: err}
			}
		}
		return "", err
	}
	if resp.Value == nil {
		return "", dserrors.NotFoundError{System: "keyvault", Name: name}
	}
	return *resp.Value, nil
}
