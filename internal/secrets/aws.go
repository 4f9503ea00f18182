package secrets

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/smithy-go"

	dserrors "github.com/systmms/dfops/internal/errors"
	"github.com/systmms/dfops/internal/logging"
)

// SecretsManagerAPI is the subset of the AWS Secrets Manager client used here.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSAccessor reads secrets from AWS Secrets Manager (AWSCURRENT stage).
type AWSAccessor struct {
	client SecretsManagerAPI
	logger *logging.Logger
}

// NewAWSAccessor wraps an existing client.
func NewAWSAccessor(client SecretsManagerAPI, logger *logging.Logger) *AWSAccessor {
	if logger == nil {
		logger = logging.Discard()
	}
	return &AWSAccessor{client: client, logger: logger}
}

func newAWSAccessor(ctx context.Context, opts Options) (Accessor, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if region := stringSetting(opts.Settings, "region"); region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, dserrors.ConfigError{
			Field:      "secret_store",
			Message:    "failed to load AWS configuration: " + err.Error(),
			Suggestion: "Configure AWS credentials via environment, profile, or instance role",
		}
	}

	var clientOpts []func(*secretsmanager.Options)
	if endpoint := stringSetting(opts.Settings, "endpoint"); endpoint != "" {
		clientOpts = append(clientOpts, func(o *secretsmanager.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	return NewAWSAccessor(secretsmanager.NewFromConfig(cfg, clientOpts...), opts.Logger), nil
}

// Get returns the current SecretString (or SecretBinary as text).
func (a *AWSAccessor) Get(ctx context.Context, name string) (string, error) {
	a.logger.Debug("Accessing AWS secret %s", name)

	out, err := a.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId:     aws.String(name),
		VersionStage: aws.String("AWSCURRENT"),
	})
	if err != nil {
		return "", classifyAWS(name, err)
	}
	if out.SecretString != nil {
		return aws.ToString(out.SecretString), nil
	}
	if out.SecretBinary != nil {
		return string(out.SecretBinary), nil
	}
	return "", dserrors.NotFoundError{System: "secretsmanager", Name: name}
}

func classifyAWS(name string, err error) error {
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return dserrors.NotFoundError{System: "secretsmanager", Name: name, Err: err}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch {
		case strings.Contains(code, "AccessDenied"), strings.Contains(code, "UnrecognizedClient"),
			strings.Contains(code, "ExpiredToken"), code == "InvalidSignatureException":
			return dserrors.AuthError{System: "secretsmanager", Op: "get " + name, Message: apiErr.ErrorMessage(), Err: err}
		case code == "ThrottlingException", code == "InternalServiceError":
			return dserrors.TransientError{Op: "secretsmanager get " + name, Err: err}
		}
		if apiErr.ErrorFault() == smithy.FaultServer {
			return dserrors.TransientError{Op: "secretsmanager get " + name, Err: err}
		}
	}
	return err
}
