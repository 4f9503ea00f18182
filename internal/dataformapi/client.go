// Package dataformapi triggers runs of a managed Dataform project over its
// web API and waits for them to finish.
package dataformapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	dserrors "github.com/systmms/dfops/internal/errors"
	"github.com/systmms/dfops/internal/logging"
	"github.com/systmms/dfops/internal/retry"
	"github.com/systmms/dfops/internal/secure"
)

const system = "dataform-api"

// DefaultBaseURL is the public Dataform web API.
const DefaultBaseURL = "https://api.dataform.co/v1"

// Client talks to one Dataform project.
type Client struct {
	BaseURL   string // e.g. https://api.dataform.co/v1
	ProjectID string
	HTTP      *http.Client
	Retry     retry.Policy
	Logger    *logging.Logger
}

// NewClient returns a client sending the API key as a bearer token.
func NewClient(ctx context.Context, baseURL, projectID string, apiKey *secure.Value) (*Client, error) {
	if projectID == "" {
		return nil, dserrors.ConfigError{
			Field:      "dataform.project_id",
			Message:    "Dataform project id is required",
			Suggestion: "Set dataform.project_id in dfops.yaml or export DATAFORM_PROJECT_ID",
		}
	}
	key, err := apiKey.Reveal()
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, dserrors.AuthError{System: system, Op: "configure", Message: "API key is empty"}
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: key, TokenType: "Bearer"})
	httpClient := oauth2.NewClient(ctx, ts)
	httpClient.Timeout = 30 * time.Second

	return &Client{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		ProjectID: projectID,
		HTTP:      httpClient,
	}, nil
}

func (c *Client) runsURL() string {
	return fmt.Sprintf("%s/project/%s/run", c.BaseURL, c.ProjectID)
}

func (c *Client) logger() *logging.Logger {
	if c.Logger == nil {
		return logging.Discard()
	}
	return c.Logger
}

type triggerResponse struct {
	ID json.RawMessage `json:"id"`
}

type statusResponse struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Status Status          `json:"status"`
}

// Trigger starts a run and returns its id. The request is not retried.
func (c *Client) Trigger(ctx context.Context) (string, error) {
	var resp triggerResponse
	if err := c.do(ctx, http.MethodPost, c.runsURL(), []byte("{}"), &resp); err != nil {
		return "", err
	}
	id, err := decodeID(resp.ID)
	if err != nil {
		return "", dserrors.UserError{Message: "Dataform API returned no run id", Details: err.Error()}
	}
	c.logger().Info("Triggered Dataform run %s", id)
	return id, nil
}

// Status fetches the current status of a run. Transient failures are
// retried within ctx.
func (c *Client) Status(ctx context.Context, runID string) (Status, error) {
	var resp statusResponse
	err := retry.Do(ctx, c.Retry, c.logger(), "status "+runID, func(ctx context.Context) error {
		resp = statusResponse{}
		return c.do(ctx, http.MethodGet, c.runsURL()+"/"+runID, nil, &resp)
	})
	if err != nil {
		return "", err
	}
	return resp.Status, nil
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return dserrors.TransientError{Op: system + " " + method, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return dserrors.TransientError{Op: system + " read", Err: err}
	}

	if err := statusError(method, url, resp.StatusCode, data); err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return dserrors.UserError{
			Message: "Dataform API returned malformed JSON",
			Details: err.Error(),
			Err:     err,
		}
	}
	return nil
}

func statusError(method, url string, code int, body []byte) error {
	if code >= 200 && code < 300 {
		return nil
	}
	httpErr := fmt.Errorf("HTTP %d: %s", code, strings.TrimSpace(string(body)))
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return dserrors.AuthError{System: system, Op: method + " " + url, Err: httpErr}
	case code == http.StatusNotFound:
		return dserrors.NotFoundError{System: system, Name: url, Err: httpErr}
	case code == http.StatusTooManyRequests || code >= 500:
		return dserrors.TransientError{Op: system + " " + method, Err: httpErr}
	}
	return dserrors.UserError{Message: fmt.Sprintf("Dataform API %s %s failed", method, url), Details: httpErr.Error(), Err: httpErr}
}

// decodeID accepts a JSON string or number.
func decodeID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", errors.New("missing id")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "", errors.New("empty id")
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("id is neither string nor number: %s", raw)
	}
	return n.String(), nil
}
