package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/clerk/clerk-sdk-go/v2"
	"github.com/clerk/clerk-sdk-go/v2/user"

	pkgerrors "github.com/shopflow/shopflow-backend/pkg/errors"
)

const defaultTimeout = 5 * time.Second

var (
	errSecretKeyRequired = errors.New("identity provider secret key is required")
	// ErrUserNotFound is returned when the provider has no user for the id.
	ErrUserNotFound = errors.New("provider user not found")
)

// Client wraps the identity provider Backend API calls used for user sync.
type Client struct {
	users *user.Client
}

type options struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
}

// Option configures optional client behavior.
type Option func(*options)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// WithBaseURL overrides the Backend API base URL. A trailing API version
// segment is dropped; the SDK appends its own.
func WithBaseURL(baseURL string) Option {
	return func(o *options) {
		trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
		trimmed = strings.TrimSuffix(trimmed, "/"+clerk.APIVersion)
		if trimmed != "" {
			o.baseURL = trimmed
		}
	}
}

// WithTimeout bounds every request issued by the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// ClientConfig builds the SDK configuration shared by the user and JWKS clients.
func ClientConfig(secretKey string, opts ...Option) (*clerk.ClientConfig, error) {
	trimmedKey := strings.TrimSpace(secretKey)
	if trimmedKey == "" {
		return nil, errSecretKeyRequired
	}

	o := options{timeout: defaultTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: o.timeout}
	}

	cfg := &clerk.ClientConfig{}
	cfg.Key = clerk.String(trimmedKey)
	cfg.HTTPClient = o.httpClient
	if o.baseURL != "" {
		cfg.URL = clerk.String(o.baseURL)
	}
	return cfg, nil
}

// NewClient builds a Backend API client authenticated with secretKey.
func NewClient(secretKey string, opts ...Option) (*Client, error) {
	cfg, err := ClientConfig(secretKey, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{users: user.NewClient(cfg)}, nil
}

// GetUser returns the provider's user object re-encoded in its wire shape so
// it can go through the identity normalizer.
func (c *Client) GetUser(ctx context.Context, userID string) (json.RawMessage, error) {
	if c == nil || c.users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "identity provider client not configured")
	}
	trimmed := strings.TrimSpace(userID)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	u, err := c.users.Get(ctx, trimmed)
	if err != nil {
		return nil, mapError(err, "provider user lookup")
	}
	raw, err := json.Marshal(u)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "encode provider user")
	}
	return raw, nil
}

// UpdatePublicMetadata merges metadata into the user's public metadata.
func (c *Client) UpdatePublicMetadata(ctx context.Context, userID string, metadata map[string]any) error {
	if c == nil || c.users == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "identity provider client not configured")
	}
	trimmed := strings.TrimSpace(userID)
	if trimmed == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	payload, err := json.Marshal(metadata)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal metadata request")
	}
	public := json.RawMessage(payload)
	if _, err := c.users.UpdateMetadata(ctx, trimmed, &user.UpdateMetadataParams{PublicMetadata: &public}); err != nil {
		return mapError(err, "provider metadata update")
	}
	return nil
}

func mapError(err error, message string) error {
	var apiErr *clerk.APIErrorResponse
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusNotFound {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrUserNotFound, message)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}
