// Package identitykit implements the identity-provider client against the
// provider's REST surface. Every call maps wire-level error messages onto the
// stable auth/* error codes the flow machines branch on.
package identitykit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-authflow"
)

// DefaultBaseURL is the hosted REST endpoint.
const DefaultBaseURL = "https://identitytoolkit.googleapis.com/v1"

// TokenSource produces a federated IDP credential for the named provider.
// Browser hosts implement this with the provider popup; servers exchange a
// credential they already hold.
type TokenSource func(ctx context.Context, provider string) (string, error)

// Config holds client construction parameters.
type Config struct {
	// BaseURL overrides the REST endpoint, mainly for the emulator and tests.
	BaseURL string
	// APIKey is the project's browser key, required by every call.
	APIKey string
	// HTTPClient overrides the default client.
	HTTPClient *http.Client
	// TokenSource enables SignInWithProvider; without it federated sign-in
	// is reported as unavailable.
	TokenSource TokenSource
	// Logger overrides the default logger.
	Logger authflow.Logger
}

// Client is the REST identity client.
type Client struct {
	baseURL     string
	apiKey      string
	http        *http.Client
	tokenSource TokenSource
	logger      authflow.Logger
}

var _ authflow.IdentityClient = (*Client)(nil)

// New creates a REST identity client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("identitykit: API key is required")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = authflow.NewDefaultLogger()
	}

	return &Client{
		baseURL:     baseURL,
		apiKey:      cfg.APIKey,
		http:        httpClient,
		tokenSource: cfg.TokenSource,
		logger:      logger,
	}, nil
}

type signInResponse struct {
	IDToken string `json:"idToken"`
	Email   string `json:"email"`
}

type resetPasswordResponse struct {
	Email string `json:"email"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// SignInWithPassword implements authflow.IdentityClient.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (string, error) {
	out := &signInResponse{}
	err := c.post(ctx, "accounts:signInWithPassword", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, out)
	if err != nil {
		return "", err
	}
	return out.IDToken, nil
}

// SignInWithProvider implements authflow.IdentityClient.
func (c *Client) SignInWithProvider(ctx context.Context, provider string) (string, error) {
	if c.tokenSource == nil {
		return "", authflow.FromProviderCode(
			authflow.ProviderCodeNetworkFailure,
			"federated sign-in requires a token source",
		)
	}

	credential, err := c.tokenSource(ctx, provider)
	if err != nil {
		return "", err
	}

	out := &signInResponse{}
	err = c.post(ctx, "accounts:signInWithIdp", map[string]any{
		"postBody":          fmt.Sprintf("id_token=%s&providerId=%s", credential, provider),
		"requestUri":        "http://localhost",
		"returnSecureToken": true,
	}, out)
	if err != nil {
		return "", err
	}
	return out.IDToken, nil
}

// SignUp implements authflow.IdentityClient.
func (c *Client) SignUp(ctx context.Context, email, password string) (string, error) {
	out := &signInResponse{}
	err := c.post(ctx, "accounts:signUp", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, out)
	if err != nil {
		return "", err
	}
	return out.IDToken, nil
}

// SendEmailVerification implements authflow.IdentityClient.
func (c *Client) SendEmailVerification(ctx context.Context, idToken string) error {
	return c.post(ctx, "accounts:sendOobCode", map[string]any{
		"requestType": "VERIFY_EMAIL",
		"idToken":     idToken,
	}, nil)
}

// SendPasswordResetEmail implements authflow.IdentityClient.
func (c *Client) SendPasswordResetEmail(ctx context.Context, email string) error {
	return c.post(ctx, "accounts:sendOobCode", map[string]any{
		"requestType": "PASSWORD_RESET",
		"email":       email,
	}, nil)
}

// VerifyPasswordResetCode implements authflow.IdentityClient.
func (c *Client) VerifyPasswordResetCode(ctx context.Context, oobCode string) (string, error) {
	out := &resetPasswordResponse{}
	err := c.post(ctx, "accounts:resetPassword", map[string]any{
		"oobCode": oobCode,
	}, out)
	if err != nil {
		return "", err
	}
	return out.Email, nil
}

// ConfirmPasswordReset implements authflow.IdentityClient.
func (c *Client) ConfirmPasswordReset(ctx context.Context, oobCode, newPassword string) error {
	return c.post(ctx, "accounts:resetPassword", map[string]any{
		"oobCode":     oobCode,
		"newPassword": newPassword,
	}, nil)
}

// ApplyActionCode implements authflow.IdentityClient.
func (c *Client) ApplyActionCode(ctx context.Context, oobCode string) error {
	return c.post(ctx, "accounts:update", map[string]any{
		"oobCode": oobCode,
	}, nil)
}

func (c *Client) post(ctx context.Context, endpoint string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("identitykit: marshaling request: %w", err)
	}

	target := fmt.Sprintf("%s/%s?key=%s", c.baseURL, endpoint, url.QueryEscape(c.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("identitykit: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return authflow.FromProviderCode(authflow.ProviderCodeNetworkFailure, err.Error())
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return authflow.FromProviderCode(authflow.ProviderCodeNetworkFailure, err.Error())
	}

	if res.StatusCode != http.StatusOK {
		apiErr := &apiError{}
		if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Error.Message == "" {
			c.logger.Warn("unparseable provider error, status %d", res.StatusCode)
			return authflow.FromProviderCode(
				authflow.ProviderCodeNetworkFailure,
				fmt.Sprintf("status %d", res.StatusCode),
			)
		}
		return authflow.FromProviderCode(
			mapErrorMessage(apiErr.Error.Message),
			apiErr.Error.Message,
		)
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return authflow.FromProviderCode(authflow.ProviderCodeNetworkFailure, err.Error())
	}

	return nil
}

// mapErrorMessage translates wire-level messages into stable auth/* codes.
// Messages sometimes carry detail after the code ("WEAK_PASSWORD : ..."), so
// only the leading token is matched.
func mapErrorMessage(message string) string {
	code := message
	if i := strings.IndexAny(message, " :"); i > 0 {
		code = message[:i]
	}

	switch code {
	case "EMAIL_NOT_FOUND":
		return authflow.ProviderCodeUserNotFound
	case "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS":
		return authflow.ProviderCodeWrongPassword
	case "USER_DISABLED":
		return authflow.ProviderCodeUserDisabled
	case "EMAIL_EXISTS":
		return authflow.ProviderCodeEmailExists
	case "INVALID_OOB_CODE":
		return authflow.ProviderCodeInvalidActionCode
	case "EXPIRED_OOB_CODE":
		return authflow.ProviderCodeExpiredActionCode
	case "WEAK_PASSWORD":
		return authflow.ProviderCodeWeakPassword
	default:
		return authflow.ProviderCodeNetworkFailure
	}
}
