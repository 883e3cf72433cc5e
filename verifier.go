package authflow

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
)

// tokenClaims is the identity-token payload shape shared by the verifiers.
type tokenClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	jwt.RegisteredClaims
}

func (c *tokenClaims) identityClaim() *IdentityClaim {
	claim := &IdentityClaim{
		Subject:       c.Subject,
		Email:         c.Email,
		EmailVerified: c.EmailVerified,
	}
	if c.IssuedAt != nil {
		claim.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		claim.ExpiresAt = c.ExpiresAt.Time
	}
	return claim
}

// normalizeTokenError folds jwt parse failures into the error taxonomy,
// keeping the parser error as source metadata. Anything that is not an
// expiry reads as an invalid token; verification always fails closed.
func normalizeTokenError(err error) error {
	if err == nil {
		return nil
	}

	clone := ErrInvalidToken.Clone()
	if stderrors.Is(err, jwt.ErrTokenExpired) {
		clone = ErrTokenExpired.Clone()
	}

	clone.Source = err
	return clone.WithMetadata(map[string]any{
		"cause": err.Error(),
	})
}

// JWKSVerifier verifies RS256 identity tokens against the provider's JWKS
// endpoint, refreshing keys in the background.
type JWKSVerifier struct {
	jwks     *keyfunc.JWKS
	issuer   string
	audience string
	logger   Logger
}

// JWKSVerifierOption customizes verifier construction.
type JWKSVerifierOption func(*JWKSVerifier)

// WithIssuer pins the expected iss claim.
func WithIssuer(issuer string) JWKSVerifierOption {
	return func(v *JWKSVerifier) {
		v.issuer = issuer
	}
}

// WithAudience pins the expected aud claim.
func WithAudience(audience string) JWKSVerifierOption {
	return func(v *JWKSVerifier) {
		v.audience = audience
	}
}

// WithVerifierLogger overrides the default logger.
func WithVerifierLogger(logger Logger) JWKSVerifierOption {
	return func(v *JWKSVerifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// NewJWKSVerifier fetches the key set from jwksURL and keeps it refreshed
// until ctx is canceled.
func NewJWKSVerifier(ctx context.Context, jwksURL string, opts ...JWKSVerifierOption) (*JWKSVerifier, error) {
	v := &JWKSVerifier{logger: defLogger{}}

	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}

	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		Ctx:               ctx,
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  5 * time.Minute,
		RefreshTimeout:    10 * time.Second,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			v.logger.Error("jwks refresh failed: %v", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("authflow: loading jwks from %s: %w", jwksURL, err)
	}

	v.jwks = jwks
	return v, nil
}

// NewJWKSVerifierFromConfig builds a verifier from the environment config,
// pinning issuer and audience when they are set.
func NewJWKSVerifierFromConfig(ctx context.Context, cfg *EnvConfig, opts ...JWKSVerifierOption) (*JWKSVerifier, error) {
	if cfg == nil || cfg.JWKSURL == "" {
		return nil, fmt.Errorf("authflow: jwks url is required")
	}

	fromCfg := []JWKSVerifierOption{}
	if cfg.TokenIssuer != "" {
		fromCfg = append(fromCfg, WithIssuer(cfg.TokenIssuer))
	}
	if cfg.TokenAudience != "" {
		fromCfg = append(fromCfg, WithAudience(cfg.TokenAudience))
	}

	return NewJWKSVerifier(ctx, cfg.JWKSURL, append(fromCfg, opts...)...)
}

// Verify implements TokenVerifier.
func (v *JWKSVerifier) Verify(ctx context.Context, token string) (*IdentityClaim, error) {
	if err := ctx.Err(); err != nil {
		return nil, normalizeTokenError(err)
	}

	claims := &tokenClaims{}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.audience))
	}

	parsed, err := jwt.ParseWithClaims(token, claims, v.jwks.Keyfunc, parserOpts...)
	if err != nil {
		return nil, normalizeTokenError(err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return claims.identityClaim(), nil
}

// Close stops the background key refresh.
func (v *JWKSVerifier) Close() {
	v.jwks.EndBackground()
}

// HMACVerifier verifies HS256 identity tokens with a shared secret. It backs
// the devlocal provider and test setups; production deployments verify
// against the provider's JWKS instead.
type HMACVerifier struct {
	secret []byte
	issuer string
}

// NewHMACVerifier builds a verifier for tokens signed with secret. An empty
// issuer skips the iss check.
func NewHMACVerifier(secret []byte, issuer string) *HMACVerifier {
	return &HMACVerifier{secret: secret, issuer: issuer}
}

// Verify implements TokenVerifier.
func (v *HMACVerifier) Verify(ctx context.Context, token string) (*IdentityClaim, error) {
	if err := ctx.Err(); err != nil {
		return nil, normalizeTokenError(err)
	}

	claims := &tokenClaims{}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, parserOpts...)
	if err != nil {
		return nil, normalizeTokenError(err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return claims.identityClaim(), nil
}
