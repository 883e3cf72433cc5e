package authflow

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// IdentityClaim is the decoded, verified payload of an identity token. It is
// only ever produced by a TokenVerifier and lives for a single request.
type IdentityClaim struct {
	Subject       string
	Email         string
	EmailVerified bool
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

// TokenVerifier exchanges an opaque identity token for a verified claim.
// Implementations must re-verify on every call and fail closed.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*IdentityClaim, error)
}

// TokenVerifierFunc adapts a function into a TokenVerifier.
type TokenVerifierFunc func(ctx context.Context, token string) (*IdentityClaim, error)

// Verify satisfies the TokenVerifier interface.
func (f TokenVerifierFunc) Verify(ctx context.Context, token string) (*IdentityClaim, error) {
	if f == nil {
		return nil, ErrInvalidToken
	}
	return f(ctx, token)
}

// IdentityClient is the client-side surface of the external identity
// provider. Every method returns either a bearer identity token or a
// provider error carrying a stable error code (see errors.go).
type IdentityClient interface {
	// SignInWithPassword exchanges credentials for an identity token.
	SignInWithPassword(ctx context.Context, email, password string) (string, error)

	// SignInWithProvider runs a federated sign-in against the named provider
	// and returns the resulting identity token.
	SignInWithProvider(ctx context.Context, provider string) (string, error)

	// SignUp creates a new account and returns its first identity token.
	SignUp(ctx context.Context, email, password string) (string, error)

	// SendEmailVerification requests a verification email for the account
	// identified by the given token.
	SendEmailVerification(ctx context.Context, idToken string) error

	// SendPasswordResetEmail initiates an out-of-band password reset.
	SendPasswordResetEmail(ctx context.Context, email string) error

	// VerifyPasswordResetCode checks a reset oobCode and returns the email
	// it was issued for.
	VerifyPasswordResetCode(ctx context.Context, oobCode string) (string, error)

	// ConfirmPasswordReset consumes a reset oobCode with the new password.
	ConfirmPasswordReset(ctx context.Context, oobCode, newPassword string) error

	// ApplyActionCode consumes a verify-email or recover-email oobCode.
	ApplyActionCode(ctx context.Context, oobCode string) error
}

// SessionPoster issues the session-creation round trip from a freshly minted
// identity token. In a browser host this is the POST to the session action;
// tests and non-HTTP hosts provide their own implementation.
type SessionPoster interface {
	PostSession(ctx context.Context, req SessionRequest) error
}

// SessionPosterFunc adapts a function into a SessionPoster.
type SessionPosterFunc func(ctx context.Context, req SessionRequest) error

// PostSession satisfies the SessionPoster interface.
func (f SessionPosterFunc) PostSession(ctx context.Context, req SessionRequest) error {
	if f == nil {
		return ErrProviderUnavailable
	}
	return f(ctx, req)
}

// UserProvisioner ensures a local user record exists for a verified claim,
// creating it on first sight. Implementations must be idempotent.
type UserProvisioner interface {
	Provision(ctx context.Context, claim *IdentityClaim) (*User, error)
}

// BlobStore uploads file contents; the profile-picture flow is the only
// consumer and treats the store as an opaque collaborator.
type BlobStore interface {
	Put(ctx context.Context, path string, data []byte) error
}

// Config holds the knobs shared by the session store and HTTP layer.
type Config interface {
	GetCookieName() string
	GetEncryptionKey() []byte
	GetSigningKey() []byte
	GetSessionDuration() time.Duration
	GetLoginPath() string
	GetDefaultRedirect() string
	GetRejectedRouteParam() string
}

// NewDefaultLogger returns the stdout printf logger used when no logger is
// provided. Subpackages share it so log prefixes stay uniform.
func NewDefaultLogger() Logger {
	return defLogger{}
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTHFLOW "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTHFLOW "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTHFLOW "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTHFLOW "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
