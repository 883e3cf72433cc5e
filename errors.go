package authflow

import (
	"github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidCredentials  = "auth_invalid_credentials"
	TextCodeInvalidToken        = "auth_invalid_token"
	TextCodeTokenExpired        = "auth_token_expired"
	TextCodeProviderUnavailable = "auth_provider_unavailable"
	TextCodeCodeConsumed        = "auth_code_consumed"
	TextCodeCodeExpired         = "auth_code_expired"
	TextCodeUserNotFound        = "auth_user_not_found"
	TextCodeEmailTaken          = "auth_email_taken"
	TextCodePopupClosed         = "auth_popup_closed"
	TextCodeUnauthenticated     = "auth_unauthenticated"
	TextCodeWeakPassword        = "auth_weak_password"
)

// Stable error codes carried by provider errors, matching the identity
// provider's wire-level code strings.
const (
	ProviderCodeUserNotFound      = "auth/user-not-found"
	ProviderCodeWrongPassword     = "auth/wrong-password"
	ProviderCodeUserDisabled      = "auth/user-disabled"
	ProviderCodeEmailExists       = "auth/email-already-in-use"
	ProviderCodeInvalidActionCode = "auth/invalid-action-code"
	ProviderCodeExpiredActionCode = "auth/expired-action-code"
	ProviderCodePopupClosed       = "auth/popup-closed-by-user"
	ProviderCodeNetworkFailure    = "auth/network-request-failed"
	ProviderCodeWeakPassword      = "auth/weak-password"
)

// ErrInvalidCredentials is returned for a wrong password or unknown account.
var ErrInvalidCredentials = errors.New("invalid credentials", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrInvalidToken is returned when identity token verification fails.
var ErrInvalidToken = errors.New("invalid identity token", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidToken).
	WithCode(errors.CodeUnauthorized)

// ErrTokenExpired is returned when an identity token is past its expiry.
var ErrTokenExpired = errors.New("identity token expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrProviderUnavailable is returned on transient provider/network failure.
var ErrProviderUnavailable = errors.New("identity provider unavailable", errors.CategoryOperation).
	WithTextCode(TextCodeProviderUnavailable).
	WithCode(errors.CodeInternal)

// ErrCodeConsumed is returned when a one-time code was already used.
var ErrCodeConsumed = errors.New("action code already consumed", errors.CategoryBadInput).
	WithTextCode(TextCodeCodeConsumed).
	WithCode(errors.CodeBadRequest)

// ErrCodeExpired is returned when a one-time code is past its validity.
var ErrCodeExpired = errors.New("action code expired", errors.CategoryBadInput).
	WithTextCode(TextCodeCodeExpired).
	WithCode(errors.CodeBadRequest)

// ErrUserNotFound is returned when the provider has no matching account.
var ErrUserNotFound = errors.New("user not found", errors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(errors.CodeNotFound)

// ErrEmailTaken is returned when signup hits an existing account.
var ErrEmailTaken = errors.New("email already in use", errors.CategoryValidation).
	WithTextCode(TextCodeEmailTaken).
	WithCode(errors.CodeConflict)

// ErrPopupClosed is returned when the user dismissed the federated sign-in
// window before completing it. Retryable.
var ErrPopupClosed = errors.New("sign-in window dismissed", errors.CategoryAuth).
	WithTextCode(TextCodePopupClosed).
	WithCode(errors.CodeUnauthorized)

// ErrUnauthenticated is returned by RequireAuthenticated when no valid
// session exists; the HTTP layer turns it into a login redirect.
var ErrUnauthenticated = errors.New("authentication required", errors.CategoryAuth).
	WithTextCode(TextCodeUnauthenticated).
	WithCode(errors.CodeUnauthorized)

// ErrWeakPassword is returned when the provider rejects a password.
var ErrWeakPassword = errors.New("password does not meet requirements", errors.CategoryValidation).
	WithTextCode(TextCodeWeakPassword).
	WithCode(errors.CodeBadRequest)

// FromProviderCode maps a provider wire code to the taxonomy, attaching the
// original code as metadata. Unrecognized codes map to ErrProviderUnavailable
// so callers treat them as retryable rather than crashing.
func FromProviderCode(code, message string) *errors.Error {
	var base *errors.Error

	switch code {
	case ProviderCodeUserNotFound:
		base = ErrUserNotFound
	case ProviderCodeWrongPassword, ProviderCodeUserDisabled:
		base = ErrInvalidCredentials
	case ProviderCodeEmailExists:
		base = ErrEmailTaken
	case ProviderCodeInvalidActionCode:
		base = ErrCodeConsumed
	case ProviderCodeExpiredActionCode:
		base = ErrCodeExpired
	case ProviderCodePopupClosed:
		base = ErrPopupClosed
	case ProviderCodeWeakPassword:
		base = ErrWeakPassword
	case ProviderCodeNetworkFailure:
		base = ErrProviderUnavailable
	default:
		base = ErrProviderUnavailable
	}

	clone := base.Clone()
	return clone.WithMetadata(map[string]any{
		"provider_code":    code,
		"provider_message": message,
	})
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}

// IsUserNotFound reports whether err denotes a missing provider account.
func IsUserNotFound(err error) bool {
	return hasTextCode(err, TextCodeUserNotFound)
}

// IsInvalidCredentials reports whether err denotes rejected credentials.
func IsInvalidCredentials(err error) bool {
	return hasTextCode(err, TextCodeInvalidCredentials)
}

// IsCodeConsumed reports whether err denotes an already-used one-time code.
func IsCodeConsumed(err error) bool {
	return hasTextCode(err, TextCodeCodeConsumed)
}

// IsCodeExpired reports whether err denotes an expired one-time code.
func IsCodeExpired(err error) bool {
	return hasTextCode(err, TextCodeCodeExpired)
}

// IsPopupClosed reports whether err denotes a dismissed federated sign-in.
func IsPopupClosed(err error) bool {
	return hasTextCode(err, TextCodePopupClosed)
}

// IsTokenExpired reports whether err denotes an expired identity token.
func IsTokenExpired(err error) bool {
	return hasTextCode(err, TextCodeTokenExpired)
}

// IsProviderUnavailable reports whether err denotes a transient failure.
func IsProviderUnavailable(err error) bool {
	return hasTextCode(err, TextCodeProviderUnavailable)
}

// AlreadyHandled reports whether an out-of-band action error is the expected
// consequence of a legitimate prior action (consumed code or missing user)
// and should resolve the flow into a success-like terminal state.
func AlreadyHandled(err error) bool {
	return IsCodeConsumed(err) || IsUserNotFound(err)
}
