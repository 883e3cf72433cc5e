// Package authflow orchestrates multi-step identity flows (password login,
// federated login, signup, email verification, password reset) against an
// external identity provider, and bridges them to server-side cookie sessions.
//
// Flow machines:
//   - Every flow is an explicit state machine: a pure transition function
//     maps (state, event) to (state, commands). Commands are declarative
//     descriptions of side effects (provider calls, session round-trips)
//     executed by a Runner, whose completion events feed back into the
//     machine. Transitions are unit-testable without any I/O.
//   - LoginFlow drives password and federated sign-in plus the signup
//     variant; ActionFlow handles provider-issued one-time codes
//     (resetPassword, recoverEmail, verifyEmail); ResetRequestFlow and
//     UploadFlow follow the same pattern at smaller scale.
//
// Sessions:
//   - CookieSessionStore persists a minimal session record (the identity
//     token reference plus the remember flag) in a signed, encrypted cookie.
//     A tampered cookie degrades to "no session", never an error.
//   - RouteAuthenticator re-verifies the embedded token on every protected
//     request through a TokenVerifier; absence or invalidity always yields a
//     redirect to the login entry point carrying the original path.
//
// Provider integrations live in provider/: identitykit speaks the provider's
// REST surface, devlocal is an in-process stand-in for development and tests.
package authflow
