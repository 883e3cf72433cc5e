package authflow

import (
	"net/http"
	"net/url"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

// SessionRequest is the payload of the session-creation round trip: the token
// to seal into the cookie, where to send the browser afterwards, and whether
// the cookie should outlive the browser.
type SessionRequest struct {
	IDToken    string `json:"id_token" form:"id_token"`
	RedirectTo string `json:"redirect_to" form:"redirect_to"`
	Remember   bool   `json:"remember" form:"remember"`
}

// Validate implements payload validation.
func (r SessionRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.IDToken, validation.Required),
	)
}

// CookieSessionStore persists session records in a single encrypted cookie.
type CookieSessionStore struct {
	cfg    Config
	codec  SessionCodec
	logger Logger
}

// SessionStoreOption customizes store construction.
type SessionStoreOption func(*CookieSessionStore)

// WithSessionCodec overrides the default encrypted codec.
func WithSessionCodec(codec SessionCodec) SessionStoreOption {
	return func(s *CookieSessionStore) {
		if codec != nil {
			s.codec = codec
		}
	}
}

// WithSessionLogger overrides the default logger.
func WithSessionLogger(logger Logger) SessionStoreOption {
	return func(s *CookieSessionStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewCookieSessionStore builds a store from the shared config.
func NewCookieSessionStore(cfg Config, opts ...SessionStoreOption) *CookieSessionStore {
	s := &CookieSessionStore{
		cfg:    cfg,
		codec:  NewEncryptedSessionCodec(cfg.GetEncryptionKey(), cfg.GetSigningKey(), cfg.GetSessionDuration()),
		logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// Create seals the session into the cookie. A remembered session carries an
// expiry so the browser keeps it; otherwise the cookie dies with the tab.
func (s *CookieSessionStore) Create(c router.Context, session *SessionObject) error {
	value, err := s.codec.Encode(session)
	if err != nil {
		return err
	}

	cookie := &router.Cookie{
		Name:     s.cfg.GetCookieName(),
		Value:    value,
		Path:     "/",
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	}
	if session.Remember {
		cookie.Expires = time.Now().Add(s.cfg.GetSessionDuration())
	}

	c.Cookie(cookie)
	return nil
}

// Read returns the request's session, or nil when there is none. A cookie
// that fails decoding for any reason reads as absent; tampering never
// surfaces as an error.
func (s *CookieSessionStore) Read(c router.Context) *SessionObject {
	value := c.Cookies(s.cfg.GetCookieName())
	if value == "" {
		return nil
	}

	session, err := s.codec.Decode(value)
	if err != nil {
		s.logger.Debug("discarding undecodable session cookie: %v", err)
		return nil
	}

	return session
}

// Destroy expires the session cookie.
func (s *CookieSessionStore) Destroy(c router.Context) {
	c.Cookie(&router.Cookie{
		Name:     s.cfg.GetCookieName(),
		Value:    "",
		Path:     "/",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

// PopNotification returns the pending flash notification, clearing it from
// the cookie so it renders at most once.
func (s *CookieSessionStore) PopNotification(c router.Context) string {
	session := s.Read(c)
	if session == nil || session.Notification == "" {
		return ""
	}

	note := session.Notification
	session.Notification = ""
	if err := s.Create(c, session); err != nil {
		s.logger.Warn("failed to clear session notification: %v", err)
	}

	return note
}

// PushNotification stores a flash notification on an existing session.
func (s *CookieSessionStore) PushNotification(c router.Context, note string) {
	session := s.Read(c)
	if session == nil {
		return
	}

	session.Notification = note
	if err := s.Create(c, session); err != nil {
		s.logger.Warn("failed to store session notification: %v", err)
	}
}

// RouteAuthenticator guards routes with the cookie session: it re-verifies
// the embedded identity token on every request and redirects to the login
// entry point when that fails, carrying the rejected path so login can send
// the browser back.
type RouteAuthenticator struct {
	store        *CookieSessionStore
	verifier     TokenVerifier
	provisioner  UserProvisioner
	cfg          Config
	Logger       Logger
	ErrorHandler func(c router.Context, err error) error
}

// AuthenticatorOption customizes authenticator construction.
type AuthenticatorOption func(*RouteAuthenticator)

// WithUserProvisioner enables lazy local-user creation on authenticated
// requests.
func WithUserProvisioner(p UserProvisioner) AuthenticatorOption {
	return func(a *RouteAuthenticator) {
		a.provisioner = p
	}
}

// WithAuthenticatorLogger overrides the default logger.
func WithAuthenticatorLogger(logger Logger) AuthenticatorOption {
	return func(a *RouteAuthenticator) {
		if logger != nil {
			a.Logger = logger
		}
	}
}

// NewRouteAuthenticator wires the session store and token verifier into a
// route guard.
func NewRouteAuthenticator(store *CookieSessionStore, verifier TokenVerifier, cfg Config, opts ...AuthenticatorOption) *RouteAuthenticator {
	a := &RouteAuthenticator{
		store:    store,
		verifier: verifier,
		cfg:      cfg,
		Logger:   defLogger{},
	}

	a.ErrorHandler = a.defaultErrHandler

	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	return a
}

// Authenticate resolves the request's verified claim without writing a
// response. It returns ErrUnauthenticated when there is no session or the
// embedded token no longer verifies.
func (a *RouteAuthenticator) Authenticate(c router.Context) (*IdentityClaim, error) {
	session := a.store.Read(c)
	if session == nil {
		return nil, ErrUnauthenticated
	}

	claim, err := a.verifier.Verify(c.Context(), session.IDToken)
	if err != nil {
		a.Logger.Info("session token no longer verifies: %v", err)
		a.store.Destroy(c)
		return nil, ErrUnauthenticated
	}

	if a.provisioner != nil {
		if _, err := a.provisioner.Provision(c.Context(), claim); err != nil {
			a.Logger.Error("user provisioning failed for %s: %v", claim.Subject, err)
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to provision user").
				WithCode(errors.CodeInternal)
		}
	}

	return claim, nil
}

// Protected wraps a handler so it only runs with a verified claim; failed
// requests are redirected to login with the original path attached.
func (a *RouteAuthenticator) Protected(next func(c router.Context, claim *IdentityClaim) error) router.HandlerFunc {
	return func(c router.Context) error {
		claim, err := a.Authenticate(c)
		if err != nil {
			return a.ErrorHandler(c, err)
		}
		return next(c, claim)
	}
}

// CreateUserSession verifies the freshly issued token, seals it into the
// session cookie, and redirects to the requested destination.
func (a *RouteAuthenticator) CreateUserSession(c router.Context, req SessionRequest) error {
	claim, err := a.verifier.Verify(c.Context(), req.IDToken)
	if err != nil {
		a.Logger.Info("rejected session request: %v", err)
		return err
	}

	if a.provisioner != nil {
		if _, err := a.provisioner.Provision(c.Context(), claim); err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "failed to provision user").
				WithCode(errors.CodeInternal)
		}
	}

	session := &SessionObject{
		IDToken:  req.IDToken,
		Remember: req.Remember,
	}
	if err := a.store.Create(c, session); err != nil {
		return err
	}

	target := req.RedirectTo
	if target == "" {
		target = a.cfg.GetDefaultRedirect()
	}

	return c.Redirect(target, http.StatusSeeOther)
}

// Logout destroys the session and sends the browser to the login page.
func (a *RouteAuthenticator) Logout(c router.Context) error {
	a.store.Destroy(c)
	return c.Redirect(a.cfg.GetLoginPath(), http.StatusSeeOther)
}

// LoginRedirectURL is where an unauthenticated request gets sent: the login
// path carrying the rejected path in the redirect query parameter.
func (a *RouteAuthenticator) LoginRedirectURL(c router.Context) string {
	target := url.Values{}
	target.Set(a.cfg.GetRejectedRouteParam(), c.OriginalURL())
	return a.cfg.GetLoginPath() + "?" + target.Encode()
}

func (a *RouteAuthenticator) defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryAuth, "An unexpected authentication error").
			WithCode(errors.CodeUnauthorized)
	}

	a.Logger.Info(
		"authentication failed for %s (%s), redirecting to login",
		c.OriginalURL(),
		richErr.TextCode,
	)

	statusCode := http.StatusSeeOther
	if c.Method() == string(router.GET) {
		statusCode = http.StatusFound
	}
	return c.Redirect(a.LoginRedirectURL(c), statusCode)
}
