// Package devlocal is an in-process identity provider for development and
// tests: accounts live in memory, passwords are bcrypt-hashed, identity
// tokens are HS256 JWTs verifiable with authflow.HMACVerifier, and action
// links become retrievable one-time codes instead of emails.
package devlocal

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-authflow"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	codeKindReset  = "reset"
	codeKindVerify = "verify"
)

type account struct {
	Subject       string
	Email         string
	PasswordHash  []byte
	EmailVerified bool
	Disabled      bool
}

type oobCode struct {
	Kind      string
	Email     string
	ExpiresAt time.Time
	Consumed  bool
}

type federatedIdentity struct {
	Subject string
	Email   string
}

// Provider is the in-memory identity provider.
type Provider struct {
	mu        sync.Mutex
	secret    []byte
	issuer    string
	tokenTTL  time.Duration
	codeTTL   time.Duration
	accounts  map[string]*account
	codes     map[string]*oobCode
	federated map[string]federatedIdentity
	verifier  *authflow.HMACVerifier
	logger    authflow.Logger
	now       func() time.Time
}

var _ authflow.IdentityClient = (*Provider)(nil)

// Option customizes provider construction.
type Option func(*Provider)

// WithTokenTTL sets how long minted identity tokens live.
func WithTokenTTL(ttl time.Duration) Option {
	return func(p *Provider) {
		if ttl > 0 {
			p.tokenTTL = ttl
		}
	}
}

// WithCodeTTL sets how long one-time codes live.
func WithCodeTTL(ttl time.Duration) Option {
	return func(p *Provider) {
		if ttl > 0 {
			p.codeTTL = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		if now != nil {
			p.now = now
		}
	}
}

// WithFederatedUser registers the identity a federated sign-in against the
// named provider resolves to.
func WithFederatedUser(provider, subject, email string) Option {
	return func(p *Provider) {
		p.federated[provider] = federatedIdentity{Subject: subject, Email: email}
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger authflow.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a provider minting tokens signed with secret for issuer.
func New(secret []byte, issuer string, opts ...Option) *Provider {
	p := &Provider{
		secret:    secret,
		issuer:    issuer,
		tokenTTL:  time.Hour,
		codeTTL:   time.Hour,
		accounts:  map[string]*account{},
		codes:     map[string]*oobCode{},
		federated: map[string]federatedIdentity{},
		verifier:  authflow.NewHMACVerifier(secret, issuer),
		logger:    authflow.NewDefaultLogger(),
		now:       time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	return p
}

// Verifier returns the token verifier paired with this provider's secret.
func (p *Provider) Verifier() *authflow.HMACVerifier {
	return p.verifier
}

// SignInWithPassword implements authflow.IdentityClient.
func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	acct, ok := p.accounts[email]
	if !ok {
		return "", authflow.FromProviderCode(authflow.ProviderCodeUserNotFound, "EMAIL_NOT_FOUND")
	}
	if acct.Disabled {
		return "", authflow.FromProviderCode(authflow.ProviderCodeUserDisabled, "USER_DISABLED")
	}

	if err := bcrypt.CompareHashAndPassword(acct.PasswordHash, []byte(password)); err != nil {
		return "", authflow.FromProviderCode(authflow.ProviderCodeWrongPassword, "INVALID_PASSWORD")
	}

	return p.mintToken(acct)
}

// SignInWithProvider implements authflow.IdentityClient. Providers without a
// registered federated identity behave like a dismissed sign-in window, which
// makes the retry paths easy to exercise locally.
func (p *Provider) SignInWithProvider(ctx context.Context, provider string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	identity, ok := p.federated[provider]
	if !ok {
		return "", authflow.FromProviderCode(authflow.ProviderCodePopupClosed, "POPUP_CLOSED_BY_USER")
	}

	acct, ok := p.accounts[identity.Email]
	if !ok {
		acct = &account{
			Subject:       identity.Subject,
			Email:         identity.Email,
			EmailVerified: true,
		}
		p.accounts[identity.Email] = acct
	}

	return p.mintToken(acct)
}

// SignUp implements authflow.IdentityClient.
func (p *Provider) SignUp(ctx context.Context, email, password string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.accounts[email]; exists {
		return "", authflow.FromProviderCode(authflow.ProviderCodeEmailExists, "EMAIL_EXISTS")
	}
	if len(password) < authflow.MinPasswordLength {
		return "", authflow.FromProviderCode(authflow.ProviderCodeWeakPassword, "WEAK_PASSWORD")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", authflow.FromProviderCode(authflow.ProviderCodeNetworkFailure, err.Error())
	}

	acct := &account{
		Subject:      uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
	}
	p.accounts[email] = acct

	return p.mintToken(acct)
}

// SendEmailVerification implements authflow.IdentityClient.
func (p *Provider) SendEmailVerification(ctx context.Context, idToken string) error {
	claim, err := p.verifier.Verify(ctx, idToken)
	if err != nil {
		return authflow.FromProviderCode(authflow.ProviderCodeNetworkFailure, "INVALID_ID_TOKEN")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.accounts[claim.Email]; !ok {
		return authflow.FromProviderCode(authflow.ProviderCodeUserNotFound, "EMAIL_NOT_FOUND")
	}

	p.issueCode(codeKindVerify, claim.Email)
	return nil
}

// SendPasswordResetEmail implements authflow.IdentityClient.
func (p *Provider) SendPasswordResetEmail(ctx context.Context, email string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.accounts[email]; !ok {
		return authflow.FromProviderCode(authflow.ProviderCodeUserNotFound, "EMAIL_NOT_FOUND")
	}

	p.issueCode(codeKindReset, email)
	return nil
}

// VerifyPasswordResetCode implements authflow.IdentityClient.
func (p *Provider) VerifyPasswordResetCode(ctx context.Context, code string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	record, err := p.lookupCode(code, codeKindReset)
	if err != nil {
		return "", err
	}

	return record.Email, nil
}

// ConfirmPasswordReset implements authflow.IdentityClient.
func (p *Provider) ConfirmPasswordReset(ctx context.Context, code, newPassword string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	record, err := p.lookupCode(code, codeKindReset)
	if err != nil {
		return err
	}

	acct, ok := p.accounts[record.Email]
	if !ok {
		return authflow.FromProviderCode(authflow.ProviderCodeUserNotFound, "EMAIL_NOT_FOUND")
	}
	if len(newPassword) < authflow.MinPasswordLength {
		return authflow.FromProviderCode(authflow.ProviderCodeWeakPassword, "WEAK_PASSWORD")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return authflow.FromProviderCode(authflow.ProviderCodeNetworkFailure, err.Error())
	}

	acct.PasswordHash = hash
	// completing a reset proves mailbox ownership
	acct.EmailVerified = true
	record.Consumed = true

	return nil
}

// ApplyActionCode implements authflow.IdentityClient.
func (p *Provider) ApplyActionCode(ctx context.Context, code string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	record, err := p.lookupCode(code, codeKindVerify)
	if err != nil {
		return err
	}

	if acct, ok := p.accounts[record.Email]; ok {
		acct.EmailVerified = true
	}
	record.Consumed = true

	return nil
}

// PeekOobCode returns the newest unconsumed code of the given kind issued to
// email. Since no email is actually sent, this is how dev hosts and tests
// retrieve the code an action link would carry.
func (p *Provider) PeekOobCode(email, kind string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var newest string
	var newestAt time.Time
	for code, record := range p.codes {
		if record.Email != email || record.Kind != kind || record.Consumed {
			continue
		}
		if newest == "" || record.ExpiresAt.After(newestAt) {
			newest = code
			newestAt = record.ExpiresAt
		}
	}

	return newest, newest != ""
}

func (p *Provider) issueCode(kind, email string) string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	code := hex.EncodeToString(buf)

	p.codes[code] = &oobCode{
		Kind:      kind,
		Email:     email,
		ExpiresAt: p.now().Add(p.codeTTL),
	}

	return code
}

func (p *Provider) lookupCode(code, kind string) (*oobCode, error) {
	record, ok := p.codes[code]
	if !ok || record.Kind != kind || record.Consumed {
		return nil, authflow.FromProviderCode(authflow.ProviderCodeInvalidActionCode, "INVALID_OOB_CODE")
	}
	if p.now().After(record.ExpiresAt) {
		return nil, authflow.FromProviderCode(authflow.ProviderCodeExpiredActionCode, "EXPIRED_OOB_CODE")
	}
	return record, nil
}

func (p *Provider) mintToken(acct *account) (string, error) {
	now := p.now()
	claims := jwt.MapClaims{
		"sub":            acct.Subject,
		"iss":            p.issuer,
		"iat":            now.Unix(),
		"exp":            now.Add(p.tokenTTL).Unix(),
		"email":          acct.Email,
		"email_verified": acct.EmailVerified,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return "", authflow.FromProviderCode(authflow.ProviderCodeNetworkFailure, err.Error())
	}

	return signed, nil
}
