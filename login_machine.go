package authflow

import (
	"context"
)

// LoginPhase identifies where a login attempt currently is.
type LoginPhase string

const (
	LoginPhaseIdle      LoginPhase = "idle"
	LoginPhasePassword  LoginPhase = "authenticating_password"
	LoginPhaseFederated LoginPhase = "authenticating_federated"
	LoginPhaseVerifying LoginPhase = "verifying"
	LoginPhaseSuccess   LoginPhase = "success"
	LoginPhaseError     LoginPhase = "error"
)

// LoginState is the full machine state for one login/signup attempt. The
// remember flag is captured at submission time because the session round
// trip in the verifying phase has no access to the original form event.
type LoginState struct {
	Phase    LoginPhase
	Remember bool
	Err      error
}

// InFlight reports whether an authentication attempt is currently pending.
func (s LoginState) InFlight() bool {
	switch s.Phase {
	case LoginPhasePassword, LoginPhaseFederated, LoginPhaseVerifying:
		return true
	}
	return false
}

// LoginEvent is the union of events the login machine accepts.
type LoginEvent interface{ loginEvent() }

// PasswordSubmitted asks for a password (or signup) authentication attempt.
type PasswordSubmitted struct {
	Email    string
	Password string
	Remember bool
}

// FederatedRequested asks for a federated sign-in attempt.
type FederatedRequested struct {
	Provider string
}

// TokenReceived reports that the provider issued an identity token.
type TokenReceived struct {
	IDToken string
}

// SessionEstablished reports that the server accepted the session request.
type SessionEstablished struct{}

// LoginFailed reports a failed provider call or session round trip.
type LoginFailed struct {
	Err error
}

func (PasswordSubmitted) loginEvent()  {}
func (FederatedRequested) loginEvent() {}
func (TokenReceived) loginEvent()      {}
func (SessionEstablished) loginEvent() {}
func (LoginFailed) loginEvent()        {}

// SignInPasswordCommand invokes the provider's password sign-in (or the
// signup variant's account creation).
type SignInPasswordCommand struct {
	Email    string
	Password string
}

// SignInFederatedCommand invokes the provider's federated sign-in.
type SignInFederatedCommand struct {
	Provider string
}

// CreateSessionCommand posts the identity token to the server session
// endpoint. Issued exactly once per successful authentication.
type CreateSessionCommand struct {
	IDToken  string
	Remember bool
}

// LoginTransition is the pure step function for the login machine.
//
// New login events are honored only from idle and error, which gives the
// at-most-one-in-flight-attempt guarantee: while authenticating or verifying
// the machine simply ignores further submissions.
func LoginTransition(state LoginState, ev LoginEvent) Step[LoginState] {
	switch ev := ev.(type) {
	case PasswordSubmitted:
		if state.Phase != LoginPhaseIdle && state.Phase != LoginPhaseError {
			return Next(state)
		}
		return Next(
			LoginState{Phase: LoginPhasePassword, Remember: ev.Remember},
			SignInPasswordCommand{Email: ev.Email, Password: ev.Password},
		)

	case FederatedRequested:
		if state.Phase != LoginPhaseIdle && state.Phase != LoginPhaseError {
			return Next(state)
		}
		return Next(
			LoginState{Phase: LoginPhaseFederated, Remember: state.Remember},
			SignInFederatedCommand{Provider: ev.Provider},
		)

	case TokenReceived:
		if state.Phase != LoginPhasePassword && state.Phase != LoginPhaseFederated {
			return Next(state)
		}
		return Next(
			LoginState{Phase: LoginPhaseVerifying, Remember: state.Remember},
			CreateSessionCommand{IDToken: ev.IDToken, Remember: state.Remember},
		)

	case SessionEstablished:
		if state.Phase != LoginPhaseVerifying {
			return Next(state)
		}
		return Next(LoginState{Phase: LoginPhaseSuccess, Remember: state.Remember})

	case LoginFailed:
		if !state.InFlight() {
			return Next(state)
		}
		return Next(LoginState{Phase: LoginPhaseError, Remember: state.Remember, Err: ev.Err})
	}

	return Next(state)
}

// LoginFlowConfig wires a login machine to its collaborators.
type LoginFlowConfig struct {
	Client   IdentityClient
	Sessions SessionPoster

	// RedirectTo is forwarded with the session request so the server can
	// send the browser back to where it came from.
	RedirectTo string

	// Signup switches the password command to account creation followed by
	// a best-effort verification email.
	Signup bool

	Logger Logger
}

// LoginFlow is a running login (or signup) attempt: one machine instance
// plus the executor that performs its commands against the provider.
type LoginFlow struct {
	cfg    LoginFlowConfig
	runner *Runner[LoginState, LoginEvent]
}

// NewLoginFlow starts an idle login flow.
func NewLoginFlow(cfg LoginFlowConfig, opts ...RunnerOption[LoginState, LoginEvent]) *LoginFlow {
	if cfg.Logger == nil {
		cfg.Logger = defLogger{}
	}

	f := &LoginFlow{cfg: cfg}
	f.runner = NewRunner(
		LoginState{Phase: LoginPhaseIdle},
		LoginTransition,
		f.execute,
		opts...,
	)
	return f
}

// NewSignupFlow starts a flow whose password submissions create an account
// instead of signing into one. Everything else behaves like login.
func NewSignupFlow(cfg LoginFlowConfig, opts ...RunnerOption[LoginState, LoginEvent]) *LoginFlow {
	cfg.Signup = true
	return NewLoginFlow(cfg, opts...)
}

// SubmitPassword dispatches a password (or signup) attempt.
func (f *LoginFlow) SubmitPassword(email, password string, remember bool) {
	f.runner.Send(PasswordSubmitted{Email: email, Password: password, Remember: remember})
}

// UseProvider dispatches a federated sign-in attempt.
func (f *LoginFlow) UseProvider(name string) {
	f.runner.Send(FederatedRequested{Provider: name})
}

// State returns the current machine state.
func (f *LoginFlow) State() LoginState {
	return f.runner.State()
}

// OnTransition registers a state observer (UI re-render hook).
func (f *LoginFlow) OnTransition(fn func(LoginState)) {
	f.runner.OnTransition(fn)
}

// Stop disposes the flow; in-flight provider calls are abandoned.
func (f *LoginFlow) Stop() {
	f.runner.Stop()
}

func (f *LoginFlow) execute(ctx context.Context, cmd Command) (LoginEvent, bool) {
	switch cmd := cmd.(type) {
	case SignInPasswordCommand:
		token, err := f.authenticate(ctx, cmd.Email, cmd.Password)
		if err != nil {
			return LoginFailed{Err: err}, true
		}
		return TokenReceived{IDToken: token}, true

	case SignInFederatedCommand:
		token, err := f.cfg.Client.SignInWithProvider(ctx, cmd.Provider)
		if err != nil {
			return LoginFailed{Err: err}, true
		}
		return TokenReceived{IDToken: token}, true

	case CreateSessionCommand:
		req := SessionRequest{
			IDToken:    cmd.IDToken,
			Remember:   cmd.Remember,
			RedirectTo: f.cfg.RedirectTo,
		}
		if err := f.cfg.Sessions.PostSession(ctx, req); err != nil {
			return LoginFailed{Err: err}, true
		}
		return SessionEstablished{}, true
	}

	return nil, false
}

func (f *LoginFlow) authenticate(ctx context.Context, email, password string) (string, error) {
	if !f.cfg.Signup {
		return f.cfg.Client.SignInWithPassword(ctx, email, password)
	}

	token, err := f.cfg.Client.SignUp(ctx, email, password)
	if err != nil {
		return "", err
	}

	// verification email is best-effort, matching the signup UX where the
	// user proceeds without waiting for delivery
	if err := f.cfg.Client.SendEmailVerification(ctx, token); err != nil {
		f.cfg.Logger.Warn("signup verification email failed: %v", err)
	}

	return token, nil
}
