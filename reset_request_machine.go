package authflow

import (
	"context"
)

// ResetRequestPhase identifies where a reset-email request currently is.
type ResetRequestPhase string

const (
	ResetRequestPhaseIdle       ResetRequestPhase = "idle"
	ResetRequestPhaseSubmitting ResetRequestPhase = "submitting"
	ResetRequestPhaseSuccess    ResetRequestPhase = "success"
	ResetRequestPhaseError      ResetRequestPhase = "error"
)

// ResetRequestState is the machine state for the "send me a reset email"
// form. Email is kept so the success view can echo the address.
type ResetRequestState struct {
	Phase ResetRequestPhase
	Email string
	Err   error
}

// ResetRequestEvent is the union of events the reset-request machine accepts.
type ResetRequestEvent interface{ resetRequestEvent() }

// ResetEmailSubmitted carries the address to send a reset email to.
type ResetEmailSubmitted struct {
	Email string
}

// ResetEmailSent reports that the provider accepted the request.
type ResetEmailSent struct{}

// ResetRequestFailed reports a rejected request.
type ResetRequestFailed struct {
	Err error
}

func (ResetEmailSubmitted) resetRequestEvent() {}
func (ResetEmailSent) resetRequestEvent()      {}
func (ResetRequestFailed) resetRequestEvent()  {}

// SendResetEmailCommand asks the provider to email a reset link.
type SendResetEmailCommand struct {
	Email string
}

// ResetRequestTransition is the pure step function for reset-email requests.
func ResetRequestTransition(state ResetRequestState, ev ResetRequestEvent) Step[ResetRequestState] {
	switch ev := ev.(type) {
	case ResetEmailSubmitted:
		if state.Phase != ResetRequestPhaseIdle && state.Phase != ResetRequestPhaseError {
			return Next(state)
		}
		return Next(
			ResetRequestState{Phase: ResetRequestPhaseSubmitting, Email: ev.Email},
			SendResetEmailCommand{Email: ev.Email},
		)

	case ResetEmailSent:
		if state.Phase != ResetRequestPhaseSubmitting {
			return Next(state)
		}
		return Next(ResetRequestState{Phase: ResetRequestPhaseSuccess, Email: state.Email})

	case ResetRequestFailed:
		if state.Phase != ResetRequestPhaseSubmitting {
			return Next(state)
		}
		return Next(ResetRequestState{Phase: ResetRequestPhaseError, Email: state.Email, Err: ev.Err})
	}

	return Next(state)
}

// ResetRequestFlowConfig wires a reset-request machine to the provider.
type ResetRequestFlowConfig struct {
	Client IdentityClient
	Logger Logger
}

// ResetRequestFlow is a running reset-email request.
type ResetRequestFlow struct {
	cfg    ResetRequestFlowConfig
	runner *Runner[ResetRequestState, ResetRequestEvent]
}

// NewResetRequestFlow starts an idle reset-request flow.
func NewResetRequestFlow(cfg ResetRequestFlowConfig, opts ...RunnerOption[ResetRequestState, ResetRequestEvent]) *ResetRequestFlow {
	if cfg.Logger == nil {
		cfg.Logger = defLogger{}
	}

	f := &ResetRequestFlow{cfg: cfg}
	f.runner = NewRunner(
		ResetRequestState{Phase: ResetRequestPhaseIdle},
		ResetRequestTransition,
		f.execute,
		opts...,
	)
	return f
}

// Submit dispatches a reset-email request for the given address.
func (f *ResetRequestFlow) Submit(email string) {
	f.runner.Send(ResetEmailSubmitted{Email: email})
}

// State returns the current machine state.
func (f *ResetRequestFlow) State() ResetRequestState {
	return f.runner.State()
}

// OnTransition registers a state observer.
func (f *ResetRequestFlow) OnTransition(fn func(ResetRequestState)) {
	f.runner.OnTransition(fn)
}

// Stop disposes the flow.
func (f *ResetRequestFlow) Stop() {
	f.runner.Stop()
}

func (f *ResetRequestFlow) execute(ctx context.Context, cmd Command) (ResetRequestEvent, bool) {
	send, ok := cmd.(SendResetEmailCommand)
	if !ok {
		return nil, false
	}

	if err := f.cfg.Client.SendPasswordResetEmail(ctx, send.Email); err != nil {
		if IsUserNotFound(err) {
			// reporting "no such account" here would let the form probe for
			// registered addresses, so an unknown email still reads as sent
			return ResetEmailSent{}, true
		}
		return ResetRequestFailed{Err: err}, true
	}

	return ResetEmailSent{}, true
}
