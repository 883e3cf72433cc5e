package authflow

import (
	"context"

	"github.com/goliatone/go-errors"
)

// ActionMode selects which out-of-band provider action a flow handles. The
// values match the mode query parameter the provider embeds in action links.
type ActionMode string

const (
	ActionModeResetPassword ActionMode = "resetPassword"
	ActionModeRecoverEmail  ActionMode = "recoverEmail"
	ActionModeVerifyEmail   ActionMode = "verifyEmail"
)

// ActionPhase identifies where an out-of-band action flow currently is.
type ActionPhase string

const (
	ActionPhaseDecision      ActionPhase = "decision"
	ActionPhaseVerifying     ActionPhase = "verifying"
	ActionPhaseEnterPassword ActionPhase = "enter_new_password"
	ActionPhaseConfirming    ActionPhase = "confirming"
	ActionPhaseSuccess       ActionPhase = "success"
	ActionPhaseConfirmFailed ActionPhase = "confirmation_failed"
	ActionPhaseError         ActionPhase = "error"
)

// MinPasswordLength is enforced before a reset confirmation is attempted.
const MinPasswordLength = 8

var errUnknownActionMode = errors.New("unknown action mode", errors.CategoryBadInput).
	WithCode(errors.CodeBadRequest)

// ActionState is the full machine state for one out-of-band action: the mode
// and code from the action link, the phase, and whatever the flow has learned
// so far (the email a reset code belongs to, the last error).
//
// AlreadyHandled marks a success reached because the code had already been
// consumed or its account removed; the UI shows a softer confirmation there.
type ActionState struct {
	Mode           ActionMode
	Phase          ActionPhase
	OobCode        string
	Email          string
	AlreadyHandled bool
	Err            error
}

// Terminal reports whether the flow reached a final phase.
func (s ActionState) Terminal() bool {
	return s.Phase == ActionPhaseSuccess || s.Phase == ActionPhaseError
}

// ActionEvent is the union of events the action machine accepts.
type ActionEvent interface{ actionEvent() }

// ActionStarted kicks off code verification. It is only honored from the
// decision phase, so delivering it twice performs the work once.
type ActionStarted struct{}

// ResetCodeVerified reports a valid reset code and the account it belongs to.
type ResetCodeVerified struct {
	Email string
}

// NewPasswordSubmitted carries the replacement password for a reset.
type NewPasswordSubmitted struct {
	Password string
}

// ResetConfirmed reports that the provider accepted the reset confirmation.
type ResetConfirmed struct{}

// ResetConfirmFailed reports a rejected confirmation; the flow returns to the
// password form so the user can retry.
type ResetConfirmFailed struct {
	Err error
}

// ActionApplied reports a consumed verify-email or recover-email code.
type ActionApplied struct {
	AlreadyHandled bool
}

// ActionFailed reports a code that could not be verified or applied.
type ActionFailed struct {
	Err error
}

func (ActionStarted) actionEvent()        {}
func (ResetCodeVerified) actionEvent()    {}
func (NewPasswordSubmitted) actionEvent() {}
func (ResetConfirmed) actionEvent()       {}
func (ResetConfirmFailed) actionEvent()   {}
func (ActionApplied) actionEvent()        {}
func (ActionFailed) actionEvent()         {}

// VerifyResetCodeCommand checks a reset code with the provider.
type VerifyResetCodeCommand struct {
	OobCode string
}

// ConfirmResetCommand consumes a reset code with the new password.
type ConfirmResetCommand struct {
	OobCode     string
	NewPassword string
}

// ApplyActionCodeCommand consumes a verify-email or recover-email code.
type ApplyActionCodeCommand struct {
	OobCode string
}

// ActionTransition is the pure step function for out-of-band action flows.
// Terminal states accept no further events.
func ActionTransition(state ActionState, ev ActionEvent) Step[ActionState] {
	if state.Terminal() {
		return Next(state)
	}

	switch ev := ev.(type) {
	case ActionStarted:
		if state.Phase != ActionPhaseDecision {
			return Next(state)
		}

		next := state
		next.Phase = ActionPhaseVerifying

		switch state.Mode {
		case ActionModeResetPassword:
			return Next(next, VerifyResetCodeCommand{OobCode: state.OobCode})
		case ActionModeRecoverEmail, ActionModeVerifyEmail:
			return Next(next, ApplyActionCodeCommand{OobCode: state.OobCode})
		}

		next.Phase = ActionPhaseError
		next.Err = errUnknownActionMode
		return Next(next)

	case ResetCodeVerified:
		if state.Mode != ActionModeResetPassword || state.Phase != ActionPhaseVerifying {
			return Next(state)
		}
		next := state
		next.Phase = ActionPhaseEnterPassword
		next.Email = ev.Email
		return Next(next)

	case NewPasswordSubmitted:
		if state.Phase != ActionPhaseEnterPassword && state.Phase != ActionPhaseConfirmFailed {
			return Next(state)
		}
		if len(ev.Password) < MinPasswordLength {
			next := state
			next.Phase = ActionPhaseEnterPassword
			next.Err = ErrWeakPassword
			return Next(next)
		}
		next := state
		next.Phase = ActionPhaseConfirming
		next.Err = nil
		return Next(next, ConfirmResetCommand{OobCode: state.OobCode, NewPassword: ev.Password})

	case ResetConfirmed:
		if state.Phase != ActionPhaseConfirming {
			return Next(state)
		}
		next := state
		next.Phase = ActionPhaseSuccess
		next.Err = nil
		return Next(next)

	case ResetConfirmFailed:
		if state.Phase != ActionPhaseConfirming {
			return Next(state)
		}
		next := state
		next.Phase = ActionPhaseConfirmFailed
		next.Err = ev.Err
		return Next(next)

	case ActionApplied:
		if state.Phase != ActionPhaseVerifying {
			return Next(state)
		}
		next := state
		next.Phase = ActionPhaseSuccess
		next.AlreadyHandled = ev.AlreadyHandled
		return Next(next)

	case ActionFailed:
		if state.Phase != ActionPhaseVerifying {
			return Next(state)
		}
		next := state
		next.Phase = ActionPhaseError
		next.Err = ev.Err
		return Next(next)
	}

	return Next(state)
}

// ActionFlowConfig wires an action machine to its collaborators.
type ActionFlowConfig struct {
	Client IdentityClient
	Logger Logger
}

// ActionFlow is a running out-of-band action: one machine instance plus the
// executor that performs its commands against the provider.
type ActionFlow struct {
	cfg    ActionFlowConfig
	runner *Runner[ActionState, ActionEvent]
}

// NewActionFlow builds a flow for the given action link parameters. Nothing
// runs until Start is called.
func NewActionFlow(mode ActionMode, oobCode string, cfg ActionFlowConfig, opts ...RunnerOption[ActionState, ActionEvent]) *ActionFlow {
	if cfg.Logger == nil {
		cfg.Logger = defLogger{}
	}

	f := &ActionFlow{cfg: cfg}
	f.runner = NewRunner(
		ActionState{Mode: mode, Phase: ActionPhaseDecision, OobCode: oobCode},
		ActionTransition,
		f.execute,
		opts...,
	)
	return f
}

// Start triggers code verification. Calling it again is a no-op; render
// lifecycles that fire their mount hook twice verify the code once.
func (f *ActionFlow) Start() {
	f.runner.Send(ActionStarted{})
}

// SubmitNewPassword dispatches the replacement password for a reset flow.
func (f *ActionFlow) SubmitNewPassword(password string) {
	f.runner.Send(NewPasswordSubmitted{Password: password})
}

// State returns the current machine state.
func (f *ActionFlow) State() ActionState {
	return f.runner.State()
}

// OnTransition registers a state observer.
func (f *ActionFlow) OnTransition(fn func(ActionState)) {
	f.runner.OnTransition(fn)
}

// Stop disposes the flow; in-flight provider calls are abandoned.
func (f *ActionFlow) Stop() {
	f.runner.Stop()
}

func (f *ActionFlow) execute(ctx context.Context, cmd Command) (ActionEvent, bool) {
	switch cmd := cmd.(type) {
	case VerifyResetCodeCommand:
		email, err := f.cfg.Client.VerifyPasswordResetCode(ctx, cmd.OobCode)
		if err != nil {
			return ActionFailed{Err: err}, true
		}
		return ResetCodeVerified{Email: email}, true

	case ApplyActionCodeCommand:
		if err := f.cfg.Client.ApplyActionCode(ctx, cmd.OobCode); err != nil {
			if AlreadyHandled(err) {
				// the code did its job on an earlier visit; treat as done
				f.cfg.Logger.Debug("action code already handled: %v", err)
				return ActionApplied{AlreadyHandled: true}, true
			}
			return ActionFailed{Err: err}, true
		}
		return ActionApplied{}, true

	case ConfirmResetCommand:
		if err := f.cfg.Client.ConfirmPasswordReset(ctx, cmd.OobCode, cmd.NewPassword); err != nil {
			if IsUserNotFound(err) {
				// account disappeared between verify and confirm; surfacing
				// that would leak account existence, so report success
				return ResetConfirmed{}, true
			}
			return ResetConfirmFailed{Err: err}, true
		}
		return ResetConfirmed{}, true
	}

	return nil, false
}
