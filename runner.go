package authflow

import (
	"context"
	"sync"
)

// Command describes a side effect requested by a transition. Commands are
// plain data; performing them is the Runner's job, which keeps transition
// functions pure and unit-testable without mocking I/O.
type Command any

// Step is the result of applying one event: the next state plus the commands
// to execute on entering it.
type Step[S any] struct {
	State    S
	Commands []Command
}

// Next builds a Step from a state and optional commands.
func Next[S any](state S, commands ...Command) Step[S] {
	return Step[S]{State: state, Commands: commands}
}

// Transition is a pure step function mapping the current state and an
// incoming event to the next state and its commands.
type Transition[S, E any] func(state S, ev E) Step[S]

// Executor performs a command and returns the follow-up event to dispatch.
// Returning false means the command produces no event.
type Executor[E any] func(ctx context.Context, cmd Command) (E, bool)

// Runner drives a flow machine: it serializes event dispatch, applies the
// transition function, and executes resulting commands asynchronously,
// feeding their completion events back into the machine.
//
// A Runner executes one transition at a time; commands run outside the lock
// so a slow provider call never blocks dispatch. After Stop, in-flight
// command completions are abandoned and have no effect on state.
type Runner[S, E any] struct {
	mu        sync.Mutex
	state     S
	step      Transition[S, E]
	exec      Executor[E]
	logger    Logger
	ctx       context.Context
	cancel    context.CancelFunc
	disposed  bool
	observers []func(S)
}

// RunnerOption customizes runner construction.
type RunnerOption[S, E any] func(*Runner[S, E])

// WithRunnerLogger overrides the default logger.
func WithRunnerLogger[S, E any](logger Logger) RunnerOption[S, E] {
	return func(r *Runner[S, E]) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRunnerContext scopes command execution to the given context; canceling
// it has the same abandonment semantics as Stop.
func WithRunnerContext[S, E any](ctx context.Context) RunnerOption[S, E] {
	return func(r *Runner[S, E]) {
		if ctx == nil {
			return
		}
		if r.cancel != nil {
			r.cancel()
		}
		r.ctx, r.cancel = context.WithCancel(ctx)
	}
}

// NewRunner returns a runner holding the initial state. No commands run
// until the first event is sent; first-time setup belongs in an explicit
// start event so re-initialization stays idempotent.
func NewRunner[S, E any](initial S, step Transition[S, E], exec Executor[E], opts ...RunnerOption[S, E]) *Runner[S, E] {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner[S, E]{
		state:  initial,
		step:   step,
		exec:   exec,
		logger: defLogger{},
		ctx:    ctx,
		cancel: cancel,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	return r
}

// Send dispatches one event. Events sent after Stop are dropped.
func (r *Runner[S, E]) Send(ev E) {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}

	next := r.step(r.state, ev)
	r.state = next.State
	state := r.state
	observers := append([]func(S){}, r.observers...)
	r.mu.Unlock()

	for _, observe := range observers {
		observe(state)
	}

	for _, cmd := range next.Commands {
		go r.run(cmd)
	}
}

func (r *Runner[S, E]) run(cmd Command) {
	ev, ok := r.exec(r.ctx, cmd)
	if !ok {
		return
	}

	r.mu.Lock()
	disposed := r.disposed
	r.mu.Unlock()
	if disposed {
		// completion after disposal is abandoned, not applied
		return
	}

	r.Send(ev)
}

// State returns the current machine state.
func (r *Runner[S, E]) State() S {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// OnTransition registers an observer called with the state after every
// transition. Observers must not block.
func (r *Runner[S, E]) OnTransition(fn func(S)) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

// Stop disposes the runner. Pending command callbacks become no-ops.
func (r *Runner[S, E]) Stop() {
	r.mu.Lock()
	r.disposed = true
	r.mu.Unlock()
	r.cancel()
}
