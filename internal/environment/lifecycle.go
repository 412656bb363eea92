package environment

import (
	"github.com/felixgeelhaar/statekit"
)

// Lifecycle events, named for the transitions described in §4.4:
// Uninitialized --bootstrap--> Initial{bootstrapped} --freeze-->
// Initial{frozen} --sync--> Synced, with teardown returning to
// Uninitialized from any state on ecosystem drift.
const (
	EventTeardown  = "TEARDOWN"
	EventBootstrap = "BOOTSTRAP"
	EventFreeze    = "FREEZE"
	EventSync      = "SYNC"
)

// Lifecycle stage labels, mirroring envstate.Stage plus the initial
// "uninitialized" label envstate has no Stage value for.
const (
	StageUninitialized = "uninitialized"
	StageBootstrapped  = "bootstrapped"
	StageFrozen        = "frozen"
	StageSynced        = "synced"
)

// lifecycleContext is the statekit context type. It carries nothing the
// scheduler needs directly — PrepareEnvironment performs the actual
// bootstrap/freeze/sync/teardown side effects itself and only reports the
// outcome here, so that external callers (a live display, a test) can
// observe which stage an environment is in without touching its internals.
type lifecycleContext struct {
	EnvironmentID string
}

// Lifecycle wraps a statekit interpreter that mirrors an Environment's
// stage for observability. It does not decide whether to bootstrap, freeze,
// or sync — that decision procedure lives in PrepareEnvironment and is
// driven by the persisted envstate.State and the manifest drift checks, per
// §4.4. The interpreter exists so a caller can ask "what stage is this
// environment in right now" without reaching into private fields, the same
// role statekit plays for the reconciliation agent this pattern is modeled
// on.
type Lifecycle struct {
	interp *statekit.Interpreter[lifecycleContext]
}

func buildLifecycleMachine(environmentID string) (*statekit.Interpreter[lifecycleContext], error) {
	machine, err := statekit.NewMachine[lifecycleContext]("goose-environment-lifecycle").
		WithInitial(StageUninitialized).
		WithContext(lifecycleContext{EnvironmentID: environmentID}).
		State(StageUninitialized).
		On(EventBootstrap).Target(StageBootstrapped).Done().
		State(StageBootstrapped).
		On(EventFreeze).Target(StageFrozen).
		On(EventTeardown).Target(StageUninitialized).Done().
		State(StageFrozen).
		On(EventSync).Target(StageSynced).
		On(EventTeardown).Target(StageUninitialized).Done().
		State(StageSynced).
		On(EventFreeze).Target(StageFrozen).
		On(EventSync).Target(StageSynced).
		On(EventTeardown).Target(StageUninitialized).Done().
		Build()
	if err != nil {
		return nil, err
	}
	return statekit.NewInterpreter(machine), nil
}

// NewLifecycle starts a Lifecycle for the given environment id, positioned
// at the stage matching initialStage (one of the Stage* constants).
func NewLifecycle(environmentID string, initialStage string) (*Lifecycle, error) {
	interp, err := buildLifecycleMachine(environmentID)
	if err != nil {
		return nil, err
	}
	interp.Start()

	if err := driveLifecycleTo(interp, initialStage); err != nil {
		interp.Stop()
		return nil, err
	}

	return &Lifecycle{interp: interp}, nil
}

// driveLifecycleTo replays the events needed to bring a freshly started
// interpreter (always at "uninitialized") to the discovered on-disk stage.
func driveLifecycleTo(interp *statekit.Interpreter[lifecycleContext], stage string) error {
	var events []string
	switch stage {
	case StageUninitialized:
		events = nil
	case StageBootstrapped:
		events = []string{EventBootstrap}
	case StageFrozen:
		events = []string{EventBootstrap, EventFreeze}
	case StageSynced:
		events = []string{EventBootstrap, EventFreeze, EventSync}
	default:
		return &UnknownStageError{Stage: stage}
	}
	for _, e := range events {
		interp.Send(statekit.Event{Type: statekit.EventType(e)})
	}
	return nil
}

// Stage returns the current lifecycle stage label.
func (l *Lifecycle) Stage() string {
	return l.interp.State().Value
}

// Teardown transitions the lifecycle back to uninitialized.
func (l *Lifecycle) Teardown() {
	l.interp.Send(statekit.Event{Type: statekit.EventType(EventTeardown)})
}

// Bootstrap transitions the lifecycle to bootstrapped.
func (l *Lifecycle) Bootstrap() {
	l.interp.Send(statekit.Event{Type: statekit.EventType(EventBootstrap)})
}

// Freeze transitions the lifecycle to frozen.
func (l *Lifecycle) Freeze() {
	l.interp.Send(statekit.Event{Type: statekit.EventType(EventFreeze)})
}

// Sync transitions the lifecycle to synced.
func (l *Lifecycle) Sync() {
	l.interp.Send(statekit.Event{Type: statekit.EventType(EventSync)})
}

// Close stops the underlying interpreter.
func (l *Lifecycle) Close() {
	l.interp.Stop()
}

// UnknownStageError reports an on-disk stage this lifecycle machine does
// not recognize.
type UnknownStageError struct {
	Stage string
}

func (e *UnknownStageError) Error() string {
	return "unknown lifecycle stage: " + e.Stage
}
