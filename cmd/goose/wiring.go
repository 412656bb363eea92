package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/ringlet-dev/goose/internal/adapters/backend/system"
	"github.com/ringlet-dev/goose/internal/adapters/backend/wasm"
	"github.com/ringlet-dev/goose/internal/adapters/classify"
	"github.com/ringlet-dev/goose/internal/adapters/gitvcs"
	"github.com/ringlet-dev/goose/internal/adapters/logging"
	"github.com/ringlet-dev/goose/internal/config"
	"github.com/ringlet-dev/goose/internal/environment"
	"github.com/ringlet-dev/goose/internal/ports"
	"github.com/ringlet-dev/goose/internal/scheduler"
	"github.com/ringlet-dev/goose/internal/target"
	"github.com/ringlet-dev/goose/internal/unit"
)

// stateDir and lockFilesRoot are where goose keeps every managed
// environment's sandbox and pinned lock files, rooted under the
// repository's own working directory. The target selector's builtin
// exclude pattern ("^\.goose/.*") keeps this tree out of every hook's
// own file set.
const (
	stateDir      = ".goose/envs"
	lockFilesRoot = ".goose/locks"
)

// backendFor resolves an environment's configured ecosystem language to a
// concrete ports.Backend. The two reference backends built alongside the
// core (system, wasm) are the only ones this demonstration CLI wires in;
// an unrecognized language is a configuration error.
func backendFor(runner *ports.RealCommandRunner) func(ecosystem string) (ports.Backend, error) {
	return func(ecosystem string) (ports.Backend, error) {
		switch ecosystem {
		case "system":
			return system.New(runner), nil
		case "wasm":
			return wasm.New(nil), nil
		default:
			return nil, fmt.Errorf("unsupported ecosystem: %s", ecosystem)
		}
	}
}

// exitCodeFor maps a failure from PrepareEnvironment onto the exit
// discipline's distinct NeedsFreeze signal.
func exitCodeFor(err error) (int, bool) {
	var needsFreeze *environment.NeedsFreezeError
	if errors.As(err, &needsFreeze) {
		return exitNeedsFreeze, true
	}
	return 0, false
}

// session bundles the adapters every subcommand wires its run through.
type session struct {
	cfg        *config.Config
	logger     ports.Logger
	vcs        ports.VCS
	classifier ports.Classifier
	envs       map[string]*environment.Environment
}

// newSession loads the configuration, builds every adapter, and
// constructs one Environment per configured environment spec. It does not
// run the lifecycle manager — callers decide when to prepare.
func newSession() (*session, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	level := ports.LevelInfo
	if verbose {
		level = ports.LevelDebug
	}
	logger := logging.NewConsoleLogger(logging.WithLevel(level)).With(ports.F("run_id", uuid.New().String()))

	runner := ports.NewRealCommandRunner()
	vcs := gitvcs.New(runner, ".")
	classifier := classify.New()

	envs, err := environment.BuildEnvironments(cfg, stateDir, lockFilesRoot, backendFor(runner), logger)
	if err != nil {
		return nil, err
	}

	return &session{cfg: cfg, logger: logger, vcs: vcs, classifier: classifier, envs: envs}, nil
}

// prepare runs the lifecycle manager over every environment in parallel.
func (s *session) prepare(ctx context.Context, upgrade bool) error {
	return environment.PrepareAll(ctx, s.envs, upgrade)
}

// runScheduler plans targets into units for selectedHook (empty means
// every hook), drives the scheduler to completion logging each event, and
// returns the overall outcome.
func (s *session) runScheduler(ctx context.Context, targets []target.Target, selectedHook string, maxRunning int) (ports.RunResult, error) {
	logSink := func(u *unit.ExecutableUnit) io.Writer {
		return &lineLogger{logger: s.logger.ForUnit(u.LogPrefix())}
	}

	sched, err := scheduler.New(s.cfg, targets, selectedHook, maxRunning, s.envs, s.vcs, logSink)
	if err != nil {
		return ports.RunError, err
	}

	ch := make(chan scheduler.Event)
	go sched.UntilComplete(ctx, ch)

	for ev := range ch {
		switch e := ev.(type) {
		case scheduler.UnitScheduled:
			s.logger.Info(ctx, "unit scheduled", ports.F("hook", e.Unit.Hook.ID), ports.F("unit", e.Unit.ID))
		case scheduler.UnitFinished:
			s.logger.Info(ctx, "unit finished", ports.F("hook", e.Unit.Hook.ID), ports.F("unit", e.Unit.ID), ports.F("result", e.Result.String()))
		}
	}

	return scheduler.Outcome(sched.Results()), nil
}

// lineLogger adapts a unit-tagged ports.Logger (built via ForUnit) into an
// io.Writer so backend output can be streamed through the same structured
// logger as scheduler events.
type lineLogger struct {
	logger ports.Logger
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.logger.Info(context.Background(), string(p))
	return len(p), nil
}
