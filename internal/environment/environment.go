// Package environment implements the per-environment lifecycle manager: the
// runtime object owning a sandbox directory, and the decision procedure
// that bootstraps, freezes, and synchronizes it against its configuration.
package environment

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/ringlet-dev/goose/internal/config"
	"github.com/ringlet-dev/goose/internal/envstate"
	"github.com/ringlet-dev/goose/internal/manifest"
	"github.com/ringlet-dev/goose/internal/ports"
	"github.com/ringlet-dev/goose/internal/unit"
)

// Environment is the runtime object owning one sandbox directory and its
// lockfiles subdirectory. It is created when the config is loaded, mutated
// only by the lifecycle manager (PrepareEnvironment), and destroyed by
// teardown or process exit. The scheduler borrows Environments read-only
// plus Run; it never mutates lifecycle state.
type Environment struct {
	Config        config.EnvironmentSpec
	Path          string
	LockFilesPath string
	Backend       ports.Backend
	Logger        ports.Logger

	State     envstate.State
	lifecycle *Lifecycle
}

// New constructs an Environment, loading its persisted state from disk (or
// Uninitialized if none exists).
func New(cfg config.EnvironmentSpec, envDir, lockFilesRoot string, backend ports.Backend, logger ports.Logger) (*Environment, error) {
	path := envDir + "/" + cfg.ID
	state, err := envstate.Read(path)
	if err != nil {
		return nil, err
	}

	lc, err := NewLifecycle(cfg.ID, stageLabel(state))
	if err != nil {
		return nil, err
	}

	return &Environment{
		Config:        cfg,
		Path:          path,
		LockFilesPath: lockFilesRoot + "/" + cfg.ID,
		Backend:       backend,
		Logger:        logger,
		State:         state,
		lifecycle:     lc,
	}, nil
}

func stageLabel(state envstate.State) string {
	switch state.Kind {
	case envstate.KindUninitialized:
		return StageUninitialized
	case envstate.KindInitial:
		if state.Stage == envstate.StageFrozen {
			return StageFrozen
		}
		return StageBootstrapped
	case envstate.KindSynced:
		return StageSynced
	default:
		return StageUninitialized
	}
}

// Stage returns the lifecycle's current observable stage label.
func (e *Environment) Stage() string {
	return e.lifecycle.Stage()
}

// Close releases the lifecycle interpreter.
func (e *Environment) Close() {
	e.lifecycle.Close()
}

// checkShouldTeardown reports whether the environment's persisted ecosystem
// disagrees with its live configuration — the environment must be rebuilt
// from scratch.
func (e *Environment) checkShouldTeardown() bool {
	if e.State.Kind == envstate.KindUninitialized {
		return false
	}
	return e.State.Ecosystem != e.Config.Ecosystem
}

// checkShouldBootstrap reports whether no sandbox exists yet.
func (e *Environment) checkShouldBootstrap() bool {
	return e.State.Kind == envstate.KindUninitialized
}

// checkShouldFreeze consults CheckLockFiles with no state checksum: freeze
// is required when the lock files are missing, tampered with, or drifted
// from the live configuration.
func (e *Environment) checkShouldFreeze() bool {
	switch manifest.CheckLockFiles(e.LockFilesPath, nil, e.Config) {
	case manifest.StateMissingLockFile, manifest.StateLockFileMismatch, manifest.StateConfigMismatch:
		return true
	default:
		return false
	}
}

// checkShouldSync reports whether the environment needs (re)syncing, and
// returns a ProgrammerError on the two decision-table
// outcomes that indicate a programmer bug (freeze should always run before
// this check is reached).
func (e *Environment) checkShouldSync() (bool, error) {
	if e.State.Kind != envstate.KindSynced {
		return true, nil
	}

	checksum := e.State.Checksum
	switch manifest.CheckLockFiles(e.LockFilesPath, &checksum, e.Config) {
	case manifest.StateMatching:
		return false, nil
	case manifest.StateMissingLockFile, manifest.StateManifestMismatch:
		return true, nil
	case manifest.StateLockFileMismatch, manifest.StateConfigMismatch:
		return false, &ProgrammerError{
			Reason: "manifest disagrees with lock files or configuration during sync pre-check; freeze should already have run",
		}
	default:
		return false, &ProgrammerError{Reason: "unreachable lock file state"}
	}
}

func (e *Environment) teardown() error {
	if err := os.RemoveAll(e.Path); err != nil {
		return fmt.Errorf("tearing down %s: %w", e.Config.ID, err)
	}
	e.State = envstate.Uninitialized()
	e.lifecycle.Teardown()
	return nil
}

func (e *Environment) bootstrap(ctx context.Context, priorManifest *manifest.LockManifest) error {
	fingerprint, err := e.Backend.Bootstrap(ctx, e.Config, e.Path, priorManifest)
	if err != nil {
		return &BackendFailureError{Environment: e.Config.ID, Op: "bootstrap", Err: err}
	}
	e.State = envstate.Initial(envstate.StageBootstrapped, e.Config.Ecosystem, fingerprint)
	if err := envstate.Write(e.Path, e.State); err != nil {
		return err
	}
	e.lifecycle.Bootstrap()
	return nil
}

func (e *Environment) freeze(ctx context.Context) error {
	m, err := e.Backend.Freeze(ctx, e.Config, e.Path, e.LockFilesPath)
	if err != nil {
		return &BackendFailureError{Environment: e.Config.ID, Op: "freeze", Err: err}
	}
	if err := manifest.Validate(m); err != nil {
		return err
	}
	if err := os.MkdirAll(e.LockFilesPath, 0o755); err != nil {
		return err
	}
	if err := manifest.WriteManifest(e.LockFilesPath, m); err != nil {
		return err
	}

	fingerprint := e.State.BootstrappedVersion
	e.State = envstate.Initial(envstate.StageFrozen, e.Config.Ecosystem, fingerprint)
	if err := envstate.Write(e.Path, e.State); err != nil {
		return err
	}
	e.lifecycle.Freeze()

	// Flush the manifest write to stable storage so concurrent readers
	// see it atomically across the file-system boundary.
	_ = syncFS()
	return nil
}

func (e *Environment) sync(ctx context.Context) error {
	m, err := manifest.ReadManifest(e.LockFilesPath)
	if err != nil {
		return err
	}
	if err := e.Backend.Sync(ctx, e.Config, e.Path, e.LockFilesPath, m); err != nil {
		return &BackendFailureError{Environment: e.Config.ID, Op: "sync", Err: err}
	}

	fingerprint := e.State.BootstrappedVersion
	e.State = envstate.Synced(m.Checksum, e.Config.Ecosystem, fingerprint)
	if err := envstate.Write(e.Path, e.State); err != nil {
		return err
	}
	e.lifecycle.Sync()
	return nil
}

// Run executes unit through the backend and, for non-read-only hooks,
// performs post-run change detection: a VCS status snapshot is taken
// before and after the backend call, and a successful run whose snapshot
// changed is reclassified as RunModified. Read-only hooks skip the
// snapshot entirely — the scheduler never tracks modifications for them.
func (e *Environment) Run(ctx context.Context, u *unit.ExecutableUnit, vcs ports.VCS, sink io.Writer) (ports.RunResult, error) {
	if u.Hook.ReadOnly {
		return e.Backend.Run(ctx, e.Config, e.Path, u, sink), nil
	}

	before, err := vcs.Status(ctx, u.Targets)
	if err != nil {
		return ports.RunError, err
	}

	result := e.Backend.Run(ctx, e.Config, e.Path, u, sink)
	if result == ports.RunError {
		return result, nil
	}

	after, err := vcs.Status(ctx, u.Targets)
	if err != nil {
		return ports.RunError, err
	}

	if !statusEqual(before, after) {
		return ports.RunModified, nil
	}
	return result, nil
}

func statusEqual(a, b []ports.StatusEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// BackendFailureError reports an ecosystem backend call failing — fatal for
// the owning environment; dependent units never run.
type BackendFailureError struct {
	Environment string
	Op          string
	Err         error
}

func (e *BackendFailureError) Error() string {
	return fmt.Sprintf("%s: backend %s failed: %v", e.Environment, e.Op, e.Err)
}

func (e *BackendFailureError) Unwrap() error { return e.Err }

// ProgrammerError reports the fatal, should-never-happen sync pre-check
// outcomes — a sign that freeze was skipped when it shouldn't have been.
type ProgrammerError struct {
	Reason string
}

func (e *ProgrammerError) Error() string { return "programmer error: " + e.Reason }

// NeedsFreezeError signals that freeze would be required to proceed but the
// caller did not request an upgrade — the distinct exit condition telling
// the user to run the upgrade command.
type NeedsFreezeError struct {
	Environment string
}

func (e *NeedsFreezeError) Error() string {
	return e.Environment + ": environment needs freezing; run with upgrade to refresh lock files"
}
