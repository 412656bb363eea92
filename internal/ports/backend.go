package ports

import (
	"context"
	"io"

	"github.com/ringlet-dev/goose/internal/config"
	"github.com/ringlet-dev/goose/internal/envstate"
	"github.com/ringlet-dev/goose/internal/manifest"
	"github.com/ringlet-dev/goose/internal/unit"
)

// RunResult is the terminal outcome of one unit's backend invocation.
type RunResult int

const (
	// RunOK means the command exited zero and (for non-read-only hooks)
	// left no tracked-file changes behind.
	RunOK RunResult = iota
	// RunError means the command exited non-zero.
	RunError
	// RunModified means the command exited zero but mutated tracked
	// files — only possible for non-read-only hooks.
	RunModified
)

func (r RunResult) String() string {
	switch r {
	case RunOK:
		return "ok"
	case RunError:
		return "error"
	case RunModified:
		return "modified"
	default:
		return "unknown"
	}
}

// Backend is the capability set each ecosystem plugin must provide. No
// ecosystem-specific behavior is part of the core: the core only calls
// through this interface.
type Backend interface {
	// Ecosystem names the language family this backend serves (e.g.
	// "python", "system", "wasm").
	Ecosystem() string

	// Bootstrap idempotently creates the sandbox at envPath. When
	// priorManifest is non-nil, the concrete ecosystem version already
	// pinned there should be reselected rather than re-resolved.
	Bootstrap(ctx context.Context, cfg config.EnvironmentSpec, envPath string, priorManifest *manifest.LockManifest) (envstate.MachineFingerprint, error)

	// Freeze resolves dependencies, writes deterministic lock files
	// under lockFilesPath, and returns a manifest describing exactly
	// the files that exist on disk afterward.
	Freeze(ctx context.Context, cfg config.EnvironmentSpec, envPath, lockFilesPath string) (manifest.LockManifest, error)

	// Sync installs exactly what m pins and removes anything extraneous.
	Sync(ctx context.Context, cfg config.EnvironmentSpec, envPath, lockFilesPath string, m manifest.LockManifest) error

	// Run executes the hook command, appending the unit's targets to
	// argv iff the hook is parameterized, streaming combined
	// stdout/stderr into sink tagged with the unit's log prefix.
	Run(ctx context.Context, cfg config.EnvironmentSpec, envPath string, u *unit.ExecutableUnit, sink io.Writer) RunResult
}
