// Package system implements the "system" ecosystem backend: hooks whose
// commands already exist on $PATH and need no sandbox of their own. It is
// the trivial backend every other ecosystem backend is measured against —
// bootstrap only ensures the environment directory exists, and run just
// executes the hook's command with its configured environment variables
// layered over the inherited process environment.
package system

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/ringlet-dev/goose/internal/config"
	"github.com/ringlet-dev/goose/internal/envstate"
	"github.com/ringlet-dev/goose/internal/manifest"
	"github.com/ringlet-dev/goose/internal/ports"
	"github.com/ringlet-dev/goose/internal/unit"
)

// Backend is the system ecosystem's ports.Backend.
type Backend struct {
	runner ports.StreamRunner
}

// New constructs a system Backend, streaming command output through
// runner.
func New(runner ports.StreamRunner) *Backend {
	return &Backend{runner: runner}
}

// Ecosystem names this backend's ecosystem.
func (*Backend) Ecosystem() string { return "system" }

// versionFingerprint reports the host OS/architecture pair — the closest
// thing "system" has to a resolved ecosystem version, since there is no
// interpreter or toolchain being installed.
func versionFingerprint() string {
	return fmt.Sprintf("%s-%s", runtime.GOOS, runtime.GOARCH)
}

// Bootstrap ensures envPath exists. There is nothing else to install: the
// hook commands are expected to already be on $PATH.
func (b *Backend) Bootstrap(_ context.Context, _ config.EnvironmentSpec, envPath string, _ *manifest.LockManifest) (envstate.MachineFingerprint, error) {
	if err := os.MkdirAll(envPath, 0o755); err != nil {
		return envstate.MachineFingerprint{}, err
	}
	return envstate.CurrentMachineFingerprint(), nil
}

// Freeze writes a single lock file recording the configured dependency
// list and the host fingerprint, then builds a manifest over it. Unlike
// ecosystems with a real package manager, "system" has nothing external
// to resolve — this lock file exists purely so the lifecycle's manifest
// invariants (non-empty, checksummed lock files) hold uniformly across
// every backend.
func (b *Backend) Freeze(_ context.Context, cfg config.EnvironmentSpec, _, lockFilesPath string) (manifest.LockManifest, error) {
	if err := os.MkdirAll(lockFilesPath, 0o755); err != nil {
		return manifest.LockManifest{}, err
	}

	lockFile := filepath.Join(lockFilesPath, "system.lock")
	content := versionFingerprint() + "\n"
	for _, dep := range cfg.Dependencies {
		content += dep + "\n"
	}
	if err := os.WriteFile(lockFile, []byte(content), 0o644); err != nil {
		return manifest.LockManifest{}, err
	}

	return manifest.BuildManifest(cfg.Ecosystem, cfg.Dependencies, []string{lockFile}, lockFilesPath, versionFingerprint())
}

// Sync is a no-op: "system" installs nothing, so there is nothing to
// reconcile against the manifest.
func (b *Backend) Sync(context.Context, config.EnvironmentSpec, string, string, manifest.LockManifest) error {
	return nil
}

// Run executes the hook's command with its args, appending the unit's
// targets when the hook is parameterized, with the hook's configured
// env vars layered over the inherited process environment.
func (b *Backend) Run(ctx context.Context, _ config.EnvironmentSpec, _ string, u *unit.ExecutableUnit, sink io.Writer) ports.RunResult {
	args := append(append([]string(nil), u.Hook.Args...), u.Targets...)

	envVars := make(map[string]string, len(u.Hook.EnvVars))
	for _, kv := range u.Hook.EnvVars {
		envVars[kv.Key] = kv.Value
	}

	exitCode, err := b.runner.Stream(ctx, u.Hook.Command, args, envVars, &lineBufferWriter{w: sink})
	if err != nil {
		return ports.RunError
	}
	if exitCode != 0 {
		return ports.RunError
	}
	return ports.RunOK
}

// lineBufferWriter forwards only complete lines to w, buffering any
// trailing partial line across Write calls — process output rarely lands
// on line boundaries, and the sink (a unit-tagged logger, see
// ports.Logger.ForUnit) logs one line per Write call, not one per chunk.
type lineBufferWriter struct {
	w   io.Writer
	buf []byte
}

func (p *lineBufferWriter) Write(b []byte) (int, error) {
	p.buf = append(p.buf, b...)
	for {
		idx := bytes.IndexByte(p.buf, '\n')
		if idx < 0 {
			break
		}
		line := p.buf[:idx+1]
		if _, err := p.w.Write(line); err != nil {
			return len(b), err
		}
		p.buf = p.buf[idx+1:]
	}
	return len(b), nil
}
