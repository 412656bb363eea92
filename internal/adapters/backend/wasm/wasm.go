// Package wasm implements the "wasm" ecosystem backend: hooks that run as
// WASI modules inside a wazero sandbox rather than as ordinary host
// processes. Where the system backend (internal/adapters/backend/system)
// trusts whatever is on $PATH, this backend demonstrates that a "managed
// environment" can be a real sandbox: every hook's module is
// content-addressed, pinned by SHA-256 into the same manifest machinery as
// every other ecosystem, and executed with only the directories holding
// the unit's target files mounted into its filesystem view.
package wasm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"golang.org/x/mod/semver"

	"github.com/ringlet-dev/goose/internal/config"
	"github.com/ringlet-dev/goose/internal/envstate"
	"github.com/ringlet-dev/goose/internal/manifest"
	"github.com/ringlet-dev/goose/internal/ports"
	"github.com/ringlet-dev/goose/internal/unit"
)

// moduleVersionSection is the custom section name a module embeds its
// semver version under, checked against a dependency's constraint.
const moduleVersionSection = "version"

// Backend is the wasm ecosystem's ports.Backend. One wazero runtime is
// created per sandbox directory on Bootstrap and reused by every Run call
// against that environment.
type Backend struct {
	moduleDir func(envPath string) string

	mu       sync.Mutex
	runtimes map[string]wazero.Runtime
}

// New constructs a wasm Backend. moduleDir, if non-nil, overrides where
// named dependencies ("name@constraint") are looked up; by default it is
// envPath/modules.
func New(moduleDir func(envPath string) string) *Backend {
	if moduleDir == nil {
		moduleDir = func(envPath string) string { return filepath.Join(envPath, "modules") }
	}
	return &Backend{moduleDir: moduleDir, runtimes: make(map[string]wazero.Runtime)}
}

// Ecosystem names this backend's ecosystem.
func (*Backend) Ecosystem() string { return "wasm" }

// Bootstrap instantiates a wazero runtime with WASI wired in for envPath.
// Resolving concrete dependency versions happens at Freeze time; Bootstrap
// only needs the runtime to exist so Freeze can compile candidate modules
// against it.
func (b *Backend) Bootstrap(ctx context.Context, _ config.EnvironmentSpec, envPath string, _ *manifest.LockManifest) (envstate.MachineFingerprint, error) {
	if err := os.MkdirAll(envPath, 0o755); err != nil {
		return envstate.MachineFingerprint{}, err
	}
	if _, err := b.runtimeFor(ctx, envPath); err != nil {
		return envstate.MachineFingerprint{}, err
	}
	return envstate.CurrentMachineFingerprint(), nil
}

func (b *Backend) runtimeFor(ctx context.Context, envPath string) (wazero.Runtime, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if rt, ok := b.runtimes[envPath]; ok {
		return rt, nil
	}

	rtCfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	rt := wazero.NewRuntimeWithConfig(ctx, rtCfg)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("instantiating WASI for %s: %w", envPath, err)
	}
	b.runtimes[envPath] = rt
	return rt, nil
}

// resolvedDependency is one dependency entry resolved to a concrete file
// on disk.
type resolvedDependency struct {
	spec string // the original dependency string, preserved for the manifest
	path string
}

// resolveDependency interprets one config dependency entry. A bare path
// ending in ".wasm" is pinned directly; a "name@constraint" entry is
// resolved against moduleDir(envPath)/name.wasm, whose embedded "version"
// custom section must satisfy constraint.
func (b *Backend) resolveDependency(ctx context.Context, rt wazero.Runtime, envPath, dep string) (resolvedDependency, error) {
	if strings.HasSuffix(dep, ".wasm") {
		return resolvedDependency{spec: dep, path: dep}, nil
	}

	name, constraint, ok := strings.Cut(dep, "@")
	if !ok {
		return resolvedDependency{}, fmt.Errorf("wasm dependency %q is neither a .wasm path nor name@constraint", dep)
	}

	path := filepath.Join(b.moduleDir(envPath), name+".wasm")
	version, err := moduleVersion(ctx, rt, path)
	if err != nil {
		return resolvedDependency{}, fmt.Errorf("resolving %s: %w", dep, err)
	}
	if !satisfiesConstraint(version, constraint) {
		return resolvedDependency{}, fmt.Errorf("module %s version %s does not satisfy constraint %s", name, version, constraint)
	}
	return resolvedDependency{spec: dep, path: path}, nil
}

// moduleVersion compiles path and reads its "version" custom section.
func moduleVersion(ctx context.Context, rt wazero.Runtime, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	compiled, err := rt.CompileModule(ctx, data)
	if err != nil {
		return "", fmt.Errorf("compiling %s: %w", path, err)
	}
	defer func() { _ = compiled.Close(ctx) }()

	for _, section := range compiled.CustomSections() {
		if section.Name() == moduleVersionSection {
			v := strings.TrimSpace(string(section.Data()))
			if !strings.HasPrefix(v, "v") {
				v = "v" + v
			}
			return v, nil
		}
	}
	return "", fmt.Errorf("module %s has no %q custom section", path, moduleVersionSection)
}

// satisfiesConstraint checks version against a "^x.y"/"~x.y"/bare-version
// constraint using semver.Compare: version must be >= the constraint's
// baseline. This is deliberately the simplest constraint model that still
// gives golang.org/x/mod/semver real work — it does not attempt caret/tilde
// upper-bound semantics.
func satisfiesConstraint(version, constraint string) bool {
	baseline := strings.TrimLeft(constraint, "^~")
	if !strings.HasPrefix(baseline, "v") {
		baseline = "v" + baseline
	}
	if !semver.IsValid(version) || !semver.IsValid(baseline) {
		return false
	}
	return semver.Compare(version, baseline) >= 0
}

// Freeze resolves every configured dependency to a concrete module file
// and pins them by content hash, using the same manifest machinery every
// other backend uses.
func (b *Backend) Freeze(ctx context.Context, cfg config.EnvironmentSpec, envPath, lockFilesPath string) (manifest.LockManifest, error) {
	rt, err := b.runtimeFor(ctx, envPath)
	if err != nil {
		return manifest.LockManifest{}, err
	}

	if err := os.MkdirAll(lockFilesPath, 0o755); err != nil {
		return manifest.LockManifest{}, err
	}

	var lockPaths []string
	for _, dep := range cfg.Dependencies {
		resolved, err := b.resolveDependency(ctx, rt, envPath, dep)
		if err != nil {
			return manifest.LockManifest{}, err
		}
		pinned, err := pinModule(resolved.path, lockFilesPath)
		if err != nil {
			return manifest.LockManifest{}, err
		}
		lockPaths = append(lockPaths, pinned)
	}

	return manifest.BuildManifest(cfg.Ecosystem, cfg.Dependencies, lockPaths, lockFilesPath, "wazero")
}

// pinModule copies the module at src into lockFilesPath so the manifest's
// checksum covers bytes under goose's own control rather than a path the
// module author could mutate out from under a synced environment.
func pinModule(src, lockFilesPath string) (string, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	dst := filepath.Join(lockFilesPath, hex.EncodeToString(sum[:])+".wasm")
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", err
	}
	return dst, nil
}

// Sync is a no-op: pinned modules are already content-addressed copies
// under lockFilesPath by the time Sync would run; there is nothing to
// install beyond what Freeze already wrote.
func (b *Backend) Sync(context.Context, config.EnvironmentSpec, string, string, manifest.LockManifest) error {
	return nil
}

// Run instantiates the module named by the unit's hook command, with the
// directory of each unit target mounted read/write at its own path and argv set to
// hook.command, hook.args..., targets....
func (b *Backend) Run(ctx context.Context, cfg config.EnvironmentSpec, envPath string, u *unit.ExecutableUnit, sink io.Writer) ports.RunResult {
	rt, err := b.runtimeFor(ctx, envPath)
	if err != nil {
		return ports.RunError
	}

	modulePath, err := b.modulePathForHook(ctx, rt, cfg, envPath, u.Hook)
	if err != nil {
		return ports.RunError
	}

	data, err := os.ReadFile(modulePath)
	if err != nil {
		return ports.RunError
	}
	compiled, err := rt.CompileModule(ctx, data)
	if err != nil {
		return ports.RunError
	}
	defer func() { _ = compiled.Close(ctx) }()

	args := append([]string{u.Hook.Command}, u.Hook.Args...)
	args = append(args, u.Targets...)

	fsConfig := wazero.NewFSConfig()
	for _, target := range u.Targets {
		fsConfig = fsConfig.WithDirMount(filepath.Dir(target), filepath.Dir(target))
	}

	modCfg := wazero.NewModuleConfig().
		WithArgs(args...).
		WithStdout(sink).
		WithStderr(sink).
		WithFSConfig(fsConfig)

	instance, err := rt.InstantiateModule(ctx, compiled, modCfg)
	if instance != nil {
		defer func() { _ = instance.Close(ctx) }()
	}
	if err != nil {
		return ports.RunError
	}
	return ports.RunOK
}

// modulePathForHook resolves which module file backs hook.Command: it
// matches the dependency whose resolved name equals the hook's command,
// re-resolving through the same logic Freeze used. The returned path is
// the dependency's source location; the content-addressed copy Freeze
// pinned under the lock-files directory is not the file that runs.
func (b *Backend) modulePathForHook(ctx context.Context, rt wazero.Runtime, cfg config.EnvironmentSpec, envPath string, hook config.HookSpec) (string, error) {
	for _, dep := range cfg.Dependencies {
		name, _, hasConstraint := strings.Cut(dep, "@")
		base := name
		if !hasConstraint {
			base = strings.TrimSuffix(filepath.Base(dep), ".wasm")
		}
		if base != hook.Command {
			continue
		}
		resolved, err := b.resolveDependency(ctx, rt, envPath, dep)
		if err != nil {
			return "", err
		}
		return resolved.path, nil
	}
	return "", fmt.Errorf("no dependency resolves hook command %q", hook.Command)
}

// Close releases every wazero runtime this backend has created. Not part
// of ports.Backend — callers that own the backend's lifecycle call it on
// shutdown.
func (b *Backend) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var firstErr error
	for path, rt := range b.runtimes {
		if err := rt.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(b.runtimes, path)
	}
	return firstErr
}
