package environment

import (
	"context"
	"sync"

	"github.com/ringlet-dev/goose/internal/config"
	"github.com/ringlet-dev/goose/internal/manifest"
	"github.com/ringlet-dev/goose/internal/ports"
)

// BuildEnvironments constructs one Environment per configured environment
// spec, loading each one's persisted state from envDir.
func BuildEnvironments(cfg *config.Config, envDir, lockFilesRoot string, backendFor func(ecosystem string) (ports.Backend, error), logger ports.Logger) (map[string]*Environment, error) {
	envs := make(map[string]*Environment, len(cfg.Environments))
	for _, spec := range cfg.Environments {
		backend, err := backendFor(spec.Ecosystem.Language)
		if err != nil {
			return nil, err
		}
		env, err := New(spec, envDir, lockFilesRoot, backend, logger)
		if err != nil {
			return nil, err
		}
		envs[spec.ID] = env
	}
	return envs, nil
}

// PrepareEnvironment runs the lifecycle decision procedure for one
// environment: teardown on ecosystem drift, bootstrap if uninitialized,
// freeze unconditionally when upgrade is set, then sync if required. When
// upgrade is not set, freeze is never run: if the lock files are missing,
// tampered with, or drifted from the configuration, this returns a
// NeedsFreezeError instead of freezing. Steps that are already satisfied
// are skipped — running this twice in a row on an up-to-date environment
// performs zero backend calls the second time.
func PrepareEnvironment(ctx context.Context, env *Environment, upgrade bool) error {
	logPrefix := "[" + env.Config.ID + "] "

	if env.checkShouldTeardown() {
		log(env, ports.LevelInfo, logPrefix+"environment needs rebuilding, tearing down")
		if err := env.teardown(); err != nil {
			return err
		}
		log(env, ports.LevelInfo, logPrefix+"environment deleted")
	}

	var priorManifest *manifest.LockManifest
	if m, err := manifest.ReadManifest(env.LockFilesPath); err == nil {
		priorManifest = &m
	}

	if env.checkShouldBootstrap() {
		log(env, ports.LevelInfo, logPrefix+"bootstrapping environment")
		if err := env.bootstrap(ctx, priorManifest); err != nil {
			return err
		}
		log(env, ports.LevelInfo, logPrefix+"bootstrapping done")
	} else {
		log(env, ports.LevelDebug, logPrefix+"found previously bootstrapped environment")
	}

	if upgrade {
		log(env, ports.LevelInfo, logPrefix+"freezing dependencies")
		if err := env.freeze(ctx); err != nil {
			return err
		}
		log(env, ports.LevelInfo, logPrefix+"freezing done")
	} else if env.checkShouldFreeze() {
		log(env, ports.LevelWarn, logPrefix+"missing or drifted lock files")
		return &NeedsFreezeError{Environment: env.Config.ID}
	} else {
		log(env, ports.LevelDebug, logPrefix+"found existing lock files up-to-date")
	}

	shouldSync, err := env.checkShouldSync()
	if err != nil {
		return err
	}
	if shouldSync {
		log(env, ports.LevelInfo, logPrefix+"syncing dependencies")
		if err := env.sync(ctx); err != nil {
			return err
		}
		log(env, ports.LevelInfo, logPrefix+"syncing done")
	} else {
		log(env, ports.LevelDebug, logPrefix+"found dependencies up-to-date")
	}

	return nil
}

// PrepareAll runs PrepareEnvironment for every environment concurrently.
// Different environments prepare in parallel because their directories are
// disjoint (§5); the caller waits for first-error-wins semantics, then
// discards remaining results — a failure in one environment cancels the
// others' contexts, and PrepareAll returns the first failure once every
// preparation has returned.
func PrepareAll(ctx context.Context, envs map[string]*Environment, upgrade bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg      sync.WaitGroup
		once    sync.Once
		firstErr error
	)

	for _, env := range envs {
		wg.Add(1)
		go func(env *Environment) {
			defer wg.Done()
			if err := PrepareEnvironment(ctx, env, upgrade); err != nil {
				if env.Logger != nil {
					env.Logger.Error(ctx, "["+env.Config.ID+"] preparation failed", ports.F("error", err.Error()))
				}
				once.Do(func() {
					firstErr = err
					cancel()
				})
			}
		}(env)
	}

	wg.Wait()
	return firstErr
}

func log(env *Environment, level ports.Level, msg string) {
	if env.Logger == nil {
		return
	}
	switch level {
	case ports.LevelDebug:
		env.Logger.Debug(context.Background(), msg)
	case ports.LevelWarn:
		env.Logger.Warn(context.Background(), msg)
	default:
		env.Logger.Info(context.Background(), msg)
	}
}
