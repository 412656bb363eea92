// Package config holds the declarative configuration aggregate: the set of
// managed environments and the hooks that run inside them.
package config

import "regexp"

// Ecosystem names the language family owning an environment's sandbox, plus
// an optional version constraint a backend resolves against at bootstrap.
type Ecosystem struct {
	Language string
	Version  string
}

// EnvVar is one ordered entry of a hook's extra environment variables.
type EnvVar struct {
	Key   string
	Value string
}

// EnvironmentSpec describes one managed sandbox: its ecosystem and the
// dependencies a backend must pin into it.
type EnvironmentSpec struct {
	ID           string
	Ecosystem    Ecosystem
	Dependencies []string
}

// HookSpec describes one configured command to run over a target set.
type HookSpec struct {
	ID          string
	Environment string
	Command     string
	Args        []string
	EnvVars     []EnvVar
	Parameterize bool
	Types        map[string]struct{}
	Limit        []*regexp.Regexp
	Exclude      []*regexp.Regexp
	ReadOnly     bool
}

// Config is the immutable, fully-validated aggregate loaded from disk.
type Config struct {
	Environments []EnvironmentSpec
	Hooks        []HookSpec
	Limit        []*regexp.Regexp
	Exclude      []*regexp.Regexp
}

// EnvironmentByID returns the environment spec with the given id, and
// whether it was found.
func (c *Config) EnvironmentByID(id string) (EnvironmentSpec, bool) {
	for _, e := range c.Environments {
		if e.ID == id {
			return e, true
		}
	}
	return EnvironmentSpec{}, false
}

// HookByID returns the hook spec with the given id, and whether it was found.
func (c *Config) HookByID(id string) (HookSpec, bool) {
	for _, h := range c.Hooks {
		if h.ID == id {
			return h, true
		}
	}
	return HookSpec{}, false
}

// Validate enforces the invariants from the data model: hook and
// environment ids are unique within their kind, and every hook references
// a configured environment. Errors are accumulated rather than returned on
// first failure, so a user sees every problem in one pass.
func (c *Config) Validate() error {
	errs := NewErrorList()

	seenEnv := make(map[string]struct{}, len(c.Environments))
	for _, e := range c.Environments {
		if _, dup := seenEnv[e.ID]; dup {
			errs.Add(NewUserError(ErrCodeDuplicateEnv, "duplicate environment id: "+e.ID).
				WithSuggestion("environment ids must be unique"))
			continue
		}
		seenEnv[e.ID] = struct{}{}
	}

	seenHook := make(map[string]struct{}, len(c.Hooks))
	for _, h := range c.Hooks {
		if _, dup := seenHook[h.ID]; dup {
			errs.Add(NewUserError(ErrCodeDuplicateHook, "duplicate hook id: "+h.ID).
				WithSuggestion("hook ids must be unique"))
			continue
		}
		seenHook[h.ID] = struct{}{}

		if _, ok := seenEnv[h.Environment]; !ok {
			errs.Add(NewUserError(ErrCodeUnknownEnv, "hook "+h.ID+" references unknown environment "+h.Environment).
				WithContext(h.ID).
				WithSuggestion("declare a matching entry under environments, or fix the typo"))
		}
	}

	return errs.AsError()
}
