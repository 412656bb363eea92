package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// rawConfig mirrors the on-disk YAML shape. It is decoded first, then
// converted into the domain Config so regex compilation and set
// construction happen in one place instead of scattered across yaml tags.
type rawConfig struct {
	Environments []rawEnvironment `yaml:"environments"`
	Hooks        []rawHook        `yaml:"hooks"`
	Limit        []string         `yaml:"limit"`
	Exclude      []string         `yaml:"exclude"`
}

type rawEnvironment struct {
	ID           string   `yaml:"id"`
	Language     string   `yaml:"language"`
	Version      string   `yaml:"version"`
	Dependencies []string `yaml:"dependencies"`
}

type rawHook struct {
	ID           string            `yaml:"id"`
	Environment  string            `yaml:"environment"`
	Command      string            `yaml:"command"`
	Args         []string          `yaml:"args"`
	EnvVars      map[string]string `yaml:"env_vars"`
	EnvVarsOrder []string          `yaml:"env_vars_order"`
	Parameterize *bool             `yaml:"parameterize"`
	Types        []string          `yaml:"types"`
	Limit        []string          `yaml:"limit"`
	Exclude      []string          `yaml:"exclude"`
	ReadOnly     bool              `yaml:"read_only"`
}

// Load reads and decodes the YAML configuration document at path, then
// validates it. Full schema validation and diagnostics are out of scope
// here (they belong to the external collaborator named in §1); this loader
// only does structural decode plus the invariants already owned by Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewUserError(ErrCodeUnreadable, "could not read configuration file").
			WithContext(path).
			WithUnderlying(err)
	}
	return Parse(data, path)
}

// Parse decodes raw YAML bytes into a validated Config. contextPath is used
// only for error messages (e.g. the originating file path).
func Parse(data []byte, contextPath string) (*Config, error) {
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, NewUserError(ErrCodeParse, "failed to parse configuration").
			WithContext(contextPath).
			WithUnderlying(err)
	}

	cfg := &Config{}
	errs := NewErrorList()

	for _, re := range raw.Environments {
		cfg.Environments = append(cfg.Environments, EnvironmentSpec{
			ID: re.ID,
			Ecosystem: Ecosystem{
				Language: re.Language,
				Version:  re.Version,
			},
			Dependencies: re.Dependencies,
		})
	}

	for _, rh := range raw.Hooks {
		parameterize := true
		if rh.Parameterize != nil {
			parameterize = *rh.Parameterize
		}

		limit, err := compilePatterns(rh.Limit)
		if err != nil {
			errs.Add(NewUserError(ErrCodeBadPattern, err.Error()).WithContext(rh.ID))
			continue
		}
		exclude, err := compilePatterns(rh.Exclude)
		if err != nil {
			errs.Add(NewUserError(ErrCodeBadPattern, err.Error()).WithContext(rh.ID))
			continue
		}

		types := make(map[string]struct{}, len(rh.Types))
		for _, t := range rh.Types {
			types[t] = struct{}{}
		}

		cfg.Hooks = append(cfg.Hooks, HookSpec{
			ID:           rh.ID,
			Environment:  rh.Environment,
			Command:      rh.Command,
			Args:         rh.Args,
			EnvVars:      orderedEnvVars(rh.EnvVars, rh.EnvVarsOrder),
			Parameterize: parameterize,
			Types:        types,
			Limit:        limit,
			Exclude:      exclude,
			ReadOnly:     rh.ReadOnly,
		})
	}

	var err error
	cfg.Limit, err = compilePatterns(raw.Limit)
	if err != nil {
		errs.Add(NewUserError(ErrCodeBadPattern, err.Error()))
	}
	cfg.Exclude, err = compilePatterns(raw.Exclude)
	if err != nil {
		errs.Add(NewUserError(ErrCodeBadPattern, err.Error()))
	}

	if errs.HasErrors() {
		return nil, errs
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// orderedEnvVars preserves declaration order when the document supplies an
// explicit env_vars_order list; otherwise falls back to map iteration,
// which is the best a plain YAML mapping can offer.
func orderedEnvVars(vars map[string]string, order []string) []EnvVar {
	if len(vars) == 0 {
		return nil
	}
	out := make([]EnvVar, 0, len(vars))
	seen := make(map[string]struct{}, len(vars))
	for _, k := range order {
		if v, ok := vars[k]; ok {
			out = append(out, EnvVar{Key: k, Value: v})
			seen[k] = struct{}{}
		}
	}
	for k, v := range vars {
		if _, ok := seen[k]; ok {
			continue
		}
		out = append(out, EnvVar{Key: k, Value: v})
	}
	return out
}
