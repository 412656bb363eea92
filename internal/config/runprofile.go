package config

import (
	"os"

	"github.com/pelletier/go-toml/v2"
)

// RunProfile is host-local scheduler tuning consulted only by the CLI front
// end (§10.9) — never by the core library. It lets a developer override the
// scheduler's concurrency cap or pin a single hook without editing the
// checked-in configuration file.
type RunProfile struct {
	MaxRunning    int    `toml:"max_running"`
	SelectedHook  string `toml:"selected_hook"`
	DryRun        bool   `toml:"dry_run"`
}

// LoadRunProfile reads a TOML run profile from path. A missing file is not
// an error: it yields the zero-value profile, equivalent to "no overrides".
func LoadRunProfile(path string) (RunProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return RunProfile{}, nil
		}
		return RunProfile{}, NewUserError(ErrCodeUnreadable, "could not read run profile").
			WithContext(path).
			WithUnderlying(err)
	}

	var profile RunProfile
	if err := toml.Unmarshal(data, &profile); err != nil {
		return RunProfile{}, NewUserError(ErrCodeParse, "failed to parse run profile").
			WithContext(path).
			WithUnderlying(err)
	}
	return profile, nil
}
