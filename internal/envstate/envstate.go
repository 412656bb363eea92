// Package envstate persists the per-environment lifecycle state record:
// whether an environment is uninitialized, bootstrapped/frozen, or fully
// synced, plus enough fingerprint information to detect drift.
package envstate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"

	"github.com/ringlet-dev/goose/internal/config"
)

// Stage names the sub-state of an Initial record.
type Stage string

const (
	StageBootstrapped Stage = "bootstrapped"
	StageFrozen       Stage = "frozen"
	StageSynced       Stage = "synced"
)

// MachineFingerprint identifies the machine an environment was bootstrapped
// on, so drift detection can tell an environment bootstrapped on a
// different OS/arch apart from one merely bootstrapped with a different
// ecosystem version.
type MachineFingerprint struct {
	OS       string `json:"os"`
	Arch     string `json:"arch"`
	Hostname string `json:"hostname"`
}

// CurrentMachineFingerprint captures the fingerprint of the machine running
// this process.
func CurrentMachineFingerprint() MachineFingerprint {
	hostname, _ := os.Hostname()
	return MachineFingerprint{
		OS:       runtime.GOOS,
		Arch:     runtime.GOARCH,
		Hostname: hostname,
	}
}

// Kind discriminates the tagged sum below.
type Kind int

const (
	KindUninitialized Kind = iota
	KindInitial
	KindSynced
)

// State is the tagged sum: Uninitialized | Initial{stage, ecosystem,
// fingerprint} | Synced{checksum, ecosystem, fingerprint}. Only the fields
// relevant to Kind are meaningful.
type State struct {
	Kind                Kind
	Stage               Stage
	Ecosystem           config.Ecosystem
	BootstrappedVersion MachineFingerprint
	Checksum            string
}

// Uninitialized is the zero state: no sandbox exists yet.
func Uninitialized() State {
	return State{Kind: KindUninitialized}
}

// Initial builds an Initial{stage} state.
func Initial(stage Stage, ecosystem config.Ecosystem, fingerprint MachineFingerprint) State {
	return State{Kind: KindInitial, Stage: stage, Ecosystem: ecosystem, BootstrappedVersion: fingerprint}
}

// Synced builds a Synced state.
func Synced(checksum string, ecosystem config.Ecosystem, fingerprint MachineFingerprint) State {
	return State{Kind: KindSynced, Stage: StageSynced, Checksum: checksum, Ecosystem: ecosystem, BootstrappedVersion: fingerprint}
}

// persistedState is the on-disk JSON shape, discriminated by Stage. Only
// Uninitialized is never persisted — its absence from disk is what a
// missing state file means.
type persistedState struct {
	Stage               Stage              `json:"stage"`
	Ecosystem           config.Ecosystem   `json:"ecosystem"`
	BootstrappedVersion MachineFingerprint `json:"bootstrapped_version"`
	Checksum            string             `json:"checksum,omitempty"`
}

func stateFilePath(envDir string) string {
	return filepath.Join(envDir, "goose-state.json")
}

// Read returns Uninitialized when the state file is absent; otherwise it
// parses the tagged sum, rejecting any unrecognized stage discriminator.
func Read(envDir string) (State, error) {
	data, err := os.ReadFile(stateFilePath(envDir))
	if err != nil {
		if os.IsNotExist(err) {
			return Uninitialized(), nil
		}
		return State{}, err
	}

	var p persistedState
	if err := json.Unmarshal(data, &p); err != nil {
		return State{}, err
	}

	switch p.Stage {
	case StageBootstrapped, StageFrozen:
		return Initial(p.Stage, p.Ecosystem, p.BootstrappedVersion), nil
	case StageSynced:
		return Synced(p.Checksum, p.Ecosystem, p.BootstrappedVersion), nil
	default:
		return State{}, &UnrecognizedStageError{Stage: string(p.Stage)}
	}
}

// Write persists state to envDir, writing to a temp file and renaming over
// the target so a partial write never leaves a corrupt file in place — a
// crash mid-write leaves the store readable as Uninitialized (absent) on
// the next run, since the rename either completed or didn't.
func Write(envDir string, state State) error {
	if state.Kind == KindUninitialized {
		return os.Remove(stateFilePath(envDir))
	}

	p := persistedState{
		Stage:               state.Stage,
		Ecosystem:           state.Ecosystem,
		BootstrappedVersion: state.BootstrappedVersion,
		Checksum:            state.Checksum,
	}
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}

	target := stateFilePath(envDir)
	tmp, err := os.CreateTemp(envDir, ".goose-state-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, target)
}

// UnrecognizedStageError reports a persisted state file whose discriminator
// this version of the store doesn't understand.
type UnrecognizedStageError struct {
	Stage string
}

func (e *UnrecognizedStageError) Error() string {
	return "unrecognized environment state stage: " + e.Stage
}
