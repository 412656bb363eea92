package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/ringlet-dev/goose/internal/config"
)

// manifestDTO is the on-disk JSON shape for a LockManifest. Kept separate
// from the domain type so field renames or additions to LockManifest don't
// silently change the wire format.
type manifestDTO struct {
	SourceEcosystem    config.Ecosystem `json:"source_ecosystem"`
	SourceDependencies []string         `json:"source_dependencies"`
	EcosystemVersion   string           `json:"ecosystem_version"`
	LockFiles          []lockFileDTO    `json:"lock_files"`
	Checksum           string           `json:"checksum"`
}

type lockFileDTO struct {
	Path     string `json:"path"`
	Checksum string `json:"checksum"`
}

func toDTO(m LockManifest) manifestDTO {
	lockFiles := make([]lockFileDTO, len(m.LockFiles))
	for i, lf := range m.LockFiles {
		lockFiles[i] = lockFileDTO{Path: lf.Path, Checksum: lf.Checksum}
	}
	return manifestDTO{
		SourceEcosystem:    m.SourceEcosystem,
		SourceDependencies: m.SourceDependencies,
		EcosystemVersion:   m.EcosystemVersion,
		LockFiles:          lockFiles,
		Checksum:           m.Checksum,
	}
}

func fromDTO(d manifestDTO) LockManifest {
	lockFiles := make([]LockFile, len(d.LockFiles))
	for i, lf := range d.LockFiles {
		lockFiles[i] = LockFile{Path: lf.Path, Checksum: lf.Checksum}
	}
	return LockManifest{
		SourceEcosystem:    d.SourceEcosystem,
		SourceDependencies: d.SourceDependencies,
		EcosystemVersion:   d.EcosystemVersion,
		LockFiles:          lockFiles,
		Checksum:           d.Checksum,
	}
}

func manifestPath(lockFilesPath string) string {
	return filepath.Join(lockFilesPath, "manifest.json")
}

// WriteManifest serializes m to <lockFilesPath>/manifest.json. Output is
// deterministic: equal manifests produce byte-equal documents, since
// BuildManifest always sorts lock files and dependencies before this is
// ever called.
func WriteManifest(lockFilesPath string, m LockManifest) error {
	data, err := json.MarshalIndent(toDTO(m), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(manifestPath(lockFilesPath), data, 0o644)
}

// ReadManifest loads the manifest at <lockFilesPath>/manifest.json.
func ReadManifest(lockFilesPath string) (LockManifest, error) {
	data, err := os.ReadFile(manifestPath(lockFilesPath))
	if err != nil {
		return LockManifest{}, err
	}
	var dto manifestDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return LockManifest{}, &InvalidError{Reason: "manifest.json is not valid JSON: " + err.Error()}
	}
	return fromDTO(dto), nil
}

// LockFileState is the outcome of CheckLockFiles: whether the on-disk lock
// files, the manifest describing them, the environment's persisted state
// checksum, and the live configuration all agree.
type LockFileState int

const (
	StateMissingLockFile LockFileState = iota
	StateManifestMismatch
	StateLockFileMismatch
	StateConfigMismatch
	StateMatching
)

func (s LockFileState) String() string {
	switch s {
	case StateMissingLockFile:
		return "missing_lock_file"
	case StateManifestMismatch:
		return "state_manifest_mismatch"
	case StateLockFileMismatch:
		return "manifest_lock_file_mismatch"
	case StateConfigMismatch:
		return "config_manifest_mismatch"
	case StateMatching:
		return "matching"
	default:
		return "unknown"
	}
}

// CheckLockFiles decides whether the lock files under lockFilesPath still
// satisfy env, and whether the caller-supplied stateChecksum (if any) still
// matches the manifest. Evaluated in order per the decision table: config
// drift is the most specific failure, lock-file tampering is distinguished
// from simple absence, and state/manifest disagreement is checked last
// since it's the cheapest failure for a caller to repair (sync, not
// freeze).
func CheckLockFiles(lockFilesPath string, stateChecksum *string, env config.EnvironmentSpec) LockFileState {
	m, err := ReadManifest(lockFilesPath)
	if err != nil {
		return StateConfigMismatch
	}

	if env.Ecosystem != m.SourceEcosystem {
		return StateConfigMismatch
	}

	if !sameSet(env.Dependencies, m.SourceDependencies) {
		return StateConfigMismatch
	}

	for _, lf := range m.LockFiles {
		fullPath := filepath.Join(lockFilesPath, lf.Path)
		if _, err := os.Stat(fullPath); err != nil {
			return StateMissingLockFile
		}
		actual, err := readLockFile(lockFilesPath, fullPath)
		if err != nil || actual.Checksum != lf.Checksum {
			return StateLockFileMismatch
		}
	}

	if stateChecksum != nil && *stateChecksum != m.Checksum {
		return StateManifestMismatch
	}

	return StateMatching
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]int, len(a))
	for _, x := range a {
		set[x]++
	}
	for _, x := range b {
		set[x]--
	}
	for _, count := range set {
		if count != 0 {
			return false
		}
	}
	return true
}
