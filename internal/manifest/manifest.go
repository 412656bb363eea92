// Package manifest implements the content-addressed description of a
// locked environment: which lock files exist, their checksums, and the
// accumulated checksum used to detect drift cheaply.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ringlet-dev/goose/internal/config"
)

// LockFile is one pinned file relative to the lockfiles root, plus its
// content checksum. Equality and ordering are by Path alone — two LockFiles
// with the same path but different checksums are still "the same file" for
// set operations, which is exactly what lets check_lock_files distinguish
// "file missing" from "file tampered with".
type LockFile struct {
	Path     string
	Checksum string
}

// Equal reports path equality, ignoring checksum.
func (l LockFile) Equal(other LockFile) bool {
	return l.Path == other.Path
}

// LockManifest is the content-addressed description of a locked
// environment: the ecosystem and dependency tuple it was built from, the
// lock files it pins, and an accumulated checksum over those files.
type LockManifest struct {
	SourceEcosystem    config.Ecosystem
	SourceDependencies []string
	EcosystemVersion   string
	LockFiles          []LockFile
	Checksum           string
}

// checksumFile computes "sha256:<hex>" over the raw bytes of path.
func checksumFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

// accumulatedChecksum hashes the concatenation of each lock file's own
// checksum, in the order the slice is given (callers must pass it sorted).
func accumulatedChecksum(lockFiles []LockFile) string {
	h := sha256.New()
	for _, lf := range lockFiles {
		h.Write([]byte(lf.Checksum))
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}

func readLockFile(root, path string) (LockFile, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return LockFile{}, err
	}
	checksum, err := checksumFile(path)
	if err != nil {
		return LockFile{}, err
	}
	return LockFile{Path: rel, Checksum: checksum}, nil
}

// BuildManifest reads each lock file under root, computes its checksum,
// and assembles the manifest with the accumulated checksum defined above.
// lockFilePaths are absolute (or root-relative) paths to files that must
// already exist on disk.
func BuildManifest(ecosystem config.Ecosystem, dependencies []string, lockFilePaths []string, root, ecosystemVersion string) (LockManifest, error) {
	lockFiles := make([]LockFile, 0, len(lockFilePaths))
	for _, p := range lockFilePaths {
		lf, err := readLockFile(root, p)
		if err != nil {
			return LockManifest{}, fmt.Errorf("reading lock file %s: %w", p, err)
		}
		lockFiles = append(lockFiles, lf)
	}
	sort.Slice(lockFiles, func(i, j int) bool { return lockFiles[i].Path < lockFiles[j].Path })

	deps := append([]string(nil), dependencies...)
	sort.Strings(deps)

	return LockManifest{
		SourceEcosystem:    ecosystem,
		SourceDependencies: deps,
		EcosystemVersion:   ecosystemVersion,
		LockFiles:          lockFiles,
		Checksum:           accumulatedChecksum(lockFiles),
	}, nil
}

// Validate rejects a manifest whose checksum disagrees with recomputation
// from its own lock files, or whose lock-file/dependency tuples are not
// sorted, unique, and non-empty.
func Validate(m LockManifest) error {
	if len(m.LockFiles) == 0 {
		return &InvalidError{Reason: "lock_files must not be empty"}
	}
	if len(m.SourceDependencies) == 0 {
		return &InvalidError{Reason: "source_dependencies must not be empty"}
	}
	if !sort.SliceIsSorted(m.LockFiles, func(i, j int) bool { return m.LockFiles[i].Path < m.LockFiles[j].Path }) {
		return &InvalidError{Reason: "lock_files must be sorted by path"}
	}
	if !sort.StringsAreSorted(m.SourceDependencies) {
		return &InvalidError{Reason: "source_dependencies must be sorted"}
	}
	seen := make(map[string]struct{}, len(m.LockFiles))
	for _, lf := range m.LockFiles {
		if _, dup := seen[lf.Path]; dup {
			return &InvalidError{Reason: "duplicate lock file path: " + lf.Path}
		}
		seen[lf.Path] = struct{}{}
	}
	depSeen := make(map[string]struct{}, len(m.SourceDependencies))
	for _, d := range m.SourceDependencies {
		if _, dup := depSeen[d]; dup {
			return &InvalidError{Reason: "duplicate dependency: " + d}
		}
		depSeen[d] = struct{}{}
	}
	if expected := accumulatedChecksum(m.LockFiles); expected != m.Checksum {
		return &InvalidError{Reason: fmt.Sprintf("checksum %s does not match recomputed %s", m.Checksum, expected)}
	}
	return nil
}

// InvalidError reports on-disk manifest corruption (the ManifestInvalid
// failure kind).
type InvalidError struct {
	Reason string
}

func (e *InvalidError) Error() string {
	return "manifest invalid: " + e.Reason
}
