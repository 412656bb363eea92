// Package gitvcs implements ports.VCS by shelling out to git, mirroring
// the NUL-delimited porcelain parsing the original Python implementation
// used (git/status.py, git/shared.py, git/pre_push.py, targets.py): every
// listing command is run with -z so paths containing spaces or newlines
// round-trip correctly, and status parsing walks the exact three-way
// partition of git's two-character XY status codes.
package gitvcs

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ringlet-dev/goose/internal/ports"
)

// gitEnv is merged into every invocation's environment. Disabling the
// background refresh keeps a concurrent `git status` from racing the
// index lock another goose-spawned git process might be holding.
var gitEnv = map[string]string{"GIT_OPTIONAL_LOCKS": "0"}

// readFSCodes are XY status codes whose worktree object id must be
// recomputed by hashing the file on disk — the index doesn't reflect the
// worktree's current content for these.
var readFSCodes = map[string]struct{}{
	".A": {}, ".M": {},
	"MM": {}, "MT": {},
	"TM": {}, "TT": {},
	"AM": {}, "AT": {},
	"RM": {}, "RT": {},
	"CM": {}, "CT": {},
	".T": {}, ".R": {}, ".C": {},
}

// useIndexCodes are XY status codes where the index and worktree are
// already known to match — the index's object id can be reused directly.
var useIndexCodes = map[string]struct{}{
	"M.": {}, "T.": {}, "A.": {}, "R.": {}, "C.": {},
}

// skipCodes are XY status codes for paths deleted from the worktree or
// index — nothing to run a hook against.
var skipCodes = map[string]struct{}{
	".D": {}, "MD": {}, "TD": {}, "AD": {}, "RD": {}, "CD": {},
	"D.": {},
}

// VCS is a ports.VCS backed by a real git binary.
type VCS struct {
	runner ports.CommandRunner
	dir    string
}

// New constructs a VCS rooted at dir (the repository working tree; empty
// uses the process's current directory).
func New(runner ports.CommandRunner, dir string) *VCS {
	return &VCS{runner: runner, dir: dir}
}

func (v *VCS) run(ctx context.Context, args ...string) (string, error) {
	result, err := v.runner.RunEnv(ctx, "git", prependDir(v.dir, args), gitEnv)
	if err != nil {
		return "", fmt.Errorf("running git %v: %w", args, err)
	}
	if !result.Success() {
		return "", fmt.Errorf("git %v exited %d: %s", args, result.ExitCode, result.Stderr)
	}
	return result.Stdout, nil
}

func prependDir(dir string, args []string) []string {
	if dir == "" {
		return args
	}
	return append([]string{"-C", dir}, args...)
}

// nilSplit splits a NUL-delimited blob into trimmed, non-empty tokens, in
// the order git emitted them.
func nilSplit(blob string) []string {
	var out []string
	for _, part := range strings.Split(blob, "\x00") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// ListAll returns every file git tracks.
func (v *VCS) ListAll(ctx context.Context) ([]string, error) {
	out, err := v.run(ctx, "ls-files", "-z")
	if err != nil {
		return nil, err
	}
	return nilSplit(out), nil
}

// baseDiffArgs is the diff-filter shared by ListDiff, ListStaged, and
// pre-push's updated-branch resolution: added, copied, modified, renamed —
// deletions are never hook targets.
var baseDiffArgs = []string{"diff", "--name-only", "--diff-filter=ACMR", "-z"}

// ListDiff returns files that differ between the worktree and HEAD.
func (v *VCS) ListDiff(ctx context.Context) ([]string, error) {
	args := append(append([]string(nil), baseDiffArgs...), "HEAD")
	out, err := v.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	return nilSplit(out), nil
}

// ListStaged returns files staged in the index.
func (v *VCS) ListStaged(ctx context.Context) ([]string, error) {
	args := append(append([]string(nil), baseDiffArgs...), "--cached", "HEAD")
	out, err := v.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	return nilSplit(out), nil
}

// DiffNames returns files that differ across revRange (formatted
// "from..to"), with the same ACMR filter as ListDiff.
func (v *VCS) DiffNames(ctx context.Context, revRange string) ([]string, error) {
	args := append(append([]string(nil), baseDiffArgs...), revRange)
	out, err := v.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	return nilSplit(out), nil
}

// HashObject computes the git blob object id of the file on disk at path,
// without requiring it to be staged.
func (v *VCS) HashObject(ctx context.Context, path string) (string, error) {
	out, err := v.run(ctx, "hash-object", path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// RevList lists commit ids reachable from rev but not from any ref
// matching remote, oldest first — the commits a new branch push
// introduces.
func (v *VCS) RevList(ctx context.Context, rev, remote string) ([]string, error) {
	out, err := v.run(ctx, "rev-list", rev, "--topo-order", "--reverse", "--not", "--remotes="+remote)
	if err != nil {
		return nil, err
	}
	var revs []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			revs = append(revs, line)
		}
	}
	return revs, nil
}

// Show returns the paths touched by rev.
func (v *VCS) Show(ctx context.Context, rev string) ([]string, error) {
	out, err := v.run(ctx, "show", "--name-only", "--pretty=", "-z", rev)
	if err != nil {
		return nil, err
	}
	return nilSplit(out), nil
}

// Status returns a porcelain-v2 status snapshot restricted to paths,
// parsed record by record the way the original implementation's
// _changed_files_from_output walked them: NUL-delimited fields, renames
// consuming a following origin-path token, and the status code dispatched
// through the three-way read-fs/use-index/skip partition.
func (v *VCS) Status(ctx context.Context, paths []string) ([]ports.StatusEntry, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	args := append([]string{"status", "--untracked-files=no", "--porcelain=v2", "-z", "--"}, paths...)
	out, err := v.run(ctx, args...)
	if err != nil {
		return nil, err
	}

	return parseStatus(ctx, v, out)
}

func parseStatus(ctx context.Context, v *VCS, out string) ([]ports.StatusEntry, error) {
	tokens := strings.Split(out, "\x00")
	// Trailing split artifact from the final NUL terminator.
	if len(tokens) > 0 && tokens[len(tokens)-1] == "" {
		tokens = tokens[:len(tokens)-1]
	}

	var entries []ports.StatusEntry
	for i := 0; i < len(tokens); i++ {
		record := tokens[i]
		if record == "" {
			continue
		}
		// Header lines, untracked, and ignored entries never reach here
		// because --untracked-files=no suppresses them, but porcelain v2
		// can still emit a leading '#' comment in some git versions.
		if strings.HasPrefix(record, "#") {
			continue
		}

		fields := strings.Split(record, " ")
		if len(fields) < 9 {
			return nil, fmt.Errorf("malformed git status record: %q", record)
		}
		changeKind := fields[0]
		statusPart := fields[1]
		submoduleState := fields[2]
		headOID := fields[6]
		indexOID := fields[7]
		path := fields[len(fields)-1]

		if submoduleState != "N..." {
			return nil, fmt.Errorf("submodules are not supported: %q", record)
		}

		switch changeKind {
		case "u":
			// Unmerged — conflict resolution precedes hooks running at all.
			continue
		case "2":
			// Renamed/copied entries carry an extra NUL-separated origin
			// path immediately after this record.
			i++
		}

		var worktreeOID string
		switch {
		case contains(readFSCodes, statusPart):
			hash, err := v.HashObject(ctx, path)
			if err != nil {
				return nil, err
			}
			worktreeOID = hash
		case contains(useIndexCodes, statusPart):
			worktreeOID = indexOID
		case contains(skipCodes, statusPart):
			continue
		default:
			return nil, fmt.Errorf("unexpected file status %q for %q", statusPart, path)
		}

		entries = append(entries, ports.StatusEntry{
			Path:        path,
			HeadOID:     headOID,
			IndexOID:    indexOID,
			WorktreeOID: worktreeOID,
		})
	}

	// The snapshot is a sorted tuple of {path, head_oid, index_oid,
	// worktree_oid} (git/status.py's tuple(sorted(changed_files))) — sort
	// explicitly rather than relying on porcelain-v2's incidental
	// path-ordered emission.
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	return entries, nil
}

func contains(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}
