package ports

import "context"

// StatusEntry is one row of a version-control status snapshot: the object
// ids the index, HEAD, and working tree hold for a path. It is the unit the
// scheduler's post-run change detection compares before and after a hook
// runs (§4.7).
type StatusEntry struct {
	Path           string
	HeadOID        string
	IndexOID       string
	WorktreeOID    string
}

// VCS abstracts the version-control system enumeration and status
// operations the core consumes but does not implement itself: listing
// candidate files, snapshotting status for change detection, and resolving
// revision ranges for the pre-push protocol.
type VCS interface {
	// ListAll returns every file tracked by the VCS.
	ListAll(ctx context.Context) ([]string, error)
	// ListDiff returns files that differ between the worktree and HEAD,
	// restricted to added/copied/modified/renamed (deletions excluded).
	ListDiff(ctx context.Context) ([]string, error)
	// ListStaged returns files staged in the index, with the same filter
	// as ListDiff but against the index rather than the worktree.
	ListStaged(ctx context.Context) ([]string, error)
	// Status returns a status snapshot restricted to the given paths.
	Status(ctx context.Context, paths []string) ([]StatusEntry, error)
	// HashObject computes the git blob object id of the file on disk at
	// path, without requiring it to be staged.
	HashObject(ctx context.Context, path string) (string, error)
	// RevList lists commit ids reachable from rev but not from any ref
	// matching the given remote, oldest first.
	RevList(ctx context.Context, rev string, remote string) ([]string, error)
	// Show returns the paths touched by the given revision.
	Show(ctx context.Context, rev string) ([]string, error)
	// DiffNames returns the paths that differ across a revision range,
	// formatted "from..to".
	DiffNames(ctx context.Context, revRange string) ([]string, error)
}
