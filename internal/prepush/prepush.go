// Package prepush implements the git pre-push protocol: parsing the
// <local_ref> <local_oid> <remote_ref> <remote_oid> lines git feeds a
// pre-push hook on stdin, and resolving the set of files touched by each
// push event so the scheduler can be scoped to exactly what is being
// pushed.
package prepush

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ringlet-dev/goose/internal/ports"
)

// zeroOID is the sentinel git uses in place of a real object id to mean
// "this ref does not exist on one side of the push" — a branch deletion or
// a brand-new branch.
const zeroOID = "0000000000000000000000000000000000000000"

// PushEvent is one line of a pre-push change set.
type PushEvent interface{ isPushEvent() }

// PushDelete reports a remote branch being deleted: there is no local side
// to inspect.
type PushDelete struct {
	RemoteRef string
	RemoteOID string
}

func (PushDelete) isPushEvent() {}

// PushNew reports a brand-new remote branch: every file touched by any
// commit reachable from the local branch but not already on the remote is
// in scope.
type PushNew struct {
	LocalRef  string
	LocalOID  string
	RemoteRef string
}

func (PushNew) isPushEvent() {}

// PushUpdate reports an existing remote branch being fast-forwarded or
// rewritten: the files in scope are exactly those that differ between the
// remote and local tips.
type PushUpdate struct {
	LocalRef  string
	LocalOID  string
	RemoteRef string
	RemoteOID string
}

func (PushUpdate) isPushEvent() {}

// ParseError reports a pre-push input line that didn't match the expected
// four-field shape.
type ParseError struct {
	Line string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse pre-push change event from stdin: %q", e.Line)
}

// ParseEvents reads git's pre-push stdin protocol line by line, yielding
// one PushEvent per line. Blank lines are skipped; a malformed line is a
// ParseError and stops iteration immediately — a partially trusted change
// set is worse than failing the push outright.
func ParseEvents(r io.Reader) ([]PushEvent, error) {
	scanner := bufio.NewScanner(r)
	var events []PushEvent

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 4 {
			return nil, &ParseError{Line: line}
		}
		localRef, localOID, remoteRef, remoteOID := fields[0], fields[1], fields[2], fields[3]

		switch {
		case localOID == zeroOID:
			events = append(events, PushDelete{RemoteRef: remoteRef, RemoteOID: remoteOID})
		case remoteOID == zeroOID:
			events = append(events, PushNew{LocalRef: localRef, LocalOID: localOID, RemoteRef: remoteRef})
		default:
			events = append(events, PushUpdate{LocalRef: localRef, LocalOID: localOID, RemoteRef: remoteRef, RemoteOID: remoteOID})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading pre-push input: %w", err)
	}
	return events, nil
}

// PathsForEvent resolves the set of paths touched by event. PushDelete has
// no local content to inspect and always resolves to an empty set — a
// branch deletion never needs hooks run against it.
func PathsForEvent(ctx context.Context, vcs ports.VCS, remote string, event PushEvent) ([]string, error) {
	switch e := event.(type) {
	case PushDelete:
		return nil, nil
	case PushNew:
		return newBranchFiles(ctx, vcs, remote, e.LocalOID)
	case PushUpdate:
		return updatedBranchFiles(ctx, vcs, e.RemoteOID, e.LocalOID)
	default:
		return nil, fmt.Errorf("unreachable push event type %T", event)
	}
}

// newBranchFiles walks every commit reachable from localOID but not
// already on remote, oldest first, and unions the paths each one touched.
func newBranchFiles(ctx context.Context, vcs ports.VCS, remote, localOID string) ([]string, error) {
	revisions, err := vcs.RevList(ctx, localOID, remote)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var paths []string
	for _, rev := range revisions {
		touched, err := vcs.Show(ctx, rev)
		if err != nil {
			return nil, err
		}
		for _, p := range touched {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			paths = append(paths, p)
		}
	}
	return paths, nil
}

// updatedBranchFiles resolves the paths that differ between the remote
// tip and the local tip being pushed.
func updatedBranchFiles(ctx context.Context, vcs ports.VCS, remoteOID, localOID string) ([]string, error) {
	return vcs.DiffNames(ctx, remoteOID+".."+localOID)
}
