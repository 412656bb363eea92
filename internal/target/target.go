// Package target materializes the candidate file set a scheduler plans
// over: enumerating paths from the VCS (or accepting them directly),
// tagging them, and filtering by the include/exclude patterns configured
// at the top level and per hook.
package target

import (
	"context"
	"regexp"
	"sort"

	"github.com/ringlet-dev/goose/internal/config"
	"github.com/ringlet-dev/goose/internal/ports"
)

// Target is a candidate path plus its classification tags.
type Target struct {
	Path string
	Tags map[string]struct{}
}

// Selector names which set of VCS-known paths to enumerate.
type Selector string

const (
	SelectorAll    Selector = "all"
	SelectorDiff   Selector = "diff"
	SelectorStaged Selector = "staged"
)

// builtinExclude is always applied in addition to a configuration's own
// exclude patterns: the tool's own state directory must never be handed to
// a hook.
var builtinExclude = regexp.MustCompile(`^\.goose/.*`)

// SelectTargets enumerates paths from vcs according to selector, wraps each
// surviving path with classification tags from classifier, and applies the
// configuration's top-level include/exclude filter.
func SelectTargets(ctx context.Context, cfg *config.Config, vcs ports.VCS, classifier ports.Classifier, selector Selector) ([]Target, error) {
	var paths []string
	var err error

	switch selector {
	case SelectorAll:
		paths, err = vcs.ListAll(ctx)
	case SelectorDiff:
		paths, err = vcs.ListDiff(ctx)
	case SelectorStaged:
		paths, err = vcs.ListStaged(ctx)
	default:
		return nil, &InvalidSelectorError{Selector: string(selector)}
	}
	if err != nil {
		return nil, err
	}

	return GetTargetsFromPaths(cfg, classifier, paths), nil
}

// GetTargetsFromPaths wraps paths with classification tags and applies the
// configuration's top-level filter, without any VCS I/O. This is the path
// the pre-push protocol uses once it has resolved its own change set.
func GetTargetsFromPaths(cfg *config.Config, classifier ports.Classifier, paths []string) []Target {
	excludes := make([]*regexp.Regexp, 0, len(cfg.Exclude)+1)
	excludes = append(excludes, cfg.Exclude...)
	excludes = append(excludes, builtinExclude)

	targets := make([]Target, 0, len(paths))
	for _, path := range paths {
		if !included(path, cfg.Limit, excludes) {
			continue
		}
		targets = append(targets, Target{
			Path: path,
			Tags: tagSet(classifier.Tags(path)),
		})
	}
	return targets
}

// FilterHookTargets restricts targets for one hook: parameterized hooks are
// further narrowed by hook.Types (if non-empty, a target's tags must
// intersect) and the hook's own limit/exclude patterns, applied with the
// same semantics as the top-level filter. Non-parameterized hooks always
// yield an empty set — they do not receive file arguments.
func FilterHookTargets(hook config.HookSpec, targets []Target) []string {
	if !hook.Parameterize {
		return nil
	}

	out := make([]string, 0, len(targets))
	for _, t := range targets {
		if len(hook.Types) > 0 && !tagsIntersect(t.Tags, hook.Types) {
			continue
		}
		if !included(t.Path, hook.Limit, hook.Exclude) {
			continue
		}
		out = append(out, t.Path)
	}
	sort.Strings(out)
	return out
}

// included reports whether path matches the include/exclude filtering
// pipeline: it must match at least one of limit (or limit is empty), and
// none of exclude.
func included(path string, limit, exclude []*regexp.Regexp) bool {
	if len(limit) > 0 && !matchesAny(path, limit) {
		return false
	}
	return !matchesAny(path, exclude)
}

func matchesAny(path string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(path) {
			return true
		}
	}
	return false
}

func tagsIntersect(tags map[string]struct{}, types map[string]struct{}) bool {
	for t := range types {
		if _, ok := tags[t]; ok {
			return true
		}
	}
	return false
}

func tagSet(tags []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		set[t] = struct{}{}
	}
	return set
}

// InvalidSelectorError is returned by SelectTargets for an unrecognized
// selector value.
type InvalidSelectorError struct {
	Selector string
}

func (e *InvalidSelectorError) Error() string {
	return "unknown target selector: " + e.Selector
}
