// Package unit splits a hook over a target set into balanced executable
// units, each a concrete invocation of the hook's command over one batch of
// files.
package unit

import (
	"fmt"
	"math"
	"runtime"

	"github.com/ringlet-dev/goose/internal/config"
	"github.com/ringlet-dev/goose/internal/target"
)

// ExecutableUnit is one concrete execution of a hook over one batch of
// target files. Units are planned once and referenced by pointer
// thereafter — the scheduler uses pointer identity as the key for its
// running/results bookkeeping, since HookSpec itself (patterns, slices)
// isn't comparable.
type ExecutableUnit struct {
	ID      int
	Hook    config.HookSpec
	Targets []string
}

// LogPrefix is the stable prefix stream-drain tasks tag every output line
// with: "[{hook_id}@{unit_id}] ".
func (u *ExecutableUnit) LogPrefix() string {
	return fmt.Sprintf("[%s@%d] ", u.Hook.ID, u.ID)
}

// TargetSet returns u.Targets as a set, for the scheduler's file-set
// conflict check.
func (u *ExecutableUnit) TargetSet() map[string]struct{} {
	set := make(map[string]struct{}, len(u.Targets))
	for _, t := range u.Targets {
		set[t] = struct{}{}
	}
	return set
}

// AvailableCPUCount reports the process's available CPU count, floored at
// 2 per the planner's formula (P = max(available_cpu_count, 2)).
func AvailableCPUCount() int {
	if n := runtime.NumCPU(); n > 2 {
		return n
	}
	return 2
}

// HookAsExecutableUnits plans hook into zero or more ExecutableUnits:
//
//   - non-parameterized hooks always yield exactly one unit with an empty
//     target set, id 0.
//   - parameterized hooks compute their filtered target set; an empty
//     result skips the hook entirely (no units).
//   - otherwise the filtered files are distributed into
//     ceil(|files| / batch_size) units of up to batch_size files each,
//     where batch_size = ceil(|files| / max(cpuCount, 2)), in the order
//     FilterHookTargets produced them.
func HookAsExecutableUnits(hook config.HookSpec, targets []target.Target, cpuCount int) []*ExecutableUnit {
	if !hook.Parameterize {
		return []*ExecutableUnit{{ID: 0, Hook: hook}}
	}

	files := target.FilterHookTargets(hook, targets)
	if len(files) == 0 {
		return nil
	}

	p := cpuCount
	if p < 2 {
		p = 2
	}
	batchSize := int(math.Ceil(float64(len(files)) / float64(p)))
	if batchSize < 1 {
		batchSize = 1
	}

	var units []*ExecutableUnit
	for start, id := 0, 0; start < len(files); start, id = start+batchSize, id+1 {
		end := start + batchSize
		if end > len(files) {
			end = len(files)
		}
		batch := append([]string(nil), files[start:end]...)
		units = append(units, &ExecutableUnit{ID: id, Hook: hook, Targets: batch})
	}
	return units
}
