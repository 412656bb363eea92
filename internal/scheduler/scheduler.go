// Package scheduler implements the admission-controlled concurrent runner:
// it plans every hook's units up front, then drives them to completion one
// cooperative step at a time, admitting a unit only when its file set is
// safe to run alongside whatever is already running.
package scheduler

import (
	"context"
	"fmt"
	"io"

	"github.com/ringlet-dev/goose/internal/config"
	"github.com/ringlet-dev/goose/internal/environment"
	"github.com/ringlet-dev/goose/internal/ports"
	"github.com/ringlet-dev/goose/internal/target"
	"github.com/ringlet-dev/goose/internal/unit"
)

// Event is the scheduler's totally ordered event stream: every unit yields
// exactly one Scheduled followed by exactly one Finished.
type Event interface{ isEvent() }

// UnitScheduled reports that a unit was admitted and its task started.
type UnitScheduled struct {
	Unit *unit.ExecutableUnit
}

func (UnitScheduled) isEvent() {}

// UnitFinished reports a unit's terminal outcome.
type UnitFinished struct {
	Unit   *unit.ExecutableUnit
	Result ports.RunResult
}

func (UnitFinished) isEvent() {}

// UnitStatus names which of remaining/running/results a unit currently
// occupies.
type UnitStatus int

const (
	StatusPending UnitStatus = iota
	StatusRunning
	StatusDone
)

// UnitState is the external, non-blocking view of one unit.
type UnitState struct {
	Status UnitStatus
	Result ports.RunResult
}

// completion is what a unit's goroutine reports back to the scheduler's
// single bookkeeping loop when it finishes running.
type completion struct {
	unit   *unit.ExecutableUnit
	result ports.RunResult
}

// LogSink builds the per-unit output destination a backend run is streamed
// into. Typically this tags each line with the unit's log prefix before
// writing to a shared log.
type LogSink func(u *unit.ExecutableUnit) io.Writer

// Scheduler is the single-threaded cooperative engine described in §4.7.
// All bookkeeping below happens from the goroutine that calls
// UntilComplete — parallelism comes entirely from the spawned per-unit
// goroutines that drive environment.Run and report back on completions.
type Scheduler struct {
	envs       map[string]*environment.Environment
	vcs        ports.VCS
	logSink    LogSink
	maxRunning int

	completions chan completion
	cancels     map[*unit.ExecutableUnit]context.CancelFunc

	remaining []*unit.ExecutableUnit
	running   map[*unit.ExecutableUnit]struct{}
	results   map[*unit.ExecutableUnit]ports.RunResult

	// hookOrder and hookUnits preserve the original plan structure for
	// State(), independent of map iteration order.
	hookOrder []string
	hookUnits map[string][]*unit.ExecutableUnit
}

// New plans a {hook -> units} map from cfg's hooks over targets, optionally
// restricted to selectedHook, and constructs a Scheduler ready to run. An
// unknown selectedHook, or a configuration with no hooks at all, is a fatal
// configuration error raised up front rather than discovered mid-run.
func New(cfg *config.Config, targets []target.Target, selectedHook string, maxRunning int, envs map[string]*environment.Environment, vcs ports.VCS, logSink LogSink) (*Scheduler, error) {
	if maxRunning < 1 {
		maxRunning = unit.AvailableCPUCount()
	}

	var planOrder []*unit.ExecutableUnit
	hookOrder := []string{}
	hookUnits := make(map[string][]*unit.ExecutableUnit)

	cpuCount := unit.AvailableCPUCount()
	found := false
	for _, hook := range cfg.Hooks {
		if selectedHook != "" && hook.ID != selectedHook {
			continue
		}
		found = true
		units := unit.HookAsExecutableUnits(hook, targets, cpuCount)
		hookOrder = append(hookOrder, hook.ID)
		hookUnits[hook.ID] = units
		planOrder = append(planOrder, units...)
	}

	if !found {
		if selectedHook == "" {
			return nil, fmt.Errorf("no hooks configured")
		}
		return nil, fmt.Errorf("unknown hook id: %s", selectedHook)
	}

	return &Scheduler{
		envs:        envs,
		vcs:         vcs,
		logSink:     logSink,
		maxRunning:  maxRunning,
		completions: make(chan completion, len(planOrder)),
		cancels:     make(map[*unit.ExecutableUnit]context.CancelFunc),
		remaining:   planOrder,
		running:     make(map[*unit.ExecutableUnit]struct{}),
		results:     make(map[*unit.ExecutableUnit]ports.RunResult),
		hookOrder:   hookOrder,
		hookUnits:   hookUnits,
	}, nil
}

// scheduleMax admits as many units from the front of remaining as capacity
// and the file-set rules allow, in plan order, returning a Scheduled event
// for each admission. It stops only once running is at capacity; a unit it
// cannot admit is passed over and a later unit in plan order may still be
// admitted. This greedy walk is the documented, deliberately simple
// "first-fit in plan order" policy (§9); no fairness model is applied.
func (s *Scheduler) scheduleMax(ctx context.Context) []UnitScheduled {
	var scheduled []UnitScheduled

	for _, u := range append([]*unit.ExecutableUnit(nil), s.remaining...) {
		if len(s.running) >= s.maxRunning {
			break
		}
		if !s.admits(u) {
			continue
		}
		s.admit(ctx, u)
		scheduled = append(scheduled, UnitScheduled{Unit: u})
	}
	return scheduled
}

// admits reports whether u may start given the currently running set.
func (s *Scheduler) admits(u *unit.ExecutableUnit) bool {
	if len(s.running) == 0 {
		return true
	}

	runningFiles := make(map[string]struct{})
	allReadOnly := true
	for other := range s.running {
		if !other.Hook.ReadOnly {
			allReadOnly = false
		}
		for _, f := range other.Targets {
			runningFiles[f] = struct{}{}
		}
	}

	if u.Hook.ReadOnly && allReadOnly {
		return true
	}

	for _, f := range u.Targets {
		if _, conflict := runningFiles[f]; conflict {
			return false
		}
	}
	return true
}

func (s *Scheduler) admit(ctx context.Context, u *unit.ExecutableUnit) {
	s.remaining = removeUnit(s.remaining, u)
	s.running[u] = struct{}{}

	unitCtx, cancel := context.WithCancel(ctx)
	s.cancels[u] = cancel

	go func() {
		env := s.envs[u.Hook.Environment]
		var sink io.Writer = io.Discard
		if s.logSink != nil {
			sink = s.logSink(u)
		}
		result, err := env.Run(unitCtx, u, s.vcs, sink)
		if err != nil {
			result = ports.RunError
		}
		s.completions <- completion{unit: u, result: result}
	}()
}

func removeUnit(units []*unit.ExecutableUnit, target *unit.ExecutableUnit) []*unit.ExecutableUnit {
	out := units[:0:0]
	for _, u := range units {
		if u != target {
			out = append(out, u)
		}
	}
	return out
}

// harvest records c as a finished unit and releases its cancel func.
func (s *Scheduler) harvest(c completion) UnitFinished {
	s.results[c.unit] = c.result
	delete(s.running, c.unit)
	if cancel, ok := s.cancels[c.unit]; ok {
		cancel()
		delete(s.cancels, c.unit)
	}
	return UnitFinished{Unit: c.unit, Result: c.result}
}

// waitNext blocks for the first running task to complete, then harvests
// every additional task that is already done by that point — this is what
// "wait for the first task, harvest all currently-done tasks" means in
// terms of a single shared completions channel: after the first blocking
// receive, a drain loop with a non-blocking receive picks up the rest.
func (s *Scheduler) waitNext(ctx context.Context) []UnitFinished {
	if len(s.running) == 0 {
		return nil
	}

	select {
	case c := <-s.completions:
		finished := []UnitFinished{s.harvest(c)}
		finished = append(finished, s.drainReady()...)
		return finished
	case <-ctx.Done():
		return nil
	}
}

func (s *Scheduler) drainReady() []UnitFinished {
	var finished []UnitFinished
	for {
		select {
		case c := <-s.completions:
			finished = append(finished, s.harvest(c))
		default:
			return finished
		}
	}
}

// UntilComplete drains the plan, emitting events on ch until every unit has
// both scheduled and finished. It closes ch before returning. Within one
// iteration, all Scheduled events are emitted before any Finished; events
// across different units are not otherwise ordered.
func (s *Scheduler) UntilComplete(ctx context.Context, ch chan<- Event) {
	defer close(ch)

	for len(s.remaining) > 0 {
		for _, ev := range s.scheduleMax(ctx) {
			ch <- ev
		}
		if len(s.remaining) == 0 {
			break
		}
		for _, ev := range s.waitNext(ctx) {
			ch <- ev
		}
	}

	for len(s.running) > 0 {
		for _, ev := range s.waitNext(ctx) {
			ch <- ev
		}
	}
}

// State returns a snapshot of every planned unit's status. It only reads
// already-populated maps — never blocks, never schedules — so external
// displays can poll it freely.
func (s *Scheduler) State() map[string]map[*unit.ExecutableUnit]UnitState {
	out := make(map[string]map[*unit.ExecutableUnit]UnitState, len(s.hookOrder))
	for _, hookID := range s.hookOrder {
		units := s.hookUnits[hookID]
		m := make(map[*unit.ExecutableUnit]UnitState, len(units))
		for _, u := range units {
			m[u] = s.unitState(u)
		}
		out[hookID] = m
	}
	return out
}

func (s *Scheduler) unitState(u *unit.ExecutableUnit) UnitState {
	if result, ok := s.results[u]; ok {
		return UnitState{Status: StatusDone, Result: result}
	}
	if _, ok := s.running[u]; ok {
		return UnitState{Status: StatusRunning}
	}
	return UnitState{Status: StatusPending}
}

// Outcome classifies the overall result once UntilComplete has drained: any
// error outranks any modification, which outranks success.
func Outcome(results map[*unit.ExecutableUnit]ports.RunResult) ports.RunResult {
	sawModified := false
	for _, r := range results {
		if r == ports.RunError {
			return ports.RunError
		}
		if r == ports.RunModified {
			sawModified = true
		}
	}
	if sawModified {
		return ports.RunModified
	}
	return ports.RunOK
}

// Results returns the scheduler's harvested results map, valid for polling
// after UntilComplete returns.
func (s *Scheduler) Results() map[*unit.ExecutableUnit]ports.RunResult {
	out := make(map[*unit.ExecutableUnit]ports.RunResult, len(s.results))
	for u, r := range s.results {
		out[u] = r
	}
	return out
}
