package scheduler

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ringlet-dev/goose/internal/adapters/logging"
	"github.com/ringlet-dev/goose/internal/config"
	"github.com/ringlet-dev/goose/internal/envstate"
	"github.com/ringlet-dev/goose/internal/environment"
	"github.com/ringlet-dev/goose/internal/manifest"
	"github.com/ringlet-dev/goose/internal/ports"
	"github.com/ringlet-dev/goose/internal/target"
	"github.com/ringlet-dev/goose/internal/unit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingBackend runs hook.Command as a pseudo-duration sleep, tracking
// concurrency so tests can assert on overlap.
type blockingBackend struct {
	mu         sync.Mutex
	current    int
	maxSeen    int
	sleep      time.Duration
	modifyPath string // if set, "modifies" this path by toggling fakeVCS state
	vcs        *fakeVCS
}

func (b *blockingBackend) Ecosystem() string { return "system" }

func (b *blockingBackend) Bootstrap(context.Context, config.EnvironmentSpec, string, *manifest.LockManifest) (envstate.MachineFingerprint, error) {
	return envstate.MachineFingerprint{}, nil
}
func (b *blockingBackend) Freeze(context.Context, config.EnvironmentSpec, string, string) (manifest.LockManifest, error) {
	return manifest.LockManifest{}, nil
}
func (b *blockingBackend) Sync(context.Context, config.EnvironmentSpec, string, string, manifest.LockManifest) error {
	return nil
}

func (b *blockingBackend) Run(_ context.Context, _ config.EnvironmentSpec, _ string, u *unit.ExecutableUnit, _ io.Writer) ports.RunResult {
	b.mu.Lock()
	b.current++
	if b.current > b.maxSeen {
		b.maxSeen = b.current
	}
	b.mu.Unlock()

	time.Sleep(b.sleep)

	b.mu.Lock()
	b.current--
	b.mu.Unlock()

	if b.modifyPath != "" && b.vcs != nil {
		b.vcs.touch(b.modifyPath)
	}
	return ports.RunOK
}

// fakeVCS returns a constant status snapshot per path, unless touch has
// bumped that path's generation — simulating a hook that mutated a file.
type fakeVCS struct {
	mu  sync.Mutex
	gen map[string]int
}

func newFakeVCS() *fakeVCS { return &fakeVCS{gen: map[string]int{}} }

func (v *fakeVCS) touch(path string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.gen[path]++
}

func (v *fakeVCS) Status(_ context.Context, paths []string) ([]ports.StatusEntry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]ports.StatusEntry, len(paths))
	for i, p := range paths {
		out[i] = ports.StatusEntry{Path: p, WorktreeOID: "gen-" + itoa(v.gen[p])}
	}
	return out, nil
}

func itoa(n int) string {
	digits := "0123456789"
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{digits[n%10]}, b...)
		n /= 10
	}
	return string(b)
}

func (v *fakeVCS) ListAll(context.Context) ([]string, error)    { return nil, nil }
func (v *fakeVCS) ListDiff(context.Context) ([]string, error)   { return nil, nil }
func (v *fakeVCS) ListStaged(context.Context) ([]string, error) { return nil, nil }
func (v *fakeVCS) HashObject(context.Context, string) (string, error) { return "", nil }
func (v *fakeVCS) RevList(context.Context, string, string) ([]string, error) { return nil, nil }
func (v *fakeVCS) Show(context.Context, string) ([]string, error)            { return nil, nil }
func (v *fakeVCS) DiffNames(context.Context, string) ([]string, error)       { return nil, nil }

func buildEnv(t *testing.T, id string, backend ports.Backend) *environment.Environment {
	t.Helper()
	env, err := environment.New(config.EnvironmentSpec{ID: id, Ecosystem: config.Ecosystem{Language: "system"}}, t.TempDir(), t.TempDir(), backend, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(env.Close)
	return env
}

func drain(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var events []Event
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func TestSchedulerSerializesOverlappingWritingHooks(t *testing.T) {
	vcs := newFakeVCS()
	backend := &blockingBackend{sleep: 20 * time.Millisecond, vcs: vcs}
	env := buildEnv(t, "sys", backend)

	cfg := &config.Config{Hooks: []config.HookSpec{
		{ID: "a", Environment: "sys", Command: "true", Parameterize: true},
		{ID: "b", Environment: "sys", Command: "true", Parameterize: true},
	}}
	targets := []target.Target{{Path: "x.py", Tags: map[string]struct{}{}}, {Path: "y.py", Tags: map[string]struct{}{}}}

	sched, err := New(cfg, targets, "", 4, map[string]*environment.Environment{"sys": env}, vcs, nil)
	require.NoError(t, err)

	ch := make(chan Event)
	go sched.UntilComplete(context.Background(), ch)
	drain(t, ch)

	// Each hook is planned as two single-file units ([x.py], [y.py]); a's
	// two disjoint units run together, and no unit of b may overlap a
	// running unit holding the same file, so at most two units ever run.
	assert.Equal(t, 2, backend.maxSeen, "overlapping writing hooks must never run concurrently")
}

func TestSchedulerRunsReadOnlyOverlapConcurrently(t *testing.T) {
	vcs := newFakeVCS()
	backend := &blockingBackend{sleep: 30 * time.Millisecond, vcs: vcs}
	env := buildEnv(t, "sys", backend)

	cfg := &config.Config{Hooks: []config.HookSpec{
		{ID: "a", Environment: "sys", Command: "true", Parameterize: true, ReadOnly: true},
		{ID: "b", Environment: "sys", Command: "true", Parameterize: true, ReadOnly: true},
	}}
	targets := []target.Target{{Path: "x.py", Tags: map[string]struct{}{}}}

	sched, err := New(cfg, targets, "", 4, map[string]*environment.Environment{"sys": env}, vcs, nil)
	require.NoError(t, err)

	ch := make(chan Event)
	go sched.UntilComplete(context.Background(), ch)
	drain(t, ch)

	assert.GreaterOrEqual(t, backend.maxSeen, 2, "read-only hooks overlapping the same file should run concurrently")
}

func TestSchedulerEveryUnitScheduledThenFinishedExactlyOnce(t *testing.T) {
	vcs := newFakeVCS()
	backend := &blockingBackend{sleep: time.Millisecond, vcs: vcs}
	env := buildEnv(t, "sys", backend)

	cfg := &config.Config{Hooks: []config.HookSpec{
		{ID: "a", Environment: "sys", Command: "true", Parameterize: true},
	}}
	targets := []target.Target{{Path: "x.py", Tags: map[string]struct{}{}}, {Path: "y.py", Tags: map[string]struct{}{}}}

	sched, err := New(cfg, targets, "", 1, map[string]*environment.Environment{"sys": env}, vcs, nil)
	require.NoError(t, err)

	ch := make(chan Event)
	go sched.UntilComplete(context.Background(), ch)
	events := drain(t, ch)

	scheduledCount := map[*unit.ExecutableUnit]int{}
	finishedCount := map[*unit.ExecutableUnit]int{}
	for _, ev := range events {
		switch e := ev.(type) {
		case UnitScheduled:
			scheduledCount[e.Unit]++
		case UnitFinished:
			finishedCount[e.Unit]++
		}
	}
	for u, c := range scheduledCount {
		assert.Equal(t, 1, c)
		assert.Equal(t, 1, finishedCount[u])
	}

	assert.Equal(t, ports.RunOK, Outcome(sched.Results()))
}

func TestSchedulerMaxRunningOneSerializesEverything(t *testing.T) {
	vcs := newFakeVCS()
	backend := &blockingBackend{sleep: 5 * time.Millisecond, vcs: vcs}
	env := buildEnv(t, "sys", backend)

	cfg := &config.Config{Hooks: []config.HookSpec{
		{ID: "a", Environment: "sys", Command: "true", Parameterize: true, ReadOnly: true},
		{ID: "b", Environment: "sys", Command: "true", Parameterize: true, ReadOnly: true},
	}}
	targets := []target.Target{{Path: "x.py", Tags: map[string]struct{}{}}}

	sched, err := New(cfg, targets, "", 1, map[string]*environment.Environment{"sys": env}, vcs, nil)
	require.NoError(t, err)

	ch := make(chan Event)
	go sched.UntilComplete(context.Background(), ch)
	drain(t, ch)

	assert.Equal(t, 1, backend.maxSeen)
}

func TestSchedulerDetectsModification(t *testing.T) {
	vcs := newFakeVCS()
	backend := &blockingBackend{sleep: time.Millisecond, modifyPath: "x.py", vcs: vcs}
	env := buildEnv(t, "sys", backend)

	cfg := &config.Config{Hooks: []config.HookSpec{
		{ID: "fixer", Environment: "sys", Command: "true", Parameterize: true},
	}}
	targets := []target.Target{{Path: "x.py", Tags: map[string]struct{}{}}}

	sched, err := New(cfg, targets, "", 4, map[string]*environment.Environment{"sys": env}, vcs, nil)
	require.NoError(t, err)

	ch := make(chan Event)
	go sched.UntilComplete(context.Background(), ch)
	drain(t, ch)

	assert.Equal(t, ports.RunModified, Outcome(sched.Results()))
}

func TestSchedulerUnknownSelectedHookIsFatal(t *testing.T) {
	cfg := &config.Config{Hooks: []config.HookSpec{{ID: "a", Environment: "sys", Command: "true"}}}
	_, err := New(cfg, nil, "nope", 1, nil, newFakeVCS(), nil)
	require.Error(t, err)
}

func TestSchedulerNoHooksIsFatal(t *testing.T) {
	cfg := &config.Config{}
	_, err := New(cfg, nil, "", 1, nil, newFakeVCS(), nil)
	require.Error(t, err)
}
