package prepush

import (
	"context"
	"strings"
	"testing"

	"github.com/ringlet-dev/goose/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventsClassifiesEachShape(t *testing.T) {
	input := strings.Join([]string{
		"refs/heads/main deadbeefdeadbeefdeadbeefdeadbeefdeadbeef refs/heads/main 0000000000000000000000000000000000000000",
		"0000000000000000000000000000000000000000 deadbeefdeadbeefdeadbeefdeadbeefdeadbeef refs/heads/feature cafebabecafebabecafebabecafebabecafebabe",
		"refs/heads/main 1111111111111111111111111111111111111111 refs/heads/main 2222222222222222222222222222222222222222",
	}, "\n") + "\n"

	events, err := ParseEvents(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, events, 3)

	_, ok := events[0].(PushNew)
	assert.True(t, ok, "new remote ref oid should parse as PushNew")

	del, ok := events[1].(PushDelete)
	require.True(t, ok, "zero local oid should parse as PushDelete")
	assert.Equal(t, "refs/heads/feature", del.RemoteRef)

	upd, ok := events[2].(PushUpdate)
	require.True(t, ok)
	assert.Equal(t, "1111111111111111111111111111111111111111", upd.LocalOID)
	assert.Equal(t, "2222222222222222222222222222222222222222", upd.RemoteOID)
}

func TestParseEventsSkipsBlankLines(t *testing.T) {
	input := "\n\nrefs/heads/main 1111111111111111111111111111111111111111 refs/heads/main 2222222222222222222222222222222222222222\n\n"
	events, err := ParseEvents(strings.NewReader(input))
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestParseEventsRejectsMalformedLine(t *testing.T) {
	_, err := ParseEvents(strings.NewReader("not enough fields\n"))
	require.Error(t, err)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}

type fakePrepushVCS struct {
	revList []string
	shows   map[string][]string
	diffs   map[string][]string
}

func (v *fakePrepushVCS) ListAll(context.Context) ([]string, error)    { return nil, nil }
func (v *fakePrepushVCS) ListDiff(context.Context) ([]string, error)   { return nil, nil }
func (v *fakePrepushVCS) ListStaged(context.Context) ([]string, error) { return nil, nil }
func (v *fakePrepushVCS) Status(context.Context, []string) ([]ports.StatusEntry, error) {
	return nil, nil
}
func (v *fakePrepushVCS) HashObject(context.Context, string) (string, error) { return "", nil }

func (v *fakePrepushVCS) RevList(_ context.Context, rev, remote string) ([]string, error) {
	return v.revList, nil
}

func (v *fakePrepushVCS) Show(_ context.Context, rev string) ([]string, error) {
	return v.shows[rev], nil
}

func (v *fakePrepushVCS) DiffNames(_ context.Context, revRange string) ([]string, error) {
	return v.diffs[revRange], nil
}

func TestPathsForEventDelete(t *testing.T) {
	paths, err := PathsForEvent(context.Background(), &fakePrepushVCS{}, "origin", PushDelete{RemoteRef: "refs/heads/gone"})
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestPathsForEventNewBranchUnionsShows(t *testing.T) {
	vcs := &fakePrepushVCS{
		revList: []string{"r1", "r2"},
		shows: map[string][]string{
			"r1": {"a.py", "b.py"},
			"r2": {"b.py", "c.py"},
		},
	}
	paths, err := PathsForEvent(context.Background(), vcs, "origin", PushNew{LocalOID: "deadbeef", RemoteRef: "refs/heads/feature"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.py", "b.py", "c.py"}, paths)
}

func TestPathsForEventUpdateUsesRevisionRange(t *testing.T) {
	vcs := &fakePrepushVCS{diffs: map[string][]string{"old..new": {"x.py"}}}
	paths, err := PathsForEvent(context.Background(), vcs, "origin", PushUpdate{LocalOID: "new", RemoteOID: "old"})
	require.NoError(t, err)
	assert.Equal(t, []string{"x.py"}, paths)
}
