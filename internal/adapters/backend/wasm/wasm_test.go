package wasm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEcosystem(t *testing.T) {
	assert.Equal(t, "wasm", New(nil).Ecosystem())
}

func TestSatisfiesConstraintCaret(t *testing.T) {
	assert.True(t, satisfiesConstraint("v1.3.0", "^1.2"))
	assert.True(t, satisfiesConstraint("v1.2.0", "^1.2"))
	assert.False(t, satisfiesConstraint("v1.1.9", "^1.2"))
}

func TestSatisfiesConstraintBareVersion(t *testing.T) {
	assert.True(t, satisfiesConstraint("v2.0.0", "2.0.0"))
	assert.False(t, satisfiesConstraint("v1.9.9", "2.0.0"))
}

func TestSatisfiesConstraintRejectsInvalidVersions(t *testing.T) {
	assert.False(t, satisfiesConstraint("not-a-version", "^1.0"))
}

func TestResolveDependencyBarePathIsPinnedDirectly(t *testing.T) {
	b := New(nil)
	resolved, err := b.resolveDependency(nil, nil, "", "./vendor/lintwasm.wasm")
	assert.NoError(t, err)
	assert.Equal(t, "./vendor/lintwasm.wasm", resolved.path)
}

func TestResolveDependencyRejectsMalformedEntry(t *testing.T) {
	b := New(nil)
	_, err := b.resolveDependency(nil, nil, "", "not-a-path-or-name")
	assert.Error(t, err)
}
