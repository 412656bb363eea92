package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTagsKnownExtension(t *testing.T) {
	c := New()
	assert.Equal(t, []string{"python", "text"}, c.Tags("src/main.py"))
}

func TestTagsCaseInsensitive(t *testing.T) {
	c := New()
	assert.Equal(t, []string{"go", "text"}, c.Tags("MAIN.GO"))
}

func TestTagsUnknownExtensionReturnsNil(t *testing.T) {
	c := New()
	assert.Nil(t, c.Tags("README"))
	assert.Nil(t, c.Tags("binary.exe"))
}
