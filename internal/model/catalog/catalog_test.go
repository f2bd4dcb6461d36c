package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()

	m, ok := c.Describe("llama3:8b")
	require.True(t, ok)
	assert.Equal(t, "llama3:8b", m.ID)
	assert.True(t, m.Web)
	assert.NotEmpty(t, m.Description)

	api, ok := c.Describe("api")
	require.True(t, ok)
	assert.False(t, api.Web)

	_, ok = c.Describe("gpt-unknown")
	assert.False(t, ok)
}

func TestListIsSorted(t *testing.T) {
	list := Default().List()
	require.NotEmpty(t, list)
	for i := 1; i < len(list); i++ {
		assert.Less(t, list[i-1].ID, list[i].ID)
	}
}

func TestParseRejectsInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("models: [unterminated"))
	assert.Error(t, err)
}
