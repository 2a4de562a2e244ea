package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultMap_MarshalKeepsInsertionOrder(t *testing.T) {
	m := NewResultMap()
	m.Set("zeta", "z")
	m.Set("alpha", []string{"a1", "a2"})
	m.Set("mid", "m")
	m.Set("zeta", "z2")

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, `{"zeta":"z2","alpha":["a1","a2"],"mid":"m"}`, string(data))
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, m.Keys())
	assert.Equal(t, 3, m.Len())

	v, ok := m.Get("alpha")
	require.True(t, ok)
	assert.Equal(t, []string{"a1", "a2"}, v)

	_, ok = m.Get("missing")
	assert.False(t, ok)
}

func TestResultMap_Empty(t *testing.T) {
	data, err := json.Marshal(NewResultMap())
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(data))
}

func TestResultMap_EscapesMarkupForInlineScripts(t *testing.T) {
	m := NewResultMap()
	m.Set("</script>", "<b>&</b>")

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "<")
	assert.NotContains(t, string(data), ">")

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "<b>&</b>", decoded["</script>"])
}
