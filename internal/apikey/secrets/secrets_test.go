package secrets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	a, err := Generate()
	require.NoError(t, err)
	b, err := Generate()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, Prefix))
	assert.Len(t, a, len(Prefix)+43)
	assert.True(t, LooksValid(a))
}

func TestHash(t *testing.T) {
	h1, err := Hash("lk_live_abc")
	require.NoError(t, err)
	h2, err := Hash("lk_live_abc")
	require.NoError(t, err)
	h3, err := Hash("lk_live_abd")
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64)

	_, err = Hash("")
	assert.Error(t, err)
}

func TestDisplayPrefix(t *testing.T) {
	assert.Equal(t, "lk_live_abcdef", DisplayPrefix("lk_live_abcdefghijkl"))
	assert.Equal(t, "short", DisplayPrefix("short"))
	assert.False(t, LooksValid("sk_live_abc"))
	assert.False(t, LooksValid(Prefix))
}
