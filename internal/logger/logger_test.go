package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	l := New()
	require.NotNil(t, l.Log)

	require.NoError(t, l.Init("debug"))
	assert.True(t, l.Log.Core().Enabled(-1))

	assert.Error(t, l.Init("loud"))
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
}

func TestAccountField(t *testing.T) {
	f := AccountField("0123456789abcdef")
	assert.Equal(t, "01234567", f.String)

	f = AccountField("abc")
	assert.Equal(t, "abc", f.String)
}
