package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPairingCode(t *testing.T) {
	t.Parallel()

	code, err := newPairingCode()
	require.NoError(t, err)
	assert.Len(t, code, 8)
	assert.Regexp(t, "^[0-9a-f]{8}$", code)

	other, err := newPairingCode()
	require.NoError(t, err)
	assert.NotEqual(t, code, other)
}
