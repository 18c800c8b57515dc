package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTGateAuthorize(t *testing.T) {
	t.Parallel()

	secret := []byte("test-secret")
	gate := NewJWTGate(secret)

	token, err := GenerateToken("dev-1", KindDisplay, secret, time.Hour)
	require.NoError(t, err)

	identity, err := gate.Authorize(token)
	require.NoError(t, err)
	assert.Equal(t, "dev-1", identity.Subject)
	assert.Equal(t, KindDisplay, identity.Kind)
}

func TestJWTGateAdminKind(t *testing.T) {
	t.Parallel()

	secret := []byte("test-secret")
	gate := NewJWTGate(secret)

	token, err := GenerateToken("dashboard", KindAdmin, secret, time.Hour)
	require.NoError(t, err)

	identity, err := gate.Authorize(token)
	require.NoError(t, err)
	assert.Equal(t, KindAdmin, identity.Kind)
}

func TestJWTGateRejects(t *testing.T) {
	t.Parallel()

	secret := []byte("right-secret")
	gate := NewJWTGate(secret)

	t.Run("wrong secret", func(t *testing.T) {
		token, err := GenerateToken("dev-1", KindDisplay, []byte("wrong-secret"), time.Hour)
		require.NoError(t, err)
		_, err = gate.Authorize(token)
		assert.ErrorIs(t, err, ErrAuthRejected)
	})

	t.Run("expired", func(t *testing.T) {
		token, err := GenerateToken("dev-1", KindDisplay, secret, -time.Minute)
		require.NoError(t, err)
		_, err = gate.Authorize(token)
		assert.ErrorIs(t, err, ErrAuthRejected)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := gate.Authorize("not.a.jwt")
		assert.ErrorIs(t, err, ErrAuthRejected)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := gate.Authorize("")
		assert.ErrorIs(t, err, ErrAuthRejected)
	})

	t.Run("unknown kind", func(t *testing.T) {
		token, err := GenerateToken("dev-1", "intruder", secret, time.Hour)
		require.NoError(t, err)
		_, err = gate.Authorize(token)
		assert.ErrorIs(t, err, ErrAuthRejected)
	})
}
