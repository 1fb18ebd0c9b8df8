package password_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fornetto/pizzeria-api/internal/password"
)

func TestHashAndVerify(t *testing.T) {
	hash, err := password.Hash("margherita4ever")
	require.NoError(t, err)
	require.Contains(t, hash, "$argon2id$")

	ok, err := password.Verify("margherita4ever", hash)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = password.Verify("diavola4ever", hash)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHashIsSalted(t *testing.T) {
	first, err := password.Hash("same-password")
	require.NoError(t, err)
	second, err := password.Hash("same-password")
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestVerifyMalformedHash(t *testing.T) {
	for _, encoded := range []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=65536,t=2,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=2,p=1$!!!$aGFzaA",
	} {
		_, err := password.Verify("anything", encoded)
		require.ErrorIs(t, err, password.ErrMalformedHash, "hash %q", encoded)
	}
}
