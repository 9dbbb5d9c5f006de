package cryptox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSealBoxRoundTrip(t *testing.T) {
	t.Parallel()

	box, err := NewSealBox("correct horse battery staple")
	require.NoError(t, err)

	plaintext := []byte(`{"renewal":"rt-123","tenant":"acme"}`)

	sealed, err := box.Seal(plaintext)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, sealed)

	opened, err := box.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, plaintext, opened)
}

func TestSealBoxDistinctSaltsPerSeal(t *testing.T) {
	t.Parallel()

	box, err := NewSealBox("pass")
	require.NoError(t, err)

	a, err := box.Seal([]byte("same"))
	require.NoError(t, err)
	b, err := box.Seal([]byte("same"))
	require.NoError(t, err)

	require.NotEqual(t, a, b)
}

func TestSealBoxWrongPassphrase(t *testing.T) {
	t.Parallel()

	box, err := NewSealBox("right")
	require.NoError(t, err)
	sealed, err := box.Seal([]byte("secret"))
	require.NoError(t, err)

	other, err := NewSealBox("wrong")
	require.NoError(t, err)
	_, err = other.Open(sealed)
	require.Error(t, err)
}

func TestSealBoxTruncatedCiphertext(t *testing.T) {
	t.Parallel()

	box, err := NewSealBox("pass")
	require.NoError(t, err)

	_, err = box.Open([]byte("short"))
	require.ErrorIs(t, err, ErrCiphertextTooShort)
}

func TestNewSealBoxEmptyPassphrase(t *testing.T) {
	t.Parallel()

	_, err := NewSealBox("")
	require.Error(t, err)
}

func TestGenerateToken(t *testing.T) {
	t.Parallel()

	tok, err := GenerateToken(TokenSize256)
	require.NoError(t, err)
	require.Len(t, tok, 43)

	other, err := GenerateToken(TokenSize256)
	require.NoError(t, err)
	require.NotEqual(t, tok, other)

	_, err = GenerateToken(0)
	require.Error(t, err)
}
