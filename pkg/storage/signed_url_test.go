package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedURLRoundTrip(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)

	token, expiresAt, err := signer.Generate("res-1", "history/res-1.csv")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	ref, path, parsedExpiry, err := signer.Parse(token, false)
	require.NoError(t, err)
	assert.Equal(t, "res-1", ref)
	assert.Equal(t, "history/res-1.csv", path)
	assert.WithinDuration(t, expiresAt, parsedExpiry, time.Second)
}

func TestSignedURLExpiry(t *testing.T) {
	signer := NewSignedURLSigner("secret", 10*time.Millisecond)

	token, _, err := signer.Generate("res-1", "history/res-1.csv")
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	_, _, _, err = signer.Parse(token, false)
	require.Error(t, err)

	ref, path, _, err := signer.Parse(token, true)
	require.NoError(t, err)
	assert.Equal(t, "res-1", ref)
	assert.Equal(t, "history/res-1.csv", path)
}

func TestSignedURLTamperedSignature(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)

	token, _, err := signer.Generate("res-1", "history/res-1.csv")
	require.NoError(t, err)

	_, _, _, err = signer.Parse(token+"0", false)
	require.Error(t, err)
}

func TestSignedURLRequiresSecret(t *testing.T) {
	signer := NewSignedURLSigner("", time.Hour)

	_, _, err := signer.Generate("res-1", "history/res-1.csv")
	require.Error(t, err)
}
