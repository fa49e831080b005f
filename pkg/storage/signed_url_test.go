package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerGenerateAndParse(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Generate("tts/permanent/abc.mp3")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.False(t, expiresAt.IsZero())

	key, parsedExpiry, err := signer.Parse(token, false)
	require.NoError(t, err)
	require.Equal(t, "tts/permanent/abc.mp3", key)
	require.WithinDuration(t, expiresAt, parsedExpiry, time.Second)
}

func TestSignedURLSignerExpired(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Millisecond*10)
	token, _, err := signer.Generate("tts/temporary/abc.mp3")
	require.NoError(t, err)
	time.Sleep(time.Millisecond * 20)

	_, _, err = signer.Parse(token, false)
	require.Error(t, err)

	key, _, err := signer.Parse(token, true)
	require.NoError(t, err)
	require.Equal(t, "tts/temporary/abc.mp3", key)
}

func TestSignedURLSignerRejectsTamperedKey(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Generate("tts/permanent/abc.mp3")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	other, _, err := signer.Generate("tts/permanent/other.mp3")
	require.NoError(t, err)
	parts[1] = strings.Split(other, ".")[1]

	_, _, err = signer.Parse(strings.Join(parts, "."), false)
	require.Error(t, err)
}
