package auth

import (
	"crypto/ed25519"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cheap parameters so the suite stays fast
var testParams = &HashParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := CreateHash("correct horse", testParams)
	require.NoError(t, err)

	ok, err := ComparePasswordAndHash("correct horse", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ComparePasswordAndHash("battery staple", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	other, err := CreateHash("correct horse", testParams)
	require.NoError(t, err)
	assert.NotEqual(t, hash, other, "salt must differ per hash")
}

func TestDecodeHashRejectsGarbage(t *testing.T) {
	_, err := ComparePasswordAndHash("x", "bot")
	assert.ErrorIs(t, err, ErrInvalidHash)

	_, err = ComparePasswordAndHash("x", "$argon2id$v=1$m=1,t=1,p=1$AAAA$AAAA")
	assert.ErrorIs(t, err, ErrIncompatibleVersion)
}

func TestValidatePassword(t *testing.T) {
	assert.ErrorIs(t, ValidatePassword("short"), ErrPasswordTooShort)
	assert.NoError(t, ValidatePassword("longenough"))
}

func TestJWTRoundTrip(t *testing.T) {
	iss, err := NewIssuer(time.Hour)
	require.NoError(t, err)

	id := uuid.New()
	token, err := iss.CreateJWT(id, "alice")
	require.NoError(t, err)

	claims, err := iss.AuthenticateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, id, claims.PlayerID)
	assert.Equal(t, "alice", claims.Username)
}

func TestIssuerFromPathSurvivesRestart(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	dir := t.TempDir()
	privPath, pubPath := filepath.Join(dir, "ed25519"), filepath.Join(dir, "ed25519.pub")
	require.NoError(t, os.WriteFile(privPath, priv, 0o600))
	require.NoError(t, os.WriteFile(pubPath, pub, 0o644))

	first, err := NewIssuerFromPath(privPath, pubPath, time.Hour)
	require.NoError(t, err)
	id := uuid.New()
	token, err := first.CreateJWT(id, "alice")
	require.NoError(t, err)

	second, err := NewIssuerFromPath(privPath, pubPath, time.Hour)
	require.NoError(t, err)
	claims, err := second.AuthenticateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, id, claims.PlayerID)

	require.NoError(t, os.WriteFile(pubPath, pub[:16], 0o644))
	_, err = NewIssuerFromPath(privPath, pubPath, time.Hour)
	assert.Error(t, err)

	_, err = NewIssuerFromPath(filepath.Join(dir, "missing"), pubPath, time.Hour)
	assert.Error(t, err)
}

func TestJWTRejectsForeignKey(t *testing.T) {
	a, err := NewIssuer(0)
	require.NoError(t, err)
	b, err := NewIssuer(0)
	require.NoError(t, err)

	token, err := a.CreateJWT(uuid.New(), "alice")
	require.NoError(t, err)

	_, err = b.AuthenticateJWT(token)
	assert.Error(t, err)

	_, err = a.AuthenticateJWT("not-a-token")
	assert.Error(t, err)
}

func TestJWTExpired(t *testing.T) {
	iss, err := NewIssuer(time.Nanosecond)
	require.NoError(t, err)
	token, err := iss.CreateJWT(uuid.New(), "alice")
	require.NoError(t, err)

	time.Sleep(1100 * time.Millisecond)
	_, err = iss.AuthenticateJWT(token)
	assert.Error(t, err)
}

func TestParseTokenExpireTime(t *testing.T) {
	for _, s := range []string{"", "0", "never"} {
		d, err := ParseTokenExpireTime(s)
		require.NoError(t, err)
		assert.Zero(t, d)
	}
	d, err := ParseTokenExpireTime("24h")
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, d)

	_, err = ParseTokenExpireTime("soon")
	assert.Error(t, err)
}
