package vault

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proxylink-dev/proxylink/pkg/apperrors"
)

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	v, err := New(map[string]string{"k1": "test-passphrase"}, "k1")
	require.NoError(t, err)
	return v
}

func TestVault_RoundTrip(t *testing.T) {
	v := newTestVault(t)

	payloads := []string{
		`{"host":"db.internal","port":5432}`,
		`{"user":"svc","password":"s3cret!"}`,
		"",
		strings.Repeat("x", 64*1024),
	}

	for _, payload := range payloads {
		sealed, err := v.Seal([]byte(payload))
		require.NoError(t, err)

		plaintext, err := v.Unseal(sealed)
		require.NoError(t, err)
		assert.Equal(t, payload, string(plaintext))
	}
}

func TestVault_SealedOutputDoesNotContainPlaintext(t *testing.T) {
	v := newTestVault(t)

	secret := "super-secret-password"
	sealed, err := v.Seal([]byte(secret))
	require.NoError(t, err)

	assert.NotContains(t, sealed, secret)
	assert.True(t, strings.HasPrefix(sealed, "pl1:k1:"))
}

func TestVault_SealIsNonDeterministic(t *testing.T) {
	v := newTestVault(t)

	a, err := v.Seal([]byte("payload"))
	require.NoError(t, err)
	b, err := v.Seal([]byte("payload"))
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "fresh nonce per seal")
}

func TestVault_UnsealFailsClosed(t *testing.T) {
	v := newTestVault(t)

	sealed, err := v.Seal([]byte("payload"))
	require.NoError(t, err)

	cases := map[string]string{
		"garbage":       "not a sealed blob",
		"wrong prefix":  "xx9:k1:AAAA",
		"unknown key":   "pl1:nope:" + strings.SplitN(sealed, ":", 3)[2],
		"bad base64":    "pl1:k1:!!!!",
		"truncated":     "pl1:k1:AAAA",
		"tampered tail": sealed[:len(sealed)-2] + "AA",
	}

	for name, blob := range cases {
		t.Run(name, func(t *testing.T) {
			plaintext, err := v.Unseal(blob)
			assert.ErrorIs(t, err, apperrors.ErrVault)
			assert.Nil(t, plaintext, "no partial plaintext on failure")
		})
	}
}

func TestVault_WrongKeyFails(t *testing.T) {
	v1 := newTestVault(t)
	v2, err := New(map[string]string{"k1": "a different passphrase"}, "k1")
	require.NoError(t, err)

	sealed, err := v1.Seal([]byte("payload"))
	require.NoError(t, err)

	_, err = v2.Unseal(sealed)
	assert.ErrorIs(t, err, apperrors.ErrVault)
}

func TestVault_Rotation(t *testing.T) {
	old, err := New(map[string]string{"k1": "old key"}, "k1")
	require.NoError(t, err)

	sealed, err := old.Seal([]byte(`{"password":"hunter2"}`))
	require.NoError(t, err)

	// Both generations loaded, k2 active: old blobs still unseal and
	// reseal moves them to the new generation.
	rotated, err := New(map[string]string{"k1": "old key", "k2": "new key"}, "k2")
	require.NoError(t, err)

	assert.False(t, rotated.SealedWithActiveKey(sealed))

	resealed, err := rotated.Reseal(sealed)
	require.NoError(t, err)
	assert.True(t, rotated.SealedWithActiveKey(resealed))

	plaintext, err := rotated.Unseal(resealed)
	require.NoError(t, err)
	assert.Equal(t, `{"password":"hunter2"}`, string(plaintext))

	// Reseal is a no-op for blobs already on the active generation.
	again, err := rotated.Reseal(resealed)
	require.NoError(t, err)
	assert.Equal(t, resealed, again)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, "k1")
	assert.Error(t, err)

	_, err = New(map[string]string{"k1": "key"}, "k2")
	assert.Error(t, err)

	_, err = New(map[string]string{"k1": ""}, "k1")
	assert.Error(t, err)
}

func TestWipe(t *testing.T) {
	buf := []byte("sensitive")
	Wipe(buf)
	for _, b := range buf {
		assert.Zero(t, b)
	}
}
