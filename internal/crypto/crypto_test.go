package crypto

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key, err := ParseKey(strings.Repeat("ab", 32))
	require.NoError(t, err)
	return key
}

func TestRoundTrip(t *testing.T) {
	key := testKey(t)
	for _, plaintext := range []string{
		"pk_live_1234567890abcdef",
		"x",
		"credential with spaces and ünïcode ✓",
	} {
		blob, err := Encrypt(plaintext, key)
		require.NoError(t, err)

		got, err := Decrypt(blob, key)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestBlobFormat(t *testing.T) {
	key := testKey(t)
	blob, err := Encrypt("secret", key)
	require.NoError(t, err)

	parts := strings.Split(blob, ":")
	require.Len(t, parts, 3)

	iv, err := hex.DecodeString(parts[0])
	require.NoError(t, err)
	assert.Len(t, iv, 16)

	tag, err := hex.DecodeString(parts[1])
	require.NoError(t, err)
	assert.Len(t, tag, 16)
}

func TestTamperedAuthTagFails(t *testing.T) {
	key := testKey(t)
	blob, err := Encrypt("pk_live_secret", key)
	require.NoError(t, err)

	parts := strings.Split(blob, ":")
	tag, _ := hex.DecodeString(parts[1])
	tag[0] ^= 0xff
	parts[1] = hex.EncodeToString(tag)

	_, err = Decrypt(strings.Join(parts, ":"), key)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestTamperedCiphertextFails(t *testing.T) {
	key := testKey(t)
	blob, err := Encrypt("pk_live_secret", key)
	require.NoError(t, err)

	parts := strings.Split(blob, ":")
	ct, _ := hex.DecodeString(parts[2])
	ct[len(ct)-1] ^= 0x01
	parts[2] = hex.EncodeToString(ct)

	_, err = Decrypt(strings.Join(parts, ":"), key)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestWrongKeyFails(t *testing.T) {
	key := testKey(t)
	other, err := ParseKey(strings.Repeat("cd", 32))
	require.NoError(t, err)

	blob, err := Encrypt("pk_live_secret", key)
	require.NoError(t, err)

	_, err = Decrypt(blob, other)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestMalformedBlobs(t *testing.T) {
	key := testKey(t)
	for _, blob := range []string{
		"",
		"nothex",
		"aa:bb",
		"zz:bb:cc",
		"aabb:ccdd:eeff", // iv too short
	} {
		_, err := Decrypt(blob, key)
		assert.ErrorIs(t, err, ErrMalformedCiphertext, "blob %q", blob)
	}
}

func TestParseKeyRejectsBadLength(t *testing.T) {
	_, err := ParseKey("abcd")
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = ParseKey("not hex at all")
	assert.ErrorIs(t, err, ErrInvalidKey)
}
