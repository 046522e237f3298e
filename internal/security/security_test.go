package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldCipherRoundTrip(t *testing.T) {
	c, err := NewFieldCipher("test-secret")
	require.NoError(t, err)

	sealed, err := c.Encrypt("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", sealed)

	again, err := c.Encrypt("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce must differ per call")

	plain, err := c.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", plain)
}

func TestFieldCipherWrongKey(t *testing.T) {
	a, err := NewFieldCipher("key-a")
	require.NoError(t, err)
	b, err := NewFieldCipher("key-b")
	require.NoError(t, err)

	sealed, err := a.Encrypt("secret")
	require.NoError(t, err)

	_, err = b.Decrypt(sealed)
	assert.Error(t, err)
}

func TestFieldCipherRejectsEmptyKey(t *testing.T) {
	_, err := NewFieldCipher("")
	assert.Error(t, err)
}

func TestFieldCipherPtr(t *testing.T) {
	c, err := NewFieldCipher("k")
	require.NoError(t, err)

	out, err := c.EncryptPtr(nil)
	require.NoError(t, err)
	assert.Nil(t, out)

	v := "notes"
	sealed, err := c.EncryptPtr(&v)
	require.NoError(t, err)
	plain, err := c.DecryptPtr(sealed)
	require.NoError(t, err)
	assert.Equal(t, "notes", *plain)
}

func TestMaskUsername(t *testing.T) {
	for _, username := range []string{"u1", "abcd", "john.doe@example.com", ""} {
		masked := MaskUsername(username)
		assert.NotEqual(t, username, masked)
		assert.Equal(t, UsernameMask, masked[:len(UsernameMask)])
	}
	assert.Equal(t, "******u1", MaskUsername("u1"))
	assert.Equal(t, "******.com", MaskUsername("john.doe@example.com"))
	assert.Equal(t, "******", MaskUsername(""))
}

func TestEscapeLikePattern(t *testing.T) {
	assert.Equal(t, "50!% off!_now!!", EscapeLikePattern("50% off_now!"))
}

func TestContainsCondition(t *testing.T) {
	cond, param, err := ContainsCondition("name", "Ac%me")
	require.NoError(t, err)
	assert.Equal(t, "LOWER(name) LIKE ? ESCAPE '!'", cond)
	assert.Equal(t, "%ac!%me%", param)

	_, _, err = ContainsCondition("name; drop table clients", "x")
	assert.Error(t, err)
}
