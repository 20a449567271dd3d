package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHasher_RoundTrip(t *testing.T) {
	h := NewPasswordHasher(1)

	digest, err := h.Hash("correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(digest, "$argon2id$"), "digest must be PHC-formatted")

	ok, err := h.Verify("correct horse battery staple", digest)
	require.NoError(t, err)
	assert.True(t, ok, "matching password must verify")

	ok, err = h.Verify("correct horse battery stable", digest)
	require.NoError(t, err)
	assert.False(t, ok, "wrong password must not verify, and must not be an error")
}

func TestPasswordHasher_FreshSaltPerCall(t *testing.T) {
	h := NewPasswordHasher(1)

	d1, err := h.Hash("same password")
	require.NoError(t, err)
	d2, err := h.Hash("same password")
	require.NoError(t, err)
	assert.NotEqual(t, d1, d2, "each call embeds a fresh salt")

	for _, d := range []string{d1, d2} {
		ok, err := h.Verify("same password", d)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestPasswordHasher_InvalidInput(t *testing.T) {
	h := NewPasswordHasher(1)

	_, err := h.Hash("")
	assert.ErrorIs(t, err, ErrInvalidPassword)

	_, err = h.Hash(strings.Repeat("a", MaxPasswordLength+1))
	assert.ErrorIs(t, err, ErrInvalidPassword)
}

func TestPasswordHasher_MalformedDigest(t *testing.T) {
	h := NewPasswordHasher(1)

	cases := []struct {
		name   string
		digest string
	}{
		{"empty", ""},
		{"not argon2id", "$bcrypt$whatever"},
		{"too few parts", "$argon2id$v=19$m=65536,t=1,p=2"},
		{"bad version", "$argon2id$v=18$m=65536,t=1,p=2$c2FsdA$a2V5a2V5a2V5a2V5a2V5a2V5"},
		{"bad params", "$argon2id$v=19$m=abc,t=1,p=2$c2FsdA$a2V5a2V5a2V5a2V5a2V5a2V5"},
		{"zero params", "$argon2id$v=19$m=0,t=0,p=0$c2FsdA$a2V5a2V5a2V5a2V5a2V5a2V5"},
		{"bad salt b64", "$argon2id$v=19$m=65536,t=1,p=2$!!!$a2V5a2V5a2V5a2V5a2V5a2V5"},
		{"bad key b64", "$argon2id$v=19$m=65536,t=1,p=2$c2FsdA$!!!"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.Verify("any password", tc.digest)
			assert.ErrorIs(t, err, ErrMalformedDigest)
		})
	}
}

func TestPasswordHasher_VerifiesAcrossParamChange(t *testing.T) {
	// Digest parameters are read from the digest itself, so raising the work
	// factor must not invalidate existing digests.
	old := NewPasswordHasher(1)
	digest, err := old.Hash("password123")
	require.NoError(t, err)

	upgraded := NewPasswordHasher(4)
	ok, err := upgraded.Verify("password123", digest)
	require.NoError(t, err)
	assert.True(t, ok)
}
