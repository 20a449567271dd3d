package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec() *TokenCodec {
	return NewTokenCodec("test-secret", 15*time.Minute, 7*24*time.Hour)
}

func TestTokenCodec_IssueAndVerify(t *testing.T) {
	codec := newTestCodec()
	subject := uuid.New()
	t0 := time.Now().Truncate(time.Second)

	for _, class := range []TokenClass{ClassAccess, ClassRefresh} {
		token, expiresAt, err := codec.Issue(subject, class, t0)
		require.NoError(t, err)
		assert.Equal(t, t0.Add(codec.TTL(class)), expiresAt)
		assert.Less(t, len(token), 512, "token must stay within a practical header size")

		claims, err := codec.Verify(token, class, t0)
		require.NoError(t, err)
		assert.Equal(t, subject.String(), claims.Subject)
		assert.Equal(t, class, claims.Class)

		// Valid right up to the last instant before expiry
		_, err = codec.Verify(token, class, expiresAt.Add(-time.Second))
		assert.NoError(t, err)

		// Exactly at expiry: expired, no grace window
		_, err = codec.Verify(token, class, expiresAt)
		assert.ErrorIs(t, err, ErrTokenExpired)

		_, err = codec.Verify(token, class, expiresAt.Add(time.Hour))
		assert.ErrorIs(t, err, ErrTokenExpired)
	}
}

func TestTokenCodec_WrongClass(t *testing.T) {
	codec := newTestCodec()
	now := time.Now()

	access, _, err := codec.Issue(uuid.New(), ClassAccess, now)
	require.NoError(t, err)
	refresh, _, err := codec.Issue(uuid.New(), ClassRefresh, now)
	require.NoError(t, err)

	_, err = codec.Verify(access, ClassRefresh, now)
	assert.ErrorIs(t, err, ErrTokenClass, "access token must not pass as refresh")

	_, err = codec.Verify(refresh, ClassAccess, now)
	assert.ErrorIs(t, err, ErrTokenClass, "refresh token must not pass as access")
}

func TestTokenCodec_SignatureInvalid(t *testing.T) {
	codec := newTestCodec()
	other := NewTokenCodec("other-secret", 15*time.Minute, 7*24*time.Hour)
	now := time.Now()

	token, _, err := other.Issue(uuid.New(), ClassAccess, now)
	require.NoError(t, err)

	_, err = codec.Verify(token, ClassAccess, now)
	assert.ErrorIs(t, err, ErrTokenSignature)
}

func TestTokenCodec_Garbage(t *testing.T) {
	codec := newTestCodec()
	now := time.Now()

	for _, tokenString := range []string{"", "not-a-token", "a.b.c"} {
		_, err := codec.Verify(tokenString, ClassAccess, now)
		assert.ErrorIs(t, err, ErrTokenInvalid, "token %q", tokenString)
	}
}

func TestTokenCodec_IssuedAtLeeway(t *testing.T) {
	codec := newTestCodec()
	now := time.Now()

	token, _, err := codec.Issue(uuid.New(), ClassAccess, now)
	require.NoError(t, err)

	// A verifier lagging slightly behind the issuer still accepts the token
	_, err = codec.Verify(token, ClassAccess, now.Add(-2*time.Second))
	assert.NoError(t, err)

	// Far in the future relative to the verifier is rejected
	future, _, err := codec.Issue(uuid.New(), ClassAccess, now.Add(time.Hour))
	require.NoError(t, err)
	_, err = codec.Verify(future, ClassAccess, now)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestFingerprint(t *testing.T) {
	fp1 := Fingerprint("token-a")
	fp2 := Fingerprint("token-a")
	fp3 := Fingerprint("token-b")

	assert.Equal(t, fp1, fp2, "fingerprint is deterministic")
	assert.NotEqual(t, fp1, fp3)
	assert.Len(t, fp1, 64, "SHA-256 hex is 64 characters")
	assert.NotContains(t, fp1, "token-a", "fingerprint must not embed the token")
}
