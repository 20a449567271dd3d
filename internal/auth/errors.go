package auth

import "errors"

var (
	// ErrInvalidCredentials is returned for unknown email and wrong password
	// alike, so a caller cannot probe which emails exist.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrSessionNotFound is returned when a token refers to a session that
	// was revoked, rotated out, or expired.
	ErrSessionNotFound = errors.New("session not found")

	// ErrTokenExpired is returned when a token's expiry has passed.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenSignature is returned when a token's signature does not verify.
	ErrTokenSignature = errors.New("token signature invalid")

	// ErrTokenClass is returned when a refresh token is presented where an
	// access token is required, or vice versa.
	ErrTokenClass = errors.New("wrong token class")

	// ErrTokenInvalid is returned for tokens that cannot be parsed at all.
	ErrTokenInvalid = errors.New("token invalid")

	// ErrInvalidPassword is returned when a password candidate is empty or
	// exceeds the configured maximum length.
	ErrInvalidPassword = errors.New("invalid password")

	// ErrMalformedDigest is returned when a stored password digest cannot be
	// parsed. A wrong-but-well-formed password is not an error.
	ErrMalformedDigest = errors.New("malformed password digest")
)
