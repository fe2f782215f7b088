package auth

import "errors"

var (
	ErrValidation         = errors.New("auth: validation failed")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrAccountDisabled    = errors.New("auth: account disabled")
	ErrUnauthenticated    = errors.New("auth: unauthenticated")
	ErrForbidden          = errors.New("auth: forbidden")
	ErrConflict           = errors.New("auth: principal already exists")
	ErrPrincipalNotFound  = errors.New("auth: principal not found")
)

// Token verification failures. Verify folds them into a false result; Inspect reports them.
var (
	ErrTokenMalformed = errors.New("auth: malformed token")
	ErrTokenSignature = errors.New("auth: invalid token signature")
	ErrTokenExpired   = errors.New("auth: token expired")
	ErrTokenRevoked   = errors.New("auth: token revoked")
)
