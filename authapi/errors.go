package authapi

import (
	"errors"

	"github.com/adeilh/rakh-auth/auth"
	"github.com/adeilh/rakh-auth/httpx"
)

const (
	msgCredentialsRequired = "username and password are required"
	msgInvalidCredentials  = "invalid credentials"
	msgAccountDisabled     = "account disabled"
	msgInvalidUser         = "invalid user"
	msgCreateFieldsMissing = "username, password and email are required"
	msgUserExists          = "user already exists"
	msgUserNotFound        = "user not found"
	msgEnabledRequired     = "enabled is required"
	msgInvalidBody         = "invalid request body"
)

// httpError translates authenticator errors into HTTP errors. Unknown errors
// pass through so the server error handler logs them and answers 500.
func httpError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, auth.ErrValidation):
		return httpx.HTTPError(httpx.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrAccountDisabled):
		return httpx.HTTPError(httpx.StatusUnauthorized, msgAccountDisabled)
	case errors.Is(err, auth.ErrInvalidCredentials):
		return httpx.HTTPError(httpx.StatusUnauthorized, msgInvalidCredentials)
	case errors.Is(err, auth.ErrUnauthenticated):
		return httpx.HTTPError(httpx.StatusUnauthorized, msgInvalidUser)
	case errors.Is(err, auth.ErrForbidden):
		return httpx.HTTPError(httpx.StatusForbidden, "insufficient permissions for this resource")
	case errors.Is(err, auth.ErrPrincipalNotFound):
		return httpx.HTTPError(httpx.StatusNotFound, msgUserNotFound)
	case errors.Is(err, auth.ErrConflict):
		return httpx.HTTPError(httpx.StatusConflict, msgUserExists)
	default:
		return err
	}
}
