package authapi

import "github.com/adeilh/rakh-auth/auth"

// LoginRequest accepts username/password, or identifier/secret as aliases.
type LoginRequest struct {
	Username   string `json:"username,omitempty"`
	Password   string `json:"password,omitempty"`
	Identifier string `json:"identifier,omitempty"`
	Secret     string `json:"secret,omitempty"`
}

func (r LoginRequest) credentials() (string, string) {
	id, secret := r.Username, r.Password
	if id == "" {
		id = r.Identifier
	}
	if secret == "" {
		secret = r.Secret
	}
	return id, secret
}

// UserInfo is the principal view returned on login and creation.
type UserInfo struct {
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

type LoginResponse struct {
	Message   string   `json:"message"`
	Token     string   `json:"token"`
	ExpiresAt int64    `json:"expiresAt"`
	User      UserInfo `json:"user"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type MeResponse struct {
	User auth.Payload `json:"user"`
}

type RefreshResponse struct {
	Message   string `json:"message"`
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
}

type PublicInfoResponse struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type ProfileResponse struct {
	Message   string       `json:"message"`
	User      auth.Payload `json:"user"`
	Timestamp string       `json:"timestamp"`
}

type DashboardData struct {
	Notifications int `json:"notifications"`
	Tasks         int `json:"tasks"`
	Messages      int `json:"messages"`
}

type DashboardResponse struct {
	Message string        `json:"message"`
	User    auth.Payload  `json:"user"`
	Data    DashboardData `json:"data"`
}

type UsersResponse struct {
	Message string         `json:"message"`
	Users   []auth.Summary `json:"users"`
	Total   int            `json:"total"`
}

// CreateUserRequest registers a principal. Roles default to USER.
type CreateUserRequest struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles,omitempty"`
}

type CreateUserResponse struct {
	Message string   `json:"message"`
	User    UserInfo `json:"user"`
}

type SetEnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

type UserResponse struct {
	Message string       `json:"message"`
	User    auth.Summary `json:"user"`
}

type StatsResponse struct {
	Message string     `json:"message"`
	Stats   auth.Stats `json:"stats"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
