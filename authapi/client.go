package authapi

import (
	"context"
	"net/url"

	"github.com/adeilh/rakh-auth/auth"
	"github.com/adeilh/rakh-auth/httpx"
)

// Client is a typed client for the routes mounted by Handler.Register.
// Non-2xx answers are returned as *httpx.ResponseError.
type Client struct {
	http *httpx.Client
}

func NewClient(baseURL string, opts ...httpx.ClientOption) *Client {
	opts = append([]httpx.ClientOption{httpx.WithBaseURL(baseURL)}, opts...)
	return &Client{http: httpx.NewClient(opts...)}
}

func (c *Client) Login(ctx context.Context, username, password string) (LoginResponse, error) {
	var out LoginResponse
	_, err := c.http.Post(ctx, "/auth/login", LoginRequest{Username: username, Password: password}, &out)
	return out, err
}

func (c *Client) Logout(ctx context.Context, token string) error {
	_, err := c.http.Post(ctx, "/auth/logout", nil, nil, httpx.WithBearer(token))
	return err
}

func (c *Client) Me(ctx context.Context, token string) (auth.Payload, error) {
	var out MeResponse
	_, err := c.http.Get(ctx, "/auth/me", &out, httpx.WithBearer(token))
	return out.User, err
}

func (c *Client) Refresh(ctx context.Context, token string) (RefreshResponse, error) {
	var out RefreshResponse
	_, err := c.http.Post(ctx, "/auth/refresh", nil, &out, httpx.WithBearer(token))
	return out, err
}

func (c *Client) Users(ctx context.Context, token string) ([]auth.Summary, error) {
	var out UsersResponse
	_, err := c.http.Get(ctx, "/admin/users", &out, httpx.WithBearer(token))
	return out.Users, err
}

func (c *Client) CreateUser(ctx context.Context, token string, req CreateUserRequest) (UserInfo, error) {
	var out CreateUserResponse
	_, err := c.http.Post(ctx, "/admin/users", req, &out, httpx.WithBearer(token))
	return out.User, err
}

func (c *Client) SetEnabled(ctx context.Context, token, username string, enabled bool) (auth.Summary, error) {
	var out UserResponse
	path := "/admin/users/" + url.PathEscape(username)
	_, err := c.http.Patch(ctx, path, SetEnabledRequest{Enabled: &enabled}, &out, httpx.WithBearer(token))
	return out.User, err
}

func (c *Client) Stats(ctx context.Context, token string) (auth.Stats, error) {
	var out StatsResponse
	_, err := c.http.Get(ctx, "/admin/security/stats", &out, httpx.WithBearer(token))
	return out.Stats, err
}
