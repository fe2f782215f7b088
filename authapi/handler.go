// Package authapi exposes an Authenticator over HTTP.
package authapi

import (
	"time"

	"go.uber.org/zap"

	"github.com/adeilh/rakh-auth/auth"
	"github.com/adeilh/rakh-auth/httpx"
)

// Role names used by the built-in routes.
const (
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"
)

type Handler struct {
	auth *auth.Authenticator
	log  *zap.Logger
	now  func() time.Time
}

type Option func(*Handler)

func WithLogger(log *zap.Logger) Option {
	return func(h *Handler) {
		if log != nil {
			h.log = log
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

func NewHandler(a *auth.Authenticator, opts ...Option) *Handler {
	h := &Handler{auth: a, log: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Register mounts every route on app.
func (h *Handler) Register(app *httpx.App) {
	authenticated := httpx.AuthMiddleware(h.auth.RequireCapability())
	users := httpx.AuthMiddleware(h.auth.RequireCapability(RoleUser))
	admins := httpx.AuthMiddleware(h.auth.RequireCapability(RoleAdmin))

	app.GET("/healthz", h.health)

	a := app.Group("/auth")
	a.POST("/login", h.login)
	a.POST("/logout", h.logout, authenticated)
	a.GET("/me", h.me, authenticated)
	a.POST("/refresh", h.refresh, authenticated)

	app.GET("/public/info", h.publicInfo)

	u := app.Group("/user")
	u.GET("/profile", h.profile, authenticated)
	u.GET("/dashboard", h.dashboard, users)

	adm := app.Group("/admin", admins)
	adm.GET("/users", h.listUsers)
	adm.POST("/users", h.createUser)
	adm.PATCH("/users/:username", h.setEnabled)
	adm.GET("/security/stats", h.stats)
}

func (h *Handler) health(c httpx.Context) error {
	return c.JSON(httpx.StatusOK, HealthResponse{Status: "ok"})
}

func (h *Handler) login(c httpx.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return httpx.HTTPError(httpx.StatusBadRequest, msgInvalidBody)
	}
	id, secret := req.credentials()
	if id == "" || secret == "" {
		return httpx.HTTPError(httpx.StatusBadRequest, msgCredentialsRequired)
	}

	token, err := h.auth.Authenticate(c.Request().Context(), id, secret)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(httpx.StatusOK, LoginResponse{
		Message:   "login successful",
		Token:     token.Raw,
		ExpiresAt: token.Payload.ExpiresAt,
		User: UserInfo{
			Username: token.Payload.Username,
			Email:    token.Payload.Email,
			Roles:    token.Payload.Roles,
		},
	})
}

func (h *Handler) logout(c httpx.Context) error {
	ctx := c.Request().Context()
	raw, _ := auth.RawTokenFromContext(ctx)
	payload, _ := auth.PayloadFromContext(ctx)
	if err := h.auth.Revoke(ctx, raw); err != nil {
		return httpError(err)
	}
	h.log.Info("logout", zap.String("username", payload.Username))
	return c.JSON(httpx.StatusOK, MessageResponse{Message: "logout successful"})
}

func (h *Handler) me(c httpx.Context) error {
	payload, _ := auth.PayloadFromContext(c.Request().Context())
	return c.JSON(httpx.StatusOK, MeResponse{User: payload})
}

func (h *Handler) refresh(c httpx.Context) error {
	ctx := c.Request().Context()
	raw, _ := auth.RawTokenFromContext(ctx)
	token, err := h.auth.Refresh(ctx, raw)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(httpx.StatusOK, RefreshResponse{
		Message:   "token refreshed",
		Token:     token.Raw,
		ExpiresAt: token.Payload.ExpiresAt,
	})
}

func (h *Handler) publicInfo(c httpx.Context) error {
	return c.JSON(httpx.StatusOK, PublicInfoResponse{
		Message:   "public information",
		Timestamp: h.timestamp(),
	})
}

func (h *Handler) profile(c httpx.Context) error {
	payload, _ := auth.PayloadFromContext(c.Request().Context())
	return c.JSON(httpx.StatusOK, ProfileResponse{
		Message:   "user profile",
		User:      payload,
		Timestamp: h.timestamp(),
	})
}

func (h *Handler) dashboard(c httpx.Context) error {
	payload, _ := auth.PayloadFromContext(c.Request().Context())
	return c.JSON(httpx.StatusOK, DashboardResponse{
		Message: "user dashboard",
		User:    payload,
		Data:    DashboardData{Notifications: 5, Tasks: 12, Messages: 3},
	})
}

func (h *Handler) listUsers(c httpx.Context) error {
	principals, err := h.auth.Principals(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	users := make([]auth.Summary, 0, len(principals))
	for _, p := range principals {
		users = append(users, p.Summary())
	}
	return c.JSON(httpx.StatusOK, UsersResponse{
		Message: "user list",
		Users:   users,
		Total:   len(users),
	})
}

func (h *Handler) createUser(c httpx.Context) error {
	var req CreateUserRequest
	if err := c.Bind(&req); err != nil {
		return httpx.HTTPError(httpx.StatusBadRequest, msgInvalidBody)
	}
	if req.Username == "" || req.Password == "" || req.Email == "" {
		return httpx.HTTPError(httpx.StatusBadRequest, msgCreateFieldsMissing)
	}
	roles := req.Roles
	if len(roles) == 0 {
		roles = []string{RoleUser}
	}

	ctx := c.Request().Context()
	p, err := h.auth.RegisterPrincipal(ctx, req.Username, req.Password, req.Email, roles)
	if err != nil {
		return httpError(err)
	}
	if admin, ok := auth.PayloadFromContext(ctx); ok {
		h.log.Info("user created", zap.String("username", p.Identifier), zap.String("by", admin.Username))
	}
	return c.JSON(httpx.StatusCreated, CreateUserResponse{
		Message: "user created",
		User:    UserInfo{Username: p.Identifier, Email: p.Email, Roles: p.Roles},
	})
}

func (h *Handler) setEnabled(c httpx.Context) error {
	var req SetEnabledRequest
	if err := c.Bind(&req); err != nil {
		return httpx.HTTPError(httpx.StatusBadRequest, msgInvalidBody)
	}
	if req.Enabled == nil {
		return httpx.HTTPError(httpx.StatusBadRequest, msgEnabledRequired)
	}
	p, err := h.auth.SetEnabled(c.Request().Context(), c.Param("username"), *req.Enabled)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(httpx.StatusOK, UserResponse{Message: "user updated", User: p.Summary()})
}

func (h *Handler) stats(c httpx.Context) error {
	stats, err := h.auth.Stats(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(httpx.StatusOK, StatsResponse{Message: "security statistics", Stats: stats})
}

func (h *Handler) timestamp() string {
	return h.now().UTC().Format(time.RFC3339)
}
