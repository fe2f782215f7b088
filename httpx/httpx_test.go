package httpx

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestServerAndClientRoundTrip(t *testing.T) {
	server := NewServer()
	server.RegisterRoutes(func(a *App) {
		a.GET("/ping", func(c Context) error {
			return c.JSON(StatusOK, map[string]string{"message": "pong"})
		})
	})

	ts := NewServerTestServer(server)
	defer ts.Close()

	client := NewClient(WithBaseURL(ts.BaseURL()))

	var body struct {
		Message string `json:"message"`
	}
	resp, err := client.Get(context.Background(), "/ping", &body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode() != StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode())
	}
	if body.Message != "pong" {
		t.Fatalf("unexpected body: %#v", body)
	}
	if resp.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
	if resp.Header().Get("X-Frame-Options") != "DENY" || resp.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing security headers: %v", resp.Header())
	}
}

func TestErrorHandlerRendersJSON(t *testing.T) {
	server := NewServer()
	server.RegisterRoutes(func(a *App) {
		a.GET("/fail", func(c Context) error {
			return HTTPError(StatusBadRequest, "bad request")
		})
		a.GET("/boom", func(c Context) error {
			return errors.New("database exploded")
		})
	})

	ts := NewServerTestServer(server)
	defer ts.Close()
	client := NewClient(WithBaseURL(ts.BaseURL()))

	resp, err := client.Get(context.Background(), "/fail", nil)
	var rerr *ResponseError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected ResponseError, got %v", err)
	}
	if resp.StatusCode() != StatusBadRequest || rerr.Body.Error != "Bad Request" || rerr.Body.Message != "bad request" {
		t.Fatalf("unexpected error response: %d %+v", resp.StatusCode(), rerr.Body)
	}

	_, err = client.Get(context.Background(), "/boom", nil)
	if !errors.As(err, &rerr) || rerr.StatusCode != StatusInternalError {
		t.Fatalf("expected 500, got %v", err)
	}
	if rerr.Body.Message != "internal server error" {
		t.Fatalf("internal detail leaked: %q", rerr.Body.Message)
	}

	_, err = client.Get(context.Background(), "/missing", nil)
	if !errors.As(err, &rerr) || rerr.StatusCode != StatusNotFound || rerr.Body.Error != "Not Found" {
		t.Fatalf("expected JSON 404, got %v", err)
	}
}

func TestAuthMiddlewareBridge(t *testing.T) {
	type ctxKey struct{}
	guard := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer value" {
				w.WriteHeader(StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, "alice")))
		})
	}

	server := NewServer()
	server.RegisterRoutes(func(a *App) {
		a.GET("/secure", func(c Context) error {
			who, _ := c.Request().Context().Value(ctxKey{}).(string)
			return c.JSON(StatusOK, map[string]string{"user": who})
		}, AuthMiddleware(guard))
		a.GET("/secure-fail", func(c Context) error {
			return HTTPError(StatusConflict, "downstream error")
		}, AuthMiddleware(guard))
		a.GET("/unguarded", func(c Context) error { return c.NoContent(StatusOK) }, AuthMiddleware(nil))
	})

	ts := NewServerTestServer(server)
	defer ts.Close()
	client := NewClient(WithBaseURL(ts.BaseURL()))

	var out map[string]string
	resp, err := client.Get(context.Background(), "/secure", &out, WithBearer("value"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode() != StatusOK || out["user"] != "alice" {
		t.Fatalf("unexpected response %d %v", resp.StatusCode(), out)
	}

	resp, _ = client.Get(context.Background(), "/secure", nil)
	if resp.StatusCode() != StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode())
	}

	resp, _ = client.Get(context.Background(), "/secure-fail", nil, WithBearer("value"))
	if resp.StatusCode() != StatusConflict {
		t.Fatalf("handler error must reach the error handler, got %d", resp.StatusCode())
	}

	resp, _ = client.Get(context.Background(), "/unguarded", nil)
	if resp.StatusCode() != StatusUnauthorized {
		t.Fatalf("nil guard must reject, got %d", resp.StatusCode())
	}
}

func TestValidatorMiddleware(t *testing.T) {
	validator := func(c Context) error {
		if c.Request().Header.Get("X-Allow") != "yes" {
			return HTTPError(StatusBadRequest, "blocked")
		}
		return nil
	}
	server := NewServer(WithValidators(validator))
	server.RegisterRoutes(func(a *App) {
		a.GET("/secure", func(c Context) error { return c.NoContent(StatusOK) })
	})

	ts := NewServerTestServer(server)
	defer ts.Close()
	client := NewClient(WithBaseURL(ts.BaseURL()))

	if _, err := client.Get(context.Background(), "/secure", nil); err == nil {
		t.Fatalf("expected validation error")
	}
	resp, err := client.Get(context.Background(), "/secure", nil, WithRequestHeaders(map[string]string{"X-Allow": "yes"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode() != StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode())
	}
}

func TestRateLimit(t *testing.T) {
	server := NewServer(WithRateLimit(RateLimit{Requests: 2, Window: time.Hour}))
	server.RegisterRoutes(func(a *App) {
		a.GET("/ping", func(c Context) error { return c.NoContent(StatusOK) })
	})
	ts := NewServerTestServer(server)
	defer ts.Close()
	client := NewClient(WithBaseURL(ts.BaseURL()))

	for i := 0; i < 2; i++ {
		if _, err := client.Get(context.Background(), "/ping", nil); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	resp, err := client.Get(context.Background(), "/ping", nil)
	if err == nil || resp.StatusCode() != StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", err)
	}
}

func TestRequestLoggerLevels(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	server := NewServer(WithLogger(zap.New(core)))
	server.RegisterRoutes(func(a *App) {
		a.GET("/ok", func(c Context) error { return c.NoContent(StatusOK) })
		a.GET("/denied", func(c Context) error { return HTTPError(StatusForbidden, "no") })
	})
	ts := NewServerTestServer(server)
	defer ts.Close()
	client := NewClient(WithBaseURL(ts.BaseURL()))

	_, _ = client.Get(context.Background(), "/ok", nil)
	_, _ = client.Get(context.Background(), "/denied", nil)

	if n := logs.FilterMessage("request").FilterLevelExact(zap.WarnLevel).Len(); n != 1 {
		t.Fatalf("expected one warn request log, got %d", n)
	}
	if n := logs.FilterMessage("request").FilterLevelExact(zap.InfoLevel).Len(); n != 1 {
		t.Fatalf("expected one info request log, got %d", n)
	}
}

func TestCORS(t *testing.T) {
	corsCfg := middleware.DefaultCORSConfig
	corsCfg.AllowOrigins = []string{"http://example.com"}
	server := NewServer(WithCORS(&corsCfg))
	server.RegisterRoutes(func(a *App) {
		a.GET("/ping", func(c Context) error { return c.NoContent(StatusOK) })
	})

	ts := NewServerTestServer(server)
	defer ts.Close()

	client := NewClient(WithBaseURL(ts.BaseURL()))
	resp, err := client.Get(context.Background(), "/ping", nil, WithRequestHeaders(map[string]string{
		"Origin": "http://example.com",
	}))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.Header().Get("Access-Control-Allow-Origin") != "http://example.com" {
		t.Fatalf("expected CORS allow origin header, got %q", resp.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestRouterHelpers(t *testing.T) {
	server := NewServer()
	server.RegisterRoutes(func(a *App) {
		api := a.Group("/api")
		api.GET("/ping", func(c Context) error { return c.JSON(StatusOK, map[string]string{"message": "pong"}) })
		api.Group("/v1").PATCH("/item", func(c Context) error { return c.NoContent(StatusNoContent) })
		RegisterRoutes(a,
			Route{Method: "post", Path: "/echo", Handler: func(c Context) error {
				var in map[string]string
				if err := c.Bind(&in); err != nil {
					return HTTPError(StatusBadRequest, "bad json")
				}
				return c.JSON(StatusCreated, in)
			}},
			Route{Method: "GET", Path: "", Handler: nil},
		)
	})

	ts := NewServerTestServer(server)
	defer ts.Close()
	client := NewClient(WithBaseURL(ts.BaseURL()))

	var body map[string]string
	if _, err := client.Get(context.Background(), "/api/ping", &body); err != nil || body["message"] != "pong" {
		t.Fatalf("GET /api/ping: %v %v", err, body)
	}
	resp, err := client.Patch(context.Background(), "/api/v1/item", map[string]string{}, nil)
	if err != nil || resp.StatusCode() != StatusNoContent {
		t.Fatalf("PATCH: %v", err)
	}
	var echoed map[string]string
	resp, err = client.Post(context.Background(), "/echo", map[string]string{"k": "v"}, &echoed)
	if err != nil || resp.StatusCode() != StatusCreated || echoed["k"] != "v" {
		t.Fatalf("POST /echo: %v %v", err, echoed)
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	server := NewServer(WithShutdownTimeout(time.Second))
	server.RegisterRoutes(func(a *App) {
		a.GET("/ping", func(c Context) error { return c.NoContent(StatusOK) })
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, ln) }()

	client := NewClient(WithBaseURL("http://"+ln.Addr().String()), WithRetries(3))
	if _, err := client.Get(context.Background(), "/ping", nil); err != nil {
		t.Fatalf("ping: %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
