// Command authctl is a command-line client for authd.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/adeilh/rakh-auth/authapi"
)

const defaultServer = "http://localhost:3000"

type tokenFile struct {
	Token     string    `json:"token"`
	Username  string    `json:"username,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "rakh-auth")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "rakh-auth")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(t tokenFile) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(tokenPath(), b, 0o600)
}

func loadToken() (tokenFile, error) {
	var t tokenFile
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return t, errors.New("not logged in; run authctl login")
		}
		return t, err
	}
	if err := json.Unmarshal(b, &t); err != nil {
		return t, fmt.Errorf("token file %s: %w", tokenPath(), err)
	}
	return t, nil
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `usage: authctl [--server URL] <command> [flags]

commands:
  login -u USER [-p PASSWORD]   authenticate and store the token
  me                            show the current token payload
  refresh                       replace the stored token with a fresh one
  logout                        revoke the stored token
  users                         list principals (ADMIN)
  stats                         show security statistics (ADMIN)`)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	global := pflag.NewFlagSet("authctl", pflag.ContinueOnError)
	global.SetOutput(stderr)
	global.SetInterspersed(false)
	server := global.String("server", envOr("RAKH_AUTH_SERVER", defaultServer), "authd base URL")
	timeout := global.Duration("timeout", 10*time.Second, "request timeout")
	global.Usage = func() { usage(stderr) }
	if err := global.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	rest := global.Args()
	if len(rest) == 0 {
		usage(stderr)
		return 2
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	client := authapi.NewClient(*server)

	var err error
	switch cmd := rest[0]; cmd {
	case "login":
		err = login(ctx, client, rest[1:], stdout, stderr)
	case "me":
		err = withToken(func(t tokenFile) error {
			p, err := client.Me(ctx, t.Token)
			if err != nil {
				return err
			}
			return printJSON(stdout, p)
		})
	case "refresh":
		err = withToken(func(t tokenFile) error {
			resp, err := client.Refresh(ctx, t.Token)
			if err != nil {
				return err
			}
			t.Token, t.ExpiresAt = resp.Token, time.Unix(resp.ExpiresAt, 0).UTC()
			if err := saveToken(t); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "token refreshed, expires %s\n", t.ExpiresAt.Format(time.RFC3339))
			return nil
		})
	case "logout":
		err = withToken(func(t tokenFile) error {
			if err := client.Logout(ctx, t.Token); err != nil {
				return err
			}
			fmt.Fprintln(stdout, "logged out")
			return os.Remove(tokenPath())
		})
	case "users":
		err = withToken(func(t tokenFile) error {
			users, err := client.Users(ctx, t.Token)
			if err != nil {
				return err
			}
			return printJSON(stdout, users)
		})
	case "stats":
		err = withToken(func(t tokenFile) error {
			stats, err := client.Stats(ctx, t.Token)
			if err != nil {
				return err
			}
			return printJSON(stdout, stats)
		})
	case "help":
		usage(stdout)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		usage(stderr)
		return 2
	}
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

func login(ctx context.Context, client *authapi.Client, args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("login", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	username := fs.StringP("username", "u", "", "username")
	password := fs.StringP("password", "p", os.Getenv("RAKH_AUTH_PASSWORD"), "password (or RAKH_AUTH_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*username) == "" || *password == "" {
		return errors.New("login needs --username and --password")
	}

	resp, err := client.Login(ctx, *username, *password)
	if err != nil {
		return err
	}
	t := tokenFile{Token: resp.Token, Username: resp.User.Username, ExpiresAt: time.Unix(resp.ExpiresAt, 0).UTC()}
	if err := saveToken(t); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "logged in as %s (%s)\n", resp.User.Username, strings.Join(resp.User.Roles, ", "))
	return nil
}

func withToken(fn func(tokenFile) error) error {
	t, err := loadToken()
	if err != nil {
		return err
	}
	return fn(t)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
