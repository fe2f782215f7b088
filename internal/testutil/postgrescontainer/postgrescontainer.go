// Package postgrescontainer starts a throwaway PostgreSQL container for
// integration tests. Setup fails fast when docker is unavailable so callers
// can skip.
package postgrescontainer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

const (
	defaultImage  = "postgres:16-alpine"
	containerName = "rakh-auth-postgres-test"
	hostPort      = "55433"
	user          = "rakh"
	password      = "secret"
	dbName        = "rakh_auth_test"
)

var (
	once     sync.Once
	setupErr error
	external bool
)

// DSN returns the lib/pq connection string. RAKH_AUTH_TEST_POSTGRES_DSN
// points the tests at an existing server instead of a container.
func DSN() string {
	if dsn := os.Getenv("RAKH_AUTH_TEST_POSTGRES_DSN"); dsn != "" {
		return dsn
	}
	return fmt.Sprintf("postgres://%s:%s@127.0.0.1:%s/%s?sslmode=disable", user, password, hostPort, dbName)
}

// Setup launches the container once per test binary.
func Setup() error {
	once.Do(func() {
		if os.Getenv("RAKH_AUTH_TEST_POSTGRES_DSN") != "" {
			external = true
			setupErr = waitForPostgres(DSN(), 10*time.Second)
			return
		}
		if _, err := exec.LookPath("docker"); err != nil {
			setupErr = fmt.Errorf("docker executable not found: %w", err)
			return
		}
		_ = stopContainer()
		image := os.Getenv("RAKH_AUTH_TEST_POSTGRES_IMAGE")
		if image == "" {
			image = defaultImage
		}
		if err := runDocker("run", "-d", "--rm",
			"--name", containerName,
			"-e", "POSTGRES_USER="+user,
			"-e", "POSTGRES_PASSWORD="+password,
			"-e", "POSTGRES_DB="+dbName,
			"-p", hostPort+":5432",
			image,
		); err != nil {
			setupErr = err
			return
		}
		setupErr = waitForPostgres(DSN(), 30*time.Second)
	})
	return setupErr
}

// Teardown stops the container started by Setup.
func Teardown() error {
	if setupErr != nil || external {
		return setupErr
	}
	return stopContainer()
}

func stopContainer() error {
	output, err := exec.Command("docker", "stop", containerName).CombinedOutput()
	if err != nil {
		if strings.Contains(string(output), "No such container") {
			return nil
		}
		return fmt.Errorf("docker stop failed: %w: %s", err, output)
	}
	return nil
}

func runDocker(args ...string) error {
	output, err := exec.Command("docker", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("docker %s failed: %w: %s", args[0], err, output)
	}
	return nil
}

func waitForPostgres(dsn string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		err := func() error {
			db, err := sql.Open("postgres", dsn)
			if err != nil {
				return err
			}
			defer db.Close()
			return db.PingContext(ctx)
		}()
		cancel()
		if err == nil {
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return errors.New("postgres did not become ready in time")
}
