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
	containerName = "omnikv-postgres-test"
	hostPort      = "55432"
	user          = "omnikv"
	password      = "secret"
	dbName        = "omnikv_test"
)

var (
	once     sync.Once
	setupErr error
)

// Addr returns host:port for connecting to the test Postgres instance.
func Addr() string { return "127.0.0.1:" + hostPort }

// DSN returns a lib/pq connection string. OMNIKV_TEST_POSTGRES_DSN overrides
// it and disables the container.
func DSN() string {
	if dsn := os.Getenv("OMNIKV_TEST_POSTGRES_DSN"); dsn != "" {
		return dsn
	}
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable", user, password, Addr(), dbName)
}

// Setup launches a disposable Postgres container and waits until it accepts
// connections. Concurrent and repeated calls share one container.
func Setup() error {
	once.Do(func() {
		if os.Getenv("OMNIKV_TEST_POSTGRES_DSN") != "" {
			setupErr = waitForPostgres(DSN(), 10*time.Second)
			return
		}
		if _, err := exec.LookPath("docker"); err != nil {
			setupErr = fmt.Errorf("docker executable not found: %w", err)
			return
		}
		_ = stopContainer()
		if err := runDocker("run", "-d", "--rm",
			"--name", containerName,
			"-e", "POSTGRES_USER="+user,
			"-e", "POSTGRES_PASSWORD="+password,
			"-e", "POSTGRES_DB="+dbName,
			"-p", hostPort+":5432",
			defaultImage,
		); err != nil {
			setupErr = err
			return
		}
		setupErr = waitForPostgres(DSN(), 30*time.Second)
	})
	return setupErr
}

// Teardown stops the container launched by Setup.
func Teardown() error {
	if setupErr != nil || os.Getenv("OMNIKV_TEST_POSTGRES_DSN") != "" {
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
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		err := db.PingContext(ctx)
		cancel()
		if err == nil {
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return errors.New("postgres did not become ready in time")
}
