package rediscontainer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultImage  = "redis:7-alpine"
	containerName = "omnikv-redis-test"
	hostPort      = "6390"
)

var (
	once     sync.Once
	setupErr error
)

// Addr exposes the Redis host:port combination used by integration tests.
// OMNIKV_TEST_REDIS_ADDR points tests at an already running server.
func Addr() string {
	if addr := os.Getenv("OMNIKV_TEST_REDIS_ADDR"); addr != "" {
		return addr
	}
	return "127.0.0.1:" + hostPort
}

// Setup starts a disposable Redis container and waits until it answers PING.
// It is a no-op when OMNIKV_TEST_REDIS_ADDR is set.
func Setup() error {
	once.Do(func() {
		if os.Getenv("OMNIKV_TEST_REDIS_ADDR") != "" {
			setupErr = waitForRedis(Addr(), 5*time.Second)
			return
		}
		if _, err := exec.LookPath("docker"); err != nil {
			setupErr = fmt.Errorf("docker executable not found: %w", err)
			return
		}
		_ = stopContainer()
		if err := runDocker("run", "-d", "--rm",
			"--name", containerName,
			"-p", hostPort+":6379",
			image(),
		); err != nil {
			setupErr = err
			return
		}
		setupErr = waitForRedis(Addr(), 10*time.Second)
	})
	return setupErr
}

// Teardown stops the Redis container if Setup started one.
func Teardown() error {
	if setupErr != nil || os.Getenv("OMNIKV_TEST_REDIS_ADDR") != "" {
		return setupErr
	}
	return stopContainer()
}

func image() string {
	if img := os.Getenv("OMNIKV_TEST_REDIS_IMAGE"); img != "" {
		return img
	}
	return defaultImage
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

func waitForRedis(addr string, timeout time.Duration) error {
	client := goredis.NewClient(&goredis.Options{Addr: addr, DialTimeout: 200 * time.Millisecond})
	defer client.Close()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
		err := client.Ping(ctx).Err()
		cancel()
		if err == nil {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return errors.New("redis did not respond to ping")
}
