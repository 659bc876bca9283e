package workflow_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/JaimeStill/arbiter/internal/workflow"
)

func testLocker(t *testing.T, locker workflow.Locker) {
	t.Helper()
	ctx := context.Background()
	id := uuid.New()

	release, err := locker.Acquire(ctx, id)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	short, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	if _, err := locker.Acquire(short, id); !errors.Is(err, workflow.ErrLeaseHeld) {
		t.Fatalf("second Acquire: err = %v, want ErrLeaseHeld", err)
	}

	other, err := locker.Acquire(ctx, uuid.New())
	if err != nil {
		t.Fatalf("Acquire other id: %v", err)
	}
	other()

	release()
	release()

	again, err := locker.Acquire(ctx, id)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	again()
}

func TestLocalLocker(t *testing.T) {
	testLocker(t, workflow.NewLocalLocker(time.Second))
}

func TestLocalLockerExclusive(t *testing.T) {
	locker := workflow.NewLocalLocker(5 * time.Second)
	id := uuid.New()

	var (
		wg      sync.WaitGroup
		holders atomic.Int32
		maxSeen atomic.Int32
	)
	for range 8 {
		wg.Go(func() {
			release, err := locker.Acquire(context.Background(), id)
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			n := holders.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}
			time.Sleep(5 * time.Millisecond)
			holders.Add(-1)
			release()
		})
	}
	wg.Wait()

	if got := maxSeen.Load(); got != 1 {
		t.Errorf("max concurrent holders = %d, want 1", got)
	}
}

func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("ARBITER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ARBITER_TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })

	testLocker(t, workflow.NewRedisLocker(client, "arbiter:test:lease:", 10*time.Second, time.Second, nil))
}

// scriptedRedis answers SET NX and EVALSHA in process so lease release can be
// observed without a server.
type scriptedRedis struct {
	release func(cmd *redis.Cmd) error
}

func (h scriptedRedis) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h scriptedRedis) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func (h scriptedRedis) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		switch c := cmd.(type) {
		case *redis.BoolCmd:
			c.SetVal(true)
			return nil
		case *redis.Cmd:
			if cmd.Name() == "evalsha" {
				return h.release(c)
			}
		}
		return fmt.Errorf("unexpected command %s", cmd.Name())
	}
}

func TestRedisLockerReleaseLogging(t *testing.T) {
	tests := []struct {
		name    string
		release func(cmd *redis.Cmd) error
		want    string
	}{
		{
			name: "released",
			release: func(cmd *redis.Cmd) error {
				cmd.SetVal(int64(1))
				return nil
			},
		},
		{
			name: "release error",
			release: func(cmd *redis.Cmd) error {
				err := errors.New("connection reset by peer")
				cmd.SetErr(err)
				return err
			},
			want: "lease release failed",
		},
		{
			name: "lease expired",
			release: func(cmd *redis.Cmd) error {
				cmd.SetVal(int64(0))
				return nil
			},
			want: "lease expired before release",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
			t.Cleanup(func() { client.Close() })
			client.AddHook(scriptedRedis{release: tt.release})

			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))
			locker := workflow.NewRedisLocker(client, "arbiter:test:lease:", 10*time.Second, time.Second, logger)

			release, err := locker.Acquire(context.Background(), uuid.New())
			if err != nil {
				t.Fatalf("Acquire: %v", err)
			}
			release()

			out := buf.String()
			if tt.want == "" {
				if out != "" {
					t.Errorf("unexpected log output: %s", out)
				}
				return
			}
			for _, s := range []string{"level=WARN", tt.want, "system=lease", "key=arbiter:test:lease:"} {
				if !strings.Contains(out, s) {
					t.Errorf("log missing %q:\n%s", s, out)
				}
			}
		})
	}
}
