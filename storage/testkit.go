package storage

import (
	"context"
	"os"
	"testing"

	"TC/configs"
)

// Testkit dials a scratch redis database, wipes session keys, and returns a
// fresh store. Tests are skipped when no server is reachable so the suite
// still runs on machines without redis.
func Testkit(t *testing.T) *RedisStore {
	t.Helper()
	src, err := NewSource(testRedisLink())
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	flushSessionKeys(t, src)
	t.Cleanup(func() {
		flushSessionKeys(t, src)
		_ = src.Close()
	})
	return NewRedisStore(src)
}

func testRedisLink() string {
	if v := os.Getenv("TC_TEST_REDIS"); v != "" {
		return v
	}
	// db 9 keeps test churn away from any local deployment
	return "redis://127.0.0.1:6379/9"
}

func flushSessionKeys(t *testing.T, src *Source) {
	t.Helper()
	ctx := context.Background()
	for _, pattern := range []string{globalKeyPattern, branchKeyPrefix + "*", branchListKeyPrefix + "*", statusKeyPrefix + "*"} {
		cursor := uint64(0)
		for {
			keys, next, err := src.Client().Scan(ctx, cursor, pattern, int64(configs.ScanBatchHint)).Result()
			if err != nil {
				t.Fatalf("scan %v: %v", pattern, err)
			}
			if len(keys) > 0 {
				if err = src.Client().Del(ctx, keys...).Err(); err != nil {
					t.Fatalf("del: %v", err)
				}
			}
			cursor = next
			if cursor == 0 {
				break
			}
		}
	}
}
