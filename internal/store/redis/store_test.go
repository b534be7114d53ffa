package redis

import (
	"context"
	"os"
	"testing"

	"github.com/dkeye/livepoll/internal/core"
	"github.com/dkeye/livepoll/internal/domain"
	"github.com/dkeye/livepoll/internal/store/storetest"
)

func TestStore(t *testing.T) {
	addr := os.Getenv("LIVEPOLL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("LIVEPOLL_TEST_REDIS_ADDR not set")
	}
	storetest.Run(t, func(t *testing.T) core.RoomStore {
		t.Helper()
		ctx := context.Background()
		s, err := Open(ctx, Options{Addr: addr, Prefix: "livepoll-test-" + domain.NewID()})
		if err != nil {
			t.Fatalf("open redis: %v", err)
		}
		t.Cleanup(func() {
			keys, _ := s.rdb.Keys(ctx, s.prefix+":*").Result()
			if len(keys) > 0 {
				_ = s.rdb.Del(ctx, keys...).Err()
			}
			_ = s.Close()
		})
		return s
	})
}
