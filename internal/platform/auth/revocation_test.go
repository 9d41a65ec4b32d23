package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestMemoryRevocationStore_RevokeAndCheck(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRevocationStore(time.Hour)
	defer store.Close()

	_ = store.Revoke(ctx, "jti-1", time.Now().Add(time.Hour))

	revoked, err := store.IsRevoked(ctx, "jti-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !revoked {
		t.Error("expected jti-1 to be revoked")
	}

	revoked, _ = store.IsRevoked(ctx, "jti-unknown")
	if revoked {
		t.Error("expected unknown JTI to not be revoked")
	}
}

func TestMemoryRevocationStore_Cleanup(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRevocationStore(time.Hour)
	defer store.Close()

	_ = store.Revoke(ctx, "expired", time.Now().Add(-time.Minute))
	_ = store.Revoke(ctx, "live", time.Now().Add(time.Hour))

	store.cleanup(time.Now())

	if store.Count() != 1 {
		t.Errorf("expected 1 entry after cleanup, got %d", store.Count())
	}
	if revoked, _ := store.IsRevoked(ctx, "live"); !revoked {
		t.Error("expected live token to remain revoked")
	}
}

func TestMemoryRevocationStore_CloseTwice(t *testing.T) {
	store := NewMemoryRevocationStore(time.Millisecond)
	store.Close()
	store.Close()
}

func TestMemoryRevocationStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRevocationStore(time.Hour)
	defer store.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			jti := time.Now().String() + string(rune('a'+i%26))
			_ = store.Revoke(ctx, jti, time.Now().Add(time.Hour))
			_, _ = store.IsRevoked(ctx, jti)
		}(i)
	}
	wg.Wait()

	if store.Count() == 0 {
		t.Error("expected revocations to be recorded")
	}
}

var _ RevocationStore = (*MemoryRevocationStore)(nil)
var _ RevocationStore = (*RedisRevocationStore)(nil)
