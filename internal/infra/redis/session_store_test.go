package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"future-kids-game-service/internal/app"
	"future-kids-game-service/internal/domain"
	"future-kids-game-service/internal/infra/memory"
)

func TestSessionStoreSetsAndClearsCodeKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	inner := memory.NewSessionStore(0, nil)
	defer inner.Stop()
	store := NewSessionStore(inner, client, time.Minute)

	session := app.NewSession("sess-1", "123456", sampleQuiz(), "teacher-1", "", domain.GameSettings{})
	if err := store.Add(context.Background(), session); err != nil {
		t.Fatalf("add: %v", err)
	}
	if !mr.Exists("game:code:123456") {
		t.Fatalf("expected code marker in redis")
	}
	if got, _ := mr.Get("game:code:123456"); got != "sess-1" {
		t.Fatalf("marker should carry the session id, got %q", got)
	}

	// Lookups refresh the marker TTL.
	mr.SetTTL("game:code:123456", time.Second)
	if _, ok := store.GetByCode("123456"); !ok {
		t.Fatalf("expected session by code")
	}
	if ttl := mr.TTL("game:code:123456"); ttl <= time.Second {
		t.Fatalf("expected marker ttl refreshed, got %v", ttl)
	}

	store.Remove(context.Background(), "sess-1")
	if mr.Exists("game:code:123456") {
		t.Fatalf("expected code marker removed")
	}
	if _, ok := store.Get("sess-1"); ok {
		t.Fatalf("expected session removed from inner store")
	}
}
