package memory

import (
	"context"
	"errors"
	"testing"

	"future-kids-game-service/internal/app"
	"future-kids-game-service/internal/domain"
)

func storeTestSession(id, code string) *app.Session {
	quiz := domain.Quiz{ID: "quiz-1", Questions: []domain.Question{
		{ID: "q1", Type: domain.QuestionTrueFalse, CorrectAnswer: "true"},
	}}
	return app.NewSession(id, code, quiz, "teacher-1", "", domain.GameSettings{})
}

func TestSessionStoreLifecycle(t *testing.T) {
	store := NewSessionStore(0, nil)
	ctx := context.Background()

	session := storeTestSession("sess-1", "111111")
	if err := store.Add(ctx, session); err != nil {
		t.Fatalf("add: %v", err)
	}

	if _, ok := store.Get("sess-1"); !ok {
		t.Fatalf("expected session by id")
	}
	if _, ok := store.GetByCode("111111"); !ok {
		t.Fatalf("expected session by code")
	}
	if codes := store.ActiveCodes(); len(codes) != 1 || codes[0] != "111111" {
		t.Fatalf("expected active code, got %v", codes)
	}

	store.Remove(ctx, "sess-1")
	if _, ok := store.Get("sess-1"); ok {
		t.Fatalf("expected session removed")
	}
	if _, ok := store.GetByCode("111111"); ok {
		t.Fatalf("expected code released")
	}
}

func TestAddRejectsDuplicateCode(t *testing.T) {
	store := NewSessionStore(0, nil)
	ctx := context.Background()

	first := storeTestSession("sess-1", "123456")
	if err := store.Add(ctx, first); err != nil {
		t.Fatalf("add first: %v", err)
	}

	second := storeTestSession("sess-2", "123456")
	if err := store.Add(ctx, second); !errors.Is(err, app.ErrCodeConflict) {
		t.Fatalf("expected code conflict, got %v", err)
	}
	if got, ok := store.GetByCode("123456"); !ok || got.ID() != "sess-1" {
		t.Fatalf("code must keep resolving to the first session, got %v ok=%v", got, ok)
	}
	if _, ok := store.Get("sess-2"); ok {
		t.Fatalf("losing session must not be registered")
	}

	// Once the owner finishes, the code is free again.
	if _, err := first.Join("u1", "Alice", ""); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := first.End(); err != nil {
		t.Fatalf("end: %v", err)
	}
	if err := store.Add(ctx, second); err != nil {
		t.Fatalf("add after completion: %v", err)
	}
	if got, ok := store.GetByCode("123456"); !ok || got.ID() != "sess-2" {
		t.Fatalf("expected reclaimed code to resolve to sess-2")
	}
}

func TestGetByCodeSkipsCompletedSessions(t *testing.T) {
	store := NewSessionStore(0, nil)
	ctx := context.Background()

	session := storeTestSession("sess-1", "222222")
	if err := store.Add(ctx, session); err != nil {
		t.Fatalf("add: %v", err)
	}

	// Drive the session to completed through its own state machine.
	if _, err := session.Join("u1", "Alice", ""); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := session.End(); err != nil {
		t.Fatalf("end: %v", err)
	}

	if _, ok := store.GetByCode("222222"); ok {
		t.Fatalf("completed session must not resolve by code")
	}
	// The id lookup still works until eviction.
	if _, ok := store.Get("sess-1"); !ok {
		t.Fatalf("expected session by id")
	}
}
