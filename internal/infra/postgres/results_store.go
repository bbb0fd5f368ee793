package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"future-kids-game-service/internal/domain"
)

// ResultsStore persists final game results snapshots as JSONB, keyed by
// session id. Writes are idempotent so best-effort retries stay safe.
type ResultsStore struct {
	pool *pgxpool.Pool
}

func NewResultsStore(pool *pgxpool.Pool) *ResultsStore {
	return &ResultsStore{pool: pool}
}

func (s *ResultsStore) SaveResults(ctx context.Context, results domain.GameResults) error {
	raw, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO game_results (session_id, quiz_id, teacher_id, class_id, completed_at, data)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id) DO UPDATE SET data = EXCLUDED.data, completed_at = EXCLUDED.completed_at`,
		results.SessionID, results.QuizID, results.TeacherID, results.ClassID, results.CompletedAt, raw)
	if err != nil {
		return fmt.Errorf("save results: %w", err)
	}
	return nil
}
