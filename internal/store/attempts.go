package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pavelanni/mockexam/internal/model"
)

// AttemptsKey is the blob key holding the attempt history.
const AttemptsKey = "igcse_attempts"

// ErrCorruptLog is returned by Append when the stored history cannot be parsed.
var ErrCorruptLog = errors.New("attempt log is not valid JSON")

// AttemptLog is the append-only history of exam attempts.
type AttemptLog struct {
	blobs Blobs
	mu    sync.Mutex
}

// NewAttemptLog returns a log persisted in blobs under AttemptsKey.
func NewAttemptLog(blobs Blobs) *AttemptLog {
	return &AttemptLog{blobs: blobs}
}

// ReadAll returns every stored attempt, oldest first.
// A missing or unparseable blob yields an empty history.
func (l *AttemptLog) ReadAll(ctx context.Context) ([]model.ExamAttempt, error) {
	attempts, err := l.read(ctx)
	if errors.Is(err, ErrCorruptLog) {
		slog.Warn("attempt log unparseable, treating as empty", "key", AttemptsKey, "error", err)
		return []model.ExamAttempt{}, nil
	}
	return attempts, err
}

// Recent returns at most n of the newest attempts, oldest first.
func (l *AttemptLog) Recent(ctx context.Context, n int) ([]model.ExamAttempt, error) {
	all, err := l.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

// Append validates a and adds it to the end of the history.
func (l *AttemptLog) Append(ctx context.Context, a model.ExamAttempt) error {
	if err := a.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	attempts, err := l.read(ctx)
	if err != nil {
		return err
	}
	attempts = append(attempts, a)

	data, err := json.Marshal(attempts)
	if err != nil {
		return fmt.Errorf("marshal attempts: %w", err)
	}
	if err := l.blobs.Set(ctx, AttemptsKey, data); err != nil {
		return fmt.Errorf("write attempts: %w", err)
	}
	slog.Info("recorded attempt", "id", a.ID, "subject", a.Subject, "score", a.Score, "max_score", a.MaxScore)
	return nil
}

func (l *AttemptLog) read(ctx context.Context) ([]model.ExamAttempt, error) {
	data, ok, err := l.blobs.Get(ctx, AttemptsKey)
	if err != nil {
		return nil, fmt.Errorf("read attempts: %w", err)
	}
	if !ok || len(data) == 0 {
		return []model.ExamAttempt{}, nil
	}
	var attempts []model.ExamAttempt
	if err := json.Unmarshal(data, &attempts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptLog, err)
	}
	if attempts == nil {
		attempts = []model.ExamAttempt{}
	}
	return attempts, nil
}
