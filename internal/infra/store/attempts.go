package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"respondeo-service/internal/domain"
)

func (s *Store) CountAttempts(ctx context.Context, filter domain.AttemptFilter) (int, error) {
	return s.db.NewSelect().
		Model((*attemptRow)(nil)).
		Apply(attemptsMatching(filter)).
		Count(ctx)
}

// CreateAttempt re-counts, numbers and inserts the attempt with its answers in
// one transaction. On PostgreSQL the transaction first takes an advisory lock
// keyed by quiz and user, so concurrent submissions of one user run one after
// another. UNIQUE(quiz_id, user_id, attempt_number) still rejects a duplicate
// number if two writers ever read the same state.
func (s *Store) CreateAttempt(ctx context.Context, attempt *domain.Attempt, maxAttempts int) error {
	row, answers := newAttemptRows(attempt)

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		number, err := s.reserveAttemptNumber(ctx, tx, attempt.QuizID, attempt.UserID, maxAttempts)
		if err != nil {
			return err
		}
		row.AttemptNumber = number
		return insertAttempt(ctx, tx, row, answers)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAttemptLimitExceeded
		}
		return err
	}

	attempt.AttemptNumber = row.AttemptNumber
	return nil
}

// reserveAttemptNumber returns the number the next attempt of userID on quizID
// gets, or ErrAttemptLimitExceeded. Count and highest number come from one
// statement so they describe the same snapshot.
func (s *Store) reserveAttemptNumber(ctx context.Context, tx bun.Tx, quizID, userID string, maxAttempts int) (int, error) {
	if tx.Dialect().Name() == dialect.PG {
		if _, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", quizID+":"+userID).Exec(ctx); err != nil {
			return 0, fmt.Errorf("lock attempts: %w", err)
		}
	}

	var used, last int
	if err := tx.NewSelect().
		Model((*attemptRow)(nil)).
		ColumnExpr("COUNT(*)").
		ColumnExpr("COALESCE(MAX(at.attempt_number), 0)").
		Apply(attemptsMatching(domain.AttemptFilter{QuizID: quizID, UserID: userID})).
		Scan(ctx, &used, &last); err != nil {
		return 0, err
	}
	if used >= maxAttempts {
		return 0, domain.ErrAttemptLimitExceeded
	}
	return last + 1, nil
}

func insertAttempt(ctx context.Context, tx bun.Tx, row *attemptRow, answers []*attemptAnswerRow) error {
	if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
		return err
	}
	if len(answers) > 0 {
		if _, err := tx.NewInsert().Model(&answers).Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error) {
	row := new(attemptRow)
	err := s.db.NewSelect().
		Model(row).
		Relation("Answers", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("aa.display_order ASC", "aa.id ASC")
		}).
		Where("at.id = ?", attemptID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) ListAttempts(ctx context.Context, filter domain.AttemptFilter, offset, limit int) ([]domain.Attempt, error) {
	var rows []*attemptRow
	err := s.db.NewSelect().
		Model(&rows).
		Apply(attemptsMatching(filter)).
		Order("at.completed_at DESC", "at.id DESC").
		Offset(offset).
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	attempts := make([]domain.Attempt, 0, len(rows))
	for _, row := range rows {
		attempts = append(attempts, row.toDomain())
	}
	return attempts, nil
}

func (s *Store) DeleteAttempt(ctx context.Context, attemptID string) error {
	res, err := s.db.NewDelete().
		Model((*attemptRow)(nil)).
		Where("id = ?", attemptID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrAttemptNotFound
	}
	return nil
}

func attemptsMatching(filter domain.AttemptFilter) func(*bun.SelectQuery) *bun.SelectQuery {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		if filter.QuizID != "" {
			q = q.Where("at.quiz_id = ?", filter.QuizID)
		}
		if filter.UserID != "" {
			q = q.Where("at.user_id = ?", filter.UserID)
		}
		return q
	}
}
