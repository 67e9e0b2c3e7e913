package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"respondeo-service/internal/domain"
)

func (s *Store) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	row := new(quizRow)
	err := s.db.NewSelect().
		Model(row).
		Relation("Questions", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("qn.sort_order ASC", "qn.id ASC")
		}).
		Relation("Questions.Answers", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("an.sort_order ASC", "an.id ASC")
		}).
		Where("qz.id = ?", quizID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) ListQuizzes(ctx context.Context, filter domain.QuizFilter, offset, limit int) ([]domain.QuizSummary, error) {
	var rows []quizSummaryRow
	err := s.db.NewSelect().
		Model(&rows).
		ColumnExpr("qz.*").
		ColumnExpr("(SELECT COUNT(*) FROM questions AS qn WHERE qn.quiz_id = qz.id) AS question_count").
		Apply(visibleTo(filter)).
		Order("qz.created_at DESC", "qz.id ASC").
		Offset(offset).
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	summaries := make([]domain.QuizSummary, 0, len(rows))
	for i := range rows {
		summaries = append(summaries, rows[i].toDomain())
	}
	return summaries, nil
}

func (s *Store) CountQuizzes(ctx context.Context, filter domain.QuizFilter) (int, error) {
	return s.db.NewSelect().
		Model((*quizRow)(nil)).
		Apply(visibleTo(filter)).
		Count(ctx)
}

// CreateQuiz inserts the quiz with its questions and answers in one transaction.
func (s *Store) CreateQuiz(ctx context.Context, quiz domain.Quiz) error {
	qr, questions, answers := newQuizRows(quiz)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(qr).Exec(ctx); err != nil {
			return err
		}
		if len(questions) > 0 {
			if _, err := tx.NewInsert().Model(&questions).Exec(ctx); err != nil {
				return err
			}
		}
		if len(answers) > 0 {
			if _, err := tx.NewInsert().Model(&answers).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if isUniqueViolation(err) {
		return domain.ErrQuizExists
	}
	return err
}

// DeleteQuiz relies on ON DELETE CASCADE for questions, answers and attempts.
func (s *Store) DeleteQuiz(ctx context.Context, quizID string) error {
	res, err := s.db.NewDelete().
		Model((*quizRow)(nil)).
		Where("id = ?", quizID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

func visibleTo(filter domain.QuizFilter) func(*bun.SelectQuery) *bun.SelectQuery {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		if filter.IncludeUnpublished {
			return q
		}
		return q.Where("(qz.published_at IS NULL OR qz.published_at <= ?)", filter.Now)
	}
}
