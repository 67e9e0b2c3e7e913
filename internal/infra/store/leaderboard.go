package store

import (
	"context"

	"respondeo-service/internal/domain"
)

func (s *Store) QuizLeaderboard(ctx context.Context, quizID string, offset, limit int) ([]domain.RankedEntry, error) {
	var rows []*attemptRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("at.quiz_id = ?", quizID).
		Order("at.correct_count DESC", "at.total_time_ms ASC", "at.completed_at ASC", "at.id ASC").
		Offset(offset).
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]domain.RankedEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.toRankedEntry())
	}
	return entries, nil
}

func (s *Store) GlobalLeaderboard(ctx context.Context, offset, limit int) ([]domain.GlobalRankedEntry, error) {
	var rows []globalRow
	err := s.db.NewSelect().
		TableExpr("attempts AS at").
		ColumnExpr("at.user_id").
		ColumnExpr("CAST(SUM(at.correct_count) AS BIGINT) AS total_correct").
		ColumnExpr("CAST(SUM(at.total_time_ms) AS BIGINT) AS total_time_ms").
		ColumnExpr("COUNT(DISTINCT at.quiz_id) AS quizzes_played").
		GroupExpr("at.user_id").
		OrderExpr("SUM(at.correct_count) DESC").
		OrderExpr("SUM(at.total_time_ms) ASC").
		OrderExpr("at.user_id ASC").
		Offset(offset).
		Limit(limit).
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}
	entries := make([]domain.GlobalRankedEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, domain.GlobalRankedEntry{
			UserID:        row.UserID,
			TotalCorrect:  row.TotalCorrect,
			TotalTimeMs:   row.TotalTimeMs,
			QuizzesPlayed: row.QuizzesPlayed,
		})
	}
	return entries, nil
}

func (s *Store) CountPlayers(ctx context.Context) (int, error) {
	var n int
	err := s.db.NewSelect().
		TableExpr("attempts AS at").
		ColumnExpr("COUNT(DISTINCT at.user_id)").
		Scan(ctx, &n)
	return n, err
}
