package app

import (
	"context"

	"respondeo-service/internal/domain"
)

// QuizStore reads and maintains authored quiz content.
type QuizStore interface {
	// GetQuiz returns the quiz with questions in authoring order and their
	// answers, or domain.ErrQuizNotFound.
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	ListQuizzes(ctx context.Context, filter domain.QuizFilter, offset, limit int) ([]domain.QuizSummary, error)
	CountQuizzes(ctx context.Context, filter domain.QuizFilter) (int, error)
	CreateQuiz(ctx context.Context, quiz domain.Quiz) error
	// DeleteQuiz removes the quiz and, by cascade, its questions, answers and attempts.
	DeleteQuiz(ctx context.Context, quizID string) error
}

// AttemptStore persists scored attempts.
type AttemptStore interface {
	CountAttempts(ctx context.Context, filter domain.AttemptFilter) (int, error)
	// CreateAttempt inserts the attempt and its answers atomically. It assigns
	// AttemptNumber and returns domain.ErrAttemptLimitExceeded when the user
	// already holds maxAttempts attempts on the quiz, including when a
	// concurrent insert won the race.
	CreateAttempt(ctx context.Context, attempt *domain.Attempt, maxAttempts int) error
	// GetAttempt returns the attempt with its answers ordered by display order.
	GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error)
	// ListAttempts returns attempts newest first, without answers.
	ListAttempts(ctx context.Context, filter domain.AttemptFilter, offset, limit int) ([]domain.Attempt, error)
	DeleteAttempt(ctx context.Context, attemptID string) error
}

// LeaderboardStore aggregates attempts into ranked rows. Rows come back in
// rank order without the Rank field populated.
type LeaderboardStore interface {
	// QuizLeaderboard orders a quiz's attempts by correct count descending,
	// then total time ascending, then completion time and id.
	QuizLeaderboard(ctx context.Context, quizID string, offset, limit int) ([]domain.RankedEntry, error)
	// GlobalLeaderboard groups all attempts by user, ordered by total correct
	// descending, then total time ascending, then user id.
	GlobalLeaderboard(ctx context.Context, offset, limit int) ([]domain.GlobalRankedEntry, error)
	// CountPlayers counts distinct users with at least one attempt.
	CountPlayers(ctx context.Context) (int, error)
}

// Store is the relational gateway the use cases run against.
type Store interface {
	QuizStore
	AttemptStore
	LeaderboardStore
}
