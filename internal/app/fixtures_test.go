package app_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"respondeo-service/internal/app"
	"respondeo-service/internal/cache"
	"respondeo-service/internal/domain"
	"respondeo-service/internal/infra/memory"
)

type testEnv struct {
	now          time.Time
	store        *memory.Store
	cache        *memory.Cache
	notifier     *app.Notifier
	attempts     *app.AttemptService
	leaderboards *app.LeaderboardService
	quizzes      *app.QuizService
}

func newTestEnv(t *testing.T, quizzes ...domain.Quiz) *testEnv {
	t.Helper()
	env := &testEnv{
		now:      time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC),
		store:    memory.NewStoreWithQuizzes(quizzes...),
		notifier: app.NewNotifier(),
	}
	env.cache = memory.NewCacheWithClock(env.clock)
	layer := cache.NewLayer(env.cache, time.Second, zap.NewNop())
	ttls := cache.DefaultTTLs()

	env.attempts = app.NewAttemptService(env.store, layer, env.notifier, zap.NewNop()).WithClock(env.clock)
	env.leaderboards = app.NewLeaderboardService(env.store, layer, ttls).WithClock(env.clock)
	env.quizzes = app.NewQuizService(env.store, layer, ttls, env.notifier, zap.NewNop()).WithClock(env.clock).WithSeed(7)
	return env
}

func (e *testEnv) clock() time.Time {
	return e.now
}

func (e *testEnv) advance(d time.Duration) {
	e.now = e.now.Add(d)
}

// sampleQuiz has three questions q1..q3; answer "<question>-a" is the correct one.
func sampleQuiz(id string, maxAttempts int) domain.Quiz {
	quiz := domain.Quiz{
		ID:          id,
		Title:       "Quiz " + id,
		AuthorID:    "author-1",
		MaxAttempts: maxAttempts,
		CreatedAt:   time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC),
	}
	for i := 1; i <= 3; i++ {
		qid := fmt.Sprintf("q%d", i)
		quiz.Questions = append(quiz.Questions, domain.Question{
			ID:     qid,
			QuizID: id,
			Text:   fmt.Sprintf("Question %d", i),
			Order:  i - 1,
			Answers: []domain.Answer{
				{ID: qid + "-a", QuestionID: qid, Text: "right", IsCorrect: true},
				{ID: qid + "-b", QuestionID: qid, Text: "wrong"},
				{ID: qid + "-c", QuestionID: qid, Text: "also wrong"},
			},
		})
	}
	return quiz
}

// attemptWith stores a finished attempt directly, bypassing scoring.
func (e *testEnv) attemptWith(t *testing.T, id, quizID, userID string, correct int, timeMs int64) {
	t.Helper()
	e.advance(time.Second)
	attempt := &domain.Attempt{
		ID:             id,
		QuizID:         quizID,
		UserID:         userID,
		CorrectCount:   correct,
		TotalQuestions: 10,
		TotalTimeMs:    timeMs,
		CompletedAt:    e.now,
	}
	if err := e.store.CreateAttempt(context.Background(), attempt, 100); err != nil {
		t.Fatalf("seed attempt: %v", err)
	}
}
