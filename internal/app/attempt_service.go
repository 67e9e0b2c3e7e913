package app

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"respondeo-service/internal/cache"
	"respondeo-service/internal/domain"
	"respondeo-service/internal/metrics"
)

// AttemptService scores submissions and serves attempt reads.
type AttemptService struct {
	store    Store
	cache    *cache.Layer
	notifier *Notifier
	log      *zap.Logger
	now      func() time.Time
}

func NewAttemptService(store Store, layer *cache.Layer, notifier *Notifier, log *zap.Logger) *AttemptService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AttemptService{
		store:    store,
		cache:    layer,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

// WithClock is test-only for deterministic completion timestamps.
func (s *AttemptService) WithClock(now func() time.Time) *AttemptService {
	s.now = now
	return s
}

// SubmitAttempt validates, scores and persists one play-through. The quiz is
// always read from the store, never from the cache. Leaderboard caches are
// invalidated before it returns.
func (s *AttemptService) SubmitAttempt(ctx context.Context, sub domain.Submission) (domain.Attempt, error) {
	if err := validateSubmission(sub); err != nil {
		metrics.AttemptsSubmitted.WithLabelValues("invalid").Inc()
		return domain.Attempt{}, err
	}

	quiz, err := s.store.GetQuiz(ctx, sub.QuizID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.AttemptsSubmitted.WithLabelValues("not_found").Inc()
		}
		return domain.Attempt{}, err
	}

	// Fast path only. The store re-checks inside the insert transaction.
	used, err := s.store.CountAttempts(ctx, domain.AttemptFilter{QuizID: quiz.ID, UserID: sub.UserID})
	if err != nil {
		return domain.Attempt{}, err
	}
	if used >= quiz.MaxAttempts {
		metrics.AttemptsSubmitted.WithLabelValues("limit_exceeded").Inc()
		return domain.Attempt{}, domain.ErrAttemptLimitExceeded
	}

	answers, correct := scoreSubmission(quiz, sub.Answers)
	attempt := domain.Attempt{
		ID:             uuid.NewString(),
		QuizID:         quiz.ID,
		UserID:         sub.UserID,
		CorrectCount:   correct,
		TotalQuestions: quiz.QuestionCount(),
		TotalTimeMs:    sub.TotalTimeMs,
		TimedOut:       sub.TimedOut || exceedsTimeLimit(quiz, sub.TotalTimeMs),
		CompletedAt:    s.now().UTC(),
		Answers:        answers,
	}
	for i := range attempt.Answers {
		attempt.Answers[i].ID = uuid.NewString()
		attempt.Answers[i].AttemptID = attempt.ID
	}

	if err := s.store.CreateAttempt(ctx, &attempt, quiz.MaxAttempts); err != nil {
		if errors.Is(err, domain.ErrAttemptLimitExceeded) {
			metrics.AttemptsSubmitted.WithLabelValues("limit_exceeded").Inc()
			return domain.Attempt{}, err
		}
		metrics.AttemptsSubmitted.WithLabelValues("error").Inc()
		perr := &domain.PersistenceError{Op: "create attempt", QuizID: quiz.ID, UserID: sub.UserID, Err: err}
		s.log.Error("attempt not persisted",
			zap.String("quiz_id", quiz.ID), zap.String("user_id", sub.UserID), zap.Error(err))
		return domain.Attempt{}, perr
	}

	s.invalidateLeaderboards(ctx, quiz.ID)
	s.notifier.Publish(quiz.ID)
	metrics.AttemptsSubmitted.WithLabelValues("scored").Inc()

	s.log.Debug("attempt scored",
		zap.String("quiz_id", quiz.ID),
		zap.String("user_id", sub.UserID),
		zap.String("attempt_id", attempt.ID),
		zap.Int("correct", attempt.CorrectCount),
		zap.Int("total", attempt.TotalQuestions))
	return attempt, nil
}

// GetAttempt returns the review view of an attempt owned by userID. Attempts
// of other users are reported as not found.
func (s *AttemptService) GetAttempt(ctx context.Context, attemptID, userID string) (domain.AttemptDetail, error) {
	attempt, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return domain.AttemptDetail{}, err
	}
	if attempt.UserID != userID {
		return domain.AttemptDetail{}, domain.ErrAttemptNotFound
	}
	quiz, err := s.store.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return domain.AttemptDetail{}, err
	}
	return buildAttemptDetail(quiz, attempt), nil
}

// AttemptStatus reports how many attempts the user has left on a quiz.
func (s *AttemptService) AttemptStatus(ctx context.Context, quizID, userID string) (domain.AttemptStatus, error) {
	quiz, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.AttemptStatus{}, err
	}
	return s.status(ctx, quiz, userID)
}

func (s *AttemptService) status(ctx context.Context, quiz domain.Quiz, userID string) (domain.AttemptStatus, error) {
	used, err := s.store.CountAttempts(ctx, domain.AttemptFilter{QuizID: quiz.ID, UserID: userID})
	if err != nil {
		return domain.AttemptStatus{}, err
	}
	remaining := quiz.MaxAttempts - used
	if remaining < 0 {
		remaining = 0
	}
	return domain.AttemptStatus{QuizID: quiz.ID, Used: used, Max: quiz.MaxAttempts, Remaining: remaining}, nil
}

// ListAttempts pages through attempts newest first. An empty filter field
// matches every quiz or user.
func (s *AttemptService) ListAttempts(ctx context.Context, filter domain.AttemptFilter, req domain.PageRequest) (domain.Page[domain.Attempt], error) {
	req = req.Normalize()
	total, err := s.store.CountAttempts(ctx, filter)
	if err != nil {
		return domain.Page[domain.Attempt]{}, err
	}
	items, err := s.store.ListAttempts(ctx, filter, req.Offset(), req.PageSize)
	if err != nil {
		return domain.Page[domain.Attempt]{}, err
	}
	return domain.NewPage(items, total, req), nil
}

// DeleteAttempt removes an attempt with its answers and refreshes the
// leaderboards it contributed to.
func (s *AttemptService) DeleteAttempt(ctx context.Context, attemptID string) error {
	attempt, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteAttempt(ctx, attemptID); err != nil {
		return err
	}
	s.invalidateLeaderboards(ctx, attempt.QuizID)
	s.notifier.Publish(attempt.QuizID)
	return nil
}

func (s *AttemptService) invalidateLeaderboards(ctx context.Context, quizID string) {
	s.cache.Invalidate(ctx, domain.QuizLeaderboardPattern(quizID))
	s.cache.Invalidate(ctx, domain.GlobalLeaderboardPattern())
}

func buildAttemptDetail(quiz domain.Quiz, attempt domain.Attempt) domain.AttemptDetail {
	answers := append([]domain.AttemptAnswer(nil), attempt.Answers...)
	sort.SliceStable(answers, func(i, j int) bool {
		return answers[i].DisplayOrder < answers[j].DisplayOrder
	})

	review := make([]domain.AttemptAnswerView, 0, len(answers))
	for _, answer := range answers {
		question, ok := quiz.Question(answer.QuestionID)
		if !ok {
			continue
		}
		view := domain.AttemptAnswerView{AttemptAnswer: answer, Question: question}
		if answer.AnswerID != nil {
			if selected, ok := question.Answer(*answer.AnswerID); ok {
				view.Selected = &selected
			}
		}
		if correct, ok := question.CorrectAnswer(); ok {
			view.Correct = &correct
		}
		review = append(review, view)
	}

	attempt.Answers = answers
	return domain.AttemptDetail{Attempt: attempt, QuizTitle: quiz.Title, Review: review}
}
