package memory

import (
	"context"
	"sort"
	"sync"

	"respondeo-service/internal/domain"
)

// Store is an in-memory implementation of app.Store, useful for tests and
// demos. A single mutex serialises writes, which makes the attempt limit check
// and insert atomic.
type Store struct {
	mu       sync.RWMutex
	quizzes  map[string]domain.Quiz
	attempts map[string]domain.Attempt
}

func NewStore() *Store {
	return &Store{
		quizzes:  make(map[string]domain.Quiz),
		attempts: make(map[string]domain.Attempt),
	}
}

// NewStoreWithQuizzes seeds the store with quiz content.
func NewStoreWithQuizzes(quizzes ...domain.Quiz) *Store {
	s := NewStore()
	for _, quiz := range quizzes {
		s.quizzes[quiz.ID] = cloneQuiz(quiz)
	}
	return s
}

func (s *Store) GetQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return cloneQuiz(quiz), nil
}

func (s *Store) ListQuizzes(_ context.Context, filter domain.QuizFilter, offset, limit int) ([]domain.QuizSummary, error) {
	s.mu.RLock()
	matched := s.visibleQuizzesLocked(filter)
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})
	matched = window(matched, offset, limit)

	summaries := make([]domain.QuizSummary, 0, len(matched))
	for _, quiz := range matched {
		summaries = append(summaries, quiz.Summary())
	}
	return summaries, nil
}

func (s *Store) CountQuizzes(_ context.Context, filter domain.QuizFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.visibleQuizzesLocked(filter)), nil
}

func (s *Store) CreateQuiz(_ context.Context, quiz domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[quiz.ID]; ok {
		return domain.ErrQuizExists
	}
	s.quizzes[quiz.ID] = cloneQuiz(quiz)
	return nil
}

func (s *Store) DeleteQuiz(_ context.Context, quizID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[quizID]; !ok {
		return domain.ErrQuizNotFound
	}
	delete(s.quizzes, quizID)
	for id, attempt := range s.attempts {
		if attempt.QuizID == quizID {
			delete(s.attempts, id)
		}
	}
	return nil
}

func (s *Store) CountAttempts(_ context.Context, filter domain.AttemptFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.matchingAttemptsLocked(filter)), nil
}

func (s *Store) CreateAttempt(_ context.Context, attempt *domain.Attempt, maxAttempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.quizzes[attempt.QuizID]; !ok {
		return domain.ErrQuizNotFound
	}
	existing := s.matchingAttemptsLocked(domain.AttemptFilter{QuizID: attempt.QuizID, UserID: attempt.UserID})
	if len(existing) >= maxAttempts {
		return domain.ErrAttemptLimitExceeded
	}
	number := 0
	for _, a := range existing {
		if a.AttemptNumber > number {
			number = a.AttemptNumber
		}
	}
	attempt.AttemptNumber = number + 1

	stored := *attempt
	stored.Answers = append([]domain.AttemptAnswer(nil), attempt.Answers...)
	s.attempts[attempt.ID] = stored
	return nil
}

func (s *Store) GetAttempt(_ context.Context, attemptID string) (domain.Attempt, error) {
	s.mu.RLock()
	attempt, ok := s.attempts[attemptID]
	s.mu.RUnlock()
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	attempt.Answers = append([]domain.AttemptAnswer(nil), attempt.Answers...)
	sort.SliceStable(attempt.Answers, func(i, j int) bool {
		return attempt.Answers[i].DisplayOrder < attempt.Answers[j].DisplayOrder
	})
	return attempt, nil
}

func (s *Store) ListAttempts(_ context.Context, filter domain.AttemptFilter, offset, limit int) ([]domain.Attempt, error) {
	s.mu.RLock()
	matched := s.matchingAttemptsLocked(filter)
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CompletedAt.Equal(matched[j].CompletedAt) {
			return matched[i].CompletedAt.After(matched[j].CompletedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	matched = window(matched, offset, limit)
	for i := range matched {
		matched[i].Answers = nil
	}
	return matched, nil
}

func (s *Store) DeleteAttempt(_ context.Context, attemptID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attempts[attemptID]; !ok {
		return domain.ErrAttemptNotFound
	}
	delete(s.attempts, attemptID)
	return nil
}

func (s *Store) QuizLeaderboard(_ context.Context, quizID string, offset, limit int) ([]domain.RankedEntry, error) {
	s.mu.RLock()
	matched := s.matchingAttemptsLocked(domain.AttemptFilter{QuizID: quizID})
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.CorrectCount != b.CorrectCount {
			return a.CorrectCount > b.CorrectCount
		}
		if a.TotalTimeMs != b.TotalTimeMs {
			return a.TotalTimeMs < b.TotalTimeMs
		}
		if !a.CompletedAt.Equal(b.CompletedAt) {
			return a.CompletedAt.Before(b.CompletedAt)
		}
		return a.ID < b.ID
	})
	matched = window(matched, offset, limit)

	entries := make([]domain.RankedEntry, 0, len(matched))
	for _, a := range matched {
		entries = append(entries, domain.RankedEntry{
			AttemptID:      a.ID,
			UserID:         a.UserID,
			CorrectCount:   a.CorrectCount,
			TotalQuestions: a.TotalQuestions,
			TotalTimeMs:    a.TotalTimeMs,
			TimedOut:       a.TimedOut,
			CompletedAt:    a.CompletedAt,
		})
	}
	return entries, nil
}

func (s *Store) GlobalLeaderboard(_ context.Context, offset, limit int) ([]domain.GlobalRankedEntry, error) {
	s.mu.RLock()
	totals := make(map[string]*domain.GlobalRankedEntry)
	played := make(map[string]map[string]struct{})
	for _, a := range s.attempts {
		entry, ok := totals[a.UserID]
		if !ok {
			entry = &domain.GlobalRankedEntry{UserID: a.UserID}
			totals[a.UserID] = entry
			played[a.UserID] = make(map[string]struct{})
		}
		entry.TotalCorrect += a.CorrectCount
		entry.TotalTimeMs += a.TotalTimeMs
		played[a.UserID][a.QuizID] = struct{}{}
	}
	s.mu.RUnlock()

	entries := make([]domain.GlobalRankedEntry, 0, len(totals))
	for userID, entry := range totals {
		entry.QuizzesPlayed = len(played[userID])
		entries = append(entries, *entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.TotalCorrect != b.TotalCorrect {
			return a.TotalCorrect > b.TotalCorrect
		}
		if a.TotalTimeMs != b.TotalTimeMs {
			return a.TotalTimeMs < b.TotalTimeMs
		}
		return a.UserID < b.UserID
	})
	return window(entries, offset, limit), nil
}

func (s *Store) CountPlayers(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make(map[string]struct{})
	for _, a := range s.attempts {
		users[a.UserID] = struct{}{}
	}
	return len(users), nil
}

func (s *Store) visibleQuizzesLocked(filter domain.QuizFilter) []domain.Quiz {
	matched := make([]domain.Quiz, 0, len(s.quizzes))
	for _, quiz := range s.quizzes {
		if filter.IncludeUnpublished || quiz.VisibleAt(filter.Now) {
			matched = append(matched, quiz)
		}
	}
	return matched
}

func (s *Store) matchingAttemptsLocked(filter domain.AttemptFilter) []domain.Attempt {
	matched := make([]domain.Attempt, 0)
	for _, a := range s.attempts {
		if filter.QuizID != "" && a.QuizID != filter.QuizID {
			continue
		}
		if filter.UserID != "" && a.UserID != filter.UserID {
			continue
		}
		matched = append(matched, a)
	}
	return matched
}

func window[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func cloneQuiz(quiz domain.Quiz) domain.Quiz {
	questions := make([]domain.Question, len(quiz.Questions))
	for i, q := range quiz.Questions {
		q.Answers = append([]domain.Answer(nil), q.Answers...)
		questions[i] = q
	}
	sort.SliceStable(questions, func(i, j int) bool { return questions[i].Order < questions[j].Order })
	quiz.Questions = questions
	return quiz
}
