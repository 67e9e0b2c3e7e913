package app

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"respondeo-service/internal/cache"
	"respondeo-service/internal/domain"
)

const (
	minAnswers = 2
	maxAnswers = 6
)

// QuizService contains the quiz read use cases and the few writes that must
// keep the cache consistent.
type QuizService struct {
	store    Store
	cache    *cache.Layer
	ttls     cache.TTLs
	notifier *Notifier
	log      *zap.Logger
	now      func() time.Time

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewQuizService(store Store, layer *cache.Layer, ttls cache.TTLs, notifier *Notifier, log *zap.Logger) *QuizService {
	if log == nil {
		log = zap.NewNop()
	}
	return &QuizService{
		store:    store,
		cache:    layer,
		ttls:     ttls,
		notifier: notifier,
		log:      log,
		now:      time.Now,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithClock is test-only for deterministic publication checks.
func (s *QuizService) WithClock(now func() time.Time) *QuizService {
	s.now = now
	return s
}

// WithSeed is test-only for reproducible shuffles.
func (s *QuizService) WithSeed(seed int64) *QuizService {
	s.rnd = rand.New(rand.NewSource(seed))
	return s
}

// ListQuizzes pages through quizzes newest first. Scheduled quizzes are hidden
// unless includeUnpublished is set.
func (s *QuizService) ListQuizzes(ctx context.Context, req domain.PageRequest, includeUnpublished bool) (domain.Page[domain.QuizSummary], error) {
	req = req.Normalize()
	return cache.Fetch(ctx, s.cache, domain.QuizListKey(includeUnpublished, req), s.ttls.QuizList,
		func(ctx context.Context) (domain.Page[domain.QuizSummary], error) {
			filter := domain.QuizFilter{IncludeUnpublished: includeUnpublished, Now: s.now()}
			total, err := s.store.CountQuizzes(ctx, filter)
			if err != nil {
				return domain.Page[domain.QuizSummary]{}, err
			}
			items, err := s.store.ListQuizzes(ctx, filter, req.Offset(), req.PageSize)
			if err != nil {
				return domain.Page[domain.QuizSummary]{}, err
			}
			return domain.NewPage(items, total, req), nil
		})
}

// GetQuiz returns the full quiz. A quiz that is not yet published is reported
// as not found unless includeUnpublished is set.
func (s *QuizService) GetQuiz(ctx context.Context, quizID string, includeUnpublished bool) (domain.Quiz, error) {
	quiz, err := cache.Fetch(ctx, s.cache, domain.QuizDetailKey(quizID), s.ttls.QuizDetail,
		func(ctx context.Context) (domain.Quiz, error) {
			return s.store.GetQuiz(ctx, quizID)
		})
	if err != nil {
		return domain.Quiz{}, err
	}
	if !includeUnpublished && !quiz.VisibleAt(s.now()) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}

// PlayQuiz prepares a quiz for a player: questions numbered in display order,
// shuffled when the quiz asks for it, with correctness stripped.
func (s *QuizService) PlayQuiz(ctx context.Context, quizID, userID string) (domain.PlayQuiz, error) {
	quiz, err := s.GetQuiz(ctx, quizID, false)
	if err != nil {
		return domain.PlayQuiz{}, err
	}

	used, err := s.store.CountAttempts(ctx, domain.AttemptFilter{QuizID: quiz.ID, UserID: userID})
	if err != nil {
		return domain.PlayQuiz{}, err
	}
	if used >= quiz.MaxAttempts {
		return domain.PlayQuiz{}, domain.ErrAttemptLimitExceeded
	}

	questions := append([]domain.Question(nil), quiz.Questions...)
	if quiz.RandomizeQuestions {
		s.shuffle(len(questions), func(i, j int) { questions[i], questions[j] = questions[j], questions[i] })
	}

	play := domain.PlayQuiz{
		QuizID:           quiz.ID,
		Title:            quiz.Title,
		TimeLimitSeconds: quiz.TimeLimitSeconds,
		Questions:        make([]domain.PlayQuestion, 0, len(questions)),
		Status: domain.AttemptStatus{
			QuizID:    quiz.ID,
			Used:      used,
			Max:       quiz.MaxAttempts,
			Remaining: quiz.MaxAttempts - used,
		},
	}
	for i, question := range questions {
		answers := make([]domain.PlayAnswer, 0, len(question.Answers))
		for _, answer := range question.Answers {
			answers = append(answers, domain.PlayAnswer{ID: answer.ID, Text: answer.Text})
		}
		if quiz.RandomizeAnswers {
			s.shuffle(len(answers), func(i, j int) { answers[i], answers[j] = answers[j], answers[i] })
		}
		play.Questions = append(play.Questions, domain.PlayQuestion{
			ID:           question.ID,
			Text:         question.Text,
			ImageURL:     question.ImageURL,
			DisplayOrder: i,
			Answers:      answers,
		})
	}
	return play, nil
}

// CreateQuiz validates and stores authored content, assigning missing ids.
func (s *QuizService) CreateQuiz(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error) {
	quiz = prepareQuiz(quiz, s.now())
	if err := validateQuiz(quiz); err != nil {
		return domain.Quiz{}, err
	}
	if err := s.store.CreateQuiz(ctx, quiz); err != nil {
		return domain.Quiz{}, err
	}
	s.cache.Invalidate(ctx, domain.QuizListPattern())
	s.cache.Delete(ctx, domain.QuizDetailKey(quiz.ID))
	return quiz, nil
}

// DeleteQuiz removes a quiz with everything that hangs off it and evicts every
// cached view derived from it.
func (s *QuizService) DeleteQuiz(ctx context.Context, quizID string) error {
	if err := s.store.DeleteQuiz(ctx, quizID); err != nil {
		return err
	}
	s.cache.Delete(ctx, domain.QuizDetailKey(quizID))
	s.cache.Invalidate(ctx, domain.QuizListPattern())
	s.cache.Invalidate(ctx, domain.QuizLeaderboardPattern(quizID))
	s.cache.Invalidate(ctx, domain.GlobalLeaderboardPattern())
	s.notifier.Publish(quizID)
	s.log.Info("quiz deleted", zap.String("quiz_id", quizID))
	return nil
}

func (s *QuizService) shuffle(n int, swap func(i, j int)) {
	s.rndMu.Lock()
	s.rnd.Shuffle(n, swap)
	s.rndMu.Unlock()
}

// prepareQuiz fills ids and links children to parents. Questions keep their
// authored order, renumbered from zero.
func prepareQuiz(quiz domain.Quiz, now time.Time) domain.Quiz {
	if quiz.ID == "" {
		quiz.ID = uuid.NewString()
	}
	if quiz.CreatedAt.IsZero() {
		quiz.CreatedAt = now.UTC()
	}

	questions := append([]domain.Question(nil), quiz.Questions...)
	sort.SliceStable(questions, func(i, j int) bool { return questions[i].Order < questions[j].Order })
	for i := range questions {
		q := &questions[i]
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		q.QuizID = quiz.ID
		q.Order = i
		answers := append([]domain.Answer(nil), q.Answers...)
		for j := range answers {
			if answers[j].ID == "" {
				answers[j].ID = uuid.NewString()
			}
			answers[j].QuestionID = q.ID
		}
		q.Answers = answers
	}
	quiz.Questions = questions
	return quiz
}

func validateQuiz(quiz domain.Quiz) error {
	if strings.TrimSpace(quiz.Title) == "" {
		return &domain.ValidationError{Field: "title", Reason: "is required"}
	}
	if quiz.MaxAttempts < 1 {
		return &domain.ValidationError{Field: "maxAttempts", Reason: "must be at least 1"}
	}
	if quiz.TimeLimitSeconds < 0 {
		return &domain.ValidationError{Field: "timeLimitSeconds", Reason: "must not be negative"}
	}
	for i, question := range quiz.Questions {
		field := fmt.Sprintf("questions[%d]", i)
		if strings.TrimSpace(question.Text) == "" {
			return &domain.ValidationError{Field: field + ".text", Reason: "is required"}
		}
		if n := len(question.Answers); n < minAnswers || n > maxAnswers {
			return &domain.ValidationError{Field: field + ".answers", Reason: fmt.Sprintf("must have %d to %d answers", minAnswers, maxAnswers)}
		}
		if _, ok := question.CorrectAnswer(); !ok {
			return &domain.ValidationError{Field: field + ".answers", Reason: "needs a correct answer"}
		}
	}
	return nil
}
