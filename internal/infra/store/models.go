package store

import (
	"time"

	"github.com/uptrace/bun"

	"respondeo-service/internal/domain"
)

type quizRow struct {
	bun.BaseModel `bun:"table:quizzes,alias:qz"`

	ID                 string         `bun:"id,pk"`
	Title              string         `bun:"title,notnull"`
	Description        string         `bun:"description"`
	AuthorID           string         `bun:"author_id"`
	MaxAttempts        int            `bun:"max_attempts,notnull"`
	TimeLimitSeconds   int            `bun:"time_limit_seconds,notnull"`
	RandomizeQuestions bool           `bun:"randomize_questions,notnull"`
	RandomizeAnswers   bool           `bun:"randomize_answers,notnull"`
	PublishedAt        *time.Time     `bun:"published_at"`
	CreatedAt          time.Time      `bun:"created_at,notnull"`
	Questions          []*questionRow `bun:"rel:has-many,join:id=quiz_id"`
}

type quizSummaryRow struct {
	quizRow `bun:",extend"`

	QuestionCount int `bun:"question_count,scanonly"`
}

type questionRow struct {
	bun.BaseModel `bun:"table:questions,alias:qn"`

	ID        string       `bun:"id,pk"`
	QuizID    string       `bun:"quiz_id,notnull"`
	Text      string       `bun:"text,notnull"`
	ImageURL  string       `bun:"image_url"`
	SortOrder int          `bun:"sort_order,notnull"`
	Answers   []*answerRow `bun:"rel:has-many,join:id=question_id"`
}

type answerRow struct {
	bun.BaseModel `bun:"table:answers,alias:an"`

	ID         string `bun:"id,pk"`
	QuestionID string `bun:"question_id,notnull"`
	Text       string `bun:"text,notnull"`
	IsCorrect  bool   `bun:"is_correct,notnull"`
	SortOrder  int    `bun:"sort_order,notnull"`
}

type attemptRow struct {
	bun.BaseModel `bun:"table:attempts,alias:at"`

	ID             string              `bun:"id,pk"`
	QuizID         string              `bun:"quiz_id,notnull"`
	UserID         string              `bun:"user_id,notnull"`
	AttemptNumber  int                 `bun:"attempt_number,notnull"`
	CorrectCount   int                 `bun:"correct_count,notnull"`
	TotalQuestions int                 `bun:"total_questions,notnull"`
	TotalTimeMs    int64               `bun:"total_time_ms,notnull"`
	TimedOut       bool                `bun:"timed_out,notnull"`
	CompletedAt    time.Time           `bun:"completed_at,notnull"`
	Answers        []*attemptAnswerRow `bun:"rel:has-many,join:id=attempt_id"`
}

type attemptAnswerRow struct {
	bun.BaseModel `bun:"table:attempt_answers,alias:aa"`

	ID           string  `bun:"id,pk"`
	AttemptID    string  `bun:"attempt_id,notnull"`
	QuestionID   string  `bun:"question_id,notnull"`
	AnswerID     *string `bun:"answer_id"`
	IsCorrect    bool    `bun:"is_correct,notnull"`
	DisplayOrder int     `bun:"display_order,notnull"`
}

type globalRow struct {
	UserID        string `bun:"user_id"`
	TotalCorrect  int    `bun:"total_correct"`
	TotalTimeMs   int64  `bun:"total_time_ms"`
	QuizzesPlayed int    `bun:"quizzes_played"`
}

func newQuizRows(quiz domain.Quiz) (*quizRow, []*questionRow, []*answerRow) {
	qr := &quizRow{
		ID:                 quiz.ID,
		Title:              quiz.Title,
		Description:        quiz.Description,
		AuthorID:           quiz.AuthorID,
		MaxAttempts:        quiz.MaxAttempts,
		TimeLimitSeconds:   quiz.TimeLimitSeconds,
		RandomizeQuestions: quiz.RandomizeQuestions,
		RandomizeAnswers:   quiz.RandomizeAnswers,
		PublishedAt:        quiz.PublishedAt,
		CreatedAt:          quiz.CreatedAt,
	}
	var questions []*questionRow
	var answers []*answerRow
	for _, q := range quiz.Questions {
		questions = append(questions, &questionRow{
			ID:        q.ID,
			QuizID:    quiz.ID,
			Text:      q.Text,
			ImageURL:  q.ImageURL,
			SortOrder: q.Order,
		})
		for i, a := range q.Answers {
			answers = append(answers, &answerRow{
				ID:         a.ID,
				QuestionID: q.ID,
				Text:       a.Text,
				IsCorrect:  a.IsCorrect,
				SortOrder:  i,
			})
		}
	}
	return qr, questions, answers
}

func (r *quizRow) toDomain() domain.Quiz {
	quiz := domain.Quiz{
		ID:                 r.ID,
		Title:              r.Title,
		Description:        r.Description,
		AuthorID:           r.AuthorID,
		MaxAttempts:        r.MaxAttempts,
		TimeLimitSeconds:   r.TimeLimitSeconds,
		RandomizeQuestions: r.RandomizeQuestions,
		RandomizeAnswers:   r.RandomizeAnswers,
		PublishedAt:        r.PublishedAt,
		CreatedAt:          r.CreatedAt,
		Questions:          make([]domain.Question, 0, len(r.Questions)),
	}
	for _, q := range r.Questions {
		question := domain.Question{
			ID:       q.ID,
			QuizID:   q.QuizID,
			Text:     q.Text,
			ImageURL: q.ImageURL,
			Order:    q.SortOrder,
			Answers:  make([]domain.Answer, 0, len(q.Answers)),
		}
		for _, a := range q.Answers {
			question.Answers = append(question.Answers, domain.Answer{
				ID:         a.ID,
				QuestionID: a.QuestionID,
				Text:       a.Text,
				IsCorrect:  a.IsCorrect,
			})
		}
		quiz.Questions = append(quiz.Questions, question)
	}
	return quiz
}

func (r *quizSummaryRow) toDomain() domain.QuizSummary {
	summary := r.quizRow.toDomain().Summary()
	summary.QuestionCount = r.QuestionCount
	return summary
}

func newAttemptRows(a *domain.Attempt) (*attemptRow, []*attemptAnswerRow) {
	row := &attemptRow{
		ID:             a.ID,
		QuizID:         a.QuizID,
		UserID:         a.UserID,
		AttemptNumber:  a.AttemptNumber,
		CorrectCount:   a.CorrectCount,
		TotalQuestions: a.TotalQuestions,
		TotalTimeMs:    a.TotalTimeMs,
		TimedOut:       a.TimedOut,
		CompletedAt:    a.CompletedAt,
	}
	answers := make([]*attemptAnswerRow, 0, len(a.Answers))
	for _, ans := range a.Answers {
		answers = append(answers, &attemptAnswerRow{
			ID:           ans.ID,
			AttemptID:    a.ID,
			QuestionID:   ans.QuestionID,
			AnswerID:     ans.AnswerID,
			IsCorrect:    ans.IsCorrect,
			DisplayOrder: ans.DisplayOrder,
		})
	}
	return row, answers
}

func (r *attemptRow) toDomain() domain.Attempt {
	attempt := domain.Attempt{
		ID:             r.ID,
		QuizID:         r.QuizID,
		UserID:         r.UserID,
		AttemptNumber:  r.AttemptNumber,
		CorrectCount:   r.CorrectCount,
		TotalQuestions: r.TotalQuestions,
		TotalTimeMs:    r.TotalTimeMs,
		TimedOut:       r.TimedOut,
		CompletedAt:    r.CompletedAt.UTC(),
	}
	for _, a := range r.Answers {
		attempt.Answers = append(attempt.Answers, domain.AttemptAnswer{
			ID:           a.ID,
			AttemptID:    a.AttemptID,
			QuestionID:   a.QuestionID,
			AnswerID:     a.AnswerID,
			IsCorrect:    a.IsCorrect,
			DisplayOrder: a.DisplayOrder,
		})
	}
	return attempt
}

func (r *attemptRow) toRankedEntry() domain.RankedEntry {
	return domain.RankedEntry{
		AttemptID:      r.ID,
		UserID:         r.UserID,
		CorrectCount:   r.CorrectCount,
		TotalQuestions: r.TotalQuestions,
		TotalTimeMs:    r.TotalTimeMs,
		TimedOut:       r.TimedOut,
		CompletedAt:    r.CompletedAt.UTC(),
	}
}
