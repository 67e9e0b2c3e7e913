package domain

import "time"

// Answer is one selectable option of a question. IsCorrect is authoritative and
// never taken from a client.
type Answer struct {
	ID         string `json:"id" yaml:"id"`
	QuestionID string `json:"questionId" yaml:"-"`
	Text       string `json:"text" yaml:"text"`
	IsCorrect  bool   `json:"isCorrect" yaml:"isCorrect"`
}

// Question models an MCQ question with 2-6 answers.
type Question struct {
	ID       string   `json:"id" yaml:"id"`
	QuizID   string   `json:"quizId" yaml:"-"`
	Text     string   `json:"text" yaml:"text"`
	ImageURL string   `json:"imageUrl,omitempty" yaml:"imageUrl"`
	Order    int      `json:"order" yaml:"order"`
	Answers  []Answer `json:"answers" yaml:"answers"`
}

// Answer returns the answer with the given id if it belongs to this question.
func (q Question) Answer(answerID string) (Answer, bool) {
	for _, a := range q.Answers {
		if a.ID == answerID {
			return a, true
		}
	}
	return Answer{}, false
}

// CorrectAnswer returns the first answer flagged as correct.
func (q Question) CorrectAnswer() (Answer, bool) {
	for _, a := range q.Answers {
		if a.IsCorrect {
			return a, true
		}
	}
	return Answer{}, false
}

// Quiz is an authored collection of questions together with its play rules.
type Quiz struct {
	ID                 string     `json:"id" yaml:"id"`
	Title              string     `json:"title" yaml:"title"`
	Description        string     `json:"description,omitempty" yaml:"description"`
	AuthorID           string     `json:"authorId" yaml:"authorId"`
	MaxAttempts        int        `json:"maxAttempts" yaml:"maxAttempts"`
	TimeLimitSeconds   int        `json:"timeLimitSeconds" yaml:"timeLimitSeconds"` // 0 = unlimited
	RandomizeQuestions bool       `json:"randomizeQuestions" yaml:"randomizeQuestions"`
	RandomizeAnswers   bool       `json:"randomizeAnswers" yaml:"randomizeAnswers"`
	PublishedAt        *time.Time `json:"publishedAt,omitempty" yaml:"publishedAt"`
	CreatedAt          time.Time  `json:"createdAt" yaml:"-"`
	Questions          []Question `json:"questions" yaml:"questions"`
}

// VisibleAt reports whether non-admins may see the quiz at the given time.
func (q Quiz) VisibleAt(now time.Time) bool {
	return q.PublishedAt == nil || !q.PublishedAt.After(now)
}

func (q Quiz) QuestionCount() int {
	return len(q.Questions)
}

// Question looks up a question of this quiz by id.
func (q Quiz) Question(questionID string) (Question, bool) {
	for _, question := range q.Questions {
		if question.ID == questionID {
			return question, true
		}
	}
	return Question{}, false
}

// Summary projects the quiz without its questions.
func (q Quiz) Summary() QuizSummary {
	return QuizSummary{
		ID:                 q.ID,
		Title:              q.Title,
		Description:        q.Description,
		AuthorID:           q.AuthorID,
		MaxAttempts:        q.MaxAttempts,
		TimeLimitSeconds:   q.TimeLimitSeconds,
		RandomizeQuestions: q.RandomizeQuestions,
		PublishedAt:        q.PublishedAt,
		CreatedAt:          q.CreatedAt,
		QuestionCount:      q.QuestionCount(),
	}
}

// QuizSummary is the listing projection of a quiz.
type QuizSummary struct {
	ID                 string     `json:"id"`
	Title              string     `json:"title"`
	Description        string     `json:"description,omitempty"`
	AuthorID           string     `json:"authorId"`
	MaxAttempts        int        `json:"maxAttempts"`
	TimeLimitSeconds   int        `json:"timeLimitSeconds"`
	RandomizeQuestions bool       `json:"randomizeQuestions"`
	PublishedAt        *time.Time `json:"publishedAt,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	QuestionCount      int        `json:"questionCount"`
}

// Attempt records one scored play-through. It is immutable once created.
type Attempt struct {
	ID             string          `json:"id"`
	QuizID         string          `json:"quizId"`
	UserID         string          `json:"userId"`
	AttemptNumber  int             `json:"attemptNumber"`
	CorrectCount   int             `json:"correctCount"`
	TotalQuestions int             `json:"totalQuestions"`
	TotalTimeMs    int64           `json:"totalTimeMs"`
	TimedOut       bool            `json:"timedOut"`
	CompletedAt    time.Time       `json:"completedAt"`
	Answers        []AttemptAnswer `json:"answers,omitempty"`
}

// AttemptAnswer is one question answered (or skipped) in an attempt.
// AnswerID is nil when no answer was given or it did not match the question.
type AttemptAnswer struct {
	ID           string  `json:"id"`
	AttemptID    string  `json:"attemptId"`
	QuestionID   string  `json:"questionId"`
	AnswerID     *string `json:"answerId"`
	IsCorrect    bool    `json:"isCorrect"`
	DisplayOrder int     `json:"displayOrder"`
}

// SubmittedAnswer is a client-provided answer. An empty AnswerID means no answer.
type SubmittedAnswer struct {
	QuestionID   string `json:"questionId"`
	AnswerID     string `json:"answerId"`
	DisplayOrder int    `json:"displayOrder"`
}

// Submission is the validated inbound payload of an attempt together with the
// resolved principal.
type Submission struct {
	QuizID      string
	UserID      string
	Answers     []SubmittedAnswer
	TotalTimeMs int64
	TimedOut    bool
}

// RankedEntry is one row of a per-quiz leaderboard.
type RankedEntry struct {
	Rank           int       `json:"rank"`
	AttemptID      string    `json:"attemptId"`
	UserID         string    `json:"userId"`
	CorrectCount   int       `json:"correctCount"`
	TotalQuestions int       `json:"totalQuestions"`
	TotalTimeMs    int64     `json:"totalTimeMs"`
	TimedOut       bool      `json:"timedOut"`
	CompletedAt    time.Time `json:"completedAt"`
}

// GlobalRankedEntry is one row of the cross-quiz leaderboard.
type GlobalRankedEntry struct {
	Rank          int    `json:"rank"`
	UserID        string `json:"userId"`
	TotalCorrect  int    `json:"totalCorrect"`
	TotalTimeMs   int64  `json:"totalTimeMs"`
	QuizzesPlayed int    `json:"quizzesPlayed"`
}

// AttemptAnswerView joins an attempt answer to its question for review.
type AttemptAnswerView struct {
	AttemptAnswer
	Question Question `json:"question"`
	Selected *Answer  `json:"selected"`
	Correct  *Answer  `json:"correct"`
}

// AttemptDetail is the review projection of an attempt.
type AttemptDetail struct {
	Attempt
	QuizTitle string              `json:"quizTitle"`
	Review    []AttemptAnswerView `json:"review"`
}

// AttemptStatus tells a player how many attempts remain on a quiz.
type AttemptStatus struct {
	QuizID    string `json:"quizId"`
	Used      int    `json:"used"`
	Max       int    `json:"max"`
	Remaining int    `json:"remaining"`
}

// PlayAnswer is an answer as shown to a player; it carries no correctness.
type PlayAnswer struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// PlayQuestion is a question as shown to a player in display order.
type PlayQuestion struct {
	ID           string       `json:"id"`
	Text         string       `json:"text"`
	ImageURL     string       `json:"imageUrl,omitempty"`
	DisplayOrder int          `json:"displayOrder"`
	Answers      []PlayAnswer `json:"answers"`
}

// PlayQuiz is the player-facing projection of a quiz.
type PlayQuiz struct {
	QuizID           string         `json:"quizId"`
	Title            string         `json:"title"`
	TimeLimitSeconds int            `json:"timeLimitSeconds"`
	Questions        []PlayQuestion `json:"questions"`
	Status           AttemptStatus  `json:"status"`
}

// QuizFilter narrows quiz listings. Quizzes scheduled after Now are listed
// only when IncludeUnpublished is set.
type QuizFilter struct {
	IncludeUnpublished bool
	Now                time.Time
}

// AttemptFilter selects attempts. Empty fields match everything.
type AttemptFilter struct {
	QuizID string
	UserID string
}
