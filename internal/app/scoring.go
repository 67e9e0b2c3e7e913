package app

import (
	"fmt"
	"strings"

	"respondeo-service/internal/domain"
)

// validateSubmission re-checks the submission shape before any store access.
func validateSubmission(sub domain.Submission) error {
	if strings.TrimSpace(sub.QuizID) == "" {
		return &domain.ValidationError{Field: "quizId", Reason: "is required"}
	}
	if strings.TrimSpace(sub.UserID) == "" {
		return &domain.ValidationError{Field: "userId", Reason: "is required"}
	}
	if sub.TotalTimeMs < 0 {
		return &domain.ValidationError{Field: "totalTimeMs", Reason: "must not be negative"}
	}

	seen := make(map[string]struct{}, len(sub.Answers))
	for i, answer := range sub.Answers {
		field := fmt.Sprintf("answers[%d]", i)
		if strings.TrimSpace(answer.QuestionID) == "" {
			return &domain.ValidationError{Field: field + ".questionId", Reason: "is required"}
		}
		if answer.DisplayOrder < 0 {
			return &domain.ValidationError{Field: field + ".displayOrder", Reason: "must not be negative"}
		}
		if _, dup := seen[answer.QuestionID]; dup {
			return &domain.ValidationError{Field: field + ".questionId", Reason: "answered more than once"}
		}
		seen[answer.QuestionID] = struct{}{}
	}
	return nil
}

// scoreSubmission grades answers against the authoritative quiz and returns the
// rows to persist with the number of correct ones. Answers to questions outside
// the quiz are dropped. An answer id that does not belong to its question is
// stored as nil and counts as incorrect.
func scoreSubmission(quiz domain.Quiz, answers []domain.SubmittedAnswer) ([]domain.AttemptAnswer, int) {
	scored := make([]domain.AttemptAnswer, 0, len(answers))
	correct := 0
	for _, submitted := range answers {
		question, ok := quiz.Question(submitted.QuestionID)
		if !ok {
			continue
		}

		row := domain.AttemptAnswer{
			QuestionID:   question.ID,
			DisplayOrder: submitted.DisplayOrder,
		}
		if submitted.AnswerID != "" {
			if answer, ok := question.Answer(submitted.AnswerID); ok {
				answerID := answer.ID
				row.AnswerID = &answerID
				row.IsCorrect = answer.IsCorrect
			}
		}
		if row.IsCorrect {
			correct++
		}
		scored = append(scored, row)
	}
	return scored, correct
}

// exceedsTimeLimit reports whether the reported duration overran the quiz limit.
func exceedsTimeLimit(quiz domain.Quiz, totalTimeMs int64) bool {
	return quiz.TimeLimitSeconds > 0 && totalTimeMs > int64(quiz.TimeLimitSeconds)*1000
}
