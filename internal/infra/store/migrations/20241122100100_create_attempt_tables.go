package migrations

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

type attempt struct {
	bun.BaseModel `bun:"table:attempts"`

	ID             string    `bun:"id,pk"`
	QuizID         string    `bun:"quiz_id,notnull"`
	UserID         string    `bun:"user_id,notnull"`
	AttemptNumber  int       `bun:"attempt_number,notnull"`
	CorrectCount   int       `bun:"correct_count,notnull"`
	TotalQuestions int       `bun:"total_questions,notnull"`
	TotalTimeMs    int64     `bun:"total_time_ms,notnull"`
	TimedOut       bool      `bun:"timed_out,notnull"`
	CompletedAt    time.Time `bun:"completed_at,notnull"`
}

type attemptAnswer struct {
	bun.BaseModel `bun:"table:attempt_answers"`

	ID           string  `bun:"id,pk"`
	AttemptID    string  `bun:"attempt_id,notnull"`
	QuestionID   string  `bun:"question_id,notnull"`
	AnswerID     *string `bun:"answer_id"`
	IsCorrect    bool    `bun:"is_correct,notnull"`
	DisplayOrder int     `bun:"display_order,notnull"`
}

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
				if _, err := tx.NewCreateTable().Model((*attempt)(nil)).IfNotExists().
					ForeignKey(`("quiz_id") REFERENCES "quizzes" ("id") ON DELETE CASCADE`).
					Exec(ctx); err != nil {
					return err
				}
				if _, err := tx.NewCreateTable().Model((*attemptAnswer)(nil)).IfNotExists().
					ForeignKey(`("attempt_id") REFERENCES "attempts" ("id") ON DELETE CASCADE`).
					ForeignKey(`("question_id") REFERENCES "questions" ("id") ON DELETE CASCADE`).
					ForeignKey(`("answer_id") REFERENCES "answers" ("id") ON DELETE SET NULL`).
					Exec(ctx); err != nil {
					return err
				}

				// One row per ordinal keeps concurrent submissions from
				// exceeding the attempt limit.
				if _, err := tx.NewCreateIndex().Model((*attempt)(nil)).Index("attempts_quiz_user_number_uq").
					Unique().Column("quiz_id", "user_id", "attempt_number").IfNotExists().Exec(ctx); err != nil {
					return err
				}
				if _, err := tx.NewCreateIndex().Model((*attempt)(nil)).Index("attempts_quiz_rank_idx").
					Column("quiz_id", "correct_count", "total_time_ms").IfNotExists().Exec(ctx); err != nil {
					return err
				}
				if _, err := tx.NewCreateIndex().Model((*attempt)(nil)).Index("attempts_user_idx").
					Column("user_id").IfNotExists().Exec(ctx); err != nil {
					return err
				}
				_, err := tx.NewCreateIndex().Model((*attemptAnswer)(nil)).Index("attempt_answers_attempt_idx").
					Column("attempt_id").IfNotExists().Exec(ctx)
				return err
			})
		},
		func(ctx context.Context, db *bun.DB) error {
			for _, model := range []interface{}{(*attemptAnswer)(nil), (*attempt)(nil)} {
				if _, err := db.NewDropTable().Model(model).IfExists().Exec(ctx); err != nil {
					return err
				}
			}
			return nil
		},
	)
}
