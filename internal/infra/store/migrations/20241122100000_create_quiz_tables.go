package migrations

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

type quiz struct {
	bun.BaseModel `bun:"table:quizzes"`

	ID                 string     `bun:"id,pk"`
	Title              string     `bun:"title,notnull"`
	Description        string     `bun:"description"`
	AuthorID           string     `bun:"author_id"`
	MaxAttempts        int        `bun:"max_attempts,notnull"`
	TimeLimitSeconds   int        `bun:"time_limit_seconds,notnull"`
	RandomizeQuestions bool       `bun:"randomize_questions,notnull"`
	RandomizeAnswers   bool       `bun:"randomize_answers,notnull"`
	PublishedAt        *time.Time `bun:"published_at"`
	CreatedAt          time.Time  `bun:"created_at,notnull"`
}

type question struct {
	bun.BaseModel `bun:"table:questions"`

	ID        string `bun:"id,pk"`
	QuizID    string `bun:"quiz_id,notnull"`
	Text      string `bun:"text,notnull"`
	ImageURL  string `bun:"image_url"`
	SortOrder int    `bun:"sort_order,notnull"`
}

type answer struct {
	bun.BaseModel `bun:"table:answers"`

	ID         string `bun:"id,pk"`
	QuestionID string `bun:"question_id,notnull"`
	Text       string `bun:"text,notnull"`
	IsCorrect  bool   `bun:"is_correct,notnull"`
	SortOrder  int    `bun:"sort_order,notnull"`
}

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
				if _, err := tx.NewCreateTable().Model((*quiz)(nil)).IfNotExists().Exec(ctx); err != nil {
					return err
				}
				if _, err := tx.NewCreateTable().Model((*question)(nil)).IfNotExists().
					ForeignKey(`("quiz_id") REFERENCES "quizzes" ("id") ON DELETE CASCADE`).
					Exec(ctx); err != nil {
					return err
				}
				if _, err := tx.NewCreateTable().Model((*answer)(nil)).IfNotExists().
					ForeignKey(`("question_id") REFERENCES "questions" ("id") ON DELETE CASCADE`).
					Exec(ctx); err != nil {
					return err
				}
				if _, err := tx.NewCreateIndex().Model((*question)(nil)).Index("questions_quiz_order_idx").
					Column("quiz_id", "sort_order").IfNotExists().Exec(ctx); err != nil {
					return err
				}
				_, err := tx.NewCreateIndex().Model((*answer)(nil)).Index("answers_question_idx").
					Column("question_id").IfNotExists().Exec(ctx)
				return err
			})
		},
		func(ctx context.Context, db *bun.DB) error {
			for _, model := range []interface{}{(*answer)(nil), (*question)(nil), (*quiz)(nil)} {
				if _, err := db.NewDropTable().Model(model).IfExists().Exec(ctx); err != nil {
					return err
				}
			}
			return nil
		},
	)
}
