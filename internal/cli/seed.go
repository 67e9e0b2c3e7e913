package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"respondeo-service/internal/app"
	"respondeo-service/internal/config"
	"respondeo-service/internal/domain"
	"respondeo-service/internal/logging"
)

type seedFile struct {
	Quizzes []domain.Quiz `yaml:"quizzes"`
}

// NewSeedCmd loads quizzes from a YAML file into the configured store.
func NewSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load quizzes from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), *configPath, file)
		},
	}
	cmd.Flags().StringVar(&file, "file", "quizzes.yaml", "YAML file of quizzes")
	return cmd
}

func runSeed(ctx context.Context, configPath, file string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logging.New(cfg.LogOptions())
	defer log.Sync()

	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// Seeding goes through the cache so a running server sees new quizzes.
	layer, err := openCache(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer layer.Close()

	quizzes := app.NewQuizService(st, layer, cfg.CacheTTLs(), app.NewNotifier(), log.Named("quizzes"))
	_, err = seedQuizzes(ctx, quizzes, file, log)
	return err
}

// seedQuizzes creates every quiz in path. Quizzes whose id already exists are
// skipped so the file can be applied repeatedly.
func seedQuizzes(ctx context.Context, quizzes *app.QuizService, path string, log *zap.Logger) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}

	created := 0
	for i, quiz := range file.Quizzes {
		stored, err := quizzes.CreateQuiz(ctx, quiz)
		switch {
		case errors.Is(err, domain.ErrQuizExists):
			log.Info("quiz already present, skipping", zap.String("quiz_id", quiz.ID))
		case err != nil:
			return created, fmt.Errorf("quiz %d (%q): %w", i, quiz.Title, err)
		default:
			created++
			log.Info("quiz seeded", zap.String("quiz_id", stored.ID), zap.Int("questions", stored.QuestionCount()))
		}
	}
	log.Info("seed complete", zap.Int("created", created), zap.Int("total", len(file.Quizzes)))
	return created, nil
}
