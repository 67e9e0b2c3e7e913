package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"respondeo-service/internal/app"
	"respondeo-service/internal/cache"
	"respondeo-service/internal/domain"
	infraredis "respondeo-service/internal/infra/redis"
	"respondeo-service/internal/infra/store"
)

func TestAttemptFlowEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db, err := store.Open(store.Options{Dialect: store.DialectPostgres, URL: pgURL, Driver: store.DriverPgdriver}, zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer db.Close()
	for i := 0; i < 2; i++ {
		if err := db.Migrate(ctx); err != nil {
			t.Fatalf("migrate run %d: %v", i+1, err)
		}
	}

	client, err := infraredis.NewClient(infraredis.Options{URL: redisURL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	layer := cache.NewLayer(infraredis.NewCache(client), time.Second, zap.NewNop())
	defer layer.Close()

	ttls := cache.DefaultTTLs()
	notifier := app.NewNotifier()
	quizzes := app.NewQuizService(db, layer, ttls, notifier, zap.NewNop())
	attempts := app.NewAttemptService(db, layer, notifier, zap.NewNop())
	leaderboards := app.NewLeaderboardService(db, layer, ttls)

	if _, err := quizzes.CreateQuiz(ctx, sampleQuiz("quiz-1", 3)); err != nil {
		t.Fatalf("create quiz: %v", err)
	}

	req := domain.PageRequest{Page: 1, PageSize: 10}
	empty, err := leaderboards.QuizLeaderboard(ctx, "quiz-1", req, false)
	if err != nil || empty.TotalCount != 0 {
		t.Fatalf("expected empty leaderboard, got %+v %v", empty, err)
	}
	key := domain.QuizLeaderboardKey("quiz-1", req.Normalize())
	if n, err := client.Exists(ctx, key).Result(); err != nil || n != 1 {
		t.Fatalf("expected leaderboard page cached, got %d %v", n, err)
	}

	attempt, err := attempts.SubmitAttempt(ctx, submission("quiz-1", "u1", 2))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if attempt.CorrectCount != 2 || attempt.AttemptNumber != 1 {
		t.Fatalf("unexpected attempt %+v", attempt)
	}
	if n, _ := client.Exists(ctx, key).Result(); n != 0 {
		t.Fatalf("expected leaderboard cache invalidated")
	}

	board, err := leaderboards.QuizLeaderboard(ctx, "quiz-1", req, false)
	if err != nil || board.TotalCount != 1 || board.Items[0].UserID != "u1" {
		t.Fatalf("unexpected leaderboard %+v %v", board, err)
	}

	detail, err := attempts.GetAttempt(ctx, attempt.ID, "u1")
	if err != nil || len(detail.Review) != 3 {
		t.Fatalf("unexpected attempt detail %+v %v", detail, err)
	}

	submitConcurrently(t, ctx, pgURL, "u2")

	global, err := leaderboards.GlobalLeaderboard(ctx, req)
	if err != nil || global.TotalCount != 2 {
		t.Fatalf("unexpected global leaderboard %+v %v", global, err)
	}
	if global.Items[0].UserID != "u2" || global.Items[0].QuizzesPlayed != 1 {
		t.Fatalf("expected u2 to lead, got %+v", global.Items)
	}

	if err := quizzes.DeleteQuiz(ctx, "quiz-1"); err != nil {
		t.Fatalf("delete quiz: %v", err)
	}
	if n, err := db.CountAttempts(ctx, domain.AttemptFilter{QuizID: "quiz-1"}); err != nil || n != 0 {
		t.Fatalf("expected attempts cascaded, got %d %v", n, err)
	}
	if _, err := leaderboards.QuizLeaderboard(ctx, "quiz-1", req, false); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz not found, got %v", err)
	}
}

// submitConcurrently races submissions through a second store opened with the
// pgx driver. Submissions of one user are serialized, so exactly the allowed
// number succeed.
func submitConcurrently(t *testing.T, ctx context.Context, pgURL, userID string) {
	t.Helper()
	db, err := store.Open(store.Options{Dialect: store.DialectPostgres, URL: pgURL, Driver: store.DriverPgx, MaxOpenConns: 8}, zap.NewNop())
	if err != nil {
		t.Fatalf("open pgx store: %v", err)
	}
	defer db.Close()

	layer := cache.NewLayer(cache.Noop{}, time.Second, zap.NewNop())
	attempts := app.NewAttemptService(db, layer, app.NewNotifier(), zap.NewNop())

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := attempts.SubmitAttempt(ctx, submission("quiz-1", userID, 3))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, domain.ErrAttemptLimitExceeded):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if accepted != 3 {
		t.Fatalf("expected 3 accepted submissions, got %d", accepted)
	}
	if _, err := attempts.SubmitAttempt(ctx, submission("quiz-1", userID, 3)); !errors.Is(err, domain.ErrAttemptLimitExceeded) {
		t.Fatalf("expected limit exceeded, got %v", err)
	}
	if n, err := db.CountAttempts(ctx, domain.AttemptFilter{QuizID: "quiz-1", UserID: userID}); err != nil || n != 3 {
		t.Fatalf("expected exactly 3 stored attempts, got %d %v", n, err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func sampleQuiz(id string, maxAttempts int) domain.Quiz {
	quiz := domain.Quiz{ID: id, Title: "Arithmetic", AuthorID: "author-1", MaxAttempts: maxAttempts}
	for i := 1; i <= 3; i++ {
		qid := fmt.Sprintf("%s-q%d", id, i)
		quiz.Questions = append(quiz.Questions, domain.Question{
			ID:    qid,
			Text:  fmt.Sprintf("What is %d + %d?", i, i),
			Order: i,
			Answers: []domain.Answer{
				{ID: qid + "-a", Text: fmt.Sprint(2 * i), IsCorrect: true},
				{ID: qid + "-b", Text: fmt.Sprint(2*i + 1)},
			},
		})
	}
	return quiz
}

func submission(quizID, userID string, correct int) domain.Submission {
	sub := domain.Submission{QuizID: quizID, UserID: userID, TotalTimeMs: 12000}
	for i := 1; i <= 3; i++ {
		qid := fmt.Sprintf("%s-q%d", quizID, i)
		answer := qid + "-b"
		if i <= correct {
			answer = qid + "-a"
		}
		sub.Answers = append(sub.Answers, domain.SubmittedAnswer{QuestionID: qid, AnswerID: answer, DisplayOrder: i - 1})
	}
	return sub
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
