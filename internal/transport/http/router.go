package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"respondeo-service/internal/app"
)

// Deps are the use cases and settings the router serves.
type Deps struct {
	Quizzes             *app.QuizService
	Attempts            *app.AttemptService
	Leaderboards        *app.LeaderboardService
	Notifier            *app.Notifier
	Log                 *zap.Logger
	SubmitRatePerMinute int
	Gatherer            prometheus.Gatherer
}

// NewRouter mounts the JSON API, the leaderboard websocket feed, health and
// metrics endpoints.
func NewRouter(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}

	api := NewHandler(d.Quizzes, d.Attempts, d.Leaderboards, d.Log)
	ws := NewWSHandler(d.Leaderboards, d.Notifier, d.Log)
	limiter := NewSubmitLimiter(d.SubmitRatePerMinute)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(observe)
	r.Use(identify)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/leaderboard", api.GlobalLeaderboard)
		r.Get("/attempts/{id}", requireUser(api.GetAttempt))
		r.Delete("/attempts/{id}", requireAdmin(api.DeleteAttempt))

		r.Route("/quizzes", func(r chi.Router) {
			r.Get("/", api.ListQuizzes)
			r.Post("/", requireAdmin(api.CreateQuiz))
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", api.GetQuiz)
				r.Delete("/", requireAdmin(api.DeleteQuiz))
				r.Get("/play", requireUser(api.PlayQuiz))
				r.Get("/leaderboard", api.QuizLeaderboard)
				r.Post("/attempts", requireUser(limiter.Limit(api.SubmitAttempt)))
				r.Get("/attempts", requireUser(api.ListAttempts))
				r.Get("/attempts/status", requireUser(api.AttemptStatus))
			})
		})
	})

	r.Get("/ws/quizzes/{id}/leaderboard", ws.ServeLeaderboard)
	return r
}
