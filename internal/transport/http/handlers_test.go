package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"respondeo-service/internal/app"
	"respondeo-service/internal/cache"
	"respondeo-service/internal/domain"
	"respondeo-service/internal/infra/memory"
)

type testServer struct {
	*httptest.Server
	quizzes  *app.QuizService
	attempts *app.AttemptService
}

func newTestServer(t *testing.T, submitRate int) *testServer {
	t.Helper()
	store := memory.NewStore()
	layer := cache.NewLayer(memory.NewCache(), time.Second, zap.NewNop())
	ttls := cache.DefaultTTLs()
	notifier := app.NewNotifier()

	quizzes := app.NewQuizService(store, layer, ttls, notifier, zap.NewNop())
	attempts := app.NewAttemptService(store, layer, notifier, zap.NewNop())
	leaderboards := app.NewLeaderboardService(store, layer, ttls)

	if _, err := quizzes.CreateQuiz(context.Background(), sampleQuiz("quiz-1", 2)); err != nil {
		t.Fatalf("seed quiz: %v", err)
	}

	router := NewRouter(Deps{
		Quizzes:             quizzes,
		Attempts:            attempts,
		Leaderboards:        leaderboards,
		Notifier:            notifier,
		Log:                 zap.NewNop(),
		SubmitRatePerMinute: submitRate,
		Gatherer:            prometheus.NewRegistry(),
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, quizzes: quizzes, attempts: attempts}
}

func sampleQuiz(id string, maxAttempts int) domain.Quiz {
	quiz := domain.Quiz{ID: id, Title: "Quiz " + id, AuthorID: "author-1", MaxAttempts: maxAttempts}
	for i := 1; i <= 3; i++ {
		qid := fmt.Sprintf("%s-q%d", id, i)
		quiz.Questions = append(quiz.Questions, domain.Question{
			ID:    qid,
			Text:  fmt.Sprintf("Question %d", i),
			Order: i,
			Answers: []domain.Answer{
				{ID: qid + "-a", Text: "right", IsCorrect: true},
				{ID: qid + "-b", Text: "wrong"},
			},
		})
	}
	return quiz
}

func (s *testServer) do(t *testing.T, method, path, userID, role string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if userID != "" {
		req.Header.Set(HeaderUserID, userID)
	}
	if role != "" {
		req.Header.Set(HeaderUserRole, role)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, raw
}

func submission(correct int) submitRequest {
	req := submitRequest{TotalTimeMs: 30000}
	for i := 1; i <= 3; i++ {
		answer := "b"
		if i <= correct {
			answer = "a"
		}
		qid := fmt.Sprintf("quiz-1-q%d", i)
		req.Answers = append(req.Answers, domain.SubmittedAnswer{QuestionID: qid, AnswerID: qid + "-" + answer, DisplayOrder: i - 1})
	}
	return req
}

func decodeError(t *testing.T, raw []byte) apiError {
	t.Helper()
	var body errorResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("decode error body %s: %v", raw, err)
	}
	return body.Error
}

func TestSubmitAttemptAndLimit(t *testing.T) {
	srv := newTestServer(t, 0)

	status, raw := srv.do(t, http.MethodPost, "/api/quizzes/quiz-1/attempts", "u1", "", submission(2))
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", status, raw)
	}
	var attempt domain.Attempt
	if err := json.Unmarshal(raw, &attempt); err != nil {
		t.Fatalf("decode attempt: %v", err)
	}
	if attempt.CorrectCount != 2 || attempt.TotalQuestions != 3 || attempt.UserID != "u1" {
		t.Fatalf("unexpected attempt %+v", attempt)
	}

	if status, raw := srv.do(t, http.MethodPost, "/api/quizzes/quiz-1/attempts", "u1", "", submission(3)); status != http.StatusCreated {
		t.Fatalf("expected second attempt accepted, got %d: %s", status, raw)
	}
	status, raw = srv.do(t, http.MethodPost, "/api/quizzes/quiz-1/attempts", "u1", "", submission(3))
	if status != http.StatusConflict || decodeError(t, raw).Code != "ATTEMPT_LIMIT_EXCEEDED" {
		t.Fatalf("expected 409 limit exceeded, got %d: %s", status, raw)
	}

	status, raw = srv.do(t, http.MethodGet, "/api/quizzes/quiz-1/attempts/status", "u1", "", nil)
	var st domain.AttemptStatus
	if status != http.StatusOK || json.Unmarshal(raw, &st) != nil || st.Used != 2 || st.Remaining != 0 {
		t.Fatalf("unexpected status %d %s", status, raw)
	}
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t, 0)

	cases := []struct {
		name   string
		method string
		path   string
		user   string
		role   string
		body   any
		status int
		code   string
	}{
		{"anonymous submit", http.MethodPost, "/api/quizzes/quiz-1/attempts", "", "", submission(1), http.StatusUnauthorized, "UNAUTHORIZED"},
		{"unknown quiz", http.MethodPost, "/api/quizzes/nope/attempts", "u1", "", submission(1), http.StatusNotFound, "QUIZ_NOT_FOUND"},
		{"malformed body", http.MethodPost, "/api/quizzes/quiz-1/attempts", "u1", "", "not an object", http.StatusBadRequest, "VALIDATION_ERROR"},
		{"negative time", http.MethodPost, "/api/quizzes/quiz-1/attempts", "u1", "", submitRequest{TotalTimeMs: -1}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown attempt", http.MethodGet, "/api/attempts/missing", "u1", "", nil, http.StatusNotFound, "ATTEMPT_NOT_FOUND"},
		{"delete without admin", http.MethodDelete, "/api/quizzes/quiz-1", "u1", "", nil, http.StatusForbidden, "FORBIDDEN"},
		{"unknown leaderboard", http.MethodGet, "/api/quizzes/nope/leaderboard", "", "", nil, http.StatusNotFound, "QUIZ_NOT_FOUND"},
	}
	for _, tc := range cases {
		status, raw := srv.do(t, tc.method, tc.path, tc.user, tc.role, tc.body)
		if status != tc.status {
			t.Fatalf("%s: expected %d, got %d: %s", tc.name, tc.status, status, raw)
		}
		if got := decodeError(t, raw).Code; got != tc.code {
			t.Fatalf("%s: expected code %s, got %s", tc.name, tc.code, got)
		}
	}
}

func TestLeaderboardEndpoints(t *testing.T) {
	srv := newTestServer(t, 0)
	srv.do(t, http.MethodPost, "/api/quizzes/quiz-1/attempts", "u1", "", submission(1))
	srv.do(t, http.MethodPost, "/api/quizzes/quiz-1/attempts", "u2", "", submission(3))

	status, raw := srv.do(t, http.MethodGet, "/api/quizzes/quiz-1/leaderboard?page=1&limit=1", "", "", nil)
	var page domain.Page[domain.RankedEntry]
	if status != http.StatusOK || json.Unmarshal(raw, &page) != nil {
		t.Fatalf("unexpected response %d %s", status, raw)
	}
	if page.TotalCount != 2 || page.TotalPages != 2 || !page.HasMore || len(page.Items) != 1 {
		t.Fatalf("unexpected page %+v", page)
	}
	if page.Items[0].UserID != "u2" || page.Items[0].Rank != 1 {
		t.Fatalf("expected u2 first, got %+v", page.Items[0])
	}

	status, raw = srv.do(t, http.MethodGet, "/api/leaderboard", "", "", nil)
	var global domain.Page[domain.GlobalRankedEntry]
	if status != http.StatusOK || json.Unmarshal(raw, &global) != nil {
		t.Fatalf("unexpected response %d %s", status, raw)
	}
	if global.TotalCount != 2 || global.Items[0].UserID != "u2" || global.Items[1].Rank != 2 {
		t.Fatalf("unexpected global page %+v", global)
	}
}

func TestQuizEndpointsHideCorrectness(t *testing.T) {
	srv := newTestServer(t, 0)

	status, raw := srv.do(t, http.MethodGet, "/api/quizzes/quiz-1", "u1", "", nil)
	if status != http.StatusOK || bytes.Contains(raw, []byte("isCorrect")) {
		t.Fatalf("expected summary without answers, got %d %s", status, raw)
	}
	status, raw = srv.do(t, http.MethodGet, "/api/quizzes/quiz-1", "admin-1", "admin", nil)
	if status != http.StatusOK || !bytes.Contains(raw, []byte("isCorrect")) {
		t.Fatalf("expected full quiz for admin, got %d %s", status, raw)
	}

	status, raw = srv.do(t, http.MethodGet, "/api/quizzes/quiz-1/play", "u1", "", nil)
	var play domain.PlayQuiz
	if status != http.StatusOK || json.Unmarshal(raw, &play) != nil || len(play.Questions) != 3 {
		t.Fatalf("unexpected play response %d %s", status, raw)
	}
	if bytes.Contains(raw, []byte("isCorrect")) {
		t.Fatalf("play view leaks correctness: %s", raw)
	}

	status, raw = srv.do(t, http.MethodGet, "/api/quizzes?limit=10", "", "", nil)
	var list domain.Page[domain.QuizSummary]
	if status != http.StatusOK || json.Unmarshal(raw, &list) != nil || list.TotalCount != 1 || list.Items[0].QuestionCount != 3 {
		t.Fatalf("unexpected listing %d %s", status, raw)
	}
}

func TestAdminQuizLifecycle(t *testing.T) {
	srv := newTestServer(t, 0)

	status, raw := srv.do(t, http.MethodPost, "/api/quizzes", "admin-1", "admin", sampleQuiz("quiz-2", 1))
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", status, raw)
	}
	status, raw = srv.do(t, http.MethodPost, "/api/quizzes", "admin-1", "admin", sampleQuiz("quiz-2", 1))
	if status != http.StatusConflict || decodeError(t, raw).Code != "QUIZ_EXISTS" {
		t.Fatalf("expected duplicate rejected, got %d: %s", status, raw)
	}

	if status, raw := srv.do(t, http.MethodDelete, "/api/quizzes/quiz-2", "admin-1", "admin", nil); status != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", status, raw)
	}
	if status, _ := srv.do(t, http.MethodGet, "/api/quizzes/quiz-2", "u1", "", nil); status != http.StatusNotFound {
		t.Fatalf("expected deleted quiz gone, got %d", status)
	}
}

func TestAttemptReviewIsOwnerOnly(t *testing.T) {
	srv := newTestServer(t, 0)
	_, raw := srv.do(t, http.MethodPost, "/api/quizzes/quiz-1/attempts", "u1", "", submission(2))
	var attempt domain.Attempt
	if err := json.Unmarshal(raw, &attempt); err != nil {
		t.Fatalf("decode attempt: %v", err)
	}

	status, raw := srv.do(t, http.MethodGet, "/api/attempts/"+attempt.ID, "u1", "", nil)
	var detail domain.AttemptDetail
	if status != http.StatusOK || json.Unmarshal(raw, &detail) != nil || len(detail.Review) != 3 {
		t.Fatalf("unexpected review %d %s", status, raw)
	}
	if status, _ := srv.do(t, http.MethodGet, "/api/attempts/"+attempt.ID, "u2", "", nil); status != http.StatusNotFound {
		t.Fatalf("expected other user to get 404, got %d", status)
	}

	status, raw = srv.do(t, http.MethodGet, "/api/quizzes/quiz-1/attempts", "u1", "", nil)
	var mine domain.Page[domain.Attempt]
	if status != http.StatusOK || json.Unmarshal(raw, &mine) != nil || mine.TotalCount != 1 {
		t.Fatalf("unexpected attempt list %d %s", status, raw)
	}
}

func TestSubmitRateLimit(t *testing.T) {
	srv := newTestServer(t, 1)

	if status, raw := srv.do(t, http.MethodPost, "/api/quizzes/quiz-1/attempts", "u1", "", submission(1)); status != http.StatusCreated {
		t.Fatalf("expected first submission accepted, got %d: %s", status, raw)
	}
	status, raw := srv.do(t, http.MethodPost, "/api/quizzes/quiz-1/attempts", "u1", "", submission(1))
	if status != http.StatusTooManyRequests || decodeError(t, raw).Code != "RATE_LIMITED" {
		t.Fatalf("expected 429, got %d: %s", status, raw)
	}
	if status, raw := srv.do(t, http.MethodPost, "/api/quizzes/quiz-1/attempts", "u2", "", submission(1)); status != http.StatusCreated {
		t.Fatalf("expected other user unaffected, got %d: %s", status, raw)
	}
}

func TestAnonymousSubmissionsDoNotConsumeBuckets(t *testing.T) {
	srv := newTestServer(t, 1)
	for i := 0; i < 3; i++ {
		status, raw := srv.do(t, http.MethodPost, "/api/quizzes/quiz-1/attempts", "", "", submission(1))
		if status != http.StatusUnauthorized {
			t.Fatalf("expected 401 for anonymous submission, got %d: %s", status, raw)
		}
	}
	if status, raw := srv.do(t, http.MethodPost, "/api/quizzes/quiz-1/attempts", "u1", "", submission(1)); status != http.StatusCreated {
		t.Fatalf("expected identified submission accepted, got %d: %s", status, raw)
	}
}

func TestSubmitLimiterEvictsIdleUsers(t *testing.T) {
	now := time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC)
	limiter := NewSubmitLimiter(1)
	limiter.now = func() time.Time { return now }

	for _, user := range []string{"u1", "u2", "u3"} {
		if !limiter.Allow(user) {
			t.Fatalf("expected first submission of %s allowed", user)
		}
	}
	if limiter.Allow("u1") {
		t.Fatalf("expected u1 throttled within the minute")
	}
	if limiter.Len() != 3 {
		t.Fatalf("expected three buckets, got %d", limiter.Len())
	}

	now = now.Add(2 * time.Minute)
	if !limiter.Allow("u4") {
		t.Fatalf("expected new user allowed")
	}
	if limiter.Len() != 1 {
		t.Fatalf("expected idle buckets evicted, got %d", limiter.Len())
	}
	if !limiter.Allow("u1") {
		t.Fatalf("expected u1 allowed after refill")
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, 0)
	if status, raw := srv.do(t, http.MethodGet, "/healthz", "", "", nil); status != http.StatusOK || string(raw) != "ok" {
		t.Fatalf("unexpected health %d %s", status, raw)
	}
	if status, _ := srv.do(t, http.MethodGet, "/metrics", "", "", nil); status != http.StatusOK {
		t.Fatalf("unexpected metrics status %d", status)
	}
}
