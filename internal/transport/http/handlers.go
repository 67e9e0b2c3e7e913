package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"respondeo-service/internal/app"
	"respondeo-service/internal/domain"
)

// Handler serves the JSON API.
type Handler struct {
	quizzes      *app.QuizService
	attempts     *app.AttemptService
	leaderboards *app.LeaderboardService
	log          *zap.Logger
}

func NewHandler(quizzes *app.QuizService, attempts *app.AttemptService, leaderboards *app.LeaderboardService, log *zap.Logger) *Handler {
	return &Handler{quizzes: quizzes, attempts: attempts, leaderboards: leaderboards, log: log}
}

type apiError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

type submitRequest struct {
	Answers     []domain.SubmittedAnswer `json:"answers"`
	TotalTimeMs int64                    `json:"totalTimeMs"`
	TimedOut    bool                     `json:"timedOut"`
}

func (h *Handler) ListQuizzes(w http.ResponseWriter, r *http.Request) {
	page, err := h.quizzes.ListQuizzes(r.Context(), pageRequest(r), PrincipalFrom(r.Context()).Admin)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// GetQuiz returns the full quiz to admins and the summary to everyone else so
// correct answers never leave the service before an attempt is made.
func (h *Handler) GetQuiz(w http.ResponseWriter, r *http.Request) {
	admin := PrincipalFrom(r.Context()).Admin
	quiz, err := h.quizzes.GetQuiz(r.Context(), chi.URLParam(r, "id"), admin)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if admin {
		writeJSON(w, http.StatusOK, quiz)
		return
	}
	writeJSON(w, http.StatusOK, quiz.Summary())
}

func (h *Handler) CreateQuiz(w http.ResponseWriter, r *http.Request) {
	var quiz domain.Quiz
	if err := json.NewDecoder(r.Body).Decode(&quiz); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "invalid request body", r))
		return
	}
	if quiz.AuthorID == "" {
		quiz.AuthorID = PrincipalFrom(r.Context()).UserID
	}
	created, err := h.quizzes.CreateQuiz(r.Context(), quiz)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) DeleteQuiz(w http.ResponseWriter, r *http.Request) {
	if err := h.quizzes.DeleteQuiz(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) PlayQuiz(w http.ResponseWriter, r *http.Request) {
	play, err := h.quizzes.PlayQuiz(r.Context(), chi.URLParam(r, "id"), PrincipalFrom(r.Context()).UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, play)
}

func (h *Handler) SubmitAttempt(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "invalid request body", r))
		return
	}
	attempt, err := h.attempts.SubmitAttempt(r.Context(), domain.Submission{
		QuizID:      chi.URLParam(r, "id"),
		UserID:      PrincipalFrom(r.Context()).UserID,
		Answers:     req.Answers,
		TotalTimeMs: req.TotalTimeMs,
		TimedOut:    req.TimedOut,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, attempt)
}

// ListAttempts lists the caller's attempts on a quiz. Admins may pass userId
// to inspect another player, or all=true for every player.
func (h *Handler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	p := PrincipalFrom(r.Context())
	filter := domain.AttemptFilter{QuizID: chi.URLParam(r, "id"), UserID: p.UserID}
	if p.Admin {
		if userID := r.URL.Query().Get("userId"); userID != "" {
			filter.UserID = userID
		} else if r.URL.Query().Get("all") == "true" {
			filter.UserID = ""
		}
	}
	page, err := h.attempts.ListAttempts(r.Context(), filter, pageRequest(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) AttemptStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.attempts.AttemptStatus(r.Context(), chi.URLParam(r, "id"), PrincipalFrom(r.Context()).UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) GetAttempt(w http.ResponseWriter, r *http.Request) {
	detail, err := h.attempts.GetAttempt(r.Context(), chi.URLParam(r, "id"), PrincipalFrom(r.Context()).UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) DeleteAttempt(w http.ResponseWriter, r *http.Request) {
	if err := h.attempts.DeleteAttempt(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) QuizLeaderboard(w http.ResponseWriter, r *http.Request) {
	page, err := h.leaderboards.QuizLeaderboard(r.Context(), chi.URLParam(r, "id"), pageRequest(r), PrincipalFrom(r.Context()).Admin)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) GlobalLeaderboard(w http.ResponseWriter, r *http.Request) {
	page, err := h.leaderboards.GlobalLeaderboard(r.Context(), pageRequest(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorFor(err, r)
	if status == http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", chimiddleware.GetReqID(r.Context())),
			zap.Error(err))
	}
	writeJSON(w, status, body)
}

// errorFor maps the domain error taxonomy onto HTTP.
func errorFor(err error, r *http.Request) (int, errorResponse) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, errorResp("VALIDATION_ERROR", verr.Error(), r)
	case errors.Is(err, domain.ErrQuizNotFound):
		return http.StatusNotFound, errorResp("QUIZ_NOT_FOUND", err.Error(), r)
	case errors.Is(err, domain.ErrAttemptNotFound):
		return http.StatusNotFound, errorResp("ATTEMPT_NOT_FOUND", err.Error(), r)
	case errors.Is(err, domain.ErrAttemptLimitExceeded):
		return http.StatusConflict, errorResp("ATTEMPT_LIMIT_EXCEEDED", err.Error(), r)
	case errors.Is(err, domain.ErrQuizExists):
		return http.StatusConflict, errorResp("QUIZ_EXISTS", err.Error(), r)
	default:
		return http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "internal error", r)
	}
}

func pageRequest(r *http.Request) domain.PageRequest {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("limit"))
	return domain.PageRequest{Page: page, PageSize: size}.Normalize()
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func errorResp(code, message string, r *http.Request) errorResponse {
	return errorResponse{Error: apiError{
		Code:      code,
		Message:   message,
		RequestID: chimiddleware.GetReqID(r.Context()),
	}}
}
