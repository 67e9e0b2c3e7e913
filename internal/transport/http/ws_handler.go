package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"respondeo-service/internal/app"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// WSHandler streams a quiz leaderboard page to websocket clients.
type WSHandler struct {
	leaderboards *app.LeaderboardService
	notifier     *app.Notifier
	log          *zap.Logger
	upgrader     websocket.Upgrader
}

func NewWSHandler(leaderboards *app.LeaderboardService, notifier *app.Notifier, log *zap.Logger) *WSHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WSHandler{
		leaderboards: leaderboards,
		notifier:     notifier,
		log:          log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ServeLeaderboard sends the requested page on connect and again after every
// change to the quiz's attempts. Unknown quizzes are rejected before upgrading.
func (h *WSHandler) ServeLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	quizID := chi.URLParam(r, "id")
	req := pageRequest(r)
	admin := PrincipalFrom(ctx).Admin

	first, err := h.leaderboards.QuizLeaderboard(ctx, quizID, req, admin)
	if err != nil {
		status, body := errorFor(err, r)
		writeJSON(w, status, body)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	updates, cancel := h.notifier.Subscribe(quizID)
	defer cancel()

	send := make(chan outboundMessage[any], 4)
	writerDone := make(chan struct{})
	readerDone := make(chan struct{})

	// Only this goroutine writes to conn.
	go func() {
		defer close(writerDone)
		ping := time.NewTicker(pingPeriod)
		defer ping.Stop()
		for {
			select {
			case msg, ok := <-send:
				if !ok {
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(msg); err != nil {
					h.log.Debug("ws write failed", zap.String("quiz_id", quizID), zap.Error(err))
					return
				}
			case <-ping.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Clients never send data; reading drives pong and close handling.
	go func() {
		defer close(readerDone)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	push := func(msg outboundMessage[any]) bool {
		select {
		case send <- msg:
			return true
		case <-writerDone:
		case <-readerDone:
		}
		return false
	}

	open := push(outboundMessage[any]{Type: "leaderboard", Payload: first})
	for open {
		select {
		case <-updates:
			page, err := h.leaderboards.QuizLeaderboard(ctx, quizID, req, admin)
			if err != nil {
				_, body := errorFor(err, r)
				push(outboundMessage[any]{Type: "error", Payload: errorPayload{Code: body.Error.Code, Message: body.Error.Message}})
				open = false
				break
			}
			open = push(outboundMessage[any]{Type: "leaderboard", Payload: page})
		case <-readerDone:
			open = false
		case <-writerDone:
			open = false
		}
	}

	close(send)
	<-writerDone
}
