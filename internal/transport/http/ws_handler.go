package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"quiz-arena/internal/domain"
	"quiz-arena/internal/grading"
	"quiz-arena/internal/match"
	"quiz-arena/internal/session"
)

// QuizRepository loads quiz content (cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// WSHandler exposes attempts and matches over a websocket. One connection is
// one participant: it owns a SessionController, and when a roomId is given
// also a match Coordinator wired into the shared Room.
type WSHandler struct {
	quizzes      QuizRepository
	snapshots    session.SnapshotStore
	rooms        *match.Registry
	engine       *grading.Engine
	countdownSec int
	upgrader     websocket.Upgrader
}

func NewWSHandler(quizzes QuizRepository, snapshots session.SnapshotStore, rooms *match.Registry, engine *grading.Engine, countdownSec int) *WSHandler {
	return &WSHandler{
		quizzes:      quizzes,
		snapshots:    snapshots,
		rooms:        rooms,
		engine:       engine,
		countdownSec: countdownSec,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type startPayload struct {
	Inventory domain.PowerUpInventory `json:"inventory"`
}

type answerPayload struct {
	Value    string `json:"value"`
	Artifact string `json:"artifact,omitempty"`
}

type navigatePayload struct {
	Delta int `json:"delta"`
}

type powerUpPayload struct {
	Kind domain.PowerUpKind `json:"kind"`
}

type powerUpResult struct {
	Kind              domain.PowerUpKind `json:"kind"`
	OK                bool               `json:"ok"`
	EliminatedOptions []int              `json:"eliminatedOptions,omitempty"`
	BonusSeconds      int                `json:"bonusSeconds,omitempty"`
	Hint              string             `json:"hint,omitempty"`
}

type countdownPayload struct {
	Remaining int `json:"remaining"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and runs the attempt/match protocol until the
// client disconnects. Query params: quizId, userId, and optionally roomId
// for a two-player match.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizID := r.URL.Query().Get("quizId")
	userID := r.URL.Query().Get("userId")
	roomID := r.URL.Query().Get("roomId")
	if quizID == "" || userID == "" {
		http.Error(w, "missing quizId or userId", http.StatusBadRequest)
		return
	}

	quiz, err := h.quizzes.GetQuiz(r.Context(), quizID)
	if err != nil {
		http.Error(w, "unknown quiz", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	client := &wsClient{
		handler: h,
		conn:    conn,
		quiz:    quiz,
		userID:  userID,
		roomID:  roomID,
	}
	client.run(r.Context())
}

// wsClient is the per-connection state.
type wsClient struct {
	handler *WSHandler
	conn    *websocket.Conn
	quiz    domain.Quiz
	userID  string
	roomID  string

	mu          sync.Mutex // guards controller, set on the read loop, read by pumps
	controller  *session.Controller
	coordinator *match.Coordinator
	room        *match.Room

	send     chan outboundMessage[any]
	progress chan domain.ProgressUpdate
	closing  chan struct{}
}

func (c *wsClient) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.send = make(chan outboundMessage[any], 32)
	c.progress = make(chan domain.ProgressUpdate, 32)
	c.closing = make(chan struct{})

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range c.send {
			if err := c.conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		c.pumpProgress(ctx)
	}()

	var matchDone chan struct{}
	if c.roomID != "" {
		matchDone = make(chan struct{})
		if err := c.joinRoom(ctx, matchDone); err != nil {
			c.emit("error", errorPayload{Message: err.Error()})
			matchDone = nil
		}
	}

	c.readLoop(ctx)

	cancel()
	if c.room != nil {
		c.room.Leave(context.Background(), c.userID)
		c.handler.rooms.DeleteIfEmpty(c.roomID)
	}
	close(c.closing)
	if matchDone != nil {
		<-matchDone
	}
	<-progressDone
	close(c.send)
	<-writerDone
}

// emit queues an outbound message without ever blocking the caller; a
// closing connection swallows it.
func (c *wsClient) emit(msgType string, payload any) {
	select {
	case c.send <- outboundMessage[any]{Type: msgType, Payload: payload}:
	case <-c.closing:
	}
}

func (c *wsClient) setController(ctrl *session.Controller) {
	c.mu.Lock()
	c.controller = ctrl
	c.mu.Unlock()
}

func (c *wsClient) getController() *session.Controller {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controller
}

// readLoop drives the protocol off inbound client messages.
func (c *wsClient) readLoop(ctx context.Context) {
	for {
		var inbound inboundMessage
		if err := c.conn.ReadJSON(&inbound); err != nil {
			return
		}
		switch inbound.Type {
		case "start":
			c.handleStart(ctx, inbound.Payload)
		case "resume":
			c.handleResume(ctx)
		case "startNew":
			c.handleStartNew(ctx)
		case "answer":
			c.handleAnswer(ctx, inbound.Payload)
		case "navigate":
			c.handleNavigate(ctx, inbound.Payload)
		case "powerup":
			c.handlePowerUp(ctx, inbound.Payload)
		case "lock":
			c.handleLock()
		case "submit":
			c.handleSubmit(ctx)
		default:
			c.emit("error", errorPayload{Message: "unsupported message type"})
		}
	}
}

func (c *wsClient) handleStart(ctx context.Context, raw json.RawMessage) {
	if c.getController() != nil {
		c.emit("error", errorPayload{Message: "attempt already started"})
		return
	}
	var payload startPayload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			c.emit("error", errorPayload{Message: "invalid start payload"})
			return
		}
	}

	progress := c.progress
	ctrl := session.New(session.Config{
		Quiz:      c.quiz,
		UserID:    c.userID,
		Inventory: payload.Inventory,
		Engine:    c.handler.engine,
		Store:     c.handler.snapshots,
		OnProgress: func(p domain.ProgressUpdate) {
			queueProgress(progress, p)
		},
	})
	c.setController(ctrl)

	state, err := ctrl.Start(ctx)
	if err != nil {
		c.emit("error", errorPayload{Message: err.Error()})
		return
	}
	if state == session.StateResumePrompt {
		c.emit("resumePrompt", struct{}{})
		return
	}
	c.attemptRunning(ctx)
}

func (c *wsClient) handleResume(ctx context.Context) {
	ctrl := c.getController()
	if ctrl == nil {
		c.emit("error", errorPayload{Message: "attempt not started"})
		return
	}
	if _, err := ctrl.Resume(); err != nil {
		c.emit("error", errorPayload{Message: err.Error()})
		return
	}
	c.attemptRunning(ctx)
}

func (c *wsClient) handleStartNew(ctx context.Context) {
	ctrl := c.getController()
	if ctrl == nil {
		c.emit("error", errorPayload{Message: "attempt not started"})
		return
	}
	if _, err := ctrl.StartNew(ctx); err != nil {
		c.emit("error", errorPayload{Message: err.Error()})
		return
	}
	c.attemptRunning(ctx)
}

// attemptRunning announces the in-progress view and starts the quiz timer.
// In a match the timer waits for the room's countdown to finish so both
// sides start together, unless the match already started (a rejoin), in
// which case the clock resumes immediately.
func (c *wsClient) attemptRunning(ctx context.Context) {
	ctrl := c.getController()
	c.emit("state", ctrl.CurrentView())
	if c.roomID == "" || (c.coordinator != nil && c.coordinator.Started()) {
		go ctrl.RunTimer(ctx)
	}
}

func (c *wsClient) handleAnswer(ctx context.Context, raw json.RawMessage) {
	ctrl := c.getController()
	if ctrl == nil {
		c.emit("error", errorPayload{Message: "attempt not started"})
		return
	}
	var payload answerPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.emit("error", errorPayload{Message: "invalid answer payload"})
		return
	}
	if err := ctrl.Answer(ctx, payload.Value, payload.Artifact); err != nil {
		c.emit("error", errorPayload{Message: err.Error()})
		return
	}
	c.emit("state", ctrl.CurrentView())
}

func (c *wsClient) handleNavigate(ctx context.Context, raw json.RawMessage) {
	ctrl := c.getController()
	if ctrl == nil {
		c.emit("error", errorPayload{Message: "attempt not started"})
		return
	}
	var payload navigatePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.emit("error", errorPayload{Message: "invalid navigate payload"})
		return
	}
	if err := ctrl.Navigate(ctx, payload.Delta); err != nil {
		c.emit("error", errorPayload{Message: err.Error()})
		return
	}
	c.emit("state", ctrl.CurrentView())
}

func (c *wsClient) handlePowerUp(ctx context.Context, raw json.RawMessage) {
	ctrl := c.getController()
	if ctrl == nil {
		c.emit("error", errorPayload{Message: "attempt not started"})
		return
	}
	var payload powerUpPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.emit("error", errorPayload{Message: "invalid powerup payload"})
		return
	}
	effect, ok := ctrl.UsePowerUp(ctx, payload.Kind)
	c.emit("powerup", powerUpResult{
		Kind:              payload.Kind,
		OK:                ok,
		EliminatedOptions: effect.EliminatedOptions,
		BonusSeconds:      effect.BonusSeconds,
		Hint:              effect.Hint,
	})
}

func (c *wsClient) handleLock() {
	ctrl := c.getController()
	if ctrl == nil {
		c.emit("error", errorPayload{Message: "attempt not started"})
		return
	}
	graded, err := ctrl.LockQuestion()
	if err != nil {
		c.emit("error", errorPayload{Message: err.Error()})
		return
	}
	c.emit("locked", graded)
}

func (c *wsClient) handleSubmit(ctx context.Context) {
	ctrl := c.getController()
	if ctrl == nil {
		c.emit("error", errorPayload{Message: "attempt not started"})
		return
	}
	result, err := ctrl.Submit(ctx)
	if err != nil {
		c.emit("error", errorPayload{Message: err.Error()})
		return
	}
	c.emit("result", result)
}

// pumpProgress forwards controller progress to the client and, in a match,
// into the room. Completion triggers the result push and the completion
// report; the timer-forced submit flows through here too.
func (c *wsClient) pumpProgress(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closing:
			return
		case p := <-c.progress:
			c.emit("progress", p)
			if c.coordinator != nil {
				c.coordinator.RecordLocal(p)
				c.emit("standing", c.coordinator.Standing())
			}
			if c.room != nil {
				if err := c.room.Progress(ctx, p); err != nil {
					log.Printf("room progress publish: %v", err)
				}
			}
			if p.Completed {
				ctrl := c.getController()
				if ctrl == nil {
					continue
				}
				if result, ok := ctrl.Result(); ok {
					c.emit("result", result)
					if c.room != nil {
						if err := c.room.Complete(ctx, domain.CompletionReport{
							UserID:       c.userID,
							Score:        result.Points,
							TimeTakenSec: result.TimeTakenSec,
						}); err != nil {
							log.Printf("room complete publish: %v", err)
						}
					}
				}
			}
		}
	}
}

// joinRoom wires this connection into the match room and starts the
// subscription pump. A participant rejoining a room that already announced
// readiness (or finished) gets those messages replayed locally so its
// coordinator catches up.
func (c *wsClient) joinRoom(ctx context.Context, done chan struct{}) error {
	c.coordinator = match.NewCoordinator(c.userID, c.handler.countdownSec)
	room, err := c.handler.rooms.GetOrCreate(c.roomID)
	if err != nil {
		close(done)
		return err
	}

	updates, cancelSub, err := room.Channel().Subscribe(ctx)
	if err != nil {
		close(done)
		return err
	}
	if err := room.Join(ctx, c.userID); err != nil {
		cancelSub()
		close(done)
		return err
	}
	c.room = room

	if room.Ready() {
		c.handleRoomMessage(ctx, match.Message{Type: match.MsgMatchReady, RoomID: c.roomID})
	}
	if v, ok := room.Verdict(); ok {
		c.handleRoomMessage(ctx, match.Message{Type: match.MsgGameOver, RoomID: c.roomID, Verdict: &v})
	}

	go func() {
		defer close(done)
		defer cancelSub()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.closing:
				return
			case msg, ok := <-updates:
				if !ok {
					c.coordinator.SetConnState(match.ConnDisconnected)
					return
				}
				c.handleRoomMessage(ctx, msg)
			}
		}
	}()
	return nil
}

func (c *wsClient) handleRoomMessage(ctx context.Context, msg match.Message) {
	switch msg.Type {
	case match.MsgMatchReady:
		if c.coordinator.MatchReady() {
			c.emit("matchReady", struct{}{})
			go c.runCountdown(ctx)
		}
	case match.MsgUpdateProgress:
		if msg.SenderID == c.userID || msg.Progress == nil {
			return
		}
		if c.coordinator.RecordRemote(*msg.Progress) {
			c.emit("opponentProgress", *msg.Progress)
			c.emit("standing", c.coordinator.Standing())
		}
	case match.MsgGameOver:
		if msg.Verdict == nil {
			return
		}
		if c.coordinator.SetVerdict(*msg.Verdict) {
			c.emit("gameOver", *msg.Verdict)
		}
	}
}

// queueProgress enqueues a progress update, evicting the oldest buffered
// update when the channel is full so the latest state (including the
// completion update) always gets through. The controller serializes calls,
// so there is a single producer and the drain-retry loop terminates.
func queueProgress(ch chan domain.ProgressUpdate, p domain.ProgressUpdate) {
	for {
		select {
		case ch <- p:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// runCountdown ticks the pre-match countdown at 1 Hz; when it elapses the
// quiz timer starts so both participants race the same clock.
func (c *wsClient) runCountdown(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closing:
			return
		case <-ticker.C:
			remaining, started := c.coordinator.CountdownTick()
			c.emit("countdown", countdownPayload{Remaining: remaining})
			if started {
				if ctrl := c.getController(); ctrl != nil {
					go ctrl.RunTimer(ctx)
				}
				return
			}
		}
	}
}
