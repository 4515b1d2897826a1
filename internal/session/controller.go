package session

import (
	"context"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"quiz-arena/internal/domain"
	"quiz-arena/internal/grading"
	"quiz-arena/internal/powerup"
)

// State is the attempt lifecycle. Transitions are forward-only; in-progress
// is entered from resume-prompt by either Resume or StartNew.
type State string

const (
	StateNotStarted   State = "not-started"
	StateResumePrompt State = "resume-prompt"
	StateInProgress   State = "in-progress"
	StateSubmitting   State = "submitting"
	StateCompleted    State = "completed"
)

// ProgressFunc receives provisional progress after every answer change.
// It is invoked with the controller lock held and must not call back into
// the Controller; hand the update to a channel and return.
type ProgressFunc func(domain.ProgressUpdate)

// Config wires a Controller. Now, Rand and OnProgress are optional.
type Config struct {
	Quiz       domain.Quiz
	UserID     string
	Inventory  domain.PowerUpInventory
	Engine     *grading.Engine
	Store      SnapshotStore
	OnProgress ProgressFunc
	Now        func() time.Time
	Rand       *rand.Rand
}

// Controller owns one attempt: navigation, answers, the countdown timer,
// power-up delegation and snapshot persistence. All methods are safe for
// concurrent use; a single mutex serializes every mutation, so the timer
// goroutine and the transport goroutine never race on attempt state.
type Controller struct {
	quiz      domain.Quiz
	userID    string
	attemptID string
	engine    *grading.Engine
	powerUps  *powerup.Manager
	store     SnapshotStore
	onEvent   ProgressFunc
	now       func() time.Time
	rnd       *rand.Rand

	mu            sync.Mutex
	state         State
	pending       *domain.AttemptSnapshot
	questionOrder []int
	optionOrders  map[int][]int
	position      int
	answers       map[int]string
	artifacts     map[int]string
	timeLeft      int
	paused        bool
	timerOn       bool
	startedAt     time.Time
	seq           uint64
	locked        map[int]domain.GradingResult
	result        *domain.QuizResult

	persistCh   chan domain.AttemptSnapshot
	persistDone chan struct{}
}

func New(cfg Config) *Controller {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	rnd := cfg.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(now().UnixNano()))
	}
	onEvent := cfg.OnProgress
	if onEvent == nil {
		onEvent = func(domain.ProgressUpdate) {}
	}
	return &Controller{
		quiz:      cfg.Quiz,
		userID:    cfg.UserID,
		attemptID: uuid.NewString(),
		engine:    cfg.Engine,
		powerUps:  powerup.NewManagerWithRand(cfg.Inventory, rnd, now),
		store:     cfg.Store,
		onEvent:   onEvent,
		now:       now,
		rnd:       rnd,
		state:     StateNotStarted,
		answers:   make(map[int]string),
		artifacts: make(map[int]string),
		locked:    make(map[int]domain.GradingResult),
	}
}

// Start begins the attempt. When a compatible snapshot exists for this
// (user, quiz) the controller stops in resume-prompt and waits for an
// explicit Resume or StartNew; otherwise it starts fresh immediately.
// Unreadable or stale snapshots are discarded, never fatal.
func (c *Controller) Start(ctx context.Context) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateNotStarted {
		return c.state, domain.ErrInvalidTransition
	}

	if c.store != nil {
		snap, err := c.store.Get(ctx, c.key())
		if err == nil && c.compatible(snap) {
			c.pending = &snap
			c.state = StateResumePrompt
			return c.state, nil
		}
		if err != nil && err != domain.ErrSnapshotNotFound {
			log.Printf("attempt snapshot unreadable for %s, starting fresh: %v", c.key(), err)
		}
	}

	c.startNewLocked(ctx)
	return c.state, nil
}

// compatible applies the resume policy: same quiz, current schema, not yet
// submitted, and either time left on the clock or an unlimited-time quiz.
func (c *Controller) compatible(snap domain.AttemptSnapshot) bool {
	if snap.QuizID != c.quiz.ID || snap.Version != domain.SnapshotVersion || snap.Submitted {
		return false
	}
	return c.quiz.Unlimited() || snap.TimeLeftSec > 0
}

// Resume restores the pending snapshot verbatim: position, answers, timer
// and the saved question order. Snapshots that predate order tracking fall
// back to identity order.
func (c *Controller) Resume() (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateResumePrompt || c.pending == nil {
		return c.state, domain.ErrInvalidTransition
	}
	snap := *c.pending
	c.pending = nil

	c.attemptID = snap.AttemptID
	c.questionOrder = snap.QuestionOrder
	if len(c.questionOrder) != len(c.quiz.Questions) {
		c.questionOrder = identityOrder(len(c.quiz.Questions))
	}
	c.optionOrders = snap.OptionOrders
	if c.optionOrders == nil {
		c.optionOrders = c.identityOptionOrders()
	}
	c.position = clamp(snap.Position, 0, len(c.questionOrder)-1)
	c.answers = snap.Answers
	if c.answers == nil {
		c.answers = make(map[int]string)
	}
	c.artifacts = snap.Artifacts
	if c.artifacts == nil {
		c.artifacts = make(map[int]string)
	}
	c.timeLeft = snap.TimeLeftSec
	c.seq = snap.Seq
	if len(c.questionOrder) > 0 {
		c.powerUps.Restore(snap.PowerUpLog, c.questionOrder[c.position])
	}
	c.startedAt = c.now().Add(-time.Duration(c.elapsedFromSnapshot(snap)) * time.Second)
	c.state = StateInProgress
	return c.state, nil
}

func (c *Controller) elapsedFromSnapshot(snap domain.AttemptSnapshot) int {
	if c.quiz.Unlimited() {
		return 0
	}
	return c.quiz.TimeLimitSec - snap.TimeLeftSec
}

// StartNew discards any pending snapshot and begins a freshly shuffled
// attempt.
func (c *Controller) StartNew(ctx context.Context) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateResumePrompt {
		return c.state, domain.ErrInvalidTransition
	}
	c.pending = nil
	if c.store != nil {
		_ = c.store.Delete(ctx, c.key())
	}
	c.startNewLocked(ctx)
	return c.state, nil
}

func (c *Controller) startNewLocked(ctx context.Context) {
	n := len(c.quiz.Questions)
	c.questionOrder = c.rnd.Perm(n)
	c.optionOrders = make(map[int][]int, n)
	for i, q := range c.quiz.Questions {
		if q.Kind == domain.KindMultipleChoice && q.Shuffled() {
			c.optionOrders[i] = c.rnd.Perm(len(q.Options))
		} else {
			c.optionOrders[i] = identityOrder(len(q.Options))
		}
	}
	c.position = 0
	c.answers = make(map[int]string)
	c.artifacts = make(map[int]string)
	c.timeLeft = c.quiz.TimeLimitSec
	c.startedAt = c.now()
	c.state = StateInProgress
	c.persistLocked(ctx)
}

// Answer records the value for the current question, keyed by its original
// index; repeated answers overwrite. The artifact carries generated source
// for block questions. A provisional score is pushed to the progress
// listener after every change.
func (c *Controller) Answer(ctx context.Context, value, artifact string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateInProgress {
		return domain.ErrAttemptFinalized
	}
	orig := c.questionOrder[c.position]
	if _, isLocked := c.locked[orig]; isLocked {
		return domain.ErrQuestionLocked
	}

	c.answers[orig] = value
	if c.quiz.Questions[orig].Kind == domain.KindBlock {
		c.artifacts[orig] = artifact
	}
	// Emit first so the persisted Seq covers this update; a resumed attempt
	// then continues numbering above everything the opponent has seen.
	c.emitProgressLocked(false)
	c.persistLocked(ctx)
	return nil
}

// Navigate moves by delta (±1) within bounds and resets per-question
// power-up usage. Locked review-mode gradings survive navigation.
func (c *Controller) Navigate(ctx context.Context, delta int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateInProgress {
		return domain.ErrAttemptFinalized
	}
	next := clamp(c.position+delta, 0, len(c.questionOrder)-1)
	if next == c.position {
		return nil
	}
	c.position = next
	c.powerUps.ResetQuestion()
	c.persistLocked(ctx)
	return nil
}

// UsePowerUp delegates to the power-up rules. Failures are silent: no
// effect, no inventory change, and a zero Effect is returned with ok=false.
func (c *Controller) UsePowerUp(ctx context.Context, kind domain.PowerUpKind) (powerup.Effect, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateInProgress {
		return powerup.Effect{}, false
	}
	orig := c.questionOrder[c.position]
	effect, ok := c.powerUps.Use(kind, powerup.QuestionContext{
		Question:       c.quiz.Questions[orig],
		QuestionIndex:  orig,
		OptionOrder:    c.optionOrders[orig],
		TimerUnlimited: c.quiz.Unlimited(),
	})
	if !ok {
		return powerup.Effect{}, false
	}
	if effect.BonusSeconds > 0 {
		c.timeLeft += effect.BonusSeconds
	}
	c.persistLocked(ctx)
	return effect, true
}

// LockQuestion grades the current question immediately and freezes it; only
// meaningful in review mode, where graded questions stay locked across
// navigation.
func (c *Controller) LockQuestion() (domain.GradingResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateInProgress {
		return domain.GradingResult{}, domain.ErrAttemptFinalized
	}
	if !c.quiz.ReviewMode {
		return domain.GradingResult{}, domain.ErrInvalidTransition
	}
	orig := c.questionOrder[c.position]
	if graded, ok := c.locked[orig]; ok {
		return graded, nil
	}
	graded := c.engine.Grade(c.quiz.Questions[orig], c.answers[orig], c.artifacts[orig])
	c.locked[orig] = graded
	return graded, nil
}

// Tick advances the countdown by one second. It is a no-op under unlimited
// time, while paused, and once submission has begun. Reaching zero forces
// submission; the forced result is returned with forced=true.
func (c *Controller) Tick(ctx context.Context) (result *domain.QuizResult, forced bool) {
	c.mu.Lock()
	if c.state != StateInProgress || c.quiz.Unlimited() || c.paused {
		c.mu.Unlock()
		return nil, false
	}
	c.timeLeft--
	if c.timeLeft > 0 {
		c.persistLocked(ctx)
		c.mu.Unlock()
		return nil, false
	}
	c.timeLeft = 0
	r := c.submitLocked(ctx)
	c.mu.Unlock()
	return &r, true
}

// RunTimer drives Tick at 1 Hz until the attempt completes or ctx is
// cancelled. Only one timer loop ever runs per attempt; a second call (for
// example from both the resume path and the countdown path) returns
// immediately instead of double-ticking the clock. An in-flight submit is
// never interrupted because Tick holds the state lock for the whole
// submission.
func (c *Controller) RunTimer(ctx context.Context) {
	if c.quiz.Unlimited() {
		return
	}
	c.mu.Lock()
	if c.timerOn {
		c.mu.Unlock()
		return
	}
	c.timerOn = true
	c.mu.Unlock()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, forced := c.Tick(ctx); forced {
				return
			}
			if c.State() == StateCompleted {
				return
			}
		}
	}
}

// Pause suspends the countdown; Unpause resumes it.
func (c *Controller) Pause() { c.setPaused(true) }

// Unpause resumes a paused countdown.
func (c *Controller) Unpause() { c.setPaused(false) }

func (c *Controller) setPaused(v bool) {
	c.mu.Lock()
	c.paused = v
	c.mu.Unlock()
}

// Submit finalizes the attempt: grades everything, clears the snapshot and
// freezes the state. It is idempotent; any call after the first returns the
// same QuizResult.
func (c *Controller) Submit(ctx context.Context) (domain.QuizResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateInProgress:
		return c.submitLocked(ctx), nil
	case StateSubmitting, StateCompleted:
		if c.result != nil {
			return *c.result, nil
		}
		return domain.QuizResult{}, domain.ErrAttemptFinalized
	default:
		return domain.QuizResult{}, domain.ErrInvalidTransition
	}
}

func (c *Controller) submitLocked(ctx context.Context) domain.QuizResult {
	c.state = StateSubmitting

	result := c.engine.GradeAll(c.quiz, c.answers, c.artifacts, c.timeTakenLocked(), c.powerUps.Log())
	result.UserID = c.userID
	// Review-mode locks are authoritative for their questions.
	for orig, graded := range c.locked {
		result.Questions[orig] = graded
	}

	if c.store != nil {
		c.stopPersistLocked()
		if err := c.store.Delete(ctx, c.key()); err != nil {
			log.Printf("clear snapshot %s: %v", c.key(), err)
		}
	}

	c.result = &result
	c.state = StateCompleted
	c.emitProgressLocked(true)
	return result
}

func (c *Controller) timeTakenLocked() int {
	if c.quiz.Unlimited() {
		return int(c.now().Sub(c.startedAt).Seconds())
	}
	return c.quiz.TimeLimitSec - c.timeLeft
}

// emitProgressLocked pushes a provisional snapshot to the listener. Listener
// failures are the listener's problem; emission never blocks the attempt.
func (c *Controller) emitProgressLocked(completed bool) {
	points, correct, answered := c.engine.ProvisionalPoints(c.quiz, c.answers, c.artifacts)
	totalPoints := 0
	for _, q := range c.quiz.Questions {
		if q.Kind.Gradable() {
			totalPoints += q.Points
		}
	}
	update := domain.ProgressUpdate{
		UserID:        c.userID,
		Score:         points,
		CorrectCount:  correct,
		QuestionIndex: c.position,
		ElapsedSec:    c.timeTakenLocked(),
		Completed:     completed,
	}
	if completed && c.result != nil {
		update.Score = c.result.Points
		update.CorrectCount = c.result.CorrectCount
		update.Percentage = c.result.Percentage
	} else if totalPoints > 0 {
		update.Percentage = int(math.Round(100 * float64(points) / float64(totalPoints)))
	}
	if answered > 0 {
		update.Accuracy = int(math.Round(100 * float64(correct) / float64(answered)))
	}
	c.seq++
	update.Seq = c.seq
	c.onEvent(update)
}

// persistLocked hands the snapshot to a single background writer without
// awaiting the store. The mailbox holds only the newest snapshot: writes
// stay ordered, a slow store just skips intermediate states, and a failed
// write only costs resumability.
func (c *Controller) persistLocked(_ context.Context) {
	if c.store == nil {
		return
	}
	if c.persistCh == nil {
		c.persistCh = make(chan domain.AttemptSnapshot, 1)
		c.persistDone = make(chan struct{})
		go c.persistLoop()
	}
	snap := c.snapshotLocked()
	select {
	case c.persistCh <- snap:
	default:
		select {
		case <-c.persistCh:
		default:
		}
		c.persistCh <- snap
	}
}

func (c *Controller) persistLoop() {
	defer close(c.persistDone)
	key := c.key()
	for snap := range c.persistCh {
		if err := c.store.Set(context.Background(), key, snap); err != nil {
			log.Printf("persist snapshot %s: %v", key, err)
		}
	}
}

// stopPersistLocked shuts the background writer down and waits for any
// in-flight write, so a subsequent delete cannot be overwritten.
func (c *Controller) stopPersistLocked() {
	if c.persistCh == nil {
		return
	}
	select {
	case <-c.persistCh:
	default:
	}
	close(c.persistCh)
	<-c.persistDone
	c.persistCh = nil
}

func (c *Controller) snapshotLocked() domain.AttemptSnapshot {
	snap := domain.AttemptSnapshot{
		Version:       domain.SnapshotVersion,
		AttemptID:     c.attemptID,
		QuizID:        c.quiz.ID,
		UserID:        c.userID,
		QuestionOrder: append([]int(nil), c.questionOrder...),
		OptionOrders:  make(map[int][]int, len(c.optionOrders)),
		Position:      c.position,
		Answers:       make(map[int]string, len(c.answers)),
		Artifacts:     make(map[int]string, len(c.artifacts)),
		TimeLeftSec:   c.timeLeft,
		Seq:           c.seq,
		Submitted:     c.state == StateCompleted,
		PowerUpLog:    c.powerUps.Log(),
		SavedAt:       c.now(),
	}
	for k, v := range c.optionOrders {
		snap.OptionOrders[k] = append([]int(nil), v...)
	}
	for k, v := range c.answers {
		snap.Answers[k] = v
	}
	for k, v := range c.artifacts {
		snap.Artifacts[k] = v
	}
	return snap
}

func (c *Controller) key() string {
	return domain.SnapshotKey(c.userID, c.quiz.ID)
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Result returns the finalized QuizResult, if any.
func (c *Controller) Result() (domain.QuizResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return domain.QuizResult{}, false
	}
	return *c.result, true
}

// View is the presentation snapshot of the current question. The embedded
// Question is redacted: CorrectIndex, ReferenceCode and ReferenceGraph never
// reach the client.
type View struct {
	State             State           `json:"state"`
	Position          int             `json:"position"`
	Total             int             `json:"total"`
	QuestionIndex     int             `json:"questionIndex"` // original index
	Question          domain.Question `json:"question"`
	Options           []string        `json:"options,omitempty"` // in display order
	OptionOrder       []int           `json:"optionOrder,omitempty"`
	Answer            string          `json:"answer,omitempty"`
	EliminatedOptions []int           `json:"eliminatedOptions,omitempty"` // original indices
	TimeLeftSec       int             `json:"timeLeftSec"`
	Locked            bool            `json:"locked"`
}

// CurrentView returns what the client should render right now.
func (c *Controller) CurrentView() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := View{
		State:       c.state,
		Position:    c.position,
		Total:       len(c.questionOrder),
		TimeLeftSec: c.timeLeft,
	}
	if c.state != StateInProgress && c.state != StateSubmitting && c.state != StateCompleted {
		return v
	}
	if len(c.questionOrder) == 0 {
		return v
	}
	orig := c.questionOrder[c.position]
	q := c.quiz.Questions[orig]
	// q is a copy; strip the grading material before it goes on the wire.
	q.CorrectIndex = -1
	q.ReferenceCode = ""
	q.ReferenceGraph = ""
	v.QuestionIndex = orig
	v.Question = q
	v.OptionOrder = append([]int(nil), c.optionOrders[orig]...)
	for _, idx := range c.optionOrders[orig] {
		v.Options = append(v.Options, q.Options[idx])
	}
	v.Answer = c.answers[orig]
	v.EliminatedOptions = c.powerUps.EliminatedFor(orig)
	_, v.Locked = c.locked[orig]
	return v
}

func identityOrder(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}

func (c *Controller) identityOptionOrders() map[int][]int {
	orders := make(map[int][]int, len(c.quiz.Questions))
	for i, q := range c.quiz.Questions {
		orders[i] = identityOrder(len(q.Options))
	}
	return orders
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
