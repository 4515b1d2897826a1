package match

import (
	"sync"

	"quiz-arena/internal/domain"
)

// DefaultCountdownSec is the pre-match countdown length.
const DefaultCountdownSec = 5

// ConnState tracks channel health for observability. It never gates
// gameplay; a reconnecting participant keeps playing locally.
type ConnState string

const (
	ConnConnected    ConnState = "connected"
	ConnReconnecting ConnState = "reconnecting"
	ConnDisconnected ConnState = "disconnected"
)

// Standing is the locally derived relative ranking between the two
// participants at a point in time. It is advisory; the arbiter's verdict
// overrides it.
type Standing struct {
	Ahead bool `json:"ahead"`
	Tied  bool `json:"tied"`
}

// State is a snapshot of the coordinator for rendering.
type State struct {
	Phase         domain.MatchPhase     `json:"phase"`
	CountdownLeft int                   `json:"countdownLeft,omitempty"`
	Local         domain.ProgressUpdate `json:"local"`
	Remote        domain.ProgressUpdate `json:"remote"`
	Standing      Standing              `json:"standing"`
	Verdict       *domain.Verdict       `json:"verdict,omitempty"`
	Conn          ConnState             `json:"conn"`
}

// Coordinator owns one participant's view of a match: the forward-only phase
// machine, the merged local/remote progress, and the derived standing.
// Progress snapshots are merged by sequence number so a late stale update
// can never regress what is shown.
type Coordinator struct {
	mu            sync.Mutex
	userID        string
	phase         domain.MatchPhase
	countdownLeft int
	local         domain.ProgressUpdate
	remote        domain.ProgressUpdate
	verdict       *domain.Verdict
	conn          ConnState
}

func NewCoordinator(userID string, countdownSec int) *Coordinator {
	if countdownSec <= 0 {
		countdownSec = DefaultCountdownSec
	}
	return &Coordinator{
		userID:        userID,
		phase:         domain.PhaseWaiting,
		countdownLeft: countdownSec,
		conn:          ConnConnected,
	}
}

// MatchReady moves waiting -> countdown. Duplicate or out-of-phase signals
// are ignored; the phase machine only moves forward.
func (c *Coordinator) MatchReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != domain.PhaseWaiting {
		return false
	}
	c.phase = domain.PhaseCountdown
	return true
}

// CountdownTick consumes one countdown second. When the counter reaches
// zero the match enters playing and started is true.
func (c *Coordinator) CountdownTick() (remaining int, started bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != domain.PhaseCountdown {
		return c.countdownLeft, false
	}
	c.countdownLeft--
	if c.countdownLeft > 0 {
		return c.countdownLeft, false
	}
	c.countdownLeft = 0
	c.phase = domain.PhasePlaying
	return 0, true
}

// RecordLocal merges a local progress snapshot. Local completion moves the
// phase to finished immediately, before the authoritative verdict arrives;
// callers must tolerate finished-with-no-verdict.
func (c *Coordinator) RecordLocal(p domain.ProgressUpdate) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.Seq <= c.local.Seq && c.local.Seq != 0 {
		return false
	}
	c.local = p
	if p.Completed && c.phase != domain.PhaseFinished {
		c.phase = domain.PhaseFinished
	}
	return true
}

// RecordRemote merges an opponent snapshot, discarding arrivals with a
// sequence number at or below the newest already applied.
func (c *Coordinator) RecordRemote(p domain.ProgressUpdate) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.Seq <= c.remote.Seq && c.remote.Seq != 0 {
		return false
	}
	c.remote = p
	return true
}

// SetVerdict records the authoritative outcome and finishes the match. It
// applies once; a duplicate game-over from a racing peer reports false so
// callers do not re-announce.
func (c *Coordinator) SetVerdict(v domain.Verdict) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.verdict != nil {
		return false
	}
	c.verdict = &v
	c.phase = domain.PhaseFinished
	return true
}

// Started reports whether the countdown has elapsed and play has begun.
func (c *Coordinator) Started() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase == domain.PhasePlaying || c.phase == domain.PhaseFinished
}

// SetConnState updates the observability-only connection state.
func (c *Coordinator) SetConnState(s ConnState) {
	c.mu.Lock()
	c.conn = s
	c.mu.Unlock()
}

// Standing ranks local against remote by correct answers, then points, then
// question position (all descending), then elapsed time ascending. Once a
// verdict is set it wins outright.
func (c *Coordinator) Standing() Standing {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.standingLocked()
}

func (c *Coordinator) standingLocked() Standing {
	if c.verdict != nil {
		if c.verdict.IsDraw {
			return Standing{Tied: true}
		}
		return Standing{Ahead: c.verdict.WinnerID == c.userID}
	}
	switch cmp := compareProgress(c.local, c.remote); {
	case cmp > 0:
		return Standing{Ahead: true}
	case cmp < 0:
		return Standing{}
	default:
		return Standing{Tied: true}
	}
}

// compareProgress returns >0 when a leads b, <0 when behind, 0 when level.
func compareProgress(a, b domain.ProgressUpdate) int {
	if a.CorrectCount != b.CorrectCount {
		return a.CorrectCount - b.CorrectCount
	}
	if a.Score != b.Score {
		return a.Score - b.Score
	}
	if a.QuestionIndex != b.QuestionIndex {
		return a.QuestionIndex - b.QuestionIndex
	}
	// Lower elapsed time wins the tie.
	return b.ElapsedSec - a.ElapsedSec
}

// Snapshot returns the current state for rendering.
func (c *Coordinator) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := State{
		Phase:    c.phase,
		Local:    c.local,
		Remote:   c.remote,
		Standing: c.standingLocked(),
		Conn:     c.conn,
	}
	if c.phase == domain.PhaseCountdown {
		s.CountdownLeft = c.countdownLeft
	}
	if c.verdict != nil {
		v := *c.verdict
		s.Verdict = &v
	}
	return s
}

// Phase returns the current match phase.
func (c *Coordinator) Phase() domain.MatchPhase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}
