package domain

import "time"

// QuestionKind discriminates how a question is answered and graded.
// It is a closed enum; every switch over it must handle all four values
// and fail on anything else.
type QuestionKind string

const (
	KindMultipleChoice QuestionKind = "multiple-choice"
	KindText           QuestionKind = "text"
	KindBlock          QuestionKind = "block"
	KindCompiler       QuestionKind = "compiler"
)

// Valid reports whether k is one of the known kinds.
func (k QuestionKind) Valid() bool {
	switch k {
	case KindMultipleChoice, KindText, KindBlock, KindCompiler:
		return true
	}
	return false
}

// Gradable reports whether the kind can be machine-graded. Text answers
// always require manual review.
func (k QuestionKind) Gradable() bool {
	return k != KindText
}

// Question models a single quiz question. Options and CorrectIndex are only
// meaningful for multiple-choice; ReferenceCode for compiler; ReferenceGraph,
// Languages and InitialContent for the block/compiler kinds.
type Question struct {
	ID             string       `json:"id"`
	Kind           QuestionKind `json:"kind"`
	Prompt         string       `json:"prompt"`
	Options        []string     `json:"options,omitempty"`
	CorrectIndex   int          `json:"correctIndex"` // index into Options in original order
	Points         int          `json:"points"`
	ShuffleOptions *bool        `json:"shuffleOptions,omitempty"` // nil means shuffle
	ReferenceCode  string       `json:"referenceCode,omitempty"`
	ReferenceGraph string       `json:"referenceGraph,omitempty"`
	Languages      []string     `json:"languages,omitempty"`
	InitialContent string       `json:"initialContent,omitempty"`
}

// Shuffled reports whether this question's options should be presented in a
// shuffled order. Only an explicit false opts out.
func (q Question) Shuffled() bool {
	return q.ShuffleOptions == nil || *q.ShuffleOptions
}

// Quiz is a collection of questions plus attempt policy.
type Quiz struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	TimeLimitSec int        `json:"timeLimitSec"` // 0 means unlimited
	PassingScore int        `json:"passingScore"` // percentage threshold 0..100
	ReviewMode   bool       `json:"reviewMode"`   // per-question lock-in grading
	Questions    []Question `json:"questions"`
}

// Unlimited reports whether the quiz has no countdown.
func (q Quiz) Unlimited() bool { return q.TimeLimitSec <= 0 }

// PowerUpKind enumerates the consumable aids.
type PowerUpKind string

const (
	PowerUpEliminateTwo PowerUpKind = "eliminate-two"
	PowerUpTimeExtend   PowerUpKind = "time-extend"
	PowerUpRevealHint   PowerUpKind = "reveal-hint"
	PowerUpStructure    PowerUpKind = "show-structure"
	PowerUpDebugTips    PowerUpKind = "show-debug-tips"
)

// PowerUpInventory maps a kind to its remaining quantity.
type PowerUpInventory map[PowerUpKind]int

// Clone returns an independent copy of the inventory.
func (inv PowerUpInventory) Clone() PowerUpInventory {
	out := make(PowerUpInventory, len(inv))
	for k, v := range inv {
		out[k] = v
	}
	return out
}

// PowerUpUse is one entry in the append-only usage log. Eliminated records
// the option indices an eliminate-two removed; persisting it lets a resumed
// attempt re-display the elimination instead of losing it.
type PowerUpUse struct {
	Kind          PowerUpKind `json:"kind"`
	QuestionIndex int         `json:"questionIndex"` // original question index
	Eliminated    []int       `json:"eliminated,omitempty"`
	UsedAt        time.Time   `json:"usedAt"`
}

// GradingResult is the per-question grading outcome.
type GradingResult struct {
	QuestionID    string       `json:"questionId"`
	Kind          QuestionKind `json:"kind"`
	Submitted     string       `json:"submitted"`
	Correct       bool         `json:"correct"`
	PointsAwarded int          `json:"pointsAwarded"`
}

// ReviewStatus marks whether a result is final or awaits manual grading.
type ReviewStatus string

const (
	ReviewCompleted ReviewStatus = "completed"
	ReviewPending   ReviewStatus = "pending"
)

// QuizResult is the graded outcome of one attempt.
//
// CorrectCount and Points are deliberately separate fields: CorrectCount is
// the number of correctly answered questions, Points the point-weighted sum,
// and Percentage/Passed derive from Points. There is no ambiguous "score"
// field on the result itself; on the wire, "score" always means Points.
type QuizResult struct {
	QuizID       string                `json:"quizId"`
	UserID       string                `json:"userId"`
	CorrectCount int                   `json:"correctCount"`
	Total        int                   `json:"total"`
	Points       int                   `json:"points"`
	TotalPoints  int                   `json:"totalPoints"`
	Percentage   int                   `json:"percentage"` // point-weighted, rounded
	Passed       bool                  `json:"passed"`
	TimeTakenSec int                   `json:"timeTakenSec"`
	ReviewStatus ReviewStatus          `json:"reviewStatus"`
	PowerUpsUsed []PowerUpUse          `json:"powerUpsUsed,omitempty"`
	Questions    map[int]GradingResult `json:"questions"` // keyed by original question index
}

// AttemptSnapshot is the persisted form of an in-progress attempt. It is
// stored as JSON under a composite (user, quiz) key and removed on submit.
type AttemptSnapshot struct {
	Version       int            `json:"version"`
	AttemptID     string         `json:"attemptId"`
	QuizID        string         `json:"quizId"`
	UserID        string         `json:"userId"`
	QuestionOrder []int          `json:"questionOrder,omitempty"` // empty on legacy snapshots: identity order
	OptionOrders  map[int][]int  `json:"optionOrders,omitempty"`
	Position      int            `json:"position"`
	Answers       map[int]string `json:"answers"`
	Artifacts     map[int]string `json:"artifacts,omitempty"` // generated source for block answers
	TimeLeftSec   int            `json:"timeLeftSec"`
	Seq           uint64         `json:"seq,omitempty"` // progress sequence high-water mark
	Submitted     bool           `json:"submitted"`
	PowerUpLog    []PowerUpUse   `json:"powerUpLog,omitempty"`
	SavedAt       time.Time      `json:"savedAt"`
}

// SnapshotVersion is the schema version written to new snapshots. Older or
// unknown versions are discarded and the attempt starts fresh.
const SnapshotVersion = 1

// SnapshotKey builds the composite persistence key for an attempt.
func SnapshotKey(userID, quizID string) string {
	return "attempt:" + userID + ":" + quizID
}

// ProgressUpdate is the best-effort progress broadcast between match
// participants. Seq is monotonic per sender; receivers keep only the highest
// Seq they have seen, so a late stale update cannot regress displayed state.
type ProgressUpdate struct {
	UserID        string `json:"userId"`
	Seq           uint64 `json:"seq"`
	Score         int    `json:"score"` // point sum
	CorrectCount  int    `json:"correctCount"`
	QuestionIndex int    `json:"currentQuestionIndex"`
	Percentage    int    `json:"percentage"`
	Accuracy      int    `json:"accuracy"` // correct out of answered, percent
	ElapsedSec    int    `json:"elapsedSeconds"`
	Completed     bool   `json:"completed"`
}

// MatchPhase is the match lifecycle. Transitions are strictly forward:
// waiting -> countdown -> playing -> finished.
type MatchPhase string

const (
	PhaseWaiting   MatchPhase = "waiting"
	PhaseCountdown MatchPhase = "countdown"
	PhasePlaying   MatchPhase = "playing"
	PhaseFinished  MatchPhase = "finished"
)

// Verdict is the authoritative match outcome. WinnerID is empty on a draw.
type Verdict struct {
	WinnerID string `json:"winnerId,omitempty"`
	IsDraw   bool   `json:"isDraw"`
}

// CompletionReport is what each participant submits when done.
type CompletionReport struct {
	UserID       string `json:"userId"`
	Score        int    `json:"score"` // point sum
	TimeTakenSec int    `json:"timeTaken"`
}
