package powerup

import (
	"math/rand"
	"time"

	"quiz-arena/internal/domain"
)

// TimeExtendBonusSec is added to the remaining time by a time-extend use.
const TimeExtendBonusSec = 20

// QuestionContext is what the manager needs to know about the question a
// power-up is aimed at. OptionOrder is the presentation permutation so hints
// can name the displayed letter; TimerUnlimited gates time-extend.
type QuestionContext struct {
	Question       domain.Question
	QuestionIndex  int // original index
	OptionOrder    []int
	TimerUnlimited bool
	Finalizing     bool
}

// Effect describes what a successful power-up use did. Zero-valued fields
// are unused for the given kind.
type Effect struct {
	Kind              domain.PowerUpKind
	EliminatedOptions []int // original option indices, never the correct one
	BonusSeconds      int
	Hint              string
}

// Manager enforces the consumable-aid rules: finite inventory, at most one
// use of each kind per question instance, silent no-op on any precondition
// failure. It is not safe for concurrent use; the owning session serializes
// access.
type Manager struct {
	inventory domain.PowerUpInventory
	usedHere  map[domain.PowerUpKind]bool
	log       []domain.PowerUpUse
	rnd       *rand.Rand
	now       func() time.Time
}

func NewManager(inventory domain.PowerUpInventory) *Manager {
	return newManager(inventory, rand.New(rand.NewSource(time.Now().UnixNano())), time.Now)
}

// NewManagerWithRand is for deterministic eliminations in tests.
func NewManagerWithRand(inventory domain.PowerUpInventory, rnd *rand.Rand, now func() time.Time) *Manager {
	return newManager(inventory, rnd, now)
}

func newManager(inventory domain.PowerUpInventory, rnd *rand.Rand, now func() time.Time) *Manager {
	return &Manager{
		inventory: inventory.Clone(),
		usedHere:  make(map[domain.PowerUpKind]bool),
		rnd:       rnd,
		now:       now,
	}
}

// Use attempts to consume one unit of kind against the given question.
// On any precondition failure it returns ok=false with no state change at
// all: nothing consumed, nothing logged.
func (m *Manager) Use(kind domain.PowerUpKind, qctx QuestionContext) (Effect, bool) {
	if qctx.Finalizing || m.inventory[kind] <= 0 || m.usedHere[kind] {
		return Effect{}, false
	}

	effect, ok := m.apply(kind, qctx)
	if !ok {
		return Effect{}, false
	}

	m.inventory[kind]--
	m.usedHere[kind] = true
	m.log = append(m.log, domain.PowerUpUse{
		Kind:          kind,
		QuestionIndex: qctx.QuestionIndex,
		Eliminated:    effect.EliminatedOptions,
		UsedAt:        m.now(),
	})
	return effect, true
}

func (m *Manager) apply(kind domain.PowerUpKind, qctx QuestionContext) (Effect, bool) {
	q := qctx.Question
	switch kind {
	case domain.PowerUpEliminateTwo:
		eliminated, ok := pickIncorrect(q, m.rnd)
		if !ok {
			return Effect{}, false
		}
		return Effect{Kind: kind, EliminatedOptions: eliminated}, true
	case domain.PowerUpTimeExtend:
		if qctx.TimerUnlimited {
			return Effect{}, false
		}
		return Effect{Kind: kind, BonusSeconds: TimeExtendBonusSec}, true
	case domain.PowerUpRevealHint:
		return Effect{Kind: kind, Hint: hintFor(q, qctx.OptionOrder)}, true
	case domain.PowerUpStructure:
		if q.Kind != domain.KindBlock && q.Kind != domain.KindCompiler {
			return Effect{}, false
		}
		return Effect{Kind: kind, Hint: skeletonFor(q)}, true
	case domain.PowerUpDebugTips:
		if q.Kind != domain.KindBlock && q.Kind != domain.KindCompiler {
			return Effect{}, false
		}
		return Effect{Kind: kind, Hint: debugChecklist}, true
	default:
		return Effect{}, false
	}
}

// pickIncorrect selects two distinct incorrect option indices. It refuses
// text questions implicitly (they have no options) and requires at least two
// incorrect options to exist.
func pickIncorrect(q domain.Question, rnd *rand.Rand) ([]int, bool) {
	if q.Kind == domain.KindText {
		return nil, false
	}
	incorrect := make([]int, 0, len(q.Options))
	for i := range q.Options {
		if i != q.CorrectIndex {
			incorrect = append(incorrect, i)
		}
	}
	if len(incorrect) < 2 {
		return nil, false
	}
	rnd.Shuffle(len(incorrect), func(i, j int) {
		incorrect[i], incorrect[j] = incorrect[j], incorrect[i]
	})
	return incorrect[:2], true
}

// ResetQuestion clears the per-question usage set; called on navigation.
func (m *Manager) ResetQuestion() {
	m.usedHere = make(map[domain.PowerUpKind]bool)
}

// Remaining reports the units left for a kind.
func (m *Manager) Remaining(kind domain.PowerUpKind) int {
	return m.inventory[kind]
}

// Log returns the append-only usage log in use order.
func (m *Manager) Log() []domain.PowerUpUse {
	out := make([]domain.PowerUpUse, len(m.log))
	copy(out, m.log)
	return out
}

// Restore replays a persisted usage log against the original inventory,
// used when resuming a snapshotted attempt. Entries logged against
// questionIndex also count against its per-question set, so a resume cannot
// hand out a second use of a kind already spent on the current question.
func (m *Manager) Restore(log []domain.PowerUpUse, questionIndex int) {
	for _, use := range log {
		if m.inventory[use.Kind] > 0 {
			m.inventory[use.Kind]--
		}
		if use.QuestionIndex == questionIndex {
			m.usedHere[use.Kind] = true
		}
	}
	m.log = append(m.log[:0], log...)
}

// EliminatedFor returns the options an eliminate-two removed on the given
// question, or nil if none was used there.
func (m *Manager) EliminatedFor(questionIndex int) []int {
	for i := len(m.log) - 1; i >= 0; i-- {
		use := m.log[i]
		if use.Kind == domain.PowerUpEliminateTwo && use.QuestionIndex == questionIndex {
			return append([]int(nil), use.Eliminated...)
		}
	}
	return nil
}
