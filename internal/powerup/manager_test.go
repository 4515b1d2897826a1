package powerup

import (
	"math/rand"
	"strings"
	"testing"
	"time"

	"quiz-arena/internal/domain"
)

func testManager(inv domain.PowerUpInventory) *Manager {
	return NewManagerWithRand(inv, rand.New(rand.NewSource(1)), func() time.Time {
		return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	})
}

func mcQuestion() domain.Question {
	return domain.Question{
		ID:           "q1",
		Kind:         domain.KindMultipleChoice,
		Options:      []string{"a", "b", "c", "d"},
		CorrectIndex: 1,
	}
}

func TestEliminateTwoNeverRemovesCorrect(t *testing.T) {
	for seed := int64(0); seed < 50; seed++ {
		m := NewManagerWithRand(domain.PowerUpInventory{domain.PowerUpEliminateTwo: 1},
			rand.New(rand.NewSource(seed)), time.Now)
		effect, ok := m.Use(domain.PowerUpEliminateTwo, QuestionContext{Question: mcQuestion()})
		if !ok {
			t.Fatalf("seed %d: expected success", seed)
		}
		if len(effect.EliminatedOptions) != 2 {
			t.Fatalf("seed %d: expected 2 eliminated, got %v", seed, effect.EliminatedOptions)
		}
		for _, idx := range effect.EliminatedOptions {
			if idx == 1 {
				t.Fatalf("seed %d: correct option eliminated", seed)
			}
		}
		if effect.EliminatedOptions[0] == effect.EliminatedOptions[1] {
			t.Fatalf("seed %d: duplicate elimination %v", seed, effect.EliminatedOptions)
		}
	}
}

func TestEliminateTwoRequiresEnoughIncorrect(t *testing.T) {
	m := testManager(domain.PowerUpInventory{domain.PowerUpEliminateTwo: 1})
	q := domain.Question{
		Kind:         domain.KindMultipleChoice,
		Options:      []string{"a", "b"},
		CorrectIndex: 0,
	}
	if _, ok := m.Use(domain.PowerUpEliminateTwo, QuestionContext{Question: q}); ok {
		t.Fatalf("one incorrect option must not be enough")
	}
	if m.Remaining(domain.PowerUpEliminateTwo) != 1 {
		t.Fatalf("failed use consumed inventory")
	}
	if len(m.Log()) != 0 {
		t.Fatalf("failed use was logged")
	}
}

func TestOncePerQuestionAndInventory(t *testing.T) {
	m := testManager(domain.PowerUpInventory{domain.PowerUpRevealHint: 2})
	qctx := QuestionContext{Question: mcQuestion()}

	if _, ok := m.Use(domain.PowerUpRevealHint, qctx); !ok {
		t.Fatalf("first use should succeed")
	}
	if _, ok := m.Use(domain.PowerUpRevealHint, qctx); ok {
		t.Fatalf("second use on same question should fail")
	}

	m.ResetQuestion()
	if _, ok := m.Use(domain.PowerUpRevealHint, qctx); !ok {
		t.Fatalf("use after navigation should succeed")
	}

	m.ResetQuestion()
	if _, ok := m.Use(domain.PowerUpRevealHint, qctx); ok {
		t.Fatalf("inventory exhausted, use should fail")
	}
	if got := len(m.Log()); got != 2 {
		t.Fatalf("expected 2 log entries, got %d", got)
	}
}

func TestTimeExtendRequiresCountdown(t *testing.T) {
	m := testManager(domain.PowerUpInventory{domain.PowerUpTimeExtend: 1})

	if _, ok := m.Use(domain.PowerUpTimeExtend, QuestionContext{Question: mcQuestion(), TimerUnlimited: true}); ok {
		t.Fatalf("time-extend must be a no-op under unlimited time")
	}
	effect, ok := m.Use(domain.PowerUpTimeExtend, QuestionContext{Question: mcQuestion()})
	if !ok || effect.BonusSeconds != TimeExtendBonusSec {
		t.Fatalf("expected %ds bonus, got %+v ok=%v", TimeExtendBonusSec, effect, ok)
	}
}

func TestRevealHintNamesDisplayedLetter(t *testing.T) {
	m := testManager(domain.PowerUpInventory{domain.PowerUpRevealHint: 1})
	// Correct original index 1 is displayed last under this permutation.
	effect, ok := m.Use(domain.PowerUpRevealHint, QuestionContext{
		Question:    mcQuestion(),
		OptionOrder: []int{2, 0, 3, 1},
	})
	if !ok {
		t.Fatalf("expected success")
	}
	if !strings.Contains(effect.Hint, "option D") {
		t.Fatalf("expected displayed letter D, got %q", effect.Hint)
	}
}

func TestStructureAndDebugTipsKindGated(t *testing.T) {
	inv := domain.PowerUpInventory{domain.PowerUpStructure: 1, domain.PowerUpDebugTips: 1}
	m := testManager(inv)

	if _, ok := m.Use(domain.PowerUpStructure, QuestionContext{Question: mcQuestion()}); ok {
		t.Fatalf("show-structure on multiple-choice should fail")
	}

	codeQ := domain.Question{Kind: domain.KindCompiler, Languages: []string{"python"}}
	effect, ok := m.Use(domain.PowerUpStructure, QuestionContext{Question: codeQ})
	if !ok || !strings.Contains(effect.Hint, "def solve") {
		t.Fatalf("expected python skeleton, got %+v ok=%v", effect, ok)
	}

	effect, ok = m.Use(domain.PowerUpDebugTips, QuestionContext{Question: domain.Question{Kind: domain.KindBlock}})
	if !ok || !strings.Contains(effect.Hint, "loop bounds") {
		t.Fatalf("expected debug checklist, got %+v ok=%v", effect, ok)
	}
}

func TestUseBlockedWhileFinalizing(t *testing.T) {
	m := testManager(domain.PowerUpInventory{domain.PowerUpRevealHint: 1})
	if _, ok := m.Use(domain.PowerUpRevealHint, QuestionContext{Question: mcQuestion(), Finalizing: true}); ok {
		t.Fatalf("power-ups must be inert while the attempt is finalizing")
	}
}

func TestRestoreReplaysLog(t *testing.T) {
	m := testManager(domain.PowerUpInventory{domain.PowerUpRevealHint: 2, domain.PowerUpTimeExtend: 1})
	m.Restore([]domain.PowerUpUse{
		{Kind: domain.PowerUpRevealHint, QuestionIndex: 0},
		{Kind: domain.PowerUpTimeExtend, QuestionIndex: 1},
	}, 2)
	if m.Remaining(domain.PowerUpRevealHint) != 1 {
		t.Fatalf("expected 1 hint left, got %d", m.Remaining(domain.PowerUpRevealHint))
	}
	if m.Remaining(domain.PowerUpTimeExtend) != 0 {
		t.Fatalf("expected 0 time-extends left, got %d", m.Remaining(domain.PowerUpTimeExtend))
	}
	if len(m.Log()) != 2 {
		t.Fatalf("restored log lost entries")
	}
}

func TestRestoreBlocksReuseOnCurrentQuestion(t *testing.T) {
	m := testManager(domain.PowerUpInventory{domain.PowerUpEliminateTwo: 2})
	m.Restore([]domain.PowerUpUse{
		{Kind: domain.PowerUpEliminateTwo, QuestionIndex: 3, Eliminated: []int{0, 2}},
	}, 3)

	if _, ok := m.Use(domain.PowerUpEliminateTwo, QuestionContext{Question: mcQuestion(), QuestionIndex: 3}); ok {
		t.Fatalf("restored use on the current question must block a second use")
	}
	if got := m.EliminatedFor(3); len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Fatalf("expected restored eliminations [0 2], got %v", got)
	}
	if m.EliminatedFor(1) != nil {
		t.Fatalf("unrelated question should have no eliminations")
	}

	// Navigating away clears the per-question set, so the second unit spends.
	m.ResetQuestion()
	if _, ok := m.Use(domain.PowerUpEliminateTwo, QuestionContext{Question: mcQuestion(), QuestionIndex: 4}); !ok {
		t.Fatalf("second unit should spend on another question")
	}
}
