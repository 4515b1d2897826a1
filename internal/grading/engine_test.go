package grading

import (
	"errors"
	"strconv"
	"testing"

	"quiz-arena/internal/domain"
)

func TestGradeMultipleChoiceUsesOriginalIndex(t *testing.T) {
	engine := NewEngine(nil)
	q := domain.Question{
		ID:           "q1",
		Kind:         domain.KindMultipleChoice,
		Options:      []string{"a", "b", "c", "d"},
		CorrectIndex: 2,
		Points:       5,
	}

	for idx := range q.Options {
		got := engine.Grade(q, strconv.Itoa(idx), "")
		if got.Correct != (idx == q.CorrectIndex) {
			t.Fatalf("option %d: correct=%v", idx, got.Correct)
		}
	}
	if got := engine.Grade(q, "2", ""); got.PointsAwarded != 5 {
		t.Fatalf("expected 5 points awarded, got %d", got.PointsAwarded)
	}
	if got := engine.Grade(q, "not-a-number", ""); got.Correct {
		t.Fatalf("garbage answer should grade incorrect")
	}
}

func TestGradeTextAlwaysPending(t *testing.T) {
	engine := NewEngine(nil)
	q := domain.Question{ID: "q1", Kind: domain.KindText, Points: 10}

	if got := engine.Grade(q, "a thoughtful essay", ""); got.Correct {
		t.Fatalf("text answers are never machine-correct")
	}

	quiz := domain.Quiz{ID: "quiz-1", Questions: []domain.Question{q}}
	result := engine.GradeAll(quiz, map[int]string{0: "essay"}, nil, 30, nil)
	if result.ReviewStatus != domain.ReviewPending {
		t.Fatalf("expected pending review, got %s", result.ReviewStatus)
	}
	if result.TotalPoints != 0 {
		t.Fatalf("text questions must not count toward the point denominator, got %d", result.TotalPoints)
	}
}

func TestGradeCompilerTextualEquivalence(t *testing.T) {
	engine := NewEngine(nil)
	q := domain.Question{
		ID:            "q1",
		Kind:          domain.KindCompiler,
		ReferenceCode: "function f() { return 1; }",
		Points:        3,
	}

	if got := engine.Grade(q, "function f(){return 1}", ""); !got.Correct {
		t.Fatalf("formatting-only differences must not fail grading")
	}
	if got := engine.Grade(q, "function f(){return 2}", ""); got.Correct {
		t.Fatalf("different program graded correct")
	}
	if got := engine.Grade(q, "", ""); got.Correct {
		t.Fatalf("empty answer graded correct")
	}
}

func TestGradeBlockComparesGeneratedSource(t *testing.T) {
	compiler := BlockCompilerFunc(func(graph string) (string, error) {
		if graph == "broken" {
			return "", errors.New("bad graph")
		}
		return "generated(" + graph + ")", nil
	})
	engine := NewEngine(compiler)
	q := domain.Question{ID: "q1", Kind: domain.KindBlock, ReferenceGraph: "ref", Points: 4}

	// The user's artifact is already compiled by the caller; the engine
	// compiles only the stored reference graph.
	if got := engine.Grade(q, "", "generated(ref)"); !got.Correct {
		t.Fatalf("matching generated source should grade correct")
	}
	if got := engine.Grade(q, "", "generated(other)"); got.Correct {
		t.Fatalf("mismatched generated source graded correct")
	}
	if got := engine.Grade(q, "", ""); got.Correct {
		t.Fatalf("missing artifact graded correct")
	}

	broken := q
	broken.ReferenceGraph = "broken"
	if got := engine.Grade(broken, "", "anything"); got.Correct {
		t.Fatalf("reference compile failure must degrade to incorrect")
	}
}

func TestGradeAllPointWeighting(t *testing.T) {
	engine := NewEngine(nil)
	quiz := domain.Quiz{
		ID:           "quiz-1",
		PassingScore: 50,
		Questions: []domain.Question{
			{ID: "q1", Kind: domain.KindMultipleChoice, Options: []string{"a", "b"}, CorrectIndex: 0, Points: 10},
			{ID: "q2", Kind: domain.KindMultipleChoice, Options: []string{"a", "b"}, CorrectIndex: 1, Points: 10},
		},
	}

	result := engine.GradeAll(quiz, map[int]string{0: "0", 1: "0"}, nil, 42, nil)
	if result.CorrectCount != 1 {
		t.Fatalf("expected correct count 1, got %d", result.CorrectCount)
	}
	if result.Percentage != 50 {
		t.Fatalf("expected 50%%, got %d", result.Percentage)
	}
	if !result.Passed {
		t.Fatalf("50%% should pass at threshold 50")
	}
	if result.Points != 10 || result.TotalPoints != 20 {
		t.Fatalf("points=%d total=%d", result.Points, result.TotalPoints)
	}
	if result.TimeTakenSec != 42 {
		t.Fatalf("time taken not carried through: %d", result.TimeTakenSec)
	}
}

func TestGradeAllNoGradablePoints(t *testing.T) {
	engine := NewEngine(nil)
	quiz := domain.Quiz{
		ID:           "quiz-1",
		PassingScore: 50,
		Questions:    []domain.Question{{ID: "q1", Kind: domain.KindText, Points: 10}},
	}
	result := engine.GradeAll(quiz, nil, nil, 0, nil)
	if result.Percentage != 0 || result.Passed {
		t.Fatalf("quiz with no gradable points: percentage=%d passed=%v", result.Percentage, result.Passed)
	}
}

func TestValidateQuizRejectsUnknownKind(t *testing.T) {
	quiz := domain.Quiz{Questions: []domain.Question{{ID: "q1", Kind: "essay"}}}
	if err := ValidateQuiz(quiz); !errors.Is(err, domain.ErrUnknownQuestionKind) {
		t.Fatalf("expected unknown-kind error, got %v", err)
	}
}
