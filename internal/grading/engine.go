package grading

import (
	"fmt"
	"math"
	"strconv"

	"quiz-arena/internal/domain"
)

// BlockCompiler turns a block graph into generated source. Implementations
// live outside the core; the engine treats compilation as a black box and
// grades any failure as incorrect.
type BlockCompiler interface {
	Compile(graph string) (string, error)
}

// BlockCompilerFunc adapts a function to the BlockCompiler interface.
type BlockCompilerFunc func(graph string) (string, error)

func (f BlockCompilerFunc) Compile(graph string) (string, error) { return f(graph) }

// Engine evaluates answers per question kind. It is stateless and safe for
// concurrent use; the block compiler is injected once at construction rather
// than registered through any package-level setup.
type Engine struct {
	compiler BlockCompiler
}

func NewEngine(compiler BlockCompiler) *Engine {
	return &Engine{compiler: compiler}
}

// Grade evaluates one answer. The artifact argument carries the generated
// source for block answers; it is ignored for other kinds. Grading never
// fails hard: compile or kind errors degrade to an incorrect result.
func (e *Engine) Grade(q domain.Question, answer, artifact string) domain.GradingResult {
	result := domain.GradingResult{
		QuestionID: q.ID,
		Kind:       q.Kind,
		Submitted:  answer,
	}

	switch q.Kind {
	case domain.KindMultipleChoice:
		idx, err := strconv.Atoi(answer)
		result.Correct = err == nil && idx == q.CorrectIndex
	case domain.KindText:
		// Manual review; never machine-correct.
		result.Correct = false
	case domain.KindCompiler:
		result.Correct = equivalent(answer, q.ReferenceCode)
	case domain.KindBlock:
		result.Correct = e.gradeBlock(q, artifact)
	default:
		result.Correct = false
	}

	if result.Correct {
		result.PointsAwarded = q.Points
	}
	return result
}

// gradeBlock compares the generated source of the user's graph against the
// generated source of the reference graph, produced by the same compiler.
func (e *Engine) gradeBlock(q domain.Question, artifact string) bool {
	if e.compiler == nil || artifact == "" || q.ReferenceGraph == "" {
		return false
	}
	reference, err := e.compiler.Compile(q.ReferenceGraph)
	if err != nil {
		return false
	}
	return equivalent(artifact, reference)
}

// GradeAll grades a whole attempt. Answers and artifacts are keyed by
// original question index; unanswered questions grade incorrect. The
// percentage is point-weighted over gradable questions while CorrectCount
// stays a plain count; any text question marks the result pending review.
func (e *Engine) GradeAll(quiz domain.Quiz, answers, artifacts map[int]string, timeTakenSec int, powerUps []domain.PowerUpUse) domain.QuizResult {
	result := domain.QuizResult{
		QuizID:       quiz.ID,
		Total:        len(quiz.Questions),
		TimeTakenSec: timeTakenSec,
		ReviewStatus: domain.ReviewCompleted,
		PowerUpsUsed: powerUps,
		Questions:    make(map[int]domain.GradingResult, len(quiz.Questions)),
	}

	for i, q := range quiz.Questions {
		if q.Kind == domain.KindText {
			result.ReviewStatus = domain.ReviewPending
		} else {
			result.TotalPoints += q.Points
		}

		graded := e.Grade(q, answers[i], artifacts[i])
		result.Questions[i] = graded
		if graded.Correct {
			result.CorrectCount++
			result.Points += graded.PointsAwarded
		}
	}

	if result.TotalPoints > 0 {
		result.Percentage = int(math.Round(100 * float64(result.Points) / float64(result.TotalPoints)))
	}
	result.Passed = result.Percentage >= quiz.PassingScore
	return result
}

// ProvisionalPoints sums points for currently-correct gradable answers. It
// backs the live progress feed and deliberately ignores text questions.
func (e *Engine) ProvisionalPoints(quiz domain.Quiz, answers, artifacts map[int]string) (points, correct, answered int) {
	for i, q := range quiz.Questions {
		answer, ok := answers[i]
		if !ok || !q.Kind.Gradable() {
			continue
		}
		answered++
		if graded := e.Grade(q, answer, artifacts[i]); graded.Correct {
			correct++
			points += graded.PointsAwarded
		}
	}
	return points, correct, answered
}

// ValidateQuiz rejects quizzes containing kinds outside the closed enum so
// a bad definition fails at load time instead of at grading time.
func ValidateQuiz(quiz domain.Quiz) error {
	for i, q := range quiz.Questions {
		if !q.Kind.Valid() {
			return fmt.Errorf("question %d (%s): %w: %q", i, q.ID, domain.ErrUnknownQuestionKind, q.Kind)
		}
	}
	return nil
}
