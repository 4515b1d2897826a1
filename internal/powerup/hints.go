package powerup

import "quiz-arena/internal/domain"

const flowHint = "Sketch the flow first: read the inputs, transform them step by step, then produce the output the prompt asks for."

const debugChecklist = `Check the basics first:
1. Does every variable get a value before it is read?
2. Do your loop bounds cover the whole range, including the last element?
3. Are your conditions comparing the right things (== vs =)?
4. Does every branch return or assign something?
5. Print intermediate values to see where the flow diverges.`

var skeletons = map[string]string{
	"javascript": "function solve(input) {\n  // declare variables\n  // loop / branch\n  return result;\n}",
	"python":     "def solve(input):\n    # declare variables\n    # loop / branch\n    return result",
	"go":         "func solve(input string) string {\n\t// declare variables\n\t// loop / branch\n\treturn result\n}",
}

const defaultSkeleton = "declare variables\nread input\nloop / branch over the data\nreturn the result"

// hintFor produces the reveal-hint text: the displayed letter of the correct
// option for multiple-choice, a generic flow hint otherwise.
func hintFor(q domain.Question, optionOrder []int) string {
	if q.Kind != domain.KindMultipleChoice {
		return flowHint
	}
	return "The correct answer is option " + correctLetter(q, optionOrder) + "."
}

// correctLetter maps the correct original option index through the display
// permutation and names it A, B, C...
func correctLetter(q domain.Question, optionOrder []int) string {
	pos := q.CorrectIndex
	for display, original := range optionOrder {
		if original == q.CorrectIndex {
			pos = display
			break
		}
	}
	return string(rune('A' + pos))
}

// skeletonFor returns the language-specific skeleton, falling back to a
// generic outline when the question's first language has none.
func skeletonFor(q domain.Question) string {
	if len(q.Languages) > 0 {
		if s, ok := skeletons[q.Languages[0]]; ok {
			return s
		}
	}
	return defaultSkeleton
}
