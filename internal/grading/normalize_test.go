package grading

import "testing"

func TestNormalizeStripsFormattingNoise(t *testing.T) {
	cases := []struct {
		name string
		a, b string
	}{
		{"whitespace and semicolons", "function f(){return 1;}", "function f() { return 1 }"},
		{"block comments", "/* header */ let x = 1", "let x = 1"},
		{"line comments", "let x = 1 // trailing\nlet y = 2", "let x = 1\nlet y = 2"},
		{"hash comments", "x = 1 # note\ny = 2", "x = 1\ny = 2"},
		{"quote style", `print("hi")`, "print('hi')"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if Normalize(tc.a) != Normalize(tc.b) {
				t.Fatalf("expected %q and %q to normalize equal, got %q vs %q",
					tc.a, tc.b, Normalize(tc.a), Normalize(tc.b))
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"function f(){return 1;}",
		"/* c */ x = \"a\"; // t",
		"  \t\n  ",
		"",
	}
	for _, in := range inputs {
		once := Normalize(in)
		if Normalize(once) != once {
			t.Fatalf("normalize not idempotent for %q: %q vs %q", in, once, Normalize(once))
		}
	}
}

func TestNormalizeDistinguishesDifferentCode(t *testing.T) {
	if Normalize("return 1") == Normalize("return 2") {
		t.Fatalf("distinct programs should not normalize equal")
	}
}

func TestEquivalentRejectsEmptySides(t *testing.T) {
	if equivalent("", "x = 1") {
		t.Fatalf("empty answer should not be equivalent to anything")
	}
	if equivalent("// only a comment", "// only a comment") {
		t.Fatalf("two empty-after-normalize sources should not grade correct")
	}
}
