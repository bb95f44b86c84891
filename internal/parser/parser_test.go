package parser

import (
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name            string
		input           string
		expectedEntries int
		expectedQ       string
		expectedA       string
		expectedC       string
		expectedOptions []string
	}{
		{
			name:            "Simple Q&A",
			input:           "Q: What is the capital of France?\nA: Paris",
			expectedEntries: 1,
			expectedQ:       "What is the capital of France?",
			expectedA:       "Paris",
		},
		{
			name:            "Simple Q, A, and C",
			input:           "Q: What is 1+1?\nA: 2\nC: Basic arithmetic",
			expectedEntries: 1,
			expectedQ:       "What is 1+1?",
			expectedA:       "2",
			expectedC:       "Basic arithmetic",
		},
		{
			name: "Multiline Answer",
			input: `
Q: What are the primary colors?
A: Red
Blue
Yellow
`,
			expectedEntries: 1,
			expectedQ:       "What are the primary colors?",
			expectedA:       "Red\nBlue\nYellow",
		},
		{
			name: "Two Cards",
			input: `
Q: First question
A: First answer

Q: Second question
A: Second answer
`,
			expectedEntries: 2,
		},
		{
			name: "Separator ends an entry",
			input: `Q: First
A: One
---
stray text
Q: Second
A: Two`,
			expectedEntries: 2,
		},
		{
			name: "Multiple choice",
			input: `
Q: Which planet is largest?
O: Mars
O: Jupiter
O: Venus
A: Jupiter
`,
			expectedEntries: 1,
			expectedQ:       "Which planet is largest?",
			expectedA:       "Jupiter",
			expectedOptions: []string{"Mars", "Jupiter", "Venus"},
		},
		{
			name:            "No cards, just text",
			input:           "This is a file with no questions.\nO: orphan option",
			expectedEntries: 0,
		},
		{
			name:            "Prefixes with no space",
			input:           "Q:Question\nA:Answer",
			expectedEntries: 1,
			expectedQ:       "Question",
			expectedA:       "Answer",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := strings.NewReader(tc.input)
			deck, err := Parse(r)
			if err != nil {
				t.Fatalf("Parse() returned an unexpected error: %v", err)
			}

			if len(deck.Entries) != tc.expectedEntries {
				t.Fatalf("Expected %d entries, but got %d", tc.expectedEntries, len(deck.Entries))
			}

			if tc.expectedEntries == 1 {
				entry := deck.Entries[0]
				if entry.Question != tc.expectedQ {
					t.Errorf("Expected Question to be '%s', but got '%s'", tc.expectedQ, entry.Question)
				}
				if entry.Answer != tc.expectedA {
					t.Errorf("Expected Answer to be '%s', but got '%s'", tc.expectedA, entry.Answer)
				}
				if entry.Context != tc.expectedC {
					t.Errorf("Expected Context to be '%s', but got '%s'", tc.expectedC, entry.Context)
				}
				if strings.Join(entry.Options, "|") != strings.Join(tc.expectedOptions, "|") {
					t.Errorf("Expected Options %v, but got %v", tc.expectedOptions, entry.Options)
				}
			}
		})
	}
}

func TestParseTitle(t *testing.T) {
	deck, err := Parse(strings.NewReader("# Solar System\n\nQ: Closest planet?\nA: Mercury\n---\n# Ignored\n"))
	if err != nil {
		t.Fatalf("Parse() returned an unexpected error: %v", err)
	}
	if deck.Title != "Solar System" {
		t.Errorf("Expected title 'Solar System', got '%s'", deck.Title)
	}
	if len(deck.Entries) != 1 || deck.Entries[0].Answer != "Mercury" {
		t.Errorf("Unexpected entries: %+v", deck.Entries)
	}
}
