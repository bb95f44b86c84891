package knol

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/conorfennell/flashstudy/internal/domain"
)

// Normalize cleans a single piece of card text: line endings are unified,
// surrounding whitespace is trimmed and the text is lowercased.
func Normalize(part string) string {
	p := strings.ReplaceAll(part, "\r\n", "\n")
	p = strings.TrimSpace(p)
	return strings.ToLower(p)
}

// Join normalizes every part and joins them with newlines so that
// "question" and "answer" never collapse into "questionanswer".
func Join(parts ...string) string {
	normalized := make([]string, len(parts))
	for i, p := range parts {
		normalized[i] = Normalize(p)
	}
	return strings.Join(normalized, "\n")
}

// Sum returns the hex SHA-256 of the normalized parts.
func Sum(parts ...string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(Join(parts...))))
}

// CardHash identifies a card by its content within a topic.
func CardHash(content string) string {
	return Sum(content)
}

// QuestionHash identifies an exam question by its text, options and answer.
// Option order matters.
func QuestionHash(q domain.ExamQuestion) string {
	parts := append([]string{q.Question, q.Answer}, q.Options...)
	return Sum(parts...)
}
