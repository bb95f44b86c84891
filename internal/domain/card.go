package domain

import (
	"fmt"
	"strings"
	"time"
)

// Card is a single flashcard's textual content under a topic.
type Card struct {
	ID        int64     `json:"id"`
	TopicID   string    `json:"topicId"`
	Content   string    `json:"content"`
	Hash      string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

// SortMode selects the ordering used when listing every card.
type SortMode string

const (
	NewestFirst         SortMode = "newest"
	OldestFirst         SortMode = "oldest"
	Alphabetical        SortMode = "alphabetical"
	ReverseAlphabetical SortMode = "reverse_alphabetical"
)

// ParseSortMode maps user input onto a SortMode. An empty string means NewestFirst.
func ParseSortMode(s string) (SortMode, error) {
	switch SortMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", NewestFirst:
		return NewestFirst, nil
	case OldestFirst:
		return OldestFirst, nil
	case Alphabetical:
		return Alphabetical, nil
	case ReverseAlphabetical:
		return ReverseAlphabetical, nil
	}
	return "", fmt.Errorf("unknown sort mode %q", s)
}
