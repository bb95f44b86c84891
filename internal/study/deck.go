package study

import (
	"context"
	"fmt"
)

// CardsState is a topic's deck and the card currently shown.
// Index is -1 when the deck failed to load.
type CardsState struct {
	TopicID string   `json:"topicId"`
	Cards   []string `json:"cards"`
	Index   int      `json:"index"`
	Error   string   `json:"error,omitempty"`
}

// LoadDeck loads a topic's cards positioned on the first one.
func (s *Service) LoadDeck(ctx context.Context, topicID string) CardsState {
	cards, err := s.db.GetCardsByTopicID(ctx, topicID)
	if err != nil {
		return CardsState{TopicID: topicID, Cards: []string{}, Index: -1, Error: fmt.Sprintf("failed to load cards: %v", err)}
	}
	return CardsState{TopicID: topicID, Cards: cards, Index: 0}
}

// At moves to card i, clamped to the deck.
func (c CardsState) At(i int) CardsState {
	if c.Index < 0 {
		return c
	}
	if last := len(c.Cards) - 1; i > last {
		i = last
	}
	if i < 0 {
		i = 0
	}
	c.Index = i
	return c
}

// Next moves forward one card, staying on the last card at the end.
func (c CardsState) Next() CardsState { return c.At(c.Index + 1) }

// Prev moves back one card, staying on the first card at the start.
func (c CardsState) Prev() CardsState { return c.At(c.Index - 1) }

// Current returns the card being shown, or "" when there is none.
func (c CardsState) Current() string {
	if c.Index < 0 || c.Index >= len(c.Cards) {
		return ""
	}
	return c.Cards[c.Index]
}
