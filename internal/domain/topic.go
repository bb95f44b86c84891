package domain

import "time"

// Topic is a named subject grouping a set of flashcards and exam questions.
// SourceID is set on topics imported from a deck source and zero on generated ones.
type Topic struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	SourceID  int64     `json:"sourceId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Subject is the grid view of a topic.
type Subject struct {
	TopicID string `json:"topicId"`
	Name    string `json:"name"`
}
