package domain

// Material is what a generator returns for a topic or document:
// the flashcard points and the exam questions that go with them.
type Material struct {
	Topic     string              `json:"topic" validate:"required"`
	Points    []string            `json:"points"`
	Questions []GeneratedQuestion `json:"questions" validate:"dive"`
}

// GeneratedQuestion is an exam question as produced by a generator, before it is stored.
type GeneratedQuestion struct {
	QuestionID int      `json:"questionId"`
	Question   string   `json:"question" validate:"required"`
	Options    []string `json:"options" validate:"min=1"`
	Answer     string   `json:"answer" validate:"required"`
}
