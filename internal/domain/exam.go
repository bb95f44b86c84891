package domain

import "time"

// ExamQuestion is a multiple-choice question under a topic.
// Options keep the order they were generated in.
type ExamQuestion struct {
	ID        int64     `json:"id"`
	TopicID   string    `json:"topicId"`
	Question  string    `json:"question"`
	Options   []string  `json:"options"`
	Answer    string    `json:"answer"`
	Hash      string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

// AnswerResult records how a single question was answered in a submitted exam.
type AnswerResult struct {
	QuestionID     int64  `json:"questionId"`
	Question       string `json:"question"`
	SelectedAnswer string `json:"selectedAnswer,omitempty"`
	CorrectAnswer  string `json:"correctAnswer"`
	IsCorrect      bool   `json:"isCorrect"`
}

// ExamResult is the outcome of scoring one exam submission.
type ExamResult struct {
	TopicID string         `json:"topicId"`
	Score   int            `json:"score"`
	Total   int            `json:"total"`
	Text    string         `json:"text"`
	Results []AnswerResult `json:"results"`
}
