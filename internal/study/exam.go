package study

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"github.com/conorfennell/flashstudy/internal/domain"
	"github.com/conorfennell/flashstudy/internal/storage"
)

// LoadExam returns a topic's exam questions in the order they were added.
func (s *Service) LoadExam(ctx context.Context, topicID string) ([]domain.ExamQuestion, error) {
	questions, err := s.db.GetQuestionsByTopicID(ctx, topicID)
	if err != nil {
		return nil, fmt.Errorf("failed to load exam for topic %s: %w", topicID, err)
	}
	return questions, nil
}

// SubmitExam scores the selected answers, keyed by question id, against a
// topic's questions. Unanswered questions count as wrong. The score is kept
// as the topic's latest.
func (s *Service) SubmitExam(ctx context.Context, topicID string, selected map[int64]string) (*domain.ExamResult, error) {
	questions, err := s.LoadExam(ctx, topicID)
	if err != nil {
		return nil, err
	}

	result := Score(questions, selected)
	result.TopicID = topicID

	s.mu.Lock()
	s.scores[topicID] = result.Score
	s.mu.Unlock()
	return result, nil
}

// Score counts the questions whose selected answer equals the stored answer.
func Score(questions []domain.ExamQuestion, selected map[int64]string) *domain.ExamResult {
	result := &domain.ExamResult{Total: len(questions), Results: make([]domain.AnswerResult, 0, len(questions))}
	for _, q := range questions {
		answer, ok := selected[q.ID]
		correct := ok && answer == q.Answer
		if correct {
			result.Score++
		}
		result.Results = append(result.Results, domain.AnswerResult{
			QuestionID:     q.ID,
			Question:       q.Question,
			SelectedAnswer: answer,
			CorrectAnswer:  q.Answer,
			IsCorrect:      correct,
		})
	}
	result.Text = fmt.Sprintf("Your score: %d / %d", result.Score, result.Total)
	return result
}

// LastScore returns the latest score submitted for a topic.
func (s *Service) LastScore(topicID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	score, ok := s.scores[topicID]
	return score, ok
}

// Question returns an exam question. It returns storage.ErrNotFound if there is none.
func (s *Service) Question(ctx context.Context, id int64) (*domain.ExamQuestion, error) {
	q, err := s.db.GetQuestionByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, fmt.Errorf("question %d: %w", id, storage.ErrNotFound)
	}
	return q, nil
}

// UpdateQuestion replaces a question's text, options and answer.
func (s *Service) UpdateQuestion(ctx context.Context, q domain.ExamQuestion) (*domain.ExamQuestion, error) {
	if !lo.Contains(q.Options, q.Answer) {
		return nil, fmt.Errorf("%w: answer %q is not one of the options", ErrInvalid, q.Answer)
	}
	existing, err := s.Question(ctx, q.ID)
	if err != nil {
		return nil, err
	}
	existing.Question = q.Question
	existing.Options = q.Options
	existing.Answer = q.Answer
	if err := s.db.UpdateQuestion(ctx, *existing); err != nil {
		return nil, err
	}
	return existing, nil
}

func (s *Service) DeleteQuestion(ctx context.Context, id int64) error {
	return s.db.DeleteQuestionByID(ctx, id)
}

// DeleteQuestions removes every exam question of a topic, keeping its cards.
func (s *Service) DeleteQuestions(ctx context.Context, topicID string) error {
	return s.db.DeleteQuestionsByTopicID(ctx, topicID)
}
