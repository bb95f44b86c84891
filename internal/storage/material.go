package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/conorfennell/flashstudy/internal/domain"
)

// SaveMaterial stores generated material under a topic in a single transaction.
// The topic is looked up by name first, so regenerating the same subject adds to
// the existing topic instead of creating a second one. The stored topic is returned.
func (db *DB) SaveMaterial(ctx context.Context, topicID string, m domain.Material) (*domain.Topic, error) {
	var topic *domain.Topic
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		topic, err = db.ensureTopic(ctx, tx, topicID, m.Topic)
		if err != nil {
			return err
		}
		if err := db.saveCards(ctx, tx, topic.ID, m.Points); err != nil {
			return err
		}

		questions := make([]domain.ExamQuestion, 0, len(m.Questions))
		for _, gq := range m.Questions {
			questions = append(questions, domain.ExamQuestion{
				TopicID:  topic.ID,
				Question: gq.Question,
				Options:  gq.Options,
				Answer:   gq.Answer,
			})
		}
		return db.insertQuestions(ctx, tx, questions)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save material for topic %q: %w", m.Topic, err)
	}
	return topic, nil
}
