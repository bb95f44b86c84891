package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/conorfennell/flashstudy/internal/domain"
	"github.com/conorfennell/flashstudy/internal/knol"
)

const examColumns = `id, topic_id, question, options, answer, hash, created_at`

// InsertQuestion stores a single exam question. Duplicates within the topic are ignored.
func (db *DB) InsertQuestion(ctx context.Context, q domain.ExamQuestion) error {
	return db.insertQuestion(ctx, db.conn, q, db.stamp())
}

// InsertQuestions stores several exam questions in one transaction, ignoring duplicates.
func (db *DB) InsertQuestions(ctx context.Context, questions []domain.ExamQuestion) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		return db.insertQuestions(ctx, tx, questions)
	})
}

func (db *DB) insertQuestions(ctx context.Context, q querier, questions []domain.ExamQuestion) error {
	created := db.stamp()
	for _, question := range questions {
		if err := db.insertQuestion(ctx, q, question, created); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) insertQuestion(ctx context.Context, q querier, question domain.ExamQuestion, created int64) error {
	options, err := encodeOptions(question.Options)
	if err != nil {
		return err
	}
	if !question.CreatedAt.IsZero() {
		created = question.CreatedAt.UnixMilli()
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO exam (topic_id, question, options, answer, hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(topic_id, hash) DO NOTHING
	`, question.TopicID, question.Question, options, question.Answer, knol.QuestionHash(question), created)
	if err != nil {
		return fmt.Errorf("failed to insert question for topic %s: %w", question.TopicID, err)
	}
	return nil
}

// GetQuestionsByTopicID returns a topic's questions, oldest first.
func (db *DB) GetQuestionsByTopicID(ctx context.Context, topicID string) ([]domain.ExamQuestion, error) {
	return db.queryQuestions(ctx, `
		SELECT `+examColumns+` FROM exam WHERE topic_id = ? ORDER BY created_at ASC, id ASC
	`, topicID)
}

// GetAllQuestions returns every stored question, oldest first.
func (db *DB) GetAllQuestions(ctx context.Context) ([]domain.ExamQuestion, error) {
	return db.queryQuestions(ctx, `SELECT `+examColumns+` FROM exam ORDER BY created_at ASC, id ASC`)
}

// GetQuestionByID retrieves a question. It returns nil, nil if there is none.
func (db *DB) GetQuestionByID(ctx context.Context, id int64) (*domain.ExamQuestion, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+examColumns+` FROM exam WHERE id = ?`, id)
	q, err := scanQuestion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Question not found
		}
		return nil, fmt.Errorf("failed to find question %d: %w", id, err)
	}
	return &q, nil
}

// UpdateQuestion corrects the text, options and answer of a stored question.
func (db *DB) UpdateQuestion(ctx context.Context, q domain.ExamQuestion) error {
	options, err := encodeOptions(q.Options)
	if err != nil {
		return err
	}
	res, err := db.conn.ExecContext(ctx, `
		UPDATE exam
		SET question = ?, options = ?, answer = ?, hash = ?
		WHERE id = ?
	`, q.Question, options, q.Answer, knol.QuestionHash(q), q.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("question %d: the topic already has this question: %w", q.ID, ErrDuplicate)
		}
		return fmt.Errorf("failed to update question %d: %w", q.ID, err)
	}
	return expectOneRow(res, "question "+strconv.FormatInt(q.ID, 10))
}

// DeleteQuestionByID removes a single question.
func (db *DB) DeleteQuestionByID(ctx context.Context, id int64) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM exam WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete question %d: %w", id, err)
	}
	return expectOneRow(res, "question "+strconv.FormatInt(id, 10))
}

// DeleteQuestionsByTopicID removes every question under a topic.
func (db *DB) DeleteQuestionsByTopicID(ctx context.Context, topicID string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM exam WHERE topic_id = ?`, topicID); err != nil {
		return fmt.Errorf("failed to delete questions for topic %s: %w", topicID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuestion(row rowScanner) (domain.ExamQuestion, error) {
	var q domain.ExamQuestion
	var options string
	var created int64
	if err := row.Scan(&q.ID, &q.TopicID, &q.Question, &options, &q.Answer, &q.Hash, &created); err != nil {
		return q, err
	}
	if err := json.Unmarshal([]byte(options), &q.Options); err != nil {
		return q, fmt.Errorf("failed to decode options of question %d: %w", q.ID, err)
	}
	q.CreatedAt = fromMillis(created)
	return q, nil
}

func (db *DB) queryQuestions(ctx context.Context, query string, args ...any) ([]domain.ExamQuestion, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query questions: %w", err)
	}
	defer rows.Close()

	questions := []domain.ExamQuestion{}
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan question row: %w", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate questions: %w", err)
	}
	return questions, nil
}

func encodeOptions(options []string) (string, error) {
	if options == nil {
		options = []string{}
	}
	b, err := json.Marshal(options)
	if err != nil {
		return "", fmt.Errorf("failed to encode options: %w", err)
	}
	return string(b), nil
}
