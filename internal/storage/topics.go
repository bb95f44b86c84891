package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/conorfennell/flashstudy/internal/domain"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const topicColumns = `id, name, created_at, source_id`

// InsertTopic inserts a topic. A topic with the same id is left untouched.
// A zero CreatedAt is replaced with the current time.
func (db *DB) InsertTopic(ctx context.Context, topic domain.Topic) error {
	return db.insertTopic(ctx, db.conn, topic)
}

func (db *DB) insertTopic(ctx context.Context, q querier, topic domain.Topic) error {
	created := topic.CreatedAt.UnixMilli()
	if topic.CreatedAt.IsZero() {
		created = db.stamp()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO topics (id, name, created_at, source_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, topic.ID, topic.Name, created, nullableID(topic.SourceID))
	if err != nil {
		return fmt.Errorf("failed to insert topic %s: %w", topic.ID, err)
	}
	return nil
}

// InsertTopics inserts several topics in one transaction, ignoring existing ids.
func (db *DB) InsertTopics(ctx context.Context, topics []domain.Topic) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		for _, t := range topics {
			if err := db.insertTopic(ctx, tx, t); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateTopic renames a topic.
func (db *DB) UpdateTopic(ctx context.Context, topic domain.Topic) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE topics SET name = ? WHERE id = ?
	`, topic.Name, topic.ID)
	if err != nil {
		return fmt.Errorf("failed to update topic %s: %w", topic.ID, err)
	}
	return expectOneRow(res, "topic "+topic.ID)
}

// SetTopicSource marks a topic as imported from a source.
func (db *DB) SetTopicSource(ctx context.Context, id string, sourceID int64) error {
	res, err := db.conn.ExecContext(ctx, `UPDATE topics SET source_id = ? WHERE id = ?`, nullableID(sourceID), id)
	if err != nil {
		return fmt.Errorf("failed to set source of topic %s: %w", id, err)
	}
	return expectOneRow(res, "topic "+id)
}

// GetAllTopics returns every topic ordered by name.
func (db *DB) GetAllTopics(ctx context.Context) ([]domain.Topic, error) {
	return db.queryTopics(ctx, `SELECT `+topicColumns+` FROM topics ORDER BY name ASC, id ASC`)
}

// GetTopicsNewestFirst returns every topic, most recently created first.
func (db *DB) GetTopicsNewestFirst(ctx context.Context) ([]domain.Topic, error) {
	return db.queryTopics(ctx, `SELECT `+topicColumns+` FROM topics ORDER BY created_at DESC, id ASC`)
}

// SearchTopics returns topics whose id or name contains query, case-insensitively.
func (db *DB) SearchTopics(ctx context.Context, query string) ([]domain.Topic, error) {
	return db.queryTopics(ctx, `
		SELECT `+topicColumns+` FROM topics
		WHERE id LIKE '%' || ? || '%' OR name LIKE '%' || ? || '%'
		ORDER BY name ASC
	`, query, query)
}

// GetTopicByID retrieves a topic by id. It returns nil, nil if there is none.
func (db *DB) GetTopicByID(ctx context.Context, id string) (*domain.Topic, error) {
	return db.findTopic(ctx, db.conn, `SELECT `+topicColumns+` FROM topics WHERE id = ?`, id)
}

// GetTopicByName retrieves the first topic with exactly this name, or nil, nil.
func (db *DB) GetTopicByName(ctx context.Context, name string) (*domain.Topic, error) {
	return db.findTopic(ctx, db.conn, `SELECT `+topicColumns+` FROM topics WHERE name = ? LIMIT 1`, name)
}

// EnsureTopicExists returns the generated topic called name, creating it with id if it does not exist yet.
// Topics imported from deck sources are never matched; their content belongs to the deck file.
func (db *DB) EnsureTopicExists(ctx context.Context, id, name string) (*domain.Topic, error) {
	return db.ensureTopic(ctx, db.conn, id, name)
}

func (db *DB) ensureTopic(ctx context.Context, q querier, id, name string) (*domain.Topic, error) {
	topic, err := db.findTopic(ctx, q, `SELECT `+topicColumns+` FROM topics WHERE name = ? AND source_id IS NULL LIMIT 1`, name)
	if err != nil {
		return nil, err
	}
	if topic != nil {
		return topic, nil
	}

	topic = &domain.Topic{ID: id, Name: name, CreatedAt: fromMillis(db.stamp())}
	if err := db.insertTopic(ctx, q, *topic); err != nil {
		return nil, err
	}
	return topic, nil
}

// DeleteTopic removes a topic together with its cards and exam questions.
func (db *DB) DeleteTopic(ctx context.Context, id string) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM cards WHERE topic_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete cards of topic %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM exam WHERE topic_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete questions of topic %s: %w", id, err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM topics WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete topic %s: %w", id, err)
		}
		return expectOneRow(res, "topic "+id)
	})
}

func (db *DB) findTopic(ctx context.Context, q querier, query string, arg string) (*domain.Topic, error) {
	t, err := scanTopic(q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Topic not found
		}
		return nil, fmt.Errorf("failed to find topic %s: %w", arg, err)
	}
	return &t, nil
}

func scanTopic(row rowScanner) (domain.Topic, error) {
	var t domain.Topic
	var created int64
	var source sql.NullInt64
	if err := row.Scan(&t.ID, &t.Name, &created, &source); err != nil {
		return t, err
	}
	t.CreatedAt = fromMillis(created)
	t.SourceID = source.Int64
	return t, nil
}

// GetTopicIDsBySourceID returns the ids of every topic imported from a source.
func (db *DB) GetTopicIDsBySourceID(ctx context.Context, sourceID int64) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id FROM topics WHERE source_id = ? ORDER BY id`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get topics of source %d: %w", sourceID, err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan topic id of source %d: %w", sourceID, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (db *DB) queryTopics(ctx context.Context, query string, args ...any) ([]domain.Topic, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query topics: %w", err)
	}
	defer rows.Close()

	topics := []domain.Topic{}
	for rows.Next() {
		t, err := scanTopic(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan topic row: %w", err)
		}
		topics = append(topics, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate topics: %w", err)
	}
	return topics, nil
}

func (db *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
