package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/conorfennell/flashstudy/internal/domain"
	"github.com/conorfennell/flashstudy/internal/knol"
)

const cardColumns = `id, topic_id, content, hash, created_at`

var cardOrder = map[domain.SortMode]string{
	domain.NewestFirst:         `created_at DESC, id DESC`,
	domain.OldestFirst:         `created_at ASC, id ASC`,
	domain.Alphabetical:        `content ASC, id ASC`,
	domain.ReverseAlphabetical: `content DESC, id DESC`,
}

// GetCardsByTopicID returns the content of every card under a topic in the order it was saved.
func (db *DB) GetCardsByTopicID(ctx context.Context, topicID string) ([]string, error) {
	cards, err := db.queryCards(ctx, `
		SELECT `+cardColumns+` FROM cards WHERE topic_id = ? ORDER BY id ASC
	`, topicID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cards for topic %s: %w", topicID, err)
	}
	contents := make([]string, len(cards))
	for i, c := range cards {
		contents[i] = c.Content
	}
	return contents, nil
}

// GetAllCardsSorted returns every card across all topics in the requested order.
func (db *DB) GetAllCardsSorted(ctx context.Context, mode domain.SortMode) ([]domain.Card, error) {
	order, ok := cardOrder[mode]
	if !ok {
		return nil, fmt.Errorf("unknown sort mode %q", mode)
	}
	return db.queryCards(ctx, `SELECT `+cardColumns+` FROM cards ORDER BY `+order)
}

// SaveCards stores one card per point under topicID. Points already stored
// for the topic (by normalized content) are skipped.
func (db *DB) SaveCards(ctx context.Context, topicID string, points []string) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		return db.saveCards(ctx, tx, topicID, points)
	})
}

func (db *DB) saveCards(ctx context.Context, q querier, topicID string, points []string) error {
	created := db.stamp()
	for _, point := range points {
		_, err := q.ExecContext(ctx, `
			INSERT INTO cards (topic_id, content, hash, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(topic_id, hash) DO NOTHING
		`, topicID, point, knol.CardHash(point), created)
		if err != nil {
			return fmt.Errorf("failed to save card for topic %s: %w", topicID, err)
		}
	}
	return nil
}

// DeleteCardsByTopicID removes every card under a topic.
func (db *DB) DeleteCardsByTopicID(ctx context.Context, topicID string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM cards WHERE topic_id = ?`, topicID); err != nil {
		return fmt.Errorf("failed to delete cards for topic %s: %w", topicID, err)
	}
	return nil
}

// GetCardHashesByTopicID returns the content hashes of a topic's cards.
func (db *DB) GetCardHashesByTopicID(ctx context.Context, topicID string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT hash FROM cards WHERE topic_id = ?`, topicID)
	if err != nil {
		return nil, fmt.Errorf("failed to get card hashes for topic %s: %w", topicID, err)
	}
	defer rows.Close()

	hashes := []string{}
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("failed to scan card hash for topic %s: %w", topicID, err)
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

// DeleteCardByHash removes a single card of a topic by its content hash.
func (db *DB) DeleteCardByHash(ctx context.Context, topicID, hash string) error {
	_, err := db.conn.ExecContext(ctx, `
		DELETE FROM cards
		WHERE topic_id = ? AND hash = ?
	`, topicID, hash)
	if err != nil {
		return fmt.Errorf("failed to delete card with hash %s: %w", hash, err)
	}
	return nil
}

func (db *DB) queryCards(ctx context.Context, query string, args ...any) ([]domain.Card, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	defer rows.Close()

	cards := []domain.Card{}
	for rows.Next() {
		var c domain.Card
		var created int64
		if err := rows.Scan(&c.ID, &c.TopicID, &c.Content, &c.Hash, &created); err != nil {
			return nil, fmt.Errorf("failed to scan card row: %w", err)
		}
		c.CreatedAt = fromMillis(created)
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cards: %w", err)
	}
	return cards, nil
}
