package storage

const schema = `
-- 'topics' groups the cards and exam questions generated for one subject.
-- source_id is set for topics imported from a deck source and NULL for generated ones.
CREATE TABLE IF NOT EXISTS topics (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    source_id INTEGER REFERENCES sources(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_topics_name ON topics(name);

-- 'cards' stores one flashcard point per row. hash is the normalized content
-- hash, unique per topic so bulk saves can be repeated safely.
CREATE TABLE IF NOT EXISTS cards (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    topic_id TEXT NOT NULL,
    content TEXT NOT NULL,
    hash TEXT NOT NULL,
    created_at INTEGER NOT NULL,

    FOREIGN KEY(topic_id) REFERENCES topics(id) ON DELETE CASCADE,
    UNIQUE(topic_id, hash)
);

CREATE INDEX IF NOT EXISTS idx_cards_topic_id ON cards(topic_id);

-- 'exam' stores multiple-choice questions. options is a JSON array kept in order.
CREATE TABLE IF NOT EXISTS exam (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    topic_id TEXT NOT NULL,
    question TEXT NOT NULL,
    options TEXT NOT NULL,
    answer TEXT NOT NULL,
    hash TEXT NOT NULL,
    created_at INTEGER NOT NULL,

    FOREIGN KEY(topic_id) REFERENCES topics(id) ON DELETE CASCADE,
    UNIQUE(topic_id, hash)
);

CREATE INDEX IF NOT EXISTS idx_exam_topic_id ON exam(topic_id);

-- 'sessions' holds at most one row: the signed-in user's auth session.
CREATE TABLE IF NOT EXISTS sessions (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    access_token TEXT NOT NULL,
    refresh_token TEXT NOT NULL,
    token_type TEXT NOT NULL,
    expires_at INTEGER NOT NULL,
    user_id TEXT NOT NULL,
    email TEXT NOT NULL
);

-- 'sources' tracks markdown deck origins, either a local directory or a git repository.
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL DEFAULT 'local',
    last_scanned INTEGER
);
`

// migrations bring databases created before a column existed up to date.
// Each entry runs only when check finds nothing.
var migrations = []struct {
	check string
	apply []string
}{
	{
		check: `SELECT COUNT(*) FROM pragma_table_info('topics') WHERE name = 'source_id'`,
		apply: []string{`ALTER TABLE topics ADD COLUMN source_id INTEGER REFERENCES sources(id) ON DELETE CASCADE`},
	},
}

// indexes depend on migrated columns, so they are created after migrations.
const indexes = `
CREATE INDEX IF NOT EXISTS idx_topics_source_id ON topics(source_id);
`
