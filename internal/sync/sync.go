// Package sync imports markdown decks from local directories and git
// repositories into topics, keeping each topic in step with its file.
package sync

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/conorfennell/flashstudy/internal/domain"
	"github.com/conorfennell/flashstudy/internal/gitsource"
	"github.com/conorfennell/flashstudy/internal/knol"
	"github.com/conorfennell/flashstudy/internal/parser"
	"github.com/conorfennell/flashstudy/internal/storage"
)

// Report summarizes one reconciliation pass.
type Report struct {
	Files     int     `json:"files"`
	Cards     int     `json:"cards"`
	Questions int     `json:"questions"`
	Orphaned  int     `json:"orphaned"`
	Removed   int     `json:"removedTopics"`
	Errors    []error `json:"-"`
}

func (r *Report) add(o Report) {
	r.Files += o.Files
	r.Cards += o.Cards
	r.Questions += o.Questions
	r.Orphaned += o.Orphaned
	r.Removed += o.Removed
	r.Errors = append(r.Errors, o.Errors...)
}

// Syncer reconciles deck sources with the database.
type Syncer struct {
	db       *storage.DB
	reposDir string
	progress io.Writer
}

// New returns a Syncer that checks git sources out under reposDir.
func New(db *storage.DB, reposDir string, progress io.Writer) *Syncer {
	return &Syncer{db: db, reposDir: reposDir, progress: progress}
}

// AddSource registers a local directory or git URL. Adding a path twice returns the existing source.
func (s *Syncer) AddSource(ctx context.Context, path string) (*storage.Source, error) {
	sourceType := "local"
	if gitsource.IsGitURL(path) {
		sourceType = "git"
	} else {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", abs, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", abs)
		}
		path = abs
	}

	existing, err := s.db.FindSourceByPath(ctx, path)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	if _, err := s.db.InsertSource(ctx, path, sourceType); err != nil {
		return nil, err
	}
	slog.Info("Added source", "type", sourceType, "path", path)
	return s.db.FindSourceByPath(ctx, path)
}

// RunSync iterates over all sources and reconciles them.
func (s *Syncer) RunSync(ctx context.Context) (Report, error) {
	var total Report

	slog.Info("Starting sync process for all sources...")
	sources, err := s.db.GetAllSources(ctx)
	if err != nil {
		return total, fmt.Errorf("failed to get sources: %w", err)
	}

	if len(sources) == 0 {
		slog.Info("No sources configured. Add one with --add-source <path/or/url.git>")
		return total, nil
	}

	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		slog.Info("Syncing source", "id", source.ID, "type", source.Type, "path", source.Path)

		dir := source.Path
		if source.Type == "git" {
			localRepoPath, err := gitsource.LocalPath(s.reposDir, source.Path)
			if err != nil {
				slog.Error("Error determining local path for git repo", "url", source.Path, "error", err)
				total.Errors = append(total.Errors, err)
				continue
			}
			if err := os.MkdirAll(filepath.Dir(localRepoPath), os.ModePerm); err != nil {
				total.Errors = append(total.Errors, fmt.Errorf("failed to create repos directory: %w", err))
				continue
			}
			if err := gitsource.Sync(ctx, source.Path, localRepoPath, s.progress); err != nil {
				slog.Error("Error syncing git repo", "url", source.Path, "error", err)
				total.Errors = append(total.Errors, err)
				continue
			}
			dir = localRepoPath
		}

		report, err := s.reconcileSource(ctx, source, dir)
		if err != nil {
			slog.Error("Error reconciling source", "path", source.Path, "error", err)
			total.Errors = append(total.Errors, err)
			continue
		}
		total.add(report)
	}
	slog.Info("Sync process complete.", "cards", total.Cards, "questions", total.Questions, "errors", len(total.Errors))
	return total, nil
}

func (s *Syncer) reconcileSource(ctx context.Context, source storage.Source, dir string) (Report, error) {
	var report Report
	seen := make(map[string]bool)

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)
		// A file that fails to parse keeps its topic until it is fixed or removed.
		seen[DeckTopicID(source.Path, rel)] = true
		fileReport, err := s.reconcileFile(ctx, source, path, rel)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("%s: %w", rel, err))
		}
		report.add(fileReport)
		return nil
	})
	if walkErr != nil {
		return report, fmt.Errorf("error walking directory %s: %w", dir, walkErr)
	}

	removed, err := s.removeMissingTopics(ctx, source.ID, seen)
	report.Removed = removed
	if err != nil {
		report.Errors = append(report.Errors, err)
	}

	if err := s.db.UpdateSourceLastScanned(ctx, source.ID); err != nil {
		slog.Warn("Failed to update last scanned for source", "source_id", source.ID, "error", err)
	}

	slog.Info("reconciliation complete",
		"path", source.Path,
		"files", report.Files,
		"cards", report.Cards,
		"questions", report.Questions,
		"orphaned_deleted", report.Orphaned,
		"topics_removed", report.Removed,
		"errors", len(report.Errors),
	)
	return report, nil
}

// DeckTopicID derives a stable topic id from the source and the file's path within it.
func DeckTopicID(sourcePath, relPath string) string {
	return "deck-" + knol.Sum(sourcePath, relPath)[:16]
}

func (s *Syncer) reconcileFile(ctx context.Context, source storage.Source, path, rel string) (Report, error) {
	report := Report{Files: 1}

	deck, err := parser.ParseFile(path)
	if err != nil {
		return report, fmt.Errorf("parsing: %w", err)
	}

	name := deck.Title
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	topicID := DeckTopicID(source.Path, rel)
	if err := s.upsertTopic(ctx, source.ID, topicID, name); err != nil {
		return report, err
	}

	var points []string
	var questions []domain.ExamQuestion
	for _, entry := range deck.Entries {
		if len(entry.Options) == 0 {
			points = append(points, CardContent(entry))
			continue
		}
		if !slices.Contains(entry.Options, strings.TrimSpace(entry.Answer)) {
			report.Errors = append(report.Errors, fmt.Errorf("question %q: answer %q is not one of its options", entry.Question, entry.Answer))
			continue
		}
		questions = append(questions, domain.ExamQuestion{
			TopicID:  topicID,
			Question: entry.Question,
			Options:  entry.Options,
			Answer:   strings.TrimSpace(entry.Answer),
		})
	}

	if err := s.db.SaveCards(ctx, topicID, points); err != nil {
		return report, err
	}
	if err := s.db.InsertQuestions(ctx, questions); err != nil {
		return report, err
	}
	report.Cards = len(points)
	report.Questions = len(questions)

	orphaned, err := s.deleteOrphans(ctx, topicID, points, questions)
	report.Orphaned = orphaned
	return report, err
}

func (s *Syncer) upsertTopic(ctx context.Context, sourceID int64, id, name string) error {
	existing, err := s.db.GetTopicByID(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return s.db.InsertTopic(ctx, domain.Topic{ID: id, Name: name, SourceID: sourceID})
	}
	if existing.SourceID != sourceID {
		// Deck topics stored before sources owned their topics.
		if err := s.db.SetTopicSource(ctx, id, sourceID); err != nil {
			return err
		}
	}
	if existing.Name != name {
		return s.db.UpdateTopic(ctx, domain.Topic{ID: id, Name: name})
	}
	return nil
}

// removeMissingTopics deletes the source's topics whose files were not found in this pass.
func (s *Syncer) removeMissingTopics(ctx context.Context, sourceID int64, seen map[string]bool) (int, error) {
	ids, err := s.db.GetTopicIDsBySourceID(ctx, sourceID)
	if err != nil {
		return 0, err
	}
	var removed int
	for _, id := range ids {
		if seen[id] {
			continue
		}
		slog.Info("Deck file removed, deleting topic", "source_id", sourceID, "topic", id)
		if err := s.db.DeleteTopic(ctx, id); err != nil {
			slog.Warn("Failed to delete topic of removed file", "topic", id, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

// deleteOrphans removes cards and questions of the topic that are no longer in its file.
func (s *Syncer) deleteOrphans(ctx context.Context, topicID string, points []string, questions []domain.ExamQuestion) (int, error) {
	foundCards := make(map[string]bool, len(points))
	for _, p := range points {
		foundCards[knol.CardHash(p)] = true
	}
	foundQuestions := make(map[string]bool, len(questions))
	for _, q := range questions {
		foundQuestions[knol.QuestionHash(q)] = true
	}

	var orphaned int
	hashes, err := s.db.GetCardHashesByTopicID(ctx, topicID)
	if err != nil {
		return 0, err
	}
	for _, h := range hashes {
		if foundCards[h] {
			continue
		}
		slog.Info("Orphaned card, deleting", "topic", topicID, "hash", h)
		if err := s.db.DeleteCardByHash(ctx, topicID, h); err != nil {
			slog.Warn("Failed to delete orphaned card", "hash", h, "error", err)
			continue
		}
		orphaned++
	}

	stored, err := s.db.GetQuestionsByTopicID(ctx, topicID)
	if err != nil {
		return orphaned, err
	}
	for _, q := range stored {
		if foundQuestions[q.Hash] {
			continue
		}
		slog.Info("Orphaned question, deleting", "topic", topicID, "id", q.ID)
		if err := s.db.DeleteQuestionByID(ctx, q.ID); err != nil {
			slog.Warn("Failed to delete orphaned question", "id", q.ID, "error", err)
			continue
		}
		orphaned++
	}
	return orphaned, nil
}

// CardContent renders a flashcard entry as the text stored on a card.
func CardContent(e parser.Entry) string {
	parts := []string{strings.TrimSpace(e.Question), strings.TrimSpace(e.Answer)}
	if c := strings.TrimSpace(e.Context); c != "" {
		parts = append(parts, c)
	}
	return strings.Join(parts, "\n\n")
}
