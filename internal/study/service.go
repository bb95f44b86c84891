// Package study is the application layer behind the HTTP API: browsing
// topics, generating material, flipping through decks and taking exams.
package study

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/samber/lo"

	"github.com/conorfennell/flashstudy/internal/domain"
	"github.com/conorfennell/flashstudy/internal/storage"
)

// recentCards is how many cards the home view shows.
const recentCards = 10

// ErrInvalid marks errors caused by bad input rather than a failure.
var ErrInvalid = errors.New("invalid input")

// Generator produces flashcard material from a typed topic or a document.
type Generator interface {
	FromTopic(ctx context.Context, id, topic string) (*domain.Material, error)
	FromPDF(ctx context.Context, filename string, r io.Reader) (*domain.Material, error)
}

// GenerationObserver is told about every finished generation attempt.
type GenerationObserver interface {
	ObserveGeneration(source string, err error)
}

type Service struct {
	db        *storage.DB
	generator Generator
	observer  GenerationObserver

	mu     sync.Mutex
	upload UploadState
	scores map[string]int
}

func NewService(db *storage.DB, generator Generator, observer GenerationObserver) *Service {
	return &Service{
		db:        db,
		generator: generator,
		observer:  observer,
		upload:    UploadState{Status: StatusIdle},
		scores:    make(map[string]int),
	}
}

// HomeView is everything the landing page shows.
type HomeView struct {
	Topics      []domain.Topic `json:"topics"`
	RecentCards []string       `json:"recentCards"`
}

// Home returns every topic by name and the most recently added cards.
func (s *Service) Home(ctx context.Context) (*HomeView, error) {
	topics, err := s.db.GetAllTopics(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load topics: %w", err)
	}
	cards, err := s.db.GetAllCardsSorted(ctx, domain.NewestFirst)
	if err != nil {
		return nil, fmt.Errorf("failed to load cards: %w", err)
	}

	recent := lo.Map(lo.Slice(cards, 0, recentCards), func(c domain.Card, _ int) string {
		return c.Content
	})
	return &HomeView{Topics: topics, RecentCards: recent}, nil
}

// Grid lists every topic as a subject tile, newest first.
func (s *Service) Grid(ctx context.Context) ([]domain.Subject, error) {
	topics, err := s.db.GetTopicsNewestFirst(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load topics: %w", err)
	}
	return lo.Map(topics, func(t domain.Topic, _ int) domain.Subject {
		return domain.Subject{TopicID: t.ID, Name: t.Name}
	}), nil
}

// Topics lists topics by name, or newest first when newest is set.
func (s *Service) Topics(ctx context.Context, newest bool) ([]domain.Topic, error) {
	if newest {
		return s.db.GetTopicsNewestFirst(ctx)
	}
	return s.db.GetAllTopics(ctx)
}

// Topic returns a single topic. It returns storage.ErrNotFound if there is none.
func (s *Service) Topic(ctx context.Context, id string) (*domain.Topic, error) {
	t, err := s.db.GetTopicByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("topic %s: %w", id, storage.ErrNotFound)
	}
	return t, nil
}

// RenameTopic changes a topic's display name.
func (s *Service) RenameTopic(ctx context.Context, id, name string) (*domain.Topic, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: topic name cannot be empty", ErrInvalid)
	}
	t, err := s.Topic(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Name = name
	if err := s.db.UpdateTopic(ctx, *t); err != nil {
		return nil, err
	}
	return t, nil
}

// DeleteTopic removes a topic with its cards and questions, and forgets its score.
func (s *Service) DeleteTopic(ctx context.Context, id string) error {
	if err := s.db.DeleteTopic(ctx, id); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.scores, id)
	s.mu.Unlock()
	return nil
}

// AllCards lists every card across topics in the given order.
func (s *Service) AllCards(ctx context.Context, mode domain.SortMode) ([]domain.Card, error) {
	return s.db.GetAllCardsSorted(ctx, mode)
}
