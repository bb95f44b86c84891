package study

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/conorfennell/flashstudy/internal/backend"
	"github.com/conorfennell/flashstudy/internal/domain"
)

// UploadStatus is where the latest generation request stands.
type UploadStatus string

const (
	StatusIdle    UploadStatus = "idle"
	StatusLoading UploadStatus = "loading"
	StatusSuccess UploadStatus = "success"
	StatusError   UploadStatus = "error"
)

// UploadState describes the latest generation request.
type UploadState struct {
	Status  UploadStatus  `json:"status"`
	Topic   *domain.Topic `json:"topic,omitempty"`
	Message string        `json:"message,omitempty"`
}

// ErrGenerationInProgress is returned when a second generation is started
// while one is still loading.
var ErrGenerationInProgress = errors.New("a generation is already in progress")

// UploadState returns the state of the latest generation request.
func (s *Service) UploadState() UploadState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upload
}

// ResetUpload puts the upload state back to idle unless a request is running.
func (s *Service) ResetUpload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upload.Status != StatusLoading {
		s.upload = UploadState{Status: StatusIdle}
	}
}

// GenerateFromTopic asks the generator for material about topic and stores it.
func (s *Service) GenerateFromTopic(ctx context.Context, topic string) (UploadState, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return s.UploadState(), fmt.Errorf("%w: topic cannot be empty", ErrInvalid)
	}
	return s.generate(ctx, "topic", func(id string) (*domain.Material, error) {
		return s.generator.FromTopic(ctx, id, topic)
	})
}

// GenerateFromPDF uploads a document to the generator and stores the material it returns.
func (s *Service) GenerateFromPDF(ctx context.Context, filename string, r io.Reader) (UploadState, error) {
	return s.generate(ctx, "pdf", func(string) (*domain.Material, error) {
		return s.generator.FromPDF(ctx, filename, r)
	})
}

func (s *Service) generate(ctx context.Context, source string, fetch func(id string) (*domain.Material, error)) (UploadState, error) {
	s.mu.Lock()
	if s.upload.Status == StatusLoading {
		s.mu.Unlock()
		return UploadState{Status: StatusLoading}, ErrGenerationInProgress
	}
	s.upload = UploadState{Status: StatusLoading}
	s.mu.Unlock()

	id := uuid.NewString()
	slog.Info("Generating material", "id", id, "source", source)

	state := UploadState{Status: StatusSuccess}
	m, err := fetch(id)
	if err == nil {
		state.Topic, err = s.db.SaveMaterial(ctx, id, *m)
		if err == nil {
			slog.Info("Stored generated material", "topic", state.Topic.ID, "cards", len(m.Points), "questions", len(m.Questions))
		}
	}
	if s.observer != nil {
		s.observer.ObserveGeneration(source, err)
	}
	if err != nil {
		slog.Error("Generation failed", "id", id, "source", source, "error", err)
		state = UploadState{Status: StatusError, Message: uploadMessage(err)}
	}

	s.mu.Lock()
	s.upload = state
	s.mu.Unlock()
	if errors.Is(err, backend.ErrNotPDF) {
		return state, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return state, nil
}

// uploadMessage renders a generation failure for the user.
func uploadMessage(err error) string {
	var se *backend.StatusError
	if errors.As(err, &se) {
		body := se.Body
		if body == "" {
			body = "Unknown error"
		}
		if se.Code == 400 {
			return "Invalid request: " + body
		}
		return "Error: " + body
	}
	return fmt.Sprintf("Exception: %v", err)
}
