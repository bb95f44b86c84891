package web

import (
	"net/http"

	"github.com/conorfennell/flashstudy/internal/storage"
	"github.com/conorfennell/flashstudy/internal/study"
	"github.com/conorfennell/flashstudy/internal/sync"
)

type GenerateTopicRequest struct {
	Topic string `json:"topic" validate:"required"`
}

// ImportRequest optionally registers a new deck source before syncing.
type ImportRequest struct {
	Path string `json:"path"`
}

type ImportResponse struct {
	Report  sync.Report      `json:"report"`
	Errors  []string         `json:"errors"`
	Sources []storage.Source `json:"sources"`
}

func (s *Server) handleGenerateTopic(w http.ResponseWriter, r *http.Request) {
	var req GenerateTopicRequest
	if err := s.decode(r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	state, err := s.study.GenerateFromTopic(r.Context(), req.Topic)
	writeUploadState(w, r, state, err)
}

func (s *Server) handleGeneratePDF(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "a PDF must be uploaded in the file field")
		return
	}
	defer file.Close()

	state, err := s.study.GenerateFromPDF(r.Context(), header.Filename, file)
	writeUploadState(w, r, state, err)
}

func writeUploadState(w http.ResponseWriter, r *http.Request, state study.UploadState, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	if state.Status == study.StatusError {
		writeJSONResponse(w, http.StatusBadGateway, state)
		return
	}
	writeJSONResponse(w, http.StatusCreated, state)
}

func (s *Server) handleUploadState(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, s.study.UploadState())
}

func (s *Server) handleResetUpload(w http.ResponseWriter, r *http.Request) {
	s.study.ResetUpload()
	writeJSONResponse(w, http.StatusOK, s.study.UploadState())
}

// handleImport runs a deck sync in the foreground so the caller sees the result.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if r.ContentLength != 0 {
		if err := s.decode(r, &req); err != nil {
			writeErrorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.Path != "" {
		if _, err := s.syncer.AddSource(r.Context(), req.Path); err != nil {
			writeErrorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	report, err := s.syncer.RunSync(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.metrics.SyncedCards.Add(float64(report.Cards))

	sources, err := s.db.GetAllSources(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := ImportResponse{Report: report, Errors: []string{}, Sources: sources}
	for _, e := range report.Errors {
		resp.Errors = append(resp.Errors, e.Error())
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.db.GetAllSources(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, sources)
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.db.DeleteSource(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
