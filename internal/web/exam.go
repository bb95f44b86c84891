package web

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/conorfennell/flashstudy/internal/domain"
)

// SubmitExamRequest maps question ids to the selected option.
type SubmitExamRequest struct {
	Answers map[int64]string `json:"answers"`
}

type UpdateQuestionRequest struct {
	Question string   `json:"question" validate:"required"`
	Options  []string `json:"options" validate:"min=1,dive,required"`
	Answer   string   `json:"answer" validate:"required"`
}

type ScoreResponse struct {
	TopicID string `json:"topicId"`
	Score   int    `json:"score"`
}

func (s *Server) handleGetExam(w http.ResponseWriter, r *http.Request) {
	questions, err := s.study.LoadExam(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, questions)
}

func (s *Server) handleDeleteExam(w http.ResponseWriter, r *http.Request) {
	if err := s.study.DeleteQuestions(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSubmitExam(w http.ResponseWriter, r *http.Request) {
	var req SubmitExamRequest
	if err := s.decode(r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := s.study.SubmitExam(r.Context(), mux.Vars(r)["id"], req.Answers)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, result)
}

func (s *Server) handleGetScore(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	score, ok := s.study.LastScore(id)
	if !ok {
		writeErrorResponse(w, http.StatusNotFound, "no exam submitted for this topic")
		return
	}
	writeJSONResponse(w, http.StatusOK, ScoreResponse{TopicID: id, Score: score})
}

func (s *Server) handleGetQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	q, err := s.study.Question(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, q)
}

func (s *Server) handleUpdateQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req UpdateQuestionRequest
	if err := s.decode(r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	q, err := s.study.UpdateQuestion(r.Context(), domain.ExamQuestion{
		ID:       id,
		Question: req.Question,
		Options:  req.Options,
		Answer:   req.Answer,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, q)
}

func (s *Server) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.study.DeleteQuestion(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
