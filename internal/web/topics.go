package web

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/conorfennell/flashstudy/internal/domain"
)

type RenameTopicRequest struct {
	Name string `json:"name" validate:"required"`
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	home, err := s.study.Home(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, home)
}

// handleListTopics lists topics by name, or newest first with ?sort=newest.
// ?view=grid returns subject tiles instead.
func (s *Server) handleListTopics(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("view") == "grid" {
		grid, err := s.study.Grid(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSONResponse(w, http.StatusOK, grid)
		return
	}

	var newest bool
	switch r.URL.Query().Get("sort") {
	case "", "name":
	case "newest":
		newest = true
	default:
		writeErrorResponse(w, http.StatusBadRequest, "sort must be name or newest")
		return
	}
	topics, err := s.study.Topics(r.Context(), newest)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, topics)
}

func (s *Server) handleSearchTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := s.study.SearchTopics(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, topics)
}

func (s *Server) handleGetTopic(w http.ResponseWriter, r *http.Request) {
	topic, err := s.study.Topic(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, topic)
}

func (s *Server) handleRenameTopic(w http.ResponseWriter, r *http.Request) {
	var req RenameTopicRequest
	if err := s.decode(r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	topic, err := s.study.RenameTopic(r.Context(), mux.Vars(r)["id"], req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, topic)
}

func (s *Server) handleDeleteTopic(w http.ResponseWriter, r *http.Request) {
	if err := s.study.DeleteTopic(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetDeck returns a topic's cards, positioned on ?index= when given.
func (s *Server) handleGetDeck(w http.ResponseWriter, r *http.Request) {
	deck := s.study.LoadDeck(r.Context(), mux.Vars(r)["id"])
	if deck.Error != "" {
		writeJSONResponse(w, http.StatusInternalServerError, deck)
		return
	}
	if raw := r.URL.Query().Get("index"); raw != "" {
		i, err := strconv.Atoi(raw)
		if err != nil {
			writeErrorResponse(w, http.StatusBadRequest, "index must be a number")
			return
		}
		deck = deck.At(i)
	}
	writeJSONResponse(w, http.StatusOK, deck)
}

func (s *Server) handleListCards(w http.ResponseWriter, r *http.Request) {
	mode, err := domain.ParseSortMode(r.URL.Query().Get("sort"))
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	cards, err := s.study.AllCards(r.Context(), mode)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cards)
}
