package http

import (
	"context"
	"encoding/json"
	"net/http"

	"trivia-room-service/internal/domain"
)

// QuestionStore is the question provider surface exposed over HTTP.
type QuestionStore interface {
	Questions(ctx context.Context) ([]domain.Question, error)
	Append(ctx context.Context, q domain.Question) (domain.Question, error)
}

// QuestionsHandler serves the question collection: GET lists, POST appends.
type QuestionsHandler struct {
	store QuestionStore
}

func NewQuestionsHandler(store QuestionStore) *QuestionsHandler {
	return &QuestionsHandler{store: store}
}

func (h *QuestionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		questions, err := h.store.Questions(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, questions)

	case http.MethodPost:
		var q domain.Question
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			http.Error(w, "invalid question payload", http.StatusBadRequest)
			return
		}
		if q.Prompt == "" || q.Answer == "" {
			http.Error(w, "prompt and answer are required", http.StatusBadRequest)
			return
		}
		stored, err := h.store.Append(r.Context(), q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, stored)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
