package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"huddle/internal/domain"
	"huddle/internal/service"
)

type conversationListResponse struct {
	Conversations []*service.ConversationView `json:"conversations"`
	Total         int                         `json:"total"`
}

func handleListConversations(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeError(w, r, domain.Unauthenticated("unauthorized"))
			return
		}
		convs, err := convSvc.ListForUser(r.Context(), currentUser.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, conversationListResponse{Conversations: convs, Total: len(convs)})
	}
}

func handleMarkConversationRead(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeError(w, r, domain.Unauthenticated("unauthorized"))
			return
		}
		id := chi.URLParam(r, "conversationID")
		if id == "" {
			writeError(w, r, domain.Validation("invalid conversation id"))
			return
		}
		if err := convSvc.MarkRead(r.Context(), id, currentUser.ID); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
	}
}
