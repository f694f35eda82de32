package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"huddle/internal/domain"
	"huddle/internal/service"
)

type messageCreateRequest struct {
	Content        string `json:"content"`
	ConversationID string `json:"conversation_id,omitempty"`
	RecipientID    int64  `json:"recipient_id,omitempty"`
	Type           string `json:"type,omitempty"`
	// ClientRef is a client-generated correlation id echoed back verbatim,
	// so optimistic entries reconcile by id instead of content matching.
	ClientRef string `json:"client_ref,omitempty"`
}

type messageCreateResponse struct {
	Success        bool                 `json:"success"`
	Message        *service.MessageView `json:"message"`
	ConversationID string               `json:"conversation_id"`
	ClientRef      string               `json:"client_ref,omitempty"`
}

type messageListResponse struct {
	Messages []*service.MessageView `json:"messages"`
	Total    int                    `json:"total"`
}

// handleCreateMessage accepts either an explicit conversation id or a
// recipient id; the latter resolves (or idempotently creates) the pair
// conversation first.
func handleCreateMessage(msgSvc *service.MessageService, convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeError(w, r, domain.Unauthenticated("unauthorized"))
			return
		}

		var req messageCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, domain.Validation("invalid JSON body"))
			return
		}

		conversationID := req.ConversationID
		if conversationID == "" {
			if req.RecipientID == 0 {
				writeError(w, r, domain.Validation("either conversation_id or recipient_id is required"))
				return
			}
			conv, err := convSvc.ResolveOrCreate(r.Context(), currentUser.ID, req.RecipientID)
			if err != nil {
				writeError(w, r, err)
				return
			}
			conversationID = conv.ID
		}

		msg, err := msgSvc.Append(r.Context(), conversationID, currentUser.ID, req.Content, req.Type)
		if err != nil {
			writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, messageCreateResponse{
			Success:        true,
			Message:        msg,
			ConversationID: conversationID,
			ClientRef:      req.ClientRef,
		})
	}
}

// handleGetMessages serves two query modes: ?conversationId=ID lists the
// conversation's messages; ?userId=ID resolves or creates the pair
// conversation with that user and returns its id.
func handleGetMessages(msgSvc *service.MessageService, convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeError(w, r, domain.Unauthenticated("unauthorized"))
			return
		}

		if convID := r.URL.Query().Get("conversationId"); convID != "" {
			msgs, err := msgSvc.List(r.Context(), convID, currentUser.ID)
			if err != nil {
				writeError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, messageListResponse{Messages: msgs, Total: len(msgs)})
			return
		}

		if userIDStr := r.URL.Query().Get("userId"); userIDStr != "" {
			userID, err := strconv.ParseInt(userIDStr, 10, 64)
			if err != nil {
				writeError(w, r, domain.Validation("invalid user id"))
				return
			}
			conv, err := convSvc.ResolveOrCreate(r.Context(), currentUser.ID, userID)
			if err != nil {
				writeError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"conversation_id": conv.ID})
			return
		}

		writeError(w, r, domain.Validation("conversationId or userId query parameter is required"))
	}
}
