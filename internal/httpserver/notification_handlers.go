package httpserver

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"huddle/internal/domain"
)

const defaultNotificationLimit = 50

type notificationListResponse struct {
	Notifications []*domain.Notification `json:"notifications"`
	Total         int                    `json:"total"`
}

func handleListNotifications(notifications domain.NotificationRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeError(w, r, domain.Unauthenticated("unauthorized"))
			return
		}

		limit := defaultNotificationLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
				limit = n
			}
		}

		list, err := notifications.ListForRecipient(r.Context(), currentUser.ID, limit)
		if err != nil {
			writeError(w, r, domain.StoreUnavailable(err))
			return
		}
		writeJSON(w, http.StatusOK, notificationListResponse{Notifications: list, Total: len(list)})
	}
}

func handleMarkNotificationRead(notifications domain.NotificationRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeError(w, r, domain.Unauthenticated("unauthorized"))
			return
		}
		id := chi.URLParam(r, "notificationID")
		if err := notifications.MarkRead(r.Context(), id, currentUser.ID); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
	}
}
