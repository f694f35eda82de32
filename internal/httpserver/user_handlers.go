package httpserver

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"huddle/internal/domain"
	"huddle/internal/service"
)

func handleListUsers(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := userSvc.ListActive(r.Context(), 0, 100)
		if err != nil {
			writeError(w, r, domain.StoreUnavailable(err))
			return
		}
		writeJSON(w, http.StatusOK, users)
	}
}

// handleGetUser serves profile lookups through the directory cache, so
// repeated reads do not hit the backing store.
func handleGetUser(dir service.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idStr := chi.URLParam(r, "userID")
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			writeError(w, r, domain.Validation("invalid user id"))
			return
		}
		entry, err := dir.Resolve(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, entry)
	}
}

// handleHeartbeat records "last seen now" for the caller. Clients send this
// fire-and-forget every 30 seconds while a session is active.
func handleHeartbeat(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeError(w, r, domain.Unauthenticated("unauthorized"))
			return
		}
		if err := userSvc.Heartbeat(r.Context(), currentUser.ID); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
