package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"huddle/internal/config"
	"huddle/internal/directory"
	"huddle/internal/domain"
	"huddle/internal/logger"
	"huddle/internal/notify"
	"huddle/internal/security"
	"huddle/internal/service"
	"huddle/internal/ws"
)

// Stores bundles the repositories for one persistence backend.
type Stores struct {
	Users         domain.UserRepository
	Conversations domain.ConversationRepository
	Participants  domain.ParticipantRepository
	Messages      domain.MessageRepository
	Notifications domain.NotificationRepository
}

// NewRouter wires the services and mounts the HTTP surface.
func NewRouter(
	cfg *config.Config,
	stores Stores,
	dir *directory.Cache,
	fanout *notify.Fanout,
	hub *ws.Hub,
	tokens *security.TokenService,
	hasher *security.PasswordHasher,
	encryptor *security.Encryptor,
) http.Handler {
	authSvc := service.NewAuthService(stores.Users, tokens, hasher, dir)
	userSvc := service.NewUserService(stores.Users, dir)
	convSvc := service.NewConversationService(stores.Conversations, stores.Participants, stores.Messages, dir, encryptor)
	msgSvc := service.NewMessageService(stores.Conversations, stores.Participants, stores.Messages, dir, encryptor, fanout)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	requireAuth := AuthMiddleware(tokens, stores.Users)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", handleRegister(authSvc))
		r.Post("/auth/login", handleLogin(authSvc))

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Post("/auth/logout", handleLogout(authSvc))
			r.Get("/auth/me", handleMe())

			r.Get("/users", handleListUsers(userSvc))
			r.Get("/users/{userID}", handleGetUser(dir))
			r.Post("/users/heartbeat", handleHeartbeat(userSvc))

			r.Get("/conversations", handleListConversations(convSvc))
			r.Post("/conversations/{conversationID}/read", handleMarkConversationRead(convSvc))

			r.Get("/messages", handleGetMessages(msgSvc, convSvc))
			r.Post("/messages", handleCreateMessage(msgSvc, convSvc))

			r.Get("/notifications", handleListNotifications(stores.Notifications))
			r.Post("/notifications/{notificationID}/read", handleMarkNotificationRead(stores.Notifications))
		})
	})

	r.Get("/ws", ws.MakeHandler(hub, tokens, stores.Users, cfg.CORSOrigins))

	return r
}
