// Package handlers exposes the REST API and the websocket endpoint.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"chathub-backend/internal/config"
	"chathub-backend/internal/fileHandlers"
	"chathub-backend/internal/jwt"
	"chathub-backend/internal/keyValue"
	"chathub-backend/internal/ratelimit"
	"chathub-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

type UserChecker interface {
	UserExists(ctx context.Context, id int64) (bool, error)
}

type Deps struct {
	Config    *config.Config
	Sugar     *zap.SugaredLogger
	Issuer    *jwt.Issuer
	Users     UserChecker
	Cache     keyValue.Store
	Limiter   *ratelimit.FixedWindowLimiter
	Auth      *services.AuthService
	Servers   *services.ServerService
	Channels  *services.ChannelService
	Messages  *services.MessageService
	WebSocket http.HandlerFunc
	// UploadDir is served under /uploads when attachments are kept on disk.
	UploadDir string
}

type Handlers struct {
	cfg      *config.Config
	sugar    *zap.SugaredLogger
	issuer   *jwt.Issuer
	users    UserChecker
	cache    keyValue.Store
	auth     *services.AuthService
	servers  *services.ServerService
	channels *services.ChannelService
	messages *services.MessageService
	limits   fileHandlers.Limits
	now      func() time.Time
}

func NewRouter(d Deps) http.Handler {
	h := &Handlers{
		cfg:      d.Config,
		sugar:    d.Sugar,
		issuer:   d.Issuer,
		users:    d.Users,
		cache:    d.Cache,
		auth:     d.Auth,
		servers:  d.Servers,
		channels: d.Channels,
		messages: d.Messages,
		limits:   fileHandlers.Limits{MaxFileSize: d.Config.MaxUploadSize, MaxFiles: d.Config.MaxUploadFiles},
		now:      time.Now,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if d.Config.PrintHttpRequests {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.Config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"RateLimit-Limit", "RateLimit-Remaining", "RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(h.notFound)
	r.MethodNotAllowed(h.methodNotAllowed)

	r.Get("/health", h.Health)

	r.Route("/api", func(api chi.Router) {
		if d.Limiter != nil {
			api.Use(d.Limiter.Middleware)
		}
		api.Use(middleware.Timeout(60 * time.Second))

		api.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/refresh", h.Refresh)
			r.With(h.UserVerifier).Post("/logout", h.Logout)
			r.With(h.UserVerifier).Get("/me", h.Me)
		})

		api.Route("/servers", func(r chi.Router) {
			r.Use(h.UserVerifier)
			r.Get("/", h.GetServerList)
			r.Post("/", h.CreateServer)
			r.Get("/{id}", h.GetServer)
			r.Patch("/{id}", h.UpdateServer)
			r.Delete("/{id}", h.DeleteServer)
			r.Post("/{id}/join", h.JoinServer)
		})

		api.Route("/channels", func(r chi.Router) {
			r.Use(h.UserVerifier)
			r.Get("/server/{serverId}", h.GetChannelList)
			r.Post("/server/{serverId}", h.CreateChannel)
			r.Patch("/{id}", h.UpdateChannel)
			r.Delete("/{id}", h.DeleteChannel)
		})

		api.Route("/messages", func(r chi.Router) {
			r.Use(h.UserVerifier)
			r.Get("/channel/{channelId}", h.GetMessageList)
			r.Post("/channel/{channelId}", h.CreateMessage)
			r.Patch("/{id}", h.UpdateMessage)
			r.Delete("/{id}", h.DeleteMessage)
		})
	})

	if d.UploadDir != "" {
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(d.UploadDir))))
	}

	// the socket authenticates itself with its first event
	if d.WebSocket != nil {
		r.Get("/ws", d.WebSocket)
	}

	return r
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(map[string]string{
		"status":    "ok",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		h.sugar.Debugf("Couldn't write health response: %v", err)
	}
}
