package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Dosada05/rps-tournament-bot/handlers"
	"github.com/Dosada05/rps-tournament-bot/middleware"
)

type Deps struct {
	JWTSecret      string
	AllowedOrigins []string
	Gatherer       prometheus.Gatherer

	Auth       *handlers.AuthHandler
	Tournament *handlers.TournamentHandler
	WebSocket  *handlers.WebSocketHandler
}

func SetupRoutes(router chi.Router, deps Deps) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Recoverer)

	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if deps.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	router.Post("/auth/token", deps.Auth.IssueToken)

	// The websocket route is outside the timeout middleware.
	router.With(middleware.Authenticate(deps.JWTSecret)).
		Get("/ws/tournaments/{tournamentID}", deps.WebSocket.ServeWs)

	router.Group(func(r chi.Router) {
		r.Use(chiMiddleware.Timeout(10 * time.Second))
		r.Use(middleware.Authenticate(deps.JWTSecret))

		th := deps.Tournament
		r.Route("/tournaments", func(r chi.Router) {
			r.Post("/", th.CreateHandler)
			r.Route("/{tournamentID}", func(r chi.Router) {
				r.Get("/", th.GetByIDHandler)
				r.Post("/players", th.JoinHandler)
				r.Delete("/players/{playerID}", th.RemovePlayerHandler)
				r.Post("/leave", th.LeaveHandler)
				r.Post("/activate", th.LifecycleHandler("activate"))
				r.Post("/pause", th.LifecycleHandler("pause"))
				r.Post("/resume", th.LifecycleHandler("resume"))
				r.Post("/cancel", th.CancelHandler)
				r.Put("/seeds", th.ReorderSeedsHandler)
			})
		})

		r.Get("/groups/{groupID}/tournament", th.ActiveForGroupHandler)

		r.Route("/matches/{matchID}", func(r chi.Router) {
			r.Get("/", th.GetMatchHandler)
			r.Post("/choices", th.SubmitChoiceHandler)
			r.Post("/forfeit", th.ForfeitHandler)
			r.Post("/result", th.ForceResultHandler)
		})
	})
}
