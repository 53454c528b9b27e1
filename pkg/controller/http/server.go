package http

import (
	"net/http"
	"time"

	"github.com/LalaIAm/case-agent/pkg/service/broadcast"
	"github.com/LalaIAm/case-agent/pkg/usecase"
	"github.com/LalaIAm/case-agent/pkg/utils/logging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// DefaultHeartbeat is the interval between websocket pings
const DefaultHeartbeat = 30 * time.Second

type Server struct {
	router      *chi.Mux
	uc          *usecase.UseCases
	broadcaster *broadcast.Broadcaster
	heartbeat   time.Duration
}

type Options func(*Server)

// WithBroadcaster enables the websocket event stream
func WithBroadcaster(b *broadcast.Broadcaster) Options {
	return func(s *Server) {
		s.broadcaster = b
	}
}

// WithHeartbeat sets the websocket ping interval
func WithHeartbeat(d time.Duration) Options {
	return func(s *Server) {
		if d > 0 {
			s.heartbeat = d
		}
	}
}

func New(uc *usecase.UseCases, opts ...Options) *Server {
	r := chi.NewRouter()

	s := &Server{
		router:    r,
		uc:        uc,
		heartbeat: DefaultHeartbeat,
	}
	for _, opt := range opts {
		opt(s)
	}

	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", healthHandler)

	r.Route("/api", func(r chi.Router) {
		r.Route("/cases", func(r chi.Router) {
			r.Get("/", s.listCases)
			r.Post("/", s.createCase)
			r.Route("/{caseID}", func(r chi.Router) {
				r.Get("/", s.getCase)
				r.Get("/documents", s.listDocuments)
				r.Post("/documents", s.addDocument)
				r.Get("/workflow", s.getWorkflow)
				r.Post("/workflow", s.runWorkflow)
				r.Get("/runs", s.listRuns)
				r.Get("/sessions", s.listSessions)
				r.Post("/sessions", s.getOrCreateSession)
				r.Post("/search", s.searchMemory)
				r.Route("/advisor", func(r chi.Router) {
					r.Post("/message", s.sendAdvisorMessage)
					r.Get("/history", s.advisorHistory)
					r.Delete("/history", s.clearAdvisorHistory)
					r.Get("/suggestions", s.advisorSuggestions)
					r.Post("/reanalyze", s.reanalyze)
				})
			})
		})

		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/summary", s.sessionSummary)
			r.Post("/complete", s.completeSession)
			r.Get("/blocks", s.listBlocks)
			r.Post("/blocks", s.createBlock)
		})

		r.Route("/blocks/{blockID}", func(r chi.Router) {
			r.Get("/", s.getBlock)
			r.Patch("/", s.updateBlock)
			r.Delete("/", s.deleteBlock)
			r.Post("/links", s.linkBlock)
			r.Get("/related", s.relatedBlocks)
		})

		r.Route("/rules", func(r chi.Router) {
			r.Get("/search", s.searchRules)
			r.Get("/static/{ruleID}", s.getStaticRule)
			r.Post("/", s.addRule)
		})
	})

	if s.broadcaster != nil {
		r.Get("/ws/cases/{caseID}", s.streamEvents)
	}

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// accessLogger is a middleware that logs HTTP requests
func accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			logging.From(r.Context()).Info("access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
				"user_agent", r.UserAgent(),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
