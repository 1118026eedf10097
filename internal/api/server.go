package api

import (
	"encoding/json"
	"expvar"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/answer"
	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/catalog"
	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/common"
	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/index"
	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/search"
)

// Server exposes the retrieval engine over HTTP.
type Server struct {
	catalog   catalog.Store
	builder   *index.Builder
	engine    *search.Engine
	assembler *answer.Assembler
	router    chi.Router
}

func NewServer(cat catalog.Store, builder *index.Builder, engine *search.Engine, asm *answer.Assembler) *Server {
	s := &Server{
		catalog:   cat,
		builder:   builder,
		engine:    engine,
		assembler: asm,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/kbs", s.handleListKBs)
		r.Post("/kbs/load", s.handleLoadAll)
		r.Post("/kb/{id}/load", s.handleLoadKB)
		r.Post("/kb/{id}/reload", s.handleReloadKB)
		r.Get("/search", s.handleSearch)
		r.Post("/answer", s.handleAnswer)
		r.Get("/logs", s.handleLogs)
	})
	r.Method(http.MethodGet, "/debug/vars", expvar.Handler())
	return r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		common.Logger().Error("api: response encoding failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
