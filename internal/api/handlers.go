package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/catalog"
	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/common"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListKBs(w http.ResponseWriter, r *http.Request) {
	kbs, err := s.catalog.ListActiveKBs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"knowledge_bases": kbs,
		"indexes":         s.builder.Stats(),
	})
}

func (s *Server) handleLoadAll(w http.ResponseWriter, r *http.Request) {
	ready, err := s.builder.LoadAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"ready": ready})
}

func (s *Server) kbIDFromPath(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid knowledge base id")
		return 0, false
	}
	return id, true
}

func (s *Server) handleLoadKB(w http.ResponseWriter, r *http.Request) {
	id, ok := s.kbIDFromPath(w, r)
	if !ok {
		return
	}
	ix, err := s.builder.BuildOrLoad(r.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, catalog.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"kb_id":    ix.KBID,
		"passages": ix.Len(),
		"built_at": ix.BuiltAt,
	})
}

func (s *Server) handleReloadKB(w http.ResponseWriter, r *http.Request) {
	id, ok := s.kbIDFromPath(w, r)
	if !ok {
		return
	}
	ix, err := s.builder.Reload(r.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, catalog.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"kb_id":    ix.KBID,
		"passages": ix.Len(),
		"built_at": ix.BuiltAt,
	})
}

// handleSearch answers GET /api/search?q=...&kb_ids=1,2&k=5.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}
	kbIDs, err := parseKBIDs(r.URL.Query().Get("kb_ids"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(kbIDs) == 0 {
		kbIDs = s.activeKBIDs(r)
	}
	k := 0
	if raw := r.URL.Query().Get("k"); raw != "" {
		if k, err = strconv.Atoi(raw); err != nil || k < 0 {
			writeError(w, http.StatusBadRequest, "invalid k")
			return
		}
	}

	hits, err := s.engine.Search(r.Context(), query, kbIDs, k)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query": query,
		"hits":  hits,
		"count": len(hits),
	})
}

type answerRequest struct {
	Question     string  `json:"question"`
	KBIDs        []int64 `json:"kb_ids"`
	ContextLimit int     `json:"context_limit"`
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "missing question")
		return
	}
	if len(req.KBIDs) == 0 {
		req.KBIDs = s.activeKBIDs(r)
	}

	result, err := s.assembler.Answer(r.Context(), req.Question, req.KBIDs, req.ContextLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"entries": common.LogEntries()})
}

// activeKBIDs resolves the default knowledge base set when a request names
// none. Failures just mean an empty set; handlers return empty results.
func (s *Server) activeKBIDs(r *http.Request) []int64 {
	kbs, err := s.catalog.ListActiveKBs(r.Context())
	if err != nil {
		common.Logger().Warn("api: active kb lookup failed", "error", err)
		return nil
	}
	ids := make([]int64, 0, len(kbs))
	for _, base := range kbs {
		ids = append(ids, base.ID)
	}
	return ids
}

func parseKBIDs(raw string) ([]int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil || id <= 0 {
			return nil, errors.New("invalid kb_ids parameter")
		}
		ids = append(ids, id)
	}
	return ids, nil
}
