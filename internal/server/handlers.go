// internal/server/handlers.go
package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"nutrimood/internal/apperr"
	"nutrimood/internal/chat"
	"nutrimood/internal/formatter"
	"nutrimood/internal/matching"
	"nutrimood/internal/models"
	"nutrimood/internal/observability"
)

const (
	responseMarker = "__RESPONSE__:"
	errorMarker    = "__ERROR__:"

	defaultFoodsLimit = 50
)

// chatResponse is the JSON trailer closing a streamed chat reply.
type chatResponse struct {
	chat.Result
	FoodRecommendationID string `json:"food_recommendation_id"`
}

// handleChat streams reply fragments as plain text and closes the stream
// with a marker line carrying the final JSON. Failures before the first
// fragment are answered with a regular JSON error.
func (s *NutriMoodServer) handleChat(w http.ResponseWriter, r *http.Request) {
	var in chat.Input
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	flusher, _ := w.(http.Flusher)
	streaming := false
	begin := func() {
		if streaming {
			return
		}
		streaming = true
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.WriteHeader(http.StatusOK)
	}
	sink := func(fragment string) error {
		begin()
		if _, err := io.WriteString(w, fragment); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	res, err := s.deps.Chat.Chat(r.Context(), in, sink)
	if err != nil {
		if !streaming {
			writeError(w, r, err)
			return
		}
		observability.FromContext(r.Context()).Warn("chat stream aborted", zap.Error(err))
		writeMarker(w, errorMarker, newErrorBody(err))
		return
	}

	begin()
	writeMarker(w, responseMarker, chatResponse{
		Result:               *res,
		FoodRecommendationID: strings.Join(res.RecommendedIDs, ","),
	})
	if flusher != nil {
		flusher.Flush()
	}
}

func writeMarker(w io.Writer, marker string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		observability.L().Warn("failed to encode stream trailer", zap.Error(err))
		return
	}
	io.WriteString(w, "\n\n"+marker)
	w.Write(data)
}

type sessionResponse struct {
	*models.Session
	Stats models.SessionStats `json:"stats"`
}

func (s *NutriMoodServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.deps.Sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: sess, Stats: sess.Stats()})
}

func (s *NutriMoodServer) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	deleted, err := s.deps.Sessions.Delete(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !deleted {
		writeError(w, r, apperr.NotFound("session %q", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "session deleted", "session_id": id})
}

type recommendRequest struct {
	Query   string         `json:"query"`
	TopK    int            `json:"top_k"`
	Filters *models.Filter `json:"filters"`
}

type recommendResponse struct {
	Query           string               `json:"query"`
	Count           int                  `json:"count"`
	Recommendations []models.ItemSummary `json:"recommendations"`
}

func (s *NutriMoodServer) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var req recommendRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.TopK == 0 {
		req.TopK = s.config.DefaultTopK
	}
	q := matching.Query{Text: req.Query, TopK: req.TopK}
	if req.Filters != nil {
		q.Filter = *req.Filters
	}

	cat, err := s.deps.Catalogs.Current()
	if err != nil {
		writeError(w, r, err)
		return
	}
	cands, err := s.deps.Engine.Match(cat, q)
	if err != nil {
		writeError(w, r, err)
		return
	}

	recs := make([]models.ItemSummary, 0, len(cands))
	for _, c := range cands {
		recs = append(recs, formatter.Summary(c))
	}
	writeJSON(w, http.StatusOK, recommendResponse{Query: req.Query, Count: len(recs), Recommendations: recs})
}

func (s *NutriMoodServer) handleListFoods(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultFoodsLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}

	cat, err := s.deps.Catalogs.Current()
	if err != nil {
		writeError(w, r, err)
		return
	}
	foods, total, err := cat.List(models.Filter{Category: r.URL.Query().Get("category")}, limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(foods),
		"total":  total,
		"limit":  limit,
		"offset": offset,
		"foods":  foods,
	})
}

func (s *NutriMoodServer) handleGetFood(w http.ResponseWriter, r *http.Request) {
	cat, err := s.deps.Catalogs.Current()
	if err != nil {
		writeError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	item, ok := cat.GetByID(id)
	if !ok {
		writeError(w, r, apperr.NotFound("food %q", id))
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *NutriMoodServer) handleCategories(w http.ResponseWriter, r *http.Request) {
	cat, err := s.deps.Catalogs.Current()
	if err != nil {
		writeError(w, r, err)
		return
	}
	categories := cat.Categories()
	writeJSON(w, http.StatusOK, map[string]any{"categories": categories, "count": len(categories)})
}

func (s *NutriMoodServer) handleStatistics(w http.ResponseWriter, r *http.Request) {
	cat, err := s.deps.Catalogs.Current()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cat.Statistics())
}

func (s *NutriMoodServer) handleReload(w http.ResponseWriter, r *http.Request) {
	cat, err := s.deps.Catalogs.Reload(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "reloaded",
		"items":      cat.Len(),
		"categories": len(cat.Categories()),
		"loaded_at":  cat.LoadedAt(),
	})
}
