// internal/chat/service.go
package chat

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nutrimood/internal/apperr"
	"nutrimood/internal/catalog"
	"nutrimood/internal/extractor"
	"nutrimood/internal/formatter"
	"nutrimood/internal/llm"
	"nutrimood/internal/matching"
	"nutrimood/internal/models"
	"nutrimood/internal/observability"
	"nutrimood/internal/session"
)

// Recorder stores completed exchanges for analytics.
type Recorder interface {
	RecordConversation(ctx context.Context, rec models.ConversationRecord) error
	UpdateSessionAnalytics(ctx context.Context, a models.SessionAnalytics) error
}

type Options struct {
	TopK         int
	HistoryLimit int
}

// Service runs one chat exchange: retrieve, format, generate, extract, record.
type Service struct {
	catalogs  *catalog.Store
	engine    *matching.Engine
	formatter *formatter.Formatter
	sessions  session.Store
	generator llm.Generator
	recorder  Recorder
	opts      Options
}

func NewService(catalogs *catalog.Store, engine *matching.Engine, f *formatter.Formatter,
	sessions session.Store, generator llm.Generator, recorder Recorder, opts Options) *Service {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 10
	}
	return &Service{
		catalogs:  catalogs,
		engine:    engine,
		formatter: f,
		sessions:  sessions,
		generator: generator,
		recorder:  recorder,
		opts:      opts,
	}
}

type Input struct {
	SessionID   string         `json:"session_id"`
	Message     string         `json:"message"`
	UserName    string         `json:"user_name"`
	UserID      string         `json:"user_id"`
	Preferences map[string]any `json:"user_preferences"`
}

type Result struct {
	SessionID      string               `json:"session_id"`
	Message        string               `json:"message"`
	RecommendedIDs []string             `json:"recommended_ids"`
	Candidates     []models.ItemSummary `json:"candidates"`
	Intent         llm.Intent           `json:"intent"`
	Backend        string               `json:"backend"`
}

// Chat answers one user message. Fragments are passed to sink as they
// arrive; the result, including extracted recommendations, is only produced
// once the reply is complete. If the backend fails the exchange is aborted
// and no assistant turn is stored.
func (s *Service) Chat(ctx context.Context, in Input, sink func(string) error) (*Result, error) {
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return nil, apperr.Invalid("message is required")
	}
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	log := observability.FromContext(ctx).With(zap.String("session_id", sessionID))

	cat, err := s.catalogs.Current()
	if err != nil {
		return nil, err
	}

	sess, err := s.sessions.GetOrCreate(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	prefs, err := s.mergePreferences(ctx, sess, in)
	if err != nil {
		return nil, err
	}

	history, err := s.sessions.History(ctx, sessionID, s.opts.HistoryLimit)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Append(ctx, sessionID, models.Turn{Role: models.RoleUser, Content: message}); err != nil {
		return nil, err
	}

	previous := sess.LastRecommendation()
	intent := classify(message, len(previous) > 0)

	cands, err := s.candidates(cat, message, history, previous, intent)
	if err != nil {
		return nil, err
	}
	contextBlock, summaries := s.formatter.Format(cands)

	req := llm.Request{
		UserMessage:  message,
		ContextBlock: contextBlock,
		History:      history,
		CustomerName: stringPref(prefs, "name"),
		Preferences:  prefs,
		Intent:       intent,
	}

	started := time.Now()
	reply, err := llm.Collect(ctx, s.generator, req, sink)
	if err != nil {
		log.Error("generation failed", zap.String("backend", s.generator.Name()), zap.Error(err))
		return nil, err
	}
	elapsed := time.Since(started)

	ids := extractor.Extract(reply, cands)

	if err := s.sessions.Append(ctx, sessionID, models.Turn{Role: models.RoleAssistant, Content: reply}); err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		if err := s.sessions.AddRecommendations(ctx, sessionID, ids); err != nil {
			return nil, err
		}
	}

	if s.recorder != nil {
		rec := models.ConversationRecord{
			SessionID:       sessionID,
			UserID:          in.UserID,
			UserMessage:     message,
			BotResponse:     reply,
			Recommendations: ids,
			ResponseTimeMS:  elapsed.Milliseconds(),
			Backend:         s.generator.Name(),
		}
		// Analytics must not fail the exchange.
		if err := s.recorder.RecordConversation(ctx, rec); err != nil {
			log.Warn("failed to record conversation", zap.Error(err))
		}
		if sess, err := s.sessions.Get(ctx, sessionID); err != nil {
			log.Warn("failed to read session for analytics", zap.Error(err))
		} else if err := s.recorder.UpdateSessionAnalytics(ctx, sess.Analytics(in.UserID)); err != nil {
			log.Warn("failed to update session analytics", zap.Error(err))
		}
	}

	log.Info("chat completed",
		zap.String("intent", string(intent)),
		zap.Int("candidates", len(cands)),
		zap.Strings("recommended", ids),
		zap.Duration("generation", elapsed))

	return &Result{
		SessionID:      sessionID,
		Message:        reply,
		RecommendedIDs: ids,
		Candidates:     summaries,
		Intent:         intent,
		Backend:        s.generator.Name(),
	}, nil
}

// candidates reuses the previous recommendation for follow-ups and falls
// back to matching when none of those items exist any more.
func (s *Service) candidates(cat *catalog.Catalog, message string, history []models.Turn, previous []string, intent llm.Intent) ([]models.MatchCandidate, error) {
	if intent == llm.IntentFollowUp {
		var out []models.MatchCandidate
		for _, id := range previous {
			if item, ok := cat.GetByID(id); ok {
				out = append(out, models.MatchCandidate{Item: item, Rank: len(out) + 1})
			}
		}
		if len(out) > 0 {
			return out, nil
		}
	}
	if intent == llm.IntentGreeting {
		return nil, nil
	}
	return s.engine.Match(cat, matching.Query{Text: message, History: history, TopK: s.opts.TopK})
}

func (s *Service) mergePreferences(ctx context.Context, sess *models.Session, in Input) (map[string]any, error) {
	update := make(map[string]any)
	for k, v := range in.Preferences {
		update[k] = v
	}
	if in.UserName != "" {
		update["name"] = in.UserName
	}
	if in.UserID != "" {
		update["user_id"] = in.UserID
	}

	merged := make(map[string]any, len(sess.Preferences)+len(update))
	for k, v := range sess.Preferences {
		merged[k] = v
	}
	if len(update) == 0 {
		return merged, nil
	}
	if err := s.sessions.UpdatePreferences(ctx, sess.ID, update); err != nil {
		return nil, err
	}
	for k, v := range update {
		merged[k] = v
	}
	return merged, nil
}

func stringPref(prefs map[string]any, key string) string {
	v, _ := prefs[key].(string)
	return v
}
