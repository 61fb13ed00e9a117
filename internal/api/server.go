package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-ingest/internal/metrics"
	"github.com/JakeFAU/catalog-ingest/internal/recommend"
)

const (
	msgMissingTitles = "Необходимо передать названия фильмов movie1 и movie2 в JSON запросе."
	msgRecommendFail = "Произошла ошибка при обработке запроса."
	msgEmptyPoll     = "Нет данных об ответах на опрос в JSON запросе."
	msgInvalidPoll   = "Некорректные ответы на опрос."

	maxBodyBytes = 1 << 20
)

// Config controls server behavior.
type Config struct {
	CORSOrigin     string
	RequestTimeout time.Duration
}

// Server wires HTTP handlers to the recommendation generator.
type Server struct {
	router    chi.Router
	generator recommend.Generator
	cfg       Config
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(generator recommend.Generator, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	s := &Server{
		generator: generator,
		cfg:       cfg,
		logger:    logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(corsMiddleware(cfg.CORSOrigin))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(cfg.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Post("/recommend_movie", s.recommendMovie)
	r.Post("/api/submit_poll", s.submitPoll)

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type recommendRequest struct {
	Movie1 string `json:"movie1"`
	Movie2 string `json:"movie2"`
}

type recommendResponse struct {
	Recommendation string `json:"recommendation"`
}

type pollResponse struct {
	Success        bool   `json:"success"`
	Recommendation string `json:"recommendation"`
}

func (s *Server) recommendMovie(w http.ResponseWriter, r *http.Request) {
	var req recommendRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, msgMissingTitles, "")
		return
	}
	movie1 := strings.TrimSpace(req.Movie1)
	movie2 := strings.TrimSpace(req.Movie2)
	if movie1 == "" || movie2 == "" {
		s.writeError(w, http.StatusBadRequest, msgMissingTitles, "")
		return
	}

	text, err := s.generator.Generate(r.Context(), recommend.PairPrompt(movie1, movie2))
	if err != nil {
		s.logger.Error("recommendation failed",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.Error(err),
		)
		s.writeError(w, http.StatusInternalServerError, msgRecommendFail, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, recommendResponse{Recommendation: text})
}

func (s *Server) submitPoll(w http.ResponseWriter, r *http.Request) {
	var answers map[string]any
	if err := decodeBody(w, r, &answers); err != nil || len(answers) == 0 {
		s.writeError(w, http.StatusBadRequest, msgEmptyPoll, "")
		return
	}
	prompt, err := recommend.PollPrompt(answers)
	if err != nil {
		msg := msgInvalidPoll
		if errors.Is(err, recommend.ErrNoAnswers) {
			msg = msgEmptyPoll
		}
		s.writeError(w, http.StatusBadRequest, msg, err.Error())
		return
	}
	s.logger.Info("poll received",
		zap.String("request_id", requestIDFrom(r.Context())),
		zap.Int("answers", len(answers)),
	)

	text, err := s.generator.Generate(r.Context(), prompt)
	if err != nil {
		s.logger.Warn("poll recommendation failed; returning fallback", zap.Error(err))
		text = recommend.FallbackText
	}
	s.writeJSON(w, http.StatusOK, pollResponse{Success: true, Recommendation: text})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return err //nolint:wrapcheck // mapped to a 400 by callers
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg, details string) {
	payload := map[string]string{"error": msg}
	if details != "" {
		payload["details"] = details
	}
	s.writeJSON(w, status, payload)
}
