// Package httpapi exposes the game over REST plus an SSE event stream.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/mmerah/ai-gamemaster/internal/game/event"
	"github.com/mmerah/ai-gamemaster/internal/game/orchestrator"
	"github.com/mmerah/ai-gamemaster/internal/game/state"
	"github.com/mmerah/ai-gamemaster/internal/storage"
)

// Server wires the orchestrator, event stream, and save store into HTTP
// handlers.
type Server struct {
	orch    *orchestrator.Orchestrator
	queue   *event.Queue
	emitter *event.Emitter
	saves   storage.CampaignStore
	rl      *rateLimiter
}

// Config tunes the HTTP layer.
type Config struct {
	// RatePerSecond and RateBurst bound per-client request rates.
	// Zero values disable rate limiting (tests).
	RatePerSecond int
	RateBurst     int
}

// NewServer creates the HTTP API. saves may be nil to disable save_game.
func NewServer(orch *orchestrator.Orchestrator, queue *event.Queue, emitter *event.Emitter, saves storage.CampaignStore, cfg Config) *Server {
	s := &Server{orch: orch, queue: queue, emitter: emitter, saves: saves}
	if cfg.RatePerSecond > 0 {
		s.rl = newRateLimiter(cfg.RatePerSecond, cfg.RateBurst)
	}
	return s
}

// Routes returns the full handler with middleware applied.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/game_state", s.handleGameState)
	mux.HandleFunc("/api/player_action", s.handlePlayerAction)
	mux.HandleFunc("/api/submit_rolls", s.handleSubmitRolls)
	mux.HandleFunc("/api/trigger_next_step", s.handleTriggerNextStep)
	mux.HandleFunc("/api/retry_last_ai_request", s.handleRetry)
	mux.HandleFunc("/api/perform_roll", s.handlePerformRoll)
	mux.HandleFunc("/api/save_game", s.handleSaveGame)
	mux.HandleFunc("/api/game_event_stream", s.handleEventStream)

	var handler http.Handler = mux
	if s.rl != nil {
		handler = s.rl.middleware(handler)
	}
	return handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"queue_depth": s.queue.Len(),
		"busy":        s.orch.Busy(),
	})
}

func (s *Server) handleGameState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.orch.Snapshot())
}

func (s *Server) handlePlayerAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var action orchestrator.PlayerAction
	if err := decodeJSON(r, &action); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := s.orch.HandlePlayerAction(r.Context(), action)
	if err != nil {
		writeHandlerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleSubmitRolls accepts both payload shapes: completed roll results
// ("roll_results") and roll specs the server resolves itself ("rolls").
func (s *Server) handleSubmitRolls(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		Rolls       []orchestrator.RollSpec `json:"rolls"`
		RollResults []state.RollResult      `json:"roll_results"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var (
		snap orchestrator.Snapshot
		err  error
	)
	switch {
	case len(body.RollResults) > 0:
		snap, err = s.orch.HandleCompletedRolls(r.Context(), body.RollResults)
	case len(body.Rolls) > 0:
		snap, err = s.orch.HandleSubmitRolls(r.Context(), body.Rolls)
	default:
		writeError(w, http.StatusBadRequest, "rolls or roll_results is required")
		return
	}
	if err != nil {
		writeHandlerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleTriggerNextStep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap, err := s.orch.HandleNextStep(r.Context())
	if err != nil {
		writeHandlerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap, err := s.orch.HandleRetry(r.Context())
	if err != nil {
		writeHandlerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handlePerformRoll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var spec orchestrator.RollSpec
	if err := decodeJSON(r, &spec); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.orch.PerformRoll(spec)
	if err != nil {
		writeHandlerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSaveGame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.saves == nil {
		writeError(w, http.StatusServiceUnavailable, "save storage is not configured")
		return
	}
	if s.orch.Busy() {
		writeError(w, http.StatusTooManyRequests, "cannot save while an AI request is processing")
		return
	}

	if err := s.saves.Save(r.Context(), s.orch.State()); err != nil {
		log.Printf("save game failed error=%v", err)
		writeError(w, http.StatusInternalServerError, "failed to save game")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

// writeHandlerError maps orchestrator errors onto the API status codes:
// busy gate to 429, bad input and stale retries to 400, everything else
// (AI failures included) to 500.
func writeHandlerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrBusy):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, orchestrator.ErrInvalidInput), errors.Is(err, orchestrator.ErrNothingToRetry):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to write.
	default:
		log.Printf("request failed error=%v", err)
		writeError(w, http.StatusInternalServerError, "AI request failed")
	}
}

func decodeJSON(r *http.Request, target any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	return decoder.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response failed error=%v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
