package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"crudeidle/internal/config"
	"crudeidle/internal/game"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxReplayCommands must stay in step with cli.ReplayBatchSize.
const maxReplayCommands = 100

type Server struct {
	cfg  config.APIConfig
	log  *slog.Logger
	game *game.Service
	feed game.Subscriber
	mux  *chi.Mux
}

// New wires the routes. feed may be nil, in which case /ws/game-state
// answers 503.
func New(cfg config.APIConfig, logger *slog.Logger, gameSvc *game.Service, feed game.Subscriber) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:  cfg,
		log:  logger,
		game: gameSvc,
		feed: feed,
		mux:  chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.cors)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Handle("/metrics", promhttp.Handler())

	// The websocket outlives any request timeout.
	r.Get("/ws/game-state", s.handleGameState)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/platforms", s.handlePlatformsList)
		r.Post("/platforms", s.handleCreatePlatform)
		r.Patch("/platforms/{id}", s.handleUpgradePlatform)

		r.Get("/items", s.handleItemsList)
		r.Patch("/items/{id}", s.handlePurchaseItem)

		r.Get("/balance", s.handleBalance)
		r.Get("/ledger", s.handleLedger)
		r.Get("/summary", s.handleSummary)
		r.Get("/catalog", s.handleCatalog)

		r.Post("/sync/replay", s.handleSyncReplay)
	})
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.cfg.AllowedOrigin; origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Idempotency-Key")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handlePlatformsList(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.ListPlatforms(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"platforms": out})
}

func (s *Server) handleCreatePlatform(w http.ResponseWriter, r *http.Request) {
	var in struct {
		PlatformType string `json:"platform_type"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.CreatePlatform(r.Context(), in.PlatformType, idempotencyKey(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleUpgradePlatform(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid platform id")
		return
	}
	out, err := s.game.UpgradePlatform(r.Context(), id, idempotencyKey(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleItemsList(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.ListItems(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (s *Server) handlePurchaseItem(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}
	out, err := s.game.PurchaseItem(r.Context(), id, idempotencyKey(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.Balance(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.Ledger(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.Summary(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	c := s.game.Catalog()
	platforms := make([]map[string]any, 0, len(game.PlatformKinds))
	for _, k := range game.PlatformKinds {
		spec, err := c.Spec(k)
		if err != nil {
			continue
		}
		platforms = append(platforms, map[string]any{
			"platform_type":   k,
			"create_cost":     spec.CreateCost,
			"upgrade_cost":    spec.UpgradeCost,
			"yield_increment": spec.YieldIncrement,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"max_level": c.MaxLevel, "platforms": platforms})
}

// ReplayCommand is one mutation queued by an offline client. QueuedAt is
// only logged.
type ReplayCommand struct {
	Action         game.ActionType `json:"action"`
	ResourceID     string          `json:"resource_id,omitempty"`
	PlatformType   string          `json:"platform_type,omitempty"`
	IdempotencyKey string          `json:"idempotency_key"`
	QueuedAt       time.Time       `json:"queued_at,omitempty"`
}

type ReplayResult struct {
	IdempotencyKey string               `json:"idempotency_key"`
	Status         int                  `json:"status"`
	Error          string               `json:"error,omitempty"`
	Result         *game.MutationResult `json:"result,omitempty"`
}

// handleSyncReplay applies queued commands in order. Each command stands
// alone: a failure is reported in its result and the rest still run.
func (s *Server) handleSyncReplay(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Commands []ReplayCommand `json:"commands"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(in.Commands) > maxReplayCommands {
		writeError(w, http.StatusBadRequest, "too many commands")
		return
	}

	out := make([]ReplayResult, 0, len(in.Commands))
	for _, cmd := range in.Commands {
		res := ReplayResult{IdempotencyKey: cmd.IdempotencyKey}
		action, err := replayAction(cmd)
		if err == nil {
			var mr game.MutationResult
			mr, err = s.game.Execute(r.Context(), action)
			if err == nil {
				res.Status = http.StatusOK
				res.Result = &mr
			}
		}
		if err != nil {
			res.Status = domainStatus(err)
			res.Error = err.Error()
		}
		s.log.Info("replayed command", "action", cmd.Action, "status", res.Status, "queued_at", cmd.QueuedAt)
		out = append(out, res)
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

func replayAction(cmd ReplayCommand) (game.Action, error) {
	a := game.Action{Type: cmd.Action, IdempotencyKey: cmd.IdempotencyKey}
	switch cmd.Action {
	case game.ActionCreatePlatform:
		kind, err := game.ParsePlatformKind(cmd.PlatformType)
		if err != nil {
			return a, err
		}
		a.PlatformKind = kind
	case game.ActionUpgradePlatform, game.ActionPurchaseItem:
		id, err := uuid.Parse(cmd.ResourceID)
		if err != nil {
			return a, errors.Join(game.ErrNotFound, err)
		}
		a.ResourceID = id
	default:
		return a, game.ErrInvalidAction
	}
	return a, nil
}

func domainStatus(err error) int {
	switch {
	case errors.Is(err, game.ErrDuplicateIdempotency), errors.Is(err, game.ErrTxConflict):
		return http.StatusConflict
	case errors.Is(err, game.ErrInsufficientFunds),
		errors.Is(err, game.ErrAlreadyPurchased),
		errors.Is(err, game.ErrMaxLevelReached),
		errors.Is(err, game.ErrInvalidKind),
		errors.Is(err, game.ErrInvalidAmount),
		errors.Is(err, game.ErrInvalidAction):
		return http.StatusBadRequest
	case errors.Is(err, game.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, domainStatus(err), err.Error())
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

// idempotencyKey is optional: without the header the mutation is not
// deduplicated.
func idempotencyKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("Idempotency-Key"))
}
