// Package api provides the HTTP handlers through which an observer (or an
// external decision layer) reads ledger state, proposes orders and quotes,
// and advances the simulation.
//
// All monetary values use shopspring/decimal; money is never a float64.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/atmx/clearing-engine/internal/agent"
	"github.com/atmx/clearing-engine/internal/ident"
	"github.com/atmx/clearing-engine/internal/market"
	"github.com/atmx/clearing-engine/internal/model"
	"github.com/atmx/clearing-engine/internal/sim"
	"github.com/atmx/clearing-engine/internal/store"
)

// Service serves the clearing API. Every write goes through the driver, and
// therefore through the coordinator's single writer.
type Service struct {
	driver *sim.Driver
	coord  *sim.Coordinator
	store  store.Store
	wsHub  *WSHub // optional WebSocket hub
}

// NewService creates a new API service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(drv *sim.Driver, coord *sim.Coordinator, st store.Store, hub *WSHub) *Service {
	return &Service{
		driver: drv,
		coord:  coord,
		store:  st,
		wsHub:  hub,
	}
}

// Routes mounts the API under r.
func (s *Service) Routes(r chi.Router) {
	if s.wsHub != nil {
		r.Get("/ws", s.wsHub.HandleWS)
	}

	r.Get("/agents", s.ListAgents)
	r.Get("/agents/{agentID}", s.GetAgent)
	r.Get("/agents/{agentID}/fills", s.GetAgentFills)

	r.Get("/quotes", s.ListQuotes)
	r.Get("/quotes/{key}", s.GetQuote)
	r.Post("/quotes", s.PostQuote)

	r.Post("/orders", s.SubmitOrder)

	r.Get("/ticks", s.ListTicks)
	r.Post("/ticks", s.AdvanceTick)
	r.Get("/ticks/{tick}", s.GetTick)
	r.Get("/ticks/{tick}/fills", s.GetTickFills)
}

// --- Request/Response types ---

// OrderRequest is the JSON body for POST /orders.
type OrderRequest struct {
	BuyerID  string          `json:"buyer_id"`
	SellerID string          `json:"seller_id"`
	Good     string          `json:"good"`
	Quantity decimal.Decimal `json:"quantity"`
	MaxPrice decimal.Decimal `json:"max_price"`
}

// QuoteRequest is the JSON body for POST /quotes.
type QuoteRequest struct {
	SellerID          string          `json:"seller_id"`
	Good              string          `json:"good"`
	Price             decimal.Decimal `json:"price"`
	QuantityAvailable decimal.Decimal `json:"quantity_available"`
}

// AcceptedResponse acknowledges an intent queued for clearing. NextTick is
// the earliest tick that can clear it; it is read without waiting for a tick
// in progress.
type AcceptedResponse struct {
	Status        string `json:"status"`
	NextTick      int    `json:"next_tick"`
	PendingOrders int    `json:"pending_orders"`
}

// --- HTTP Handlers ---

// ListAgents handles GET /api/v1/agents
func (s *Service) ListAgents(w http.ResponseWriter, r *http.Request) {
	ids := s.coord.Agents()
	snapshots := make([]model.AgentSnapshot, 0, len(ids))
	for _, id := range ids {
		if snap, ok := s.coord.Snapshot(id); ok {
			snapshots = append(snapshots, snap)
		}
	}
	writeJSON(w, http.StatusOK, snapshots)
}

// GetAgent handles GET /api/v1/agents/{agentID}
func (s *Service) GetAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	snap, ok := s.coord.Snapshot(agentID)
	if !ok {
		writeError(w, "agent not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GetAgentFills handles GET /api/v1/agents/{agentID}/fills
func (s *Service) GetAgentFills(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	entries, err := s.store.FillsByAgent(r.Context(), agentID)
	if err != nil {
		writeError(w, "failed to load fills", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.SettlementEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// ListQuotes handles GET /api/v1/quotes
// Returns the registry in insertion order, optionally filtered by ?good=<name>.
func (s *Service) ListQuotes(w http.ResponseWriter, r *http.Request) {
	quotes := s.coord.Quotes()

	if good := r.URL.Query().Get("good"); good != "" {
		filtered := []model.Quote{}
		for _, q := range quotes {
			if q.Good == good {
				filtered = append(filtered, q)
			}
		}
		quotes = filtered
	}
	writeJSON(w, http.StatusOK, quotes)
}

// GetQuote handles GET /api/v1/quotes/{seller}:{good}
func (s *Service) GetQuote(w http.ResponseWriter, r *http.Request) {
	key, err := ident.ParseKey(chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	q, ok := s.coord.Quote(key.SellerID, key.Good)
	if !ok {
		writeError(w, "quote not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// PostQuote handles POST /api/v1/quotes
func (s *Service) PostQuote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	q := model.Quote{
		SellerID:          req.SellerID,
		Good:              req.Good,
		Price:             req.Price,
		QuantityAvailable: req.QuantityAvailable,
	}
	if err := ident.ValidateQuote(q); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.driver.Submit(r.Context(), agent.PostQuote(q)); err != nil {
		writeSubmitError(w, err)
		return
	}

	slog.Info("quote posted",
		"seller", q.SellerID,
		"good", q.Good,
		"price", q.Price.String(),
		"qty", q.QuantityAvailable.String(),
	)
	s.writeAccepted(w)
}

// SubmitOrder handles POST /api/v1/orders
// The order is queued and settled on the next tick.
func (s *Service) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	o := model.Order{
		BuyerID:  req.BuyerID,
		SellerID: req.SellerID,
		Good:     req.Good,
		Quantity: req.Quantity,
		MaxPrice: req.MaxPrice,
	}
	if err := ident.ValidateOrder(o); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.driver.Submit(r.Context(), agent.SubmitOrder(o)); err != nil {
		writeSubmitError(w, err)
		return
	}

	slog.Info("order submitted",
		"buyer", o.BuyerID,
		"seller", o.SellerID,
		"good", o.Good,
		"qty", o.Quantity.String(),
		"max_price", o.MaxPrice.String(),
	)
	s.writeAccepted(w)
}

// AdvanceTick handles POST /api/v1/ticks
// Runs one full tick (agent decisions + clearing) and returns its summary.
func (s *Service) AdvanceTick(w http.ResponseWriter, r *http.Request) {
	summary, err := s.driver.Step(r.Context())
	if err != nil {
		if errors.Is(err, sim.ErrCoordinatorStopped) {
			writeError(w, "engine is shutting down", http.StatusServiceUnavailable)
			return
		}
		slog.Error("tick failed", "err", err)
		writeError(w, "tick failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ListTicks handles GET /api/v1/ticks
func (s *Service) ListTicks(w http.ResponseWriter, r *http.Request) {
	ticks, err := s.store.ListTicks(r.Context())
	if err != nil {
		writeError(w, "failed to list ticks", http.StatusInternalServerError)
		return
	}
	if ticks == nil {
		ticks = []model.TickSummary{}
	}
	writeJSON(w, http.StatusOK, ticks)
}

// GetTick handles GET /api/v1/ticks/{tick}
func (s *Service) GetTick(w http.ResponseWriter, r *http.Request) {
	tick, ok := tickParam(w, r)
	if !ok {
		return
	}

	summary, err := s.store.GetTick(r.Context(), tick)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "tick not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, "failed to load tick", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// GetTickFills handles GET /api/v1/ticks/{tick}/fills
func (s *Service) GetTickFills(w http.ResponseWriter, r *http.Request) {
	tick, ok := tickParam(w, r)
	if !ok {
		return
	}

	entries, err := s.store.FillsByTick(r.Context(), tick)
	if err != nil {
		writeError(w, "failed to load fills", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.SettlementEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Service) writeAccepted(w http.ResponseWriter) {
	writeJSON(w, http.StatusAccepted, AcceptedResponse{
		Status:        "accepted",
		NextTick:      s.driver.Tick(),
		PendingOrders: s.coord.PendingOrders(),
	})
}

func tickParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	tick, err := strconv.Atoi(chi.URLParam(r, "tick"))
	if err != nil || tick < 0 {
		writeError(w, "tick must be a non-negative integer", http.StatusBadRequest)
		return 0, false
	}
	return tick, true
}

func writeSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, market.ErrInvalidOrder), errors.Is(err, market.ErrInvalidQuote):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, sim.ErrCoordinatorStopped):
		writeError(w, "engine is shutting down", http.StatusServiceUnavailable)
	default:
		writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
