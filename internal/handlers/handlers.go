// Package handlers is the chi HTTP surface. Every response is a structured
// payload; blocked markets render their blocked state, never a 5xx.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/XavierBriggs/pythia/internal/config"
	"github.com/XavierBriggs/pythia/internal/decision"
	"github.com/XavierBriggs/pythia/internal/flags"
	"github.com/XavierBriggs/pythia/internal/integrity"
	"github.com/XavierBriggs/pythia/internal/parlay"
	"github.com/XavierBriggs/pythia/internal/settlement"
	"github.com/XavierBriggs/pythia/internal/sim"
	"github.com/XavierBriggs/pythia/internal/store"
	"github.com/XavierBriggs/pythia/pkg/models"
)

// decisionCacheTTL bounds the read-through decision cache
const decisionCacheTTL = 5 * time.Minute

// Handler carries the API dependencies
type Handler struct {
	stores      *store.Stores
	engine      *sim.Engine
	computer    *decision.Computer
	validator   *integrity.Validator
	constructor *parlay.Constructor
	settler     *settlement.Engine
	flags       *flags.Service
	redisClient *redis.Client
	defaultIter int
}

// New creates the handler set
func New(stores *store.Stores, engine *sim.Engine, computer *decision.Computer, validator *integrity.Validator, constructor *parlay.Constructor, settler *settlement.Engine, flagSvc *flags.Service, redisClient *redis.Client, defaultIter int) *Handler {
	return &Handler{
		stores:      stores,
		engine:      engine,
		computer:    computer,
		validator:   validator,
		constructor: constructor,
		settler:     settler,
		flags:       flagSvc,
		redisClient: redisClient,
		defaultIter: defaultIter,
	}
}

// HealthCheck reports service and dependency status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}

	if h.redisClient != nil {
		if err := h.redisClient.Ping(r.Context()).Err(); err != nil {
			status["status"] = "degraded"
			status["redis"] = err.Error()
		}
	}

	writeJSON(w, http.StatusOK, status)
}

// GetGameDecisions serves the cached decision triple for an event.
// The cache is read-through and hash-stamped: an entry whose children
// disagree with its meta hash is rejected and re-read from the store.
func (h *Handler) GetGameDecisions(w http.ResponseWriter, r *http.Request) {
	leagueParam := chi.URLParam(r, "league")
	eventID := chi.URLParam(r, "eventID")

	if _, err := models.ParseLeague(leagueParam); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_LEAGUE", err.Error())
		return
	}

	if gd := h.cachedDecisions(r.Context(), eventID); gd != nil {
		writeJSON(w, http.StatusOK, gd)
		return
	}

	gd, err := h.stores.Decisions.GetGameDecisions(r.Context(), eventID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// A known event with no computed decisions yet still serves a
			// structured payload, never an error
			event, eventErr := h.stores.Events.Get(r.Context(), eventID)
			if eventErr == nil {
				writeJSON(w, http.StatusOK, &models.GameDecisions{
					Meta: models.GameDecisionsMeta{League: event.League, EventID: event.EventID},
				})
				return
			}
			writeError(w, http.StatusNotFound, "NOT_FOUND", "event not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to load decisions")
		return
	}

	h.cacheDecisions(r.Context(), eventID, gd)
	writeJSON(w, http.StatusOK, gd)
}

func (h *Handler) cachedDecisions(ctx context.Context, eventID string) *models.GameDecisions {
	if h.redisClient == nil {
		return nil
	}

	data, err := h.redisClient.Get(ctx, "decisions:"+eventID).Bytes()
	if err != nil {
		return nil
	}

	var gd models.GameDecisions
	if err := json.Unmarshal(data, &gd); err != nil {
		return nil
	}

	// Reject a cached entry whose children disagree with the stamped hash
	for _, d := range gd.Children() {
		if d.Debug.InputsHash != gd.Meta.InputsHash {
			return nil
		}
	}
	return &gd
}

func (h *Handler) cacheDecisions(ctx context.Context, eventID string, gd *models.GameDecisions) {
	if h.redisClient == nil {
		return
	}
	data, err := json.Marshal(gd)
	if err != nil {
		return
	}
	if err := h.redisClient.Set(ctx, "decisions:"+eventID, data, decisionCacheTTL).Err(); err != nil {
		log.Printf("[API] cache decisions %s: %v", eventID, err)
	}
}

type simulationRequest struct {
	EventID          string  `json:"event_id"`
	Iterations       int     `json:"iterations"`
	MarketType       *string `json:"market_type,omitempty"`
	MarketSettlement string  `json:"market_settlement"`
}

// RunSimulation executes an on-demand simulation and returns the handle
// plus the recomputed decision triple
func (h *Handler) RunSimulation(w http.ResponseWriter, r *http.Request) {
	var req simulationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}

	if req.MarketSettlement == "" {
		req.MarketSettlement = string(models.SettleFullGame)
	}
	if req.Iterations == 0 {
		req.Iterations = h.defaultIter
	}
	if !config.ValidIterationTier(req.Iterations) {
		writeError(w, http.StatusBadRequest, "INVALID_ITERATIONS", "iterations must be one of 10000, 25000, 50000, 100000")
		return
	}

	event, err := h.stores.Events.Get(r.Context(), req.EventID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "event not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to load event")
		return
	}

	// Market contract check happens at the boundary; an invalid
	// combination never reaches the engine
	marketType := models.MarketSpread
	if req.MarketType != nil {
		marketType = models.MarketType(*req.MarketType)
	}
	if err := settlement.CheckMarketContract(event.League, marketType, models.SettlementMode(req.MarketSettlement)); err != nil {
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error_code": "MARKET_CONTRACT_MISMATCH",
			"request_context": map[string]string{
				"sport":             string(event.League),
				"market_type":       string(marketType),
				"market_settlement": req.MarketSettlement,
			},
		})
		return
	}

	snap, err := h.stores.Snapshots.Latest(r.Context(), event.EventID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusConflict, "NO_SNAPSHOT", "no market snapshot for event yet")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to load snapshot")
		return
	}

	run, err := h.engine.Run(r.Context(), event, snap, models.WavePoll, req.Iterations)
	if err != nil {
		var timeout *sim.ErrSimTimeout
		if !errors.As(err, &timeout) {
			writeError(w, http.StatusInternalServerError, "SIM_FAILED", err.Error())
			return
		}
	}
	if err := h.stores.SimRuns.Insert(r.Context(), store.CallerSimEngine, run); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to store run")
		return
	}

	version, err := h.stores.Decisions.NextVersion(r.Context(), event.EventID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to allocate version")
		return
	}

	gd, err := h.computer.ComputeGame(event, snap, run, version, uuid.NewString())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to compute decisions")
		return
	}
	h.validator.ValidateGame(r.Context(), event, gd, run.Converged)

	if err := h.stores.Decisions.SaveGameDecisions(r.Context(), store.CallerDecisionComputer, gd); err != nil && !errors.Is(err, store.ErrStaleDecision) {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to store decisions")
		return
	}
	h.cacheDecisions(r.Context(), event.EventID, gd)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sim_run_id": run.SimRunID,
		"converged":  run.Converged,
		"iterations": run.Iterations,
		"decisions":  gd,
	})
}

// GenerateParlay runs one parlay construction attempt
func (h *Handler) GenerateParlay(w http.ResponseWriter, r *http.Request) {
	if !h.flags.Enabled(r.Context(), store.FlagParlayEnabled) {
		writeError(w, http.StatusServiceUnavailable, "PARLAY_DISABLED", "parlay construction is disabled")
		return
	}

	var req models.ParlayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}

	result, err := h.constructor.Construct(r.Context(), &req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "parlay construction failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ParlayStats serves success/fail counters over a trailing window
func (h *Handler) ParlayStats(w http.ResponseWriter, r *http.Request) {
	days := 7
	if param := r.URL.Query().Get("days"); param != "" {
		parsed, err := strconv.Atoi(param)
		if err != nil || parsed < 1 || parsed > 365 {
			writeError(w, http.StatusBadRequest, "INVALID_DAYS", "days must be 1-365")
			return
		}
		days = parsed
	}

	stats, err := h.stores.Parlay.Stats(r.Context(), days)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to load stats")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

type gradeRequest struct {
	AdminOverride *string `json:"admin_override,omitempty"`
	AdminNote     string  `json:"admin_note,omitempty"`
}

// GradePick grades one pick (admin-scoped)
func (h *Handler) GradePick(w http.ResponseWriter, r *http.Request) {
	pickID := chi.URLParam(r, "pickID")

	var req gradeRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
			return
		}
	}

	opts := settlement.GradeOptions{AdminNote: req.AdminNote}
	if req.AdminOverride != nil {
		parsed, err := models.ParseSettlement(*req.AdminOverride)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_OVERRIDE", err.Error())
			return
		}
		opts.AdminOverride = &parsed
	}

	record, err := h.settler.Grade(r.Context(), pickID, opts)
	if err != nil {
		var notDone *settlement.ErrGameNotCompleted
		var missing *settlement.ErrMissingProviderID
		var drift *settlement.ErrProviderMappingDrift
		switch {
		case errors.As(err, &notDone):
			writeError(w, http.StatusConflict, "GAME_NOT_COMPLETED", err.Error())
		case errors.As(err, &missing):
			writeError(w, http.StatusUnprocessableEntity, "PROVIDER_ID_MISSING", err.Error())
		case errors.As(err, &drift):
			writeError(w, http.StatusConflict, "MAPPING_DRIFT", err.Error())
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "pick not found")
		default:
			writeError(w, http.StatusInternalServerError, "GRADING_FAILED", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, record)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[API] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error_code": code,
		"message":    message,
	})
}
