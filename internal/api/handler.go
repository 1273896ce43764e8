package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nidhogg/nuka-bonds/internal/graph"
	"github.com/nidhogg/nuka-bonds/internal/relation"
	"github.com/nidhogg/nuka-bonds/internal/requests"
	"github.com/nidhogg/nuka-bonds/internal/scorer"
	"github.com/nidhogg/nuka-bonds/internal/society"
	"github.com/nidhogg/nuka-bonds/internal/world"
)

// GraphReader serves mirrored relations, typically *graph.Graph.
type GraphReader interface {
	Relations(ctx context.Context, h relation.Handle) ([]graph.Edge, error)
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	engine      *society.Engine
	clock       *world.Clock
	scheduleMgr *world.ScheduleManager
	stateMgr    *world.StateManager
	autosave    *world.Heartbeat
	graph       GraphReader
	logger      *zap.Logger
}

// NewHandler creates a new API handler. autosave and graph may be nil.
func NewHandler(
	engine *society.Engine,
	clock *world.Clock,
	scheduleMgr *world.ScheduleManager,
	stateMgr *world.StateManager,
	autosave *world.Heartbeat,
	graph GraphReader,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		engine:      engine,
		clock:       clock,
		scheduleMgr: scheduleMgr,
		stateMgr:    stateMgr,
		autosave:    autosave,
		graph:       graph,
		logger:      logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)

		// Relation queries
		r.Get("/agents/{handle}/relations", h.listRelations)
		r.Get("/agents/{handle}/relations/{other}", h.getRelation)
		r.Get("/agents/{handle}/graph", h.getGraph)

		// Requests from collaborators
		r.Post("/relations", h.enqueueCreate)
		r.Post("/relations/modify", h.enqueueModify)
		r.Post("/relations/flags", h.enqueueFlag)
		r.Post("/relations/score", h.previewScore)

		// Schedules
		r.Get("/agents/{handle}/schedule", h.getAgentSchedule)
		r.Post("/agents/{handle}/schedule", h.createAgentSchedule)
		r.Get("/agents/{handle}/state", h.getAgentState)

		// Clock and engine
		r.Get("/clock", h.clockStatus)
		r.Post("/clock/pause", h.pauseClock)
		r.Post("/clock/resume", h.resumeClock)
		r.Post("/clock/mode", h.setClockMode)
		r.Get("/engine", h.engineStatus)
		r.Post("/save", h.triggerSave)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "nuka-bonds"})
}

// handleParam parses a handle URL parameter, writing a 400 on failure.
func handleParam(w http.ResponseWriter, r *http.Request, name string) (relation.Handle, bool) {
	hd, err := relation.ParseHandle(chi.URLParam(r, name))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return relation.Handle{}, false
	}
	return hd, true
}

func (h *Handler) listRelations(w http.ResponseWriter, r *http.Request) {
	owner, ok := handleParam(w, r, "handle")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"owner":     owner,
		"relations": h.engine.Ledger().Relations(owner),
	})
}

func (h *Handler) getRelation(w http.ResponseWriter, r *http.Request) {
	owner, ok := handleParam(w, r, "handle")
	if !ok {
		return
	}
	other, ok := handleParam(w, r, "other")
	if !ok {
		return
	}
	rel, found := h.engine.Ledger().Get(owner, other)
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "relation not found"})
		return
	}
	writeJSON(w, http.StatusOK, relation.Record{Owner: owner, Relation: rel})
}

func (h *Handler) getGraph(w http.ResponseWriter, r *http.Request) {
	owner, ok := handleParam(w, r, "handle")
	if !ok {
		return
	}
	if h.graph == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "graph mirror not configured"})
		return
	}
	edges, err := h.graph.Relations(r.Context(), owner)
	if err != nil {
		h.logger.Warn("graph query failed", zap.Stringer("agent", owner), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, edges)
}

func (h *Handler) enqueueCreate(w http.ResponseWriter, r *http.Request) {
	var req requests.Create
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	h.engine.Queue().EnqueueCreate(req)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (h *Handler) enqueueModify(w http.ResponseWriter, r *http.Request) {
	var req requests.Modify
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	h.engine.Queue().EnqueueModify(req)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (h *Handler) enqueueFlag(w http.ResponseWriter, r *http.Request) {
	var req requests.Flag
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	h.engine.Queue().EnqueueFlag(req)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

type scoreRequest struct {
	A       scorer.Traits           `json:"a"`
	B       scorer.Traits           `json:"b"`
	Context relation.MeetingContext `json:"context"`
	Kinship relation.Kinship        `json:"kinship"`
	Seed    uint64                  `json:"seed"`
}

// previewScore runs the scorer without touching the ledger.
func (h *Handler) previewScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	terms := h.engine.Scorer().Breakdown(req.A, req.B, req.Context, req.Kinship, req.Seed)
	value := terms.Value()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"terms": terms,
		"value": value,
		"tier":  relation.TierFor(int(value)),
	})
}

func (h *Handler) getAgentSchedule(w http.ResponseWriter, r *http.Request) {
	agent, ok := handleParam(w, r, "handle")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.scheduleMgr.GetSchedule(agent))
}

func (h *Handler) getAgentState(w http.ResponseWriter, r *http.Request) {
	agent, ok := handleParam(w, r, "handle")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agent": agent,
		"state": h.stateMgr.GetState(agent),
	})
}

type scheduleCreateRequest struct {
	Title      string `json:"title"`
	Type       string `json:"type"`
	Delay      uint64 `json:"delay"`    // ticks from now
	Duration   uint64 `json:"duration"` // ticks
	RecurEvery uint64 `json:"recur_every,omitempty"`
}

func (h *Handler) createAgentSchedule(w http.ResponseWriter, r *http.Request) {
	agent, ok := handleParam(w, r, "handle")
	if !ok {
		return
	}
	if !h.engine.Ledger().Live(agent) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "agent not found"})
		return
	}

	var req scheduleCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Title == "" || req.Type == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "title and type are required"})
		return
	}
	if req.Duration == 0 {
		req.Duration = 30
	}
	if req.Delay == 0 {
		req.Delay = 1
	}

	entry := world.ScheduleEntry{
		Type:       world.ActivityType(req.Type),
		Title:      req.Title,
		StartTick:  h.clock.Info().Tick + req.Delay,
		Duration:   req.Duration,
		RecurEvery: req.RecurEvery,
	}
	entryID := h.scheduleMgr.AddEntry(agent, entry)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":         entryID,
		"agent":      agent,
		"title":      req.Title,
		"start_tick": entry.StartTick,
		"status":     "scheduled",
	})
}

func (h *Handler) clockStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.clock.Info())
}

func (h *Handler) pauseClock(w http.ResponseWriter, r *http.Request) {
	h.clock.SetPaused(true)
	writeJSON(w, http.StatusOK, h.clock.Info())
}

func (h *Handler) resumeClock(w http.ResponseWriter, r *http.Request) {
	h.clock.SetPaused(false)
	writeJSON(w, http.StatusOK, h.clock.Info())
}

type modeRequest struct {
	Recording *bool    `json:"recording"`
	Speed     *float64 `json:"speed,omitempty"`
}

func (h *Handler) setClockMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Recording == nil && req.Speed == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "recording or speed is required"})
		return
	}
	if req.Recording != nil {
		h.clock.SetRecording(*req.Recording)
	}
	if req.Speed != nil {
		if *req.Speed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "speed must be positive"})
			return
		}
		h.clock.SetSpeed(*req.Speed)
	}
	writeJSON(w, http.StatusOK, h.clock.Info())
}

func (h *Handler) engineStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"clock":   h.clock.Info(),
		"state":   h.engine.State(),
		"last":    h.engine.LastSummary(),
		"records": h.engine.Ledger().Len(),
		"pending": h.engine.Queue().Len(),
	})
}

func (h *Handler) triggerSave(w http.ResponseWriter, r *http.Request) {
	if h.autosave == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "persistence not configured"})
		return
	}
	info := h.clock.Info()
	if err := h.autosave.FireNow(info); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "saved",
		"tick":   info.Tick,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
