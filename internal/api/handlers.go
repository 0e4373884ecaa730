// Package api exposes the HTTP surface of the training load service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"example.com/trainload/internal/auth"
	"example.com/trainload/internal/domain"
	"example.com/trainload/internal/goals"
	"example.com/trainload/internal/ingest"
	"example.com/trainload/internal/load"
	"example.com/trainload/internal/recovery"
	"example.com/trainload/internal/sync"
)

const (
	defaultSyncDays      = 30
	defaultActivityLimit = 20
	maxActivityLimit     = 100
)

// Config wires the handler to its collaborators.
type Config struct {
	Athletes           domain.AthleteRepository
	Sync               *sync.Service
	Load               *load.Aggregator
	Recovery           *recovery.Advisor
	Goals              *goals.Tracker
	Queue              *ingest.Queue
	WebhookVerifyToken string
	MaxSyncDays        int
	Logger             *zap.Logger
}

// Handler coordinates HTTP requests with the domain services.
type Handler struct {
	athletes    domain.AthleteRepository
	syncer      *sync.Service
	loads       *load.Aggregator
	advisor     *recovery.Advisor
	goals       *goals.Tracker
	queue       *ingest.Queue
	verifyToken string
	maxSyncDays int
	logger      *zap.Logger
	now         func() time.Time
}

// NewHandler builds a Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		athletes:    cfg.Athletes,
		syncer:      cfg.Sync,
		loads:       cfg.Load,
		advisor:     cfg.Recovery,
		goals:       cfg.Goals,
		queue:       cfg.Queue,
		verifyToken: cfg.WebhookVerifyToken,
		maxSyncDays: cfg.MaxSyncDays,
		logger:      cfg.Logger,
		now:         time.Now,
	}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/sync", h.sync)
	mux.HandleFunc("/v1/dashboard", h.dashboard)
	mux.HandleFunc("/v1/activities", h.activities)
	mux.HandleFunc("/v1/balance", h.balance)
	mux.HandleFunc("/v1/recovery", h.recovery)
	mux.HandleFunc("/v1/weekly-trend", h.weeklyTrend)
	mux.HandleFunc("/v1/goals", h.setGoal)
	mux.HandleFunc("/v1/goals/current", h.currentGoal)
	mux.HandleFunc("/v1/goals/history", h.goalHistory)
	mux.HandleFunc("/webhook", h.webhook)
	mux.HandleFunc("/healthz", healthz)
	mux.Handle("/metrics", promhttp.Handler())
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// athleteID authenticates the request and enforces the required scope.
// A zero return means the response has already been written.
func (h *Handler) athleteID(w http.ResponseWriter, r *http.Request, scope string) int64 {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return 0
	}
	if !claims.HasScope(scope) && !claims.HasScope(auth.ScopeTrainingWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
		return 0
	}
	return claims.AthleteID
}

func (h *Handler) sync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	athleteID := h.athleteID(w, r, auth.ScopeTrainingWrite)
	if athleteID == 0 {
		return
	}

	days := defaultSyncDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "validation_failed", "days must be a positive integer")
			return
		}
		days = parsed
	}
	if h.maxSyncDays > 0 && days > h.maxSyncDays {
		days = h.maxSyncDays
	}

	profile, err := h.athletes.FindByExternalID(r.Context(), athleteID)
	if err != nil {
		if errors.Is(err, domain.ErrAthleteNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "athlete not registered")
			return
		}
		h.serverError(w, "loading athlete", err)
		return
	}

	result, err := h.syncer.SyncActivities(r.Context(), profile, days)
	if err != nil {
		h.serverError(w, "syncing activities", err)
		return
	}

	writeJSON(w, http.StatusOK, SyncResponse{
		Created:  result.Created,
		Updated:  result.Updated,
		DaysBack: days,
	})
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	athleteID := h.athleteID(w, r, auth.ScopeTrainingRead)
	if athleteID == 0 {
		return
	}

	dash, err := h.loads.Dashboard(r.Context(), athleteID, h.now())
	if err != nil {
		h.serverError(w, "building dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, toDashboardView(dash))
}

func (h *Handler) activities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	athleteID := h.athleteID(w, r, auth.ScopeTrainingRead)
	if athleteID == 0 {
		return
	}

	limit := defaultActivityLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			if parsed > maxActivityLimit {
				parsed = maxActivityLimit
			}
			limit = parsed
		}
	}
	skip := 0
	if raw := r.URL.Query().Get("skip"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			skip = parsed
		}
	}

	items, total, err := h.loads.Recent(r.Context(), athleteID, limit, skip)
	if err != nil {
		h.serverError(w, "listing activities", err)
		return
	}

	views := make([]ActivityView, 0, len(items))
	for _, act := range items {
		views = append(views, toActivityView(act))
	}
	writeJSON(w, http.StatusOK, ListActivitiesResponse{
		Items:   views,
		Limit:   limit,
		Skip:    skip,
		Total:   total,
		HasMore: skip+len(views) < total,
	})
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	athleteID := h.athleteID(w, r, auth.ScopeTrainingRead)
	if athleteID == 0 {
		return
	}

	balance, err := h.loads.Balance(r.Context(), athleteID, h.now())
	if err != nil {
		h.serverError(w, "computing balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceView(balance))
}

func (h *Handler) recovery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	athleteID := h.athleteID(w, r, auth.ScopeTrainingRead)
	if athleteID == 0 {
		return
	}

	assessment, err := h.advisor.Assess(r.Context(), athleteID, h.now())
	if err != nil {
		h.serverError(w, "assessing recovery", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecoveryView(assessment))
}

func (h *Handler) weeklyTrend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	athleteID := h.athleteID(w, r, auth.ScopeTrainingRead)
	if athleteID == 0 {
		return
	}

	weeks := load.DefaultTrendWeeks
	if raw := r.URL.Query().Get("weeks"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "weeks must be an integer")
			return
		}
		weeks = parsed
	}

	trend, err := h.loads.WeeklyTrend(r.Context(), athleteID, h.now(), weeks)
	if err != nil {
		if errors.Is(err, load.ErrWeeksOutOfRange) {
			writeError(w, http.StatusBadRequest, "validation_failed", "weeks must be between 2 and 12")
			return
		}
		h.serverError(w, "computing weekly trend", err)
		return
	}

	views := make([]WeekVolumeView, 0, len(trend))
	for _, week := range trend {
		views = append(views, toWeekVolumeView(week))
	}
	writeJSON(w, http.StatusOK, WeeklyTrendResponse{Weeks: views})
}

func (h *Handler) currentGoal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	athleteID := h.athleteID(w, r, auth.ScopeTrainingRead)
	if athleteID == 0 {
		return
	}

	status, err := h.goals.CurrentGoal(r.Context(), athleteID)
	if err != nil {
		if errors.Is(err, domain.ErrNoGoal) {
			writeError(w, http.StatusNotFound, "not_found", "no goal set for this week")
			return
		}
		h.serverError(w, "loading current goal", err)
		return
	}

	resp := GoalStatusResponse{Goal: toGoalView(status)}
	warning, err := h.goals.CheckBurnout(r.Context(), athleteID)
	if err != nil {
		h.logger.Warn("burnout check failed", zap.Error(err))
	} else if warning != nil {
		resp.Burnout = &BurnoutView{
			StreakWeeks: warning.StreakWeeks,
			Message:     warning.Message,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) setGoal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	athleteID := h.athleteID(w, r, auth.ScopeTrainingWrite)
	if athleteID == 0 {
		return
	}

	var req SetGoalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	status, err := h.goals.SetGoal(r.Context(), athleteID,
		domain.GoalType(req.Type), req.Target, domain.ActivityFilter(req.Filter))
	if err != nil {
		if errors.Is(err, goals.ErrInvalidGoal) {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		h.serverError(w, "setting goal", err)
		return
	}
	writeJSON(w, http.StatusCreated, GoalStatusResponse{Goal: toGoalView(status)})
}

func (h *Handler) goalHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	athleteID := h.athleteID(w, r, auth.ScopeTrainingRead)
	if athleteID == 0 {
		return
	}

	weeks := goals.DefaultHistoryWeeks
	if raw := r.URL.Query().Get("weeks"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			weeks = parsed
		}
	}

	records, err := h.goals.History(r.Context(), athleteID, weeks)
	if err != nil {
		h.serverError(w, "loading goal history", err)
		return
	}

	views := make([]GoalRecordView, 0, len(records))
	for _, rec := range records {
		views = append(views, toGoalRecordView(rec))
	}
	writeJSON(w, http.StatusOK, GoalHistoryResponse{Items: views})
}

// webhook handles the provider's subscription handshake (GET) and event
// delivery (POST). Delivery is always acknowledged with 200 so the provider
// does not retry; failures are logged and handled internally.
func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.webhookVerify(w, r)
	case http.MethodPost:
		h.webhookReceive(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) webhookVerify(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if query.Get("hub.verify_token") != h.verifyToken {
		h.logger.Warn("webhook verification rejected",
			zap.String("mode", query.Get("hub.mode")))
		writeError(w, http.StatusForbidden, "forbidden", "verify token mismatch")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"hub.challenge": query.Get("hub.challenge"),
	})
}

func (h *Handler) webhookReceive(w http.ResponseWriter, r *http.Request) {
	var notification ingest.Notification
	if err := json.NewDecoder(r.Body).Decode(&notification); err != nil {
		h.logger.Warn("discarding malformed webhook payload", zap.Error(err))
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.queue.Enqueue(r.Context(), notification); err != nil {
		if errors.Is(err, ingest.ErrUnsupportedNotification) {
			h.logger.Info("ignoring webhook event", zap.Error(err))
		} else {
			h.logger.Error("failed to enqueue webhook event", zap.Error(err))
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) serverError(w http.ResponseWriter, action string, err error) {
	h.logger.Error(action, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "server_error", err.Error())
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
