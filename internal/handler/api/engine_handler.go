package api

import (
	"fmt"
	"time"

	"github.com/labstack/echo/v4"

	models "CalmPulse/internal/domain/models"
	drepo "CalmPulse/internal/domain/repository"
	"CalmPulse/internal/engine"
	"CalmPulse/internal/service/ratelimit"
	"CalmPulse/internal/usecase"
	pkgcache "CalmPulse/pkg/cache"
	xhttp "CalmPulse/pkg/http"
	xlogger "CalmPulse/pkg/logger"
)

// Ingest rate limits: wearables sample a few times a minute, so anything
// past this is a runaway client.
const (
	ingestBurst     = 30
	ingestPerSecond = 5
)

// EngineHandler exposes the detection engine over HTTP: reading ingest,
// feedback, event history, baselines and status.
type EngineHandler struct {
	logger    *xlogger.Logger
	eng       *engine.Engine
	collector *usecase.ReadingCollector
	store     drepo.Store
	cache     pkgcache.Service // nil disables response caching
	hub       *Hub
	limiter   *ratelimit.Limiter

	eventsTTL    time.Duration
	baselinesTTL time.Duration
}

func NewEngineHandler(logger *xlogger.Logger, eng *engine.Engine, collector *usecase.ReadingCollector,
	store drepo.Store, cache pkgcache.Service, hub *Hub, eventsTTL, baselinesTTL time.Duration) *EngineHandler {
	if eventsTTL <= 0 {
		eventsTTL = 5 * time.Second
	}
	if baselinesTTL <= 0 {
		baselinesTTL = time.Minute
	}
	return &EngineHandler{
		logger:       logger,
		eng:          eng,
		collector:    collector,
		store:        store,
		cache:        cache,
		hub:          hub,
		limiter:      ratelimit.New(),
		eventsTTL:    eventsTTL,
		baselinesTTL: baselinesTTL,
	}
}

func (h *EngineHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/readings", h.SubmitReading, h.rateLimit)
	g.POST("/feedback", h.SubmitFeedback)
	g.POST("/feedback/manual", h.ReportManual)
	g.GET("/events", h.Events)
	g.GET("/events/live", h.EventsLive)
	g.GET("/baselines", h.Baselines)
	g.GET("/status", h.Status)
	g.GET("/health", h.Health)
}

func (h *EngineHandler) SubmitReading(c echo.Context) error {
	req := &models.ReadingRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	r := models.Reading{
		Timestamp:   time.UnixMilli(req.Timestamp),
		HeartRate:   req.HeartRate,
		HRV:         req.HRV,
		Temperature: req.Temperature,
		Motion:      req.Motion,
		Confidence:  req.Confidence,
		Source:      models.BiometricSource(req.Source),
	}

	ev, err := h.collector.Submit(c.Request().Context(), r)
	if err != nil {
		h.logger.Error("reading ingest error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	h.invalidate(c, "events")

	resp := map[string]interface{}{"accepted": true}
	if ev != nil {
		resp["event"] = eventView(*ev)
	}
	return xhttp.SuccessResponse(c, resp)
}

func (h *EngineHandler) SubmitFeedback(c echo.Context) error {
	req := &models.FeedbackRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	fb, err := h.eng.RecordFeedback(c.Request().Context(), req.EventID, *req.WasCorrect,
		req.AnxietyLevel, req.Notes, models.FeedbackTiming(req.Timing))
	if err != nil {
		h.logger.Error("feedback error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.CreatedResponse(c, map[string]interface{}{
		"feedback_id":        fb.ID,
		"adjusted_threshold": h.eng.AlertThreshold(),
	})
}

func (h *EngineHandler) ReportManual(c echo.Context) error {
	req := &models.ManualEventRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	fb, err := h.eng.ReportManualEvent(c.Request().Context(), time.UnixMilli(req.Timestamp), req.Notes)
	if err != nil {
		h.logger.Error("manual report error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.CreatedResponse(c, map[string]interface{}{
		"feedback_id":      fb.ID,
		"matched_event_id": fb.EventID,
	})
}

func (h *EngineHandler) Events(c echo.Context) error {
	req := &models.EventsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	since := xhttp.ParseTimeDefault(req.Since, time.Now().Add(-24*time.Hour))

	key := fmt.Sprintf("events:%d:%d", since.Unix(), req.Limit)
	var views []eventResponse
	if h.cache != nil {
		if err := h.cache.Get(c.Request().Context(), key, &views); err == nil {
			return xhttp.ListResponse(c, views, int64(len(views)))
		}
	}

	events, err := h.store.Events(c.Request().Context(), since, req.Limit)
	if err != nil {
		h.logger.Error("events query error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	views = make([]eventResponse, 0, len(events))
	for _, ev := range events {
		views = append(views, eventView(ev))
	}
	if h.cache != nil {
		_ = h.cache.Set(c.Request().Context(), key, views, h.eventsTTL)
	}
	return xhttp.ListResponse(c, views, int64(len(views)))
}

// EventsLive upgrades to WebSocket and streams detections as they are
// emitted.
func (h *EngineHandler) EventsLive(c echo.Context) error {
	return h.hub.Serve(c.Response(), c.Request())
}

func (h *EngineHandler) Baselines(c echo.Context) error {
	const key = "baselines"
	var views []baselineResponse
	if h.cache != nil {
		if err := h.cache.Get(c.Request().Context(), key, &views); err == nil {
			return xhttp.ListResponse(c, views, int64(len(views)))
		}
	}

	baselines, err := h.store.Baselines(c.Request().Context())
	if err != nil {
		h.logger.Error("baselines query error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	views = make([]baselineResponse, 0, len(baselines))
	for _, b := range baselines {
		views = append(views, baselineView(b))
	}
	if h.cache != nil {
		_ = h.cache.Set(c.Request().Context(), key, views, h.baselinesTTL)
	}
	return xhttp.ListResponse(c, views, int64(len(views)))
}

func (h *EngineHandler) Status(c echo.Context) error {
	st, err := h.eng.Status(c.Request().Context())
	if err != nil {
		h.logger.Error("status error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"phase":               string(st.Phase),
		"adjusted_threshold":  st.AdjustedThreshold,
		"alert_threshold":     h.eng.AlertThreshold(),
		"threshold_updates":   st.ThresholdUpdates,
		"trust_score":         st.TrustScore,
		"feedback_error_rate": st.FeedbackErrorRate,
		"reading_count":       st.ReadingCount,
		"processed":           st.Processed,
		"scorer_ready":        st.ScorerReady,
	})
}

func (h *EngineHandler) Health(c echo.Context) error {
	if err := h.store.Health(c.Request().Context()); err != nil {
		h.logger.Error("health check failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

func (h *EngineHandler) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !h.limiter.Allow(c.RealIP(), ingestBurst, ingestPerSecond) {
			return xhttp.TooManyRequestsResponse(c)
		}
		return next(c)
	}
}

func (h *EngineHandler) invalidate(c echo.Context, pattern string) {
	if h.cache == nil {
		return
	}
	_ = h.cache.DeleteByPattern(c.Request().Context(), pattern+"*")
}

// --- response shapes ---

type eventResponse struct {
	ID                string   `json:"id"`
	Timestamp         int64    `json:"timestamp"`
	Type              string   `json:"type"`
	Confidence        float64  `json:"confidence"`
	HeartRate         float64  `json:"heart_rate"`
	BaselineHeartRate float64  `json:"baseline_heart_rate"`
	HRV               *float64 `json:"hrv,omitempty"`
	BaselineHRV       *float64 `json:"baseline_hrv,omitempty"`
	Activity          string   `json:"activity"`
	Method            string   `json:"method"`
	Source            string   `json:"source"`
}

func eventView(ev models.AnxietyEvent) eventResponse {
	return eventResponse{
		ID:                ev.ID,
		Timestamp:         ev.Timestamp.UnixMilli(),
		Type:              string(ev.Type),
		Confidence:        ev.Confidence,
		HeartRate:         ev.HeartRate,
		BaselineHeartRate: ev.BaselineHeartRate,
		HRV:               ev.HRV,
		BaselineHRV:       ev.BaselineHRV,
		Activity:          string(ev.Activity),
		Method:            string(ev.Method),
		Source:            string(ev.Source),
	}
}

type baselineResponse struct {
	Hour         int      `json:"hour"`
	AvgHeartRate float64  `json:"avg_heart_rate"`
	AvgHRV       float64  `json:"avg_hrv"`
	AvgTemp      *float64 `json:"avg_temp,omitempty"`
	DataPoints   int      `json:"data_points"`
	UpdatedAt    int64    `json:"updated_at"`
	Source       string   `json:"source"`
}

func baselineView(b models.Baseline) baselineResponse {
	return baselineResponse{
		Hour:         b.Hour,
		AvgHeartRate: b.AvgHeartRate,
		AvgHRV:       b.AvgHRV,
		AvgTemp:      b.AvgTemp,
		DataPoints:   b.DataPoints,
		UpdatedAt:    b.UpdatedAt.UnixMilli(),
		Source:       string(b.Source),
	}
}
