// Package handlers реализует JSON API сервиса OrbitViz.
package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/art-injener/orbitviz-go/internal/catalog"
	"github.com/art-injener/orbitviz-go/internal/observability"
	"github.com/art-injener/orbitviz-go/internal/orbit"
)

const (
	// Ограничения параметров траектории.
	minTrackDays = 0.1
	maxTrackDays = 30.0
	minStepSec   = 10
	maxStepSec   = 3600

	defaultTrackDays = 1.0
	defaultStepSec   = 60

	// Максимальный размер тела запроса на разбор TLE.
	maxParseBodyBytes = 4 << 20

	slogKeyError = "error"
)

// APIHandler обрабатывает JSON API запросы.
type APIHandler struct {
	store   *catalog.Store
	metrics *observability.Collector
	propCfg orbit.PropagatorConfig
	logger  *slog.Logger
	now     func() time.Time
}

// APIOption функция настройки APIHandler.
type APIOption func(*APIHandler)

// WithMetrics подключает сборщик метрик.
func WithMetrics(m *observability.Collector) APIOption {
	return func(h *APIHandler) {
		h.metrics = m
	}
}

// WithLogger логгер для APIHandler.
func WithLogger(logger *slog.Logger) APIOption {
	return func(h *APIHandler) {
		h.logger = logger
	}
}

// WithPropagatorConfig конфигурация пропагатора для запросов API.
func WithPropagatorConfig(cfg orbit.PropagatorConfig) APIOption {
	return func(h *APIHandler) {
		cfg.Validate()
		h.propCfg = cfg
	}
}

// NewAPIHandler создаёт обработчик API поверх каталога.
func NewAPIHandler(store *catalog.Store, opts ...APIOption) *APIHandler {
	h := &APIHandler{
		store:   store,
		propCfg: orbit.DefaultPropagatorConfig(),
		logger:  slog.Default(),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Routes регистрирует маршруты API на указанном mux.
func (h *APIHandler) Routes(mux *http.ServeMux) {
	mux.Handle("POST /api/v1/parse",
		h.instrument("/api/v1/parse", http.HandlerFunc(h.ParseTLE)))
	mux.Handle("GET /api/v1/satellites",
		h.instrument("/api/v1/satellites", http.HandlerFunc(h.ListSatellites)))
	mux.Handle("GET /api/v1/satellites/{id}",
		h.instrument("/api/v1/satellites/{id}", http.HandlerFunc(h.GetSatellite)))
	mux.Handle("GET /api/v1/satellites/{id}/track",
		h.instrument("/api/v1/satellites/{id}/track", http.HandlerFunc(h.GetTrack)))
	mux.HandleFunc("GET /healthz", h.Healthz)

	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics.Handler())
	}
}

func (h *APIHandler) instrument(route string, next http.Handler) http.Handler {
	if h.metrics == nil {
		return next
	}
	return h.metrics.Middleware(route, next)
}

// elementsResponse — элементы орбиты в JSON представлении.
type elementsResponse struct {
	Name                string  `json:"name,omitempty"`
	NoradID             int     `json:"norad_id"`
	Classification      string  `json:"classification,omitempty"`
	IntlDesignator      string  `json:"intl_designator,omitempty"`
	Epoch               string  `json:"epoch"`
	InclinationDeg      float64 `json:"inclination_deg"`
	RAANDeg             float64 `json:"raan_deg"`
	Eccentricity        float64 `json:"eccentricity"`
	ArgPerigeeDeg       float64 `json:"arg_perigee_deg"`
	MeanAnomalyDeg      float64 `json:"mean_anomaly_deg"`
	MeanMotionRevPerDay float64 `json:"mean_motion_rev_per_day"`
	PeriodMinutes       float64 `json:"period_minutes"`
	SemiMajorAxisKm     float64 `json:"semi_major_axis_km"`
	ApogeeKm            float64 `json:"apogee_km"`
	PerigeeKm           float64 `json:"perigee_km"`
	AgeDays             float64 `json:"age_days"`
}

// recordErrorResponse — пропущенная запись пакета TLE.
type recordErrorResponse struct {
	Record int    `json:"record"`
	Name   string `json:"name,omitempty"`
	Line   string `json:"line,omitempty"`
	Error  string `json:"error"`
}

// stateResponse — результат пропагации в JSON представлении.
type stateResponse struct {
	Time                string     `json:"time"`
	ElapsedSeconds      float64    `json:"elapsed_seconds"`
	MeanAnomalyDeg      float64    `json:"mean_anomaly_deg"`
	EccentricAnomalyDeg float64    `json:"eccentric_anomaly_deg"`
	TrueAnomalyDeg      float64    `json:"true_anomaly_deg"`
	RadiusKm            float64    `json:"radius_km"`
	AltitudeKm          float64    `json:"altitude_km"`
	Position            [3]float64 `json:"position_eci_km"`
}

// sampleErrorResponse — ошибка одного шага траектории.
type sampleErrorResponse struct {
	Time           string  `json:"time"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	Error          string  `json:"error"`
}

// parseResponse — ответ POST /api/v1/parse.
type parseResponse struct {
	Satellites []elementsResponse    `json:"satellites"`
	Errors     []recordErrorResponse `json:"errors,omitempty"`
}

// satelliteResponse — ответ GET /api/v1/satellites/{id}.
type satelliteResponse struct {
	Elements elementsResponse `json:"elements"`
	State    *stateResponse   `json:"state,omitempty"`
	StateErr string           `json:"state_error,omitempty"`
}

// trackResponse — ответ GET /api/v1/satellites/{id}/track.
type trackResponse struct {
	NoradID     int                   `json:"norad_id"`
	Name        string                `json:"name,omitempty"`
	StartTime   string                `json:"start_time"`
	EndTime     string                `json:"end_time"`
	StepSeconds int                   `json:"step_seconds"`
	Points      []stateResponse       `json:"points"`
	Errors      []sampleErrorResponse `json:"errors,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// ParseTLE разбирает пакет TLE из тела запроса.
// Частичный успех — 200 с перечнем ошибок; 422 если не разобрано ничего.
func (h *APIHandler) ParseTLE(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxParseBodyBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	elements, skipped := orbit.Parse(string(body))
	h.metrics.ObserveParse(len(elements), len(skipped))

	if len(elements) == 0 {
		h.logger.WarnContext(r.Context(), "parse request yielded no valid records",
			"skipped", len(skipped),
		)
	}

	resp := parseResponse{
		Satellites: make([]elementsResponse, 0, len(elements)),
		Errors:     make([]recordErrorResponse, 0, len(skipped)),
	}
	for _, el := range elements {
		resp.Satellites = append(resp.Satellites, toElementsResponse(el))
	}
	for _, recErr := range skipped {
		resp.Errors = append(resp.Errors, recordErrorResponse{
			Record: recErr.Record,
			Name:   recErr.Name,
			Line:   recErr.Line,
			Error:  recErr.Err.Error(),
		})
	}

	status := http.StatusOK
	if len(elements) == 0 {
		status = http.StatusUnprocessableEntity
	}
	h.writeJSON(w, status, resp)
}

// ListSatellites возвращает каталог, с фильтрами ?group= и ?name=.
func (h *APIHandler) ListSatellites(w http.ResponseWriter, r *http.Request) {
	var elements []*orbit.OrbitalElements

	switch {
	case r.URL.Query().Get("group") != "":
		elements = h.store.GetByGroup(r.URL.Query().Get("group"))
	case r.URL.Query().Get("name") != "":
		elements = h.store.GetByName(r.URL.Query().Get("name"))
	default:
		elements = h.store.GetAll()
	}

	out := make([]elementsResponse, 0, len(elements))
	for _, el := range elements {
		out = append(out, toElementsResponse(el))
	}

	h.writeJSON(w, http.StatusOK, out)
}

// GetSatellite возвращает элементы и текущее положение спутника.
func (h *APIHandler) GetSatellite(w http.ResponseWriter, r *http.Request) {
	el, ok := h.lookupSatellite(w, r)
	if !ok {
		return
	}

	resp := satelliteResponse{Elements: toElementsResponse(el)}

	prop, err := orbit.NewPropagatorWithConfig(el, h.propCfg)
	if err != nil {
		resp.StateErr = err.Error()
		h.writeJSON(w, http.StatusOK, resp)
		return
	}

	now := h.now().UTC()
	state, err := prop.PropagateAt(now)
	if err != nil {
		h.metrics.ObservePropagation(false, 0)
		h.logger.WarnContext(r.Context(), "propagation failed",
			"norad_id", el.NoradID,
			slogKeyError, err,
		)
		resp.StateErr = err.Error()
	} else {
		h.metrics.ObservePropagation(true, state.Iterations)
		s := toStateResponse(el, state)
		resp.State = &s
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// GetTrack возвращает траекторию спутника в ECI.
// Параметры: days (0.1–30, по умолчанию 1), step в секундах (10–3600,
// по умолчанию 60). Ошибки отдельных шагов не прерывают выборку.
func (h *APIHandler) GetTrack(w http.ResponseWriter, r *http.Request) {
	el, ok := h.lookupSatellite(w, r)
	if !ok {
		return
	}

	days, err := queryFloat(r, "days", defaultTrackDays)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid days parameter")
		return
	}
	stepSec, err := queryInt(r, "step", defaultStepSec)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid step parameter")
		return
	}

	days = min(max(days, minTrackDays), maxTrackDays)
	stepSec = min(max(stepSec, minStepSec), maxStepSec)

	prop, err := orbit.NewPropagatorWithConfig(el, h.propCfg)
	if err != nil {
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	start := h.now().UTC()
	end := start.Add(time.Duration(days * 24 * float64(time.Hour)))
	step := time.Duration(stepSec) * time.Second

	states, sampleErrs, err := prop.PropagateRange(start, end, step)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := trackResponse{
		NoradID:     el.NoradID,
		Name:        el.Name,
		StartTime:   start.Format(time.RFC3339),
		EndTime:     end.Format(time.RFC3339),
		StepSeconds: stepSec,
		Points:      make([]stateResponse, 0, len(states)),
		Errors:      make([]sampleErrorResponse, 0, len(sampleErrs)),
	}
	for _, state := range states {
		h.metrics.ObservePropagation(true, state.Iterations)
		resp.Points = append(resp.Points, toStateResponse(el, state))
	}
	for _, sampleErr := range sampleErrs {
		h.metrics.ObservePropagation(false, 0)
		resp.Errors = append(resp.Errors, sampleErrorResponse{
			Time:           sampleErr.Time.Format(time.RFC3339),
			ElapsedSeconds: sampleErr.ElapsedSeconds,
			Error:          sampleErr.Err.Error(),
		})
	}

	if len(sampleErrs) > 0 {
		h.logger.WarnContext(r.Context(), "track sampling had failures",
			"norad_id", el.NoradID,
			"failed", len(sampleErrs),
			"total", len(states)+len(sampleErrs),
		)
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// Healthz простой health check.
func (h *APIHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"satellites": h.store.Count(),
	})
}

func (h *APIHandler) lookupSatellite(w http.ResponseWriter, r *http.Request) (*orbit.OrbitalElements, bool) {
	noradID, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid NORAD ID")
		return nil, false
	}

	el, ok := h.store.Get(noradID)
	if !ok {
		h.writeError(w, http.StatusNotFound, "satellite not found")
		return nil, false
	}
	return el, true
}

func toElementsResponse(el *orbit.OrbitalElements) elementsResponse {
	return elementsResponse{
		Name:                el.Name,
		NoradID:             el.NoradID,
		Classification:      el.Classification,
		IntlDesignator:      el.IntlDesignator,
		Epoch:               el.Epoch.Format(time.RFC3339Nano),
		InclinationDeg:      el.InclinationDeg,
		RAANDeg:             el.RAANDeg,
		Eccentricity:        el.Eccentricity,
		ArgPerigeeDeg:       el.ArgPerigeeDeg,
		MeanAnomalyDeg:      el.MeanAnomalyDeg,
		MeanMotionRevPerDay: el.MeanMotionRevPerDay,
		PeriodMinutes:       el.OrbitalPeriod(),
		SemiMajorAxisKm:     el.SemiMajorAxisKm(),
		ApogeeKm:            el.Apogee(),
		PerigeeKm:           el.Perigee(),
		AgeDays:             el.Age().Hours() / 24,
	}
}

func toStateResponse(el *orbit.OrbitalElements, state *orbit.PropagatedState) stateResponse {
	return stateResponse{
		Time:                el.Epoch.Add(time.Duration(state.ElapsedSeconds * float64(time.Second))).Format(time.RFC3339),
		ElapsedSeconds:      state.ElapsedSeconds,
		MeanAnomalyDeg:      state.MeanAnomalyDeg,
		EccentricAnomalyDeg: state.EccentricAnomalyDeg,
		TrueAnomalyDeg:      state.TrueAnomalyDeg,
		RadiusKm:            state.RadiusKm,
		AltitudeKm:          state.Position.Altitude(),
		Position:            [3]float64{state.Position.X, state.Position.Y, state.Position.Z},
	}
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode response", slogKeyError, err)
	}
}

func (h *APIHandler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, errorResponse{Error: msg})
}

func queryFloat(r *http.Request, key string, def float64) (float64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.ParseFloat(raw, 64)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
