// Package observability содержит Prometheus метрики сервиса.
package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector объединяет метрики Prometheus для HTTP API, парсера TLE
// и пропагатора, и даёт middleware для их записи.
type Collector struct {
	gatherer prometheus.Gatherer

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec

	RecordsParsed  prometheus.Counter
	RecordsSkipped prometheus.Counter

	Propagations      *prometheus.CounterVec
	SolverIterations  prometheus.Histogram
	CatalogSize       prometheus.Gauge
	CatalogStaleCount prometheus.Gauge
}

// NewCollector регистрирует метрики в указанном registerer.
// При nil используется глобальный реестр Prometheus.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orbitviz_http_requests_total",
		Help: "Total number of handled HTTP requests, labeled by method, route, and status code.",
	}, []string{"method", "route", "code"})
	requests, err := registerCounterVec(reg, requests, "orbitviz_http_requests_total")
	if err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "orbitviz_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"method", "route"})
	durations, err = registerHistogramVec(reg, durations, "orbitviz_http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	parsed, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orbitviz_tle_records_parsed_total",
		Help: "Total number of successfully parsed TLE records.",
	}), "orbitviz_tle_records_parsed_total")
	if err != nil {
		return nil, err
	}
	skipped, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orbitviz_tle_records_skipped_total",
		Help: "Total number of malformed TLE records skipped by the parser.",
	}), "orbitviz_tle_records_skipped_total")
	if err != nil {
		return nil, err
	}

	propagations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orbitviz_propagations_total",
		Help: "Total number of Kepler propagation samples, labeled by outcome.",
	}, []string{"outcome"})
	propagations, err = registerCounterVec(reg, propagations, "orbitviz_propagations_total")
	if err != nil {
		return nil, err
	}

	iterations := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orbitviz_kepler_iterations",
		Help:    "Newton-Raphson iterations per converged Kepler solve.",
		Buckets: []float64{1, 2, 3, 4, 5, 7, 10, 15, 25, 50},
	})
	iterationsReg, err := registerHistogram(reg, iterations, "orbitviz_kepler_iterations")
	if err != nil {
		return nil, err
	}

	size, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orbitviz_catalog_size",
		Help: "Current number of satellites in the catalog.",
	}), "orbitviz_catalog_size")
	if err != nil {
		return nil, err
	}
	stale, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orbitviz_catalog_stale",
		Help: "Current number of catalog records older than the configured max age.",
	}), "orbitviz_catalog_stale")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:          gatherer,
		HTTPRequests:      requests,
		HTTPDurations:     durations,
		RecordsParsed:     parsed,
		RecordsSkipped:    skipped,
		Propagations:      propagations,
		SolverIterations:  iterationsReg,
		CatalogSize:       size,
		CatalogStaleCount: stale,
	}, nil
}

// statusRecorder перехватывает код ответа для метрик.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware записывает счётчик и длительность каждого HTTP запроса.
// route — шаблон маршрута ("/api/v1/satellites/{id}"), а не конкретный
// путь, чтобы не раздувать кардинальность меток.
func (c *Collector) Middleware(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		if c == nil {
			return
		}
		if c.HTTPRequests != nil {
			c.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		}
		if c.HTTPDurations != nil {
			c.HTTPDurations.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		}
	})
}

// ObserveParse записывает результат разбора пакета TLE.
func (c *Collector) ObserveParse(parsed, skipped int) {
	if c == nil {
		return
	}
	if c.RecordsParsed != nil {
		c.RecordsParsed.Add(float64(parsed))
	}
	if c.RecordsSkipped != nil {
		c.RecordsSkipped.Add(float64(skipped))
	}
}

// ObservePropagation записывает результат одного шага пропагации.
// При успехе iterations — число итераций Ньютона-Рафсона.
func (c *Collector) ObservePropagation(ok bool, iterations int) {
	if c == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	if c.Propagations != nil {
		c.Propagations.WithLabelValues(outcome).Inc()
	}
	if ok && c.SolverIterations != nil {
		c.SolverIterations.Observe(float64(iterations))
	}
}

// SetCatalogCounts обновляет гейджи размера каталога.
func (c *Collector) SetCatalogCounts(total, stale int) {
	if c == nil {
		return
	}
	if c.CatalogSize != nil {
		c.CatalogSize.Set(float64(total))
	}
	if c.CatalogStaleCount != nil {
		c.CatalogStaleCount.Set(float64(stale))
	}
}

// Handler возвращает готовый обработчик /metrics.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
