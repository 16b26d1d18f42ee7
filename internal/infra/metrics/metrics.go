package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	RunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schedule_runs_total",
		Help: "Количество запусков планирования",
	}, []string{"status"})

	RunDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "schedule_run_duration_seconds",
		Help:    "Длительность запуска планирования",
		Buckets: prometheus.DefBuckets,
	})

	AssignmentsPlanned = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schedule_assignments_planned_total",
		Help: "Запланированные публикации по платформам",
	}, []string{"platform"})

	PlanSkips = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schedule_plan_skips_total",
		Help: "Мягкие пропуски планировщика по причинам",
	}, []string{"reason"})

	PublishTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "publish_total",
		Help: "Результаты публикаций по платформам",
	}, []string{"platform", "status"})

	CatalogVideos = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_videos",
		Help: "Видео в каталоге на момент последнего запуска",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 20, 30, 60, 120},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})

	LLMGenerationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llm_generation_duration_seconds",
		Help:    "Длительность генерации описания LLM",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	LLMTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_tokens_total",
		Help: "Количество токенов, использованных LLM",
	}, []string{"model", "type"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		RunsTotal,
		RunDurationSeconds,
		AssignmentsPlanned,
		PlanSkips,
		PublishTotal,
		CatalogVideos,
		NetworkRequestDuration,
		NetworkRequestTotal,
		LLMGenerationDuration,
		LLMTokensTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveLLMGeneration записывает длительность и токены генерации LLM.
func ObserveLLMGeneration(model string, duration time.Duration, promptTokens, completionTokens int) {
	if model == "" {
		model = "unknown"
	}
	LLMGenerationDuration.WithLabelValues(model).Observe(duration.Seconds())
	if promptTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
}

// IncAssignmentPlanned увеличивает счётчик запланированных публикаций.
func IncAssignmentPlanned(platform string) {
	AssignmentsPlanned.WithLabelValues(platform).Inc()
}

// IncPlanSkip увеличивает счётчик мягких пропусков планировщика.
func IncPlanSkip(reason string) {
	PlanSkips.WithLabelValues(reason).Inc()
}

// IncPublish фиксирует результат публикации.
func IncPublish(platform string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	PublishTotal.WithLabelValues(platform, status).Inc()
}

// ObserveRun фиксирует завершение запуска планирования.
func ObserveRun(start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	RunsTotal.WithLabelValues(status).Inc()
	RunDurationSeconds.Observe(time.Since(start).Seconds())
}
