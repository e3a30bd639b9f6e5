// Package server exposes the pipeline and the score calculator over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/spigell/crs-roadmap/internal/crs"
	"github.com/spigell/crs-roadmap/internal/logger"
	"github.com/spigell/crs-roadmap/internal/metrics"
	"github.com/spigell/crs-roadmap/internal/pipeline"
)

const basePath = "/v1"

// Runner executes a pipeline run.
type Runner interface {
	Run(ctx context.Context, questionnaire string) (*pipeline.Record, error)
}

type Config struct {
	Runner  Runner
	Strict  bool
	Version string
	Logger  *zap.Logger
}

// New returns an HTTP handler serving the API under /v1 and prometheus
// metrics under /metrics.
func New(cfg Config) (http.Handler, error) {
	if cfg.Runner == nil {
		return nil, errors.New("pipeline runner is required")
	}
	log := logger.WithFields(cfg.Logger)

	version := cfg.Version
	if version == "" {
		version = "unknown"
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(accessLog(log))
	router.Handle("/metrics", promhttp.Handler())

	api := humachi.New(router, huma.DefaultConfig("CRS Roadmap API", version))
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerRuns(group, cfg.Runner, log)
	registerScore(group, cfg.Strict)

	return router, nil
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerRuns(api huma.API, runner Runner, log *zap.Logger) {
	huma.Register(api, huma.Operation{
		OperationID: "create-run",
		Method:      http.MethodPost,
		Path:        "/runs",
		Summary:     "Run the roadmap pipeline for a questionnaire",
		Errors:      []int{http.StatusBadRequest, http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		Body RunRequest
	}) (*struct {
		Body RunResponse `json:"body"`
	}, error) {
		rec, err := runner.Run(ctx, input.Body.Questionnaire)
		if err != nil {
			return nil, runError(err, log)
		}
		return &struct {
			Body RunResponse `json:"body"`
		}{Body: RunResponse{Record: *rec}}, nil
	})
}

func registerScore(api huma.API, strictDefault bool) {
	huma.Register(api, huma.Operation{
		OperationID: "score",
		Method:      http.MethodPost,
		Path:        "/score",
		Summary:     "Compute a deterministic CRS score",
		Errors:      []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body ScoreRequest
	}) (*struct {
		Body ScoreResponse `json:"body"`
	}, error) {
		engine := crs.NewEngine(crs.Options{Strict: strictDefault || input.Body.Strict})
		breakdown, err := engine.Score(input.Body.Applicant.toApplicant())
		if err != nil {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
		metrics.ScoresComputed.WithLabelValues("api").Inc()

		return &struct {
			Body ScoreResponse `json:"body"`
		}{Body: ScoreResponse{
			Total:     breakdown.Total,
			Factors:   breakdown.Factors,
			Breakdown: breakdown.String(),
		}}, nil
	})
}

func runError(err error, log *zap.Logger) error {
	if errors.Is(err, pipeline.ErrEmptyQuestionnaire) {
		return huma.Error400BadRequest(err.Error())
	}

	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) {
		return huma.Error502BadGateway("pipeline stopped at stage "+stageErr.Stage, err)
	}

	log.Error("pipeline run failed", zap.Error(err))
	return huma.Error500InternalServerError("internal error")
}

func accessLog(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			started := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("elapsed", time.Since(started)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
