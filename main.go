package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Tutortoise/ovaquick/analysis"
	"github.com/Tutortoise/ovaquick/config"
	"github.com/Tutortoise/ovaquick/gradio"
	"github.com/Tutortoise/ovaquick/inference"
	"github.com/Tutortoise/ovaquick/logger"
	"github.com/Tutortoise/ovaquick/metric"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

const (
	shutdownTimeout = 15 * time.Second
	// writeTimeoutSlack is added to the prediction timeout for upload and rendering.
	writeTimeoutSlack = 30 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := logger.Init(cfg.AppName, cfg.AppEnv, cfg.AppLogLevel, cfg.AppDebug); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize logger")
	}
	metric.Init(metric.Config{
		AppName:      cfg.AppName,
		AppEnv:       cfg.AppEnv,
		TelegrafHost: cfg.TelegrafHost,
		TelegrafPort: cfg.TelegrafPort,
		SamplingRate: cfg.MetricSamplingRate,
	})
	defer metric.Close()

	policy, err := analysis.ParseStaleResultPolicy(cfg.StaleResultPolicy)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid stale result policy")
	}

	// The Space handle lives for the whole process and connects on first use.
	space := gradio.New(gradio.Config{
		Space:     cfg.GradioSpace,
		HFAPIBase: cfg.HFAPIBase,
		Token:     cfg.HFToken,
	})
	defer space.Close()

	state, err := newAppState(cfg, space, policy)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build application state")
	}
	defer state.Sessions.Destroy()

	router, err := newRouter(state)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build router")
	}

	var writeTimeout time.Duration
	if d := cfg.PredictTimeout(); d > 0 {
		writeTimeout = d + writeTimeoutSlack
	}
	srv := &http.Server{
		Handler:           router,
		Addr:              cfg.Addr(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      writeTimeout,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("space", cfg.GradioSpace).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	waitForSignal()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
	log.Info().Msg("Server stopped")
}

func newAppState(cfg *config.Config, space *gradio.Client, policy analysis.StaleResultPolicy) (*AppState, error) {
	adapter := inference.NewAdapter(space,
		inference.WithRoute(cfg.GradioRoute),
		inference.WithTimeout(cfg.PredictTimeout()),
	)
	log.Info().
		Str("space", cfg.GradioSpace).
		Str("route", adapter.Route()).
		Dur("timeout", cfg.PredictTimeout()).
		Msg("Inference adapter configured")
	var predictor inference.Predictor = adapter

	var cache *inference.CachingPredictor
	if cfg.ResultCacheSizeBytes > 0 {
		cache = inference.NewCachingPredictor(predictor, cfg.ResultCacheSizeBytes, cfg.ResultCacheTTLSec)
		predictor = cache
		log.Info().Int("size_bytes", cfg.ResultCacheSizeBytes).Msg("Result cache enabled")
	}

	pages, err := loadTemplates()
	if err != nil {
		return nil, err
	}

	sessions, err := NewSessionPool(cfg.SessionCacheSize, cfg.SessionTTL(), func() *analysis.Controller {
		return analysis.NewController(predictor,
			analysis.WithStaleResultPolicy(policy),
			analysis.WithPreviewMaxDim(cfg.PreviewMaxDim),
			analysis.WithFailureMessage(MsgPredictionFailed),
		)
	})
	if err != nil {
		return nil, err
	}
	sessions.SecureCookie = cfg.AppEnv != "local"

	return &AppState{
		Config:    cfg,
		Pages:     pages,
		Sessions:  sessions,
		Predictor: predictor,
		Cache:     cache,
		Space:     space,
	}, nil
}

func newRouter(state *AppState) (*mux.Router, error) {
	static, err := staticHandler()
	if err != nil {
		return nil, err
	}

	r := mux.NewRouter()
	r.Use(requestIDMiddleware, accessLogMiddleware, recoveryMiddleware)

	r.HandleFunc("/", handleStaticPage(state, "home", "Home")).Methods("GET")
	r.HandleFunc("/about", handleStaticPage(state, "about", "About")).Methods("GET")
	r.HandleFunc("/conditions", handleStaticPage(state, "conditions", "Conditions Explained")).Methods("GET")
	r.HandleFunc("/analysis", handleAnalysisPage(state)).Methods("GET")
	r.HandleFunc("/analysis/stage", handleStage(state)).Methods("POST")
	r.HandleFunc("/analysis/predict", handlePredict(state)).Methods("POST")
	r.HandleFunc("/analysis/reset", handleReset(state)).Methods("POST")

	r.HandleFunc("/api/predict", handleAPIPredict(state)).Methods("POST")
	r.HandleFunc("/api/analysis", handleAPIAnalysis(state)).Methods("GET")
	r.PathPrefix("/static/").Handler(static).Methods("GET")
	state.addMonitoringRoutes(r)

	return r, nil
}

func (s *AppState) addMonitoringRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", handleHealthz).Methods("GET")
	r.HandleFunc("/readyz", s.handleReadyz).Methods("GET")
	r.HandleFunc("/metrics", s.handleMetrics).Methods("GET")
}

func waitForSignal() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	log.Info().Str("signal", s.String()).Msg("Shutting down")
}
