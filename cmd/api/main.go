package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"github.com/Projet-annuel-5A/api-middleware/internal/config"
	"github.com/Projet-annuel-5A/api-middleware/internal/diarize"
	"github.com/Projet-annuel-5A/api-middleware/internal/fanout"
	"github.com/Projet-annuel-5A/api-middleware/internal/logger"
	"github.com/Projet-annuel-5A/api-middleware/internal/media"
	"github.com/Projet-annuel-5A/api-middleware/internal/pipeline"
	"github.com/Projet-annuel-5A/api-middleware/internal/server"
	"github.com/Projet-annuel-5A/api-middleware/internal/storage"
	"github.com/Projet-annuel-5A/api-middleware/internal/store"
	"github.com/Projet-annuel-5A/api-middleware/internal/transcribe"
)

func main() {
	_ = godotenv.Load() // loads .env

	log := logger.New()
	log.WithField("service", "api-middleware").Info("starting service")

	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	records, err := store.New(ctx, cfg.DatabaseURL, log.WithField("component", "store"))
	cancel()
	if err != nil {
		log.WithError(err).Fatal("failed to connect to the interview database")
	}
	defer records.Close()

	objects := storage.NewClient(cfg.SupabaseURL, cfg.SupabaseKey, cfg.Bucket, log.WithField("component", "storage"))

	diarizer := diarize.NewClient(cfg.DiarizationURL, cfg.WhisperAPIKey, cfg.Language, cfg.NumSpeakers,
		5*time.Minute, log.WithField("component", "diarize"))
	transcriber := transcribe.NewWhisper(cfg.TranscriptionURL, cfg.WhisperAPIKey, cfg.TranscriptionModel,
		cfg.Language, log.WithField("component", "transcribe"))

	dispatcher, err := fanout.NewDispatcher(&http.Client{Timeout: cfg.RequestTimeout}, log.WithField("component", "fanout"))
	if err != nil {
		log.WithError(err).Fatal("failed to build the analysis dispatcher")
	}

	pre := pipeline.NewPreprocessor(cfg, objects, records, diarizer, transcriber, media.FFmpeg{})
	pred := pipeline.NewPredictor(cfg, objects, records, dispatcher)

	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.New(pre, pred).Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	log.WithField("addr", addr).Info("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("server terminated")
	}
}
