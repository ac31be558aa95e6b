// Command bridge runs the scrobble bridge. It follows the audio node's event
// stream, submits plays to Last.fm for every eligible listener and serves
// the account-link HTTP API.

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"Scrobble-Bridge-Go/pkg/audionode"
	"Scrobble-Bridge-Go/pkg/config"
	"Scrobble-Bridge-Go/pkg/db"
	"Scrobble-Bridge-Go/pkg/deezer"
	"Scrobble-Bridge-Go/pkg/handlers"
	"Scrobble-Bridge-Go/pkg/lastfm"
	"Scrobble-Bridge-Go/pkg/metrics"
	"Scrobble-Bridge-Go/pkg/scrobble"
	"Scrobble-Bridge-Go/pkg/session"
	"Scrobble-Bridge-Go/pkg/spotify"
)

const shutdownTimeout = 5 * time.Second

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	log.SetLevel(cfg.LogLevel)

	database, err := db.New(cfg.DatabasePath)
	if err != nil {
		log.WithError(err).Fatal("failed to open database")
	}
	defer database.Close()

	sessions := session.NewCache(database)
	marks := session.NewMarks()

	registry := prometheus.NewRegistry()
	mset := metrics.New(registry)

	lfm := &lastfm.Client{Key: cfg.LastFM.Key, Secret: cfg.LastFM.Secret}

	tokens := spotify.NewTokenCache(cfg.Spotify.ClientID, cfg.Spotify.ClientSecret, log)
	tokens.Metrics = mset
	catalog := spotify.NewClient(tokens, log)

	pipeline := &scrobble.Pipeline{
		Gate: &scrobble.Gate{Sessions: sessions, Marks: marks, Log: log, Metrics: mset},
		Submitter: &scrobble.Submitter{
			Provider: lfm,
			Store:    database,
			Cache:    sessions,
			Marks:    marks,
			Log:      log,
			Metrics:  mset,
		},
		Marks:   marks,
		Log:     log,
		Metrics: mset,
	}

	node := &audionode.Listener{
		URL:      cfg.AudioNode.URL,
		Password: cfg.AudioNode.Password,
		Sink:     pipeline,
		Log:      log,
	}
	pipeline.Voice = node.VoiceConnected

	app := &handlers.Application{
		Accounts:         lfm,
		Artwork:          &deezer.Client{},
		Catalog:          catalog,
		Store:            database,
		Sessions:         sessions,
		Log:              log,
		Registry:         registry,
		Ready:            database.PingContext,
		LinkPollAttempts: cfg.LinkPollAttempts,
		LinkPollInterval: cfg.LinkPollInterval,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := node.Run(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Error("audio node listener stopped")
		}
	}()

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: app.Routes()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("server shutdown")
		}
	}()

	log.WithField("addr", cfg.ListenAddr).Info("scrobble bridge listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("server failed")
	}
}
