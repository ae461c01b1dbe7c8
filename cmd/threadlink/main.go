package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"threadlink/internal/api"
	"threadlink/internal/config"
	"threadlink/internal/notify"
	"threadlink/internal/preview"
	"threadlink/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// --- Configuration Loading ---
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger Setup ---
	log, err := cfg.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %v\n", err)
		os.Exit(1)
	}
	log.SetOutput(os.Stdout)

	log.WithFields(logrus.Fields{
		"badgerdb_path":  cfg.BadgerDBPath,
		"listen_addr":    cfg.ListenAddr,
		"remote_preview": cfg.PreviewServiceURL != "",
		"telegram":       cfg.TelegramEnabled(),
	}).Info("Configuration loaded successfully")

	// --- Initialize Components ---
	repo, err := storage.NewBadgerRepository(cfg.BadgerDBPath, log)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		log.Info("Closing database...")
		if err := repo.Close(); err != nil {
			log.WithError(err).Error("Error closing database")
		}
	}()

	notifier := notify.Multi{notify.NewLogNotifier(log)}
	if cfg.TelegramEnabled() {
		tg, err := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID, log)
		if err != nil {
			log.WithError(err).Warn("Telegram notifications disabled")
		} else {
			notifier = append(notifier, tg)
		}
	}

	var source preview.Fetcher
	if cfg.PreviewServiceURL != "" {
		source = preview.NewClient(cfg.PreviewServiceURL, cfg.ScrapeTimeout)
	} else {
		source = preview.NewRodFetcher(log, cfg.ScrapeTimeout)
	}
	fetcher := preview.NewCachedFetcher(source, repo, cfg.PreviewCacheTTL, log)

	// Thread detail API under /threads, link metadata service everywhere else.
	router := mux.NewRouter()
	router.PathPrefix("/threads").Handler(api.NewServer(repo, fetcher, notifier, log))
	router.PathPrefix("/").Handler(preview.NewServer(fetcher, log))

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// --- Application Startup ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("threadlink listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("HTTP server stopped unexpectedly")
			notifier.Notify(notify.Error, "threadlink stopped: "+err.Error())
			stop()
		}
	}()

	<-ctx.Done()

	// --- Graceful Shutdown ---
	log.Info("Shutting down threadlink...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Error shutting down HTTP server")
	}

	log.Info("threadlink shut down gracefully.")
}
