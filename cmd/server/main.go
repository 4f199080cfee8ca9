package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	elftherapist "github.com/MegaGrindStone/elf-therapist"
	"github.com/MegaGrindStone/elf-therapist/internal/handlers"
	"github.com/MegaGrindStone/elf-therapist/internal/metrics"
	"github.com/MegaGrindStone/elf-therapist/internal/middleware"
	"github.com/MegaGrindStone/elf-therapist/internal/services"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found, using environment variables")
	}

	cfgFilePath, err := configPath()
	if err != nil {
		logger.Error("Failed to locate config", slog.String("err", err.Error()))
		os.Exit(1)
	}
	cfg, err := loadConfig(cfgFilePath)
	if err != nil {
		logger.Error("Failed to load config",
			slog.String("path", cfgFilePath),
			slog.String("err", err.Error()))
		os.Exit(1)
	}

	llm, err := cfg.LLM.llm(logger)
	if err != nil {
		logger.Error("Failed to create LLM", slog.String("err", err.Error()))
		os.Exit(1)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		logger.Error("Failed to create data directory", slog.String("err", err.Error()))
		os.Exit(1)
	}
	boltDB, err := services.NewBoltDB(cfg.DBPath)
	if err != nil {
		logger.Error("Failed to open store", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer boltDB.Close()

	m, err := handlers.NewMain(llm, boltDB, handlers.Options{
		SystemPrompt: cfg.SystemPrompt,
		Therapists:   cfg.Therapists,
		Provider:     cfg.LLM.provider(),
		Timeout:      cfg.Timeout,
	}, logger)
	if err != nil {
		logger.Error("Failed to create handlers", slog.String("err", err.Error()))
		os.Exit(1)
	}

	metrics.MustRegister()

	router, err := newRouter(m, cfg.CORSOrigins, cfg.ImagesDir)
	if err != nil {
		logger.Error("Failed to create router", slog.String("err", err.Error()))
		os.Exit(1)
	}

	// Replies are streamed, so there is no write timeout.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Channel to listen for errors coming from the listener
	serverErrors := make(chan error, 1)

	go func() {
		logger.Info("Server starting",
			slog.String("addr", srv.Addr),
			slog.String("provider", cfg.LLM.provider()),
			slog.String("db", cfg.DBPath))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", slog.String("err", err.Error()))
		}

	case sig := <-shutdown:
		logger.Info("Start shutdown", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Graceful shutdown failed", slog.String("err", err.Error()))
			if err := srv.Close(); err != nil {
				logger.Error("Forcing server close", slog.String("err", err.Error()))
			}
		}
	}
	logger.Info("Server stopped")
}

// newRouter wires the handlers. Character images are served from imagesDir on disk, everything else
// under /static/ comes from the embedded files.
func newRouter(m handlers.Main, corsOrigins []string, imagesDir string) (http.Handler, error) {
	staticFS, err := fs.Sub(elftherapist.StaticFS, "static")
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(corsOrigins))

	r.Get("/", m.HandleHome)
	r.Get("/session", m.HandleSession)
	r.Post("/chat", m.HandleChat)
	r.Handle("/metrics", metrics.Handler())
	r.Handle("/static/images/*", http.StripPrefix("/static/images/", http.FileServer(http.Dir(imagesDir))))
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))

	return r, nil
}
