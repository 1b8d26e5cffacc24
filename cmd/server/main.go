package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ainotes"
)

func newMux(h *handler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.handleHealth)

	mux.HandleFunc("GET /notes", h.handleListNotes)
	mux.HandleFunc("POST /notes", h.handleCreateNote)
	mux.HandleFunc("POST /notes/import", h.handleImportNote)
	mux.HandleFunc("GET /notes/{id}", h.handleGetNote)
	mux.HandleFunc("PUT /notes/{id}", h.handleUpdateNote)
	mux.HandleFunc("DELETE /notes/{id}", h.handleDeleteNote)
	mux.HandleFunc("POST /notes/{id}/favourite", h.handleToggleFavourite)
	mux.HandleFunc("GET /notes/{id}/tags", h.handleGetNoteTags)
	mux.HandleFunc("PUT /notes/{id}/tags", h.handleSetNoteTags)

	mux.HandleFunc("GET /tags", h.handleListTags)
	mux.HandleFunc("PUT /tags/{id}", h.handleRenameTag)
	mux.HandleFunc("DELETE /tags/{id}", h.handleDeleteTag)

	mux.HandleFunc("POST /rag/ask", h.handleAsk)
	mux.HandleFunc("POST /rag/ask/stream", h.handleAskStream)
	mux.HandleFunc("POST /rag/reindex", h.handleReindexStart)
	mux.HandleFunc("GET /rag/reindex", h.handleReindexStatus)

	return mux
}

func main() {
	configPath := flag.String("config", "", "Path to config file (JSON)")
	addr := flag.String("addr", ":8080", "Listen address")
	flag.Parse()

	// Structured JSON logging.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// Local .env is optional.
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded .env")
	}

	cfg := ainotes.DefaultConfig()
	if *configPath != "" {
		f, err := os.Open(*configPath)
		if err != nil {
			slog.Error("opening config", "error", err)
			os.Exit(1)
		}
		if err := json.NewDecoder(f).Decode(&cfg); err != nil {
			f.Close()
			slog.Error("parsing config", "error", err)
			os.Exit(1)
		}
		f.Close()
	}
	cfg.ApplyEnv()

	apiKey := os.Getenv("AINOTES_API_KEY")
	corsOrigins := os.Getenv("AINOTES_CORS_ORIGINS")

	svc, err := ainotes.New(cfg)
	if err != nil {
		slog.Error("creating service", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	if ok, msg := svc.CheckLLM(context.Background()); !ok {
		slog.Warn("LLM backend not reachable at startup", "status", msg)
	}

	h := newHandler(svc)
	mux := newMux(h)

	// Middleware chain: recovery -> cors -> auth -> logging -> mux
	var handler http.Handler = mux
	handler = logMiddleware(handler)
	handler = authMiddleware(apiKey, handler)
	handler = corsMiddleware(corsOrigins, handler)
	handler = recoveryMiddleware(handler)

	srv := &http.Server{
		Addr:         *addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming answers can run for minutes
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}
