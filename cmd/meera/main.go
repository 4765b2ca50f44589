package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/antoniostano/meera/internal/brain"
	"github.com/antoniostano/meera/internal/config"
	"github.com/antoniostano/meera/internal/httpapi"
	"github.com/antoniostano/meera/internal/memory"
	"github.com/antoniostano/meera/internal/observability"
	"github.com/antoniostano/meera/internal/pipeline"
	"github.com/antoniostano/meera/internal/session"
	"github.com/antoniostano/meera/internal/store"
	"github.com/antoniostano/meera/internal/voice"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	if cfg.TracingAPIKey == "" {
		log.Printf("tracing disabled: LANGCHAIN_API_KEY is not set")
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	chatStore, err := store.NewStore(ctx, cfg.DatabaseURL, cfg.ChatStoreDir)
	if err != nil {
		log.Fatalf("chat store init failed: %v", err)
	}
	defer chatStore.Close()
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		log.Printf("chat store: postgres")
	} else {
		log.Printf("chat store: file (%s)", cfg.ChatStoreDir)
	}

	memoryClient := memory.NewClient(cfg.Mem0BaseURL, cfg.Mem0APIKey, cfg.MemoryTimeout)
	if _, disabled := memoryClient.(*memory.NoopClient); disabled {
		log.Printf("semantic memory: disabled (no credentials)")
	} else {
		log.Printf("semantic memory: %s", cfg.Mem0BaseURL)
	}

	adapter, err := brain.NewAdapter(brain.Config{
		Mode:      cfg.BrainMode,
		APIKey:    cfg.NebiusAPIKey,
		BaseURL:   cfg.NebiusBaseURL,
		ModelName: cfg.NebiusModelName,
		Timeout:   cfg.BrainTimeout,
	})
	switch {
	case err == nil:
		log.Printf("brain: %s (%s)", cfg.NebiusModelName, cfg.BrainMode)
	case errors.Is(err, brain.ErrNotConfigured):
		// Degraded mode: transcript, persistence and memory keep working;
		// every submitted turn gets a model-unavailable notice instead of a
		// reply.
		adapter = nil
		log.Printf("brain unavailable, running degraded: %v", err)
	default:
		log.Fatalf("brain adapter init failed: %v", err)
	}

	tts, err := voice.NewProvider(cfg.TTSMode, cfg.TTSURL, cfg.TTSSpeaker, cfg.TTSTimeout)
	if err != nil {
		log.Fatalf("tts provider init failed: %v", err)
	}
	if tts == nil {
		log.Printf("tts: disabled")
	} else {
		log.Printf("tts: %s", cfg.TTSMode)
	}

	sessions := session.NewManager(chatStore)
	sessions.SetLoadFallbackHook(func(username string, err error) {
		metrics.StorageEvents.WithLabelValues("load_fallback").Inc()
		log.Printf("history load failed for %q, starting empty: %v", username, err)
	})

	assembler := pipeline.NewAssembler(sessions, memoryClient, metrics, cfg.MemoryTopK, cfg.HistoryWindow, cfg.MemoryTimeout)
	turns := pipeline.New(sessions, assembler, adapter, chatStore, memoryClient, metrics, cfg.BrainTimeout, cfg.MemoryTimeout)

	api := httpapi.New(cfg, turns, sessions, tts, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
