package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gwi.com/ai-chat/internal/api"
	"gwi.com/ai-chat/internal/auth"
	"gwi.com/ai-chat/internal/config"
	"gwi.com/ai-chat/internal/core"
	"gwi.com/ai-chat/internal/store"
)

func openKV(ctx context.Context, cfg config.Config) (store.KV, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendRedis:
		return store.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword)
	case config.StoreBackendMemory:
		return store.NewMemoryStore(), nil
	default:
		return store.NewSQLiteStore(cfg.DatabaseURL)
	}
}

func main() {
	// Load configuration
	config.LoadConfig()

	// Setup logging
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if config.AppConfig.Debug() {
		log.Println("Service starting in DEBUG mode")
	}

	setAPIKeyFlag := flag.String("set-api-key", "", "Store the provider API key and exit")
	flag.Parse()

	ctx := context.Background()

	kv, err := openKV(ctx, config.AppConfig)
	if err != nil {
		log.Fatalf("Failed to initialize %s store: %v", config.AppConfig.StoreBackend, err)
	}
	defer kv.Close()

	llm, err := core.NewLLMProvider(config.AppConfig)
	if err != nil {
		log.Fatalf("Failed to initialize LLM provider: %v", err)
	}

	settings := store.NewSettingsStore(kv, llm.APIKeyPrefix())

	if *setAPIKeyFlag != "" {
		if err := settings.SetAPIKey(ctx, *setAPIKeyFlag); err != nil {
			log.Fatalf("Failed to store API key: %v", err)
		}
		log.Println("API key stored. Exiting.")
		kv.Close()
		os.Exit(0)
	}

	// A key from the environment wins over whatever was stored earlier.
	if config.AppConfig.OpenAIAPIKey != "" {
		if err := settings.SetAPIKey(ctx, config.AppConfig.OpenAIAPIKey); err != nil {
			log.Printf("Ignoring OPENAI_API_KEY from environment: %v", err)
		}
	}

	messages := store.NewMessageStore(kv)
	chatService := core.NewChatService(
		store.NewCredentialStore(kv, auth.BcryptHasher{}),
		store.NewChatStore(kv, messages),
		messages,
		settings,
		llm,
		core.DefaultRouter(),
	)

	apiHandler := api.NewAPIHandler(chatService,
		api.NewSendLimiter(config.AppConfig.SendRatePerMinute, config.AppConfig.SendRateBurst))
	router := api.NewRouter(apiHandler)

	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: config.AppConfig.LLMTimeout + 15*time.Second, // outlive the provider call
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Starting server on %s (store=%s, provider=%s). Press Ctrl+C to quit.",
			serverAddr, config.AppConfig.StoreBackend, llm.Name())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting gracefully")
}
