package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"time"

	"quranchat/internal/app"
	"quranchat/internal/config"
	"quranchat/internal/ratelimit"
	"quranchat/internal/server"
	"quranchat/internal/tools"
	"quranchat/internal/usertoken"
	"quranchat/internal/util"
	"quranchat/pkg/ai"
	"quranchat/pkg/queue"
	"quranchat/pkg/quran"
	"quranchat/pkg/storage"
	"quranchat/pkg/store"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}
	cors := util.NewCORS(cfg.AllowedOrigins)

	var tokenVerifier *usertoken.Verifier
	if cfg.AuthJWTSecret != "" {
		leeway, err := config.ParseJWTLeeway(cfg.AuthJWTLeeway)
		if err != nil {
			log.Fatalf("failed to parse jwt leeway: %v", err)
		}
		tokenVerifier, err = usertoken.NewVerifier(usertoken.Config{
			Secret:   cfg.AuthJWTSecret,
			Issuer:   cfg.AuthJWTIssuer,
			Audience: cfg.AuthJWTAudience,
			Leeway:   leeway,
		})
		if err != nil {
			log.Fatalf("failed to init token verifier: %v", err)
		}
	}

	gemini, err := ai.NewGeminiClient(cfg.GeminiAPIKey)
	if err != nil {
		log.Fatalf("failed to init gemini client: %v", err)
	}

	var quranOpts []quran.Option
	if cfg.QuranBaseURL != "" {
		quranOpts = append(quranOpts, quran.WithBaseURL(cfg.QuranBaseURL))
	}
	quranClient := quran.NewClient(quranOpts...)
	executor := tools.NewExecutor(quranClient, cfg.TranslationID)

	var st store.Store
	if cfg.DatabaseURL != "" {
		gs, err := store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to init database store: %v", err)
		}
		st = gs
	} else {
		st = store.NewMemoryStore()
		slog.Warn("no databaseURL configured, conversations are in-memory only")
	}

	chatLimiter, err := newLimiter(cfg, "chat", cfg.ChatRateLimitPerMinute)
	if err != nil {
		log.Fatalf("failed to init chat limiter: %v", err)
	}
	imageLimiter, err := newLimiter(cfg, "image", cfg.ImageRateLimitPerMinute)
	if err != nil {
		log.Fatalf("failed to init image limiter: %v", err)
	}

	var publisher app.TurnPublisher
	if cfg.RedisAddr != "" {
		turnQueue, err := queue.NewRedisTurnQueue(queue.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			log.Fatalf("failed to init turn queue: %v", err)
		}
		turnQueue.Start(context.Background(), func(ctx context.Context, turn queue.Turn) error {
			if err := st.AppendMessage(turn.ConversationID, turn.UserMessage); err != nil {
				return err
			}
			return st.AppendMessage(turn.ConversationID, turn.ModelMessage)
		})
		publisher = turnQueue
	}

	var cache storage.ImageCache
	if cfg.MinioEndpoint != "" {
		mc, err := storage.NewMinioImageCache(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("failed to init image cache: %v", err)
		}
		cache = mc
	}

	var imageModel ai.ImageModel
	if cfg.ImageModel != "" {
		imageModel = gemini
	}

	appCore, err := app.New(app.Options{
		Model:      gemini,
		ChatModel:  cfg.ChatModel,
		Image:      imageModel,
		ImageModel: cfg.ImageModel,
		Executor:   executor,
		Store:      st,
		Publisher:  publisher,
		Cache:      cache,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer := server.New(server.Config{
		App:            appCore,
		Store:          st,
		TokenVerifier:  tokenVerifier,
		CORS:           cors,
		TrustedProxies: trusted,
		ChatLimiter:    chatLimiter,
		ImageLimiter:   imageLimiter,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("quranchat server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}

func newLimiter(cfg config.FileConfig, prefix string, perMinute int) (ratelimit.Limiter, error) {
	if perMinute <= 0 {
		return nil, nil
	}
	if cfg.RedisAddr != "" {
		return ratelimit.NewRedisLimiter(cfg.RedisAddr, cfg.RedisPassword, prefix, perMinute, time.Minute)
	}
	return ratelimit.NewMemoryLimiter(perMinute, time.Minute)
}
