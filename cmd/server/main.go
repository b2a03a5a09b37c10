// Command server runs the chat history HTTP API.
//
// Startup order: environment (.env), configuration, logging, tracing, the
// SQLite store, the LLM provider, services, then the Gin router. A store
// that cannot be opened is not fatal: the server keeps running with chat
// history disabled and completions still served.
//
// @title       Chat History API
// @version     1.0
// @description Chat history store (users, projects, chats with fork and duplicate) and a streamed LLM completion endpoint.
// @BasePath    /api
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-chat-history/internal/config"
	httpapi "github.com/tbourn/go-chat-history/internal/http"
	"github.com/tbourn/go-chat-history/internal/llm"
	"github.com/tbourn/go-chat-history/internal/observability"
	"github.com/tbourn/go-chat-history/internal/services"
	"github.com/tbourn/go-chat-history/internal/store"
	"github.com/tbourn/go-chat-history/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	lg, closeLog, err := sysutil.NewLogger(sysutil.LogOptions{
		Pretty: cfg.LogPretty || sysutil.IsTruthy(os.Getenv("DEV")),
		File:   cfg.LogFile,
		MaxAge: cfg.LogMaxAge,
	})
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.LogFile).Msg("log file")
	}
	defer closeLog.Close()
	log.Logger = lg
	level := sysutil.SetLogLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Error().Err(err).Msg("tracing disabled")
	}

	st := openStore(ctx, cfg, level)
	defer st.Close()

	provider, err := llm.New(ctx, llm.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
		Model:    cfg.LLM.Model,
	})
	if err != nil {
		log.Fatal().Err(err).Str("provider", cfg.LLM.Provider).Msg("llm provider")
	}

	chats := services.NewChatService(st)
	chats.InheritOwner = cfg.InheritForkOwner

	completions := services.NewCompletionService(provider)
	completions.MaxSegments = cfg.LLM.MaxSegments
	completions.MaxTokens = cfg.LLM.MaxTokens

	gin.SetMode(sysutil.FirstNonEmpty(cfg.GinMode, gin.ReleaseMode))
	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Services{
		Chats:       chats,
		Projects:    services.NewProjectService(st),
		Users:       services.NewUserService(st),
		Completions: completions,
		Idempotency: services.NewIdempotencyService(st, cfg.IdempotencyTTL),
	}, cfg)

	srv := &http.Server{
		Addr:              sysutil.ListenAddr(cfg.Port),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("version", version).
			Str("llm", provider.Name()).
			Bool("history", st.Available()).
			Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	// Streams in flight get the write timeout to finish, capped at 30s.
	grace := min(cfg.WriteTimeout, 30*time.Second)
	sctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := shutdownOTel(sctx); err != nil {
		log.Warn().Err(err).Msg("otel shutdown")
	}
}

// openStore opens the history database. Failure is logged and yields a nil
// store, which the services treat as disabled persistence.
func openStore(ctx context.Context, cfg config.Config, level zerolog.Level) *store.Store {
	opts := []store.Option{}
	if level <= zerolog.DebugLevel {
		opts = append(opts, store.WithLogLevel(logger.Info))
	}
	if cfg.OTEL.Enabled {
		opts = append(opts, store.WithTracing())
	}
	st, err := store.Open(ctx, cfg.DBPath, opts...)
	if err != nil {
		log.Error().Err(err).Str("path", cfg.DBPath).Msg("chat history disabled")
		return nil
	}
	log.Info().Str("path", cfg.DBPath).Msg("chat history store ready")
	return st
}
