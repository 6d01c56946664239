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

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"clearr.app/backend/internal/api"
	"clearr.app/backend/internal/auth"
	"clearr.app/backend/internal/config"
	"clearr.app/backend/internal/core"
	"clearr.app/backend/internal/ratelimit"
	"clearr.app/backend/internal/store"
	"clearr.app/backend/internal/utils"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:           "clearr-server",
	Short:         "Clearr message translation API",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if configFile != "" {
			_ = os.Setenv("CONFIG_FILE", configFile)
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		s, err := store.Open(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		logger.Info("database schema is up to date", zap.Bool("postgres", store.IsPostgresURL(cfg.DatabaseURL)))
		return s.Close()
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file (overrides CONFIG_FILE)")
	rootCmd.AddCommand(serveCmd, migrateCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func bootstrap() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.LogLevel, cfg.AppEnv)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

// closer collects shutdown hooks in reverse order of creation.
type closer []func() error

func (c *closer) add(fn func() error) { *c = append(*c, fn) }

func (c closer) closeAll(logger *zap.Logger) {
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			logger.Warn("shutdown hook failed", zap.Error(err))
		}
	}
}

func runServe(ctx context.Context) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	var closers closer
	defer closers.closeAll(logger)

	s, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	closers.add(s.Close)

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		closers.add(rdb.Close)
	}

	generator, err := newGenerator(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if llm, ok := generator.(*core.LLMService); ok {
		closers.add(func() error { llm.Close(); return nil })
	}

	verifier, err := newVerifier(cfg, rdb, logger)
	if err != nil {
		return err
	}

	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL)
	deps := api.Deps{
		Tokens:      issuer,
		Logger:      logger,
		Development: cfg.IsDevelopment(),
	}
	if rdb != nil {
		limiter, err := ratelimit.New(rdb, "clearr:ratelimit:otp", cfg.OTPRateLimit, cfg.OTPRateWindow)
		if err != nil {
			return fmt.Errorf("init otp limiter: %w", err)
		}
		deps.OTPLimiter = limiter
	} else {
		logger.Warn("REDIS_ADDR not set, OTP routes are not rate limited")
	}

	modes := core.NewModeService(s, logger, time.Now)
	deps.Modes = modes
	deps.Users = core.NewUserService(s, logger, time.Now)
	deps.Auth = core.NewAuthService(s, verifier, issuer, logger, time.Now)
	deps.Translations = core.NewTranslationService(s, modes, generator, cfg.GenerationTimeout, logger, time.Now)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.NewRouter(api.NewHandler(deps)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.GenerationTimeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening",
			zap.String("addr", srv.Addr),
			zap.String("llm_provider", cfg.LLMProvider),
			zap.String("verify_provider", cfg.VerifyProvider),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on %s: %w", srv.Addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newGenerator(ctx context.Context, cfg config.Config, logger *zap.Logger) (core.Generator, error) {
	switch cfg.LLMProvider {
	case config.ProviderOpenAI:
		return core.NewOpenAIGenerator(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.GenerationTimeout), nil
	default:
		llm, err := core.NewLLMService(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, logger)
		if err != nil {
			return nil, fmt.Errorf("init gemini: %w", err)
		}
		return llm, nil
	}
}

func newVerifier(cfg config.Config, rdb *redis.Client, logger *zap.Logger) (core.PhoneVerifier, error) {
	switch cfg.VerifyProvider {
	case config.VerifyAliyun:
		v, err := auth.NewAliyunVerifier(auth.AliyunConfig{
			AccessKeyID:     cfg.AliyunAccessKeyID,
			AccessKeySecret: cfg.AliyunAccessKeySecret,
			SignName:        cfg.AliyunSignName,
			TemplateCode:    cfg.AliyunTemplateCode,
			CountryCode:     cfg.AliyunCountryCode,
		})
		if err != nil {
			return nil, fmt.Errorf("init aliyun verifier: %w", err)
		}
		return v, nil
	case config.VerifyLocal:
		if rdb == nil {
			return nil, errors.New("local verifier requires REDIS_ADDR")
		}
		return auth.NewRedisOTPVerifier(rdb, logger, nil), nil
	default:
		return auth.NewTwilioVerifier(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioServiceSID, 10*time.Second), nil
	}
}
