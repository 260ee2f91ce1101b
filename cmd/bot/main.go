package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"repschema/internal/bot"
	"repschema/internal/config"
	"repschema/internal/metrics"
	"repschema/internal/poller"
	"repschema/internal/schedule"
	"repschema/internal/teamup"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	// Initialize logger
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn().Err(err).Msg("failed to load .env")
	}

	cfg, err := config.Load(os.Getenv("BOT_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		logger.Warn().Str("level", cfg.Log.Level).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	logger = logger.Level(level)

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Msg("load timezone")
	}

	client := teamup.NewClient(cfg.TeamUp.BaseURL, cfg.TeamUp.Timezone, cfg.TeamUp.WindowDays, cfg.FetchTimeout(), &logger)
	var rdb *redis.Client
	if cfg.Redis.Address != "" && cfg.CacheTTL() > 0 {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		client.UseRedisCache(rdb, cfg.CacheTTL())
	}

	publisher, err := bot.New(cfg.Telegram.BotToken, cfg.Telegram.Debug, cfg.Telegram.SendRatePerSecond, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("create bot error")
	}
	logger.Info().Str("username", publisher.Username()).Msg("telegram bot authorized")

	reconciler := schedule.NewReconciler(schedule.Options{
		Locale:                       cfg.ScheduleLocale(),
		Location:                     loc,
		SuppressInitialNotifications: cfg.Schedule.SuppressInitialNotifications,
	})
	parser := schedule.NewParser(cfg.Schedule.Performer, &logger)

	p := poller.New(poller.Config{
		ScheduleChatID:     cfg.Telegram.ScheduleChatID,
		NotificationChatID: cfg.Telegram.NotificationChatID,
		ScheduleMessageID:  cfg.Telegram.ScheduleMessageID,
		WindowDays:         cfg.TeamUp.WindowDays,
		Interval:           cfg.PollInterval(),
		Location:           loc,
	}, client, parser, reconciler, publisher, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, p, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	logger.Info().
		Str("performer", cfg.Schedule.Performer).
		Str("timezone", cfg.TeamUp.Timezone).
		Int("window_days", cfg.TeamUp.WindowDays).
		Dur("interval", cfg.PollInterval()).
		Msg("schedule bot started")
	if err := p.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("poller error")
	}
}

func startHealthServer(ctx context.Context, port int, p *poller.Poller, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if err := p.Ready(); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			ctxPing, cancel := context.WithTimeout(ctx, time.Second)
			defer cancel()
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
