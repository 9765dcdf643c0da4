// Command meme-curator is the stream meme curation bot.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects the list store (a GitHub gist) and the media host (Cloudinary).
//   - Optionally connects to Postgres and records an audit log of list changes.
//   - Serves chat commands on Discord and/or Twitch.
//   - Exposes an HTTP server with /healthz, /readyz, /metrics and the /memes overlay feed.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/meme-curator/bot"
	"github.com/onnwee/meme-curator/chat"
	"github.com/onnwee/meme-curator/config"
	"github.com/onnwee/meme-curator/db"
	"github.com/onnwee/meme-curator/gist"
	"github.com/onnwee/meme-curator/media"
	"github.com/onnwee/meme-curator/server"
	"github.com/onnwee/meme-curator/telemetry"
)

const version = "1.0.0"

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("err", err))
		os.Exit(1)
	}
	if !cfg.RequireModerator {
		slog.Warn("moderator check disabled: anyone in the channel may approve and delete memes. Set MOD_ROLE_ID for production")
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("meme-curator", version)
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB (optional audit log)
	var database *sql.DB
	var opts []bot.Option
	if cfg.DBDsn != "" {
		database, err = db.Connect(ctx, cfg.DBDsn)
		if err != nil {
			slog.Error("failed to open db", slog.Any("err", err))
			os.Exit(1)
		}
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
		slog.Info("running database migrations", slog.String("component", "db_migrate"))
		if err := db.Migrate(ctx, database); err != nil {
			slog.Error("failed to migrate db", slog.Any("err", err))
			os.Exit(1)
		}
		opts = append(opts, bot.WithAuditor(&db.AuditLog{DB: database}))
	} else {
		slog.Info("audit log disabled (DB_DSN not set)")
	}

	store, err := gist.New(ctx, gist.Options{
		GistID:   cfg.GistID,
		Token:    cfg.GistToken,
		Filename: cfg.GistFilename,
		BaseURL:  cfg.GitHubAPIURL,
		Timeout:  cfg.HTTPTimeout,
	})
	if err != nil {
		slog.Error("gist client init failed", slog.Any("err", err))
		os.Exit(1)
	}
	host, err := media.New(media.Options{
		CloudName:           cfg.CloudName,
		APIKey:              cfg.CloudAPIKey,
		APISecret:           cfg.CloudAPISecret,
		Folder:              cfg.MediaFolder,
		DestroyResourceType: cfg.DestroyResourceType,
		Timeout:             cfg.HTTPTimeout,
	})
	if err != nil {
		slog.Error("cloudinary client init failed", slog.Any("err", err))
		os.Exit(1)
	}

	botCfg := bot.Config{
		Channels:         map[string]string{},
		RequireModerator: cfg.RequireModerator,
		ModRoles:         map[string][]string{},
	}
	if cfg.ChannelID != "" {
		botCfg.Channels[chat.PlatformDiscord] = cfg.ChannelID
	}
	if cfg.ModRoleID != "" {
		botCfg.ModRoles[chat.PlatformDiscord] = []string{cfg.ModRoleID}
	}
	if cfg.TwitchEnabled() {
		botCfg.Channels[chat.PlatformTwitch] = strings.ToLower(cfg.TwitchChannel)
		botCfg.ModRoles[chat.PlatformTwitch] = cfg.TwitchModBadges
	}
	dispatcher := bot.New(botCfg, store, host, opts...)

	var wg sync.WaitGroup
	var connected []func() bool
	if cfg.DiscordToken != "" {
		dc, err := chat.NewDiscord(cfg.DiscordToken, dispatcher)
		if err != nil {
			slog.Error("discord init failed", slog.Any("err", err))
			os.Exit(1)
		}
		connected = append(connected, dc.Connected)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := dc.Start(ctx); err != nil {
				slog.Error("discord adapter exited", slog.Any("err", err))
				stop()
			}
		}()
	}
	if cfg.TwitchEnabled() {
		tw := chat.NewTwitch(chat.TwitchConfig{Channel: cfg.TwitchChannel, Username: cfg.TwitchBotUsername, OAuth: cfg.TwitchOAuthToken}, dispatcher)
		connected = append(connected, tw.Connected)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := tw.Start(ctx); err != nil {
				slog.Error("twitch adapter exited", slog.Any("err", err))
				stop()
			}
		}()
	}

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	// HTTP server (health/readiness/metrics/overlay feed)
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := server.Start(ctx, cfg.HTTPAddr, server.Deps{
			Store: store,
			DB:    database,
			ChatConnected: func() bool {
				for _, c := range connected {
					if c() {
						return true
					}
				}
				return false
			},
			CORSOrigins: cfg.CORSOrigins,
			FeedTTL:     cfg.FeedCacheTTL,
		})
		if err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
	wg.Wait()
}
