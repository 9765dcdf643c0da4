// Package config loads environment variables and provides a typed Config used across the service.
// Optional values disable features (Twitch chat, audit log, tracing) rather than failing;
// use Validate before starting the bot.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultMediaFolder is the media host folder approved images are placed in.
const DefaultMediaFolder = "stream_memes"

type Config struct {
	// Discord
	DiscordToken string
	// ChannelID restricts the bot to one channel; empty serves all channels.
	ChannelID string
	// ModRoleID is the role required for mutating commands.
	ModRoleID string
	// RequireModerator gates !aprobado and !borrar behind ModRoleID.
	RequireModerator bool

	// Twitch (optional second platform)
	TwitchChannel     string
	TwitchBotUsername string
	TwitchOAuthToken  string
	// TwitchModBadges are the chat badges treated as moderator on Twitch.
	TwitchModBadges []string

	// Cloudinary
	CloudName           string
	CloudAPIKey         string
	CloudAPISecret      string
	MediaFolder         string
	DestroyResourceType string

	// Gist document store
	GistID       string
	GistToken    string
	GistFilename string
	GitHubAPIURL string

	// HTTP
	HTTPAddr    string
	HTTPTimeout time.Duration
	CORSOrigins []string
	// FeedCacheTTL is how long /memes serves a cached list before refetching.
	FeedCacheTTL time.Duration

	// Database (optional audit log)
	DBDsn string
}

// Load reads environment variables and applies defaults.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.DiscordToken = os.Getenv("DISCORD_TOKEN")
	cfg.ChannelID = strings.TrimSpace(os.Getenv("CHANNEL_ID"))
	cfg.ModRoleID = strings.TrimSpace(os.Getenv("MOD_ROLE_ID"))
	// Open by default: without a moderator role anyone may approve and delete.
	cfg.RequireModerator = cfg.ModRoleID != ""
	if v := os.Getenv("REQUIRE_MODERATOR"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid REQUIRE_MODERATOR: %w", err)
		}
		cfg.RequireModerator = b
	}

	cfg.TwitchChannel = strings.TrimPrefix(os.Getenv("TWITCH_CHANNEL"), "#")
	cfg.TwitchBotUsername = os.Getenv("TWITCH_BOT_USERNAME")
	cfg.TwitchOAuthToken = os.Getenv("TWITCH_OAUTH_TOKEN")
	cfg.TwitchModBadges = []string{"moderator", "broadcaster"}
	if v := os.Getenv("TWITCH_MOD_BADGES"); v != "" {
		cfg.TwitchModBadges = splitList(v)
	}

	cfg.CloudName = os.Getenv("CLOUD_NAME")
	cfg.CloudAPIKey = os.Getenv("API_KEY")
	cfg.CloudAPISecret = os.Getenv("API_SECRET")
	cfg.MediaFolder = os.Getenv("MEDIA_FOLDER")
	if cfg.MediaFolder == "" {
		cfg.MediaFolder = DefaultMediaFolder
	}
	cfg.DestroyResourceType = os.Getenv("CLOUDINARY_DESTROY_RESOURCE_TYPE")
	if cfg.DestroyResourceType == "" {
		cfg.DestroyResourceType = "auto"
	}

	cfg.GistID = os.Getenv("GIST_ID")
	cfg.GistToken = os.Getenv("GIST_TOKEN")
	cfg.GistFilename = os.Getenv("GIST_FILENAME")
	cfg.GitHubAPIURL = os.Getenv("GITHUB_API_URL")

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	cfg.HTTPTimeout = 30 * time.Second
	if v := os.Getenv("HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
		}
		cfg.HTTPTimeout = d
	}
	cfg.FeedCacheTTL = 5 * time.Second
	if v := os.Getenv("FEED_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid FEED_CACHE_TTL: %w", err)
		}
		cfg.FeedCacheTTL = d
	}
	cfg.CORSOrigins = []string{"*"}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitList(v)
	}

	cfg.DBDsn = os.Getenv("DB_DSN")

	return cfg, nil
}

// Validate reports every missing required value at once.
func (c *Config) Validate() error {
	var errs []error
	if c.DiscordToken == "" && !c.TwitchEnabled() {
		errs = append(errs, errors.New("no chat platform: set DISCORD_TOKEN or TWITCH_CHANNEL, TWITCH_BOT_USERNAME, TWITCH_OAUTH_TOKEN"))
	}
	if c.CloudName == "" || c.CloudAPIKey == "" || c.CloudAPISecret == "" {
		errs = append(errs, errors.New("missing cloudinary env: require CLOUD_NAME, API_KEY, API_SECRET"))
	}
	if c.GistID == "" || c.GistToken == "" {
		errs = append(errs, errors.New("missing gist env: require GIST_ID, GIST_TOKEN"))
	}
	if c.RequireModerator && c.DiscordToken != "" && c.ModRoleID == "" {
		errs = append(errs, errors.New("REQUIRE_MODERATOR set without MOD_ROLE_ID"))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, errors.New("HTTP_TIMEOUT must be positive"))
	}
	if c.FeedCacheTTL < 0 {
		errs = append(errs, errors.New("FEED_CACHE_TTL must not be negative"))
	}
	return errors.Join(errs...)
}

// TwitchEnabled reports whether all Twitch chat credentials are present.
func (c *Config) TwitchEnabled() bool {
	return c.TwitchChannel != "" && c.TwitchBotUsername != "" && c.TwitchOAuthToken != ""
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
