package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	BotToken   string `envconfig:"BOT_TOKEN" required:"true"`
	TargetChat string `envconfig:"TARGET_CHAT" required:"true"`

	AdminUserID  int64  `envconfig:"ADMIN_USER_ID"`
	AllowedUsers string `envconfig:"ALLOWED_USERS"`
	UserStore    string `envconfig:"USER_STORE" default:"file"`
	UsersFile    string `envconfig:"USERS_FILE" default:"allowed_users.json"`

	DownloadDir      string        `envconfig:"DOWNLOAD_DIR" default:"./downloads"`
	ProgressInterval time.Duration `envconfig:"PROGRESS_INTERVAL" default:"2s"`

	YtDlpBin     string `envconfig:"YT_DLP_BIN" default:"yt-dlp"`
	GalleryDLBin string `envconfig:"GALLERY_DL_BIN" default:"gallery-dl"`
	FFmpegBin    string `envconfig:"FFMPEG_BIN" default:"ffmpeg"`
	FFprobeBin   string `envconfig:"FFPROBE_BIN" default:"ffprobe"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`
	LogFile  string `envconfig:"LOG_FILE"`

	AdminAPI struct {
		BindAddress     string        `split_words:"true" default:"0.0.0.0:9090"`
		Token           string        `split_words:"true"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30s"`
		IdleTimeout     time.Duration `split_words:"true" default:"120s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// Load reads environment variables and populates the Config struct.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}
	if cfg.UserStore != "file" && cfg.UserStore != "postgres" {
		return nil, fmt.Errorf("USER_STORE must be file or postgres, got %q", cfg.UserStore)
	}
	return &cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
