package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	apperrors "yomiage-bot/pkg/errors"
)

// Config holds all application configuration
type Config struct {
	// App
	Port string
	Env  string

	// Discord
	DiscordBotToken string
	CommandPrefix   string

	// Storage
	DataDir     string // JSON data documents (dictionary, phrase table, usage log)
	SettingsDir string // user/guild settings documents
	TempDir     string // transient audio assets

	// Synthesis engine
	OpenJTalkBin string
	DicDir       string // open_jtalk dictionary directory
	SysVoiceDir  string // htsvoice model directory

	// External tools
	FfmpegBin string
	YtdlpBin  string

	// Reading
	ReadMaxChars int // messages longer than this are truncated before reading
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		Env:             getEnv("ENV", "development"),
		DiscordBotToken: getEnv("DISCORD_BOT_TOKEN", ""),
		CommandPrefix:   getEnv("COMMAND_PREFIX", "-"),
		DataDir:         getEnv("DATA_DIR", "data/json"),
		SettingsDir:     getEnv("SETTINGS_DIR", "settings"),
		TempDir:         getEnv("TEMP_DIR", os.TempDir()),
		OpenJTalkBin:    getEnv("OPEN_JTALK_BIN", "open_jtalk"),
		DicDir:          getEnv("DIC_DIR", "/var/lib/mecab/dic/open-jtalk/naist-jdic"),
		SysVoiceDir:     getEnv("SYS_VOICE_DIR", "/usr/share/hts-voice"),
		FfmpegBin:       getEnv("FFMPEG_BIN", "ffmpeg"),
		YtdlpBin:        getEnv("YTDLP_BIN", "yt-dlp"),
		ReadMaxChars:    getEnvInt("READ_MAX_CHARS", 50),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return apperrors.NewConfigMissingRequired("DATA_DIR")
	}
	if c.SettingsDir == "" {
		return apperrors.NewConfigMissingRequired("SETTINGS_DIR")
	}
	if c.CommandPrefix == "" {
		return apperrors.NewConfigMissingRequired("COMMAND_PREFIX")
	}
	// Discord token is optional for development (the HTTP server runs without it)
	return nil
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}
