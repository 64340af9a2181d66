// Package config provides configuration management for the companion
// daemon.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	User    UserConfig    `mapstructure:"user"`
	Mood    MoodConfig    `mapstructure:"mood"`
	History HistoryConfig `mapstructure:"history"`
	Queue   QueueConfig   `mapstructure:"queue"`
	Listen  ListenConfig  `mapstructure:"listen"`
	Audio   AudioConfig   `mapstructure:"audio"`
	OpenAI  OpenAIConfig  `mapstructure:"openai"`
	Caption CaptionConfig `mapstructure:"caption"`
	Search  SearchConfig  `mapstructure:"search"`
	Ingest  IngestConfig  `mapstructure:"ingest"`
	Store   StoreConfig   `mapstructure:"store"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig configures the HTTP/WebSocket surface
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// UserConfig identifies the user and the active persona
type UserConfig struct {
	Name      string `mapstructure:"name"`
	PersonaID string `mapstructure:"persona_id"`
}

// MoodConfig tunes the sentiment accumulator
type MoodConfig struct {
	Strategy      string  `mapstructure:"strategy"` // lexical or llm
	MinLevel      float64 `mapstructure:"min_level"`
	MaxLevel      float64 `mapstructure:"max_level"`
	PositiveScore float64 `mapstructure:"positive_score"`
	NegativeScore float64 `mapstructure:"negative_score"`
}

// HistoryConfig bounds the working conversation history
type HistoryConfig struct {
	MaxMessages int `mapstructure:"max_messages"`
}

// QueueConfig sizes the input queue tiers
type QueueConfig struct {
	HighCapacity int           `mapstructure:"high_capacity"`
	LowCapacity  int           `mapstructure:"low_capacity"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// ListenConfig tunes continuous listen mode
type ListenConfig struct {
	Tick           time.Duration `mapstructure:"tick"`
	IdleThreshold  time.Duration `mapstructure:"idle_threshold"`
	MaxIdlePrompts int           `mapstructure:"max_idle_prompts"`
	QuitKeyword    string        `mapstructure:"quit_keyword"`
}

// AudioConfig configures microphone capture
type AudioConfig struct {
	SampleRate   int           `mapstructure:"sample_rate"`
	SilenceRMS   float64       `mapstructure:"silence_rms"`
	TrailingGap  time.Duration `mapstructure:"trailing_gap"`
	MaxUtterance time.Duration `mapstructure:"max_utterance"`
	DeviceIndex  int           `mapstructure:"device_index"`
}

// OpenAIConfig configures the hosted AI backend
type OpenAIConfig struct {
	APIKey          string  `mapstructure:"api_key"`
	BaseURL         string  `mapstructure:"base_url"`
	ChatModel       string  `mapstructure:"chat_model"`
	SentimentModel  string  `mapstructure:"sentiment_model"`
	TranscribeModel string  `mapstructure:"transcribe_model"`
	SpeechModel     string  `mapstructure:"speech_model"`
	SpeechVoice     string  `mapstructure:"speech_voice"`
	EmbeddingModel  string  `mapstructure:"embedding_model"`
	Temperature     float64 `mapstructure:"temperature"`
	MaxTokens       int     `mapstructure:"max_tokens"`
}

// CaptionConfig configures image captioning
type CaptionConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// SearchConfig configures the semantic context index
type SearchConfig struct {
	IndexURL string `mapstructure:"index_url"`
	APIKey   string `mapstructure:"api_key"`
	TopK     int    `mapstructure:"top_k"`
}

// IngestConfig configures live-chat ingestion
type IngestConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxLength    int           `mapstructure:"max_length"`
	DiscordToken string        `mapstructure:"discord_token"`
	ChannelID    string        `mapstructure:"channel_id"`
}

// StoreConfig configures transcript persistence
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig configures log output
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Dir     string `mapstructure:"dir"`
	Console bool   `mapstructure:"console"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8090,
			ShutdownTimeout: 10 * time.Second,
		},
		User: UserConfig{
			Name:      "friend",
			PersonaID: "debug",
		},
		Mood: MoodConfig{
			Strategy:      "lexical",
			MinLevel:      -10,
			MaxLevel:      10,
			PositiveScore: 3,
			NegativeScore: -3,
		},
		History: HistoryConfig{
			MaxMessages: 4,
		},
		Queue: QueueConfig{
			HighCapacity: 64,
			LowCapacity:  8,
			PollInterval: time.Second,
		},
		Listen: ListenConfig{
			Tick:           100 * time.Millisecond,
			IdleThreshold:  45 * time.Second,
			MaxIdlePrompts: 3,
			QuitKeyword:    "goodbye",
		},
		Audio: AudioConfig{
			SampleRate:   16000,
			SilenceRMS:   0.015,
			TrailingGap:  600 * time.Millisecond,
			MaxUtterance: 15 * time.Second,
			DeviceIndex:  -1,
		},
		OpenAI: OpenAIConfig{
			ChatModel:       "gpt-4o-mini",
			SentimentModel:  "gpt-4o-mini",
			TranscribeModel: "whisper-1",
			SpeechModel:     "tts-1",
			SpeechVoice:     "nova",
			EmbeddingModel:  "text-embedding-3-small",
			Temperature:     0.9,
			MaxTokens:       256,
		},
		Caption: CaptionConfig{},
		Search: SearchConfig{
			TopK: 2,
		},
		Ingest: IngestConfig{
			Enabled:      false,
			PollInterval: 5 * time.Second,
			MaxLength:    200,
		},
		Store: StoreConfig{
			Enabled: true,
			Path:    "", // resolved under the config dir when empty
		},
		Logging: LoggingConfig{
			Level:   "info",
			Dir:     "logs",
			Console: true,
		},
	}
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configDir, err := GetConfigDir()
	if err != nil {
		return cfg, err
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return cfg, err
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	// Environment variable overrides
	viper.SetEnvPrefix("COMPANION")
	viper.AutomaticEnv()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, err
		}
		// Config file not found, use defaults and create one
		if err := Save(cfg); err != nil {
			return cfg, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return cfg, err
	}

	if cfg.Store.Path == "" {
		cfg.Store.Path = filepath.Join(configDir, "transcript.db")
	}

	return cfg, nil
}

// Save writes the configuration to file
func Save(cfg *Config) error {
	configDir, err := GetConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	viper.Set("server", cfg.Server)
	viper.Set("user", cfg.User)
	viper.Set("mood", cfg.Mood)
	viper.Set("history", cfg.History)
	viper.Set("queue", cfg.Queue)
	viper.Set("listen", cfg.Listen)
	viper.Set("audio", cfg.Audio)
	viper.Set("openai", cfg.OpenAI)
	viper.Set("caption", cfg.Caption)
	viper.Set("search", cfg.Search)
	viper.Set("ingest", cfg.Ingest)
	viper.Set("store", cfg.Store)
	viper.Set("logging", cfg.Logging)

	configPath := filepath.Join(configDir, "config.yaml")
	return viper.WriteConfigAs(configPath)
}

// Watch re-reads the config file when it changes on disk and hands the
// fresh copy to onChange. Only hot-reloadable sections should be
// applied by the caller.
func Watch(onChange func(*Config)) {
	viper.OnConfigChange(func(fsnotify.Event) {
		cfg := DefaultConfig()
		if err := viper.Unmarshal(cfg); err != nil {
			return
		}
		onChange(cfg)
	})
	viper.WatchConfig()
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".companiond"), nil
}
