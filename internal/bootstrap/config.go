package bootstrap

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/eleven-am/voice-capture/internal/shared"
	"github.com/eleven-am/voice-capture/internal/transcription"
	"github.com/joho/godotenv"
)

type Config struct {
	ServerAddr string

	SpeechEndpoint    string
	CredentialsFile   string
	VerifyCredentials bool
	SpeechLanguage    string
	SpeechModel       string
	MaxAlternatives   int
	InterimResults    bool
	Punctuation       bool
	DrainTimeout      time.Duration
	// SpeechMock swaps the recognition service for an in-memory stream.
	SpeechMock bool

	MaxBadReads int

	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	PublishTranscripts bool

	LogLevel  string
	LogFormat string
}

// LoadConfig reads the environment, after merging a .env file from the
// working directory when one exists. Real environment variables win.
func LoadConfig() *Config {
	if err := godotenv.Load(); err == nil {
		slog.Debug("loaded .env file")
	}

	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),

		SpeechEndpoint:    getEnv("SPEECH_ENDPOINT", ""),
		CredentialsFile:   getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		VerifyCredentials: getEnvBool("SPEECH_VERIFY_CREDENTIALS", false),
		SpeechLanguage:    getEnv("SPEECH_LANGUAGE", transcription.DefaultLanguage),
		SpeechModel:       getEnv("SPEECH_MODEL", ""),
		MaxAlternatives:   getEnvInt("SPEECH_MAX_ALTERNATIVES", 0),
		InterimResults:    getEnvBool("SPEECH_INTERIM_RESULTS", false),
		Punctuation:       getEnvBool("SPEECH_PUNCTUATION", false),
		DrainTimeout:      getEnvDuration("SPEECH_DRAIN_TIMEOUT", 5*time.Second),
		SpeechMock:        getEnvBool("SPEECH_MOCK", false),

		MaxBadReads: getEnvInt("CAPTURE_MAX_BAD_READS", 5),

		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisDB:            getEnvInt("REDIS_DB", 0),
		PublishTranscripts: getEnvBool("PUBLISH_TRANSCRIPTS", false),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}
}

func (c *Config) TranscriptionConfig() transcription.Config {
	return transcription.Config{
		Endpoint:          c.SpeechEndpoint,
		CredentialsFile:   c.CredentialsFile,
		VerifyCredentials: c.VerifyCredentials,
	}
}

func (c *Config) SessionOptions() transcription.SessionOptions {
	return transcription.SessionOptions{
		LanguageCode:    c.SpeechLanguage,
		Model:           c.SpeechModel,
		MaxAlternatives: c.MaxAlternatives,
		InterimResults:  c.InterimResults,
		Punctuation:     c.Punctuation,
		DrainTimeout:    c.DrainTimeout,
	}
}

func (c *Config) BadReadBackoff() shared.BackoffConfig {
	return shared.BackoffConfig{MaxAttempts: c.MaxBadReads}.Normalize()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
