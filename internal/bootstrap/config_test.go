package bootstrap

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/eleven-am/voice-capture/internal/transcription"
	"go.uber.org/fx"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{"SERVER_ADDR", "SPEECH_LANGUAGE", "SPEECH_DRAIN_TIMEOUT", "CAPTURE_MAX_BAD_READS", "PUBLISH_TRANSCRIPTS", "SPEECH_MOCK"} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()

	if cfg.ServerAddr != ":8080" {
		t.Errorf("expected :8080, got %s", cfg.ServerAddr)
	}
	if cfg.SpeechLanguage != transcription.DefaultLanguage {
		t.Errorf("expected %s, got %s", transcription.DefaultLanguage, cfg.SpeechLanguage)
	}
	if cfg.DrainTimeout != 5*time.Second {
		t.Errorf("expected 5s drain timeout, got %v", cfg.DrainTimeout)
	}
	if cfg.MaxBadReads != 5 {
		t.Errorf("expected 5 bad reads, got %d", cfg.MaxBadReads)
	}
	if cfg.PublishTranscripts || cfg.SpeechMock {
		t.Error("optional features should default off")
	}
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":9999")
	t.Setenv("SPEECH_LANGUAGE", "en-US")
	t.Setenv("SPEECH_MAX_ALTERNATIVES", "3")
	t.Setenv("SPEECH_INTERIM_RESULTS", "true")
	t.Setenv("SPEECH_DRAIN_TIMEOUT", "750ms")
	t.Setenv("CAPTURE_MAX_BAD_READS", "not-a-number")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("PUBLISH_TRANSCRIPTS", "1")

	cfg := LoadConfig()

	if cfg.ServerAddr != ":9999" || cfg.SpeechLanguage != "en-US" || cfg.MaxAlternatives != 3 {
		t.Errorf("env not applied: %+v", cfg)
	}
	if !cfg.InterimResults || !cfg.PublishTranscripts {
		t.Error("boolean env not applied")
	}
	if cfg.DrainTimeout != 750*time.Millisecond {
		t.Errorf("expected 750ms, got %v", cfg.DrainTimeout)
	}
	if cfg.MaxBadReads != 5 {
		t.Errorf("invalid int should fall back to default, got %d", cfg.MaxBadReads)
	}
	if cfg.RedisDB != 2 {
		t.Errorf("expected redis db 2, got %d", cfg.RedisDB)
	}

	opts := cfg.SessionOptions()
	if opts.LanguageCode != "en-US" || opts.MaxAlternatives != 3 || !opts.InterimResults || opts.DrainTimeout != 750*time.Millisecond {
		t.Errorf("unexpected session options %+v", opts)
	}
	if b := cfg.BadReadBackoff(); b.MaxAttempts != 5 || b.Initial <= 0 {
		t.Errorf("unexpected backoff %+v", b)
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level, format string
		wantDebug     bool
		wantJSON      bool
	}{
		{"debug", "json", true, true},
		{"info", "text", false, false},
		{"WARN", "TEXT", false, false},
		{"", "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(&buf, tt.level, tt.format)

			if got := logger.Enabled(context.Background(), slog.LevelDebug); got != tt.wantDebug {
				t.Errorf("debug enabled = %v, want %v", got, tt.wantDebug)
			}
			logger.Error("probe", "k", "v")
			if isJSON := strings.HasPrefix(buf.String(), "{"); isJSON != tt.wantJSON {
				t.Errorf("json output = %v, want %v: %s", isJSON, tt.wantJSON, buf.String())
			}
		})
	}
}

func TestProvideConnect_Mock(t *testing.T) {
	connect := ProvideConnect(&Config{SpeechMock: true}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	backend, err := connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, ok := backend.(*transcription.MockBackend); !ok {
		t.Errorf("expected mock backend, got %T", backend)
	}
}

func TestOptions_GraphIsComplete(t *testing.T) {
	if err := fx.ValidateApp(Options()); err != nil {
		t.Fatalf("fx graph invalid: %v", err)
	}
}
