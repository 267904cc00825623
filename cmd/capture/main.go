package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/eleven-am/voice-capture/docs"
	"github.com/eleven-am/voice-capture/internal/audio"
	"github.com/eleven-am/voice-capture/internal/bootstrap"
	"github.com/eleven-am/voice-capture/internal/metrics"
	"github.com/eleven-am/voice-capture/internal/pipeline"
	"github.com/eleven-am/voice-capture/internal/sink"
	"github.com/eleven-am/voice-capture/internal/source"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	useMock     bool
	language    string
	interim     bool
	maxDuration time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "capture",
	Short: "Stream microphone audio to a speech recognition service",
	Long:  "Captures 16 kHz mono audio from the default microphone and streams it to Cloud Speech-to-Text, forwarding transcripts as they arrive.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the capture HTTP service",
	Run: func(cmd *cobra.Command, args []string) {
		bootstrap.Run()
	},
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Capture in the foreground and print transcripts until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := bootstrap.LoadConfig()
		if cmd.Flags().Changed("mock") {
			cfg.SpeechMock = useMock
		}
		if language != "" {
			cfg.SpeechLanguage = language
		}
		if cmd.Flags().Changed("interim") {
			cfg.InterimResults = interim
		}

		logger := bootstrap.NewLogger(os.Stderr, cfg.LogLevel, "text")
		slog.SetDefault(logger)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return listen(ctx, cfg, logger)
	},
}

func listen(ctx context.Context, cfg *bootstrap.Config, logger *slog.Logger) error {
	events := sink.NewChannel(64)
	loop := pipeline.New(pipeline.Config{
		Driver:  source.NewMalgoDriver(logger),
		Connect: bootstrap.ProvideConnect(cfg, logger),
		Audio:   audio.DefaultConfig(),
		Session: cfg.SessionOptions(),
		Source: source.Options{
			BadReads: cfg.BadReadBackoff(),
			Log:      logger,
		},
		Sink:    events,
		Metrics: metrics.New(),
		Log:     logger,
	})

	if err := loop.Start(ctx); err != nil {
		return fmt.Errorf("start capture: %w", err)
	}
	fmt.Fprintf(os.Stderr, "listening (run %s), press Ctrl+C to stop\n", loop.RunID())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var timeout <-chan time.Time
		if maxDuration > 0 {
			timer := time.NewTimer(maxDuration)
			defer timer.Stop()
			timeout = timer.C
		}
		select {
		case <-gctx.Done():
		case <-timeout:
		case <-loop.Done():
			return nil
		}
		return loop.Stop()
	})

	g.Go(func() error {
		<-loop.Done()
		events.Close()
		return loop.Err()
	})

	g.Go(func() error {
		for evt := range events.Events() {
			marker := "…"
			if evt.IsFinal {
				marker = "✓"
			}
			fmt.Printf("%s %s (%.2f)\n", marker, evt.Text, evt.Confidence)
		}
		return nil
	})

	err := g.Wait()
	stats := loop.Stats()
	logger.Info("capture finished",
		"frames_sent", stats.FramesSent,
		"bytes_sent", stats.BytesSent,
		"transcripts", stats.Transcripts)

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func init() {
	listenCmd.Flags().BoolVar(&useMock, "mock", false, "use the in-memory recognition backend")
	listenCmd.Flags().StringVar(&language, "language", "", "BCP-47 language code (default from SPEECH_LANGUAGE or es-MX)")
	listenCmd.Flags().BoolVar(&interim, "interim", false, "print interim results")
	listenCmd.Flags().DurationVar(&maxDuration, "duration", 0, "stop automatically after this long")
}

// @title Voice Capture API
// @version 1.0.0
// @description Microphone capture and streaming speech recognition service

// @BasePath /api/v1

func main() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(listenCmd)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}
