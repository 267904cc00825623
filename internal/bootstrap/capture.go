package bootstrap

import (
	"context"
	"log/slog"

	"github.com/eleven-am/voice-capture/internal/audio"
	"github.com/eleven-am/voice-capture/internal/metrics"
	"github.com/eleven-am/voice-capture/internal/service"
	"github.com/eleven-am/voice-capture/internal/source"
	"github.com/eleven-am/voice-capture/internal/transcription"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

func ProvideDriver(logger *slog.Logger) source.Driver {
	return source.NewMalgoDriver(logger)
}

// ProvideConnect returns the per-run backend factory. Credentials are read
// again for every run so a rotated key file is picked up without restart.
func ProvideConnect(cfg *Config, logger *slog.Logger) func(context.Context) (transcription.Backend, error) {
	if cfg.SpeechMock {
		logger.Warn("using in-memory recognition backend, no transcripts will be produced")
		return func(context.Context) (transcription.Backend, error) {
			return transcription.NewMockBackend(), nil
		}
	}

	tcfg := cfg.TranscriptionConfig()
	return func(ctx context.Context) (transcription.Backend, error) {
		return transcription.Connect(ctx, tcfg)
	}
}

func ProvideHub(logger *slog.Logger) *service.Hub {
	return service.NewHub(logger)
}

type CaptureParams struct {
	fx.In

	Config  *Config
	Driver  source.Driver
	Connect func(context.Context) (transcription.Backend, error)
	Redis   *redis.Client `optional:"true"`
	Hub     *service.Hub
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

func ProvideCaptureService(p CaptureParams) *service.Service {
	return service.New(NewCaptureConfig(p))
}

// NewCaptureConfig maps process configuration onto the capture service.
func NewCaptureConfig(p CaptureParams) service.Config {
	return service.Config{
		Driver:  p.Driver,
		Connect: p.Connect,
		Audio:   audio.DefaultConfig(),
		Session: p.Config.SessionOptions(),
		Source: source.Options{
			BadReads: p.Config.BadReadBackoff(),
			Log:      p.Logger,
		},
		Redis:   p.Redis,
		Hub:     p.Hub,
		Metrics: p.Metrics,
		Log:     p.Logger,
	}
}

func ProvideCaptureHandler(svc *service.Service, hub *service.Hub, logger *slog.Logger) *service.Handler {
	return service.NewHandler(svc, hub, logger)
}

func RegisterCaptureRoutes(e *echo.Echo, h *service.Handler) {
	h.RegisterRoutes(e.Group("/api/v1/capture"))
}

// StopCaptureOnShutdown makes sure the microphone and stream are released
// before the process exits.
func StopCaptureOnShutdown(lc fx.Lifecycle, svc *service.Service, hub *service.Hub, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if err := svc.Shutdown(ctx); err != nil {
				logger.Error("capture did not stop cleanly", "error", err)
			}
			hub.Close()
			return nil
		},
	})
}

var CaptureModule = fx.Options(
	fx.Provide(
		ProvideDriver,
		ProvideConnect,
		ProvideHub,
		ProvideCaptureService,
		ProvideCaptureHandler,
	),
	fx.Invoke(RegisterCaptureRoutes),
	fx.Invoke(StopCaptureOnShutdown),
)
