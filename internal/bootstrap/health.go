package bootstrap

import (
	"github.com/eleven-am/voice-capture/internal/health"
	"github.com/eleven-am/voice-capture/internal/service"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

const version = "1.0.0"

type HealthParams struct {
	fx.In

	Redis   *redis.Client `optional:"true"`
	Capture *service.Service
}

func ProvideHealthHandler(p HealthParams) *health.Handler {
	return health.NewHandler(p.Redis, p.Capture, version)
}

func RegisterHealthRoutes(e *echo.Echo, h *health.Handler) {
	h.RegisterRoutes(e)
}

var HealthModule = fx.Options(
	fx.Provide(ProvideHealthHandler),
	fx.Invoke(RegisterHealthRoutes),
)
