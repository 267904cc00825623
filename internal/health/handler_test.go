package health

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/eleven-am/voice-capture/internal/audio"
	"github.com/eleven-am/voice-capture/internal/service"
	"github.com/eleven-am/voice-capture/internal/shared"
	"github.com/eleven-am/voice-capture/internal/source"
	"github.com/eleven-am/voice-capture/internal/transcription"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

type brokenDriver struct{}

func (brokenDriver) MinBufferSize(audio.Config) (int, error) { return 320, nil }

func (brokenDriver) Open(audio.Config, int) (source.Device, error) {
	return nil, errors.New("no microphone")
}

func newTestCapture() *service.Service {
	return service.New(service.Config{
		Driver: brokenDriver{},
		Connect: func(context.Context) (transcription.Backend, error) {
			return transcription.NewMockBackend(), nil
		},
		Log: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func readiness(t *testing.T, h *Handler) (int, HealthResponse) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	if err := h.Readiness(e.NewContext(req, rec)); err != nil {
		t.Fatalf("Readiness: %v", err)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return rec.Code, resp
}

func TestLiveness(t *testing.T) {
	h := NewHandler(nil, newTestCapture(), "test")
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	if err := h.Liveness(e.NewContext(req, rec)); err != nil {
		t.Fatalf("Liveness: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestReadiness(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	tests := []struct {
		name       string
		redis      *redis.Client
		failStart  bool
		wantCode   int
		wantStatus Status
	}{
		{"healthy with redis", rdb, false, http.StatusOK, StatusHealthy},
		{"healthy without redis", nil, false, http.StatusOK, StatusHealthy},
		{"degraded after device failure", nil, true, http.StatusOK, StatusDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			capture := newTestCapture()
			if tt.failStart {
				if _, err := capture.StartCapture(t.Context()); !errors.Is(err, shared.ErrDeviceUnavailable) {
					t.Fatalf("expected device failure, got %v", err)
				}
			}
			h := NewHandler(tt.redis, capture, "test")

			code, resp := readiness(t, h)
			if code != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, code)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("expected %s, got %s (%+v)", tt.wantStatus, resp.Status, resp.Components)
			}
			if tt.failStart && resp.Components["capture"].Error != string(shared.KindDeviceUnavailable) {
				t.Errorf("expected capture error %q, got %+v", shared.KindDeviceUnavailable, resp.Components["capture"])
			}
			if resp.Version != "test" {
				t.Errorf("unexpected version %q", resp.Version)
			}
		})
	}
}

func TestReadiness_RedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	mr.Close()

	code, resp := readiness(t, NewHandler(rdb, newTestCapture(), "test"))
	if code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", code)
	}
	if resp.Components["redis"].Status != StatusUnhealthy {
		t.Errorf("expected redis unhealthy, got %+v", resp.Components["redis"])
	}
}
