package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/eleven-am/voice-capture/internal/shared"
	"github.com/labstack/echo/v4"
)

const stopTimeout = 15 * time.Second

type StartResponse struct {
	RunID string `json:"run_id"`
	State string `json:"state"`
}

type Handler struct {
	svc    *Service
	hub    *Hub
	logger *slog.Logger
}

func NewHandler(svc *Service, hub *Hub, logger *slog.Logger) *Handler {
	return &Handler{
		svc:    svc,
		hub:    hub,
		logger: logger.With("handler", "capture"),
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/start", h.Start)
	g.POST("/stop", h.Stop)
	g.GET("/status", h.Status)
	if h.hub != nil {
		g.GET("/transcripts", h.hub.Serve)
	}
}

// @Summary      Start capture
// @Description  Opens the microphone, connects to the recognition service and starts streaming
// @Tags         capture
// @Produce      json
// @Success      201  {object}  StartResponse
// @Failure      409  {object}  shared.APIError
// @Failure      503  {object}  shared.APIError
// @Failure      500  {object}  shared.APIError
// @Router       /capture/start [post]
func (h *Handler) Start(c echo.Context) error {
	runID, err := h.svc.StartCapture(c.Request().Context())
	if err != nil {
		return h.startError(err)
	}
	return c.JSON(http.StatusCreated, StartResponse{
		RunID: runID,
		State: h.svc.Status().State,
	})
}

// @Summary      Stop capture
// @Description  Ends input, drains trailing results and releases the microphone
// @Tags         capture
// @Produce      json
// @Success      200  {object}  Status
// @Success      202  {object}  Status
// @Failure      409  {object}  shared.APIError
// @Failure      500  {object}  shared.APIError
// @Router       /capture/stop [post]
func (h *Handler) Stop(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), stopTimeout)
	defer cancel()

	err := h.svc.StopCapture(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotCapturing):
		return shared.Conflict("not_capturing", "no capture is running")
	case errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn("capture did not stop in time", "timeout", stopTimeout)
		return c.JSON(http.StatusAccepted, h.svc.Status())
	default:
		h.logger.Error("stop capture failed", "error", err)
		return shared.InternalError("stop_failed", "failed to stop capture")
	}
	return c.JSON(http.StatusOK, h.svc.Status())
}

// @Summary      Capture status
// @Tags         capture
// @Produce      json
// @Success      200  {object}  Status
// @Router       /capture/status [get]
func (h *Handler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Status())
}

func (h *Handler) startError(err error) error {
	if errors.Is(err, ErrAlreadyCapturing) {
		return shared.Conflict("already_capturing", "a capture is already running")
	}

	kind := shared.KindOf(err)
	h.logger.Error("start capture failed", "error", err, "kind", kind)
	switch kind {
	case shared.KindDeviceUnavailable, shared.KindAuthFailure, shared.KindTransport, shared.KindBackend:
		return shared.NewAPIError(string(kind), err.Error()).
			WithDetails(map[string]string{"state": h.svc.Status().State}).
			ToHTTP(http.StatusServiceUnavailable)
	default:
		return shared.InternalError("start_failed", "failed to start capture")
	}
}
