package api

import (
	"errors"
	"net/http"

	models "PricePulse/internal/domain/models"
	domrepo "PricePulse/internal/domain/repository"
	"PricePulse/internal/usecase"
	xhttp "PricePulse/pkg/http"
	xlogger "PricePulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Handler exposes the chart read API and the relay websocket endpoint.
type Handler struct {
	logger *xlogger.Logger
	charts *usecase.ChartUseCase
	relay  *RelayHandler
	ticks  domrepo.TickStore
}

func NewHandler(logger *xlogger.Logger, charts *usecase.ChartUseCase, relay *RelayHandler, ticks domrepo.TickStore) *Handler {
	return &Handler{logger: logger, charts: charts, relay: relay, ticks: ticks}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/chart", h.Chart)
	g.GET("/latest", h.Latest)
	e.GET("/healthz", h.Health)
	if h.relay != nil {
		e.GET("/ws", h.relay.Serve)
	}
}

func (h *Handler) Chart(c echo.Context) error {
	req := &models.ChartRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.charts.GetChart(c.Request().Context(), usecase.GetChartParams{
		Granularity: domrepo.NormalizeGranularity(req.Granularity),
		Page:        req.Page,
		Limit:       req.Limit,
	})
	if err != nil {
		h.logger.Error("chart usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *Handler) Latest(c echo.Context) error {
	res, err := h.charts.GetLatest(c.Request().Context())
	if err != nil {
		if errors.Is(err, usecase.ErrNoData) {
			return xhttp.NotFoundResponse(c, "no tick data yet")
		}
		h.logger.Error("latest usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *Handler) Health(c echo.Context) error {
	if err := h.ticks.Health(c.Request().Context()); err != nil {
		h.logger.Warn("health check failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_STORE_UNHEALTHY", "", "durable store unreachable", http.StatusServiceUnavailable))
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}
