package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"CoinTrend/internal/domain/models"
	"CoinTrend/internal/usecase"
	"CoinTrend/pkg/cache"
	xhttp "CoinTrend/pkg/http"
	xlogger "CoinTrend/pkg/logger"

	"github.com/labstack/echo/v4"
)

const analysisCacheKey = "api:events:analysis"

type EventsHandler struct {
	logger   *xlogger.Logger
	uc       *usecase.EventUseCase
	cache    cache.Service
	cacheTTL time.Duration
}

func NewEventsHandler(logger *xlogger.Logger, uc *usecase.EventUseCase) *EventsHandler {
	return &EventsHandler{logger: logger, uc: uc}
}

// SetCache enables caching of the analysis listing for ttl.
func (h *EventsHandler) SetCache(c cache.Service, ttl time.Duration) {
	h.cache = c
	h.cacheTTL = ttl
}

func (h *EventsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/events")
	g.GET("", h.List, requireUser)
	g.GET("/analysis", h.Analysis)
	g.GET("/:id", h.Get)
}

func (h *EventsHandler) List(c echo.Context) error {
	req := &models.EventsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	events, err := h.uc.GetEvents(c.Request().Context(), userID(c), req.Amount)
	if err != nil {
		return h.fail(c, "list events", err)
	}
	return xhttp.ListResponse(c, toEventResponses(events), int64(len(events)))
}

// Analysis lists every stored event, newest first.
func (h *EventsHandler) Analysis(c echo.Context) error {
	ctx := c.Request().Context()
	if h.cache != nil {
		var b []byte
		if err := h.cache.Get(ctx, analysisCacheKey, &b); err == nil {
			return c.JSONBlob(http.StatusOK, b)
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			h.logger.Warn("events.analysis cache get failed", xlogger.Error(err))
		}
	}

	events, err := h.uc.GetAllEvents(ctx)
	if err != nil {
		return h.fail(c, "analysis", err)
	}
	rows := toEventResponses(events)
	resp := xhttp.APIResponse{
		Status:  http.StatusOK,
		Message: http.StatusText(http.StatusOK),
		Data:    &xhttp.ListDataResponse{Rows: rows, Total: int64(len(rows))},
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return h.fail(c, "analysis", err)
	}
	if h.cache != nil {
		if err := h.cache.Set(ctx, analysisCacheKey, b, h.cacheTTL); err != nil {
			h.logger.Warn("events.analysis cache set failed", xlogger.Error(err))
		}
	}
	return c.JSONBlob(http.StatusOK, b)
}

func (h *EventsHandler) Get(c echo.Context) error {
	e, err := h.uc.FindEventByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, "get event", err)
	}
	return xhttp.SuccessResponse(c, models.NewEventResponse(e))
}

func (h *EventsHandler) fail(c echo.Context, op string, err error) error {
	appErr := toAppError(err)
	if appErr.Status >= 500 {
		h.logger.Error(op+" failed", xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

func toEventResponses(events []*models.SymbolEvent) []models.EventResponse {
	rows := make([]models.EventResponse, 0, len(events))
	for _, e := range events {
		rows = append(rows, models.NewEventResponse(e))
	}
	return rows
}
