package api

import (
	"CoinTrend/internal/domain/models"
	"CoinTrend/internal/usecase"
	xhttp "CoinTrend/pkg/http"

	"github.com/labstack/echo/v4"
)

type SymbolsHandler struct {
	registry usecase.SignalRegistry
}

func NewSymbolsHandler(registry usecase.SignalRegistry) *SymbolsHandler {
	return &SymbolsHandler{registry: registry}
}

func (h *SymbolsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/symbols", h.List)
}

// List returns the live symbols with their current probability.
func (h *SymbolsHandler) List(c echo.Context) error {
	signals := h.registry.All()
	rows := make([]models.SymbolResponse, 0, len(signals))
	for _, s := range signals {
		rows = append(rows, models.NewSymbolResponse(s.Snapshot()))
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}
