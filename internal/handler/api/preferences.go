package api

import (
	"CoinTrend/internal/domain/models"
	"CoinTrend/internal/usecase"
	xhttp "CoinTrend/pkg/http"
	xlogger "CoinTrend/pkg/logger"

	"github.com/labstack/echo/v4"
)

type PreferencesHandler struct {
	logger *xlogger.Logger
	uc     *usecase.PreferenceUseCase
}

func NewPreferencesHandler(logger *xlogger.Logger, uc *usecase.PreferenceUseCase) *PreferencesHandler {
	return &PreferencesHandler{logger: logger, uc: uc}
}

func (h *PreferencesHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/preferences", requireUser)
	g.POST("", h.Set)
	g.DELETE("", h.Delete)
	g.GET("", h.List)
}

func (h *PreferencesHandler) Set(c echo.Context) error {
	req := &models.SetPreferenceRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	err := h.uc.SetPreference(c.Request().Context(), userID(c), req.BaseAssetName, req.QuoteAssetName, *req.Probability)
	if err != nil {
		return h.fail(c, "set preference", err)
	}
	return xhttp.NoContentResponse(c)
}

func (h *PreferencesHandler) Delete(c echo.Context) error {
	req := &models.DeletePreferenceRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.uc.DeletePreference(c.Request().Context(), userID(c), req.BaseAssetName, req.QuoteAssetName); err != nil {
		return h.fail(c, "delete preference", err)
	}
	return xhttp.NoContentResponse(c)
}

func (h *PreferencesHandler) List(c echo.Context) error {
	prefs, err := h.uc.GetPreferences(c.Request().Context(), userID(c))
	if err != nil {
		return h.fail(c, "list preferences", err)
	}
	rows := make([]models.PreferenceResponse, 0, len(prefs))
	for _, p := range prefs {
		rows = append(rows, models.PreferenceResponse{
			BaseAssetName:  p.Symbol.Base.Name,
			QuoteAssetName: p.Symbol.Quote.Name,
			Probability:    p.Threshold,
		})
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *PreferencesHandler) fail(c echo.Context, op string, err error) error {
	appErr := toAppError(err)
	if appErr.Status >= 500 {
		h.logger.Error(op+" failed", xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}
