package api

import (
	"net/http"
	"strings"

	xhttp "CoinTrend/pkg/http"

	"github.com/labstack/echo/v4"
)

// UserHeader carries the authenticated user id, set by the gateway in front of the API.
const UserHeader = xhttp.HeaderUserID

// Router registers every API handler plus the health check.
type Router struct {
	handlers []xhttp.Handler
}

func NewRouter(prefs *PreferencesHandler, events *EventsHandler, symbols *SymbolsHandler) *Router {
	return &Router{handlers: []xhttp.Handler{prefs, events, symbols}}
}

func (r *Router) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	for _, h := range r.handlers {
		h.RegisterRoutes(e)
	}
}

// userID reads the caller identity. An empty result means the request is unauthenticated.
func userID(c echo.Context) string {
	return strings.TrimSpace(c.Request().Header.Get(UserHeader))
}

func requireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if userID(c) == "" {
			return xhttp.UnauthorizedResponse(c, "missing "+UserHeader+" header")
		}
		return next(c)
	}
}
