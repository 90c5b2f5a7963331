package middleware

import (
	"CoinTrend/pkg/logger"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// Recover turns handler panics into errors for the server error handler and logs them with a short stack.
func Recover(log *logger.Logger) echo.MiddlewareFunc {
	return echomw.RecoverWithConfig(echomw.RecoverConfig{
		StackSize: 4 << 10,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			log.Error("http handler panic",
				logger.String("route", c.Path()),
				logger.String("stack", string(stack)),
				logger.Error(err))
			return err
		},
	})
}
