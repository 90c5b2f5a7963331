package api

import (
	"errors"

	"CoinTrend/internal/domain/models"
	xhttp "CoinTrend/pkg/http"
)

// toAppError maps domain errors onto HTTP errors. Unknown errors become 500s.
func toAppError(err error) *xhttp.AppError {
	var (
		re *models.RangeError
		ve *models.ValidationError
	)
	switch {
	case errors.As(err, &re):
		return xhttp.UnprocessableError(re.Field, re.Error()).WithError(err)
	case errors.As(err, &ve):
		return xhttp.UnprocessableError(ve.Field, ve.Error()).WithError(err)
	case errors.Is(err, models.ErrUserNotFound):
		return xhttp.BadRequestError(models.ErrUserNotFound.Error()).WithError(err)
	case errors.Is(err, models.ErrNotFound):
		return xhttp.NotFoundError("resource not found").WithError(err)
	default:
		return xhttp.InternalError("something went wrong").WithError(err)
	}
}
