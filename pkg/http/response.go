package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// APIResponse is the envelope of every JSON answer.
type APIResponse struct {
	Status  int         `json:"status" example:"200"`
	Message string      `json:"message" example:"OK"`
	Data    interface{} `json:"data,omitempty"`
}

// APIResponseAppErr is the envelope of a 4xx/5xx answer produced from an AppError.
type APIResponseAppErr struct {
	Status  int         `json:"status" example:"422"`
	Message string      `json:"message" example:"Unprocessable Entity"`
	Data    []*AppError `json:"data,omitempty"`
}

// ValidationError describes one rejected request field.
type ValidationError struct {
	Code    string                 `json:"code,omitempty" example:"ERR_REQUIRED"`
	Field   string                 `json:"field,omitempty" example:"probability"`
	Message string                 `json:"message,omitempty" example:"probability is required"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// ListDataResponse is the data of a list answer.
type ListDataResponse struct {
	Rows  interface{} `json:"rows"`
	Total int64       `json:"total"`
}

func DataResponse(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, APIResponse{Status: status, Message: http.StatusText(status), Data: data})
}

func SuccessResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusOK, data)
}

func ListResponse(c echo.Context, rows interface{}, total int64) error {
	return SuccessResponse(c, &ListDataResponse{Rows: rows, Total: total})
}

func NoContentResponse(c echo.Context) error {
	return c.NoContent(http.StatusNoContent)
}

func BadRequestResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusBadRequest, data)
}

func UnauthorizedResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusUnauthorized, data)
}

// AppErrorResponse renders err with its own status when it is an AppError and as a bare 500 otherwise.
func AppErrorResponse(c echo.Context, err error) error {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return DataResponse(c, http.StatusInternalServerError, "Something went wrong")
	}
	return c.JSON(appErr.Status, APIResponseAppErr{
		Status:  appErr.Status,
		Message: http.StatusText(appErr.Status),
		Data:    []*AppError{appErr},
	})
}
