package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

type preferenceBody struct {
	Base      string   `json:"baseAssetName" validate:"required"`
	Threshold *float64 `json:"probability" validate:"required,gte=-1,lte=1"`
	Limit     int      `json:"limit" default:"10"`
}

func newContext(method, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestReadAndValidateRequest(t *testing.T) {
	c, _ := newContext(http.MethodPost, `{"baseAssetName":"BTC","probability":0.5}`)
	var req preferenceBody
	if errs := ReadAndValidateRequest(c, &req); errs != nil {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if req.Limit != 10 {
		t.Fatalf("default not applied, got %d", req.Limit)
	}

	c, _ = newContext(http.MethodPost, `{"probability":1.5}`)
	errs, ok := ReadAndValidateRequest(c, &preferenceBody{}).([]ValidationError)
	if !ok || len(errs) != 2 {
		t.Fatalf("expected two validation errors, got %#v", errs)
	}
	codes := map[string]bool{}
	for _, e := range errs {
		codes[e.Code] = true
	}
	if !codes["ERR_REQUIRED"] || !codes["ERR_LTE"] {
		t.Fatalf("unexpected codes %v", codes)
	}

	c, _ = newContext(http.MethodPost, `{not json`)
	if ReadAndValidateRequest(c, &preferenceBody{}) == nil {
		t.Fatal("expected bind error")
	}
}

func TestAppErrorResponse(t *testing.T) {
	c, rec := newContext(http.MethodGet, "")
	appErr := UnprocessableError("probability", "probability must be between -1 and 1").WithError(errors.New("range"))
	if err := AppErrorResponse(c, appErr); err != nil {
		t.Fatalf("AppErrorResponse: %v", err)
	}
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rec.Code)
	}
	var body APIResponseAppErr
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != 422 || len(body.Data) != 1 || body.Data[0].Field != "probability" {
		t.Fatalf("unexpected body %+v", body)
	}

	c, rec = newContext(http.MethodGet, "")
	_ = AppErrorResponse(c, errors.New("boom"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("plain errors should map to 500, got %d", rec.Code)
	}
}
