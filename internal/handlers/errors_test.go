package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"notebridge/internal/models"
)

func errorApp(err error, production bool) *fiber.App {
	app := fiber.New()
	app.Get("/boom", func(c *fiber.Ctx) error {
		return renderError(c, err, production)
	})
	return app
}

func errorBody(t *testing.T, app *fiber.App) (int, map[string]interface{}) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", "/boom", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	var envelope struct {
		Error map[string]interface{} `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		t.Fatalf("response is not the error envelope: %s", raw)
	}
	return resp.StatusCode, envelope.Error
}

func TestRenderErrorAppError(t *testing.T) {
	appErr := models.NewInsufficientBalanceError("gemini-2.5-flash", 1000, 10)
	status, body := errorBody(t, errorApp(appErr, false))

	if status != fiber.StatusBadRequest {
		t.Errorf("status = %d, want 400", status)
	}
	if body["code"] != models.CodeInsufficientBalance {
		t.Errorf("code = %v, want %s", body["code"], models.CodeInsufficientBalance)
	}
	if body["details"] == nil {
		t.Error("details should be present")
	}
}

func TestRenderErrorUnknownError(t *testing.T) {
	status, body := errorBody(t, errorApp(errors.New("pq: connection refused"), false))
	if status != fiber.StatusInternalServerError {
		t.Errorf("status = %d, want 500", status)
	}
	if body["code"] != models.CodeInternal {
		t.Errorf("code = %v, want %s", body["code"], models.CodeInternal)
	}
}

func TestRenderErrorHidesInternalsInProduction(t *testing.T) {
	_, body := errorBody(t, errorApp(errors.New("pq: password authentication failed"), true))
	if body["message"] != "internal server error" {
		t.Errorf("production 500 message = %v, want opaque", body["message"])
	}
}

func TestRenderErrorValidationSurvivesProduction(t *testing.T) {
	status, body := errorBody(t, errorApp(models.NewValidationError("message is required"), true))
	if status != fiber.StatusBadRequest {
		t.Errorf("status = %d, want 400", status)
	}
	if body["message"] != "message is required" {
		t.Errorf("client errors should keep their message in production, got %v", body["message"])
	}
}
