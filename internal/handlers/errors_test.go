package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/campusdelivery/internal/services"
)

func respond(t *testing.T, handlerErr error) (int, fiber.Map) {
	t.Helper()

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Get("/", func(c *fiber.Ctx) error { return handlerErr })

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	var body fiber.Map
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{"validation", services.Failf(services.ErrInvalidInput, "notes too long"), 422, "InvalidInput", "notes too long"},
		{"business rule", services.Fail(services.ErrInsufficientStock), 422, "InsufficientStock", services.ErrInsufficientStock.Message},
		{"not found", services.Fail(services.ErrNotFound), 404, "NotFound", services.ErrNotFound.Message},
		{"authorization", services.Fail(services.ErrWrongAssignee), 403, "WrongAssignee", services.ErrWrongAssignee.Message},
		{"state", services.Fail(services.ErrNotStarted), 422, "NotStarted", services.ErrNotStarted.Message},
		{"wrapped", errors.Wrap(services.Fail(services.ErrCodeMismatch), "verify"), 422, "CodeMismatch", services.ErrCodeMismatch.Message},
		{"fatal hides detail", services.Fail(services.ErrCodeSpaceExhausted), 500, "CodeSpaceExhausted", genericErrorMessage},
		{"fiber error", fiber.NewError(fiber.StatusBadRequest, "invalid request body"), 400, "", "invalid request body"},
		{"unknown", errors.New("connection reset"), 500, "", genericErrorMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := respond(t, tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.message, body["message"])
			if tt.code != "" {
				assert.Equal(t, tt.code, body["code"])
			} else {
				assert.NotContains(t, body, "code")
			}
		})
	}
}
