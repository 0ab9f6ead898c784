package serverutils

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"church-portal-be/internal/pkg/apperror"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorHandlerMapsCodes(t *testing.T) {
	app := fiber.New()
	app.Use(ErrorHandlerMiddleware())
	app.Get("/validation", func(*fiber.Ctx) error {
		return apperror.Validation("Bad input").WithDetails(map[string]string{"limit": "max"})
	})
	app.Get("/forbidden", func(*fiber.Ctx) error { return apperror.Forbidden("No") })
	app.Get("/boom", func(*fiber.Ctx) error { return errors.New("pq: connection refused") })
	app.Get("/fiber", func(*fiber.Ctx) error { return fiber.ErrUpgradeRequired })

	cases := []struct {
		path    string
		status  int
		message string
	}{
		{"/validation", fiber.StatusBadRequest, "Bad input"},
		{"/forbidden", fiber.StatusForbidden, "No"},
		{"/boom", fiber.StatusInternalServerError, "Internal server error"},
		{"/fiber", fiber.StatusUpgradeRequired, "Upgrade Required"},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			res, err := app.Test(httptest.NewRequest("GET", tc.path, nil))
			require.NoError(t, err)
			defer res.Body.Close()

			var body BaseResponse[any]
			require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
			assert.Equal(t, tc.status, res.StatusCode)
			assert.False(t, body.Success)
			assert.Equal(t, tc.message, body.Message)
		})
	}
}

func TestValidateRequestUsesJSONNames(t *testing.T) {
	type req struct {
		Limit int `json:"limit" validate:"max=100"`
	}
	err := ValidateRequest(req{Limit: 500})
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.CodeValidation))

	var appErr *apperror.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, map[string]string{"limit": "max"}, appErr.Details)

	assert.NoError(t, ValidateRequest(req{Limit: 10}))
}
