package httphandler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lllypuk/creatordash/internal/application/shared"
	"github.com/lllypuk/creatordash/internal/infrastructure/httpserver"
)

// handleError reports validation failures with their message and defers everything else
// to the generic mapping.
func handleError(c echo.Context, err error) error {
	var validationErr *shared.ValidationError
	if errors.As(err, &validationErr) {
		return httpserver.RespondErrorWithCode(c, http.StatusBadRequest, "VALIDATION_ERROR",
			validationErr.Field+" "+validationErr.Message)
	}
	return httpserver.RespondError(c, err)
}
