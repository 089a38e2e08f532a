package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/example/campusdelivery/internal/services"
)

const genericErrorMessage = "Something went wrong, please try again"

// ErrorHandler turns handler errors into the JSON error envelope. Lifecycle
// errors map by kind; anything unexpected is logged and reported as 500
// without detail.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var domainErr *services.Error
	if errors.As(err, &domainErr) {
		status := StatusFor(domainErr.Info.Kind)
		if status >= fiber.StatusInternalServerError {
			log.Error().
				Err(err).
				Str("method", c.Method()).
				Str("path", c.Path()).
				Str("code", domainErr.Info.Name).
				Msg("request failed")
			return c.Status(status).JSON(fiber.Map{
				"success": false,
				"message": genericErrorMessage,
				"code":    domainErr.Info.Name,
			})
		}
		return c.Status(status).JSON(fiber.Map{
			"success": false,
			"message": domainErr.Message(),
			"code":    domainErr.Info.Name,
		})
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(fiber.Map{
			"success": false,
			"message": fiberErr.Message,
		})
	}

	log.Error().Err(err).Str("method", c.Method()).Str("path", c.Path()).Msg("unhandled error")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"message": genericErrorMessage,
	})
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind services.ErrorKind) int {
	switch kind {
	case services.KindValidation, services.KindBusinessRule, services.KindState:
		return fiber.StatusUnprocessableEntity
	case services.KindNotFound:
		return fiber.StatusNotFound
	case services.KindConflict:
		return fiber.StatusConflict
	case services.KindAuthorization:
		return fiber.StatusForbidden
	default:
		return fiber.StatusInternalServerError
	}
}
