package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/campusdelivery/internal/services"
	"github.com/example/campusdelivery/internal/utils"
)

// bind parses the JSON body into req and checks its validate tags. A body
// that does not parse is a 400; a rule violation is InvalidInput.
func bind(c *fiber.Ctx, req interface{}) error {
	if err := c.BodyParser(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return services.Failf(services.ErrInvalidInput, "%s", utils.ValidationMessage(err))
	}
	return nil
}
