package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/example/campusdelivery/internal/geo"
	"github.com/example/campusdelivery/internal/services"
)

// GeofenceHandler answers "do you deliver here?" before checkout.
type GeofenceHandler struct {
	zones services.ZoneResolver
}

// NewGeofenceHandler constructs GeofenceHandler.
func NewGeofenceHandler(zones services.ZoneResolver) *GeofenceHandler {
	return &GeofenceHandler{zones: zones}
}

type geofenceRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required"`
	Longitude *float64 `json:"longitude" validate:"required"`
}

// Validate resolves a coordinate. Unmatched points are a normal answer, not
// an error, and a failing lookup is reported as not deliverable.
func (h *GeofenceHandler) Validate(c *fiber.Ctx) error {
	var req geofenceRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	point := geo.Point{Lat: *req.Latitude, Lng: *req.Longitude}
	if !point.Valid() {
		return services.Failf(services.ErrInvalidInput, "coordinates are out of range")
	}

	match, err := h.zones.Resolve(c.UserContext(), point)
	if err != nil {
		if services.IsKind(err, services.KindValidation) {
			return err
		}
		// Checkout resolves again and reports the failure there.
		log.Error().Err(err).Float64("lat", point.Lat).Float64("lng", point.Lng).Msg("zone lookup failed")
		match = services.ZoneMatch{}
	}

	data := fiber.Map{
		"isValid":     match.Matched,
		"zoneName":    nil,
		"zoneId":      nil,
		"nearestZone": nil,
		"fee":         nil,
	}
	if match.Matched {
		data["zoneName"] = match.ZoneName
		data["zoneId"] = match.ZoneID
		data["fee"] = match.Fee
	} else if match.NearestName != "" {
		data["nearestZone"] = match.NearestName
	}

	return c.JSON(fiber.Map{"success": true, "data": data})
}
