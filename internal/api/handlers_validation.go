package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"evalgo.org/dockyard/internal/engine"
	"evalgo.org/dockyard/internal/validation"
	"evalgo.org/dockyard/models"
)

func validationResponse(c echo.Context, result *validation.ValidationResult) error {
	if result.Valid {
		return c.JSON(http.StatusOK, result)
	}

	return c.JSON(http.StatusBadRequest, result)
}

// validateHost handles POST /api/v1/validate/host and checks a host
// without storing it.
func (s *Server) validateHost(c echo.Context) error {
	var req HostRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("Failed to read request body", err.Error())
	}

	host := models.Host{Port: s.config.Engine.DefaultPort}
	req.apply(&host)

	return validationResponse(c, s.validator.ValidateHost(&host))
}

// validateContainer handles POST /api/v1/validate/container and checks a
// container request without sending it to a host.
func (s *Server) validateContainer(c echo.Context) error {
	var req CreateContainerRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("Failed to read request body", err.Error())
	}

	return validationResponse(c, s.validator.ValidateCreateOptions(engine.CreateOptions{
		Image:       req.Image,
		Ports:       req.Ports,
		MemoryBytes: req.MemoryMB * bytesPerMebibyte,
		Volumes:     req.Volumes,
	}))
}
