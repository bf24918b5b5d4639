package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// getContainerLogs handles GET /api/v1/hosts/:id/containers/:cid/logs and
// returns the container's combined output as plain text.
func (s *Server) getContainerLogs(c echo.Context) error {
	reg, err := s.hostRegistry(c)
	if err != nil {
		return err
	}
	if _, err := authorizeContainer(c, reg); err != nil {
		return err
	}

	logs, err := reg.FetchLogs(c.Request().Context(), c.Param("cid"))
	if err != nil {
		return err
	}

	return c.String(http.StatusOK, logs)
}
