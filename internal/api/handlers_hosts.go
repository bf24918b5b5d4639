package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"evalgo.org/dockyard/models"
)

// listHosts handles GET /api/v1/hosts
func (s *Server) listHosts(c echo.Context) error {
	enabledOnly, _ := strconv.ParseBool(c.QueryParam("enabled"))

	// Parse pagination parameters
	limit, offset := parsePagination(c)

	hosts, err := s.storage.ListHosts(enabledOnly)
	if err != nil {
		return InternalError("failed to list hosts", err.Error())
	}

	// Get total count before pagination
	total := len(hosts)

	// Apply pagination
	hosts = paginate(hosts, limit, offset)

	return c.JSON(http.StatusOK, PaginatedHostsResponse{
		Count:  len(hosts),
		Total:  total,
		Limit:  limit,
		Offset: offset,
		Hosts:  hosts,
	})
}

// getHost handles GET /api/v1/hosts/:id
func (s *Server) getHost(c echo.Context) error {
	host, err := s.storage.GetHost(c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, host)
}

// apply copies the fields present in the request onto host.
func (r *HostRequest) apply(host *models.Host) {
	if r.Name != nil {
		host.Name = *r.Name
	}
	if r.Hostname != nil {
		host.Hostname = strings.ToLower(*r.Hostname)
	}
	if r.Port != nil {
		host.Port = *r.Port
	}
	if r.Enabled != nil {
		host.Enabled = *r.Enabled
	}
}

// createHost handles POST /api/v1/hosts
func (s *Server) createHost(c echo.Context) error {
	var req HostRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("invalid request body", err.Error())
	}

	host := models.Host{
		Port:    s.config.Engine.DefaultPort,
		Enabled: true,
	}
	req.apply(&host)

	if result := s.validator.ValidateHost(&host); !result.Valid {
		return result
	}

	if err := s.storage.CreateHost(&host); err != nil {
		return err
	}

	s.logger.Info().Str("host", host.Name).Str("address", host.Address()).Msg("host created")
	return c.JSON(http.StatusCreated, host)
}

// updateHost handles PUT /api/v1/hosts/:id
func (s *Server) updateHost(c echo.Context) error {
	id := c.Param("id")

	existing, err := s.storage.GetHost(id)
	if err != nil {
		return err
	}

	var req HostRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("invalid request body", err.Error())
	}

	host := *existing
	req.apply(&host)

	if result := s.validator.ValidateHost(&host); !result.Valid {
		return result
	}

	// Cached listings are keyed by host name, so drop them before the
	// name or address moves.
	if host.Name != existing.Name || host.Address() != existing.Address() {
		if reg, err := s.manager.Registry(c.Request().Context(), id); err == nil {
			reg.InvalidateAll(c.Request().Context())
		}
		s.manager.Forget(id)
	}

	if err := s.storage.UpdateHost(&host); err != nil {
		return err
	}

	s.logger.Info().Str("host", host.Name).Str("address", host.Address()).Msg("host updated")
	return c.JSON(http.StatusOK, host)
}

// deleteHost handles DELETE /api/v1/hosts/:id
func (s *Server) deleteHost(c echo.Context) error {
	id := c.Param("id")

	removed, err := s.manager.DeleteHost(c.Request().Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, DeleteHostResponse{
		Message:    "host deleted successfully",
		ID:         id,
		Containers: removed,
	})
}
