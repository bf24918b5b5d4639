package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"evalgo.org/dockyard/internal/engine"
	"evalgo.org/dockyard/internal/registry"
	"evalgo.org/dockyard/internal/storage"
	"evalgo.org/dockyard/models"
)

const bytesPerMebibyte = 1048576

// hostRegistry resolves the :id parameter to the host's registry.
func (s *Server) hostRegistry(c echo.Context) (*registry.Registry, error) {
	return s.manager.Registry(c.Request().Context(), c.Param("id"))
}

// authorizeContainer returns the stored record of :cid when the caller may
// act on it. Staff may act on any container, known or not; other users only
// on public containers and their own.
func authorizeContainer(c echo.Context, reg *registry.Registry) (*models.ContainerMetadata, error) {
	cid := c.Param("cid")
	user := currentUser(c)

	meta, err := reg.Metadata(c.Request().Context(), cid)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			if user.Staff {
				return nil, nil
			}
			return nil, NotFoundError("container", cid)
		}
		return nil, err
	}

	if !user.Staff && !meta.Visibility.VisibleTo(user.ID) {
		return nil, NotFoundError("container", cid)
	}
	return meta, nil
}

// listHostContainers handles GET /api/v1/hosts/:id/containers
func (s *Server) listHostContainers(c echo.Context) error {
	reg, err := s.hostRegistry(c)
	if err != nil {
		return err
	}

	all, _ := strconv.ParseBool(c.QueryParam("all"))

	containers, err := reg.GetContainersForUser(c.Request().Context(), currentUser(c), all)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, ContainersResponse{
		HostID:     reg.Host().ID,
		Count:      len(containers),
		Containers: containers,
	})
}

// createContainer handles POST /api/v1/hosts/:id/containers
func (s *Server) createContainer(c echo.Context) error {
	reg, err := s.hostRegistry(c)
	if err != nil {
		return err
	}

	var req CreateContainerRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("invalid request body", err.Error())
	}

	opts := engine.CreateOptions{
		Image:       req.Image,
		Command:     req.Command,
		Ports:       req.Ports,
		Env:         req.Env,
		MemoryBytes: req.MemoryMB * bytesPerMebibyte,
		Volumes:     req.Volumes,
		VolumesFrom: req.VolumesFrom,
		Privileged:  req.Privileged,
	}
	if result := s.validator.ValidateCreateOptions(opts); !result.Valid {
		return result
	}

	owner := models.Public()
	if req.Private {
		user := currentUser(c)
		if user.ID == "" {
			return BadRequestError("Invalid container request", "private containers need an identified user")
		}
		owner = models.OwnedBy(user.ID)
	}

	result, err := reg.CreateContainer(c.Request().Context(), registry.CreateRequest{
		CreateOptions: opts,
		Description:   req.Description,
		Owner:         owner,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, result)
}

// getContainer handles GET /api/v1/hosts/:id/containers/:cid
func (s *Server) getContainer(c echo.Context) error {
	reg, err := s.hostRegistry(c)
	if err != nil {
		return err
	}

	meta, err := authorizeContainer(c, reg)
	if err != nil {
		return err
	}
	if meta == nil {
		return NotFoundError("container", c.Param("cid"))
	}

	return c.JSON(http.StatusOK, ContainerDetail{
		ContainerMetadata: meta,
		Name:              meta.DisplayName(),
		Ports:             meta.Ports(),
		MemoryLimitMB:     meta.MemoryLimitMB(),
	})
}

type containerOp func(*registry.Registry, context.Context, string) error

// containerAction adapts a registry mutation into a handler acting on :cid.
func (s *Server) containerAction(action string, op containerOp) echo.HandlerFunc {
	return func(c echo.Context) error {
		reg, err := s.hostRegistry(c)
		if err != nil {
			return err
		}
		if _, err := authorizeContainer(c, reg); err != nil {
			return err
		}

		cid := c.Param("cid")
		if err := op(reg, c.Request().Context(), cid); err != nil {
			return err
		}

		return c.JSON(http.StatusOK, MessageResponse{
			Message: "container " + action,
			ID:      cid,
		})
	}
}

// listRunningContainers handles GET /api/v1/containers
func (s *Server) listRunningContainers(c echo.Context) error {
	hosts, err := s.manager.RunningContainers(c.Request().Context(), currentUser(c))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, RunningContainersResponse{Hosts: hosts})
}
