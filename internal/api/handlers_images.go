package api

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
)

// listHostImages handles GET /api/v1/hosts/:id/images
func (s *Server) listHostImages(c echo.Context) error {
	reg, err := s.hostRegistry(c)
	if err != nil {
		return err
	}

	all, _ := strconv.ParseBool(c.QueryParam("all"))

	images, err := reg.GetImages(c.Request().Context(), all)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, ImagesResponse{
		HostID: reg.Host().ID,
		Count:  len(images),
		Images: images,
	})
}

// pullImage handles POST /api/v1/hosts/:id/images/pull
func (s *Server) pullImage(c echo.Context) error {
	reg, err := s.hostRegistry(c)
	if err != nil {
		return err
	}

	var req PullImageRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("invalid request body", err.Error())
	}
	if result := s.validator.ValidateStruct(req); !result.Valid {
		return result
	}

	if err := reg.ImportImage(c.Request().Context(), req.Repository); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, MessageResponse{
		Message: "image pulled",
		ID:      req.Repository,
	})
}

// buildImage handles POST /api/v1/hosts/:id/images/build
func (s *Server) buildImage(c echo.Context) error {
	reg, err := s.hostRegistry(c)
	if err != nil {
		return err
	}

	var req BuildImageRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("invalid request body", err.Error())
	}
	if result := s.validator.ValidateStruct(req); !result.Valid {
		return result
	}

	if err := reg.BuildImage(c.Request().Context(), req.Dockerfile, req.Tag); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, MessageResponse{
		Message: "image built",
		ID:      req.Tag,
	})
}

// removeImage handles DELETE /api/v1/hosts/:id/images/:iid
func (s *Server) removeImage(c echo.Context) error {
	reg, err := s.hostRegistry(c)
	if err != nil {
		return err
	}

	id, err := url.PathUnescape(c.Param("iid"))
	if err != nil {
		return BadRequestError("Invalid image id", err.Error())
	}

	if err := reg.RemoveImage(c.Request().Context(), id); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, MessageResponse{
		Message: "image removed",
		ID:      id,
	})
}

// listImagesByHost handles GET /api/v1/images
func (s *Server) listImagesByHost(c echo.Context) error {
	hosts, err := s.manager.ImagesByHost(c.Request().Context())
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, ImagesByHostResponse{Hosts: hosts})
}
