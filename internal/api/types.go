package api

import (
	"evalgo.org/dockyard/internal/engine"
	"evalgo.org/dockyard/internal/orchestration"
	"evalgo.org/dockyard/models"
)

// MessageResponse represents a simple message response.
type MessageResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

// PaginatedHostsResponse represents a page of hosts.
type PaginatedHostsResponse struct {
	Count  int            `json:"count"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
	Hosts  []*models.Host `json:"hosts"`
}

// HostRequest is the body of host create and update requests. Omitted
// fields keep their current value on update.
type HostRequest struct {
	Name     *string `json:"name"`
	Hostname *string `json:"hostname"`
	Port     *int    `json:"port"`
	Enabled  *bool   `json:"enabled"`
}

// DeleteHostResponse reports a host deletion.
type DeleteHostResponse struct {
	Message    string `json:"message"`
	ID         string `json:"id"`
	Containers int    `json:"containers_removed"`
}

// ContainersResponse represents the containers of one host.
type ContainersResponse struct {
	HostID     string                       `json:"host_id"`
	Count      int                          `json:"count"`
	Containers []engine.ContainerDescriptor `json:"containers"`
}

// CreateContainerRequest is the body of a container create request.
type CreateContainerRequest struct {
	Image       string   `json:"image" validate:"required"`
	Command     string   `json:"command"`
	Ports       []string `json:"ports"`
	Env         []string `json:"env"`
	MemoryMB    int64    `json:"memory_mb"`
	Volumes     []string `json:"volumes"`
	VolumesFrom string   `json:"volumes_from"`
	Privileged  bool     `json:"privileged"`
	Description string   `json:"description"`

	// Private restricts the container to the requesting user
	Private bool `json:"private"`
}

// ContainerDetail is a stored record plus its derived fields.
type ContainerDetail struct {
	*models.ContainerMetadata
	Name          string            `json:"name"`
	Ports         map[string]string `json:"ports"`
	MemoryLimitMB int64             `json:"memory_limit_mb"`
}

// ImagesResponse represents the images of one host.
type ImagesResponse struct {
	HostID string                   `json:"host_id"`
	Count  int                      `json:"count"`
	Images []engine.ImageDescriptor `json:"images"`
}

// PullImageRequest is the body of an image pull request.
type PullImageRequest struct {
	Repository string `json:"repository" validate:"required"`
}

// BuildImageRequest is the body of an image build request. Dockerfile is
// a path on the Dockyard server.
type BuildImageRequest struct {
	Dockerfile string `json:"dockerfile" validate:"required"`
	Tag        string `json:"tag" validate:"required"`
}

// RunningContainersResponse is the multi-host running container view.
type RunningContainersResponse struct {
	Hosts []orchestration.HostContainers `json:"hosts"`
}

// ImagesByHostResponse is the multi-host image view.
type ImagesByHostResponse struct {
	Hosts []orchestration.HostImages `json:"hosts"`
}
