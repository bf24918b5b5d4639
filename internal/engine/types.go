package engine

import (
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
)

// ShortIDLength is the number of id characters kept for metadata keys.
const ShortIDLength = 12

// ShortID truncates an engine id to ShortIDLength characters.
func ShortID(id string) string {
	if len(id) <= ShortIDLength {
		return id
	}
	return id[:ShortIDLength]
}

// ContainerDescriptor is one entry of a container listing, keeping the
// engine's field names.
type ContainerDescriptor struct {
	ID      string   `json:"Id"`
	Names   []string `json:"Names,omitempty"`
	Image   string   `json:"Image"`
	Command string   `json:"Command,omitempty"`
	Created int64    `json:"Created"`
	State   string   `json:"State,omitempty"`
	Status  string   `json:"Status,omitempty"`
	Ports   []Port   `json:"Ports,omitempty"`
}

// ShortID returns the truncated container id.
func (d ContainerDescriptor) ShortID() string {
	return ShortID(d.ID)
}

// Port is a published container port.
type Port struct {
	IP          string `json:"IP,omitempty"`
	PrivatePort uint16 `json:"PrivatePort"`
	PublicPort  uint16 `json:"PublicPort,omitempty"`
	Type        string `json:"Type"`
}

// ImageDescriptor is one entry of an image listing.
type ImageDescriptor struct {
	ID         string   `json:"Id"`
	Repository string   `json:"Repository"`
	Tag        string   `json:"Tag,omitempty"`
	RepoTags   []string `json:"RepoTags,omitempty"`
	Created    int64    `json:"Created"`
	Size       int64    `json:"Size"`
}

func containerDescriptor(c container.Summary) ContainerDescriptor {
	d := ContainerDescriptor{
		ID:      c.ID,
		Names:   c.Names,
		Image:   c.Image,
		Command: c.Command,
		Created: c.Created,
		State:   c.State,
		Status:  c.Status,
	}
	for _, p := range c.Ports {
		d.Ports = append(d.Ports, Port{
			IP:          p.IP,
			PrivatePort: p.PrivatePort,
			PublicPort:  p.PublicPort,
			Type:        p.Type,
		})
	}
	return d
}

// imageDescriptor converts a listing entry; ok is false for images without
// a repository name (dangling or intermediate layers).
func imageDescriptor(img image.Summary) (ImageDescriptor, bool) {
	for _, ref := range img.RepoTags {
		repo, tag := splitRepoTag(ref)
		if repo == "" || repo == "<none>" {
			continue
		}
		return ImageDescriptor{
			ID:         img.ID,
			Repository: repo,
			Tag:        tag,
			RepoTags:   img.RepoTags,
			Created:    img.Created,
			Size:       img.Size,
		}, true
	}
	return ImageDescriptor{}, false
}

// splitRepoTag splits "registry:5000/app:1.0" into ("registry:5000/app", "1.0").
func splitRepoTag(ref string) (string, string) {
	i := strings.LastIndex(ref, ":")
	if i < 0 || strings.Contains(ref[i+1:], "/") {
		return ref, ""
	}
	return ref[:i], ref[i+1:]
}
