package models

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// DefaultEnginePort is the port assumed for a host when none is given.
const DefaultEnginePort = 4243

// Host represents one remote container engine managed by Dockyard.
//
// Hosts are created and edited by an administrator and are never
// auto-discovered. Each host owns a set of ContainerMetadata records
// (linked via ContainerMetadata.HostID); deleting a host deletes them too.
//
// Example JSON representation:
//
//	{
//	  "id": "host:1c0e7c4a-4c1f-4f43-9a55-0b6f4f3b6a10",
//	  "name": "web-01",
//	  "hostname": "192.168.1.10",
//	  "port": 4243,
//	  "enabled": true
//	}
type Host struct {
	// ID is the unique host identifier (generated, "host:<uuid>")
	ID string `json:"id"`

	// Name is the human-readable host name (required, unique). It names the
	// host's cache keys, so it cannot contain ':'.
	Name string `json:"name" validate:"required,max=64,excludesall=:"`

	// Hostname is the engine address, a host name or IP only (required, unique)
	Hostname string `json:"hostname" validate:"required,max=128,nohostpath"`

	// Port is the engine API port
	Port int `json:"port" validate:"min=1,max=65535"`

	// Enabled controls whether the host takes part in multi-host views
	Enabled bool `json:"enabled"`

	// Created is when the host was registered
	Created time.Time `json:"created,omitempty"`

	// Updated is when the host was last edited
	Updated time.Time `json:"updated,omitempty"`
}

// Address returns the engine endpoint as host:port.
func (h *Host) Address() string {
	return net.JoinHostPort(h.Hostname, strconv.Itoa(h.Port))
}

// EngineURL returns the engine endpoint in the tcp:// form expected by the
// Docker client.
func (h *Host) EngineURL() string {
	return fmt.Sprintf("tcp://%s", h.Address())
}

func (h *Host) String() string {
	return h.Name
}
