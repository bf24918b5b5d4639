package models

import (
	"encoding/json"
	"strings"
	"time"
)

const bytesPerMebibyte = 1048576

// ContainerMetadata is the local record mirroring one container on one host.
// At most one record exists per (ContainerID, HostID).
type ContainerMetadata struct {
	// ContainerID is the engine id truncated to 12 characters
	ContainerID string `json:"container_id"`

	// HostID references the owning Host
	HostID string `json:"host_id"`

	// Description is free text set at creation time
	Description string `json:"description"`

	// RawMeta is the raw engine inspect document, stored verbatim
	RawMeta json.RawMessage `json:"meta,omitempty"`

	// IsRunning is the last known running state
	IsRunning bool `json:"is_running"`

	// Visibility is Public or OwnedBy(user)
	Visibility Visibility `json:"owner"`

	// Updated is the last time the record was written
	Updated time.Time `json:"updated,omitempty"`
}

// Meta parses the stored inspect document.
func (c *ContainerMetadata) Meta() Meta {
	return ParseMeta(c.RawMeta)
}

// Ports returns the tcp port mapping (container port -> host port).
func (c *ContainerMetadata) Ports() map[string]string {
	return c.Meta().TCPPorts()
}

// MemoryLimitMB returns the memory limit in mebibytes, or 0 when unknown.
func (c *ContainerMetadata) MemoryLimitMB() int64 {
	return c.Meta().MemoryLimitMB()
}

// DisplayName is the description when set, otherwise the container id.
func (c *ContainerMetadata) DisplayName() string {
	if c.Description != "" {
		return c.Description
	}
	return c.ContainerID
}

// Meta is the subset of an engine inspect document Dockyard reads. Every
// field is optional; Raw keeps the whole document.
type Meta struct {
	State           MetaState           `json:"State"`
	Config          MetaConfig          `json:"Config"`
	HostConfig      MetaHostConfig      `json:"HostConfig"`
	NetworkSettings MetaNetworkSettings `json:"NetworkSettings"`
	Raw             json.RawMessage     `json:"-"`
}

type MetaState struct {
	Running *bool `json:"Running,omitempty"`
}

type MetaConfig struct {
	Image  string `json:"Image,omitempty"`
	Memory *int64 `json:"Memory,omitempty"`
}

type MetaHostConfig struct {
	Memory *int64 `json:"Memory,omitempty"`
}

type MetaNetworkSettings struct {
	// PortMapping is the legacy engine layout ({"Tcp": {"80": "49153"}})
	PortMapping *PortMapping `json:"PortMapping,omitempty"`

	// Ports is the current engine layout ({"80/tcp": [{"HostPort": "49153"}]})
	Ports map[string][]PortBinding `json:"Ports,omitempty"`
}

type PortMapping struct {
	Tcp map[string]string `json:"Tcp,omitempty"`
	Udp map[string]string `json:"Udp,omitempty"`
}

type PortBinding struct {
	HostIP   string `json:"HostIp,omitempty"`
	HostPort string `json:"HostPort,omitempty"`
}

// ParseMeta decodes an inspect document. Sections that fail to decode are
// left empty instead of failing the whole document.
func ParseMeta(raw json.RawMessage) Meta {
	m := Meta{Raw: raw}
	if len(raw) == 0 {
		return m
	}
	if err := json.Unmarshal(raw, &m); err == nil {
		m.Raw = raw
		return m
	}

	m = Meta{Raw: raw}
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(raw, &sections); err != nil {
		return m
	}
	_ = json.Unmarshal(sections["State"], &m.State)
	_ = json.Unmarshal(sections["Config"], &m.Config)
	_ = json.Unmarshal(sections["HostConfig"], &m.HostConfig)
	_ = json.Unmarshal(sections["NetworkSettings"], &m.NetworkSettings)
	return m
}

// Running reports State.Running, false when absent.
func (m Meta) Running() bool {
	return m.State.Running != nil && *m.State.Running
}

// MemoryLimitMB converts Config.Memory (or HostConfig.Memory on engines that
// moved it) from bytes to mebibytes.
func (m Meta) MemoryLimitMB() int64 {
	switch {
	case m.Config.Memory != nil:
		return *m.Config.Memory / bytesPerMebibyte
	case m.HostConfig.Memory != nil:
		return *m.HostConfig.Memory / bytesPerMebibyte
	}
	return 0
}

// TCPPorts returns container port -> host port for tcp mappings, or nil.
func (m Meta) TCPPorts() map[string]string {
	ns := m.NetworkSettings
	if ns.PortMapping != nil && len(ns.PortMapping.Tcp) > 0 {
		return ns.PortMapping.Tcp
	}
	if len(ns.Ports) == 0 {
		return nil
	}

	ports := make(map[string]string)
	for spec, bindings := range ns.Ports {
		port, proto, _ := strings.Cut(spec, "/")
		if proto != "" && proto != "tcp" {
			continue
		}
		for _, b := range bindings {
			if b.HostPort != "" {
				ports[port] = b.HostPort
				break
			}
		}
	}
	if len(ports) == 0 {
		return nil
	}
	return ports
}
