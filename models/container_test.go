package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimitMB(t *testing.T) {
	tests := []struct {
		name string
		meta string
		want int64
	}{
		{
			name: "config memory in bytes",
			meta: `{"Config": {"Memory": 134217728}}`,
			want: 128,
		},
		{
			name: "missing memory",
			meta: `{"Config": {"Image": "nginx"}}`,
			want: 0,
		},
		{
			name: "missing config section",
			meta: `{"State": {"Running": true}}`,
			want: 0,
		},
		{
			name: "host config memory on newer engines",
			meta: `{"Config": {}, "HostConfig": {"Memory": 268435456}}`,
			want: 256,
		},
		{
			name: "malformed memory value",
			meta: `{"Config": {"Memory": "lots"}, "State": {"Running": true}}`,
			want: 0,
		},
		{
			name: "empty document",
			meta: ``,
			want: 0,
		},
		{
			name: "not json",
			meta: `{{{`,
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &ContainerMetadata{RawMeta: json.RawMessage(tt.meta)}
			assert.Equal(t, tt.want, c.MemoryLimitMB())
		})
	}
}

func TestParseMetaKeepsGoodSections(t *testing.T) {
	raw := json.RawMessage(`{"Config": {"Memory": "bad"}, "State": {"Running": true}}`)

	m := ParseMeta(raw)
	assert.True(t, m.Running())
	assert.Nil(t, m.Config.Memory)
	assert.JSONEq(t, string(raw), string(m.Raw))
}

func TestPorts(t *testing.T) {
	t.Run("legacy port mapping", func(t *testing.T) {
		c := &ContainerMetadata{RawMeta: json.RawMessage(`{"NetworkSettings": {"PortMapping": {"Tcp": {"80": "49153"}}}}`)}
		assert.Equal(t, map[string]string{"80": "49153"}, c.Ports())
	})

	t.Run("current port layout", func(t *testing.T) {
		c := &ContainerMetadata{RawMeta: json.RawMessage(`{"NetworkSettings": {"Ports": {
			"80/tcp": [{"HostIp": "0.0.0.0", "HostPort": "49160"}],
			"53/udp": [{"HostIp": "0.0.0.0", "HostPort": "49161"}],
			"443/tcp": null
		}}}`)}
		assert.Equal(t, map[string]string{"80": "49160"}, c.Ports())
	})

	t.Run("no ports", func(t *testing.T) {
		c := &ContainerMetadata{RawMeta: json.RawMessage(`{"NetworkSettings": {}}`)}
		assert.Nil(t, c.Ports())
	})
}

func TestDisplayName(t *testing.T) {
	c := &ContainerMetadata{ContainerID: "0123456789ab"}
	assert.Equal(t, "0123456789ab", c.DisplayName())

	c.Description = "web frontend"
	assert.Equal(t, "web frontend", c.DisplayName())
}

func TestContainerMetadataJSON(t *testing.T) {
	c := ContainerMetadata{
		ContainerID: "0123456789ab",
		HostID:      "host:1",
		IsRunning:   true,
		Visibility:  OwnedBy("alice"),
		RawMeta:     json.RawMessage(`{"State":{"Running":true}}`),
	}

	data, err := json.Marshal(c)
	require.NoError(t, err)

	var decoded ContainerMetadata
	require.NoError(t, json.Unmarshal(data, &decoded))
	owner, ok := decoded.Visibility.Owner()
	assert.True(t, ok)
	assert.Equal(t, "alice", owner)
	assert.True(t, decoded.Meta().Running())
}
