package node

import (
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientIDFromHardware(t *testing.T) {
	tests := []struct {
		name    string
		hw      net.HardwareAddr
		want    string
		wantErr bool
	}{
		{
			name: "48-bit mac",
			hw:   net.HardwareAddr{0x00, 0x12, 0x4b, 0x01, 0x02, 0x03},
			want: "d:00124b010203",
		},
		{
			name: "eui-64 skips filler octets",
			hw:   net.HardwareAddr{0x00, 0x12, 0x4b, 0xff, 0xfe, 0x0a, 0x0b, 0x0c},
			want: "d:00124b0a0b0c",
		},
		{
			name:    "empty address",
			hw:      nil,
			wantErr: true,
		},
		{
			name:    "unexpected length",
			hw:      net.HardwareAddr{0x01, 0x02, 0x03},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ClientIDFromHardware(tt.hw, DefaultIdentityCapacity)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrConfiguration)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildIdentity(t *testing.T) {
	cfg := DefaultClientConfig()
	cfg.Username = "node"
	cfg.Password = "secret"

	id, err := BuildIdentity(cfg, testHW)

	require.NoError(t, err)
	assert.Equal(t, testClientID, id.ClientID)
	assert.Equal(t, "smh/"+testClientID+"/evt/status", id.PublishTopic)
	assert.Equal(t, "smh/"+testClientID+"/cmd/+", id.SubscribeTopic)
	assert.Equal(t, "node", id.Username)
	assert.Equal(t, "secret", id.Password)
}

func TestBuildIdentity_FieldTooLarge(t *testing.T) {
	tests := []struct {
		name  string
		field string
		apply func(*ClientConfig)
	}{
		{"publish topic", "publish topic", func(c *ClientConfig) { c.PublishTopic = strings.Repeat("p", 65) }},
		{"subscribe topic", "subscribe topic", func(c *ClientConfig) { c.SubscribeTopic = strings.Repeat("s", 65) }},
		{"expanded topic", "publish topic", func(c *ClientConfig) { c.PublishTopic = strings.Repeat("x", 50) + "/{client}" }},
		{"username", "username", func(c *ClientConfig) { c.Username = strings.Repeat("u", 65) }},
		{"password", "password", func(c *ClientConfig) { c.Password = strings.Repeat("p", 65) }},
		{"client id", "client id", func(c *ClientConfig) { c.IdentityCapacity = 8 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultClientConfig()
			tt.apply(&cfg)

			_, err := BuildIdentity(cfg, testHW)

			require.ErrorIs(t, err, ErrConfiguration)
			var ce *CapacityError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestBuildIdentity_ExactCapacityFits(t *testing.T) {
	cfg := DefaultClientConfig()
	cfg.Username = strings.Repeat("u", DefaultIdentityCapacity)

	_, err := BuildIdentity(cfg, testHW)

	assert.NoError(t, err)
}

func TestBuildIdentity_EmptyTopic(t *testing.T) {
	cfg := DefaultClientConfig()
	cfg.PublishTopic = ""

	_, err := BuildIdentity(cfg, testHW)

	assert.ErrorIs(t, err, ErrConfiguration)
}
