package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	modbusClient "github.com/tetragramaton/smh-node/internal/client/modbus"
	serialClient "github.com/tetragramaton/smh-node/internal/client/serial"
	"github.com/tetragramaton/smh-node/internal/config"
	modbusIface "github.com/tetragramaton/smh-node/internal/interface/modbus"
)

func TestProvideLineSource(t *testing.T) {
	log := zaptest.NewLogger(t)

	t.Run("serial", func(t *testing.T) {
		cfg := config.Default()
		src, err := ProvideLineSource(cfg, log)
		require.NoError(t, err)
		assert.IsType(t, &serialClient.Source{}, src)
	})

	t.Run("modbus", func(t *testing.T) {
		cfg := config.Default()
		cfg.Source.Kind = config.SourceModbus
		cfg.Source.Modbus.Registers = []modbusIface.RegisterParam{
			{Name: "voltage", Addr: 0x2001, Scale: 10, Holding: true},
		}
		src, err := ProvideLineSource(cfg, log)
		require.NoError(t, err)
		assert.IsType(t, &modbusClient.Poller{}, src)
	})

	t.Run("modbus without registers", func(t *testing.T) {
		cfg := config.Default()
		cfg.Source.Kind = config.SourceModbus
		_, err := ProvideLineSource(cfg, log)
		assert.ErrorContains(t, err, "modbus source")
	})

	t.Run("unknown kind", func(t *testing.T) {
		cfg := config.Default()
		cfg.Source.Kind = "can"
		_, err := ProvideLineSource(cfg, log)
		assert.Error(t, err)
	})
}

func TestProvideMetricsServer_Disabled(t *testing.T) {
	cfg := config.Default()
	assert.Nil(t, ProvideMetricsServer(cfg, ProvideRegistry(), zaptest.NewLogger(t)))

	cfg.Metrics.Enabled = true
	assert.NotNil(t, ProvideMetricsServer(cfg, ProvideRegistry(), zaptest.NewLogger(t)))
}

func TestProvideClientConfig(t *testing.T) {
	cfg := config.Default()
	cfg.MQTT.Host = "fd00::1"

	cc, err := ProvideClientConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "fd00::1", cc.BrokerAddress)
	assert.Equal(t, uint16(1883), cc.BrokerPort)
}
