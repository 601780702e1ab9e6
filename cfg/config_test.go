package cfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withTestConfig swaps in a fresh copy of the defaults and restores the
// global afterwards.
func withTestConfig(t *testing.T, mutate func(c *Configuration)) {
	t.Helper()

	original := Config
	fresh := *original
	Config = &fresh
	t.Cleanup(func() { Config = original })

	mutate(Config)
}

func TestValidateDefaultsPass(t *testing.T) {
	withTestConfig(t, func(c *Configuration) {
		c.Cluster.AdvertiseAddress = "nodea:7800"
	})
	require.NoError(t, Validate())
}

func TestValidateAutoFillsAdvertiseAddress(t *testing.T) {
	withTestConfig(t, func(c *Configuration) {
		c.Cluster.AdvertiseAddress = ""
	})
	require.NoError(t, Validate())
	assert.NotEmpty(t, Config.Cluster.AdvertiseAddress)
}

func TestValidateRejectsBadPorts(t *testing.T) {
	withTestConfig(t, func(c *Configuration) {
		c.Cluster.Port = 0
	})
	require.Error(t, Validate())

	withTestConfig(t, func(c *Configuration) {
		c.Cluster.AdvertiseAddress = "nodea:7800"
		c.Admin.Enabled = true
		c.Admin.Port = 70000
	})
	require.Error(t, Validate())
}

func TestValidateRejectsMissingNatsURL(t *testing.T) {
	withTestConfig(t, func(c *Configuration) {
		c.Cluster.AdvertiseAddress = "nodea:7800"
		c.Transport.NatsURL = ""
	})
	require.Error(t, Validate())
}

func TestValidateTimeoutOrdering(t *testing.T) {
	withTestConfig(t, func(c *Configuration) {
		c.Cluster.AdvertiseAddress = "nodea:7800"
		c.Cluster.SuspectTimeoutMS = 10000
		c.Cluster.DeadTimeoutMS = 5000
	})
	require.Error(t, Validate())
}

func TestValidateExportSinks(t *testing.T) {
	withTestConfig(t, func(c *Configuration) {
		c.Cluster.AdvertiseAddress = "nodea:7800"
		c.Export.Enabled = true
		c.Export.Sinks = []SinkConfiguration{
			{Name: "events", Type: "nats"},
		}
	})
	require.Error(t, Validate())

	withTestConfig(t, func(c *Configuration) {
		c.Cluster.AdvertiseAddress = "nodea:7800"
		c.Export.Enabled = true
		c.Export.Sinks = []SinkConfiguration{
			{Name: "events", Type: "kafka"},
		}
	})
	require.Error(t, Validate())

	withTestConfig(t, func(c *Configuration) {
		c.Cluster.AdvertiseAddress = "nodea:7800"
		c.Export.Enabled = true
		c.Export.Sinks = []SinkConfiguration{
			{Name: "events", Type: "nats", NatsURL: "nats://127.0.0.1:4222"},
			{Name: "archive", Type: "kafka", KafkaBrokers: []string{"127.0.0.1:9092"}},
		}
	})
	require.NoError(t, Validate())
}

func TestValidateRejectsUnknownSinkType(t *testing.T) {
	withTestConfig(t, func(c *Configuration) {
		c.Cluster.AdvertiseAddress = "nodea:7800"
		c.Export.Enabled = true
		c.Export.Sinks = []SinkConfiguration{
			{Name: "bogus", Type: "carrier-pigeon"},
		}
	})
	require.Error(t, Validate())
}
