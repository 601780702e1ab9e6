package cfg

import (
	"flag"
	"fmt"
	"hash/fnv"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/denisbrodbeck/machineid"
	"github.com/rs/zerolog/log"
)

// ClusterConfiguration controls cluster membership and communication
type ClusterConfiguration struct {
	BindAddress      string   `toml:"bind_address"`
	AdvertiseAddress string   `toml:"advertise_address"` // Address other members use to reach this node (defaults to hostname:port)
	Port             int      `toml:"port"`
	SeedMembers      []string `toml:"seed_members"`
	SuspectTimeoutMS int      `toml:"suspect_timeout_ms"`
	DeadTimeoutMS    int      `toml:"dead_timeout_ms"`
	SweepIntervalMS  int      `toml:"sweep_interval_ms"`
}

// TransportConfiguration controls the NATS packet transport
type TransportConfiguration struct {
	NatsURL          string `toml:"nats_url"`
	RequestTimeoutMS int    `toml:"request_timeout_ms"` // Timeout for acked registration calls
}

// ListenerConfiguration controls the listener registration subsystem
type ListenerConfiguration struct {
	// AcceptCollections restricts which collections this node accepts remote
	// registrations for (glob patterns; empty = accept all)
	AcceptCollections []string `toml:"accept_collections"`
}

// SinkConfiguration describes one event export sink
type SinkConfiguration struct {
	Name         string   `toml:"name"`
	Type         string   `toml:"type"` // "nats" or "kafka"
	NatsURL      string   `toml:"nats_url"`
	NatsSubject  string   `toml:"nats_subject"`
	KafkaBrokers []string `toml:"kafka_brokers"`
	KafkaTopic   string   `toml:"kafka_topic"`
}

// ExportConfiguration controls the event export pipeline
type ExportConfiguration struct {
	Enabled   bool                `toml:"enabled"`
	QueueSize int                 `toml:"queue_size"`
	Sinks     []SinkConfiguration `toml:"sinks"`
}

// AdminConfiguration for the admin HTTP surface
type AdminConfiguration struct {
	Enabled     bool   `toml:"enabled"`
	BindAddress string `toml:"bind_address"`
	Port        int    `toml:"port"`
}

// LoggingConfiguration controls logging behavior
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // "console" or "json"
}

// PrometheusConfiguration for metrics
type PrometheusConfiguration struct {
	Enabled bool `toml:"enabled"`
}

// Configuration is the main configuration structure
type Configuration struct {
	NodeID uint64 `toml:"node_id"`

	Cluster    ClusterConfiguration    `toml:"cluster"`
	Transport  TransportConfiguration  `toml:"transport"`
	Listener   ListenerConfiguration   `toml:"listener"`
	Export     ExportConfiguration     `toml:"export"`
	Admin      AdminConfiguration      `toml:"admin"`
	Logging    LoggingConfiguration    `toml:"logging"`
	Prometheus PrometheusConfiguration `toml:"prometheus"`
}

// Command line flags
var (
	ConfigPathFlag = flag.String("config", "config.toml", "Path to configuration file")
	NodeIDFlag     = flag.Uint64("node-id", 0, "Node ID (overrides config, 0=auto)")
	PortFlag       = flag.Int("port", 0, "Cluster port (overrides config)")
	NatsURLFlag    = flag.String("nats-url", "", "NATS URL (overrides config)")
)

// Default configuration
var Config = &Configuration{
	NodeID: 0, // Auto-generate

	Cluster: ClusterConfiguration{
		BindAddress:      "0.0.0.0",
		Port:             7800,
		SeedMembers:      []string{},
		SuspectTimeoutMS: 5000,
		DeadTimeoutMS:    10000,
		SweepIntervalMS:  1000,
	},

	Transport: TransportConfiguration{
		NatsURL:          "nats://127.0.0.1:4222",
		RequestTimeoutMS: 5000,
	},

	Listener: ListenerConfiguration{
		AcceptCollections: []string{},
	},

	Export: ExportConfiguration{
		Enabled:   false,
		QueueSize: 1024,
		Sinks:     []SinkConfiguration{},
	},

	Admin: AdminConfiguration{
		Enabled:     true,
		BindAddress: "0.0.0.0",
		Port:        7801,
	},

	Logging: LoggingConfiguration{
		Verbose: false,
		Format:  "console",
	},

	Prometheus: PrometheusConfiguration{
		Enabled: true,
	},
}

// Load loads configuration from file and applies CLI overrides
func Load(configPath string) error {
	// Load from file if it exists
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			log.Info().Str("path", configPath).Msg("Loading configuration")
			if _, err := toml.DecodeFile(configPath, Config); err != nil {
				return fmt.Errorf("failed to decode config: %w", err)
			}
		} else {
			log.Warn().Str("path", configPath).Msg("Config file not found, using defaults")
		}
	}

	// Apply CLI overrides
	if *NodeIDFlag != 0 {
		Config.NodeID = *NodeIDFlag
	}
	if *PortFlag != 0 {
		Config.Cluster.Port = *PortFlag
	}
	if *NatsURLFlag != "" {
		Config.Transport.NatsURL = *NatsURLFlag
	}

	// Auto-generate node ID if not set
	if Config.NodeID == 0 {
		var err error
		Config.NodeID, err = generateNodeID()
		if err != nil {
			return fmt.Errorf("failed to generate node ID: %w", err)
		}
		log.Info().Uint64("node_id", Config.NodeID).Msg("Auto-generated node ID")
	}

	return nil
}

// generateNodeID creates a unique node ID based on machine ID
func generateNodeID() (uint64, error) {
	id, err := machineid.ProtectedID("gridmesh")
	if err != nil {
		return 0, err
	}

	h := fnv.New64a()
	h.Write([]byte(id))
	return h.Sum64(), nil
}

// Validate checks configuration for errors
func Validate() error {
	if Config.Cluster.Port < 1 || Config.Cluster.Port > 65535 {
		return fmt.Errorf("invalid cluster port: %d", Config.Cluster.Port)
	}

	// Auto-fill advertise address if not provided
	if Config.Cluster.AdvertiseAddress == "" {
		hostname, err := os.Hostname()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to get hostname, using localhost")
			hostname = "localhost"
		}
		Config.Cluster.AdvertiseAddress = fmt.Sprintf("%s:%d", hostname, Config.Cluster.Port)
		log.Info().
			Str("advertise_address", Config.Cluster.AdvertiseAddress).
			Msg("Auto-configured advertise address")
	}

	if Config.Transport.NatsURL == "" {
		return fmt.Errorf("transport nats_url is required")
	}

	if Config.Transport.RequestTimeoutMS < 1 {
		return fmt.Errorf("transport request timeout must be >= 1ms")
	}

	if Config.Cluster.SuspectTimeoutMS < 1 {
		return fmt.Errorf("suspect timeout must be >= 1ms")
	}

	if Config.Cluster.DeadTimeoutMS < Config.Cluster.SuspectTimeoutMS {
		return fmt.Errorf("dead timeout must be >= suspect timeout")
	}

	if Config.Cluster.SweepIntervalMS < 1 {
		return fmt.Errorf("sweep interval must be >= 1ms")
	}

	if Config.Admin.Enabled && (Config.Admin.Port < 1 || Config.Admin.Port > 65535) {
		return fmt.Errorf("invalid admin port: %d", Config.Admin.Port)
	}

	if Config.Export.Enabled {
		if Config.Export.QueueSize < 1 {
			return fmt.Errorf("export queue size must be >= 1")
		}
		for _, sink := range Config.Export.Sinks {
			switch sink.Type {
			case "nats":
				if sink.NatsURL == "" {
					return fmt.Errorf("export sink %q: nats_url is required", sink.Name)
				}
			case "kafka":
				if len(sink.KafkaBrokers) == 0 {
					return fmt.Errorf("export sink %q: kafka_brokers is required", sink.Name)
				}
			default:
				return fmt.Errorf("export sink %q: unknown type %q", sink.Name, sink.Type)
			}
		}
	}

	return nil
}
