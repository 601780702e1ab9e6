package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/skygrid-io/gridmesh/admin"
	"github.com/skygrid-io/gridmesh/cfg"
	"github.com/skygrid-io/gridmesh/cluster"
	"github.com/skygrid-io/gridmesh/encoding"
	"github.com/skygrid-io/gridmesh/export"
	_ "github.com/skygrid-io/gridmesh/export/sink"
	"github.com/skygrid-io/gridmesh/grid"
	"github.com/skygrid-io/gridmesh/telemetry"
	"github.com/skygrid-io/gridmesh/transport"
)

func main() {
	flag.Parse()

	// Load configuration
	err := cfg.Load(*cfg.ConfigPathFlag)
	if err != nil {
		panic(err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid configuration: %v", err))
	}

	// Setup logging
	var writer io.Writer = zerolog.NewConsoleWriter()
	if cfg.Config.Logging.Format == "json" {
		writer = os.Stdout
	}
	gLog := zerolog.New(writer).
		With().
		Timestamp().
		Uint64("node_id", cfg.Config.NodeID).
		Logger()

	if cfg.Config.Logging.Verbose {
		log.Logger = gLog.Level(zerolog.DebugLevel)
	} else {
		log.Logger = gLog.Level(zerolog.InfoLevel)
	}

	log.Info().Msg("Gridmesh - Distributed Listener Grid")
	log.Debug().Msg("Initializing telemetry")
	telemetry.InitializeTelemetry()
	telemetry.InitMetrics()

	localAddr := cluster.Address(cfg.Config.Cluster.AdvertiseAddress)

	log.Info().Msg("Connecting cluster transport")
	natsTransport, err := transport.NewNatsTransport(cfg.Config.Transport.NatsURL, localAddr)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect cluster transport")
	}
	defer natsTransport.Close()

	membership := cluster.NewMembership(localAddr)
	ring := cluster.NewRing(membership)

	keys, err := encoding.NewKeyCodec()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build key codec")
	}

	filter, err := grid.NewCollectionFilter(cfg.Config.Listener.AcceptCollections)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid listener collection patterns")
	}

	var pipeline *export.Pipeline
	var onDispatch func(n *grid.EventNotification)
	if cfg.Config.Export.Enabled {
		pipeline, err = export.NewPipeline(cfg.Config.Export)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize event export pipeline")
		}
		pipeline.Start()
		defer pipeline.Stop()
		onDispatch = pipeline.Offer
	}

	listeners := grid.NewListenerService(grid.Config{
		Membership:     membership,
		Ring:           ring,
		Transport:      natsTransport,
		Keys:           keys,
		Filter:         filter,
		RequestTimeout: time.Duration(cfg.Config.Transport.RequestTimeoutMS) * time.Millisecond,
		OnDispatch:     onDispatch,
	})

	// Membership changes drive listener resync: new member gets a direct
	// replay, a death replays everything since ownership may have moved.
	membership.SetOnMemberJoin(listeners.SyncForAddMember)
	membership.SetOnMemberDead(listeners.SyncForDead)

	seeds := cfg.Config.Cluster.SeedMembers
	if len(seeds) > 0 {
		log.Info().Strs("seeds", seeds).Msg("Joining cluster")
		for _, seed := range seeds {
			membership.Add(cluster.Address(seed))
		}
	} else {
		log.Info().Msg("No seed members configured, starting as single-member cluster")
	}

	go sweepMembership(membership)

	collector := telemetry.NewMetricsCollector(membership, listeners.Table(), 5*time.Second)
	collector.Start()
	defer collector.Stop()

	if cfg.Config.Admin.Enabled {
		handlers := admin.NewHandlers(membership, listeners)
		go func() {
			if err := admin.Serve(handlers); err != nil {
				log.Error().Err(err).Msg("Admin server stopped")
			}
		}()
	}

	log.Info().
		Str("address", localAddr.String()).
		Int("members", membership.Count()).
		Msg("Node is operational")

	// Keep running
	select {}
}

// sweepMembership ages members from ALIVE to SUSPECT to dead on missed
// contact. Inbound packets refresh last-seen via the transport handler.
func sweepMembership(membership *cluster.Membership) {
	suspect := time.Duration(cfg.Config.Cluster.SuspectTimeoutMS) * time.Millisecond
	dead := time.Duration(cfg.Config.Cluster.DeadTimeoutMS) * time.Millisecond

	ticker := time.NewTicker(time.Duration(cfg.Config.Cluster.SweepIntervalMS) * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		membership.CheckTimeouts(suspect, dead)
	}
}
