package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nhat092005/smart-home-sub001/internal/api"
	"github.com/nhat092005/smart-home-sub001/internal/client"
	"github.com/nhat092005/smart-home-sub001/internal/history"
	"github.com/nhat092005/smart-home-sub001/internal/infrastructure/config"
	"github.com/nhat092005/smart-home-sub001/internal/infrastructure/influxdb"
	"github.com/nhat092005/smart-home-sub001/internal/infrastructure/logging"
	"github.com/nhat092005/smart-home-sub001/internal/infrastructure/mqtt"
	"github.com/nhat092005/smart-home-sub001/internal/protocol"
)

// shutdownTimeout bounds the wait for a running prune on exit.
const shutdownTimeout = 10 * time.Second

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Run the monitoring client and HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runClient,
}

func init() {
	rootCmd.AddCommand(clientCmd)
}

func runClient(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, log, err := loadConfig("client")
	if err != nil {
		return err
	}
	if err := cfg.Client.Validate(); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := client.NewMetrics(reg)
	if err != nil {
		return err
	}

	var (
		sinks         []history.Sink
		historyReader api.HistoryReader
	)

	if cfg.Database.Enabled {
		db, closeDB, err := openDatabase(ctx, cfg.Database, log)
		if err != nil {
			return err
		}
		defer closeDB()

		repo := history.NewSQLiteRepository(db.DB)
		sinks = append(sinks, repo)
		historyReader = repo

		pruner, err := history.NewPruner(repo, cfg.History.PruneSchedule, cfg.History.Retention, log)
		if err != nil {
			return err
		}
		pruner.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			pruner.Stop(stopCtx)
		}()
	}

	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			// Telemetry mirroring is optional; SQLite history still works.
			log.Warn("InfluxDB unavailable, telemetry mirroring disabled", "error", err)
		} else {
			defer func() {
				log.Info("closing InfluxDB connection")
				if err := influxClient.Close(); err != nil {
					log.Error("error closing InfluxDB", "error", err)
				}
			}()
			influxClient.SetOnError(func(err error) {
				log.Error("InfluxDB write error", "error", err)
			})
			sinks = append(sinks, history.NewInfluxSink(influxClient))
			log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
		}
	}

	var persistence client.Persistence
	if len(sinks) > 0 {
		recorder := history.NewRecorder(history.RecorderConfig{
			BufferSize: cfg.History.BufferSize,
			Logger:     log,
		}, sinks...)
		recorder.Start()
		defer recorder.Stop()
		persistence = recorder
	}

	hub := api.NewHub(log)

	mqttClient := mqtt.New(cfg.MQTT)
	mqttClient.SetLogger(log)
	defer func() {
		log.Info("disconnecting from MQTT")
		if err := mqttClient.Close(); err != nil {
			log.Error("error closing MQTT", "error", err)
		}
	}()

	monitor := newMonitor(cfg, mqttClient, persistence, metrics, hub, log)
	if err := monitor.Subscribe(); err != nil {
		return err
	}
	mqttClient.SetOnConnect(monitor.OnConnect)
	mqttClient.SetOnDisconnect(monitor.OnDisconnect)
	mqttClient.Start()
	log.Info("monitor starting", "devices", monitor.Devices(), "broker", mqttClient.BrokerURL())

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return monitor.Run(egCtx)
	})
	eg.Go(func() error {
		hub.Run(egCtx)
		return nil
	})

	if cfg.API.Enabled {
		srv, err := api.New(api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Metrics:  cfg.Metrics,
			Logger:   log,
			Devices:  monitor,
			History:  historyReader,
			Broker:   mqttClient,
			Gatherer: reg,
			Hub:      hub,
			Version:  version,
		})
		if err != nil {
			return err
		}
		if err := srv.Start(egCtx); err != nil {
			return err
		}
		eg.Go(func() error {
			<-egCtx.Done()
			return srv.Close()
		})
	}

	return eg.Wait()
}

// newMonitor builds a monitor from configuration. persistence, metrics and
// events may be nil.
func newMonitor(
	cfg *config.Config,
	transport client.Transport,
	persistence client.Persistence,
	metrics *client.Metrics,
	events client.EventPublisher,
	log *logging.Logger,
) *client.Monitor {
	return client.NewMonitor(client.MonitorConfig{
		Devices:         cfg.Client.Devices,
		Topics:          protocol.NewTopics(cfg.MQTT.BaseTopic),
		Transport:       transport,
		CommandTimeout:  cfg.Client.CommandTimeout,
		ProbeTimeout:    cfg.Client.ProbeTimeout,
		SettleDelay:     cfg.Client.SettleDelay,
		ProbeInterval:   cfg.Client.ProbeInterval,
		MaxMissedProbes: cfg.Client.MaxMissedProbes,
		Persistence:     persistence,
		Metrics:         metrics,
		Events:          events,
		Logger:          log,
	})
}
