package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nhat092005/smart-home-sub001/internal/device"
	"github.com/nhat092005/smart-home-sub001/internal/infrastructure/config"
	"github.com/nhat092005/smart-home-sub001/internal/infrastructure/logging"
	"github.com/nhat092005/smart-home-sub001/internal/infrastructure/mqtt"
	"github.com/nhat092005/smart-home-sub001/internal/protocol"
)

// rebootPause separates two runs of the node after a reboot command.
const rebootPause = 500 * time.Millisecond

var deviceControls bool

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Run a simulated device node",
	Long: `Run a device node that executes commands from the bus, publishes
sensor data and state on schedule, and answers every command.

With --controls, lines read from stdin act as the node's physical
buttons: "fan", "light" or "ac" toggle an output, "mode" toggles the
operating mode.`,
	Args: cobra.NoArgs,
	RunE: runDevice,
}

func init() {
	deviceCmd.Flags().BoolVar(&deviceControls, "controls", false, "read local button presses from stdin")
	rootCmd.AddCommand(deviceCmd)
}

func runDevice(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, log, err := loadConfig("device")
	if err != nil {
		return err
	}
	if err := cfg.Device.Validate(); err != nil {
		return err
	}
	log = log.With("device_id", cfg.Device.ID)

	var settings device.SettingsStore
	if cfg.Database.Enabled && cfg.Device.PersistSettings {
		db, closeDB, err := openDatabase(ctx, cfg.Database, log)
		if err != nil {
			return err
		}
		defer closeDB()
		settings = device.NewSQLiteSettingsStore(db.DB, cfg.Device.ID)
	}

	var buttons <-chan string
	if deviceControls {
		buttons = scanLines(ctx, os.Stdin)
	}

	// A reboot command ends one run with ErrRebootRequested; the node then
	// starts again from persisted settings, like a microcontroller reset.
	for {
		err := runNode(ctx, cfg, settings, buttons, log)
		if !errors.Is(err, device.ErrRebootRequested) {
			return err
		}
		log.Info("restarting node")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(rebootPause):
		}
	}
}

// runNode runs one boot of the node until ctx ends or a reboot is requested.
func runNode(ctx context.Context, cfg *config.Config, settings device.SettingsStore, buttons <-chan string, log *logging.Logger) error {
	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	state, err := device.RestoreState(runCtx, settings)
	if err != nil {
		log.Warn("restoring settings failed, using defaults", "error", err)
	}

	mqttClient := mqtt.New(cfg.MQTT)
	mqttClient.SetLogger(log)
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	defer func() {
		log.Info("disconnecting from MQTT")
		if err := mqttClient.Close(); err != nil {
			log.Error("error closing MQTT", "error", err)
		}
	}()

	agent := device.NewAgent(device.AgentConfig{
		DeviceID:  cfg.Device.ID,
		Topics:    protocol.NewTopics(cfg.MQTT.BaseTopic),
		Transport: mqttClient,
		Store:     device.NewStore(state),
		Settings:  settings,
		System:    device.NewProcessSystem(cancel, settings, log),
		Info: device.InfoConfig{
			SSID:     cfg.Device.SSID,
			IP:       localIP(cfg.MQTT.Broker),
			Broker:   mqttClient.BrokerURL(),
			Firmware: cfg.Device.Firmware,
		},
		RetainResponse:      cfg.Device.RetainResponse,
		Tick:                cfg.Device.TickInterval,
		StateBackupInterval: cfg.Device.StateBackupInterval,
		RebootDelay:         cfg.Device.RebootDelay,
		Logger:              log,
	})

	// Subscriptions are recorded before the first session so they are in
	// place when OnConnect publishes.
	if err := agent.Subscribe(); err != nil {
		return err
	}
	mqttClient.SetOnConnect(agent.OnConnect)
	mqttClient.Start()

	log.Info("device node starting",
		"mode", state.Mode,
		"interval", state.Interval,
		"broker", mqttClient.BrokerURL(),
	)

	eg, egCtx := errgroup.WithContext(runCtx)
	eg.Go(func() error {
		return agent.Run(egCtx)
	})
	if buttons != nil {
		eg.Go(func() error {
			readControls(egCtx, buttons, agent.Dispatcher(), log)
			return nil
		})
	}
	err = eg.Wait()

	if cause := context.Cause(runCtx); ctx.Err() == nil && errors.Is(cause, device.ErrRebootRequested) {
		return cause
	}
	return err
}

// scanLines reads trimmed lines from r until ctx ends or r closes. It
// outlives individual boots of the node so stdin has a single reader.
func scanLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// readControls maps lines to local button presses until ctx ends or the
// input closes.
func readControls(ctx context.Context, lines <-chan string, d *device.Dispatcher, log *logging.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if err := pressButton(ctx, d, line); err != nil {
				log.Warn("local control ignored", "input", line, "error", err)
			}
		}
	}
}

func pressButton(ctx context.Context, d *device.Dispatcher, button string) error {
	switch button {
	case "":
		return nil
	case "mode":
		d.ToggleMode(ctx)
		return nil
	default:
		if err := d.ToggleSlot(button); err != nil {
			return fmt.Errorf("button %q: %w", button, err)
		}
		return nil
	}
}

// localIP returns the address this host uses to reach the broker. No
// packets are sent; a UDP dial only selects a route.
func localIP(broker config.MQTTBrokerConfig) string {
	conn, err := net.Dial("udp", net.JoinHostPort(broker.Host, fmt.Sprint(broker.Port)))
	if err != nil {
		return "0.0.0.0"
	}
	defer conn.Close()

	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "0.0.0.0"
}
