package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhat092005/smart-home-sub001/internal/client"
	"github.com/nhat092005/smart-home-sub001/internal/infrastructure/mqtt"
	"github.com/nhat092005/smart-home-sub001/internal/protocol"
)

var sendTimeout time.Duration

var sendCmd = &cobra.Command{
	Use:   "send <device> <command> [json-params]",
	Short: "Send one command to a device and wait for its response",
	Example: `  smarthome send esp32-01 set_device '{"device":"fan","state":1}'
  smarthome send esp32-01 set_interval '{"interval":10}'
  smarthome send esp32-01 reboot`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().DurationVarP(&sendTimeout, "timeout", "t", 0, "response timeout (default from client.command_timeout)")
	rootCmd.AddCommand(sendCmd)
}

// sendResult is printed to stdout as JSON.
type sendResult struct {
	DeviceID  string `json:"device_id"`
	Command   string `json:"command"`
	CmdID     string `json:"cmd_id,omitempty"`
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
}

func runSend(cmd *cobra.Command, args []string) error {
	deviceID, name := args[0], protocol.Name(args[1])
	var params json.RawMessage
	if len(args) == 3 {
		params = json.RawMessage(args[2])
	}

	command, err := protocol.DecodeCommand(name, params)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, log, err := loadConfig("send")
	if err != nil {
		return err
	}

	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to broker %s: %w", cfg.MQTT.Broker.URL(), err)
	}
	mqttClient.SetLogger(log)
	defer mqttClient.Close() //nolint:errcheck // Close always returns nil

	cfg.Client.Devices = []string{deviceID}
	monitor := newMonitor(cfg, mqttClient, nil, nil, nil, log)
	if err := monitor.Subscribe(); err != nil {
		return err
	}

	start := time.Now()
	resp, err := monitor.Do(ctx, deviceID, name, command, sendTimeout)
	result := sendResult{
		DeviceID:  deviceID,
		Command:   string(name),
		CmdID:     resp.CmdID,
		Status:    client.Reason(err),
		LatencyMS: time.Since(start).Milliseconds(),
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(result); encErr != nil {
		return encErr
	}
	return err
}
