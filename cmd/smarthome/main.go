// Smart-home command dispatch and liveness runtime.
//
// One binary plays either role on the MQTT bus:
//   - device: a simulated node that executes commands, publishes telemetry
//     and answers every command with a correlated response
//   - client: a monitor that tracks liveness, correlates command responses,
//     records history and serves the HTTP/WebSocket API
//
// The send subcommand issues one command through the same correlation layer
// the monitor uses.
package main

import (
	"fmt"
	"os"

	_ "github.com/nhat092005/smart-home-sub001/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
