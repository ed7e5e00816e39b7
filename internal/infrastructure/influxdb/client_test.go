package influxdb

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/nhat092005/smart-home-sub001/internal/infrastructure/config"
)

// testConfig matches the InfluxDB service in docker-compose.yml.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "smarthome-dev-token",
		Org:           "smarthome",
		Bucket:        "telemetry",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

func connectOrSkip(t *testing.T) *Client {
	t.Helper()
	if os.Getenv("RUN_INTEGRATION") == "" {
		t.Skip("set RUN_INTEGRATION=1 to run InfluxDB integration tests")
	}
	client, err := Connect(context.Background(), testConfig())
	if err != nil {
		t.Skipf("InfluxDB not available: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// =============================================================================
// Unit Tests
// =============================================================================

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := Connect(context.Background(), cfg)
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:59999"

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Connect(ctx, cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestBatchSettings(t *testing.T) {
	tests := []struct {
		name          string
		batch, flush  int
		wantB, wantFl int
	}{
		{"configured", 500, 2, 500, 2},
		{"zero uses defaults", 0, 0, defaultBatchSize, defaultFlushInterval},
		{"negative uses defaults", -5, -1, defaultBatchSize, defaultFlushInterval},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.BatchSize = tt.batch
			cfg.FlushInterval = tt.flush
			b, fl := batchSettings(cfg)
			if b != tt.wantB || fl != tt.wantFl {
				t.Errorf("batchSettings() = (%d, %d), want (%d, %d)", b, fl, tt.wantB, tt.wantFl)
			}
		})
	}
}

func TestNilClient(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil = %v", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() on nil = true")
	}
	if err := c.WritePoint(Point{Measurement: "m", Fields: map[string]any{"v": 1}}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("WritePoint() on nil = %v, want ErrNotConnected", err)
	}
}

// =============================================================================
// Integration Tests
// =============================================================================

func TestHealthCheck(t *testing.T) {
	client := connectOrSkip(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestHealthCheck_Cancelled(t *testing.T) {
	client := connectOrSkip(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() should fail with a cancelled context")
	}
}

func TestWritePoint(t *testing.T) {
	client := connectOrSkip(t)

	var (
		mu       sync.Mutex
		writeErr error
	)
	client.SetOnError(func(err error) {
		mu.Lock()
		writeErr = err
		mu.Unlock()
	})

	err := client.WritePoint(Point{
		Measurement: "sensor_data",
		Tags:        map[string]string{"device_id": "esp32_test"},
		Fields:      map[string]any{"temperature": 24.5, "humidity": 60.1, "light": 300.0},
		Time:        time.Unix(1700000000, 0),
	})
	if err != nil {
		t.Fatalf("WritePoint() error = %v", err)
	}
	client.Flush()
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if writeErr != nil {
		t.Errorf("async write error = %v", writeErr)
	}
}

func TestWritePoint_Invalid(t *testing.T) {
	client := connectOrSkip(t)

	if err := client.WritePoint(Point{Fields: map[string]any{"v": 1}}); !errors.Is(err, ErrInvalidPoint) {
		t.Errorf("empty measurement: error = %v, want ErrInvalidPoint", err)
	}
	if err := client.WritePoint(Point{Measurement: "m"}); !errors.Is(err, ErrInvalidPoint) {
		t.Errorf("no fields: error = %v, want ErrInvalidPoint", err)
	}
}

func TestClose_Idempotent(t *testing.T) {
	client := connectOrSkip(t)

	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	client.Flush()
	if err := client.WritePoint(Point{Measurement: "m", Fields: map[string]any{"v": 1}}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("WritePoint() after Close = %v, want ErrNotConnected", err)
	}
}
