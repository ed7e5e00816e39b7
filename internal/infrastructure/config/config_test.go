package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
mqtt:
  broker:
    host: "broker.local"
    port: 1884
  base_topic: "home"
device:
  id: "esp32-01"
  state_backup_interval: 30s
client:
  devices: ["esp32-01", "esp32-02"]
  probe_timeout: 2s
database:
  path: "/tmp/test.db"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
	if cfg.MQTT.BaseTopic != "home" {
		t.Errorf("MQTT.BaseTopic = %q, want %q", cfg.MQTT.BaseTopic, "home")
	}
	if cfg.Device.StateBackupInterval != 30*time.Second {
		t.Errorf("Device.StateBackupInterval = %v, want 30s", cfg.Device.StateBackupInterval)
	}
	if len(cfg.Client.Devices) != 2 {
		t.Errorf("Client.Devices = %v, want 2 entries", cfg.Client.Devices)
	}
	if cfg.Client.ProbeTimeout != 2*time.Second {
		t.Errorf("Client.ProbeTimeout = %v, want 2s", cfg.Client.ProbeTimeout)
	}

	// Untouched values keep their defaults
	if cfg.Device.DefaultInterval != 5 {
		t.Errorf("Device.DefaultInterval = %d, want 5", cfg.Device.DefaultInterval)
	}
	if cfg.Device.RebootDelay != 2*time.Second {
		t.Errorf("Device.RebootDelay = %v, want 2s", cfg.Device.RebootDelay)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(path)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
mqtt:
  base_topic: "home/#"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected validation error for wildcard base topic, got nil")
	}
	if !strings.Contains(err.Error(), "mqtt.base_topic") {
		t.Errorf("error = %v, want mention of mqtt.base_topic", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
mqtt:
  broker:
    host: "from-file"
device:
  id: "from-file"
`)

	t.Setenv("SMARTHOME_MQTT_BROKER_HOST", "from-env")
	t.Setenv("SMARTHOME_MQTT_PASSWORD", "secret")
	t.Setenv("SMARTHOME_DEVICE_ID", "env-device")
	t.Setenv("SMARTHOME_CLIENT_DEVICES", "a,b,c")
	t.Setenv("SMARTHOME_LOGGING_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.Broker.Host != "from-env" {
		t.Errorf("MQTT.Broker.Host = %q, want from-env", cfg.MQTT.Broker.Host)
	}
	if cfg.MQTT.Auth.Password != "secret" {
		t.Errorf("MQTT.Auth.Password = %q, want secret", cfg.MQTT.Auth.Password)
	}
	if cfg.Device.ID != "env-device" {
		t.Errorf("Device.ID = %q, want env-device", cfg.Device.ID)
	}
	if got := strings.Join(cfg.Client.Devices, ","); got != "a,b,c" {
		t.Errorf("Client.Devices = %q, want a,b,c", got)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(_ *Config) {}, wantErr: false},
		{name: "empty broker host", mutate: func(c *Config) { c.MQTT.Broker.Host = "" }, wantErr: true},
		{name: "broker port out of range", mutate: func(c *Config) { c.MQTT.Broker.Port = 70000 }, wantErr: true},
		{name: "wildcard base topic", mutate: func(c *Config) { c.MQTT.BaseTopic = "a/+" }, wantErr: true},
		{name: "database enabled without path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "database disabled without path", mutate: func(c *Config) {
			c.Database.Enabled = false
			c.Database.Path = ""
		}, wantErr: false},
		{name: "influx enabled without url", mutate: func(c *Config) { c.InfluxDB.Enabled = true }, wantErr: true},
		{name: "file logging without path", mutate: func(c *Config) {
			c.Logging.Output = "file"
			c.Logging.File.Path = ""
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDeviceConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(d *DeviceConfig)
		wantErr bool
	}{
		{name: "valid", mutate: func(d *DeviceConfig) { d.ID = "esp32-01" }, wantErr: false},
		{name: "missing id", mutate: func(_ *DeviceConfig) {}, wantErr: true},
		{name: "id with slash", mutate: func(d *DeviceConfig) { d.ID = "a/b" }, wantErr: true},
		{name: "interval zero", mutate: func(d *DeviceConfig) {
			d.ID = "x"
			d.DefaultInterval = 0
		}, wantErr: true},
		{name: "interval above max", mutate: func(d *DeviceConfig) {
			d.ID = "x"
			d.DefaultInterval = MaxDataInterval + 1
		}, wantErr: true},
		{name: "no backup interval", mutate: func(d *DeviceConfig) {
			d.ID = "x"
			d.StateBackupInterval = 0
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Default().Device
			tt.mutate(&d)
			err := d.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestClientConfig_Validate(t *testing.T) {
	valid := Default().Client
	valid.Devices = []string{"d1", "d2"}
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}

	empty := Default().Client
	if err := empty.Validate(); err == nil {
		t.Error("Validate() expected error for empty device list")
	}

	wildcard := Default().Client
	wildcard.Devices = []string{"d1", "#"}
	if err := wildcard.Validate(); err == nil {
		t.Error("Validate() expected error for wildcard device id")
	}

	noMisses := valid
	noMisses.MaxMissedProbes = 0
	if err := noMisses.Validate(); err == nil {
		t.Error("Validate() expected error for max_missed_probes = 0")
	}
}

func TestMQTTBrokerConfig_URL(t *testing.T) {
	plain := MQTTBrokerConfig{Host: "localhost", Port: 1883}
	if got := plain.URL(); got != "tcp://localhost:1883" {
		t.Errorf("URL() = %q, want tcp://localhost:1883", got)
	}
	secure := MQTTBrokerConfig{Host: "broker", Port: 8883, TLS: true}
	if got := secure.URL(); got != "ssl://broker:8883" {
		t.Errorf("URL() = %q, want ssl://broker:8883", got)
	}
}
