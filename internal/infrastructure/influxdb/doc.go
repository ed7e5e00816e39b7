// Package influxdb provides the optional InfluxDB time-series sink used by
// the monitoring client to keep sensor and state telemetry.
//
// It wraps influxdb-client-go v2 with connection checks, batched
// non-blocking writes and an error callback for failed batches.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.SetOnError(func(err error) { logger.Warn("influx write", "error", err) })
//	_ = client.WritePoint(influxdb.Point{
//	    Measurement: "sensor_data",
//	    Tags:        map[string]string{"device_id": "esp32_01"},
//	    Fields:      map[string]any{"temperature": 24.5},
//	})
//
// # Thread Safety
//
// All methods are safe for concurrent use.
package influxdb
