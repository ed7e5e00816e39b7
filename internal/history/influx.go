package history

import (
	"context"
	"time"

	"github.com/nhat092005/smart-home-sub001/internal/infrastructure/influxdb"
	"github.com/nhat092005/smart-home-sub001/internal/protocol"
)

// InfluxDB measurement names.
const (
	MeasurementSensorData  = "sensor_data"
	MeasurementDeviceState = "device_state"
)

// PointWriter queues time-series points. *influxdb.Client satisfies it.
type PointWriter interface {
	WritePoint(p influxdb.Point) error
}

// InfluxSink mirrors sensor data and state envelopes into InfluxDB.
// Info and command records are not time series and are ignored.
type InfluxSink struct {
	writer PointWriter
}

// NewInfluxSink creates a sink over writer.
func NewInfluxSink(writer PointWriter) *InfluxSink {
	return &InfluxSink{writer: writer}
}

// RecordData writes a sensor_data point at the device timestamp.
func (s *InfluxSink) RecordData(_ context.Context, deviceID string, d protocol.Data) error {
	return s.writer.WritePoint(influxdb.Point{
		Measurement: MeasurementSensorData,
		Tags:        map[string]string{"device_id": deviceID},
		Fields: map[string]any{
			"temperature": d.Temperature,
			"humidity":    d.Humidity,
			"light":       d.Light,
		},
		Time: pointTime(d.Timestamp),
	})
}

// RecordState writes a device_state point at the device timestamp.
func (s *InfluxSink) RecordState(_ context.Context, deviceID string, st protocol.State) error {
	return s.writer.WritePoint(influxdb.Point{
		Measurement: MeasurementDeviceState,
		Tags:        map[string]string{"device_id": deviceID},
		Fields: map[string]any{
			"mode":     st.Mode,
			"interval": st.Interval,
			"fan":      st.Fan,
			"light":    st.Light,
			"ac":       st.AC,
		},
		Time: pointTime(st.Timestamp),
	})
}

func (s *InfluxSink) RecordInfo(context.Context, string, protocol.Info) error { return nil }

func (s *InfluxSink) RecordCommand(context.Context, Command) error { return nil }

func (s *InfluxSink) RecordCommandResult(context.Context, string, string) error { return nil }

// pointTime uses the node's epoch seconds. Nodes that never got a
// set_timestamp report small values; those fall back to receive time.
func pointTime(unix int64) time.Time {
	const plausibleEpoch = 1_000_000_000 // 2001-09-09
	if unix < plausibleEpoch {
		return time.Now()
	}
	return time.Unix(unix, 0)
}
