package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Point is one time-series sample ready to be written.
type Point struct {
	Measurement string
	Tags        map[string]string
	Fields      map[string]any
	Time        time.Time
}

// WritePoint queues a sample for the next batch.
//
// Returns:
//   - error: ErrNotConnected after Close, ErrInvalidPoint for an empty
//     measurement or a point without fields
func (c *Client) WritePoint(p Point) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if p.Measurement == "" || len(p.Fields) == 0 {
		return ErrInvalidPoint
	}

	ts := p.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	c.writeAPI.WritePoint(write.NewPoint(p.Measurement, p.Tags, p.Fields, ts))
	return nil
}
