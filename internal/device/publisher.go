package device

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nhat092005/smart-home-sub001/internal/infrastructure/mqtt"
	"github.com/nhat092005/smart-home-sub001/internal/protocol"
)

// Transport is the MQTT surface a node needs. *mqtt.Client satisfies it.
type Transport interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// InfoConfig holds the static fields of the Info envelope.
type InfoConfig struct {
	SSID     string
	IP       string
	Broker   string
	Firmware string
}

// Publisher renders envelopes for one node and sends them on its topics.
//
// Every method returns ErrNotConnected without touching the transport when
// the broker is down, so callers can treat it as "skip this cycle".
type Publisher struct {
	deviceID       string
	topics         protocol.Topics
	transport      Transport
	store          *Store
	sensor         Sensor
	clock          *Clock
	info           InfoConfig
	retainResponse bool
}

// Connected reports whether the transport is up.
func (p *Publisher) Connected() bool {
	return p.transport.IsConnected()
}

// PublishState sends the current State envelope, retained.
func (p *Publisher) PublishState() error {
	snap := p.store.Snapshot()
	return p.publish(protocol.KindState, snap.Envelope(p.clock.Unix()), true)
}

// PublishData samples the sensor and sends a Data envelope.
func (p *Publisher) PublishData(ctx context.Context) error {
	if !p.Connected() {
		return ErrNotConnected
	}
	reading, err := p.sensor.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading sensor: %w", err)
	}
	return p.publish(protocol.KindData, protocol.Data{
		Timestamp:   p.clock.Unix(),
		Temperature: reading.Temperature,
		Humidity:    reading.Humidity,
		Light:       reading.Light,
	}, false)
}

// PublishInfo sends the Info envelope, retained.
func (p *Publisher) PublishInfo() error {
	return p.publish(protocol.KindInfo, protocol.Info{
		Timestamp: p.clock.Unix(),
		ID:        p.deviceID,
		SSID:      p.info.SSID,
		IP:        p.info.IP,
		Broker:    p.info.Broker,
		Firmware:  p.info.Firmware,
	}, true)
}

// PublishResponse acknowledges cmdID.
func (p *Publisher) PublishResponse(cmdID string, status protocol.Status) error {
	return p.publish(protocol.KindResponse, protocol.Response{CmdID: cmdID, Status: status}, p.retainResponse)
}

func (p *Publisher) publish(kind protocol.Kind, v any, retained bool) error {
	if !p.Connected() {
		return ErrNotConnected
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s envelope: %w", kind, err)
	}

	if err := p.transport.Publish(p.topics.For(p.deviceID, kind), payload, kind.QoS(), retained); err != nil {
		return fmt.Errorf("publishing %s: %w", kind, err)
	}
	return nil
}
