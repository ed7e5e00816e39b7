package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Topics
// ============================================================================

func TestTopics_Build(t *testing.T) {
	topics := NewTopics("/home/")

	assert.Equal(t, "home", topics.Base())
	assert.Equal(t, "home/d1/data", topics.Data("d1"))
	assert.Equal(t, "home/d1/state", topics.State("d1"))
	assert.Equal(t, "home/d1/info", topics.Info("d1"))
	assert.Equal(t, "home/d1/command", topics.Command("d1"))
	assert.Equal(t, "home/d1/response", topics.Response("d1"))

	assert.Equal(t, DefaultBase, NewTopics("").Base())
}

func TestTopics_Parse(t *testing.T) {
	topics := NewTopics("smarthome")

	tests := []struct {
		topic      string
		wantDevice string
		wantKind   Kind
		wantErr    bool
	}{
		{"smarthome/esp32-01/state", "esp32-01", KindState, false},
		{"smarthome/d2/response", "d2", KindResponse, false},
		{"other/d1/state", "", "", true},
		{"smarthome/d1", "", "", true},
		{"smarthome//state", "", "", true},
		{"smarthome/d1/state/extra", "", "", true},
		{"smarthome/d1/bogus", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			device, kind, err := topics.Parse(tt.topic)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidTopic)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDevice, device)
			assert.Equal(t, tt.wantKind, kind)
		})
	}
}

func TestKind_DeliveryPolicy(t *testing.T) {
	tests := []struct {
		kind     Kind
		qos      byte
		retained bool
	}{
		{KindData, QoSAtMostOnce, false},
		{KindState, QoSAtLeastOnce, true},
		{KindInfo, QoSAtLeastOnce, true},
		{KindCommand, QoSAtLeastOnce, false},
		{KindResponse, QoSAtLeastOnce, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.qos, tt.kind.QoS())
			assert.Equal(t, tt.retained, tt.kind.Retained())
			assert.True(t, tt.kind.Valid())
		})
	}
	assert.False(t, Kind("nope").Valid())
}

// ============================================================================
// Envelopes
// ============================================================================

func TestDecodeResponse(t *testing.T) {
	resp, err := DecodeResponse([]byte(`{"cmd_id":"cmd_001","status":"success","extra":true}`))
	require.NoError(t, err)
	assert.Equal(t, Response{CmdID: "cmd_001", Status: StatusSuccess}, resp)

	for _, payload := range []string{
		`not json`,
		`{"status":"success"}`,
		`{"cmd_id":"","status":"success"}`,
		`{"cmd_id":"cmd_001"}`,
		`{"cmd_id":"cmd_001","status":"maybe"}`,
	} {
		_, err := DecodeResponse([]byte(payload))
		assert.ErrorIs(t, err, ErrMalformedEnvelope, payload)
	}
}

func TestDecodeState(t *testing.T) {
	state, err := DecodeState([]byte(`{"timestamp":1700000000,"mode":1,"interval":10,"fan":1,"light":0,"ac":1}`))
	require.NoError(t, err)
	assert.Equal(t, State{Timestamp: 1700000000, Mode: 1, Interval: 10, Fan: 1, Light: 0, AC: 1}, state)

	tests := map[string]string{
		"missing fan":       `{"timestamp":1,"mode":0,"interval":5,"light":0,"ac":0}`,
		"missing timestamp": `{"mode":0,"interval":5,"fan":0,"light":0,"ac":0}`,
		"interval zero":     `{"timestamp":1,"mode":0,"interval":0,"fan":0,"light":0,"ac":0}`,
		"mode two":          `{"timestamp":1,"mode":2,"interval":5,"fan":0,"light":0,"ac":0}`,
		"array":             `[1,2,3]`,
	}
	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeState([]byte(payload))
			assert.ErrorIs(t, err, ErrMalformedEnvelope)
		})
	}
}

func TestDecodeData(t *testing.T) {
	data, err := DecodeData([]byte(`{"timestamp":5,"temperature":24.5,"humidity":61.2,"light":320}`))
	require.NoError(t, err)
	assert.InDelta(t, 24.5, data.Temperature, 0.001)
	assert.InDelta(t, 320, data.Light, 0.001)

	_, err = DecodeData([]byte(`{"timestamp":5,"temperature":24.5}`))
	assert.ErrorIs(t, err, ErrMalformedEnvelope)
}

func TestDecodeInfo(t *testing.T) {
	info, err := DecodeInfo([]byte(`{"timestamp":5,"id":"d1","ssid":"home","ip":"10.0.0.2","broker":"mqtt://b:1883","firmware":"1.0.0"}`))
	require.NoError(t, err)
	assert.Equal(t, "d1", info.ID)
	assert.Equal(t, "1.0.0", info.Firmware)

	_, err = DecodeInfo([]byte(`{"timestamp":5}`))
	assert.ErrorIs(t, err, ErrMalformedEnvelope)
}

// ============================================================================
// Commands
// ============================================================================

func TestParseCommand(t *testing.T) {
	intPtr := func(v int) *int { return &v }

	tests := []struct {
		name    string
		payload string
		want    Command
		wantErr error
	}{
		{"set_mode", `{"id":"cmd_001","command":"set_mode","params":{"mode":1}}`, SetMode{Mode: 1}, nil},
		{"set_interval", `{"id":"c","command":"set_interval","params":{"interval":10}}`, SetInterval{Interval: 10}, nil},
		{"set_interval min", `{"id":"c","command":"set_interval","params":{"interval":1}}`, SetInterval{Interval: 1}, nil},
		{"set_interval max", `{"id":"c","command":"set_interval","params":{"interval":3600}}`, SetInterval{Interval: 3600}, nil},
		{"set_interval zero", `{"id":"c","command":"set_interval","params":{"interval":0}}`, nil, ErrInvalidParams},
		{"set_interval too large", `{"id":"c","command":"set_interval","params":{"interval":3601}}`, nil, ErrInvalidParams},
		{"set_interval missing", `{"id":"c","command":"set_interval"}`, nil, ErrInvalidParams},
		{"set_device", `{"id":"c","command":"set_device","params":{"device":"fan","state":1}}`, SetDevice{Device: "fan", State: 1}, nil},
		{"set_device bad state", `{"id":"c","command":"set_device","params":{"device":"fan","state":3}}`, nil, ErrInvalidParams},
		{"set_device no name", `{"id":"c","command":"set_device","params":{"state":1}}`, nil, ErrInvalidParams},
		{"set_devices partial", `{"id":"c","command":"set_devices","params":{"fan":1,"light":-1}}`, SetDevices{Fan: intPtr(1)}, nil},
		{"set_devices all", `{"id":"c","command":"set_devices","params":{"fan":0,"light":1,"ac":1}}`, SetDevices{Fan: intPtr(0), Light: intPtr(1), AC: intPtr(1)}, nil},
		{"set_devices bad", `{"id":"c","command":"set_devices","params":{"ac":2}}`, nil, ErrInvalidParams},
		{"set_timestamp", `{"id":"c","command":"set_timestamp","params":{"timestamp":1700000000}}`, SetTimestamp{Timestamp: 1700000000}, nil},
		{"set_timestamp zero", `{"id":"c","command":"set_timestamp","params":{"timestamp":0}}`, nil, ErrInvalidParams},
		{"get_status", `{"id":"c","command":"get_status"}`, GetStatus{}, nil},
		{"get_status null params", `{"id":"c","command":"get_status","params":null}`, GetStatus{}, nil},
		{"reboot", `{"id":"c","command":"reboot","params":{}}`, Reboot{}, nil},
		{"factory_reset", `{"id":"c","command":"factory_reset"}`, FactoryReset{}, nil},
		{"unknown", `{"id":"c","command":"self_destruct"}`, nil, ErrUnknownCommand},
		{"params wrong type", `{"id":"c","command":"set_mode","params":{"mode":"on"}}`, nil, ErrInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseCommand([]byte(tt.payload))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.NotEmpty(t, req.ID, "id must survive param errors so the sender can be answered")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, req.Command)
			assert.Equal(t, tt.want.Name(), req.Name)
		})
	}
}

func TestParseCommand_Malformed(t *testing.T) {
	for _, payload := range []string{
		`{{`,
		`{"command":"get_status"}`,
		`{"id":"","command":"get_status"}`,
		`{"id":"c"}`,
	} {
		req, err := ParseCommand([]byte(payload))
		assert.ErrorIs(t, err, ErrMalformedEnvelope, payload)
		assert.Empty(t, req.ID)
	}
}

func TestEncodeCommand(t *testing.T) {
	payload, err := EncodeCommand("cmd_001", CmdSetMode, SetMode{Mode: 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"cmd_001","command":"set_mode","params":{"mode":1}}`, string(payload))

	payload, err = EncodeCommand("cmd_002", CmdGetStatus, GetStatus{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"cmd_002","command":"get_status"}`, string(payload))

	payload, err = EncodeCommand("cmd_003", CmdSetInterval, json.RawMessage(`{"interval":30}`))
	require.NoError(t, err)

	req, err := ParseCommand(payload)
	require.NoError(t, err)
	assert.Equal(t, "cmd_003", req.ID)
	assert.Equal(t, SetInterval{Interval: 30}, req.Command)
}
