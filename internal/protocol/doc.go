// Package protocol defines the wire contract shared by device nodes and
// client monitors.
//
// Every device owns five topics under a common base:
//
//	{base}/{deviceId}/data      QoS 0, not retained   (telemetry)
//	{base}/{deviceId}/state     QoS 1, retained       (configuration and outputs)
//	{base}/{deviceId}/info      QoS 1, retained       (descriptive metadata)
//	{base}/{deviceId}/command   QoS 1, not retained   (client to device)
//	{base}/{deviceId}/response  QoS 1                 (device to client, keyed by cmd_id)
//
// All payloads are UTF-8 JSON objects. Unknown fields are ignored. Decoders
// report a missing required field as ErrMalformedEnvelope so callers can log
// and drop the message.
//
// Commands are parsed once into a typed Command value. Parameters are bounded
// at parse time, so handlers only ever see values inside their valid range.
package protocol
