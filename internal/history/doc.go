// Package history records what the monitoring client sees on the bus:
// sensor data, device states, device info and every command with its
// outcome.
//
// A Recorder sits between the client core and one or more Sinks. It queues
// records on a bounded channel and writes them from a single worker, so the
// MQTT callback path never waits on a database. SQLiteRepository is the
// durable sink and also serves history queries for the API. InfluxSink
// mirrors telemetry into InfluxDB when that integration is enabled. Pruner
// deletes SQLite rows past the retention window on a cron schedule.
package history
