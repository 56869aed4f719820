// Package influxdb provides InfluxDB connectivity for Growgate Core.
//
// It wraps the official influxdb-client-go v2 library with Growgate
// patterns for connection management, metric writing, and health
// monitoring.
//
// # Purpose
//
// This package stores time-series telemetry derived from tenant hub
// state changes: entity state transitions and numeric sensor readings
// (temperature, humidity, brightness, power) tagged by tenant and
// entity.
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "growgate",
//	    Bucket: "metrics",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteEntityMetric("tenant-1", "sensor.temp_row_1", "21.5",
//	    map[string]any{"unit_of_measurement": "°C"})
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered via
// a callback. Connection and health check errors are returned directly.
package influxdb
