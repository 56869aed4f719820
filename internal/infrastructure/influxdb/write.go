package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteEntityMetric writes one tenant entity state change as a
// time-series point. It satisfies the gateway's telemetry interface.
//
// The point goes to the entity_metrics measurement, tagged by tenant
// and entity. The raw state string is always recorded; when the state
// parses as a number (sensor readings) it is also written as value,
// and numeric attributes (brightness, temperature, power) become
// fields of their own.
//
// The write is non-blocking; data is batched and sent asynchronously.
func (c *Client) WriteEntityMetric(tenantID, entityID, state string, attributes map[string]any) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"state": state,
	}
	if v, err := strconv.ParseFloat(state, 64); err == nil {
		fields["value"] = v
	}
	for name, attr := range attributes {
		switch v := attr.(type) {
		case float64:
			fields[name] = v
		case int:
			fields[name] = float64(v)
		case bool:
			boolVal := 0.0
			if v {
				boolVal = 1.0
			}
			fields[name] = boolVal
		}
	}

	point := write.NewPoint(
		"entity_metrics",
		map[string]string{
			"tenant_id": tenantID,
			"entity_id": entityID,
		},
		fields,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
