package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementAuthAttempts holds one point per login attempt.
const MeasurementAuthAttempts = "auth_attempts"

// WriteAuthAttempt records a login attempt. Only successful attempts carry
// the username as a tag, since those name a real account. A failed
// attempt's username is whatever was typed, so it is stored as a field to
// keep series cardinality bounded. The reason tag is empty on success.
//
// Parameters:
//   - username: Name the attempt was made with
//   - success: Whether the login succeeded
//   - reason: Failure reason code, empty on success
//   - at: Time of the attempt
func (c *Client) WriteAuthAttempt(username string, success bool, reason string, at time.Time) {
	tags := map[string]string{"outcome": "failure"}
	fields := map[string]any{"count": 1}
	if success {
		tags["outcome"] = "success"
		tags["username"] = username
	} else {
		fields["username"] = username
	}
	if reason != "" {
		tags["reason"] = reason
	}
	c.WritePoint(MeasurementAuthAttempts, tags, fields, at)
}

// WritePoint writes a point with explicit tags, fields and timestamp.
// The write is non-blocking and silently dropped when disconnected.
//
// Parameters:
//   - measurement: Measurement name
//   - tags: Indexed tag set
//   - fields: Field values
//   - at: Point timestamp; zero means now
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any, at time.Time) {
	if !c.IsConnected() {
		return
	}
	if at.IsZero() {
		at = time.Now()
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, at))
}
