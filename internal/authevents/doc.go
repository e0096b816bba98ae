// Package authevents delivers auth.Event values to the audit trail, the
// MQTT bus and InfluxDB.
//
// Each sink implements auth.EventSink. Delivery failures are logged and
// swallowed so that a broken broker or metrics store never fails a login.
// Fanout combines several sinks into one.
package authevents
