// Package influxdb records newsdesk login metrics in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Writes go through the
// non-blocking write API and are batched according to the batch_size and
// flush_interval settings. Asynchronous write errors are delivered to the
// callback set with SetOnError.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteAuthAttempt("alice", true, "", time.Now())
//
// All methods are safe for concurrent use.
package influxdb
