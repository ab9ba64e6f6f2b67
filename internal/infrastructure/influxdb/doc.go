// Package influxdb writes controller runtime metrics to InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Three measurements
// are written, each tagged with the controller ID:
//
//	update_pass  visited, updated, inactive, duration_us (sampled)
//	command      duration_us; tagged command, status, source
//	objects      count
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB, cfg.Controller.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteCommand(influxdb.CommandSample{Command: "read_object", Status: "ok"})
//
// # Thread Safety
//
// All methods are safe for concurrent use. Writes are batched according to
// batch_size and flush_interval; failures arrive through SetOnError.
package influxdb
