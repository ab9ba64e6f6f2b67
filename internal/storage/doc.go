// Package storage persists object definitions so the controller can rebuild
// its object set after a restart.
//
// A Store keeps one Record per object ID. Records hold the persisted subset
// of an object's settings, never live values. Three backends are provided:
//
//   - MemoryStore: map-backed, for tests and volatile deployments
//   - SQLiteStore: the "objects" table in the shared SQLite database
//   - PebbleStore: a dedicated Pebble key-value directory
//
// Records are read back in ascending ID order by every backend.
package storage
