// Package history persists cleaning pass outcomes in SQLite.
//
// The database lives at <state_dir>/history.db and holds one row per pass.
// The daemon records every outcome through Recorder, and the CLI reads them
// back through the control socket.
package history
