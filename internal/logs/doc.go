// Package logs reads the daemon's log files for `memsweep logs`.
//
// Last returns the trailing lines of a file with bounded memory, Follow polls
// for appended lines and restarts from the top when the file is truncated or
// the memsweep.log pointer moves to a new run. Filter matches lines written by
// either the console or the JSON handler against a component and minimum
// level.
package logs
