// Package main hosts the memsweep CLI entrypoint and command graph.
//
// The Cobra command tree either runs the daemon in-process (`memsweep run`)
// or translates terminal invocations into JSON-RPC calls against the running
// leader's control socket. Configuration resolution and socket discovery
// live here so subcommands only deal with presentation.
package main
