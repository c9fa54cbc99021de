// Package commands defines the stepwise CLI.
//
// Commands
//
//   - flows   List the built-in flows, their steps and background calls
//   - run     Drive one session of a flow through a YAML script
//   - poll    Poll an analysis job until it reaches a terminal status
//   - jobs    List submission jobs, optionally delivering queued ones first
//
// # Implementation
//
// The root command loads configuration through viper and builds the logger
// before any subcommand runs. Each subcommand builds its own Runtime over the
// simulated backends; with --db (or storage.path) jobs, achievements and
// queued submissions are kept in SQLite and survive between invocations.
package commands
