// Package command defines the tokenkeeper command line.
//
//   - root.go: App, global flags, config and logger setup
//   - serve.go: Runs the service until a signal arrives
//   - sweep.go: One cleaner cycle against a durable store
//   - token.go: Issue, validate, revoke and inspect tokens
//   - config.go: Show and validate configuration
//   - version.go: Build information
package command
