// Package output renders command results as a two-column table, JSON
// or YAML.
package output
